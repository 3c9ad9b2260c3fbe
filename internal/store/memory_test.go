package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory() *Memory {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewMemory(logger)
}

func TestMemoryAppendAssignsIDs(t *testing.T) {
	m := newTestMemory()

	id1, err := m.Append(context.Background(), Record{Payload: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)
	id2, err := m.Append(context.Background(), Record{Payload: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)

	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, m.Len())

	records := m.Records()
	require.Len(t, records, 2)
	assert.Equal(t, id1, records[0].ID)
	assert.Equal(t, id2, records[1].ID)
	assert.False(t, records[0].CreatedAt.IsZero())
}

func TestMemoryKeepsProvidedID(t *testing.T) {
	m := newTestMemory()

	id, err := m.Append(context.Background(), Record{ID: "fixed", Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, RecordID("fixed"), id)
}

func TestMemoryRecordsReturnsCopy(t *testing.T) {
	m := newTestMemory()
	_, err := m.Append(context.Background(), Record{Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)

	records := m.Records()
	records[0].ID = "changed"

	assert.NotEqual(t, RecordID("changed"), m.Records()[0].ID)
}

func TestMemoryAppendCancelledContext(t *testing.T) {
	m := newTestMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Append(ctx, Record{Payload: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.Len())
}

func TestMemoryConcurrentAppend(t *testing.T) {
	m := newTestMemory()

	const numGoroutines = 50
	const numIterations = 20

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				if _, err := m.Append(context.Background(), Record{Payload: json.RawMessage(`{}`)}); err != nil {
					t.Errorf("unexpected append error: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, numGoroutines*numIterations, m.Len())

	seen := make(map[RecordID]bool)
	for _, r := range m.Records() {
		assert.False(t, seen[r.ID], "duplicate record id %s", r.ID)
		seen[r.ID] = true
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", User: "orders", Password: "secret", Name: "orders"}
	assert.Equal(t, "host=db port=5432 user=orders password=secret dbname=orders sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}
