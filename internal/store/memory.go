package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Memory keeps records for the life of the process.
type Memory struct {
	mutex   sync.RWMutex
	records []Record
	logger  *logrus.Logger
}

func NewMemory(logger *logrus.Logger) *Memory {
	return &Memory{logger: logger}
}

func (m *Memory) Append(ctx context.Context, record Record) (RecordID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if record.ID == "" {
		record.ID = RecordID(uuid.New().String())
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	m.mutex.Lock()
	m.records = append(m.records, record)
	count := len(m.records)
	m.mutex.Unlock()

	m.logger.WithFields(logrus.Fields{
		"record_id":    record.ID,
		"record_count": count,
	}).Debug("Order snapshot appended to memory store")

	return record.ID, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

func (m *Memory) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.records)
}

// Records returns a copy of the stored records in insertion order.
func (m *Memory) Records() []Record {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
