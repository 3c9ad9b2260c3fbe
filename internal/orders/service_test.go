package orders

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/jogardn/order-summary/internal/events"
	"github.com/jogardn/order-summary/internal/store"
	"github.com/jogardn/order-summary/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type recordingPublisher struct {
	mutex  sync.Mutex
	events []events.OrderAcceptedEvent
	err    error
}

func (p *recordingPublisher) PublishOrderAccepted(ctx context.Context, event events.OrderAcceptedEvent) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type recordingNotifier struct {
	mutex    sync.Mutex
	messages []interface{}
}

func (n *recordingNotifier) Broadcast(messageType string, data interface{}, source string) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.messages = append(n.messages, data)
}

type failingStore struct{}

func (failingStore) Append(ctx context.Context, record store.Record) (store.RecordID, error) {
	return "", errors.New("disk full")
}

func (failingStore) Ping(ctx context.Context) error {
	return errors.New("disk full")
}

func penAndMug() models.Order {
	email := "a@b.com"
	return models.Order{
		Email: &email,
		Products: []models.Product{
			{ProductName: "Pen", Price: 1.5, Quantity: 2},
			{ProductName: "Mug", Price: 10.0, Quantity: 1},
		},
	}
}

func TestSubmitReturnsSummary(t *testing.T) {
	memory := store.NewMemory(quietLogger())
	service := NewService(memory, quietLogger())

	summary, err := service.Submit(context.Background(), 7, penAndMug())
	require.NoError(t, err)

	assert.Equal(t, models.Summary{ID: 7, Quantity: 3, TotalPrice: 13.0}, summary)
}

func TestSubmitStoresSnapshotWithoutCustomerID(t *testing.T) {
	memory := store.NewMemory(quietLogger())
	service := NewService(memory, quietLogger())

	_, err := service.Submit(context.Background(), 7, penAndMug())
	require.NoError(t, err)

	records := memory.Records()
	require.Len(t, records, 1)

	var snapshot map[string]interface{}
	require.NoError(t, json.Unmarshal(records[0].Payload, &snapshot))
	assert.Equal(t, "a@b.com", snapshot["email"])
	assert.Equal(t, 13.0, snapshot["total_price"])
	assert.Equal(t, 3.0, snapshot["total_quantity"])
	assert.Len(t, snapshot["products"], 2)
	assert.NotContains(t, snapshot, "id")
	assert.NotContains(t, snapshot, "customer_id")
}

func TestSubmitTwiceAppendsTwice(t *testing.T) {
	memory := store.NewMemory(quietLogger())
	service := NewService(memory, quietLogger())

	_, err := service.Submit(context.Background(), 1, penAndMug())
	require.NoError(t, err)
	_, err = service.Submit(context.Background(), 1, penAndMug())
	require.NoError(t, err)

	records := memory.Records()
	require.Len(t, records, 2)
	assert.NotEqual(t, records[0].ID, records[1].ID)
	assert.JSONEq(t, string(records[0].Payload), string(records[1].Payload))
}

func TestSubmitEmptyOrder(t *testing.T) {
	memory := store.NewMemory(quietLogger())
	service := NewService(memory, quietLogger())

	summary, err := service.Submit(context.Background(), 1, models.Order{Products: []models.Product{}})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Quantity)
	assert.Equal(t, 0.0, summary.TotalPrice)
	assert.Equal(t, 1, memory.Len())
}

func TestSubmitStoreFailure(t *testing.T) {
	publisher := &recordingPublisher{}
	service := NewService(failingStore{}, quietLogger())
	service.SetPublisher(publisher)

	_, err := service.Submit(context.Background(), 1, penAndMug())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store order")
	assert.Empty(t, publisher.events)
}

func TestSubmitPublishesAndBroadcasts(t *testing.T) {
	memory := store.NewMemory(quietLogger())
	publisher := &recordingPublisher{}
	notifier := &recordingNotifier{}

	service := NewService(memory, quietLogger())
	service.SetPublisher(publisher)
	service.SetNotifier(notifier)

	summary, err := service.Submit(context.Background(), 42, penAndMug())
	require.NoError(t, err)

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	assert.Equal(t, string(memory.Records()[0].ID), event.RecordID)
	assert.Equal(t, 3, event.TotalQuantity)
	assert.Equal(t, 13.0, event.TotalPrice)

	require.Len(t, notifier.messages, 1)
	assert.Equal(t, summary, notifier.messages[0])
}

func TestSubmitIgnoresPublishFailure(t *testing.T) {
	memory := store.NewMemory(quietLogger())
	service := NewService(memory, quietLogger())
	service.SetPublisher(&recordingPublisher{err: errors.New("broker down")})

	summary, err := service.Submit(context.Background(), 42, penAndMug())
	require.NoError(t, err)
	assert.Equal(t, int64(42), summary.ID)
	assert.Equal(t, 1, memory.Len())
}

func TestSubmitConcurrent(t *testing.T) {
	memory := store.NewMemory(quietLogger())
	service := NewService(memory, quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := service.Submit(context.Background(), id, penAndMug()); err != nil {
				t.Errorf("submit %d: %v", id, err)
			}
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, 100, memory.Len())
}

func TestPing(t *testing.T) {
	assert.NoError(t, NewService(store.NewMemory(quietLogger()), quietLogger()).Ping(context.Background()))
	assert.Error(t, NewService(failingStore{}, quietLogger()).Ping(context.Background()))
}
