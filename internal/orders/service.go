package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jogardn/order-summary/internal/events"
	"github.com/jogardn/order-summary/internal/store"
	"github.com/jogardn/order-summary/pkg/models"
	"github.com/sirupsen/logrus"
)

const OrderAcceptedMessage = "order_accepted"

type Notifier interface {
	Broadcast(messageType string, data interface{}, source string)
}

type Service struct {
	store     store.Store
	publisher events.Publisher
	notifier  Notifier
	logger    *logrus.Logger
}

func NewService(st store.Store, logger *logrus.Logger) *Service {
	return &Service{
		store:  st,
		logger: logger,
	}
}

func (s *Service) SetPublisher(publisher events.Publisher) {
	s.publisher = publisher
}

func (s *Service) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// Submit stores a snapshot of the order and returns its summary. The customer
// id is echoed in the summary only; it is not written to the store.
func (s *Service) Submit(ctx context.Context, customerID int64, order models.Order) (models.Summary, error) {
	summary := models.Summary{
		ID:         customerID,
		Quantity:   order.TotalQuantity(),
		TotalPrice: order.TotalPrice(),
	}

	payload, err := json.Marshal(order)
	if err != nil {
		return models.Summary{}, fmt.Errorf("failed to serialize order: %w", err)
	}

	recordID, err := s.store.Append(ctx, store.Record{Payload: payload, CreatedAt: time.Now()})
	if err != nil {
		return models.Summary{}, fmt.Errorf("failed to store order: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"customer_id":    customerID,
		"record_id":      recordID,
		"products_count": len(order.Products),
		"total_quantity": summary.Quantity,
		"total_price":    summary.TotalPrice,
	}).Info("Order accepted")

	if s.publisher != nil {
		event := events.OrderAcceptedEvent{
			RecordID:      string(recordID),
			TotalQuantity: summary.Quantity,
			TotalPrice:    summary.TotalPrice,
		}
		if err := s.publisher.PublishOrderAccepted(ctx, event); err != nil {
			// The order is already stored.
			s.logger.WithError(err).WithField("record_id", recordID).Warn("Failed to publish order accepted event")
		}
	}

	if s.notifier != nil {
		s.notifier.Broadcast(OrderAcceptedMessage, summary, "order-service")
	}

	return summary, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
