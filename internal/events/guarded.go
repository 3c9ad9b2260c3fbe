package events

import (
	"context"

	"github.com/jogardn/order-summary/internal/circuitbreaker"
)

// GuardedPublisher short-circuits publishing while the broker keeps failing.
type GuardedPublisher struct {
	next    Publisher
	breaker *circuitbreaker.CircuitBreaker
}

func NewGuardedPublisher(next Publisher, breaker *circuitbreaker.CircuitBreaker) *GuardedPublisher {
	return &GuardedPublisher{next: next, breaker: breaker}
}

func (g *GuardedPublisher) PublishOrderAccepted(ctx context.Context, event OrderAcceptedEvent) error {
	return g.breaker.Execute(func() error {
		return g.next.PublishOrderAccepted(ctx, event)
	})
}
