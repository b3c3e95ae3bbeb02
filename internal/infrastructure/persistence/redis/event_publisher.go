package redis

import (
	"context"
	"time"

	"github.com/academic-erp/erp-backend/internal/domain/shared"
)

// EventPublisher forwards domain events to Redis pub/sub, one channel per
// event type (erp:events:<type>). It is meant to be subscribed to the
// in-process event bus.
type EventPublisher struct {
	cache   *Cache
	timeout time.Duration
}

// NewEventPublisher bounds each publish by timeout.
func NewEventPublisher(cache *Cache, timeout time.Duration) *EventPublisher {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &EventPublisher{cache: cache, timeout: timeout}
}

// Handle publishes e. It has the shared.EventHandler signature.
func (p *EventPublisher) Handle(e shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.cache.Publish(ctx, EventChannel(string(e.EventType())), e)
}
