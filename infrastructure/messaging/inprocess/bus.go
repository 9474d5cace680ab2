// Package inprocess implements the event bus as synchronous in-process
// dispatch. Handlers run on the publisher's goroutine; a failing handler is
// logged and does not stop delivery to the others.
package inprocess

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"curricula/application/ports"
	"curricula/domain/events"
)

// EventBus is an in-process ports.EventBus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]ports.EventHandler
	logger   *zap.Logger
}

func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		handlers: make(map[string][]ports.EventHandler),
		logger:   logger,
	}
}

// Publish sends a single event
func (b *EventBus) Publish(ctx context.Context, event events.DomainEvent) error {
	b.mu.RLock()
	handlers := append([]ports.EventHandler(nil), b.handlers[event.GetEventType()]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if !h.CanHandle(event.GetEventType()) {
			continue
		}
		if err := h.Handle(ctx, event); err != nil {
			b.logger.Warn("event handler failed",
				zap.String("event_type", event.GetEventType()),
				zap.Error(err))
		}
	}
	return nil
}

// PublishBatch sends multiple events
func (b *EventBus) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	for _, event := range batch {
		if err := b.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a handler for an event type
func (b *EventBus) Subscribe(eventType string, handler ports.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// Unsubscribe removes a handler
func (b *EventBus) Unsubscribe(eventType string, handler ports.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.handlers[eventType]
	for i, h := range handlers {
		if h == handler {
			b.handlers[eventType] = append(handlers[:i], handlers[i+1:]...)
			break
		}
	}
	return nil
}
