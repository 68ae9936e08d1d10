// Package eventing provides the in-process event bus connecting ingest
// to alert evaluation and the live feed.
package eventing

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Event is anything published on the bus.
type Event interface {
	EventType() string
}

// Handler consumes a published event.
type Handler func(ctx context.Context, event Event) error

// ErrInvalidEventType indicates a handler received an unexpected type.
var ErrInvalidEventType = errors.New("eventing: invalid event type")

type namedHandler struct {
	name    string
	handler Handler
}

// InMemoryBus fans events out to subscribers synchronously.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
}

// NewInMemoryBus constructs a bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[string][]namedHandler)}
}

// Subscribe registers a named handler for an event type.
func (b *InMemoryBus) Subscribe(eventType, name string, handler Handler) {
	if b == nil || eventType == "" || handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], namedHandler{name: name, handler: handler})
	b.mu.Unlock()
}

// Publish delivers the event to every subscriber. Handler errors are
// collected and joined; delivery continues past failures.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) error {
	if b == nil || event == nil {
		return nil
	}
	b.mu.RLock()
	subscribers := append([]namedHandler(nil), b.handlers[event.EventType()]...)
	b.mu.RUnlock()

	var errs []error
	for _, sub := range subscribers {
		if err := sub.handler(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sub.name, err))
		}
	}
	return errors.Join(errs...)
}

// SubscribeTyped registers a handler for a concrete event type, hiding
// the type assertion.
func SubscribeTyped[T Event](bus *InMemoryBus, name string, handler func(ctx context.Context, event T) error) {
	var zero T
	bus.Subscribe(zero.EventType(), name, func(ctx context.Context, event Event) error {
		typed, ok := event.(T)
		if !ok {
			return ErrInvalidEventType
		}
		return handler(ctx, typed)
	})
}
