package events

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"quizbee-service/internal/domain"
)

// Handler reacts to a lifecycle event. A returned error is logged, never propagated.
type Handler func(ctx context.Context, event domain.Event) error

// Bus fans events out to handlers registered per kind, in registration order.
// Construct one per process (or per test) and inject it.
type Bus struct {
	log *zap.Logger

	mu       sync.RWMutex
	handlers map[domain.EventKind][]namedHandler
}

type namedHandler struct {
	name string
	fn   Handler
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		log:      log,
		handlers: make(map[domain.EventKind][]namedHandler),
	}
}

// Subscribe registers fn for kind. name identifies the handler in logs.
func (b *Bus) Subscribe(kind domain.EventKind, name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], namedHandler{name: name, fn: fn})
}

// SubscriberCount returns the number of handlers for kind.
func (b *Bus) SubscriberCount(kind domain.EventKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[kind])
}

// Publish invokes every handler for the event's kind synchronously. A failing
// or panicking handler is logged and the remaining handlers still run.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	handlers := append([]namedHandler(nil), b.handlers[event.Kind]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.log.Debug("no observers", zap.String("kind", string(event.Kind)))
		return
	}
	for _, h := range handlers {
		if err := b.invoke(ctx, h, event); err != nil {
			b.log.Error("event handler failed",
				zap.String("kind", string(event.Kind)),
				zap.String("handler", h.name),
				zap.Error(err))
		}
	}
}

func (b *Bus) invoke(ctx context.Context, h namedHandler, event domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.fn(ctx, event)
}
