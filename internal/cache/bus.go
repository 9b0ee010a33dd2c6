package cache

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Handler consumes an invalidation event. Handlers are registered at
// process startup; there is no unsubscribe.
type Handler func(ctx context.Context, evt InvalidationEvent) error

// Bus fans invalidation events out to in-process subscribers. Delivery is
// synchronous, on the calling goroutine, in registration order. A failing
// subscriber never blocks delivery to the ones after it.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Handler
	logger      zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a handler for all future broadcasts.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, h)
}

// Broadcast delivers evt to every registered subscriber.
func (b *Bus) Broadcast(ctx context.Context, evt InvalidationEvent) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.subscribers))
	copy(handlers, b.subscribers)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ctx, h, evt)
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, evt InvalidationEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).
				Str("tenant_id", evt.TenantID).Str("namespace", evt.Namespace).
				Msg("invalidation subscriber panicked")
		}
	}()
	if err := h(ctx, evt); err != nil {
		b.logger.Warn().Err(err).
			Str("tenant_id", evt.TenantID).Str("namespace", evt.Namespace).
			Msg("invalidation subscriber failed")
	}
}
