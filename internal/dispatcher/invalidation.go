package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/storecraft/commerce-core/internal/cache"
	"github.com/storecraft/commerce-core/internal/domain/outbox"
	"github.com/storecraft/commerce-core/internal/infrastructure/observability"
)

// EventTypeInvalidation is the outbox event type carrying cache
// invalidation requests recorded by business transactions.
const EventTypeInvalidation = "cache.invalidation"

// invalidationPayload is the outbox body written by business flows.
type invalidationPayload struct {
	TenantID     string   `json:"tenant_id"`
	Scope        string   `json:"scope"`
	Namespace    string   `json:"namespace"`
	AffectedKeys []string `json:"affected_keys,omitempty"`
}

// StreamPublisher pushes an invalidation event to the cross-instance
// channel.
type StreamPublisher interface {
	PublishInvalidation(ctx context.Context, evt cache.InvalidationEvent) error
}

// InvalidationHandler turns a durable invalidation outbox message into
// an epoch bump: local subscribers hear it through the bus inside
// BumpEpoch, remote instances through the stream publish. A failed
// publish fails the message so the outbox retries it.
type InvalidationHandler struct {
	registry *cache.Registry
	producer StreamPublisher
	breaker  *gobreaker.CircuitBreaker[any]
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewInvalidationHandler wraps the stream publish in a circuit breaker
// so a misbehaving channel does not stall every poll cycle.
func NewInvalidationHandler(registry *cache.Registry, producer StreamPublisher, logger zerolog.Logger, metrics *observability.Metrics) *InvalidationHandler {
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "invalidation-stream",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
	})
	return &InvalidationHandler{
		registry: registry,
		producer: producer,
		breaker:  breaker,
		logger:   logger,
		metrics:  metrics,
	}
}

// Handle implements the dispatcher Handler signature.
func (h *InvalidationHandler) Handle(ctx context.Context, msg *outbox.Message) error {
	var p invalidationPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return fmt.Errorf("decode invalidation payload %s: %w", msg.ID, err)
	}

	epoch, err := h.registry.BumpEpoch(ctx, p.TenantID, p.Namespace)
	if err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.EpochBumps.WithLabelValues(p.Namespace).Inc()
	}

	evt := cache.NewInvalidationEvent(p.TenantID, p.Scope, p.Namespace, epoch)
	evt.AffectedKeys = p.AffectedKeys

	if _, err := h.breaker.Execute(func() (any, error) {
		return nil, h.producer.PublishInvalidation(ctx, evt)
	}); err != nil {
		return fmt.Errorf("publish invalidation for %s/%s: %w", p.TenantID, p.Namespace, err)
	}
	if h.metrics != nil {
		h.metrics.InvalidationFans.Inc()
	}

	h.logger.Debug().
		Str("tenant_id", p.TenantID).
		Str("namespace", p.Namespace).
		Int64("epoch", epoch).
		Msg("invalidation propagated")
	return nil
}

// NewInvalidationMessage builds the outbox message a business
// transaction appends when its write invalidates a cache namespace.
func NewInvalidationMessage(tenantID, scope, namespace string, affectedKeys []string) (*outbox.Message, error) {
	return outbox.NewMessage("cache", tenantID+":"+namespace, EventTypeInvalidation, invalidationPayload{
		TenantID:     tenantID,
		Scope:        scope,
		Namespace:    namespace,
		AffectedKeys: affectedKeys,
	})
}
