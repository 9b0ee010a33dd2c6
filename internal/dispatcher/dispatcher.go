// Package dispatcher polls the transactional outbox and delivers
// messages to registered handlers. Delivery is at-least-once: handlers
// must be idempotent or guard themselves with the idempotency package.
package dispatcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	domainErrors "github.com/storecraft/commerce-core/internal/domain/errors"
	"github.com/storecraft/commerce-core/internal/domain/outbox"
	"github.com/storecraft/commerce-core/internal/infrastructure/observability"
)

// Handler consumes one outbox message. A non-nil error marks the message
// failed and leaves it eligible for the next poll.
type Handler func(ctx context.Context, msg *outbox.Message) error

// TransactionManager scopes one poll cycle so the batch claim
// (FOR UPDATE SKIP LOCKED) and the status updates commit together.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Config tunes the dispatcher.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Dispatcher delivers pending outbox messages in creation order.
type Dispatcher struct {
	repo      outbox.Repository
	txManager TransactionManager
	handlers  map[string][]Handler
	cfg       Config
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// New creates a Dispatcher. Zero config fields get sane defaults.
func New(repo outbox.Repository, txManager TransactionManager, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Dispatcher{
		repo:      repo,
		txManager: txManager,
		handlers:  make(map[string][]Handler),
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// Register adds a handler for an event type. Registration happens at
// startup, before Run.
func (d *Dispatcher) Register(eventType string, h Handler) {
	d.handlers[eventType] = append(d.handlers[eventType], h)
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := d.Poll(ctx); err != nil {
			d.logger.Error().Err(err).Msg("outbox poll failed")
		}
	}
}

// Poll claims one batch of deliverable messages, oldest first, and
// dispatches each. The claim and the resulting status transitions share
// one transaction so a crash mid-batch releases the rows untouched.
func (d *Dispatcher) Poll(ctx context.Context) error {
	start := time.Now()
	defer func() {
		if d.metrics != nil {
			d.metrics.OutboxPollDuration.Observe(time.Since(start).Seconds())
		}
	}()

	return d.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		messages, err := d.repo.GetDeliverable(txCtx, d.cfg.BatchSize)
		if err != nil {
			return err
		}
		for _, msg := range messages {
			d.dispatch(txCtx, msg)
		}
		return nil
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, msg *outbox.Message) {
	if msg.Terminal() {
		return
	}

	err := d.invokeHandlers(ctx, msg)
	if err == nil {
		now := time.Now()
		if markErr := d.repo.MarkDelivered(ctx, msg.ID, now); markErr != nil {
			d.logger.Error().Err(markErr).Str("outbox_id", msg.ID.String()).Msg("failed to mark message delivered")
			return
		}
		msg.Status = outbox.StatusDelivered
		msg.DeliveredAt = &now
		d.count(msg.EventType, "delivered")
		return
	}

	attempts := msg.Attempts + 1
	dead := attempts >= d.cfg.MaxAttempts
	if markErr := d.repo.MarkFailed(ctx, msg.ID, attempts, dead); markErr != nil {
		d.logger.Error().Err(markErr).Str("outbox_id", msg.ID.String()).Msg("failed to mark message failed")
		return
	}
	msg.Attempts = attempts
	if dead {
		msg.Status = outbox.StatusDead
		d.count(msg.EventType, "dead")
		if d.metrics != nil {
			d.metrics.OutboxDeadLetters.Inc()
		}
		d.logger.Error().Err(err).
			Str("outbox_id", msg.ID.String()).
			Str("event_type", msg.EventType).
			Int("attempts", attempts).
			Msg("outbox message dead-lettered")
		return
	}
	msg.Status = outbox.StatusFailed
	d.count(msg.EventType, "failed")
	d.logger.Warn().Err(err).
		Str("outbox_id", msg.ID.String()).
		Str("event_type", msg.EventType).
		Int("attempts", attempts).
		Msg("outbox delivery failed, will retry")
}

func (d *Dispatcher) invokeHandlers(ctx context.Context, msg *outbox.Message) error {
	handlers, ok := d.handlers[msg.EventType]
	if !ok || len(handlers) == 0 {
		return domainErrors.ErrUnknownEventType
	}
	for _, h := range handlers {
		if err := h(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) count(eventType, outcome string) {
	if d.metrics != nil {
		d.metrics.OutboxDeliveries.WithLabelValues(eventType, outcome).Inc()
	}
}
