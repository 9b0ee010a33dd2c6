// Package order implements order submission: the flow that stitches the
// concurrency primitives together. Admission goes rate limiter first,
// then a per-buyer distributed lock, then the idempotency guard; the
// stock reservations, the order event and the cache invalidation row all
// commit in one transaction.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	stockApp "github.com/storecraft/commerce-core/internal/application/stock"
	"github.com/storecraft/commerce-core/internal/dispatcher"
	domainErrors "github.com/storecraft/commerce-core/internal/domain/errors"
	"github.com/storecraft/commerce-core/internal/domain/outbox"
	"github.com/storecraft/commerce-core/internal/domain/stock"
	"github.com/storecraft/commerce-core/internal/idempotency"
	"github.com/storecraft/commerce-core/internal/infrastructure/observability"
	"github.com/storecraft/commerce-core/internal/lock"
	"github.com/storecraft/commerce-core/internal/ratelimit"
)

const sceneSubmit = "order.submit"

// Line is one requested item reservation.
type Line struct {
	ItemID     string
	LocationID string
	Qty        int64
}

// SubmitRequest carries one order submission attempt. SubmitToken is the
// caller-supplied idempotency token.
type SubmitRequest struct {
	TenantID    string
	StoreID     string
	BuyerID     string
	SubmitToken string
	Lines       []Line
}

// SubmitResult reports the created order and its reservations.
type SubmitResult struct {
	OrderID      uuid.UUID
	Reservations []stockApp.Reservation
}

// Config tunes the guards around submission.
type Config struct {
	LockWait      time.Duration
	LockLease     time.Duration
	InProgressTTL time.Duration
	SuccessTTL    time.Duration
	RateLimit     int64
	RateWindow    time.Duration
}

// SubmitService handles order submission.
type SubmitService struct {
	locks     *lock.DistributedLock
	guard     *idempotency.Guard
	limiter   *ratelimit.Limiter
	ledger    *stockApp.Ledger
	outbox    OutboxWriter
	txManager TransactionManager
	cfg       Config
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// NewSubmitService wires the submission flow.
func NewSubmitService(
	locks *lock.DistributedLock,
	guard *idempotency.Guard,
	limiter *ratelimit.Limiter,
	ledger *stockApp.Ledger,
	outboxWriter OutboxWriter,
	txManager TransactionManager,
	cfg Config,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *SubmitService {
	return &SubmitService{
		locks:     locks,
		guard:     guard,
		limiter:   limiter,
		ledger:    ledger,
		outbox:    outboxWriter,
		txManager: txManager,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// Execute submits an order. Contention results (rate limited, lock held,
// duplicate token, CAS exhaustion) come back as typed errors the caller
// branches on; none of them leaves a partial mutation behind.
func (s *SubmitService) Execute(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if len(req.Lines) == 0 {
		return nil, domainErrors.NewDomainError("empty_order", "order has no lines", nil)
	}
	if req.SubmitToken == "" {
		return nil, domainErrors.NewDomainError("missing_token", "submit token is required", nil)
	}

	rateKey := fmt.Sprintf("order:submit:%s:%s", req.TenantID, req.BuyerID)
	if err := s.limiter.Guard(ctx, rateKey, s.cfg.RateLimit, s.cfg.RateWindow); err != nil {
		s.countRate(err)
		return nil, err
	}
	s.countRate(nil)

	lockKey := fmt.Sprintf("order:submit:%s:%s:%s", req.TenantID, req.StoreID, req.BuyerID)
	var result *SubmitResult
	lockStart := time.Now()
	err := s.locks.WithLock(ctx, lockKey, lock.Options{
		Wait:  s.cfg.LockWait,
		Lease: s.cfg.LockLease,
	}, func(ctx context.Context) error {
		s.observeLockWait("acquired", time.Since(lockStart))
		return s.guard.Execute(ctx, req.SubmitToken, sceneSubmit,
			s.cfg.InProgressTTL, s.cfg.SuccessTTL,
			func(ctx context.Context) error {
				var err error
				result, err = s.submit(ctx, req)
				return err
			})
	})
	s.countGuards(err, time.Since(lockStart))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// submit reserves every line and records the order plus the availability
// invalidation, all in one transaction.
func (s *SubmitService) submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	orderID := uuid.New()
	result := &SubmitResult{OrderID: orderID}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, line := range req.Lines {
			key := stock.Key{
				TenantID:   req.TenantID,
				StoreID:    req.StoreID,
				ItemID:     line.ItemID,
				LocationID: line.LocationID,
			}
			res, err := s.ledger.Lock(txCtx, key, line.Qty, req.SubmitToken)
			if err != nil {
				return err
			}
			result.Reservations = append(result.Reservations, *res)
		}

		orderMsg, err := outbox.NewMessage("order", orderID.String(), "order.submitted", map[string]any{
			"order_id":  orderID.String(),
			"tenant_id": req.TenantID,
			"store_id":  req.StoreID,
			"buyer_id":  req.BuyerID,
			"lines":     len(req.Lines),
		})
		if err != nil {
			return err
		}
		if err := s.outbox.Insert(txCtx, orderMsg); err != nil {
			return err
		}

		invalMsg, err := dispatcher.NewInvalidationMessage(req.TenantID, "store", stockApp.AvailabilityNamespace, nil)
		if err != nil {
			return err
		}
		return s.outbox.Insert(txCtx, invalMsg)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_id", orderID.String()).
		Str("tenant_id", req.TenantID).
		Str("store_id", req.StoreID).
		Int("lines", len(req.Lines)).
		Msg("order submitted")
	return result, nil
}

func (s *SubmitService) countRate(err error) {
	if s.metrics == nil {
		return
	}
	if errors.Is(err, domainErrors.ErrRateLimitExceeded) {
		s.metrics.RateLimitDecisions.WithLabelValues("rejected").Inc()
	} else if err == nil {
		s.metrics.RateLimitDecisions.WithLabelValues("admitted").Inc()
	}
}

func (s *SubmitService) countGuards(err error, lockWait time.Duration) {
	if s.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, domainErrors.ErrLockHeld):
		s.metrics.LockAcquisitions.WithLabelValues("contended").Inc()
		s.observeLockWait("contended", lockWait)
	case errors.Is(err, domainErrors.ErrDuplicateOperation):
		s.metrics.IdempotencyChecks.WithLabelValues(sceneSubmit, "duplicate").Inc()
	case err == nil:
		s.metrics.LockAcquisitions.WithLabelValues("acquired").Inc()
		s.metrics.IdempotencyChecks.WithLabelValues(sceneSubmit, "first").Inc()
	}
}

func (s *SubmitService) observeLockWait(outcome string, wait time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.LockWaitDuration.WithLabelValues(outcome).Observe(wait.Seconds())
}
