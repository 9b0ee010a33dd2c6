// Package stock implements the reservation ledger: optimistic-CAS
// lock / confirm / release / adjust over per-(tenant, store, item,
// location) rows. Every mutation follows the read-then-conditional-update
// cycle; a lost race is retried up to a bounded budget, a shortage never is.
package stock

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	domainErrors "github.com/storecraft/commerce-core/internal/domain/errors"
	"github.com/storecraft/commerce-core/internal/domain/stock"
	"github.com/storecraft/commerce-core/internal/infrastructure/observability"
)

const defaultCASRetries = 3

// Reservation is the outcome of a successful stock lock.
type Reservation struct {
	Key        stock.Key
	GrantedQty int64
	Version    int64
}

// Ledger mutates stock rows through the version-CAS path. Rows must
// never be written around it.
type Ledger struct {
	repo       stock.Repository
	maxRetries int
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// NewLedger creates a Ledger with the given CAS retry budget.
func NewLedger(repo stock.Repository, maxRetries int, logger zerolog.Logger, metrics *observability.Metrics) *Ledger {
	if maxRetries <= 0 {
		maxRetries = defaultCASRetries
	}
	return &Ledger{repo: repo, maxRetries: maxRetries, logger: logger, metrics: metrics}
}

// Lock reserves qty units: verifies availability against the current
// row, then increments lockedQty guarded by the version read. A version
// conflict refreshes the row and retries; a shortage fails immediately.
func (l *Ledger) Lock(ctx context.Context, key stock.Key, qty int64, requestID string) (*Reservation, error) {
	if qty <= 0 {
		return nil, domainErrors.ErrInvalidQuantity
	}

	for attempt := 0; attempt < l.maxRetries; attempt++ {
		row, err := l.repo.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !row.CanLock(qty) {
			l.count("lock", "shortage")
			return nil, fmt.Errorf("lock %d units, %d available: %w",
				qty, row.Available(), domainErrors.ErrInsufficientStock)
		}

		updated, err := l.repo.IncreaseLocked(ctx, key, qty, row.Version)
		if err != nil {
			return nil, err
		}
		if !updated {
			l.conflict("lock")
			continue
		}

		after := *row
		after.LockedQty += qty
		after.Version++
		if err := l.repo.AddTxn(ctx, stock.NewTxn(stock.TxnLock, row, &after, qty, requestID)); err != nil {
			return nil, err
		}
		l.count("lock", "success")
		return &Reservation{Key: key, GrantedQty: qty, Version: after.Version}, nil
	}
	return nil, l.exhausted("lock", key)
}

// Confirm makes a reservation permanent: totalQty and lockedQty both
// drop by qty.
func (l *Ledger) Confirm(ctx context.Context, key stock.Key, qty int64, requestID string) (int64, error) {
	if qty <= 0 {
		return 0, domainErrors.ErrInvalidQuantity
	}

	for attempt := 0; attempt < l.maxRetries; attempt++ {
		row, err := l.repo.Get(ctx, key)
		if err != nil {
			return 0, err
		}
		if row.LockedQty < qty {
			l.count("confirm", "shortage")
			return 0, fmt.Errorf("confirm %d units, %d locked: %w",
				qty, row.LockedQty, domainErrors.ErrInsufficientStock)
		}

		updated, err := l.repo.ConfirmDeduct(ctx, key, qty, row.Version)
		if err != nil {
			return 0, err
		}
		if !updated {
			l.conflict("confirm")
			continue
		}

		after := *row
		after.TotalQty -= qty
		after.LockedQty -= qty
		after.Version++
		if err := l.repo.AddTxn(ctx, stock.NewTxn(stock.TxnConfirm, row, &after, qty, requestID)); err != nil {
			return 0, err
		}
		l.count("confirm", "success")
		return after.Version, nil
	}
	return 0, l.exhausted("confirm", key)
}

// Release abandons a reservation: lockedQty drops by qty and the stock
// returns to available.
func (l *Ledger) Release(ctx context.Context, key stock.Key, qty int64, requestID string) (int64, error) {
	if qty <= 0 {
		return 0, domainErrors.ErrInvalidQuantity
	}

	for attempt := 0; attempt < l.maxRetries; attempt++ {
		row, err := l.repo.Get(ctx, key)
		if err != nil {
			return 0, err
		}
		if row.LockedQty < qty {
			l.count("release", "shortage")
			return 0, fmt.Errorf("release %d units, %d locked: %w",
				qty, row.LockedQty, domainErrors.ErrInsufficientStock)
		}

		updated, err := l.repo.DecreaseLocked(ctx, key, qty, row.Version)
		if err != nil {
			return 0, err
		}
		if !updated {
			l.conflict("release")
			continue
		}

		after := *row
		after.LockedQty -= qty
		after.Version++
		if err := l.repo.AddTxn(ctx, stock.NewTxn(stock.TxnRelease, row, &after, qty, requestID)); err != nil {
			return 0, err
		}
		l.count("release", "success")
		return after.Version, nil
	}
	return 0, l.exhausted("release", key)
}

// Adjust sets totalQty and safetyStock directly, bypassing the
// reserve/confirm lifecycle but still guarded by the version.
func (l *Ledger) Adjust(ctx context.Context, key stock.Key, totalQty, safetyStock int64, requestID string) (int64, error) {
	if totalQty < 0 || safetyStock < 0 {
		return 0, domainErrors.ErrInvalidQuantity
	}

	for attempt := 0; attempt < l.maxRetries; attempt++ {
		row, err := l.repo.Get(ctx, key)
		if err != nil {
			return 0, err
		}
		if totalQty < row.LockedQty {
			l.count("adjust", "shortage")
			return 0, fmt.Errorf("adjust total to %d below %d locked: %w",
				totalQty, row.LockedQty, domainErrors.ErrInsufficientStock)
		}

		updated, err := l.repo.Adjust(ctx, key, totalQty, safetyStock, row.Version)
		if err != nil {
			return 0, err
		}
		if !updated {
			l.conflict("adjust")
			continue
		}

		after := *row
		after.TotalQty = totalQty
		after.SafetyStock = safetyStock
		after.Version++
		if err := l.repo.AddTxn(ctx, stock.NewTxn(stock.TxnAdjust, row, &after, totalQty-row.TotalQty, requestID)); err != nil {
			return 0, err
		}
		l.count("adjust", "success")
		return after.Version, nil
	}
	return 0, l.exhausted("adjust", key)
}

func (l *Ledger) exhausted(op string, key stock.Key) error {
	l.count(op, "conflict")
	l.logger.Warn().
		Str("operation", op).
		Str("tenant_id", key.TenantID).
		Str("item_id", key.ItemID).
		Int("budget", l.maxRetries).
		Msg("stock CAS retries exhausted")
	return fmt.Errorf("%s %s/%s/%s/%s after %d attempts: %w",
		op, key.TenantID, key.StoreID, key.ItemID, key.LocationID,
		l.maxRetries, domainErrors.ErrVersionConflict)
}

func (l *Ledger) count(op, outcome string) {
	if l.metrics != nil {
		l.metrics.StockMutations.WithLabelValues(op, outcome).Inc()
	}
}

func (l *Ledger) conflict(op string) {
	if l.metrics != nil {
		l.metrics.CASConflicts.WithLabelValues(op).Inc()
	}
}
