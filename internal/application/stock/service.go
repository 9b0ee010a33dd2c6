package stock

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/storecraft/commerce-core/internal/dispatcher"
	"github.com/storecraft/commerce-core/internal/domain/outbox"
	"github.com/storecraft/commerce-core/internal/domain/stock"
)

// AvailabilityNamespace is the cache namespace invalidated whenever
// store availability changes.
const AvailabilityNamespace = "availability"

// TransactionManager defines the interface for transaction management.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// OutboxWriter defines the interface for writing to the transactional outbox.
type OutboxWriter interface {
	Insert(ctx context.Context, msg *outbox.Message) error
}

// Service exposes the stock operations to the transport layer. Every
// mutation runs in one transaction together with its journal entry and
// the availability invalidation row.
type Service struct {
	ledger    *Ledger
	repo      stock.Repository
	outbox    OutboxWriter
	txManager TransactionManager
	logger    zerolog.Logger
}

// NewService wires the stock service.
func NewService(ledger *Ledger, repo stock.Repository, outboxWriter OutboxWriter, txManager TransactionManager, logger zerolog.Logger) *Service {
	return &Service{
		ledger:    ledger,
		repo:      repo,
		outbox:    outboxWriter,
		txManager: txManager,
		logger:    logger,
	}
}

// Get returns the current row.
func (s *Service) Get(ctx context.Context, key stock.Key) (*stock.Row, error) {
	return s.repo.Get(ctx, key)
}

// Create registers a new stock row.
func (s *Service) Create(ctx context.Context, row *stock.Row) error {
	if err := row.Validate(); err != nil {
		return err
	}
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, row); err != nil {
			return err
		}
		return s.invalidate(txCtx, row.TenantID)
	})
}

// Lock reserves qty units.
func (s *Service) Lock(ctx context.Context, key stock.Key, qty int64, requestID string) (*Reservation, error) {
	var res *Reservation
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		res, err = s.ledger.Lock(txCtx, key, qty, requestID)
		if err != nil {
			return err
		}
		return s.invalidate(txCtx, key.TenantID)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Confirm deducts a reservation permanently.
func (s *Service) Confirm(ctx context.Context, key stock.Key, qty int64, requestID string) (int64, error) {
	return s.mutate(ctx, key, func(txCtx context.Context) (int64, error) {
		return s.ledger.Confirm(txCtx, key, qty, requestID)
	})
}

// Release returns a reservation to available stock.
func (s *Service) Release(ctx context.Context, key stock.Key, qty int64, requestID string) (int64, error) {
	return s.mutate(ctx, key, func(txCtx context.Context) (int64, error) {
		return s.ledger.Release(txCtx, key, qty, requestID)
	})
}

// Adjust overwrites totalQty and safetyStock.
func (s *Service) Adjust(ctx context.Context, key stock.Key, totalQty, safetyStock int64, requestID string) (int64, error) {
	return s.mutate(ctx, key, func(txCtx context.Context) (int64, error) {
		return s.ledger.Adjust(txCtx, key, totalQty, safetyStock, requestID)
	})
}

func (s *Service) mutate(ctx context.Context, key stock.Key, fn func(ctx context.Context) (int64, error)) (int64, error) {
	var version int64
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		version, err = fn(txCtx)
		if err != nil {
			return err
		}
		return s.invalidate(txCtx, key.TenantID)
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *Service) invalidate(ctx context.Context, tenantID string) error {
	msg, err := dispatcher.NewInvalidationMessage(tenantID, "store", AvailabilityNamespace, nil)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, msg)
}
