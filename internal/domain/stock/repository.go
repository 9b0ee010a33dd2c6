package stock

import (
	"context"
)

// Repository persists stock rows. Every mutation is a conditional update
// guarded by the row version; the boolean result reports whether the
// guarded update applied (false means a concurrent writer intervened).
type Repository interface {
	// Get loads the row for key, or domainErrors.ErrStockNotFound.
	Get(ctx context.Context, key Key) (*Row, error)

	// Create inserts a new row at version 1.
	Create(ctx context.Context, row *Row) error

	// IncreaseLocked reserves qty: lockedQty += qty, version++.
	IncreaseLocked(ctx context.Context, key Key, qty, expectedVersion int64) (bool, error)

	// ConfirmDeduct makes a reservation permanent: totalQty -= qty,
	// lockedQty -= qty, version++.
	ConfirmDeduct(ctx context.Context, key Key, qty, expectedVersion int64) (bool, error)

	// DecreaseLocked abandons a reservation: lockedQty -= qty, version++.
	DecreaseLocked(ctx context.Context, key Key, qty, expectedVersion int64) (bool, error)

	// Adjust sets totalQty and safetyStock directly, version++.
	Adjust(ctx context.Context, key Key, totalQty, safetyStock, expectedVersion int64) (bool, error)

	// AddTxn appends a journal entry (same transaction as the mutation
	// when the caller runs inside one).
	AddTxn(ctx context.Context, txn *Txn) error
}
