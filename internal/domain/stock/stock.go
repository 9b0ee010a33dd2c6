package stock

import (
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/storecraft/commerce-core/internal/domain/errors"
)

// Key identifies one stock row per (tenant, store, item, location).
type Key struct {
	TenantID   string
	StoreID    string
	ItemID     string
	LocationID string
}

// Row is the persisted stock state. The version column is the optimistic
// concurrency token: it increments on every successful mutation, and all
// conditional updates are guarded by it.
type Row struct {
	Key
	TotalQty    int64
	LockedQty   int64
	SafetyStock int64
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Available is the quantity a reservation may still claim.
func (r *Row) Available() int64 {
	return r.TotalQty - r.LockedQty - r.SafetyStock
}

// CanLock reports whether qty more units can be reserved.
func (r *Row) CanLock(qty int64) bool {
	return qty > 0 && r.Available() >= qty
}

// Validate checks the row invariant 0 <= lockedQty <= totalQty.
func (r *Row) Validate() error {
	if r.LockedQty < 0 || r.LockedQty > r.TotalQty {
		return domainErrors.NewDomainError("stock_invariant",
			"lockedQty outside [0, totalQty]", nil)
	}
	return nil
}

// TxnType classifies a journal entry.
type TxnType string

const (
	TxnLock    TxnType = "LOCK"
	TxnConfirm TxnType = "CONFIRM"
	TxnRelease TxnType = "RELEASE"
	TxnAdjust  TxnType = "ADJUST"
)

// Txn is the audit journal row written alongside every stock mutation.
type Txn struct {
	ID           uuid.UUID
	Key
	TxnType      TxnType
	Qty          int64
	BeforeTotal  int64
	AfterTotal   int64
	BeforeLocked int64
	AfterLocked  int64
	RequestID    string
	CreatedAt    time.Time
}

// NewTxn records the before/after of one mutation on row.
func NewTxn(txnType TxnType, before, after *Row, qty int64, requestID string) *Txn {
	return &Txn{
		ID:           uuid.New(),
		Key:          before.Key,
		TxnType:      txnType,
		Qty:          qty,
		BeforeTotal:  before.TotalQty,
		AfterTotal:   after.TotalQty,
		BeforeLocked: before.LockedQty,
		AfterLocked:  after.LockedQty,
		RequestID:    requestID,
		CreatedAt:    time.Now(),
	}
}
