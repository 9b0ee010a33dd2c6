package stock

import (
	"testing"

	"github.com/google/uuid"
)

func row(total, locked, safety int64) *Row {
	return &Row{
		Key:         Key{TenantID: "t1", StoreID: "s1", ItemID: "i1", LocationID: "l1"},
		TotalQty:    total,
		LockedQty:   locked,
		SafetyStock: safety,
		Version:     1,
	}
}

func TestAvailable(t *testing.T) {
	tests := []struct {
		name                  string
		total, locked, safety int64
		want                  int64
	}{
		{"all free", 10, 0, 0, 10},
		{"some locked", 10, 4, 0, 6},
		{"safety reserved", 10, 0, 3, 7},
		{"locked and safety", 10, 4, 3, 3},
		{"fully committed", 10, 10, 0, 0},
		{"oversold by safety", 10, 8, 3, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := row(tt.total, tt.locked, tt.safety).Available(); got != tt.want {
				t.Errorf("Available() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCanLock(t *testing.T) {
	r := row(10, 4, 3) // available 3
	if !r.CanLock(3) {
		t.Error("expected CanLock(3) on 3 available")
	}
	if r.CanLock(4) {
		t.Error("expected CanLock(4) to fail on 3 available")
	}
	if r.CanLock(0) || r.CanLock(-1) {
		t.Error("non-positive quantities must never lock")
	}
}

func TestValidate(t *testing.T) {
	if err := row(10, 10, 0).Validate(); err != nil {
		t.Errorf("locked == total is valid: %v", err)
	}
	if err := row(10, 11, 0).Validate(); err == nil {
		t.Error("locked > total must be rejected")
	}
	if err := row(10, -1, 0).Validate(); err == nil {
		t.Error("negative locked must be rejected")
	}
}

func TestNewTxn(t *testing.T) {
	before := row(10, 0, 0)
	after := row(10, 7, 0)
	after.Version = 2

	txn := NewTxn(TxnLock, before, after, 7, "req-1")

	if txn.ID == uuid.Nil {
		t.Error("expected generated txn ID")
	}
	if txn.Key != before.Key {
		t.Errorf("expected key carried over, got %+v", txn.Key)
	}
	if txn.BeforeLocked != 0 || txn.AfterLocked != 7 {
		t.Errorf("expected locked 0 -> 7, got %d -> %d", txn.BeforeLocked, txn.AfterLocked)
	}
	if txn.BeforeTotal != 10 || txn.AfterTotal != 10 {
		t.Errorf("expected total unchanged, got %d -> %d", txn.BeforeTotal, txn.AfterTotal)
	}
	if txn.CreatedAt.IsZero() {
		t.Error("expected creation timestamp")
	}
}
