package stock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	stockApp "github.com/storecraft/commerce-core/internal/application/stock"
	domainErrors "github.com/storecraft/commerce-core/internal/domain/errors"
	"github.com/storecraft/commerce-core/internal/domain/stock"
	"github.com/storecraft/commerce-core/internal/testutil"
)

func newLedger(repo stock.Repository) *stockApp.Ledger {
	return stockApp.NewLedger(repo, 3, zerolog.Nop(), nil)
}

func TestLock_GrantsAndJournals(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockStockRepository()
	key := testutil.NewTestKey("t1", "item-1")
	repo.Seed(testutil.NewTestStockRow(key, 10, 0))

	ledger := newLedger(repo)

	res, err := ledger.Lock(ctx, key, 7, "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.GrantedQty != 7 {
		t.Fatalf("expected granted 7, got %d", res.GrantedQty)
	}
	if res.Version != 2 {
		t.Fatalf("expected version 2 after mutation, got %d", res.Version)
	}

	row, err := repo.Get(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.LockedQty != 7 || row.TotalQty != 10 {
		t.Fatalf("expected locked=7 total=10, got locked=%d total=%d", row.LockedQty, row.TotalQty)
	}

	txns := repo.Txns()
	if len(txns) != 1 {
		t.Fatalf("expected one journal entry, got %d", len(txns))
	}
	if txns[0].TxnType != stock.TxnLock || txns[0].Qty != 7 || txns[0].RequestID != "req-1" {
		t.Fatalf("unexpected journal entry: %+v", txns[0])
	}
	if txns[0].BeforeLocked != 0 || txns[0].AfterLocked != 7 {
		t.Fatalf("journal must carry before/after: %+v", txns[0])
	}
}

func TestLock_InsufficientStockIsNotRetried(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockStockRepository()
	key := testutil.NewTestKey("t1", "item-1")
	repo.Seed(testutil.NewTestStockRow(key, 10, 2))

	reads := 0
	repo.GetFunc = func(ctx context.Context, k stock.Key) (*stock.Row, error) {
		reads++
		return testutil.NewTestStockRow(key, 10, 2), nil
	}

	ledger := newLedger(repo)

	// available = 10 - 0 - 2 = 8
	_, err := ledger.Lock(ctx, key, 9, "req-1")
	if !errors.Is(err, domainErrors.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if reads != 1 {
		t.Fatalf("shortage must fail on first read, got %d reads", reads)
	}
	if len(repo.Txns()) != 0 {
		t.Fatal("failed lock must not journal")
	}
}

func TestLock_SafetyStockReducesAvailability(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockStockRepository()
	key := testutil.NewTestKey("t1", "item-1")
	repo.Seed(testutil.NewTestStockRow(key, 10, 3))

	ledger := newLedger(repo)

	if _, err := ledger.Lock(ctx, key, 7, "req-1"); !errors.Is(err, domainErrors.ErrInsufficientStock) {
		t.Fatalf("expected safety stock to block, got %v", err)
	}
	if _, err := ledger.Lock(ctx, key, 6, "req-2"); err != nil {
		t.Fatalf("expected lock within available to succeed: %v", err)
	}
}

func TestLock_RetriesVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockStockRepository()
	key := testutil.NewTestKey("t1", "item-1")
	repo.Seed(testutil.NewTestStockRow(key, 10, 0))

	// First read observes a version that loses the CAS; the refresh wins.
	staleReads := 1
	repo.GetFunc = func(ctx context.Context, k stock.Key) (*stock.Row, error) {
		row := testutil.NewTestStockRow(key, 10, 0)
		if staleReads > 0 {
			staleReads--
			row.Version = 99
		}
		return row, nil
	}

	ledger := newLedger(repo)

	res, err := ledger.Lock(ctx, key, 4, "req-1")
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if res.GrantedQty != 4 {
		t.Fatalf("expected granted 4, got %d", res.GrantedQty)
	}
}

func TestLock_ExhaustedRetriesReportConflict(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockStockRepository()
	key := testutil.NewTestKey("t1", "item-1")
	repo.Seed(testutil.NewTestStockRow(key, 10, 0))

	repo.GetFunc = func(ctx context.Context, k stock.Key) (*stock.Row, error) {
		row := testutil.NewTestStockRow(key, 10, 0)
		row.Version = 99 // always stale
		return row, nil
	}

	ledger := newLedger(repo)

	_, err := ledger.Lock(ctx, key, 4, "req-1")
	if !errors.Is(err, domainErrors.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestLock_RejectsNonPositiveQty(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockStockRepository()
	ledger := newLedger(repo)

	for _, qty := range []int64{0, -3} {
		if _, err := ledger.Lock(ctx, testutil.NewTestKey("t1", "item-1"), qty, "req-1"); !errors.Is(err, domainErrors.ErrInvalidQuantity) {
			t.Fatalf("qty %d: expected ErrInvalidQuantity, got %v", qty, err)
		}
	}
}

func TestLock_MissingRow(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockStockRepository()
	ledger := newLedger(repo)

	_, err := ledger.Lock(ctx, testutil.NewTestKey("t1", "nope"), 1, "req-1")
	if !errors.Is(err, domainErrors.ErrStockNotFound) {
		t.Fatalf("expected ErrStockNotFound, got %v", err)
	}
}

func TestConfirm_DeductsTotalAndLocked(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockStockRepository()
	key := testutil.NewTestKey("t1", "item-1")
	row := testutil.NewTestStockRow(key, 10, 0)
	row.LockedQty = 5
	repo.Seed(row)

	ledger := newLedger(repo)

	version, err := ledger.Confirm(ctx, key, 3, "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}

	after, _ := repo.Get(ctx, key)
	if after.TotalQty != 7 || after.LockedQty != 2 {
		t.Fatalf("expected total=7 locked=2, got total=%d locked=%d", after.TotalQty, after.LockedQty)
	}
	if txns := repo.Txns(); len(txns) != 1 || txns[0].TxnType != stock.TxnConfirm {
		t.Fatalf("expected one CONFIRM journal entry, got %+v", txns)
	}
}

func TestConfirm_MoreThanLocked(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockStockRepository()
	key := testutil.NewTestKey("t1", "item-1")
	row := testutil.NewTestStockRow(key, 10, 0)
	row.LockedQty = 2
	repo.Seed(row)

	ledger := newLedger(repo)

	if _, err := ledger.Confirm(ctx, key, 3, "req-1"); !errors.Is(err, domainErrors.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestRelease_ReturnsStockToAvailable(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockStockRepository()
	key := testutil.NewTestKey("t1", "item-1")
	row := testutil.NewTestStockRow(key, 10, 0)
	row.LockedQty = 5
	repo.Seed(row)

	ledger := newLedger(repo)

	if _, err := ledger.Release(ctx, key, 5, "req-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after, _ := repo.Get(ctx, key)
	if after.TotalQty != 10 || after.LockedQty != 0 {
		t.Fatalf("expected total=10 locked=0, got total=%d locked=%d", after.TotalQty, after.LockedQty)
	}
	if after.Available() != 10 {
		t.Fatalf("expected all stock available again, got %d", after.Available())
	}
}

func TestAdjust_GuardsLockedQty(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockStockRepository()
	key := testutil.NewTestKey("t1", "item-1")
	row := testutil.NewTestStockRow(key, 10, 0)
	row.LockedQty = 4
	repo.Seed(row)

	ledger := newLedger(repo)

	// Lowering total below the outstanding reservations would corrupt the
	// ledger.
	if _, err := ledger.Adjust(ctx, key, 3, 0, "req-1"); !errors.Is(err, domainErrors.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	version, err := ledger.Adjust(ctx, key, 20, 2, "req-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}

	after, _ := repo.Get(ctx, key)
	if after.TotalQty != 20 || after.SafetyStock != 2 {
		t.Fatalf("expected total=20 safety=2, got total=%d safety=%d", after.TotalQty, after.SafetyStock)
	}
}
