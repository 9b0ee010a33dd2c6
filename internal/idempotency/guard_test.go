package idempotency_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	domainErrors "github.com/storecraft/commerce-core/internal/domain/errors"
	"github.com/storecraft/commerce-core/internal/idempotency"
	"github.com/storecraft/commerce-core/internal/infrastructure/kv"
)

func TestExecute_RejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	guard := idempotency.NewGuard(kv.NewMemoryStore(), zerolog.Nop())

	runs := 0
	fn := func(ctx context.Context) error { runs++; return nil }

	if err := guard.Execute(ctx, "token-1", "order.submit", time.Minute, time.Hour, fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := guard.Execute(ctx, "token-1", "order.submit", time.Minute, time.Hour, fn)
	if !errors.Is(err, domainErrors.ErrDuplicateOperation) {
		t.Fatalf("expected ErrDuplicateOperation, got %v", err)
	}
	if runs != 1 {
		t.Fatalf("expected exactly one run, got %d", runs)
	}
}

func TestExecute_ScenesDoNotCollide(t *testing.T) {
	ctx := context.Background()
	guard := idempotency.NewGuard(kv.NewMemoryStore(), zerolog.Nop())

	fn := func(ctx context.Context) error { return nil }
	if err := guard.Execute(ctx, "token-1", "order.submit", time.Minute, time.Hour, fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := guard.Execute(ctx, "token-1", "stock.adjust", time.Minute, time.Hour, fn); err != nil {
		t.Fatalf("same token under another scene should run: %v", err)
	}
}

func TestExecute_FailureClearsRecord(t *testing.T) {
	ctx := context.Background()
	guard := idempotency.NewGuard(kv.NewMemoryStore(), zerolog.Nop())

	wantErr := errors.New("boom")
	err := guard.Execute(ctx, "token-1", "order.submit", time.Minute, time.Hour,
		func(ctx context.Context) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fn error, got %v", err)
	}

	// The failed attempt must not poison the token.
	ran := false
	err = guard.Execute(ctx, "token-1", "order.submit", time.Minute, time.Hour,
		func(ctx context.Context) error { ran = true; return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("expected retry after failure to run")
	}
}

func TestExecute_SuccessExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	guard := idempotency.NewGuard(store, zerolog.Nop())

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	fn := func(ctx context.Context) error { return nil }
	if err := guard.Execute(ctx, "token-1", "order.submit", time.Minute, time.Hour, fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now = now.Add(30 * time.Minute)
	err := guard.Execute(ctx, "token-1", "order.submit", time.Minute, time.Hour, fn)
	if !errors.Is(err, domainErrors.ErrDuplicateOperation) {
		t.Fatalf("expected duplicate inside success TTL, got %v", err)
	}

	now = now.Add(2 * time.Hour)
	if err := guard.Execute(ctx, "token-1", "order.submit", time.Minute, time.Hour, fn); err != nil {
		t.Fatalf("expected run after success TTL lapsed: %v", err)
	}
}

func TestTryEnter_OnSuccess_Clear(t *testing.T) {
	ctx := context.Background()
	guard := idempotency.NewGuard(kv.NewMemoryStore(), zerolog.Nop())

	entered, err := guard.TryEnter(ctx, "token-1", "scene", time.Minute)
	if err != nil || !entered {
		t.Fatalf("expected first entry, got entered=%v err=%v", entered, err)
	}
	entered, err = guard.TryEnter(ctx, "token-1", "scene", time.Minute)
	if err != nil || entered {
		t.Fatalf("expected rejected entry, got entered=%v err=%v", entered, err)
	}

	if err := guard.Clear(ctx, "token-1", "scene"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entered, err = guard.TryEnter(ctx, "token-1", "scene", time.Minute)
	if err != nil || !entered {
		t.Fatalf("expected entry after clear, got entered=%v err=%v", entered, err)
	}

	if err := guard.OnSuccess(ctx, "token-1", "scene", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entered, err = guard.TryEnter(ctx, "token-1", "scene", time.Minute)
	if err != nil || entered {
		t.Fatalf("succeeded record must keep rejecting, got entered=%v err=%v", entered, err)
	}
}
