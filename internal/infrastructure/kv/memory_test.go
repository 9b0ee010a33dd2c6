package kv

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_SetNX(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.SetNX(ctx, "k", "a", 0)
	if err != nil || !created {
		t.Fatalf("expected first SetNX to create, got created=%v err=%v", created, err)
	}
	created, err = s.SetNX(ctx, "k", "b", 0)
	if err != nil || created {
		t.Fatalf("expected second SetNX to fail, got created=%v err=%v", created, err)
	}

	val, found, err := s.Get(ctx, "k")
	if err != nil || !found || val != "a" {
		t.Fatalf("expected original value, got %q found=%v err=%v", val, found, err)
	}
}

func TestMemoryStore_CompareAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Set(ctx, "k", "owner-a", 0)

	deleted, err := s.CompareAndDelete(ctx, "k", "owner-b")
	if err != nil || deleted {
		t.Fatalf("mismatched value must not delete, got deleted=%v err=%v", deleted, err)
	}
	deleted, err = s.CompareAndDelete(ctx, "k", "owner-a")
	if err != nil || !deleted {
		t.Fatalf("matching value must delete, got deleted=%v err=%v", deleted, err)
	}
	if _, found, _ := s.Get(ctx, "k"); found {
		t.Fatal("expected key gone after delete")
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	s.SetClock(func() time.Time { return now })

	s.Set(ctx, "k", "v", time.Minute)
	if _, found, _ := s.Get(ctx, "k"); !found {
		t.Fatal("expected key before expiry")
	}

	now = now.Add(2 * time.Minute)
	if _, found, _ := s.Get(ctx, "k"); found {
		t.Fatal("expected key expired")
	}
}

func TestMemoryStore_Incr(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for want := int64(1); want <= 3; want++ {
		got, err := s.Incr(ctx, "counter")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
}

func TestMemoryStore_IncrPreservesTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	s.SetClock(func() time.Time { return now })

	s.Incr(ctx, "counter")
	if ok, _ := s.Expire(ctx, "counter", time.Minute); !ok {
		t.Fatal("expected Expire to find the counter")
	}
	s.Incr(ctx, "counter")

	now = now.Add(2 * time.Minute)
	got, err := s.Incr(ctx, "counter")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected counter reset after TTL, got %d", got)
	}
}

func TestMemoryStore_ExpireMissingKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ok, err := s.Expire(ctx, "missing", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected false for missing key, got ok=%v err=%v", ok, err)
	}
}
