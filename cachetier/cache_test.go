package cachetier

import (
	"context"
	"testing"
	"time"

	"encore.app/pkg/kv"
)

func TestSetThenGetWhole(t *testing.T) {
	s := New(10, time.Minute)
	ctx := context.Background()

	if err := s.Set(ctx, "addr1", "a", kv.Record(`"1"`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "addr1", "b", kv.Record(`"2"`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	m, err := s.Get(ctx, "addr1", kv.Whole())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(m) != 2 {
		t.Fatalf("expected 2 sub-ids, got %d", len(m))
	}
}

func TestGetOneSubID(t *testing.T) {
	s := New(10, time.Minute)
	ctx := context.Background()
	s.Set(ctx, "addr1", "a", kv.Record(`"1"`))
	s.Set(ctx, "addr1", "b", kv.Record(`"2"`))

	m, err := s.Get(ctx, "addr1", kv.One("a"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(m) != 1 {
		t.Fatalf("expected exactly sub-id a, got %v", m)
	}
	if _, ok := m["a"]; !ok {
		t.Fatalf("expected sub-id a present, got %v", m)
	}
}

func TestGetMissingAddressReturnsNotFound(t *testing.T) {
	s := New(10, time.Minute)
	_, err := s.Get(context.Background(), "nope", kv.Whole())
	if err != kv.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetMissingSubIDReturnsNotFound(t *testing.T) {
	s := New(10, time.Minute)
	ctx := context.Background()
	s.Set(ctx, "addr1", "a", kv.Record(`"1"`))

	_, err := s.Get(ctx, "addr1", kv.One("missing"))
	if err != kv.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExpiredEntryEvictedOnGet(t *testing.T) {
	s := New(10, time.Millisecond)
	ctx := context.Background()
	s.Set(ctx, "addr1", "a", kv.Record(`"1"`))

	time.Sleep(5 * time.Millisecond)

	_, err := s.Get(ctx, "addr1", kv.Whole())
	if err != kv.ErrNotFound {
		t.Fatalf("expected ErrNotFound for expired entry, got %v", err)
	}
}

func TestExpireRefreshesTTL(t *testing.T) {
	s := New(10, time.Millisecond)
	ctx := context.Background()
	s.Set(ctx, "addr1", "a", kv.Record(`"1"`))

	if err := s.Expire(ctx, "addr1", 60); err != nil {
		t.Fatalf("expire: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := s.Get(ctx, "addr1", kv.Whole()); err != nil {
		t.Fatalf("expected entry to survive refreshed TTL, got %v", err)
	}
}

func TestDeleteSubIDLeavesOthers(t *testing.T) {
	s := New(10, time.Minute)
	ctx := context.Background()
	s.Set(ctx, "addr1", "a", kv.Record(`"1"`))
	s.Set(ctx, "addr1", "b", kv.Record(`"2"`))

	if err := s.Delete(ctx, "addr1", kv.One("a")); err != nil {
		t.Fatalf("delete: %v", err)
	}

	m, err := s.Get(ctx, "addr1", kv.Whole())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := m["a"]; ok {
		t.Fatalf("expected sub-id a removed, got %v", m)
	}
	if _, ok := m["b"]; !ok {
		t.Fatalf("expected sub-id b to survive, got %v", m)
	}
}

func TestDeleteLastSubIDRemovesAddress(t *testing.T) {
	s := New(10, time.Minute)
	ctx := context.Background()
	s.Set(ctx, "addr1", "a", kv.Record(`"1"`))

	if err := s.Delete(ctx, "addr1", kv.One("a")); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.Get(ctx, "addr1", kv.Whole()); err != kv.ErrNotFound {
		t.Fatalf("expected address fully removed, got %v", err)
	}
}

func TestDeleteWholeAddress(t *testing.T) {
	s := New(10, time.Minute)
	ctx := context.Background()
	s.Set(ctx, "addr1", "a", kv.Record(`"1"`))
	s.Set(ctx, "addr1", "b", kv.Record(`"2"`))

	if err := s.Delete(ctx, "addr1", kv.Whole()); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.Get(ctx, "addr1", kv.Whole()); err != kv.ErrNotFound {
		t.Fatalf("expected address fully removed, got %v", err)
	}
}

func TestLRUEvictionBoundsEntries(t *testing.T) {
	s := New(2, time.Minute)
	ctx := context.Background()
	s.Set(ctx, "addr1", "a", kv.Record(`"1"`))
	s.Set(ctx, "addr2", "a", kv.Record(`"1"`))
	s.Set(ctx, "addr3", "a", kv.Record(`"1"`))

	if _, err := s.Get(ctx, "addr1", kv.Whole()); err != kv.ErrNotFound {
		t.Fatalf("expected addr1 evicted as least-recently-used, got %v", err)
	}
	if s.Metrics.Evictions.Load() == 0 {
		t.Fatalf("expected at least one eviction recorded")
	}
}
