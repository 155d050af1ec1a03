package cuckoo

import "testing"

func TestContainsAfterInsert(t *testing.T) {
	f := New(0)
	addr := []byte("0x123")

	if f.Contains(addr) {
		t.Fatal("expected fresh filter not to contain address")
	}

	if err := f.Insert(addr); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if !f.Contains(addr) {
		t.Fatal("expected filter to contain inserted address")
	}
}

func TestDeleteRemovesOneOccurrence(t *testing.T) {
	f := New(0)
	addr := []byte("0x123")

	if err := f.Insert(addr); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := f.Insert(addr); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if !f.Delete(addr) {
		t.Fatal("expected delete of member to succeed")
	}
	if !f.Contains(addr) {
		t.Fatal("expected address to remain a member after one of two inserts removed")
	}

	if !f.Delete(addr) {
		t.Fatal("expected second delete to succeed")
	}
	if f.Contains(addr) {
		t.Fatal("expected address to no longer be a member")
	}
}

func TestDeleteAbsentReturnsFalse(t *testing.T) {
	f := New(0)
	if f.Delete([]byte("never-inserted")) {
		t.Fatal("expected delete of absent address to return false")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	f := New(0)
	members := []string{"0x123", "0xabc", "addr-three", "addr-four"}
	for _, m := range members {
		if err := f.Insert([]byte(m)); err != nil {
			t.Fatalf("insert %s: %v", m, err)
		}
	}

	data, length := f.Export()
	restored, err := Import(data, length)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	for _, m := range members {
		if !restored.Contains([]byte(m)) {
			t.Fatalf("restored filter lost member %s", m)
		}
	}

	if !restored.Contains([]byte(members[0])) || restored.Contains([]byte("definitely-absent-xyz")) {
		t.Fatalf("restored filter behaves differently than original")
	}

	if restored.Count() != f.Count() {
		t.Fatalf("count mismatch after round-trip: got %d, want %d", restored.Count(), f.Count())
	}
}

func TestInsertFullFilterReturnsErrFull(t *testing.T) {
	// Tiny filter: 1 bucket * 4 slots = 4 max slots. Drive it into
	// ErrFull territory with far more insertions than capacity.
	f := New(1)
	if len(f.buckets) > 4 {
		t.Skip("capacity hint did not produce a small enough filter for this test")
	}

	var sawFull bool
	for i := 0; i < 1000; i++ {
		addr := []byte{byte(i), byte(i >> 8)}
		if err := f.Insert(addr); err != nil {
			sawFull = true
			break
		}
	}

	if !sawFull {
		t.Fatal("expected a small filter to eventually report ErrFull")
	}
}
