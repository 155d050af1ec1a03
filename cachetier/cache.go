// Package cachetier implements the cache tier (spec component C3): a
// low-latency, non-authoritative kv.Store with per-address TTL.
//
// This is cache-manager/cache.go's L1Cache generalized from "one LRU slot
// per key" to "one JSON-object mapping (sub-id -> record) per address",
// per spec.md §4.3: reads and writes are read-modify-write of that
// mapping, which is acceptable because this tier is never authoritative.
// The container/list LRU bookkeeping, the sync.RWMutex, and the lazy
// expiry-on-Get check are all carried over from the teacher unchanged in
// shape; only the value type and the upsert semantics are new.
package cachetier

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"encore.app/pkg/kv"
	"go.uber.org/atomic"
)

type entry struct {
	address   string
	mapping   kv.Mapping
	expiresAt time.Time
	hasExpiry bool
	element   *list.Element
}

// Metrics tracks cache tier performance counters, in the style of the
// teacher's atomic-counter Metrics structs (cache-manager/service.go),
// upgraded from sync/atomic to the already-vendored go.uber.org/atomic
// wrapper types for a slightly friendlier API.
type Metrics struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	Sets      atomic.Int64
	Deletes   atomic.Int64
	Evictions atomic.Int64
}

// Store is a thread-safe, in-memory implementation of kv.Store and
// kv.Expirer. Trade-offs carried over from L1Cache: RWMutex chosen over
// sync.Map for ordered LRU eviction; a global lock on write is acceptable
// at the scale this tier is meant to serve (it never holds the
// authoritative copy), sharding is a natural v2 extension if contention
// becomes visible in Metrics.
type Store struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	lru        *list.List
	maxEntries int
	defaultTTL time.Duration
	Metrics    Metrics
}

// New creates a cache tier store bounded to maxEntries distinct addresses
// (LRU-evicted beyond that, a memory-safety measure with no semantic
// meaning in the protocol) with the given default TTL applied when Set is
// called without a prior Expire.
func New(maxEntries int, defaultTTL time.Duration) *Store {
	if maxEntries <= 0 {
		maxEntries = 100000
	}
	return &Store{
		entries:    make(map[string]*entry, maxEntries),
		lru:        list.New(),
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
	}
}

// Get implements kv.Store. On a selector miss within an otherwise-present
// mapping it returns kv.ErrNotFound, exactly like a tier-wide miss — the
// coordinator's read protocol (spec.md §4.4.1) treats both as "fall
// through to the next tier".
func (s *Store) Get(_ context.Context, address string, sel kv.Selector) (kv.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[address]
	if !ok {
		s.Metrics.Misses.Inc()
		return nil, kv.ErrNotFound
	}

	if e.hasExpiry && time.Now().After(e.expiresAt) {
		s.deleteUnsafe(address)
		s.Metrics.Misses.Inc()
		return nil, kv.ErrNotFound
	}

	s.lru.MoveToFront(e.element)

	if sel.IsWhole() {
		s.Metrics.Hits.Inc()
		out := make(kv.Mapping, len(e.mapping))
		for k, v := range e.mapping {
			out[k] = v
		}
		return out, nil
	}

	record, ok := e.mapping[sel.SubID()]
	if !ok {
		s.Metrics.Misses.Inc()
		return nil, kv.ErrNotFound
	}
	s.Metrics.Hits.Inc()
	return kv.Mapping{sel.SubID(): record}, nil
}

// Set implements kv.Store: read-modify-write the address's mapping,
// preserving sub-ids other than sub (spec.md §4.3 edge case).
func (s *Store) Set(_ context.Context, address, sub string, record kv.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[address]
	if !ok {
		e = &entry{address: address, mapping: kv.Mapping{}}
		e.expiresAt = time.Now().Add(s.defaultTTL)
		e.hasExpiry = s.defaultTTL > 0
		e.element = s.lru.PushFront(address)
		s.entries[address] = e
		s.evictIfNeededLocked()
	} else {
		s.lru.MoveToFront(e.element)
	}

	cloned := make(kv.Record, len(record))
	copy(cloned, record)
	e.mapping[sub] = cloned

	s.Metrics.Sets.Inc()
	return nil
}

// Expire implements kv.Expirer: apply or refresh a TTL on the whole
// address (spec.md §4.1's cache-only capability). Expiring an address not
// present in the cache is a benign no-op, matching write step 2's
// "best-effort; failure is logged but does not abort" framing — there is
// nothing to fail here.
func (s *Store) Expire(_ context.Context, address string, seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[address]
	if !ok {
		return nil
	}
	e.expiresAt = time.Now().Add(time.Duration(seconds) * time.Second)
	e.hasExpiry = true
	return nil
}

// Delete implements kv.Store. Deleting a sub-id that leaves the mapping
// empty also removes the address entirely, consistent with the policy
// durabletier applies for the same edge case (spec.md §4.3 requires the
// two tiers not mix policies).
func (s *Store) Delete(_ context.Context, address string, sel kv.Selector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[address]
	if !ok {
		return nil
	}

	if sel.IsWhole() {
		s.deleteUnsafe(address)
		s.Metrics.Deletes.Inc()
		return nil
	}

	delete(e.mapping, sel.SubID())
	if len(e.mapping) == 0 {
		s.deleteUnsafe(address)
	}
	s.Metrics.Deletes.Inc()
	return nil
}

func (s *Store) deleteUnsafe(address string) {
	e, ok := s.entries[address]
	if !ok {
		return
	}
	s.lru.Remove(e.element)
	delete(s.entries, address)
}

func (s *Store) evictIfNeededLocked() {
	for len(s.entries) > s.maxEntries {
		oldest := s.lru.Back()
		if oldest == nil {
			return
		}
		s.lru.Remove(oldest)
		delete(s.entries, oldest.Value.(string))
		s.Metrics.Evictions.Inc()
	}
}

// Close implements kv.Store. The in-memory tier holds no external
// resources to release.
func (s *Store) Close() error { return nil }

// MetricsSnapshot reports hit/miss/eviction counters, consumed by
// tieredkv's stats snapshot through an interface on its kv.Store-typed
// cache field.
func (s *Store) MetricsSnapshot() (hits, misses, evictions int64) {
	return s.Metrics.Hits.Load(), s.Metrics.Misses.Load(), s.Metrics.Evictions.Load()
}

// MarshalMapping and UnmarshalMapping are exposed for callers that need to
// serialize a whole mapping as a single JSON object — the on-disk shape
// durabletier persists for the `data` column, and the format the filter
// snapshot's reserved address borrows for its own payload.
func MarshalMapping(m kv.Mapping) (kv.Record, error) { return json.Marshal(m) }

func UnmarshalMapping(data kv.Record) (kv.Mapping, error) {
	var m kv.Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
