// Package tieredkv implements the tiered coordinator (spec component
// C5): the protocol that keeps the existence filter, the cache tier, and
// the durable tier mutually coherent under concurrent reads, writes, and
// deletes. It is the core of this module; everything else is a
// collaborator it drives in a fixed order.
//
// Structured in cache-manager/service.go's shape — a single
// //encore:service Service, a package-level once.Do initializer, an
// atomic-counter Metrics struct — generalized from a two-level
// cache-manager to a three-tier coordinator with a stricter ordering
// contract than the teacher's best-effort L1/L2 fallback.
package tieredkv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"encore.app/audit"
	"encore.app/pkg/config"
	"encore.app/pkg/cuckoo"
	"encore.app/pkg/kv"
	"encore.app/pkg/middleware"
)

// ErrorKind mirrors pkg/envelope.ErrorKind without importing it here —
// tieredkv must not depend on the HTTP-facing envelope package, only the
// other direction. api.go maps Kind to envelope.ErrorKind at the
// transport boundary.
type ErrorKind int

const (
	KindGeneric ErrorKind = iota
	KindNotPresent
	KindNotFound
	KindCacheWriteFailed
	KindCacheDeleteFailed
	KindDurableWriteFailed
	KindDurableDeleteFailed
	KindBackendUnavailable
	KindFilterFull
)

// Error wraps an ErrorKind with context, the coordinator's uniform
// failure type for every protocol step in spec.md §4.4.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tieredkv: %v", e.Err)
	}
	return "tieredkv: error"
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind ErrorKind, err error) *Error { return &Error{Kind: kind, Err: err} }

// Metrics tracks coordinator-level counters, the same atomic-counter
// shape as cache-manager/service.go's Metrics struct, using the
// go.uber.org/atomic wrappers cachetier.Metrics also uses.
type Metrics struct {
	Reads          atomic.Int64
	Writes         atomic.Int64
	Deletes        atomic.Int64
	NotPresentHits atomic.Int64
	NotFoundMisses atomic.Int64
	TierErrors     atomic.Int64
}

// Service is the tiered coordinator. //encore:service registers it with
// Encore; initService below constructs the package singleton the way
// cache-manager/service.go's initService does.
//
//encore:service
type Service struct {
	filter   *cuckoo.Filter
	filterMu sync.Mutex
	cache    kv.Store
	cacheE   kv.Expirer
	durable  kv.Store

	cfg config.Config
	sem *semaphore.Weighted

	snap         *snapshotManager
	durableReads *coalescer

	Metrics Metrics
}

// New wires a coordinator over already-constructed tiers. Production
// startup (initService) additionally runs the C7 filter-lifecycle load;
// tests call New directly with an empty or pre-seeded filter.
func New(cfg config.Config, cache kv.Store, cacheExpirer kv.Expirer, durable kv.Store, filter *cuckoo.Filter) *Service {
	s := &Service{
		filter:       filter,
		cache:        cache,
		cacheE:       cacheExpirer,
		durable:      durable,
		cfg:          cfg,
		sem:          semaphore.NewWeighted(cfg.MaxConcurrentOps),
		durableReads: newCoalescer(),
	}
	s.snap = newSnapshotManager(s)
	return s
}

// acquire bounds in-flight tier operations per spec.md §5's resource
// model; it is the semaphore.Weighted idiom
// cache-manager/singleflight.go's neighbors in this teacher never needed
// since the teacher bounds concurrency only via its worker pool
// (warming/worker_pool.go), not on the request path — this coordinator
// adds it because every request here touches up to three tiers.
func (s *Service) acquire(ctx context.Context) (func(), error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, newErr(KindBackendUnavailable, err)
	}
	return func() { s.sem.Release(1) }, nil
}

// publishMutation fans out an audit event for a completed write or delete.
// The audit trail is best-effort and out-of-band: it never blocks or fails
// the protocol steps spec.md §4.4 defines (see audit.Publish).
func (s *Service) publishMutation(ctx context.Context, address, sub string, op audit.Op, opErr error) {
	errMsg := ""
	if opErr != nil {
		errMsg = opErr.Error()
	}
	audit.Publish(ctx, &audit.MutationEvent{
		Version:   audit.EventVersion1,
		Address:   address,
		SubID:     sub,
		Op:        op,
		Error:     errMsg,
		RequestID: middleware.RequestIDFromCtx(ctx),
		Timestamp: time.Now(),
	})
}

// filterContains, filterInsert, and filterDelete serialize every access to
// the existence filter behind filterMu. cuckoo.Filter is explicitly not
// safe for concurrent use (pkg/cuckoo/cuckoo.go); the coordinator is the
// one place spec.md §5 requires a mutual-exclusion primitive around it,
// since every request goroutine shares the same *cuckoo.Filter. The lock
// is never held across a tier call, matching §5's no-nested-locking rule.
func (s *Service) filterContains(address string) bool {
	s.filterMu.Lock()
	defer s.filterMu.Unlock()
	return s.filter.Contains([]byte(address))
}

func (s *Service) filterInsert(address string) error {
	s.filterMu.Lock()
	defer s.filterMu.Unlock()
	return s.filter.Insert([]byte(address))
}

func (s *Service) filterDelete(address string) bool {
	s.filterMu.Lock()
	defer s.filterMu.Unlock()
	return s.filter.Delete([]byte(address))
}

// filterExport and filterCount back snapshot.go's background flush and
// stats.go's monitoring snapshot respectively; both read the same buckets
// Write/Delete mutate, so they take filterMu exactly like the request-path
// helpers above.
func (s *Service) filterExport() ([]byte, int) {
	s.filterMu.Lock()
	defer s.filterMu.Unlock()
	return s.filter.Export()
}

func (s *Service) filterCount() uint64 {
	s.filterMu.Lock()
	defer s.filterMu.Unlock()
	return s.filter.Count()
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.TierTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.TierTimeout)
}

// Read implements read_all (sel.IsWhole()) and read_one (otherwise),
// spec.md §4.4.1.
func (s *Service) Read(ctx context.Context, address string, sel kv.Selector) (kv.Mapping, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	s.Metrics.Reads.Inc()

	if !s.filterContains(address) {
		s.Metrics.NotPresentHits.Inc()
		return nil, newErr(KindNotPresent, errors.New("address not present in filter"))
	}

	tctx, cancel := s.withTimeout(ctx)
	mapping, err := s.cache.Get(tctx, address, sel)
	cancel()
	if err == nil && len(mapping) > 0 {
		return mapping, nil
	}

	coalesceKey := address
	if !sel.IsWhole() {
		coalesceKey = address + "\x00" + sel.SubID()
	}
	result, err := s.durableReads.Do(coalesceKey, func() (interface{}, error) {
		tctx, cancel := s.withTimeout(ctx)
		defer cancel()
		return s.durable.Get(tctx, address, sel)
	})
	if err == nil {
		mapping = result.(kv.Mapping)
		if len(mapping) == 0 {
			s.Metrics.NotFoundMisses.Inc()
			return nil, newErr(KindNotFound, errors.New("absent from durable tier"))
		}
		return mapping, nil
	}
	if errors.Is(err, kv.ErrNotFound) {
		s.Metrics.NotFoundMisses.Inc()
		return nil, newErr(KindNotFound, err)
	}
	s.Metrics.TierErrors.Inc()
	return nil, newErr(KindBackendUnavailable, err)
}

// Write implements write, spec.md §4.4.2. Steps execute strictly in
// order; any failure (other than the best-effort expire in step 2)
// aborts the remaining steps.
func (s *Service) Write(ctx context.Context, address, sub string, record kv.Record) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	s.Metrics.Writes.Inc()

	tctx, cancel := s.withTimeout(ctx)
	err = s.cache.Set(tctx, address, sub, record)
	cancel()
	if err != nil {
		werr := newErr(KindCacheWriteFailed, err)
		s.publishMutation(ctx, address, sub, audit.OpWrite, werr)
		return werr
	}

	if s.cacheE != nil && s.cfg.CacheTTL > 0 {
		tctx, cancel = s.withTimeout(ctx)
		_ = s.cacheE.Expire(tctx, address, s.cfg.CacheTTL)
		cancel()
	}

	tctx, cancel = s.withTimeout(ctx)
	err = s.durable.Set(tctx, address, sub, record)
	cancel()
	if err != nil {
		werr := newErr(KindDurableWriteFailed, err)
		s.publishMutation(ctx, address, sub, audit.OpWrite, werr)
		return werr
	}

	// Inserted unconditionally on every write, even a repeat write to an
	// address already a filter member: cuckoo filters have no native
	// refcount, so N writes insert N fingerprints while a later
	// delete_all only removes one. A sufficiently repeated address can
	// therefore outlive its own delete_all and still read as present
	// (NotFound rather than NotPresent) until the extra fingerprints are
	// also removed by further delete_all calls — accepted per spec.md
	// §4.4.2's literal idempotence note, but worth knowing when reading
	// §8.2's NotPresent-after-delete property.
	if insertErr := s.filterInsert(address); insertErr != nil {
		werr := newErr(KindFilterFull, insertErr)
		s.publishMutation(ctx, address, sub, audit.OpWrite, werr)
		return werr
	}
	s.snap.markDirty()

	s.publishMutation(ctx, address, sub, audit.OpWrite, nil)
	return nil
}

// Delete implements delete_all (sel.IsWhole()) and delete_one
// (otherwise), spec.md §4.4.3.
func (s *Service) Delete(ctx context.Context, address string, sel kv.Selector) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	s.Metrics.Deletes.Inc()

	op := audit.OpDeleteOne
	sub := ""
	if sel.IsWhole() {
		op = audit.OpDeleteAll
	} else {
		sub = sel.SubID()
	}

	if sel.IsWhole() {
		if removed := s.filterDelete(address); !removed {
			derr := newErr(KindNotPresent, errors.New("address not a filter member"))
			s.publishMutation(ctx, address, sub, op, derr)
			return derr
		}
		s.snap.markDirty()
	}

	tctx, cancel := s.withTimeout(ctx)
	err = s.cache.Delete(tctx, address, sel)
	cancel()
	if err != nil {
		derr := newErr(KindCacheDeleteFailed, err)
		s.publishMutation(ctx, address, sub, op, derr)
		return derr
	}

	tctx, cancel = s.withTimeout(ctx)
	err = s.durable.Delete(tctx, address, sel)
	cancel()
	if err != nil {
		derr := newErr(KindDurableDeleteFailed, err)
		s.publishMutation(ctx, address, sub, op, derr)
		return derr
	}

	s.publishMutation(ctx, address, sub, op, nil)
	return nil
}

// Shutdown is Encore's graceful-shutdown hook: it calls Shutdown(force)
// on every //encore:service struct that exports one. Flushing the filter
// snapshot here,
// rather than only from the 2s ticker in snapshotManager.run, is what
// keeps spec.md §4.6's durability bound (a stop must not lose more than
// one operation's worth of filter mutations) true on a real shutdown,
// not just in tests that call it directly.
func (s *Service) Shutdown(force context.Context) {
	s.snap.flush(force)
	s.snap.stop()

	_ = s.cache.Close()
	_ = s.durable.Close()
}
