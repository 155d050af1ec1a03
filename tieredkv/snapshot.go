package tieredkv

import (
	"context"
	"sync"
	"time"

	"encore.app/pkg/cuckoo"
	"encore.app/pkg/kv"
)

// FilterAddress and FilterSubID are the reserved (address, sub-id) pair
// the existence filter's export is persisted under in the durable tier
// (spec.md §4.6).
const (
	FilterAddress = "cuckoo_filter"
	FilterSubID   = "cuckoo_filter_id"
)

// snapshotManager owns the C7 filter lifecycle: load-on-startup and a
// coalescing background flush on mutation. Narrowed from
// warming/worker_pool.go's multi-worker task queue to a single dirty-flag
// writer, since there is exactly one filter to serialize and concurrent
// flushes would race on C4's reserved document.
type snapshotManager struct {
	svc *Service

	mu    sync.Mutex
	dirty bool

	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func newSnapshotManager(svc *Service) *snapshotManager {
	m := &snapshotManager{
		svc:      svc,
		interval: 2 * time.Second,
		stopChan: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

// markDirty records that the filter changed since the last flush. Called
// by Write/Delete under the coordinator's own call, never while holding
// a tier lock (spec.md §5's no-nested-locking rule).
func (m *snapshotManager) markDirty() {
	m.mu.Lock()
	m.dirty = true
	m.mu.Unlock()
}

func (m *snapshotManager) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.flush(context.Background())
		}
	}
}

// flush persists the filter export if dirty since the last flush. Safe
// to call concurrently with markDirty; a flush that races a fresh
// markDirty simply leaves the flag set for the next tick, which is
// always correct because exports are idempotent snapshots of current
// state, not deltas.
func (m *snapshotManager) flush(ctx context.Context) {
	m.mu.Lock()
	if !m.dirty {
		m.mu.Unlock()
		return
	}
	m.dirty = false
	m.mu.Unlock()

	data, length := m.svc.filterExport()
	record := encodeFilterExport(data, length)
	_ = m.svc.durable.Set(ctx, FilterAddress, FilterSubID, record)
}

func (m *snapshotManager) stop() {
	close(m.stopChan)
	m.wg.Wait()
}

// loadOrInit implements the startup half of C7: reconstruct the filter
// from its reserved durable-tier document, or create and immediately
// persist an empty one if none exists yet.
func loadOrInit(ctx context.Context, durable kv.Store, capacityHint int) (*cuckoo.Filter, error) {
	mapping, err := durable.Get(ctx, FilterAddress, kv.One(FilterSubID))
	if err == nil {
		if record, ok := mapping[FilterSubID]; ok {
			if data, length, decodeErr := decodeFilterExport(record); decodeErr == nil {
				if f, importErr := cuckoo.Import(data, length); importErr == nil {
					return f, nil
				}
			}
		}
	}

	f := cuckoo.New(capacityHint)
	data, length := f.Export()
	record := encodeFilterExport(data, length)
	_ = durable.Set(ctx, FilterAddress, FilterSubID, record)
	return f, nil
}
