// Package durabletier implements the durable tier (spec component C4):
// the authoritative kv.Store backed by Postgres.
//
// Schema and query shape are grounded on invalidation/audit.go's
// ensureSchema/Insert pattern (encore.dev/storage/sqldb, CREATE TABLE IF
// NOT EXISTS run once at construction, parameterized queries throughout).
// The background expiry sweep is cache-manager/service.go's
// runTTLCleanup: a ticker-driven goroutine stopped via a close-channel
// plus sync.WaitGroup, the closest equivalent obtainable in Postgres to a
// document store's native per-row TTL index (spec.md §4.3's "zero grace
// period" requirement).
package durabletier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"encore.dev/storage/sqldb"

	"encore.app/pkg/kv"
)

// Store is a Postgres-backed kv.Store. One row holds the entire mapping
// for an address as a JSONB document, the same "whole object per key"
// shape cachetier.Store uses in memory, so the two tiers round-trip
// records identically.
type Store struct {
	db *sqldb.Database

	sweepInterval time.Duration
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// New constructs a Store against db, ensures its schema exists, and
// starts the background expiry sweep at the given interval. Close stops
// the sweep goroutine.
func New(db *sqldb.Database, sweepInterval time.Duration) (*Store, error) {
	s := &Store{
		db:            db,
		sweepInterval: sweepInterval,
		stopChan:      make(chan struct{}),
	}
	if err := s.ensureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("durabletier: schema init: %w", err)
	}

	if sweepInterval > 0 {
		s.wg.Add(1)
		go s.runExpirySweep()
	}

	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS kv_addresses (
			address TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			expiry TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_kv_addresses_expiry
		ON kv_addresses(expiry) WHERE expiry IS NOT NULL;
	`
	_, err := s.db.Exec(ctx, query)
	return err
}

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, address string, sel kv.Selector) (kv.Mapping, error) {
	var raw []byte
	var expiry sql.NullTime

	row := s.db.QueryRow(ctx,
		`SELECT data, expiry FROM kv_addresses WHERE address = $1`, address)
	if err := row.Scan(&raw, &expiry); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("durabletier: get %q: %w", address, kv.ErrBackendUnavailable)
	}

	if expiry.Valid && expiry.Time.Before(time.Now()) {
		return nil, kv.ErrNotFound
	}

	mapping, err := unmarshalMapping(raw)
	if err != nil {
		return nil, fmt.Errorf("durabletier: decode %q: %w", address, err)
	}

	if sel.IsWhole() {
		return mapping, nil
	}
	record, ok := mapping[sel.SubID()]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return kv.Mapping{sel.SubID(): record}, nil
}

// Set implements kv.Store: a transactional read-modify-write of the
// address's row, preserving sub-ids other than sub, creating the row on
// first write. Postgres' INSERT ... ON CONFLICT cannot merge into a JSONB
// column in one statement without knowing the prior value, so this uses
// an explicit transaction rather than a single upsert query.
func (s *Store) Set(ctx context.Context, address, sub string, record kv.Record) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("durabletier: begin tx: %w", kv.ErrBackendUnavailable)
	}
	defer tx.Rollback()

	var raw []byte
	row := tx.QueryRow(ctx, `SELECT data FROM kv_addresses WHERE address = $1 FOR UPDATE`, address)
	err = row.Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		raw = []byte(`{}`)
	case err != nil:
		return fmt.Errorf("durabletier: set %q: %w", address, kv.ErrBackendUnavailable)
	}

	mapping, err := unmarshalMapping(raw)
	if err != nil {
		return fmt.Errorf("durabletier: decode %q: %w", address, err)
	}
	if mapping == nil {
		mapping = kv.Mapping{}
	}
	mapping[sub] = record

	encoded, err := marshalMapping(mapping)
	if err != nil {
		return fmt.Errorf("durabletier: encode %q: %w", address, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO kv_addresses (address, data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (address) DO UPDATE SET data = $2, updated_at = NOW()
	`, address, encoded)
	if err != nil {
		return fmt.Errorf("durabletier: set %q: %w", address, kv.ErrBackendUnavailable)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("durabletier: commit %q: %w", address, kv.ErrBackendUnavailable)
	}
	return nil
}

// Delete implements kv.Store. A sub-id delete that empties the mapping
// also removes the row, matching cachetier's policy for the same edge
// case.
func (s *Store) Delete(ctx context.Context, address string, sel kv.Selector) error {
	if sel.IsWhole() {
		_, err := s.db.Exec(ctx, `DELETE FROM kv_addresses WHERE address = $1`, address)
		if err != nil {
			return fmt.Errorf("durabletier: delete %q: %w", address, kv.ErrBackendUnavailable)
		}
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("durabletier: begin tx: %w", kv.ErrBackendUnavailable)
	}
	defer tx.Rollback()

	var raw []byte
	row := tx.QueryRow(ctx, `SELECT data FROM kv_addresses WHERE address = $1 FOR UPDATE`, address)
	err = row.Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("durabletier: delete %q: %w", address, kv.ErrBackendUnavailable)
	}

	mapping, err := unmarshalMapping(raw)
	if err != nil {
		return fmt.Errorf("durabletier: decode %q: %w", address, err)
	}
	delete(mapping, sel.SubID())

	if len(mapping) == 0 {
		_, err = tx.Exec(ctx, `DELETE FROM kv_addresses WHERE address = $1`, address)
	} else {
		var encoded []byte
		encoded, err = marshalMapping(mapping)
		if err == nil {
			_, err = tx.Exec(ctx, `
				UPDATE kv_addresses SET data = $2, updated_at = NOW() WHERE address = $1
			`, address, encoded)
		}
	}
	if err != nil {
		return fmt.Errorf("durabletier: delete %q: %w", address, kv.ErrBackendUnavailable)
	}

	return tx.Commit()
}

// Expire applies a TTL to the row, satisfying kv.Expirer for parity with
// cachetier even though spec.md only requires it at the cache tier; the
// durable tier's own sweep relies on the same column.
func (s *Store) Expire(ctx context.Context, address string, seconds int) error {
	_, err := s.db.Exec(ctx, `
		UPDATE kv_addresses SET expiry = NOW() + make_interval(secs => $2) WHERE address = $1
	`, address, seconds)
	if err != nil {
		return fmt.Errorf("durabletier: expire %q: %w", address, kv.ErrBackendUnavailable)
	}
	return nil
}

// runExpirySweep periodically deletes rows past their expiry column.
func (s *Store) runExpirySweep() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.db.Exec(context.Background(),
				`DELETE FROM kv_addresses WHERE expiry IS NOT NULL AND expiry < NOW()`)
		}
	}
}

// Close stops the sweep goroutine. The *sqldb.Database connection pool
// itself is owned and closed by Encore, not by this Store.
func (s *Store) Close() error {
	close(s.stopChan)
	s.wg.Wait()
	return nil
}
