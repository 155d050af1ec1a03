package audit

import (
	"context"
	"fmt"
	"time"

	"encore.dev/storage/sqldb"
)

// db is this service's own logical database, following the same
// sqldb.Named-per-service convention invalidation/service.go and
// tieredkv/init.go both use.
var db = sqldb.Named("audit_db")

// Logger provides append-only persistent storage of mutation events.
// Carried over from invalidation/audit.go's AuditLogger: PostgreSQL for
// durability, no updates, rows removed only by Cleanup once past the
// retention window, indexed by timestamp and address for time-range and
// per-address queries.
type Logger struct {
	db *sqldb.Database
}

// NewLogger creates a logger and ensures its schema exists.
func NewLogger(database *sqldb.Database) (*Logger, error) {
	l := &Logger{db: database}
	if err := l.ensureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return l, nil
}

func (l *Logger) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS address_mutation_audit (
			id BIGSERIAL PRIMARY KEY,
			address TEXT NOT NULL,
			sub_id TEXT NOT NULL DEFAULT '',
			op TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			request_id TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (request_id, address, sub_id, op)
		);

		CREATE INDEX IF NOT EXISTS idx_address_mutation_audit_timestamp
		ON address_mutation_audit(timestamp DESC);

		CREATE INDEX IF NOT EXISTS idx_address_mutation_audit_address
		ON address_mutation_audit(address);
	`
	_, err := l.db.Exec(ctx, query)
	return err
}

// Insert records one mutation event. Idempotent on (request_id, address,
// sub_id, op): redelivery of the same at-least-once pubsub message is a
// no-op rather than a duplicate row.
func (l *Logger) Insert(ctx context.Context, event MutationEvent) error {
	query := `
		INSERT INTO address_mutation_audit
		(address, sub_id, op, error, request_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`
	_, err := l.db.Exec(ctx, query,
		event.Address, event.SubID, string(event.Op), event.Error, event.RequestID, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert mutation audit log: %w", err)
	}
	return nil
}

// GetByAddress retrieves recent mutation events for one address, most
// recent first, bounded by limit.
func (l *Logger) GetByAddress(ctx context.Context, address string, limit int) ([]MutationEvent, error) {
	query := `
		SELECT address, sub_id, op, error, request_id, timestamp
		FROM address_mutation_audit
		WHERE address = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`
	rows, err := l.db.Query(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query mutation audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]MutationEvent, 0, limit)
	for rows.Next() {
		var e MutationEvent
		var op string
		if err := rows.Scan(&e.Address, &e.SubID, &op, &e.Error, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan mutation audit log: %w", err)
		}
		e.Op = Op(op)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mutation audit logs: %w", err)
	}
	return events, nil
}

// Cleanup removes audit rows older than the given retention window. Run
// daily by the purge-old-mutation-audit cron job (cron.go) through
// PurgeOldMutations.
func (l *Logger) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := l.db.Exec(ctx, `DELETE FROM address_mutation_audit WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup mutation audit logs: %w", err)
	}
	return result.RowsAffected(), nil
}
