// Package audit maintains an append-only record of every address mutation
// (write, delete_all, delete_one) accepted by the coordinator.
//
// This is invalidation/audit.go's AuditLogger repurposed: that package
// logged cache-invalidation events triggered by pattern-matching; this one
// logs kv mutations keyed by address. The schema, the append-only /
// ON CONFLICT DO NOTHING insert shape, and the pubsub fan-out wiring
// (cache-manager/subscriptions.go's topic + subscription pair) are carried
// over unchanged; only the event fields and the table name are new.
//
// This is explicitly NOT cross-node cache replication — nothing here
// writes back into cachetier or durabletier. It is an observability and
// compliance trail: what mutated, when, and for which address, independent
// of whether the mutation ultimately succeeded across all three tiers.
package audit

import "time"

// Op names the kind of mutation recorded.
type Op string

const (
	OpWrite      Op = "write"
	OpDeleteAll  Op = "delete_all"
	OpDeleteOne  Op = "delete_one"
)

// MutationEvent is published to AddressMutationTopic after a coordinator
// operation completes (successfully or not — Error carries the failure).
type MutationEvent struct {
	// Version of the event schema, carried over from pkg/pubsub/events.go's
	// versioning convention so subscribers can evolve independently.
	Version int `json:"version"`

	Address   string    `json:"address"`
	SubID     string    `json:"sub_id,omitempty"`
	Op        Op        `json:"op"`
	Error     string    `json:"error,omitempty"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// EventVersion1 is the current event schema version.
const EventVersion1 = 1
