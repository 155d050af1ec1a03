// Package monitoring exposes a single read-only statistics endpoint over
// the tiered coordinator's counters.
//
// Narrowed from the teacher's monitoring package (service.go's
// //encore:api surface, Config/DefaultConfig shape): the sliding-window
// aggregator, anomaly detector, and dashboard endpoints it also carried
// have no equivalent requirement in this system (spec.md's Non-goals
// exclude rate-limiting and this expansion never introduced a SLA/alerting
// requirement to replace them), so they are dropped rather than adapted —
// see DESIGN.md. What survives is the part with a direct home: a stats
// snapshot, the same //encore:api public GET shape as
// monitoring/service.go's GetMetrics.
package monitoring

import (
	"context"

	"encore.app/tieredkv"
)

// StatsResponse mirrors tieredkv.Stats for the HTTP surface; kept as a
// distinct type so tieredkv's internal counters can evolve without
// changing the public response shape.
type StatsResponse struct {
	Reads                      int64   `json:"reads"`
	Writes                     int64   `json:"writes"`
	Deletes                    int64   `json:"deletes"`
	NotPresentHits             int64   `json:"not_present_hits"`
	NotFoundMisses             int64   `json:"not_found_misses"`
	TierErrors                 int64   `json:"tier_errors"`
	FilterElements             uint64  `json:"filter_elements"`
	CacheHits                  int64   `json:"cache_hits"`
	CacheMisses                int64   `json:"cache_misses"`
	CacheEvictions             int64   `json:"cache_evictions"`
	EstimatedFalsePositiveRate float64 `json:"estimated_false_positive_rate"`
}

// GetStats returns a snapshot of coordinator, cache, and filter counters.
//
//encore:api public method=GET path=/monitoring/stats
func GetStats(ctx context.Context) (*StatsResponse, error) {
	stats, err := tieredkv.CurrentStats()
	if err != nil {
		return nil, err
	}
	return &StatsResponse{
		Reads:                      stats.Reads,
		Writes:                     stats.Writes,
		Deletes:                    stats.Deletes,
		NotPresentHits:             stats.NotPresentHits,
		NotFoundMisses:             stats.NotFoundMisses,
		TierErrors:                 stats.TierErrors,
		FilterElements:             stats.FilterElements,
		CacheHits:                  stats.CacheHits,
		CacheMisses:                stats.CacheMisses,
		CacheEvictions:             stats.CacheEvictions,
		EstimatedFalsePositiveRate: stats.EstimatedFPP,
	}, nil
}
