package tieredkv

import "encore.app/pkg/cuckoo"

// Stats is a point-in-time snapshot of coordinator and filter counters,
// which monitoring.StatsResponse exposes over HTTP.
type Stats struct {
	Reads          int64   `json:"reads"`
	Writes         int64   `json:"writes"`
	Deletes        int64   `json:"deletes"`
	NotPresentHits int64   `json:"not_present_hits"`
	NotFoundMisses int64   `json:"not_found_misses"`
	TierErrors     int64   `json:"tier_errors"`
	FilterElements uint64  `json:"filter_elements"`
	CacheHits      int64   `json:"cache_hits"`
	CacheMisses    int64   `json:"cache_misses"`
	CacheEvictions int64   `json:"cache_evictions"`
	EstimatedFPP   float64 `json:"estimated_false_positive_rate"`
}

// CurrentStats resolves the package singleton and snapshots its
// counters. Returns an error if the coordinator has not yet been
// initialized (e.g. durable-tier connection failure).
func CurrentStats() (Stats, error) {
	svc, err := initService()
	if err != nil {
		return Stats{}, err
	}
	return svc.snapshotStats(), nil
}

func (s *Service) snapshotStats() Stats {
	stats := Stats{
		Reads:          s.Metrics.Reads.Load(),
		Writes:         s.Metrics.Writes.Load(),
		Deletes:        s.Metrics.Deletes.Load(),
		NotPresentHits: s.Metrics.NotPresentHits.Load(),
		NotFoundMisses: s.Metrics.NotFoundMisses.Load(),
		TierErrors:     s.Metrics.TierErrors.Load(),
		FilterElements: s.filterCount(),
	}

	if cacheStore, ok := s.cache.(cacheMetricsSource); ok {
		hits, misses, evictions := cacheStore.MetricsSnapshot()
		stats.CacheHits = hits
		stats.CacheMisses = misses
		stats.CacheEvictions = evictions
	}

	// A fixed worst-case figure from the filter's fingerprint and bucket
	// sizes, reported whenever the filter is non-empty; the current load
	// factor is not taken into account (see estimateFalsePositiveRate).
	stats.EstimatedFPP = estimateFalsePositiveRate(stats.FilterElements)

	return stats
}

// cacheMetricsSource lets stats.go read cachetier.Store's counters
// through the Service's kv.Store-typed cache field; any cache store that
// does not implement it leaves the cache counters at zero.
type cacheMetricsSource interface {
	MetricsSnapshot() (hits, misses, evictions int64)
}

// estimateFalsePositiveRate returns the intrinsic worst-case rate from
// cuckoo's package doc (~2*BucketSize/256 at full load). It does not
// account for actual load factor, so it is a conservative upper bound,
// not a measured rate.
func estimateFalsePositiveRate(elements uint64) float64 {
	if elements == 0 {
		return 0
	}
	return 2 * float64(cuckoo.BucketSize) / 256
}
