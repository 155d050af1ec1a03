// Package config loads the recognized options of spec.md §6 from the
// environment, the same field set as original_source's EnvConfig
// (src/interfaces.rs), plus two fields this expansion adds for the
// concurrency/timeout model of spec.md §5 (MaxConcurrentOps, TierTimeout).
//
// The teacher's services each carry their own small Config struct with a
// DefaultConfig()/defaults pattern (e.g. cache-manager/service.go); this
// package generalizes that to a single process-wide config loaded once at
// startup, since all tiers here share one set of external endpoints.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every externally-configurable option recognized by the
// serving layer.
type Config struct {
	Debug      bool
	ExternPort uint16

	DBProtocol string
	DBURL      string
	DBPort     string
	DBUser     string
	DBPassword string

	CacheURL      string
	CachePort     string
	CachePassword string

	BodyLimit uint64
	CacheTTL  int // seconds, applied at write step 2 (spec.md §4.4.2)

	// MaxConcurrentOps bounds in-flight tier operations (spec.md §5);
	// added by this expansion, not present in original_source.
	MaxConcurrentOps int64

	// TierTimeout is the per-tier call timeout applied via
	// context.WithTimeout at every Store boundary (spec.md §5).
	TierTimeout time.Duration
}

// Default returns the same fallback values original_source's constants.rs
// used (SETTINGS_DEBUG, SETTINGS_EXTERN_PORT, SETTINGS_DB_URL, …), plus
// this expansion's additions.
func Default() Config {
	return Config{
		Debug:      false,
		ExternPort: 3030,

		DBProtocol: "postgres",
		DBURL:      "127.0.0.1",
		DBPort:     "5432",
		DBUser:     "postgres",
		DBPassword: "password",

		CacheURL:      "127.0.0.1",
		CachePort:     "6379",
		CachePassword: "password",

		BodyLimit: 1 << 20, // 1 MiB
		CacheTTL:  300,

		MaxConcurrentOps: 256,
		TierTimeout:      5 * time.Second,
	}
}

// Load reads Config from the environment, falling back to Default() for
// any unset variable. Malformed numeric/bool values are ignored in favor
// of the default rather than failing startup, matching the permissive
// style of the env parsing this corpus favors for optional tuning knobs.
func Load() Config {
	c := Default()

	if v, ok := os.LookupEnv("DEBUG"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
	if v, ok := os.LookupEnv("EXTERN_PORT"); ok {
		if p, err := strconv.ParseUint(v, 10, 16); err == nil {
			c.ExternPort = uint16(p)
		}
	}

	if v, ok := os.LookupEnv("DB_PROTOCOL"); ok {
		c.DBProtocol = v
	}
	if v, ok := os.LookupEnv("DB_URL"); ok {
		c.DBURL = v
	}
	if v, ok := os.LookupEnv("DB_PORT"); ok {
		c.DBPort = v
	}
	if v, ok := os.LookupEnv("DB_USER"); ok {
		c.DBUser = v
	}
	if v, ok := os.LookupEnv("DB_PASSWORD"); ok {
		c.DBPassword = v
	}

	if v, ok := os.LookupEnv("CACHE_URL"); ok {
		c.CacheURL = v
	}
	if v, ok := os.LookupEnv("CACHE_PORT"); ok {
		c.CachePort = v
	}
	if v, ok := os.LookupEnv("CACHE_PASSWORD"); ok {
		c.CachePassword = v
	}

	if v, ok := os.LookupEnv("BODY_LIMIT"); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.BodyLimit = n
		}
	}
	if v, ok := os.LookupEnv("CACHE_TTL"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.CacheTTL = n
		}
	}

	if v, ok := os.LookupEnv("MAX_CONCURRENT_OPS"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxConcurrentOps = n
		}
	}
	if v, ok := os.LookupEnv("TIER_TIMEOUT_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.TierTimeout = time.Duration(n) * time.Millisecond
		}
	}

	return c
}
