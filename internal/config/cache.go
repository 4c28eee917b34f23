package config

import "time"

// CacheConfig defines settings for the seat-plan response cache.  Only
// static room layouts are cached; occupancy is always read live.
type CacheConfig struct {
	Enabled      bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int
}

// LoadCacheConfig reads CACHE_* with defaults.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		TTL:          envDur("CACHE_TTL", 5*time.Minute),
		Prefix:       envStr("CACHE_PREFIX", "cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
}

// IdempotencyConfig controls the in-flight guard on Idempotency-Key
// headers.  The durable dedupe lives in the reservations table; the
// guard only stops two identical requests from racing each other.
type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration // how long a key stays claimed while its request runs
	Prefix  string
}

// LoadIdempotencyConfig reads IDEMPOTENCY_*.
func LoadIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		Enabled: envBool("IDEMPOTENCY_ENABLED", true),
		TTL:     envDur("IDEMPOTENCY_TTL", 30*time.Second),
		Prefix:  envStr("IDEMPOTENCY_PREFIX", "idem"),
	}
}
