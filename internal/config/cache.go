package config

import "time"

// CacheConfig drives the Redis response cache.  It is mounted only on
// listings that carry no occupancy state; slot availability is always read
// from the ledger.
type CacheConfig struct {
    Enabled      bool
    Methods      map[string]bool // upper-cased HTTP methods that may be cached
    TTL          time.Duration
    KeyStrategy  string // route, route_query, method_route or method_route_query
    Prefix       string
    MaxBodyBytes int // larger responses pass through uncached
}

// LoadCacheConfig reads CACHE_* variables.
func LoadCacheConfig() CacheConfig {
    return CacheConfig{
        Enabled:      envBool("CACHE_ENABLED", true),
        Methods:      envSet("CACHE_METHODS", "GET"),
        TTL:          envDur("CACHE_TTL", 5*time.Minute),
        KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "route_query"),
        Prefix:       envStr("CACHE_PREFIX", "enroll:cache"),
        MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
    }
}
