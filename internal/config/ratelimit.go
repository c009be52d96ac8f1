package config

import "time"

// RateLimitConfig drives the Redis token bucket placed in front of the
// credential endpoints (login, forgot-password, reset-password).
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
}

func loadRateLimit(l *loader) RateLimitConfig {
	def := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       l.intOr("RATE_LIMIT_CAPACITY", 10),
		RefillTokens:   l.intOr("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: l.durOr("RATE_LIMIT_REFILL_INTERVAL", 6*time.Second),
		TTL:            l.durOr("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
	}
	if def.Capacity < 1 {
		def.Capacity = 1
	}
	if def.RefillTokens < 1 {
		def.RefillTokens = 1
	}
	if def.RefillInterval <= 0 {
		def.RefillInterval = time.Second
	}
	minTTL := 5 * def.RefillInterval
	if def.TTL < minTTL {
		def.TTL = minTTL
	}
	return def
}

// CacheConfig describes the response cache owned by the resource routers.
// This service only needs to know the key namespace so it can invalidate
// entries by pattern after a mutation.
type CacheConfig struct {
	InvalidationEnabled bool
	Prefix              string
}

func loadCache() CacheConfig {
	return CacheConfig{
		InvalidationEnabled: envBool("CACHE_INVALIDATION_ENABLED", true),
		Prefix:              envStr("CACHE_PREFIX", "cache"),
	}
}
