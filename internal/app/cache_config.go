package app

import (
	"strings"

	"github.com/charlesng35/blotter/internal/cache"
	"github.com/charlesng35/blotter/internal/ratelimit"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// PINLimiterConfig returns the per-token PIN attempt budget.
func (c GuestConfig) PINLimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		Points:   c.RateLimit.Points,
		Duration: c.RateLimit.Duration,
	}
}
