package checks

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/charlesng35/blotter/internal/monitoring"
)

// RedisPinger is the part of a go-redis client the probe needs.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// Redis probes the shared counter store. When redis was requested but could
// not be reached at startup, limits fall back to another backend and the
// probe reports degraded.
func Redis(client RedisPinger, enabled bool) monitoring.Check {
	return monitoring.Check{Name: "redis", Run: func(ctx context.Context) monitoring.ProbeResult {
		switch {
		case !enabled:
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "redis disabled"}
		case client == nil:
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "redis unavailable; using fallback counters"}
		}
		return monitoring.ResultFromError(client.Ping(ctx).Err())
	}}
}
