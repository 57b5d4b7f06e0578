// Package ratelimit implements fixed-window attempt limiters keyed by an
// arbitrary string, typically a guest link token.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Decision is the outcome of a single consume call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter consumes one point for key. Once a key is exhausted every call is
// refused, without touching the window, until the window elapses. Peek
// reports what Consume would decide without spending a point.
type Limiter interface {
	Consume(ctx context.Context, key string) (Decision, error)
	Peek(ctx context.Context, key string) (Decision, error)
	Reset(ctx context.Context, key string) error
}

// Config describes a fixed window of Points attempts per Duration.
type Config struct {
	Points   int
	Duration time.Duration
}

// Default attempt budget for PIN verification.
const (
	DefaultPoints   = 5
	DefaultDuration = 10 * time.Minute
)

// ErrEmptyKey is returned when a caller consumes without a key.
var ErrEmptyKey = errors.New("ratelimit: key is required")

func (c Config) normalized() Config {
	if c.Points <= 0 {
		c.Points = DefaultPoints
	}
	if c.Duration <= 0 {
		c.Duration = DefaultDuration
	}
	return c
}
