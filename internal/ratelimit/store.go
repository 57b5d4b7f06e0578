package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/charlesng35/blotter/internal/cache"
)

// StoreLimiter shares counters across replicas through a cache.Store.
type StoreLimiter struct {
	store  cache.Store
	cfg    Config
	prefix string
}

// NewStoreLimiter wraps store. prefix namespaces the keys (e.g. "pin").
func NewStoreLimiter(store cache.Store, cfg Config, prefix string) (*StoreLimiter, error) {
	if store == nil {
		return nil, fmt.Errorf("ratelimit: store is required")
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "rl"
	}
	return &StoreLimiter{store: store, cfg: cfg.normalized(), prefix: prefix + ":"}, nil
}

// Consume implements Limiter.
func (l *StoreLimiter) Consume(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyKey
	}

	counter, err := l.store.Consume(ctx, l.prefix+key, int64(l.cfg.Points), l.cfg.Duration)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: consume: %w", err)
	}

	return l.decide(counter), nil
}

// Peek implements Limiter.
func (l *StoreLimiter) Peek(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyKey
	}

	counter, err := l.store.Peek(ctx, l.prefix+key, int64(l.cfg.Points))
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: peek: %w", err)
	}
	return l.decide(counter), nil
}

func (l *StoreLimiter) decide(counter cache.Counter) Decision {
	if !counter.Allowed {
		return Decision{Allowed: false, RetryAfter: counter.ResetIn}
	}
	remaining := l.cfg.Points - int(counter.Used)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining}
}

// Reset clears the shared counter for key.
func (l *StoreLimiter) Reset(ctx context.Context, key string) error {
	if err := l.store.Delete(ctx, l.prefix+key); err != nil {
		return fmt.Errorf("ratelimit: reset: %w", err)
	}
	return nil
}
