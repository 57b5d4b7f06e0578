package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	used    int
	resetAt time.Time
}

// MemoryLimiter keeps counters in process memory. It is suitable for single
// replica deployments and tests.
type MemoryLimiter struct {
	cfg   Config
	clock func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// MemoryOption customises a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithMemoryClock overrides the time source.
func WithMemoryClock(clock func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// NewMemoryLimiter constructs an in-process limiter.
func NewMemoryLimiter(cfg Config, opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		cfg:     cfg.normalized(),
		clock:   time.Now,
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Consume implements Limiter.
func (l *MemoryLimiter) Consume(_ context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyKey
	}

	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.cfg.Duration)}
		l.windows[key] = w
	}

	if w.used >= l.cfg.Points {
		return Decision{Allowed: false, RetryAfter: w.resetAt.Sub(now)}, nil
	}

	w.used++
	return Decision{
		Allowed:    true,
		Remaining:  l.cfg.Points - w.used,
		RetryAfter: 0,
	}, nil
}

// Peek implements Limiter.
func (l *MemoryLimiter) Peek(_ context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyKey
	}

	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		return Decision{Allowed: true, Remaining: l.cfg.Points}, nil
	}
	if w.used >= l.cfg.Points {
		return Decision{Allowed: false, RetryAfter: w.resetAt.Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: l.cfg.Points - w.used}, nil
}

// Reset drops the window for key.
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
	return nil
}

// Prune removes elapsed windows and reports how many were dropped.
func (l *MemoryLimiter) Prune() int {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}
