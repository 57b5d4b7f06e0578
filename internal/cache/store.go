package cache

import (
	"context"
	"time"
)

// Counter reports the state of a fixed-window counter after a consume attempt.
type Counter struct {
	Used    int64
	Allowed bool
	ResetIn time.Duration
}

// Store is the shared counter backend used when limits must hold across replicas.
type Store interface {
	// Consume takes one point from the window identified by key. When limit points
	// have already been used the window is left untouched and Allowed is false.
	Consume(ctx context.Context, key string, limit int64, window time.Duration) (Counter, error)
	// Peek reports the window for key as Consume would see it, without
	// spending a point. Allowed is false once limit points are used.
	Peek(ctx context.Context, key string, limit int64) (Counter, error)
	// Delete removes keys, ignoring missing ones.
	Delete(ctx context.Context, keys ...string) error
}
