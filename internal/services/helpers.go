package services

import (
	"context"
	"strings"
	"time"
)

// withContext lets background jobs pass a nil ctx.
func withContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// optionalString maps blank input to nil so nullable columns stay NULL.
func optionalString(value string) *string {
	if v := strings.TrimSpace(value); v != "" {
		return &v
	}
	return nil
}

// nowUTC reads clock. Stored timestamps are always UTC.
func nowUTC(clock func() time.Time) time.Time {
	return clock().UTC()
}
