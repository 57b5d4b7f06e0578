// Package logger holds the process-wide zap logger.
package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output encodings accepted by Options.Format.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options selects the level and encoding of the global logger.
type Options struct {
	Level  string
	Format string
}

var (
	mu     sync.RWMutex
	global = zap.NewNop()
)

// Init builds the global logger. An unknown level falls back to info; an
// unknown format is an error.
func Init(opts Options) error {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(strings.TrimSpace(opts.Level))); err != nil {
		level = zapcore.InfoLevel
	}

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", FormatJSON:
		cfg = zap.NewProductionConfig()
	case FormatConsole:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return fmt.Errorf("logger: unknown format %q", opts.Format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	built, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("logger: build: %w", err)
	}
	Replace(built)
	return nil
}

// Logger returns the global logger.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Replace swaps the global logger and returns a func restoring the previous one.
func Replace(l *zap.Logger) func() {
	if l == nil {
		l = zap.NewNop()
	}

	mu.Lock()
	prev := global
	global = l
	mu.Unlock()

	return func() {
		mu.Lock()
		global = prev
		mu.Unlock()
	}
}

// Sync flushes buffered entries.
func Sync() error {
	return Logger().Sync()
}

// WithModule returns a child logger tagged with module.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}

// TokenRef identifies a capability token by a short prefix so entries can be
// correlated without the log granting access.
func TokenRef(token string) zap.Field {
	const visible = 6
	if len(token) <= visible {
		return zap.String("token_ref", "***")
	}
	return zap.String("token_ref", token[:visible]+"...")
}
