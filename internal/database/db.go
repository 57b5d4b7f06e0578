// Package database opens the portal's record store and owns its schema.
package database

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/charlesng35/blotter/pkg/logger"
)

const defaultSlowQuery = 500 * time.Millisecond

// Config describes one database connection. DSN, when set, wins over the
// discrete host fields; Path is only read by sqlite.
type Config struct {
	Driver   string
	Path     string
	DSN      string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Options  map[string]string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowQuery       time.Duration
}

// driver builds the gorm dialector for a Config. afterOpen, when set, runs
// once on the new handle.
type driver struct {
	dialector func(Config) (gorm.Dialector, error)
	afterOpen func(*gorm.DB) error
}

var drivers = map[string]driver{
	"sqlite":     {dialector: sqliteDialector, afterOpen: applyPragmas},
	"postgres":   {dialector: postgresDialector},
	"postgresql": {dialector: postgresDialector},
	"mysql":      {dialector: mysqlDialector},
}

// Open connects using cfg. An empty driver means sqlite.
func Open(cfg Config) (*gorm.DB, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if name == "" {
		name = "sqlite"
	}
	drv, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	dialector, err := drv.dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, gormConfig(cfg.SlowQuery))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if drv.afterOpen != nil {
		if err := drv.afterOpen(db); err != nil {
			return nil, fmt.Errorf("prepare %s: %w", name, err)
		}
	}
	if err := applyPoolSettings(db, cfg); err != nil {
		return nil, err
	}
	return db, nil
}

// gormConfig routes gorm's own logging into zap. Only slow queries and errors
// are reported; a missing row is an expected outcome, not an error.
func gormConfig(slow time.Duration) *gorm.Config {
	if slow <= 0 {
		slow = defaultSlowQuery
	}
	sink := zap.NewStdLog(logger.WithModule("gorm"))
	return &gorm.Config{
		Logger: gormlogger.New(sink, gormlogger.Config{
			SlowThreshold:             slow,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func applyPoolSettings(db *gorm.DB, cfg Config) error {
	if cfg.MaxOpenConns <= 0 && cfg.MaxIdleConns <= 0 && cfg.ConnMaxLifetime <= 0 {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return nil
}

// Close releases the pool behind db. A nil db is a no-op.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	raw, err := db.DB()
	if err != nil {
		return fmt.Errorf("underlying pool: %w", err)
	}
	return raw.Close()
}
