package database

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// sqliteBusyTimeoutMS lets concurrent uploads and PIN counters wait on the
// write lock instead of failing with SQLITE_BUSY.
const sqliteBusyTimeoutMS = 5000

func sqliteDialector(cfg Config) (gorm.Dialector, error) {
	if cfg.DSN != "" {
		return sqlite.Open(cfg.DSN), nil
	}
	dsn, err := sqliteDSN(strings.TrimSpace(cfg.Path))
	if err != nil {
		return nil, err
	}
	return sqlite.Open(dsn), nil
}

// sqliteDSN gives every in-memory handle its own named database so parallel
// tests never share state. File databases run in WAL mode.
func sqliteDSN(path string) (string, error) {
	q := url.Values{}
	q.Set("_foreign_keys", "1")
	q.Set("_busy_timeout", fmt.Sprint(sqliteBusyTimeoutMS))

	if path == "" || strings.EqualFold(path, ":memory:") {
		q.Set("mode", "memory")
		q.Set("cache", "shared")
		return "file:mem_" + uuid.NewString() + "?" + q.Encode(), nil
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	q.Set("_journal_mode", "WAL")
	return "file:" + filepath.ToSlash(path) + "?" + q.Encode(), nil
}

// applyPragmas repeats the DSN settings on the pool; not every sqlite driver
// honours the underscore parameters.
func applyPragmas(db *gorm.DB) error {
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", sqliteBusyTimeoutMS),
	} {
		if err := db.Exec(pragma).Error; err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}
