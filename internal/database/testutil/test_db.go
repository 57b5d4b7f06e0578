// Package testutil opens throwaway SQLite databases for package tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/blotter/internal/database"
	"github.com/charlesng35/blotter/internal/models"
)

// TestDBOption adjusts MustOpenTestDB.
type TestDBOption func(*options)

type options struct {
	migrate bool
	dir     string
}

// WithAutoMigrate applies the portal schema after opening.
func WithAutoMigrate() TestDBOption {
	return func(o *options) { o.migrate = true }
}

// WithFileIn stores the database as a file in dir, for tests that need WAL
// and busy-timeout behaviour across connections.
func WithFileIn(dir string) TestDBOption {
	return func(o *options) { o.dir = dir }
}

// MustOpenTestDB opens a private SQLite database, in memory unless
// WithFileIn is given, and closes it when the test ends.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	var o options
	for _, apply := range opts {
		apply(&o)
	}

	cfg := database.Config{Driver: "sqlite"}
	if o.dir != "" {
		cfg.Path = filepath.Join(o.dir, "blotter-test.sqlite")
	}
	db, err := database.Open(cfg)
	require.NoError(t, err)

	raw, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	if o.migrate {
		require.NoError(t, database.Migrate(db))
	}
	return db
}

// SeedCase inserts a case with a fresh case number.
func SeedCase(t *testing.T, db *gorm.DB, status, createdBy string) *models.BlotterCase {
	t.Helper()
	c := models.BlotterCase{
		CaseNumber:   "BLT-" + uuid.NewString()[:8],
		Title:        "Vandalism",
		Status:       status,
		IncidentDate: time.Date(2025, 5, 30, 22, 0, 0, 0, time.UTC),
		CreatedBy:    createdBy,
	}
	require.NoError(t, db.Create(&c).Error)
	return &c
}
