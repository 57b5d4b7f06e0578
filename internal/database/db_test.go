package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/blotter/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestOpenDefaultsToSQLiteMemory(t *testing.T) {
	db := openTestDB(t)
	require.Equal(t, "sqlite", db.Dialector.Name())
	require.NoError(t, db.Exec("SELECT 1").Error)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.ErrorContains(t, err, `unsupported database driver "oracle"`)
}

func TestOpenSurfacesDSNErrorsBeforeConnecting(t *testing.T) {
	_, err := Open(Config{Driver: "Postgres"})
	require.ErrorContains(t, err, "postgres configuration requires")

	_, err = Open(Config{Driver: "mysql", User: "svc"})
	require.ErrorContains(t, err, "mysql configuration requires")
}

func TestSQLiteMemoryHandlesAreIsolated(t *testing.T) {
	first := openTestDB(t)
	second := openTestDB(t)

	require.NoError(t, Migrate(first))
	require.True(t, first.Migrator().HasTable(&models.GuestLink{}))
	require.False(t, second.Migrator().HasTable(&models.GuestLink{}))
}

func TestMigrateCreatesPortalSchema(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db))

	migrator := db.Migrator()
	for _, table := range []string{"cases", "guest_links", "evidence", "audit_logs", "notifications", "rate_counters"} {
		require.Truef(t, migrator.HasTable(table), "expected table %s", table)
	}
	require.True(t, migrator.HasIndex(&models.GuestLink{}, "idx_guest_links_case_active"))
	require.True(t, migrator.HasIndex(&models.Evidence{}, "idx_evidence_case_created"))
	require.True(t, migrator.HasIndex(&models.Notification{}, "idx_notifications_inbox"))

	require.NoError(t, Migrate(db))
	require.EqualError(t, Migrate(nil), "nil database handle")
}

func TestGuestLinkTokenIsUnique(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db))

	kase := models.BlotterCase{Title: "Noise complaint", Status: models.CaseStatusNew, CaseNumber: "2026-0001"}
	require.NoError(t, db.Create(&kase).Error)

	require.NoError(t, db.Create(&models.GuestLink{Token: "dup-token", PIN: "123456", CaseID: kase.ID, IsActive: true}).Error)
	require.Error(t, db.Create(&models.GuestLink{Token: "dup-token", PIN: "654321", CaseID: kase.ID, IsActive: true}).Error)
}

func TestOpenSQLiteFileAppliesPragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "blotter.sqlite")
	db, err := Open(Config{Driver: "sqlite", Path: path, MaxOpenConns: 2})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.FileExists(t, path)
	require.Equal(t, 2, sqlDB.Stats().MaxOpenConnections)

	var busy, fk int
	require.NoError(t, db.Raw("PRAGMA busy_timeout").Scan(&busy).Error)
	require.NoError(t, db.Raw("PRAGMA foreign_keys").Scan(&fk).Error)
	require.Equal(t, sqliteBusyTimeoutMS, busy)
	require.Equal(t, 1, fk)

	var mode string
	require.NoError(t, db.Raw("PRAGMA journal_mode").Scan(&mode).Error)
	require.Equal(t, "wal", mode)
}

func TestClose(t *testing.T) {
	require.NoError(t, Close(nil))

	db, err := Open(Config{Driver: "sqlite"})
	require.NoError(t, err)
	require.NoError(t, Close(db))

	raw, err := db.DB()
	require.NoError(t, err)
	require.Error(t, raw.Ping())
}
