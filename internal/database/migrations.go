package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/blotter/internal/models"
)

var schema = []any{
	&models.BlotterCase{},
	&models.GuestLink{},
	&models.Evidence{},
	&models.AuditLog{},
	&models.Notification{},
	&models.RateCounter{},
}

// compositeIndexes serve the guest portal hot paths: active links per case
// and newest evidence per case. Columns inherited from BaseModel cannot carry
// composite index tags, so these are created by name.
var compositeIndexes = []struct {
	model   any
	name    string
	table   string
	columns string
}{
	{&models.GuestLink{}, "idx_guest_links_case_active", "guest_links", "case_id, is_active"},
	{&models.Evidence{}, "idx_evidence_case_created", "evidence", "case_id, created_at"},
}

// Migrate brings the schema up to date. It is safe to run on every start.
func Migrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	if err := db.AutoMigrate(schema...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	migrator := db.Migrator()
	for _, idx := range compositeIndexes {
		if migrator.HasIndex(idx.model, idx.name) {
			continue
		}
		stmt := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, idx.columns)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
