package checks

import (
	"context"

	"gorm.io/gorm"

	"github.com/charlesng35/blotter/internal/monitoring"
)

// Database pings the record store.
func Database(db *gorm.DB) monitoring.Check {
	return monitoring.Check{Name: "database", Run: func(ctx context.Context) monitoring.ProbeResult {
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}
		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError(err)
		}
		return monitoring.ResultFromError(sqlDB.PingContext(ctx))
	}}
}
