package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/blotter/internal/handlers"
	"github.com/charlesng35/blotter/internal/monitoring"
	"github.com/charlesng35/blotter/internal/monitoring/checks"
)

func registerHealthRoutes(r *gin.Engine, db *gorm.DB, prober *monitoring.Prober) {
	if prober == nil {
		prober = monitoring.NewProber(0, checks.Database(db))
	}
	health := handlers.Health(prober)
	r.GET("/health", health)
	r.GET("/api/health", health)
}
