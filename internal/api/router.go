package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/blotter/internal/app"
	iauth "github.com/charlesng35/blotter/internal/auth"
	"github.com/charlesng35/blotter/internal/middleware"
	"github.com/charlesng35/blotter/internal/monitoring"
	"github.com/charlesng35/blotter/internal/ratelimit"
	"github.com/charlesng35/blotter/internal/realtime"
	"github.com/charlesng35/blotter/internal/services"
)

// Services bundles the domain services the HTTP layer delegates to.
type Services struct {
	Access        *services.GuestAccessService
	Evidence      *services.EvidenceService
	Links         *services.GuestLinkService
	Audit         *services.AuditService
	Notifications *services.NotificationService
	Hub           *realtime.Hub
	// RequestLimiter throttles guest routes per client IP and route. Optional.
	RequestLimiter ratelimit.Limiter
	// Health defaults to a database-only prober.
	Health *monitoring.Prober
}

// NewRouter builds the Gin engine, wires middleware and registers the guest,
// staff and ops routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, svc Services) (*gin.Engine, error) {
	if db == nil {
		return nil, errors.New("database handle must be provided")
	}
	if jwt == nil {
		return nil, errors.New("jwt service must be provided")
	}
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	registerHealthRoutes(r, db, svc.Health)

	if err := registerGuestRoutes(r, cfg, svc); err != nil {
		return nil, err
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	if err := registerGuestLinkRoutes(api, svc); err != nil {
		return nil, err
	}
	if err := registerAuditRoutes(api, svc); err != nil {
		return nil, err
	}
	if err := registerNotificationRoutes(api, svc); err != nil {
		return nil, err
	}

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
