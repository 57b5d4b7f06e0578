package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/blotter/internal/api"
	"github.com/charlesng35/blotter/internal/app"
	"github.com/charlesng35/blotter/internal/app/maintenance"
	iauth "github.com/charlesng35/blotter/internal/auth"
	"github.com/charlesng35/blotter/internal/cache"
	"github.com/charlesng35/blotter/internal/database"
	"github.com/charlesng35/blotter/internal/monitoring"
	"github.com/charlesng35/blotter/internal/monitoring/checks"
	"github.com/charlesng35/blotter/internal/ratelimit"
	"github.com/charlesng35/blotter/internal/realtime"
	"github.com/charlesng35/blotter/internal/services"
	"github.com/charlesng35/blotter/pkg/logger"
	"github.com/charlesng35/blotter/pkg/mail"
)

// maintenanceMaxAge flags cleanup jobs that have not run for longer than the
// slowest default schedule plus slack.
const maintenanceMaxAge = 26 * time.Hour

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Redis   *redis.Client
	Cleaner *maintenance.Cleaner
	Hub     *realtime.Hub
	Router  *gin.Engine
}

// limiters holds the PIN limiter and the optional per-IP request limiter,
// plus whatever the cleaner must sweep for the chosen backend.
type limiters struct {
	pin     ratelimit.Limiter
	request ratelimit.Limiter
	purger  maintenance.CachePurger
	pruners []maintenance.LimiterPruner
}

// bootstrapRuntime initialises databases, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed counters", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	lim, err := buildLimiters(cfg, stack.DB, stack.Redis)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	store, err := cfg.Storage.OpenObjectStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open evidence storage: %w", err)
	}
	log.Info("evidence storage ready", zap.String("driver", cfg.Storage.Driver))

	mailer, err := mail.NewSMTPMailer(cfg.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	hub := realtime.NewHub()
	stack.Hub = hub

	auditSvc, err := services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	notificationSvc, err := services.NewNotificationService(stack.DB, hub)
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}

	accessSvc, err := services.NewGuestAccessService(stack.DB, lim.pin)
	if err != nil {
		return nil, fmt.Errorf("initialise guest access service: %w", err)
	}

	linkSvc, err := services.NewGuestLinkService(stack.DB, auditSvc, mailer, cfg.LinkOptions(lim.pin)...)
	if err != nil {
		return nil, fmt.Errorf("initialise guest link service: %w", err)
	}

	evidenceSvc, err := services.NewEvidenceService(stack.DB, accessSvc, store, auditSvc, notificationSvc, cfg.Guest.EvidenceOptions()...)
	if err != nil {
		return nil, fmt.Errorf("initialise evidence service: %w", err)
	}

	cleanerOpts := []maintenance.Option{
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		maintenance.WithCacheSchedule(cfg.Maintenance.CacheSchedule),
		maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
	}
	if lim.purger != nil {
		cleanerOpts = append(cleanerOpts, maintenance.WithCachePurger(lim.purger))
	}
	for _, p := range lim.pruners {
		cleanerOpts = append(cleanerOpts, maintenance.WithLimiterPruner(p))
	}
	stack.Cleaner = maintenance.NewCleaner(auditSvc, cleanerOpts...)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, api.Services{
		Health:         stack.healthProber(cfg),
		Access:         accessSvc,
		Evidence:       evidenceSvc,
		Links:          linkSvc,
		Audit:          auditSvc,
		Notifications:  notificationSvc,
		Hub:            hub,
		RequestLimiter: lim.request,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func (s *runtimeStack) healthProber(cfg *app.Config) *monitoring.Prober {
	var pinger checks.RedisPinger
	if s.Redis != nil {
		pinger = s.Redis
	}
	return monitoring.NewProber(0,
		checks.Database(s.DB),
		checks.Redis(pinger, cfg.Cache.Redis.Enabled),
		checks.Maintenance(s.Cleaner, maintenanceMaxAge, nil),
	)
}

// buildLimiters picks the counter backend: redis when connected, otherwise the
// shared database table, and the in-process limiter for sqlite single-node runs.
func buildLimiters(cfg *app.Config, db *gorm.DB, rdb *redis.Client) (*limiters, error) {
	out := &limiters{}
	pinCfg := cfg.Guest.PINLimiterConfig()
	reqCfg := ratelimit.Config{Points: cfg.Server.RequestsPerMinute, Duration: time.Minute}

	var store cache.Store
	switch {
	case rdb != nil:
		store = cache.NewRedisStore(rdb)
	case cfg.Database.Shared():
		dbStore := cache.NewDatabaseStore(db)
		out.purger = dbStore
		store = dbStore
	}

	if store == nil {
		mem := ratelimit.NewMemoryLimiter(pinCfg)
		out.pin = mem
		out.pruners = append(out.pruners, mem)
		if cfg.Server.RequestsPerMinute > 0 {
			req := ratelimit.NewMemoryLimiter(reqCfg)
			out.request = req
			out.pruners = append(out.pruners, req)
		}
		return out, nil
	}

	pin, err := ratelimit.NewStoreLimiter(store, pinCfg, "pin")
	if err != nil {
		return nil, fmt.Errorf("initialise pin limiter: %w", err)
	}
	out.pin = pin

	if cfg.Server.RequestsPerMinute > 0 {
		req, err := ratelimit.NewStoreLimiter(store, reqCfg, "req")
		if err != nil {
			return nil, fmt.Errorf("initialise request limiter: %w", err)
		}
		out.request = req
	}
	return out, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	s.Hub.Close()

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if err := database.Close(s.DB); err != nil {
		log.Warn("database close", zap.Error(err))
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	store := cfg.Database.StoreConfig()
	db, err := database.Open(store)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger.WithModule("database").Info("database ready", zap.String("driver", store.Driver))
	return db, nil
}
