package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/blotter/internal/services"
	"github.com/charlesng35/blotter/pkg/logger"
)

// Job names reported by Status.
const (
	JobCounters = "rate_limit_cleanup"
	JobAudit    = "audit_retention"
)

const (
	defaultAuditRetentionDays = 365
	defaultCacheSpec          = "@every 15m"
	defaultAuditSpec          = "@daily"
)

// CachePurger drops persisted counters whose window has elapsed.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// LimiterPruner drops in-process counters whose window has elapsed.
type LimiterPruner interface {
	Prune() int
}

// Cleaner coordinates background maintenance: expired rate-limit counters and
// audit rows past retention.
type Cleaner struct {
	audit     *services.AuditService
	cache     CachePurger
	limiters  []LimiterPruner
	cron      *cron.Cron
	log       *zap.Logger
	retention int
	now       func() time.Time

	mu   sync.Mutex
	jobs map[string]*JobStatus

	cacheSchedule string
	auditSchedule string
}

// JobStatus summarises the most recent runs of one cleanup job.
type JobStatus struct {
	Job                 string
	Runs                int
	LastRunAt           time.Time
	LastError           string
	ConsecutiveFailures int
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithCachePurger enables purging of database-backed rate-limit counters.
func WithCachePurger(p CachePurger) Option {
	return func(cleaner *Cleaner) {
		cleaner.cache = p
	}
}

// WithLimiterPruner adds an in-process limiter to prune. May be given more than once.
func WithLimiterPruner(p LimiterPruner) Option {
	return func(cleaner *Cleaner) {
		if p != nil {
			cleaner.limiters = append(cleaner.limiters, p)
		}
	}
}

// WithClock overrides the clock used to stamp job runs.
func WithClock(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithCacheSchedule overrides the cron expression for counter cleanup.
func WithCacheSchedule(expr string) Option {
	return func(cleaner *Cleaner) {
		if expr != "" {
			cleaner.cacheSchedule = expr
		}
	}
}

// WithAuditSchedule overrides the cron expression for audit retention enforcement.
func WithAuditSchedule(expr string) Option {
	return func(cleaner *Cleaner) {
		if expr != "" {
			cleaner.auditSchedule = expr
		}
	}
}

// NewCleaner constructs a Cleaner. A nil audit service skips retention.
func NewCleaner(audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		audit:         audit,
		retention:     defaultAuditRetentionDays,
		cacheSchedule: defaultCacheSpec,
		auditSchedule: defaultAuditSpec,
		log:           logger.WithModule("maintenance"),
		now:           time.Now,
		jobs:          make(map[string]*JobStatus),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if !c.hasCounters() && c.audit == nil {
		return nil
	}

	if c.hasCounters() {
		if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
			if err := c.run(context.Background(), JobCounters, c.cleanCounters); err != nil {
				c.log.Warn("rate limit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.audit != nil {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			if err := c.run(context.Background(), JobAudit, c.cleanAudit); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs error
	if c.hasCounters() {
		errs = multierr.Append(errs, c.run(ctx, JobCounters, c.cleanCounters))
	}
	if c.audit != nil {
		errs = multierr.Append(errs, c.run(ctx, JobAudit, c.cleanAudit))
	}
	return errs
}

// Status reports every job that has run at least once, sorted by name.
func (c *Cleaner) Status() []JobStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]JobStatus, 0, len(c.jobs))
	for _, name := range []string{JobAudit, JobCounters} {
		if job, ok := c.jobs[name]; ok {
			out = append(out, *job)
		}
	}
	return out
}

func (c *Cleaner) hasCounters() bool {
	return c.cache != nil || len(c.limiters) > 0
}

func (c *Cleaner) run(ctx context.Context, name string, fn func(context.Context) error) error {
	err := fn(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[name]
	if !ok {
		job = &JobStatus{Job: name}
		c.jobs[name] = job
	}
	job.Runs++
	job.LastRunAt = c.now().UTC()
	if err != nil {
		job.LastError = err.Error()
		job.ConsecutiveFailures++
	} else {
		job.LastError = ""
		job.ConsecutiveFailures = 0
	}
	return err
}

func (c *Cleaner) cleanCounters(ctx context.Context) error {
	var errs error
	if c.cache != nil {
		removed, err := c.cache.PurgeExpired(ctx)
		if err != nil {
			errs = multierr.Append(errs, err)
		} else if removed > 0 {
			c.log.Debug("purged expired rate limit counters", zap.Int64("count", removed))
		}
	}
	for _, l := range c.limiters {
		if removed := l.Prune(); removed > 0 {
			c.log.Debug("pruned in-memory rate limit windows", zap.Int("count", removed))
		}
	}
	return errs
}

func (c *Cleaner) cleanAudit(ctx context.Context) error {
	if c.audit == nil || c.retention <= 0 {
		return nil
	}
	start := time.Now()
	removed, err := c.audit.CleanupOlderThan(ctx, c.retention)
	if err != nil {
		return err
	}
	if removed > 0 {
		c.log.Info("audit retention applied",
			zap.Int64("removed", removed),
			zap.Int("retention_days", c.retention),
			zap.Duration("took", time.Since(start)))
	}
	return nil
}
