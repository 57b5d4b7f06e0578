package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/blotter/internal/models"
)

const (
	defaultAuditPage = 50
	maxAuditPage     = 200
)

// AuditEntry is one event to record. UserID is nil for guest actions.
type AuditEntry struct {
	UserID    *string
	CaseID    string
	Action    string
	Details   map[string]any
	IPAddress string
	UserAgent string
}

// AuditListOptions filters a case trail. Zero values mean no filter; Page is
// 1-based.
type AuditListOptions struct {
	CaseID   string
	Action   string
	Since    time.Time
	Page     int
	PageSize int
}

// AuditPage is one page of a trail together with the paging actually applied.
type AuditPage struct {
	Logs    []models.AuditLog
	Total   int64
	Page    int
	PerPage int
}

// AuditOption customises AuditService behaviour.
type AuditOption func(*AuditService)

// WithAuditClock overrides the clock used for timestamps and retention.
func WithAuditClock(clock func() time.Time) AuditOption {
	return func(s *AuditService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// AuditService records who did what to guest links and evidence. Rows are
// append-only apart from retention cleanup.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *gorm.DB, opts ...AuditOption) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	svc := &AuditService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Log records entry.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return errors.New("audit service: action is required")
	}

	row := models.AuditLog{
		Action:    action,
		CaseID:    optionalString(entry.CaseID),
		IPAddress: strings.TrimSpace(entry.IPAddress),
		UserAgent: strings.TrimSpace(entry.UserAgent),
		CreatedAt: nowUTC(s.now),
	}
	if entry.UserID != nil {
		row.UserID = optionalString(*entry.UserID)
	}
	if len(entry.Details) > 0 {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("audit service: marshal details: %w", err)
		}
		row.Details = datatypes.JSON(raw)
	}

	if err := s.db.WithContext(withContext(ctx)).Create(&row).Error; err != nil {
		return fmt.Errorf("audit service: insert: %w", err)
	}
	return nil
}

func auditFilters(opts AuditListOptions) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if v := strings.TrimSpace(opts.CaseID); v != "" {
			tx = tx.Where("case_id = ?", v)
		}
		if v := strings.TrimSpace(opts.Action); v != "" {
			tx = tx.Where("action = ?", v)
		}
		if !opts.Since.IsZero() {
			tx = tx.Where("created_at >= ?", opts.Since.UTC())
		}
		return tx
	}
}

// List returns the newest entries first.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) (AuditPage, error) {
	page := AuditPage{Page: max(opts.Page, 1), PerPage: opts.PageSize}
	if page.PerPage <= 0 || page.PerPage > maxAuditPage {
		page.PerPage = defaultAuditPage
	}

	query := s.db.WithContext(withContext(ctx)).Model(&models.AuditLog{}).Scopes(auditFilters(opts))
	if err := query.Count(&page.Total).Error; err != nil {
		return AuditPage{}, fmt.Errorf("audit service: count: %w", err)
	}
	if page.Total == 0 {
		page.Logs = []models.AuditLog{}
		return page, nil
	}

	if err := query.
		Order("created_at DESC").Order("id DESC").
		Offset((page.Page - 1) * page.PerPage).
		Limit(page.PerPage).
		Find(&page.Logs).Error; err != nil {
		return AuditPage{}, fmt.Errorf("audit service: list: %w", err)
	}
	return page, nil
}

// CleanupOlderThan deletes entries older than retentionDays and reports how
// many were removed.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}
	cutoff := nowUTC(s.now).AddDate(0, 0, -retentionDays)

	res := s.db.WithContext(withContext(ctx)).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup: %w", res.Error)
	}
	return res.RowsAffected, nil
}
