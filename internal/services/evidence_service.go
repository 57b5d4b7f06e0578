package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/blotter/internal/models"
	"github.com/charlesng35/blotter/internal/storage"
	"github.com/charlesng35/blotter/pkg/logger"
	"github.com/charlesng35/blotter/pkg/metrics"
)

const (
	defaultMaxUploadSize  = 20 << 20
	maxFileNameLength     = 255
	maxDescriptionLength  = 2000
	sniffLength           = 512
	defaultMaxListResults = 200
)

// DefaultAllowedTypes is the upload allow-list used when none is configured.
var DefaultAllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/gif",
	"application/pdf",
}

// Types http.DetectContentType recognises reliably. Declared types outside
// this set are accepted on the allow-list alone.
var sniffableTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"image/webp":      {},
	"image/gif":       {},
	"application/pdf": {},
}

// EvidenceOption customises EvidenceService behaviour.
type EvidenceOption func(*EvidenceService)

// WithMaxUploadSize overrides the per-file size limit in bytes.
func WithMaxUploadSize(n int64) EvidenceOption {
	return func(s *EvidenceService) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

// WithAllowedTypes replaces the MIME allow-list.
func WithAllowedTypes(types []string) EvidenceOption {
	return func(s *EvidenceService) {
		if len(types) == 0 {
			return
		}
		s.allowed = make(map[string]struct{}, len(types))
		for _, t := range types {
			if t = normaliseMimeType(t); t != "" {
				s.allowed[t] = struct{}{}
			}
		}
	}
}

// WithMaxUploadsPerLink caps uploads through a single link. Zero means unlimited.
func WithMaxUploadsPerLink(n int) EvidenceOption {
	return func(s *EvidenceService) {
		if n >= 0 {
			s.maxPerLink = n
		}
	}
}

// WithEvidenceClock injects a custom clock primarily for testing.
func WithEvidenceClock(clock func() time.Time) EvidenceOption {
	return func(s *EvidenceService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// UploadInput describes a single guest upload.
type UploadInput struct {
	FileName        string
	ContentType     string
	Size            int64
	Body            io.Reader
	Description     string
	VisibleToOthers bool
	IPAddress       string
	UserAgent       string
}

// EvidenceService ingests and removes guest evidence.
type EvidenceService struct {
	db            *gorm.DB
	access        *GuestAccessService
	store         storage.ObjectStore
	audit         *AuditService
	notifications *NotificationService
	maxSize       int64
	allowed       map[string]struct{}
	maxPerLink    int
	now           func() time.Time
}

// NewEvidenceService constructs an EvidenceService. audit and notifications may be nil.
func NewEvidenceService(db *gorm.DB, access *GuestAccessService, store storage.ObjectStore, audit *AuditService, notifications *NotificationService, opts ...EvidenceOption) (*EvidenceService, error) {
	if db == nil {
		return nil, errors.New("evidence service: db is required")
	}
	if access == nil {
		return nil, errors.New("evidence service: access service is required")
	}
	if store == nil {
		return nil, errors.New("evidence service: object store is required")
	}

	svc := &EvidenceService{
		db:            db,
		access:        access,
		store:         store,
		audit:         audit,
		notifications: notifications,
		maxSize:       defaultMaxUploadSize,
		now:           time.Now,
	}
	WithAllowedTypes(DefaultAllowedTypes)(svc)
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// MaxUploadSize reports the configured per-file limit.
func (s *EvidenceService) MaxUploadSize() int64 {
	return s.maxSize
}

// Submit stores an uploaded file for the session's case. The object is written
// before the record; a failed object write leaves no record behind.
func (s *EvidenceService) Submit(ctx context.Context, token, sessionPIN string, input UploadInput) (*models.Evidence, error) {
	ctx = withContext(ctx)
	log := logger.WithModule("guest.evidence")

	session, err := s.access.RequireSession(ctx, token, sessionPIN)
	if err != nil {
		metrics.GuestUploads.WithLabelValues("rejected_session").Inc()
		return nil, err
	}
	link := session.Link

	if input.Body == nil || input.Size == 0 {
		metrics.GuestUploads.WithLabelValues("rejected_empty").Inc()
		return nil, ErrEmptyFile
	}
	if input.Size > s.maxSize {
		metrics.GuestUploads.WithLabelValues("rejected_size").Inc()
		return nil, ErrFileTooLarge
	}

	mimeType := normaliseMimeType(input.ContentType)
	if _, ok := s.allowed[mimeType]; !ok {
		metrics.GuestUploads.WithLabelValues("rejected_type").Inc()
		return nil, ErrUnsupportedType
	}

	body, err := sniffBody(input.Body, mimeType)
	if err != nil {
		metrics.GuestUploads.WithLabelValues("rejected_type").Inc()
		return nil, err
	}

	if s.maxPerLink > 0 {
		var uploaded int64
		if err := s.db.WithContext(ctx).Model(&models.Evidence{}).
			Where("guest_link_id = ?", link.ID).
			Count(&uploaded).Error; err != nil {
			return nil, fmt.Errorf("evidence service: count uploads: %w", err)
		}
		if uploaded >= int64(s.maxPerLink) {
			metrics.GuestUploads.WithLabelValues("rejected_limit").Inc()
			return nil, ErrUploadLimit
		}
	}

	now := nowUTC(s.now)
	key, err := storage.NewObjectKey(link.CaseID, mimeType, now)
	if err != nil {
		return nil, fmt.Errorf("evidence service: derive key: %w", err)
	}

	// Guard against clients under-declaring the size.
	limited := io.LimitReader(body, input.Size)
	if err := s.store.Put(ctx, key, limited, input.Size, mimeType); err != nil {
		metrics.GuestUploads.WithLabelValues("storage_failed").Inc()
		log.Warn("evidence object write failed", logger.TokenRef(link.Token), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}

	linkID := link.ID
	evidence := models.Evidence{
		CaseID:            link.CaseID,
		StorageKey:        key,
		FileName:          sanitiseFileName(input.FileName, mimeType),
		MimeType:          mimeType,
		SizeBytes:         input.Size,
		Description:       truncateRunes(strings.TrimSpace(input.Description), maxDescriptionLength),
		GuestLinkID:       &linkID,
		IsVisibleToOthers: input.VisibleToOthers,
	}
	if err := s.db.WithContext(ctx).Create(&evidence).Error; err != nil {
		metrics.GuestUploads.WithLabelValues("record_failed").Inc()
		s.removeObject(ctx, key, link.Token)
		return nil, fmt.Errorf("evidence service: create record: %w", err)
	}

	metrics.GuestUploads.WithLabelValues("success").Inc()
	metrics.GuestUploadBytes.Observe(float64(input.Size))
	log.Info("guest evidence stored",
		logger.TokenRef(link.Token),
		zap.String("case_id", link.CaseID),
		zap.String("evidence_id", evidence.ID),
		zap.Int64("size", input.Size),
	)

	recordAudit(s.audit, ctx, AuditEntry{
		CaseID: link.CaseID,
		Action: AuditGuestUpload,
		Details: map[string]any{
			"case_id":   link.CaseID,
			"token_id":  link.ID,
			"file_name": evidence.FileName,
		},
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
	})
	s.notifyIssuer(ctx, session, &evidence)

	return &evidence, nil
}

// GuestEvidence is the evidence visible through one link.
type GuestEvidence struct {
	LinkID string
	Items  []models.Evidence
}

// Owns reports whether e was uploaded through the listing link.
func (g *GuestEvidence) Owns(e models.Evidence) bool {
	return e.GuestLinkID != nil && *e.GuestLinkID == g.LinkID
}

// ListForGuest returns the case evidence visible through the session's link:
// staff uploads, this link's uploads, and other guests' uploads they shared.
func (s *EvidenceService) ListForGuest(ctx context.Context, token, sessionPIN string) (*GuestEvidence, error) {
	ctx = withContext(ctx)

	session, err := s.access.RequireSession(ctx, token, sessionPIN)
	if err != nil {
		return nil, err
	}

	var rows []models.Evidence
	if err := s.db.WithContext(ctx).
		Where("case_id = ?", session.Link.CaseID).
		Where(s.db.Where("uploaded_by IS NOT NULL").
			Or("guest_link_id = ?", session.Link.ID).
			Or("is_visible_to_others = ?", true)).
		Order("created_at DESC").
		Limit(defaultMaxListResults).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("evidence service: list evidence: %w", err)
	}
	return &GuestEvidence{LinkID: session.Link.ID, Items: rows}, nil
}

// DeleteForGuest removes evidence uploaded through the session's link. The
// object delete is best-effort; the record is always removed.
func (s *EvidenceService) DeleteForGuest(ctx context.Context, token, sessionPIN, evidenceID string, ipAddress, userAgent string) error {
	ctx = withContext(ctx)

	session, err := s.access.RequireSession(ctx, token, sessionPIN)
	if err != nil {
		metrics.GuestEvidenceDeletes.WithLabelValues("rejected_session").Inc()
		return err
	}
	link := session.Link

	var evidence models.Evidence
	if err := s.db.WithContext(ctx).First(&evidence, "id = ?", strings.TrimSpace(evidenceID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.GuestEvidenceDeletes.WithLabelValues("not_found").Inc()
			return ErrEvidenceNotFound
		}
		return fmt.Errorf("evidence service: load evidence: %w", err)
	}
	if evidence.CaseID != link.CaseID || evidence.GuestLinkID == nil || *evidence.GuestLinkID != link.ID {
		metrics.GuestEvidenceDeletes.WithLabelValues("not_found").Inc()
		return ErrEvidenceNotFound
	}

	s.removeObject(ctx, evidence.StorageKey, link.Token)

	result := s.db.WithContext(ctx).Delete(&models.Evidence{}, "id = ?", evidence.ID)
	if result.Error != nil {
		metrics.GuestEvidenceDeletes.WithLabelValues("error").Inc()
		return fmt.Errorf("evidence service: delete record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		metrics.GuestEvidenceDeletes.WithLabelValues("not_found").Inc()
		return ErrEvidenceNotFound
	}

	metrics.GuestEvidenceDeletes.WithLabelValues("success").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		CaseID: link.CaseID,
		Action: AuditGuestDeleted,
		Details: map[string]any{
			"case_id":     link.CaseID,
			"token_id":    link.ID,
			"evidence_id": evidence.ID,
			"file_name":   evidence.FileName,
		},
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	return nil
}

func (s *EvidenceService) removeObject(ctx context.Context, key, token string) {
	if err := s.store.Delete(ctx, key); err != nil {
		metrics.StorageOrphans.Inc()
		logger.WithModule("guest.evidence").Warn("evidence object left behind",
			logger.TokenRef(token),
			zap.String("storage_key", key),
			zap.Error(err),
		)
	}
}

func (s *EvidenceService) notifyIssuer(ctx context.Context, session *GuestSession, evidence *models.Evidence) {
	if s.notifications == nil || session.Link.CreatedBy == "" {
		return
	}

	label := session.Case.CaseNumber
	if label == "" {
		label = session.Case.Title
	}
	recipient := session.Link.RecipientName
	if recipient == "" {
		recipient = "A guest"
	}

	_, err := s.notifications.Create(ctx, CreateNotificationInput{
		UserID:    session.Link.CreatedBy,
		CaseID:    session.Link.CaseID,
		LinkID:    session.Link.ID,
		Type:      NotificationGuestUpload,
		Title:     "New guest evidence",
		Message:   fmt.Sprintf("%s uploaded %s to case %s", recipient, evidence.FileName, label),
		ActionURL: "/cases/" + session.Link.CaseID,
		Metadata: map[string]any{
			"evidence_id": evidence.ID,
		},
	})
	if err != nil {
		logger.WithModule("guest.evidence").Warn("issuer notification failed",
			zap.String("case_id", session.Link.CaseID), zap.Error(err))
	}
}

// sniffBody checks the leading bytes agree with the declared type and returns
// a reader that replays them.
func sniffBody(body io.Reader, declared string) (io.Reader, error) {
	head := make([]byte, sniffLength)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("evidence service: read upload: %w", err)
	}
	head = head[:n]

	if _, ok := sniffableTypes[declared]; ok {
		detected := normaliseMimeType(http.DetectContentType(head))
		if detected != declared {
			return nil, ErrUnsupportedType
		}
	}

	return io.MultiReader(bytes.NewReader(head), body), nil
}

func normaliseMimeType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(value); err == nil {
		value = parsed
	}
	value = strings.ToLower(value)
	if value == "image/jpg" || value == "image/pjpeg" {
		return "image/jpeg"
	}
	return value
}

// sanitiseFileName keeps a display name only; storage keys never use it.
func sanitiseFileName(name, mimeType string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" {
		name = "upload." + storage.ExtensionFor(mimeType)
	}
	return truncateRunes(name, maxFileNameLength)
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}
