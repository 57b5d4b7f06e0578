package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/blotter/internal/models"
	"github.com/charlesng35/blotter/internal/ratelimit"
	"github.com/charlesng35/blotter/pkg/crypto"
	"github.com/charlesng35/blotter/pkg/logger"
	pkgmail "github.com/charlesng35/blotter/pkg/mail"
)

const (
	defaultLinkTokenBytes     = 32
	defaultLinkDurationHours  = 24
	defaultMinLinkHours       = 1
	defaultMaxLinkHours       = 168
	defaultMaxActiveLinks     = 5
	maxTokenGenerationRetries = 3
)

// LinkOption customises GuestLinkService behaviour.
type LinkOption func(*GuestLinkService)

// WithLinkBaseURL configures the public base URL guest links are built on.
func WithLinkBaseURL(url string) LinkOption {
	return func(s *GuestLinkService) {
		s.baseURL = strings.TrimRight(strings.TrimSpace(url), "/")
	}
}

// WithLinkDurations sets the accepted and default link lifetimes in hours.
func WithLinkDurations(minHours, maxHours, defaultHours int) LinkOption {
	return func(s *GuestLinkService) {
		if minHours > 0 {
			s.minHours = minHours
		}
		if maxHours >= s.minHours {
			s.maxHours = maxHours
		}
		if defaultHours >= s.minHours && defaultHours <= s.maxHours {
			s.defaultHours = defaultHours
		}
	}
}

// WithMaxActiveLinks caps concurrently usable links per case. Zero disables the cap.
func WithMaxActiveLinks(n int) LinkOption {
	return func(s *GuestLinkService) {
		if n >= 0 {
			s.maxActive = n
		}
	}
}

// WithLinkLimiter lets PIN rotation clear the attempt counter for the link.
func WithLinkLimiter(limiter ratelimit.Limiter) LinkOption {
	return func(s *GuestLinkService) {
		s.limiter = limiter
	}
}

// WithLinkClock injects a custom clock primarily for testing.
func WithLinkClock(clock func() time.Time) LinkOption {
	return func(s *GuestLinkService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// Recipient identifies who a guest link is meant for.
type Recipient struct {
	Name  string
	Email string
	Phone string
}

// IssueLinkInput describes a new guest link request.
type IssueLinkInput struct {
	CaseID        string
	IssuerID      string
	DurationHours int
	Recipient     Recipient
	IPAddress     string
	UserAgent     string
}

// IssuedLink is returned once at creation; the PIN is not retrievable afterwards.
type IssuedLink struct {
	Link  *models.GuestLink
	Token string
	PIN   string
	URL   string
}

// GuestLinkService is the staff-side writer of the link registry.
type GuestLinkService struct {
	db           *gorm.DB
	audit        *AuditService
	mailer       pkgmail.Mailer
	limiter      ratelimit.Limiter
	baseURL      string
	minHours     int
	maxHours     int
	defaultHours int
	maxActive    int
	now          func() time.Time
}

// NewGuestLinkService constructs a GuestLinkService.
func NewGuestLinkService(db *gorm.DB, audit *AuditService, mailer pkgmail.Mailer, opts ...LinkOption) (*GuestLinkService, error) {
	if db == nil {
		return nil, errors.New("guest link service: db is required")
	}

	svc := &GuestLinkService{
		db:           db,
		audit:        audit,
		mailer:       mailer,
		minHours:     defaultMinLinkHours,
		maxHours:     defaultMaxLinkHours,
		defaultHours: defaultLinkDurationHours,
		maxActive:    defaultMaxActiveLinks,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Issue creates a link for caseID with a fresh token and PIN, then emails the
// recipient when an address is given.
func (s *GuestLinkService) Issue(ctx context.Context, input IssueLinkInput) (*IssuedLink, error) {
	ctx = withContext(ctx)

	caseID := strings.TrimSpace(input.CaseID)
	issuerID := strings.TrimSpace(input.IssuerID)
	if caseID == "" || issuerID == "" {
		return nil, errors.New("guest link service: case id and issuer id are required")
	}

	hours := input.DurationHours
	if hours == 0 {
		hours = s.defaultHours
	}
	if hours < s.minHours || hours > s.maxHours {
		return nil, ErrInvalidDuration
	}

	recipient, err := normaliseRecipient(input.Recipient)
	if err != nil {
		return nil, err
	}

	blotterCase, err := s.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if blotterCase.IsTerminal() {
		return nil, ErrCaseClosed
	}

	now := nowUTC(s.now)
	if s.maxActive > 0 {
		var active int64
		if err := s.db.WithContext(ctx).Model(&models.GuestLink{}).
			Where("case_id = ? AND is_active = ? AND expires_at > ?", caseID, true, now).
			Count(&active).Error; err != nil {
			return nil, fmt.Errorf("guest link service: count active links: %w", err)
		}
		if active >= int64(s.maxActive) {
			return nil, ErrActiveLinkLimit
		}
	}

	pin, err := crypto.GeneratePIN()
	if err != nil {
		return nil, fmt.Errorf("guest link service: generate pin: %w", err)
	}

	link := models.GuestLink{
		PIN:            pin,
		CaseID:         caseID,
		CreatedBy:      issuerID,
		ExpiresAt:      now.Add(time.Duration(hours) * time.Hour),
		IsActive:       true,
		RecipientName:  recipient.Name,
		RecipientEmail: recipient.Email,
		RecipientPhone: recipient.Phone,
	}

	for attempt := 0; ; attempt++ {
		token, err := crypto.GenerateToken(defaultLinkTokenBytes)
		if err != nil {
			return nil, fmt.Errorf("guest link service: generate token: %w", err)
		}
		link.ID = ""
		link.Token = token

		err = s.db.WithContext(ctx).Create(&link).Error
		if err == nil {
			break
		}
		if !isUniqueConstraintError(err) || attempt+1 >= maxTokenGenerationRetries {
			return nil, fmt.Errorf("guest link service: create link: %w", err)
		}
	}

	issued := &IssuedLink{
		Link:  &link,
		Token: link.Token,
		PIN:   pin,
		URL:   s.LinkURL(link.Token),
	}

	s.sendInvitation(ctx, blotterCase, issued)

	recordAudit(s.audit, ctx, AuditEntry{
		UserID: &issuerID,
		CaseID: caseID,
		Action: AuditGuestLinkCreated,
		Details: map[string]any{
			"case_id":        caseID,
			"link_id":        link.ID,
			"expires_at":     link.ExpiresAt,
			"duration_hours": hours,
			"recipient":      recipient.Name,
		},
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
	})

	return issued, nil
}

// List returns every link issued for caseID, newest first.
func (s *GuestLinkService) List(ctx context.Context, caseID string) ([]models.GuestLink, error) {
	ctx = withContext(ctx)

	var links []models.GuestLink
	if err := s.db.WithContext(ctx).
		Where("case_id = ?", strings.TrimSpace(caseID)).
		Order("created_at DESC").
		Find(&links).Error; err != nil {
		return nil, fmt.Errorf("guest link service: list links: %w", err)
	}
	return links, nil
}

// ToggleActive flips is_active without touching the expiry. Links on closed
// cases can no longer be reopened or closed.
func (s *GuestLinkService) ToggleActive(ctx context.Context, linkID, actorID string) (*models.GuestLink, error) {
	ctx = withContext(ctx)

	link, err := s.loadLink(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if link.Case != nil && link.Case.IsTerminal() {
		return nil, ErrCaseClosed
	}

	next := !link.IsActive
	result := s.db.WithContext(ctx).Model(&models.GuestLink{}).
		Where("id = ? AND is_active = ?", link.ID, link.IsActive).
		Update("is_active", next)
	if result.Error != nil {
		return nil, fmt.Errorf("guest link service: toggle link: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// A concurrent toggle won; report the state it left behind.
		return s.loadLink(ctx, link.ID)
	}
	link.IsActive = next

	recordAudit(s.audit, ctx, AuditEntry{
		UserID: optionalString(actorID),
		CaseID: link.CaseID,
		Action: AuditGuestLinkToggled,
		Details: map[string]any{
			"case_id":   link.CaseID,
			"link_id":   link.ID,
			"is_active": next,
		},
	})

	return link, nil
}

// RotatePIN replaces the link's PIN. Every outstanding guest session is bound
// to the old PIN and stops working immediately.
func (s *GuestLinkService) RotatePIN(ctx context.Context, linkID, actorID string) (*models.GuestLink, string, error) {
	ctx = withContext(ctx)

	link, err := s.loadLink(ctx, linkID)
	if err != nil {
		return nil, "", err
	}
	if link.Case != nil && link.Case.IsTerminal() {
		return nil, "", ErrCaseClosed
	}

	pin := link.PIN
	for pin == link.PIN {
		if pin, err = crypto.GeneratePIN(); err != nil {
			return nil, "", fmt.Errorf("guest link service: generate pin: %w", err)
		}
	}

	if err := s.db.WithContext(ctx).Model(&models.GuestLink{}).
		Where("id = ?", link.ID).
		Update("pin", pin).Error; err != nil {
		return nil, "", fmt.Errorf("guest link service: rotate pin: %w", err)
	}
	link.PIN = pin

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, link.Token); err != nil {
			logger.WithModule("guest.links").Warn("reset pin attempts failed",
				logger.TokenRef(link.Token), zap.Error(err))
		}
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:  optionalString(actorID),
		CaseID:  link.CaseID,
		Action:  AuditGuestPINRotated,
		Details: map[string]any{"case_id": link.CaseID, "link_id": link.ID},
	})

	return link, pin, nil
}

// LinkURL builds the public URL for token.
func (s *GuestLinkService) LinkURL(token string) string {
	if s.baseURL == "" {
		return "/guest/" + token
	}
	return s.baseURL + "/guest/" + token
}

func (s *GuestLinkService) loadCase(ctx context.Context, caseID string) (*models.BlotterCase, error) {
	var blotterCase models.BlotterCase
	if err := s.db.WithContext(ctx).First(&blotterCase, "id = ?", caseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("guest link service: load case: %w", err)
	}
	return &blotterCase, nil
}

func (s *GuestLinkService) loadLink(ctx context.Context, linkID string) (*models.GuestLink, error) {
	var link models.GuestLink
	if err := s.db.WithContext(ctx).
		Preload("Case").
		First(&link, "id = ?", strings.TrimSpace(linkID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("guest link service: load link: %w", err)
	}
	return &link, nil
}

func (s *GuestLinkService) sendInvitation(ctx context.Context, blotterCase *models.BlotterCase, issued *IssuedLink) {
	email := issued.Link.RecipientEmail
	if s.mailer == nil || email == "" {
		return
	}

	log := logger.WithModule("guest.links")
	subject := fmt.Sprintf("Evidence request for case %s", caseLabel(blotterCase))
	expires := issued.Link.ExpiresAt.Format(time.RFC1123)

	msg := pkgmail.Message{
		To:      []string{email},
		Subject: subject,
		Body: fmt.Sprintf(
			"Hello %s,\n\nYou have been asked to provide evidence for case %s.\n\nOpen: %s\nPIN: %s\n\nThis link expires %s.\n",
			greetingName(issued.Link.RecipientName), caseLabel(blotterCase), issued.URL, issued.PIN, expires,
		),
		HTMLBody: fmt.Sprintf(
			"<p>Hello %s,</p><p>You have been asked to provide evidence for case <strong>%s</strong>.</p>"+
				"<p><a href=\"%s\">Open the secure upload page</a></p><p>PIN: <strong>%s</strong></p><p>This link expires %s.</p>",
			html.EscapeString(greetingName(issued.Link.RecipientName)),
			html.EscapeString(caseLabel(blotterCase)),
			html.EscapeString(issued.URL),
			issued.PIN,
			html.EscapeString(expires),
		),
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		if errors.Is(err, pkgmail.ErrSMTPDisabled) {
			log.Debug("smtp disabled; guest link not emailed", zap.String("link_id", issued.Link.ID))
			return
		}
		log.Warn("guest link email failed", zap.String("link_id", issued.Link.ID), zap.Error(err))
	}
}

func normaliseRecipient(r Recipient) (Recipient, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if r.Email != "" {
		addr, err := mail.ParseAddress(r.Email)
		if err != nil || addr.Address != r.Email {
			return Recipient{}, ErrInvalidRecipient
		}
	}
	return r, nil
}

func caseLabel(c *models.BlotterCase) string {
	if c.CaseNumber != "" {
		return c.CaseNumber
	}
	return c.Title
}

func greetingName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}
