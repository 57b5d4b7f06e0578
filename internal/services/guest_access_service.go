package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/blotter/internal/models"
	"github.com/charlesng35/blotter/internal/ratelimit"
	"github.com/charlesng35/blotter/pkg/crypto"
	"github.com/charlesng35/blotter/pkg/logger"
	"github.com/charlesng35/blotter/pkg/metrics"
)

// Link states reported to guests.
const (
	LinkStatusActive     = "active"
	LinkStatusExpired    = "expired"
	LinkStatusCaseClosed = "case_closed"
)

// AccessOption customises GuestAccessService behaviour.
type AccessOption func(*GuestAccessService)

// WithAccessClock injects a custom clock primarily for testing.
func WithAccessClock(clock func() time.Time) AccessOption {
	return func(s *GuestAccessService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// GuestSession is the proof returned by RequireSession. It is rebuilt from the
// current link state on every call and never cached.
type GuestSession struct {
	Link *models.GuestLink
	Case *models.BlotterCase
}

// LinkDescription is what an unauthenticated visitor of a link may learn.
type LinkDescription struct {
	Status        string              `json:"status"`
	ExpiresAt     time.Time           `json:"expires_at"`
	Authenticated bool                `json:"authenticated"`
	Case          *models.BlotterCase `json:"case,omitempty"`
}

// GuestAccessService verifies guest PINs and re-validates guest sessions.
type GuestAccessService struct {
	db      *gorm.DB
	limiter ratelimit.Limiter
	now     func() time.Time
}

// NewGuestAccessService constructs a GuestAccessService.
func NewGuestAccessService(db *gorm.DB, limiter ratelimit.Limiter, opts ...AccessOption) (*GuestAccessService, error) {
	if db == nil {
		return nil, errors.New("guest access service: db is required")
	}
	if limiter == nil {
		return nil, errors.New("guest access service: limiter is required")
	}

	svc := &GuestAccessService{db: db, limiter: limiter, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// VerifyPIN checks pin for token. The attempt is charged against the token's
// budget before the link is looked up, so a refused attempt reveals nothing
// about whether the token exists. Link expiry is not checked here.
func (s *GuestAccessService) VerifyPIN(ctx context.Context, token, pin string) (*models.GuestLink, error) {
	ctx = withContext(ctx)
	log := logger.WithModule("guest.access")

	token, err := crypto.NormalizeToken(token)
	if err != nil {
		metrics.GuestPinAttempts.WithLabelValues("invalid_token").Inc()
		return nil, ErrInvalidToken
	}

	decision, err := s.limiter.Consume(ctx, token)
	if err != nil {
		metrics.GuestPinAttempts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("guest access service: rate limit: %w", err)
	}
	if !decision.Allowed {
		metrics.GuestPinAttempts.WithLabelValues("rate_limited").Inc()
		log.Info("pin attempts exhausted", logger.TokenRef(token), zap.Duration("retry_after", decision.RetryAfter))
		return nil, &RateLimitError{RetryAfter: decision.RetryAfter}
	}

	link, err := s.findByToken(ctx, token, false)
	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			metrics.GuestPinAttempts.WithLabelValues("invalid_token").Inc()
			return nil, ErrInvalidToken
		}
		metrics.GuestPinAttempts.WithLabelValues("error").Inc()
		return nil, err
	}

	if !crypto.EqualSecret(strings.TrimSpace(pin), link.PIN) {
		metrics.GuestPinAttempts.WithLabelValues("invalid_pin").Inc()
		log.Info("invalid pin", logger.TokenRef(token), zap.Int("remaining", decision.Remaining))
		return nil, ErrInvalidPIN
	}

	metrics.GuestPinAttempts.WithLabelValues("success").Inc()
	return link, nil
}

// RequireSession validates the PIN asserted by the guest's session cookie
// against the link's current PIN, then re-checks that the link and its case
// still grant access. The cookie is a PIN guess like any other: an exhausted
// budget refuses it even when it matches, and a mismatch spends a point.
func (s *GuestAccessService) RequireSession(ctx context.Context, token, sessionPIN string) (*GuestSession, error) {
	ctx = withContext(ctx)

	token, err := crypto.NormalizeToken(token)
	if err != nil || sessionPIN == "" {
		return nil, ErrUnauthorized
	}
	if err := s.admitSessionGuess(ctx, token); err != nil {
		return nil, err
	}

	link, err := s.findByToken(ctx, token, true)
	switch {
	case errors.Is(err, ErrLinkNotFound):
		return nil, s.rejectSessionGuess(ctx, token)
	case err != nil:
		return nil, err
	}

	if !crypto.EqualSecret(sessionPIN, link.PIN) {
		return nil, s.rejectSessionGuess(ctx, token)
	}
	if !link.Usable(nowUTC(s.now)) || link.Case == nil {
		return nil, ErrLinkExpired
	}
	if link.Case.IsTerminal() {
		return nil, ErrCaseClosed
	}

	return &GuestSession{Link: link, Case: link.Case}, nil
}

// Describe reports the link's state. Case details are included only when the
// caller holds a valid session; a presented cookie is metered like
// RequireSession does.
func (s *GuestAccessService) Describe(ctx context.Context, token, sessionPIN string) (*LinkDescription, error) {
	ctx = withContext(ctx)

	token, err := crypto.NormalizeToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	link, err := s.findByToken(ctx, token, true)
	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	desc := &LinkDescription{Status: LinkStatusActive, ExpiresAt: link.ExpiresAt}
	switch {
	case !link.Usable(nowUTC(s.now)) || link.Case == nil:
		desc.Status = LinkStatusExpired
	case link.Case.IsTerminal():
		desc.Status = LinkStatusCaseClosed
	}
	if desc.Status != LinkStatusActive || sessionPIN == "" {
		return desc, nil
	}

	if err := s.admitSessionGuess(ctx, token); err != nil {
		return nil, err
	}
	if !crypto.EqualSecret(sessionPIN, link.PIN) {
		if err := s.rejectSessionGuess(ctx, token); !errors.Is(err, ErrUnauthorized) {
			return nil, err
		}
		return desc, nil
	}

	desc.Authenticated = true
	desc.Case = link.Case
	return desc, nil
}

// admitSessionGuess refuses any cookie check while token's PIN budget is
// exhausted, without spending a point.
func (s *GuestAccessService) admitSessionGuess(ctx context.Context, token string) error {
	decision, err := s.limiter.Peek(ctx, token)
	if err != nil {
		return fmt.Errorf("guest access service: rate limit: %w", err)
	}
	if !decision.Allowed {
		metrics.GuestPinAttempts.WithLabelValues("rate_limited").Inc()
		return &RateLimitError{RetryAfter: decision.RetryAfter}
	}
	return nil
}

// rejectSessionGuess charges a failed cookie check. It returns ErrUnauthorized,
// or a RateLimitError when the budget was already spent by a racing guess.
func (s *GuestAccessService) rejectSessionGuess(ctx context.Context, token string) error {
	decision, err := s.limiter.Consume(ctx, token)
	if err != nil {
		return fmt.Errorf("guest access service: rate limit: %w", err)
	}
	if !decision.Allowed {
		metrics.GuestPinAttempts.WithLabelValues("rate_limited").Inc()
		return &RateLimitError{RetryAfter: decision.RetryAfter}
	}
	metrics.GuestPinAttempts.WithLabelValues("invalid_session").Inc()
	logger.WithModule("guest.access").Info("session pin mismatch",
		logger.TokenRef(token), zap.Int("remaining", decision.Remaining))
	return ErrUnauthorized
}

func (s *GuestAccessService) findByToken(ctx context.Context, token string, withCase bool) (*models.GuestLink, error) {
	query := s.db.WithContext(ctx)
	if withCase {
		query = query.Preload("Case")
	}

	var link models.GuestLink
	if err := query.Where("token = ?", token).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("guest access service: load link: %w", err)
	}
	return &link, nil
}
