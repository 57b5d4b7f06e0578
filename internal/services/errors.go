package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Guest access failures. ErrInvalidToken and ErrInvalidPIN are rendered
// identically to guests but stay distinct here for logs and metrics.
var (
	ErrInvalidToken = errors.New("guest: invalid token")
	ErrInvalidPIN   = errors.New("guest: invalid pin")
	ErrRateLimited  = errors.New("guest: too many attempts")
	ErrLinkExpired  = errors.New("guest: link expired or inactive")
	ErrUnauthorized = errors.New("guest: no valid session")
	ErrCaseClosed   = errors.New("guest: case closed")
)

// Evidence ingest failures.
var (
	ErrEmptyFile        = errors.New("evidence: file is empty")
	ErrFileTooLarge     = errors.New("evidence: file too large")
	ErrUnsupportedType  = errors.New("evidence: unsupported file type")
	ErrUploadLimit      = errors.New("evidence: upload limit reached")
	ErrStorageWrite     = errors.New("evidence: storage write failed")
	ErrEvidenceNotFound = errors.New("evidence: not found")
)

// Link management failures.
var (
	ErrLinkNotFound     = errors.New("guest link: not found")
	ErrCaseNotFound     = errors.New("guest link: case not found")
	ErrActiveLinkLimit  = errors.New("guest link: active link limit reached")
	ErrInvalidDuration  = errors.New("guest link: duration out of range")
	ErrInvalidRecipient = errors.New("guest link: invalid recipient")
)

// RateLimitError reports a refused PIN attempt together with the wait before
// the window resets. It matches ErrRateLimited under errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

// Is lets errors.Is(err, ErrRateLimited) succeed.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate")
}
