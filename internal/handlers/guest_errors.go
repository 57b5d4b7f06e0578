package handlers

import (
	"errors"

	"go.uber.org/zap"

	"github.com/charlesng35/blotter/internal/services"
	appErrors "github.com/charlesng35/blotter/pkg/errors"
	"github.com/charlesng35/blotter/pkg/logger"
)

// guestError maps service failures onto the user-facing guest taxonomy.
// Unknown errors become a generic 500 and are logged with their cause.
func guestError(err error) *appErrors.AppError {
	var rateErr *services.RateLimitError
	switch {
	case errors.As(err, &rateErr):
		return appErrors.ErrGuestRateLimited.WithRetryAfter(rateErr.RetryAfter)
	case errors.Is(err, services.ErrInvalidToken):
		return appErrors.ErrGuestInvalidToken
	case errors.Is(err, services.ErrInvalidPIN):
		return appErrors.ErrGuestInvalidPin
	case errors.Is(err, services.ErrLinkExpired):
		return appErrors.ErrGuestLinkExpired
	case errors.Is(err, services.ErrUnauthorized):
		return appErrors.ErrUnauthorized
	case errors.Is(err, services.ErrCaseClosed):
		return appErrors.ErrGuestCaseClosed
	case errors.Is(err, services.ErrEmptyFile):
		return appErrors.NewBadRequest("file is empty")
	case errors.Is(err, services.ErrFileTooLarge):
		return appErrors.ErrEvidenceTooLarge
	case errors.Is(err, services.ErrUnsupportedType):
		return appErrors.ErrEvidenceUnsupportedType
	case errors.Is(err, services.ErrUploadLimit):
		return appErrors.ErrEvidenceUploadLimit
	case errors.Is(err, services.ErrStorageWrite):
		logger.WithModule("http").Error("evidence storage failed", zap.Error(err))
		return appErrors.ErrEvidenceStorageFailed
	case errors.Is(err, services.ErrEvidenceNotFound):
		return appErrors.ErrNotFound
	}

	logger.WithModule("http").Error("guest request failed", zap.Error(err))
	return appErrors.ErrInternalServer
}

// staffError maps link management and notification failures.
func staffError(err error) *appErrors.AppError {
	switch {
	case errors.Is(err, services.ErrLinkNotFound),
		errors.Is(err, services.ErrCaseNotFound),
		errors.Is(err, services.ErrNotificationNotFound):
		return appErrors.ErrNotFound
	case errors.Is(err, services.ErrCaseClosed):
		return appErrors.ErrGuestCaseClosed
	case errors.Is(err, services.ErrActiveLinkLimit):
		return appErrors.ErrGuestActiveLinkLimit
	case errors.Is(err, services.ErrInvalidDuration):
		return appErrors.NewBadRequest("duration_hours is out of range")
	case errors.Is(err, services.ErrInvalidRecipient):
		return appErrors.NewBadRequest("recipient email is invalid")
	}

	logger.WithModule("http").Error("staff request failed", zap.Error(err))
	return appErrors.ErrInternalServer
}
