// Package errors defines the error values rendered to API clients. Each has a
// stable machine-readable code; messages are safe to show to guests.
package errors

import (
	"errors"
	"net/http"
	"time"
)

// AppError is an error with a client-facing code, message and status. Internal
// carries the cause for logs and is never serialised.
type AppError struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	StatusCode int           `json:"-"`
	RetryAfter time.Duration `json:"-"`
	Internal   error         `json:"-"`
}

// New builds an AppError.
func New(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: status}
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Internal == nil {
		return e.Message
	}
	return e.Message + ": " + e.Internal.Error()
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches any AppError with the same code and status, so copies made by
// WithInternal and WithRetryAfter still match their catalogue value.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code && e.StatusCode == t.StatusCode
}

// WithInternal returns a copy with cause attached.
func (e *AppError) WithInternal(cause error) *AppError {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Internal = cause
	return &cp
}

// WithRetryAfter returns a copy carrying a retry hint. Non-positive hints are
// ignored.
func (e *AppError) WithRetryAfter(d time.Duration) *AppError {
	if e == nil {
		return nil
	}
	cp := *e
	if d > 0 {
		cp.RetryAfter = d
	}
	return &cp
}

// Generic errors.
var (
	ErrUnauthorized   = New("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrForbidden      = New("FORBIDDEN", "Permission denied", http.StatusForbidden)
	ErrNotFound       = New("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrBadRequest     = New("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrConflict       = New("CONFLICT", "Request conflicts with the current state", http.StatusConflict)
	ErrRateLimit      = New("RATE_LIMIT_EXCEEDED", "Too many requests, please slow down", http.StatusTooManyRequests)
	ErrInternalServer = New("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
)

// invalidCredentials is shared by the token and PIN failures so a guest cannot
// tell a missing link from a wrong PIN.
const invalidCredentials = "Invalid link or PIN"

// Guest portal errors.
var (
	ErrGuestInvalidToken = New("guest.invalid_credentials", invalidCredentials, http.StatusUnauthorized)
	ErrGuestInvalidPin   = New("guest.invalid_credentials", invalidCredentials, http.StatusUnauthorized)
	ErrGuestRateLimited  = New("guest.rate_limited", "Too many attempts, please try again later", http.StatusTooManyRequests)
	ErrGuestLinkExpired  = New("guest.link_expired", "This link has expired or is no longer active", http.StatusGone)
	ErrGuestCaseClosed   = New("guest.case_closed", "This case has been closed and no longer accepts evidence", http.StatusGone)

	ErrGuestActiveLinkLimit = New("guest.active_link_limit", "This case already has the maximum number of active links", http.StatusConflict)

	ErrEvidenceTooLarge        = New("evidence.file_too_large", "File exceeds the maximum allowed size", http.StatusRequestEntityTooLarge)
	ErrEvidenceUnsupportedType = New("evidence.unsupported_type", "File type is not allowed", http.StatusUnsupportedMediaType)
	ErrEvidenceUploadLimit     = New("evidence.upload_limit", "Upload limit reached for this link", http.StatusConflict)
	ErrEvidenceStorageFailed   = New("evidence.storage_failed", "Failed to store the uploaded file", http.StatusBadGateway)
)

// FromError returns the AppError in err's chain, or ErrInternalServer
// wrapping err.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest is a 400 with a specific message.
func NewBadRequest(message string) *AppError {
	return New(ErrBadRequest.Code, message, ErrBadRequest.StatusCode)
}
