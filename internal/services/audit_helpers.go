package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/charlesng35/blotter/pkg/logger"
)

// Audit action names shared with the staff application.
const (
	AuditGuestLinkCreated = "Guest Link Created"
	AuditGuestLinkToggled = "Guest Link Toggled"
	AuditGuestPINRotated  = "Guest Link PIN Rotated"
	AuditGuestUpload      = "Guest Upload"
	AuditGuestDeleted     = "Guest Deleted Evidence"
)

// recordAudit logs the supplied entry while tolerating audit failures.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	if err := audit.Log(ctx, entry); err != nil {
		logger.WithModule("audit").Warn("audit write failed",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}
