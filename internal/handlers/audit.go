package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/blotter/internal/services"
	appErrors "github.com/charlesng35/blotter/pkg/errors"
	"github.com/charlesng35/blotter/pkg/response"
)

// AuditHandler exposes a case's guest activity trail to staff.
type AuditHandler struct {
	svc *services.AuditService
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(svc *services.AuditService) (*AuditHandler, error) {
	if svc == nil {
		return nil, errors.New("audit handler: service is required")
	}
	return &AuditHandler{svc: svc}, nil
}

// ListForCase serves GET /api/cases/:caseID/audit.
func (h *AuditHandler) ListForCase(c *gin.Context) {
	opts := services.AuditListOptions{
		CaseID:   c.Param("caseID"),
		Action:   c.Query("action"),
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "per_page", 0),
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("since must be an RFC 3339 timestamp"))
			return
		}
		opts.Since = since
	}

	trail, err := h.svc.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, trail.Logs, response.Paginate(trail.Page, trail.PerPage, trail.Total))
}
