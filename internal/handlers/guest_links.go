package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/blotter/internal/middleware"
	"github.com/charlesng35/blotter/internal/models"
	"github.com/charlesng35/blotter/internal/services"
	appErrors "github.com/charlesng35/blotter/pkg/errors"
	"github.com/charlesng35/blotter/pkg/response"
)

// GuestLinkHandler exposes staff link management.
type GuestLinkHandler struct {
	links *services.GuestLinkService
}

// NewGuestLinkHandler constructs a GuestLinkHandler.
func NewGuestLinkHandler(links *services.GuestLinkService) (*GuestLinkHandler, error) {
	if links == nil {
		return nil, errors.New("guest link handler: service is required")
	}
	return &GuestLinkHandler{links: links}, nil
}

type issueLinkRequest struct {
	DurationHours  int    `json:"duration_hours" validate:"omitempty,min=1"`
	RecipientName  string `json:"recipient_name" validate:"omitempty,max=255"`
	RecipientEmail string `json:"recipient_email" validate:"omitempty,email"`
	RecipientPhone string `json:"recipient_phone" validate:"omitempty,max=64,phone"`
}

// linkView never carries the PIN; that is only returned on issue and rotation.
type linkView struct {
	ID             string    `json:"id"`
	CaseID         string    `json:"case_id"`
	URL            string    `json:"url"`
	CreatedBy      string    `json:"created_by"`
	ExpiresAt      time.Time `json:"expires_at"`
	IsActive       bool      `json:"is_active"`
	Usable         bool      `json:"usable"`
	RecipientName  string    `json:"recipient_name,omitempty"`
	RecipientEmail string    `json:"recipient_email,omitempty"`
	RecipientPhone string    `json:"recipient_phone,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Issue creates a guest link for a case.
func (h *GuestLinkHandler) Issue(c *gin.Context) {
	userID := middleware.StaffID(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req issueLinkRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ip, userAgent := requestOrigin(c)
	issued, err := h.links.Issue(requestContext(c), services.IssueLinkInput{
		CaseID:        strings.TrimSpace(c.Param("caseID")),
		IssuerID:      userID,
		DurationHours: req.DurationHours,
		Recipient: services.Recipient{
			Name:  req.RecipientName,
			Email: req.RecipientEmail,
			Phone: req.RecipientPhone,
		},
		IPAddress: ip,
		UserAgent: userAgent,
	})
	if err != nil {
		response.Error(c, staffError(err))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"link": h.view(*issued.Link),
		"pin":  issued.PIN,
	})
}

// List returns a case's links.
func (h *GuestLinkHandler) List(c *gin.Context) {
	links, err := h.links.List(requestContext(c), c.Param("caseID"))
	if err != nil {
		response.Error(c, staffError(err))
		return
	}

	views := make([]linkView, 0, len(links))
	for _, link := range links {
		views = append(views, h.view(link))
	}
	response.Success(c, http.StatusOK, views)
}

// Toggle flips a link between active and inactive.
func (h *GuestLinkHandler) Toggle(c *gin.Context) {
	link, err := h.links.ToggleActive(requestContext(c), c.Param("id"), middleware.StaffID(c))
	if err != nil {
		response.Error(c, staffError(err))
		return
	}
	response.Success(c, http.StatusOK, h.view(*link))
}

// RotatePIN issues a fresh PIN, ending every open guest session on the link.
func (h *GuestLinkHandler) RotatePIN(c *gin.Context) {
	link, pin, err := h.links.RotatePIN(requestContext(c), c.Param("id"), middleware.StaffID(c))
	if err != nil {
		response.Error(c, staffError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"link": h.view(*link),
		"pin":  pin,
	})
}

func (h *GuestLinkHandler) view(link models.GuestLink) linkView {
	return linkView{
		ID:             link.ID,
		CaseID:         link.CaseID,
		URL:            h.links.LinkURL(link.Token),
		CreatedBy:      link.CreatedBy,
		ExpiresAt:      link.ExpiresAt,
		IsActive:       link.IsActive,
		Usable:         link.Usable(time.Now()),
		RecipientName:  link.RecipientName,
		RecipientEmail: link.RecipientEmail,
		RecipientPhone: link.RecipientPhone,
		CreatedAt:      link.CreatedAt,
	}
}
