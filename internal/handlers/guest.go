package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/blotter/internal/models"
	"github.com/charlesng35/blotter/internal/services"
	appErrors "github.com/charlesng35/blotter/pkg/errors"
	"github.com/charlesng35/blotter/pkg/response"
)

// GuestCookiePrefix prefixes the per-link session cookie name.
const GuestCookiePrefix = "guest_pin_"

// GuestCookieConfig controls the guest session cookie.
type GuestCookieConfig struct {
	TTL    time.Duration
	Secure bool
}

// GuestHandler serves the unauthenticated guest portal.
type GuestHandler struct {
	access   *services.GuestAccessService
	evidence *services.EvidenceService
	cookie   GuestCookieConfig
}

// NewGuestHandler constructs a GuestHandler.
func NewGuestHandler(access *services.GuestAccessService, evidence *services.EvidenceService, cookie GuestCookieConfig) (*GuestHandler, error) {
	if access == nil || evidence == nil {
		return nil, errors.New("guest handler: access and evidence services are required")
	}
	if cookie.TTL <= 0 {
		cookie.TTL = 24 * time.Hour
	}
	return &GuestHandler{access: access, evidence: evidence, cookie: cookie}, nil
}

type verifyPINRequest struct {
	PIN string `json:"pin" validate:"required,pin"`
}

// evidenceView is what a guest sees of an evidence record.
type evidenceView struct {
	ID                string    `json:"id"`
	FileName          string    `json:"file_name"`
	MimeType          string    `json:"mime_type"`
	SizeBytes         int64     `json:"size_bytes"`
	Description       string    `json:"description,omitempty"`
	IsVisibleToOthers bool      `json:"is_visible_to_others"`
	FromGuest         bool      `json:"from_guest"`
	Deletable         bool      `json:"deletable"`
	CreatedAt         time.Time `json:"created_at"`
}

// caseView is the subset of case details shown to an authenticated guest.
type caseView struct {
	CaseNumber       string    `json:"case_number"`
	Title            string    `json:"title"`
	Status           string    `json:"status"`
	IncidentType     string    `json:"incident_type,omitempty"`
	IncidentLocation string    `json:"incident_location,omitempty"`
	IncidentDate     time.Time `json:"incident_date"`
}

// Describe reports link status; case details and evidence only with a valid session.
func (h *GuestHandler) Describe(c *gin.Context) {
	token := c.Param("token")
	desc, err := h.access.Describe(requestContext(c), token, h.sessionPIN(c, token))
	if err != nil {
		response.Error(c, guestError(err))
		return
	}

	payload := gin.H{
		"status":          desc.Status,
		"expires_at":      desc.ExpiresAt,
		"authenticated":   desc.Authenticated,
		"max_upload_size": h.evidence.MaxUploadSize(),
	}
	if desc.Authenticated && desc.Case != nil {
		payload["case"] = toCaseView(desc.Case)
		listed, err := h.evidence.ListForGuest(requestContext(c), token, h.sessionPIN(c, token))
		if err != nil {
			response.Error(c, guestError(err))
			return
		}
		payload["evidence"] = toEvidenceViews(listed)
	}
	response.Success(c, http.StatusOK, payload)
}

// Verify checks the PIN and, on success, binds it to a cookie scoped to this link.
func (h *GuestHandler) Verify(c *gin.Context) {
	var req verifyPINRequest
	if !bindAndValidate(c, &req) {
		return
	}

	token := c.Param("token")
	link, err := h.access.VerifyPIN(requestContext(c), token, req.PIN)
	if err != nil {
		response.Error(c, guestError(err))
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(
		GuestCookiePrefix+link.Token,
		req.PIN,
		int(h.cookie.TTL/time.Second),
		guestCookiePath(link.Token),
		"",
		h.cookie.Secure,
		true,
	)
	response.Success(c, http.StatusOK, gin.H{"verified": true, "expires_at": link.ExpiresAt})
}

// ListEvidence returns the evidence visible through this link.
func (h *GuestHandler) ListEvidence(c *gin.Context) {
	token := c.Param("token")
	listed, err := h.evidence.ListForGuest(requestContext(c), token, h.sessionPIN(c, token))
	if err != nil {
		response.Error(c, guestError(err))
		return
	}
	response.Success(c, http.StatusOK, toEvidenceViews(listed))
}

// Upload accepts a multipart upload with a single "file" part.
func (h *GuestHandler) Upload(c *gin.Context) {
	token := c.Param("token")
	pin := h.sessionPIN(c, token)

	// Reject before the multipart body is parsed; Submit re-checks.
	if _, err := h.access.RequireSession(requestContext(c), token, pin); err != nil {
		response.Error(c, guestError(err))
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			response.Error(c, appErrors.ErrEvidenceTooLarge)
		case errors.Is(err, http.ErrMissingFile):
			response.Error(c, appErrors.NewBadRequest("file is required"))
		default:
			response.Error(c, appErrors.NewBadRequest("invalid multipart payload"))
		}
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	defer file.Close()

	visible, _ := strconv.ParseBool(strings.TrimSpace(c.PostForm("visible_to_others")))
	ip, userAgent := requestOrigin(c)
	evidence, err := h.evidence.Submit(requestContext(c), token, pin, services.UploadInput{
		FileName:        header.Filename,
		ContentType:     header.Header.Get("Content-Type"),
		Size:            header.Size,
		Body:            file,
		Description:     c.PostForm("description"),
		VisibleToOthers: visible,
		IPAddress:       ip,
		UserAgent:       userAgent,
	})
	if err != nil {
		response.Error(c, guestError(err))
		return
	}

	response.Success(c, http.StatusCreated, toEvidenceView(*evidence, true))
}

// DeleteEvidence removes evidence uploaded through this link.
func (h *GuestHandler) DeleteEvidence(c *gin.Context) {
	token := c.Param("token")
	ip, userAgent := requestOrigin(c)
	err := h.evidence.DeleteForGuest(requestContext(c), token, h.sessionPIN(c, token),
		strings.TrimSpace(c.Param("id")), ip, userAgent)
	if err != nil {
		response.Error(c, guestError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *GuestHandler) sessionPIN(c *gin.Context, token string) string {
	value, err := c.Cookie(GuestCookiePrefix + strings.TrimSpace(token))
	if err != nil {
		return ""
	}
	return value
}

func toEvidenceViews(listed *services.GuestEvidence) []evidenceView {
	views := make([]evidenceView, 0, len(listed.Items))
	for _, item := range listed.Items {
		views = append(views, toEvidenceView(item, listed.Owns(item)))
	}
	return views
}

func toEvidenceView(item models.Evidence, deletable bool) evidenceView {
	return evidenceView{
		ID:                item.ID,
		FileName:          item.FileName,
		MimeType:          item.MimeType,
		SizeBytes:         item.SizeBytes,
		Description:       item.Description,
		IsVisibleToOthers: item.IsVisibleToOthers,
		FromGuest:         item.FromGuest(),
		Deletable:         deletable,
		CreatedAt:         item.CreatedAt,
	}
}

func toCaseView(c *models.BlotterCase) caseView {
	return caseView{
		CaseNumber:       c.CaseNumber,
		Title:            c.Title,
		Status:           c.Status,
		IncidentType:     c.IncidentType,
		IncidentLocation: c.IncidentLocation,
		IncidentDate:     c.IncidentDate,
	}
}

func guestCookiePath(token string) string {
	return "/guest/" + token
}
