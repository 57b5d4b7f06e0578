package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/blotter/internal/middleware"
	"github.com/charlesng35/blotter/internal/realtime"
	"github.com/charlesng35/blotter/internal/services"
	appErrors "github.com/charlesng35/blotter/pkg/errors"
	"github.com/charlesng35/blotter/pkg/response"
)

// NotificationHandler serves a staff member's inbox. Every method expects to
// run behind middleware.Auth.
type NotificationHandler struct {
	inbox *services.NotificationService
	hub   *realtime.Hub
}

// NewNotificationHandler constructs a NotificationHandler. Without a hub the
// live stream answers 404.
func NewNotificationHandler(inbox *services.NotificationService, hub *realtime.Hub) (*NotificationHandler, error) {
	if inbox == nil {
		return nil, errors.New("notification handler: service is required")
	}
	return &NotificationHandler{inbox: inbox, hub: hub}, nil
}

// staff writes a 401 and returns "" when the request carries no staff id.
func staff(c *gin.Context) string {
	id := middleware.StaffID(c)
	if id == "" {
		response.Error(c, appErrors.ErrUnauthorized)
	}
	return id
}

// List serves GET /api/notifications?unread=&limit=&offset=.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := staff(c)
	if userID == "" {
		return
	}

	unreadOnly, _ := strconv.ParseBool(c.Query("unread"))
	items, err := h.inbox.ListForUser(requestContext(c), services.ListNotificationsInput{
		UserID:     userID,
		UnreadOnly: unreadOnly,
		Limit:      parseIntQuery(c, "limit", 0),
		Offset:     parseIntQuery(c, "offset", 0),
	})
	if err != nil {
		response.Error(c, staffError(err))
		return
	}
	response.Success(c, http.StatusOK, items)
}

// UnreadCount serves GET /api/notifications/unread-count.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID := staff(c)
	if userID == "" {
		return
	}

	n, err := h.inbox.UnreadCount(requestContext(c), userID)
	if err != nil {
		response.Error(c, staffError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unread": n})
}

// MarkRead serves POST /api/notifications/:id/read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID := staff(c)
	if userID == "" {
		return
	}

	dto, err := h.inbox.MarkRead(requestContext(c), userID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, staffError(err))
		return
	}
	response.Success(c, http.StatusOK, dto)
}

// Stream upgrades GET /api/notifications/stream to a websocket that receives
// the caller's new notifications.
func (h *NotificationHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	userID := staff(c)
	if userID == "" {
		return
	}
	h.hub.Serve(userID, c.Writer, c.Request)
}
