package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/blotter/internal/models"
	"github.com/charlesng35/blotter/internal/realtime"
)

// NotificationGuestUpload is raised for the issuer when a guest submits evidence.
const NotificationGuestUpload = "guest.upload"

const (
	defaultNotificationPage = 25
	maxNotificationPage     = 100
)

// ErrNotificationNotFound indicates the notification does not exist for the user.
var ErrNotificationNotFound = errors.New("notification: not found")

// NotificationDTO represents the API-friendly notification payload.
type NotificationDTO struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	CaseID    *string        `json:"case_id,omitempty"`
	LinkID    *string        `json:"guest_link_id,omitempty"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	ActionURL string         `json:"action_url,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IsRead    bool           `json:"is_read"`
	CreatedAt time.Time      `json:"created_at"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
}

// CreateNotificationInput describes a notification addressed to one staff user.
type CreateNotificationInput struct {
	UserID    string
	CaseID    string
	LinkID    string
	Type      string
	Title     string
	Message   string
	ActionURL string
	Metadata  map[string]any
}

// ListNotificationsInput pages through a user's notifications.
type ListNotificationsInput struct {
	UserID     string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// livePush is the payload sent to connected issuers.
type livePush struct {
	Notification NotificationDTO `json:"notification"`
	Unread       int64           `json:"unread"`
}

// NotificationService stores issuer notifications and fans them out to live
// connections.
type NotificationService struct {
	db  *gorm.DB
	hub *realtime.Hub
	now func() time.Time
}

// NewNotificationService constructs a NotificationService. hub may be nil.
func NewNotificationService(db *gorm.DB, hub *realtime.Hub) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{db: db, hub: hub, now: time.Now}, nil
}

func forRecipient(userID string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("user_id = ?", userID)
	}
}

func unreadOnly(tx *gorm.DB) *gorm.DB {
	return tx.Where("is_read = ?", false)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > maxNotificationPage {
		limit = defaultNotificationPage
	}
	return limit, max(offset, 0)
}

// ListForUser returns the newest notifications first.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]NotificationDTO, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}
	limit, offset := clampPage(input.Limit, input.Offset)

	query := s.db.WithContext(withContext(ctx)).Scopes(forRecipient(userID))
	if input.UnreadOnly {
		query = query.Scopes(unreadOnly)
	}

	var rows []models.Notification
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", err)
	}

	items := make([]NotificationDTO, len(rows))
	for i := range rows {
		items[i] = toNotificationDTO(&rows[i])
	}
	return items, nil
}

// UnreadCount reports how many notifications the user has not read.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(withContext(ctx)).
		Model(&models.Notification{}).
		Scopes(forRecipient(userID), unreadOnly).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("notification service: count unread: %w", err)
	}
	return count, nil
}

// Create stores the notification and pushes it to the recipient's open streams.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	ctx = withContext(ctx)
	row, err := buildNotification(input)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}

	dto := toNotificationDTO(row)
	if s.hub != nil {
		unread, err := s.UnreadCount(ctx, row.UserID)
		if err != nil {
			unread = -1
		}
		s.hub.Publish(row.UserID, realtime.Message{
			Event: realtime.EventNotification,
			Data:  livePush{Notification: dto, Unread: unread},
		})
	}
	return &dto, nil
}

func buildNotification(input CreateNotificationInput) (*models.Notification, error) {
	row := &models.Notification{
		UserID:      strings.TrimSpace(input.UserID),
		CaseID:      optionalString(input.CaseID),
		GuestLinkID: optionalString(input.LinkID),
		Type:        strings.TrimSpace(input.Type),
		Title:       strings.TrimSpace(input.Title),
		Message:     strings.TrimSpace(input.Message),
		ActionURL:   strings.TrimSpace(input.ActionURL),
	}
	switch {
	case row.UserID == "":
		return nil, errors.New("notification service: user id is required")
	case row.Type == "":
		return nil, errors.New("notification service: type is required")
	}

	if len(input.Metadata) > 0 {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("notification service: marshal metadata: %w", err)
		}
		row.Metadata = datatypes.JSON(raw)
	}
	return row, nil
}

// MarkRead flags one of the user's notifications as read. Marking an already
// read notification keeps its original ReadAt.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	tx := s.db.WithContext(withContext(ctx))

	if err := tx.Model(&models.Notification{}).
		Scopes(forRecipient(userID), unreadOnly).
		Where("id = ?", notificationID).
		Updates(map[string]any{"is_read": true, "read_at": nowUTC(s.now)}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark read: %w", err)
	}

	var row models.Notification
	err := tx.Scopes(forRecipient(userID)).Where("id = ?", notificationID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}

	dto := toNotificationDTO(&row)
	return &dto, nil
}

func toNotificationDTO(row *models.Notification) NotificationDTO {
	dto := NotificationDTO{
		ID:        row.ID,
		UserID:    row.UserID,
		CaseID:    row.CaseID,
		LinkID:    row.GuestLinkID,
		Type:      row.Type,
		Title:     row.Title,
		Message:   row.Message,
		ActionURL: row.ActionURL,
		IsRead:    row.IsRead,
		CreatedAt: row.CreatedAt,
		ReadAt:    row.ReadAt,
	}
	if len(row.Metadata) > 0 {
		// Malformed metadata is dropped rather than failing the listing.
		_ = json.Unmarshal(row.Metadata, &dto.Metadata)
	}
	return dto
}
