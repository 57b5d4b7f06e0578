package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification tells a staff member about guest activity on one of their
// links. ReadAt is set once and never cleared.
type Notification struct {
	BaseModel

	UserID      string         `gorm:"type:uuid;not null;index:idx_notifications_inbox,priority:1" json:"user_id"`
	CaseID      *string        `gorm:"type:uuid;index" json:"case_id,omitempty"`
	GuestLinkID *string        `gorm:"type:uuid;index" json:"guest_link_id,omitempty"`
	Type        string         `gorm:"type:varchar(64);not null" json:"type"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title"`
	Message     string         `gorm:"type:text" json:"message"`
	ActionURL   string         `gorm:"type:text" json:"action_url"`
	Metadata    datatypes.JSON `json:"metadata"`

	IsRead bool       `gorm:"not null;default:false;index:idx_notifications_inbox,priority:2" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}
