package models

import "time"

// GuestLink is a time-boxed, PIN-gated capability granting evidence submission on one case.
type GuestLink struct {
	BaseModel

	Token     string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"-"`
	PIN       string    `gorm:"type:varchar(6);not null" json:"-"`
	CaseID    string    `gorm:"type:uuid;not null;index" json:"case_id"`
	CreatedBy string    `gorm:"type:uuid;index" json:"created_by"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	IsActive  bool      `gorm:"not null;index" json:"is_active"`

	RecipientName  string `gorm:"type:varchar(255)" json:"recipient_name,omitempty"`
	RecipientEmail string `gorm:"type:varchar(255)" json:"recipient_email,omitempty"`
	RecipientPhone string `gorm:"type:varchar(64)" json:"recipient_phone,omitempty"`

	Case *BlotterCase `gorm:"foreignKey:CaseID;constraint:OnDelete:CASCADE" json:"case,omitempty"`
}

// Expired reports whether the link is past its expiry. A link is invalid once now >= ExpiresAt.
func (l GuestLink) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Usable reports whether the link currently grants capability.
func (l GuestLink) Usable(now time.Time) bool {
	return l.IsActive && !l.Expired(now)
}
