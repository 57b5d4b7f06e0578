package models

import "time"

// RateCounter is one fixed-window counter in the SQL fallback for shared
// limits such as PIN attempts. The window ends at ExpiresAt.
type RateCounter struct {
	Key       string    `gorm:"column:counter_key;primaryKey;size:256"`
	Hits      int64     `gorm:"not null;default:0"`
	ExpiresAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time
}

// TableName keeps counters apart from case data.
func (RateCounter) TableName() string {
	return "rate_counters"
}
