package models

// Evidence is an uploaded file attached to a case. Guest uploads carry a nil
// UploadedBy and the GuestLinkID they were submitted through.
type Evidence struct {
	BaseModel

	CaseID            string  `gorm:"type:uuid;not null;index" json:"case_id"`
	StorageKey        string  `gorm:"type:text;not null" json:"storage_key"`
	FileName          string  `gorm:"type:varchar(255);not null" json:"file_name"`
	MimeType          string  `gorm:"type:varchar(128);not null" json:"mime_type"`
	SizeBytes         int64   `json:"size_bytes"`
	Description       string  `gorm:"type:text" json:"description,omitempty"`
	UploadedBy        *string `gorm:"type:uuid;index" json:"uploaded_by"`
	GuestLinkID       *string `gorm:"type:uuid;index" json:"guest_link_id,omitempty"`
	IsVisibleToOthers bool    `gorm:"not null" json:"is_visible_to_others"`

	Case *BlotterCase `gorm:"foreignKey:CaseID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName keeps the table name stable across model renames.
func (Evidence) TableName() string {
	return "evidence"
}

// FromGuest reports whether the evidence was submitted through a guest link.
func (e Evidence) FromGuest() bool {
	return e.UploadedBy == nil
}
