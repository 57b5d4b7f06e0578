package models

import (
	"strings"
	"time"
)

// Case status values. Terminal statuses freeze a case against further guest input.
const (
	CaseStatusNew                = "New"
	CaseStatusUnderInvestigation = "Under Investigation"
	CaseStatusHearingScheduled   = "Hearing Scheduled"
	CaseStatusSettled            = "Settled"
	CaseStatusClosed             = "Closed"
	CaseStatusDismissed          = "Dismissed"
	CaseStatusReferred           = "Referred"
)

var terminalCaseStatuses = map[string]struct{}{
	CaseStatusSettled:   {},
	CaseStatusClosed:    {},
	CaseStatusDismissed: {},
	CaseStatusReferred:  {},
}

// BlotterCase is the subset of an incident record the guest portal reads.
// Cases are created and managed by the staff-facing application.
type BlotterCase struct {
	BaseModel

	CaseNumber       string    `gorm:"type:varchar(64);uniqueIndex" json:"case_number"`
	Title            string    `gorm:"type:varchar(255);not null" json:"title"`
	Status           string    `gorm:"type:varchar(32);not null;index" json:"status"`
	IncidentType     string    `gorm:"type:varchar(128)" json:"incident_type,omitempty"`
	IncidentLocation string    `gorm:"type:text" json:"incident_location,omitempty"`
	IncidentDate     time.Time `json:"incident_date"`
	Description      string    `gorm:"type:text" json:"description,omitempty"`
	CreatedBy        string    `gorm:"type:uuid;index" json:"created_by,omitempty"`
}

// TableName pins the table name; "cases" is shared with the staff application.
func (BlotterCase) TableName() string {
	return "cases"
}

// IsTerminal reports whether the case no longer accepts changes.
func (c BlotterCase) IsTerminal() bool {
	return IsTerminalCaseStatus(c.Status)
}

// IsTerminalCaseStatus reports whether status is one of the closing statuses.
func IsTerminalCaseStatus(status string) bool {
	for terminal := range terminalCaseStatuses {
		if strings.EqualFold(strings.TrimSpace(status), terminal) {
			return true
		}
	}
	return false
}
