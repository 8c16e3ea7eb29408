package models

import "time"

// GrievanceStatusHistory is the append-only audit trail of status changes.
// ChangedBy is nil once the acting user has been deleted.
type GrievanceStatusHistory struct {
	ID           uint      `gorm:"primaryKey;column:id" json:"id"`
	GrievanceID  uint      `gorm:"column:grievance_id;not null;index" json:"grievance_id"`
	OldStatus    *Status   `gorm:"column:old_status;size:20" json:"old_status"`
	NewStatus    Status    `gorm:"column:new_status;size:20;not null" json:"new_status"`
	ChangedBy    *uint     `gorm:"column:changed_by;index" json:"changed_by"`
	ChangeReason *string   `gorm:"column:change_reason;type:text" json:"change_reason"`
	ChangedAt    time.Time `gorm:"column:changed_at;not null" json:"changed_at"`

	User *UserSummary `gorm:"foreignKey:ChangedBy;constraint:OnDelete:SET NULL" json:"user,omitempty"`
}

// TableName specifies the table for GrievanceStatusHistory.
func (GrievanceStatusHistory) TableName() string {
	return "grievance_status_history"
}

const InitialSubmissionReason = "Initial submission"
