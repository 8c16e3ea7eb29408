package models

import "time"

type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
	NotificationSuccess NotificationType = "success"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationInfo, NotificationWarning, NotificationError, NotificationSuccess:
		return true
	}
	return false
}

type Notification struct {
	ID          uint             `gorm:"primaryKey;column:id" json:"id"`
	UserID      uint             `gorm:"column:user_id;not null;index" json:"user_id"`
	Title       string           `gorm:"column:title;size:255;not null" json:"title"`
	Message     string           `gorm:"column:message;type:text;not null" json:"message"`
	Type        NotificationType `gorm:"column:type;size:20;not null;default:info" json:"type"` // info|success|warning|error
	GrievanceID *uint            `gorm:"column:grievance_id;index" json:"grievance_id,omitempty"`
	IsRead      bool             `gorm:"column:is_read;not null;default:false" json:"is_read"`
	CreatedAt   time.Time        `gorm:"column:created_at" json:"created_at"`

	Recipient *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Grievance *Grievance `gorm:"foreignKey:GrievanceID;constraint:OnDelete:SET NULL" json:"-"`
}

func (Notification) TableName() string { return "notifications" }
