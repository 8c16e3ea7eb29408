package models

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
	StatusRejected   Status = "rejected"
)

// AllStatuses lists statuses in lifecycle order.
var AllStatuses = []Status{StatusPending, StatusInProgress, StatusResolved, StatusClosed, StatusRejected}

func (s Status) Valid() bool {
	for _, candidate := range AllStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// Active statuses block deleting the submitting user.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusInProgress
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var AllPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func (p Priority) Valid() bool {
	for _, candidate := range AllPriorities {
		if p == candidate {
			return true
		}
	}
	return false
}

type GrievanceCategory struct {
	ID          uint      `gorm:"primaryKey;column:id" json:"id"`
	Name        string    `gorm:"column:name;size:100;uniqueIndex;not null" json:"name"`
	Description *string   `gorm:"column:description;type:text" json:"description,omitempty"`
	IsActive    bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (GrievanceCategory) TableName() string {
	return "grievance_categories"
}

type Grievance struct {
	ID              uint       `gorm:"primaryKey;column:id" json:"id"`
	Title           string     `gorm:"column:title;size:255;not null" json:"title"`
	Description     string     `gorm:"column:description;type:text;not null" json:"description"`
	CategoryID      *uint      `gorm:"column:category_id;index" json:"category_id"`
	UserID          uint       `gorm:"column:user_id;not null;index" json:"user_id"`
	AssignedTo      *uint      `gorm:"column:assigned_to;index" json:"assigned_to"`
	Priority        Priority   `gorm:"column:priority;size:20;not null;default:medium;index" json:"priority"`
	Status          Status     `gorm:"column:status;size:20;not null;default:pending;index" json:"status"`
	SubmissionDate  time.Time  `gorm:"column:submission_date;not null;index" json:"submission_date"`
	DueDate         *time.Time `gorm:"column:due_date" json:"due_date"`
	ResolutionDate  *time.Time `gorm:"column:resolution_date" json:"resolution_date"`
	ResolutionNotes *string    `gorm:"column:resolution_notes;type:text" json:"resolution_notes"`
	CreatedAt       time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at" json:"updated_at"`

	// Relations
	User          *UserSummary             `gorm:"foreignKey:UserID;constraint:OnDelete:RESTRICT" json:"user,omitempty"`
	Category      *GrievanceCategory       `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"category,omitempty"`
	AssignedUser  *UserSummary             `gorm:"foreignKey:AssignedTo;constraint:OnDelete:SET NULL" json:"assigned_user,omitempty"`
	Attachments   []GrievanceAttachment    `gorm:"foreignKey:GrievanceID;constraint:OnDelete:CASCADE" json:"attachments,omitempty"`
	Comments      []GrievanceComment       `gorm:"foreignKey:GrievanceID;constraint:OnDelete:CASCADE" json:"comments,omitempty"`
	StatusHistory []GrievanceStatusHistory `gorm:"foreignKey:GrievanceID;constraint:OnDelete:CASCADE" json:"status_history,omitempty"`

	CommentsCount int64 `gorm:"-" json:"comments_count"`
}

func (Grievance) TableName() string {
	return "grievances"
}

type GrievanceAttachment struct {
	ID          uint      `gorm:"primaryKey;column:id" json:"id"`
	GrievanceID uint      `gorm:"column:grievance_id;not null;index" json:"grievance_id"`
	FileName    string    `gorm:"column:file_name;size:255;not null" json:"file_name"`
	FilePath    string    `gorm:"column:file_path;size:500;not null" json:"file_path"`
	FileSize    int64     `gorm:"column:file_size;not null" json:"file_size"`
	FileType    string    `gorm:"column:file_type;size:150;not null" json:"file_type"`
	UploadedBy  *uint     `gorm:"column:uploaded_by;index" json:"uploaded_by"`
	UploadedAt  time.Time `gorm:"column:uploaded_at;not null" json:"uploaded_at"`

	Uploader *UserSummary `gorm:"foreignKey:UploadedBy;constraint:OnDelete:SET NULL" json:"uploader,omitempty"`
}

func (GrievanceAttachment) TableName() string {
	return "grievance_attachments"
}

type GrievanceComment struct {
	ID          uint      `gorm:"primaryKey;column:id" json:"id"`
	GrievanceID uint      `gorm:"column:grievance_id;not null;index" json:"grievance_id"`
	UserID      uint      `gorm:"column:user_id;not null;index" json:"user_id"`
	Comment     string    `gorm:"column:comment;type:text;not null" json:"comment"`
	IsInternal  bool      `gorm:"column:is_internal;not null;default:false" json:"is_internal"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`

	User *UserSummary `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

func (GrievanceComment) TableName() string {
	return "grievance_comments"
}
