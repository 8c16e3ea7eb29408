package models

import "time"

// Pagination is the paging block returned with every list response.
type Pagination struct {
	CurrentPage  int   `json:"current_page"`
	TotalPages   int   `json:"total_pages"`
	TotalItems   int64 `json:"total_items"`
	ItemsPerPage int   `json:"items_per_page"`
}

func NewPagination(page, limit int, total int64) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{
		CurrentPage:  page,
		TotalPages:   totalPages,
		TotalItems:   total,
		ItemsPerPage: limit,
	}
}

// AllModels lists every table owned by the service, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&GrievanceCategory{},
		&Grievance{},
		&GrievanceAttachment{},
		&GrievanceComment{},
		&GrievanceStatusHistory{},
		&Notification{},
	}
}

// GrievanceSortFields are the columns a grievance list may be ordered by.
var GrievanceSortFields = []string{"submission_date", "created_at", "updated_at", "priority", "status", "title", "due_date"}

// UserSortFields are the columns a user list may be ordered by.
var UserSortFields = []string{"created_at", "username", "email", "first_name", "last_name", "role"}

type GrievanceQuery struct {
	Page       int
	Limit      int
	Status     Status
	Priority   Priority
	CategoryID *uint
	Search     string
	SortBy     string
	SortOrder  string

	// SubmitterID restricts results to one submitter when set.
	SubmitterID *uint
	// IncludeInternal counts internal comments in comments_count.
	IncludeInternal bool
}

type RecentQuery struct {
	Limit       int
	SubmitterID *uint
	// AssigneeOrUnassigned keeps grievances assigned to this user or to nobody.
	AssigneeOrUnassigned *uint
}

type UserQuery struct {
	Page      int
	Limit     int
	Search    string
	Role      Role
	IsActive  *bool
	SortBy    string
	SortOrder string
}

// DashboardScope narrows aggregate queries; the zero value is global.
type DashboardScope struct {
	SubmitterID *uint
}

type GroupCount struct {
	Key   string `gorm:"column:group_key"`
	Count int64  `gorm:"column:total"`
}

type CategoryCount struct {
	CategoryID *uint `gorm:"column:category_id"`
	Count      int64 `gorm:"column:total"`
}

type SubmissionPoint struct {
	SubmissionDate time.Time `gorm:"column:submission_date"`
	Status         Status    `gorm:"column:status"`
}

type ResolutionSpan struct {
	SubmissionDate time.Time `gorm:"column:submission_date"`
	ResolutionDate time.Time `gorm:"column:resolution_date"`
}

type DepartmentCount struct {
	Department string `gorm:"column:department" json:"department"`
	Count      int64  `gorm:"column:total" json:"count"`
}
