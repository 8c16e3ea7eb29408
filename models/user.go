package models

import (
	"time"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleUser:
		return true
	}
	return false
}

// IsStaffOrAdmin reports whether the role belongs to the triage team.
func (r Role) IsStaffOrAdmin() bool {
	return r == RoleAdmin || r == RoleStaff
}

type User struct {
	ID           uint      `gorm:"primaryKey;column:id" json:"id"`
	Username     string    `gorm:"column:username;size:50;uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"column:email;size:191;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null" json:"-"`
	FirstName    string    `gorm:"column:first_name;size:100;not null" json:"first_name"`
	LastName     string    `gorm:"column:last_name;size:100;not null" json:"last_name"`
	Role         Role      `gorm:"column:role;size:20;not null;default:user;index" json:"role"`
	Phone        *string   `gorm:"column:phone;size:20" json:"phone"`
	Department   *string   `gorm:"column:department;size:100;index" json:"department"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// UserSummary is the trimmed user shape embedded in grievance payloads.
type UserSummary struct {
	ID         uint    `gorm:"column:id" json:"id"`
	FirstName  string  `gorm:"column:first_name" json:"first_name"`
	LastName   string  `gorm:"column:last_name" json:"last_name"`
	Email      string  `gorm:"column:email" json:"email,omitempty"`
	Phone      *string `gorm:"column:phone" json:"phone,omitempty"`
	Department *string `gorm:"column:department" json:"department,omitempty"`
	Role       Role    `gorm:"column:role" json:"role,omitempty"`
}

func (UserSummary) TableName() string {
	return "users"
}

// UserListItem is a user row with its grievance counters.
type UserListItem struct {
	User
	GrievancesCount         int64 `gorm:"column:grievances_count" json:"grievances_count"`
	AssignedGrievancesCount int64 `gorm:"column:assigned_grievances_count" json:"assigned_grievances_count"`
}

type UserStats struct {
	GrievancesCount         int64 `json:"grievances_count"`
	AssignedGrievancesCount int64 `json:"assigned_grievances_count"`
	CommentsCount           int64 `json:"comments_count"`
	UnreadNotifications     int64 `json:"unread_notifications"`
}
