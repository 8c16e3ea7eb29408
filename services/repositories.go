package services

import (
	"context"
	"io"
	"time"

	"grievance-management-api/events"
	"grievance-management-api/models"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id uint) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error)
	UpdateUser(ctx context.Context, id uint, fields map[string]interface{}) error
	ListUsers(ctx context.Context, q models.UserQuery) ([]models.UserListItem, int64, error)
	UserStats(ctx context.Context, id uint) (models.UserStats, error)
	CountActiveGrievancesBySubmitter(ctx context.Context, userID uint) (int64, error)
	// DeleteUser also removes the user's inactive grievances and returns
	// their attachments.
	DeleteUser(ctx context.Context, id uint) ([]models.GrievanceAttachment, error)
	ListActiveUserIDsByRole(ctx context.Context, role models.Role) ([]uint, error)
}

// GrievanceRepository has no path that updates or deletes status history
// rows on their own.
type GrievanceRepository interface {
	CreateGrievance(ctx context.Context, g *models.Grievance, history *models.GrievanceStatusHistory, attachments []models.GrievanceAttachment) error
	FindGrievance(ctx context.Context, id uint) (*models.Grievance, error)
	FindGrievanceDetail(ctx context.Context, id uint, includeInternal bool) (*models.Grievance, error)
	ListGrievances(ctx context.Context, q models.GrievanceQuery) ([]models.Grievance, int64, error)
	UpdateGrievance(ctx context.Context, id uint, fields map[string]interface{}) error
	ChangeStatus(ctx context.Context, id uint, fields map[string]interface{}, history *models.GrievanceStatusHistory) error
	DeleteGrievance(ctx context.Context, id uint) ([]models.GrievanceAttachment, error)
	AddAttachments(ctx context.Context, attachments []models.GrievanceAttachment) error
	CreateComment(ctx context.Context, c *models.GrievanceComment) error
	ListComments(ctx context.Context, grievanceID uint, includeInternal bool) ([]models.GrievanceComment, error)
	RecentGrievances(ctx context.Context, q models.RecentQuery) ([]models.Grievance, error)
}

type CategoryRepository interface {
	ListCategories(ctx context.Context, activeOnly bool) ([]models.GrievanceCategory, error)
	FindCategory(ctx context.Context, id uint) (*models.GrievanceCategory, error)
	CreateCategory(ctx context.Context, c *models.GrievanceCategory) error
	UpdateCategory(ctx context.Context, id uint, fields map[string]interface{}) error
}

type NotificationRepository interface {
	CreateNotifications(ctx context.Context, notifications []models.Notification) error
	ListNotifications(ctx context.Context, userID uint, unreadOnly bool, page, limit int) ([]models.Notification, int64, int64, error)
	MarkNotificationRead(ctx context.Context, userID, id uint) error
	MarkAllNotificationsRead(ctx context.Context, userID uint) (int64, error)
}

type DashboardRepository interface {
	CountGrievancesBy(ctx context.Context, scope models.DashboardScope, column string) ([]models.GroupCount, error)
	CountGrievancesByCategory(ctx context.Context, scope models.DashboardScope) ([]models.CategoryCount, error)
	CountGrievancesSince(ctx context.Context, scope models.DashboardScope, since time.Time) (int64, error)
	SubmissionsBetween(ctx context.Context, from, to time.Time) ([]models.SubmissionPoint, error)
	ResolutionSpans(ctx context.Context) ([]models.ResolutionSpan, error)
	TopDepartments(ctx context.Context, limit int) ([]models.DepartmentCount, error)
	CountActiveUsers(ctx context.Context) (int64, error)
}

// FileStore persists attachment bytes outside the database.
type FileStore interface {
	Save(originalName string, r io.Reader) (string, error)
	Remove(names ...string)
}

// EventPublisher publishes lifecycle events after their transaction commits.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// Mailer sends optional e-mail copies of notifications.
type Mailer interface {
	Enabled() bool
	SendMail(to []string, subject, html string) error
}

// EventSubscriber registers event handlers on the bus before it starts.
type EventSubscriber interface {
	Subscribe(name, topic string, h events.Handler)
}
