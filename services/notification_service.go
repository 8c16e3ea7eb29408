package services

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/rs/zerolog/log"

	"grievance-management-api/apperr"
	"grievance-management-api/authz"
	"grievance-management-api/events"
	"grievance-management-api/models"
	"grievance-management-api/monitor"
)

// NotificationService persists in-app notifications and turns grievance
// lifecycle events into them.
type NotificationService struct {
	notifications NotificationRepository
	users         UserRepository
	mailer        Mailer
}

func NewNotificationService(notifications NotificationRepository, users UserRepository, mailer Mailer) *NotificationService {
	return &NotificationService{notifications: notifications, users: users, mailer: mailer}
}

type NotificationList struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int64                 `json:"unread_count"`
	Pagination    models.Pagination     `json:"pagination"`
}

// Register subscribes the event handlers that fan out notifications.
func (s *NotificationService) Register(sub EventSubscriber) {
	sub.Subscribe("notify-admins-on-submit", events.TopicGrievanceSubmitted, s.handleSubmitted)
	sub.Subscribe("notify-assignee", events.TopicGrievanceAssigned, s.handleAssigned)
	sub.Subscribe("notify-submitter-on-status", events.TopicGrievanceStatusChanged, s.handleStatusChanged)
	sub.Subscribe("notify-submitter-on-comment", events.TopicGrievanceCommented, s.handleCommented)
}

// Notify writes one notification per recipient.
func (s *NotificationService) Notify(ctx context.Context, recipients []uint, title, message string, kind models.NotificationType, grievanceID *uint) error {
	if len(recipients) == 0 {
		return nil
	}
	if !kind.Valid() {
		kind = models.NotificationInfo
	}
	rows := make([]models.Notification, 0, len(recipients))
	for _, id := range recipients {
		rows = append(rows, models.Notification{
			UserID:      id,
			Title:       title,
			Message:     message,
			Type:        kind,
			GrievanceID: grievanceID,
		})
	}
	if err := s.notifications.CreateNotifications(ctx, rows); err != nil {
		return err
	}
	s.mailCopies(ctx, recipients, title, message)
	return nil
}

func (s *NotificationService) handleSubmitted(ctx context.Context, payload []byte) error {
	var evt events.GrievanceSubmitted
	if err := events.Decode(payload, &evt); err != nil {
		return err
	}
	admins, err := s.users.ListActiveUserIDsByRole(ctx, models.RoleAdmin)
	if err != nil {
		return err
	}
	recipients := admins[:0:0]
	for _, id := range admins {
		if id != evt.SubmitterID {
			recipients = append(recipients, id)
		}
	}
	msg := fmt.Sprintf("A new grievance %q has been submitted by %s", evt.Title, evt.SubmitterName)
	return s.notifyEvent(ctx, "submitted", recipients, "New Grievance Submitted", msg, models.NotificationInfo, evt.GrievanceID)
}

func (s *NotificationService) handleAssigned(ctx context.Context, payload []byte) error {
	var evt events.GrievanceAssigned
	if err := events.Decode(payload, &evt); err != nil {
		return err
	}
	msg := fmt.Sprintf("You have been assigned the grievance %q", evt.Title)
	return s.notifyEvent(ctx, "assigned", []uint{evt.AssigneeID}, "Grievance Assigned", msg, models.NotificationInfo, evt.GrievanceID)
}

func (s *NotificationService) handleStatusChanged(ctx context.Context, payload []byte) error {
	var evt events.GrievanceStatusChanged
	if err := events.Decode(payload, &evt); err != nil {
		return err
	}
	msg := fmt.Sprintf("Your grievance %q has been moved from %s to %s",
		evt.Title, statusLabel(evt.OldStatus), statusLabel(evt.NewStatus))
	return s.notifyEvent(ctx, "status_changed", []uint{evt.SubmitterID}, "Grievance Status Updated", msg, statusNotificationType(evt.NewStatus), evt.GrievanceID)
}

func (s *NotificationService) handleCommented(ctx context.Context, payload []byte) error {
	var evt events.GrievanceCommented
	if err := events.Decode(payload, &evt); err != nil {
		return err
	}
	who := evt.CommenterName
	if who == "" {
		who = "Someone"
	}
	msg := fmt.Sprintf("%s commented on your grievance %q", who, evt.Title)
	return s.notifyEvent(ctx, "commented", []uint{evt.SubmitterID}, "New Comment", msg, models.NotificationInfo, evt.GrievanceID)
}

func (s *NotificationService) notifyEvent(ctx context.Context, event string, recipients []uint, title, message string, kind models.NotificationType, grievanceID uint) error {
	if err := s.Notify(ctx, recipients, title, message, kind, &grievanceID); err != nil {
		return err
	}
	monitor.NotificationsCreatedTotal.WithLabelValues(event).Add(float64(len(recipients)))
	return nil
}

// mailCopies e-mails each recipient. Failures are logged only.
func (s *NotificationService) mailCopies(ctx context.Context, recipients []uint, title, message string) {
	if s.mailer == nil || !s.mailer.Enabled() {
		return
	}
	body := "<p>" + html.EscapeString(message) + "</p>"
	for _, id := range recipients {
		user, err := s.users.FindUserByID(ctx, id)
		if err != nil {
			log.Warn().Err(err).Uint("user_id", id).Msg("notification mail skipped")
			continue
		}
		if err := s.mailer.SendMail([]string{user.Email}, title, body); err != nil {
			log.Warn().Err(err).Uint("user_id", id).Msg("notification mail failed")
		}
	}
}

func (s *NotificationService) List(ctx context.Context, caller authz.Caller, unreadOnly bool, page, limit int) (*NotificationList, error) {
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = 20
	}
	if page < 1 || limit < 1 || limit > 100 {
		return nil, apperr.Validation("Validation failed",
			apperr.FieldError{Field: "limit", Message: "Page must be positive and limit between 1 and 100"})
	}
	items, total, unread, err := s.notifications.ListNotifications(ctx, caller.UserID, unreadOnly, page, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Notification{}
	}
	return &NotificationList{
		Notifications: items,
		UnreadCount:   unread,
		Pagination:    models.NewPagination(page, limit, total),
	}, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, caller authz.Caller, id uint) error {
	return s.notifications.MarkNotificationRead(ctx, caller.UserID, id)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, caller authz.Caller) (int64, error) {
	return s.notifications.MarkAllNotificationsRead(ctx, caller.UserID)
}

func statusLabel(st models.Status) string {
	return strings.ReplaceAll(string(st), "_", " ")
}

func statusNotificationType(st models.Status) models.NotificationType {
	switch st {
	case models.StatusResolved, models.StatusClosed:
		return models.NotificationSuccess
	case models.StatusRejected:
		return models.NotificationWarning
	default:
		return models.NotificationInfo
	}
}
