package storage

import (
	"context"

	"grievance-management-api/models"
)

func (s *Store) CreateNotifications(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	err := s.conn(ctx).Omit("Recipient", "Grievance").Create(&notifications).Error
	return translateError(err, "Notification")
}

// ListNotifications returns one page of the user's notifications, newest
// first, with the total and unread counts.
func (s *Store) ListNotifications(ctx context.Context, userID uint, unreadOnly bool, page, limit int) ([]models.Notification, int64, int64, error) {
	page, limit = normalizePage(page, limit, 20, 100)

	query := s.conn(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, 0, translateError(err, "Notification")
	}

	var unread int64
	err := s.conn(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&unread).Error
	if err != nil {
		return nil, 0, 0, translateError(err, "Notification")
	}

	var items []models.Notification
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, 0, 0, translateError(err, "Notification")
	}
	return items, total, unread, nil
}

// MarkNotificationRead fails with NotFound when the notification does not
// belong to userID.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, id uint) error {
	var n models.Notification
	if err := s.conn(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
		return translateError(err, "Notification")
	}
	if n.IsRead {
		return nil
	}
	err := s.conn(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true).Error
	return translateError(err, "Notification")
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID uint) (int64, error) {
	res := s.conn(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, translateError(res.Error, "Notification")
	}
	return res.RowsAffected, nil
}
