package storage

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm"

	"grievance-management-api/models"
)

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return translateError(s.conn(ctx).Create(user).Error, "User")
}

func (s *Store) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).First(&user, id).Error; err != nil {
		return nil, translateError(err, "User")
	}
	return &user, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translateError(err, "User")
	}
	return &user, nil
}

// FindUserByEmailOrUsername returns the first user holding either identifier.
func (s *Store) FindUserByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error) {
	var user models.User
	err := s.conn(ctx).
		Where("email = ? OR username = ?", email, username).
		Order("id ASC").
		First(&user).Error
	if err != nil {
		return nil, translateError(err, "User")
	}
	return &user, nil
}

func (s *Store) UpdateUser(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := s.conn(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translateError(res.Error, "User")
	}
	if res.RowsAffected == 0 {
		return translateError(gorm.ErrRecordNotFound, "User")
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context, q models.UserQuery) ([]models.UserListItem, int64, error) {
	page, limit := normalizePage(q.Page, q.Limit, 10, 100)

	query := s.conn(ctx).Model(&models.User{})
	if q.Search != "" {
		pattern := likePattern(q.Search)
		query = query.Where(
			"LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}
	if q.Role != "" {
		query = query.Where("role = ?", q.Role)
	}
	if q.IsActive != nil {
		query = query.Where("is_active = ?", *q.IsActive)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translateError(err, "User")
	}

	sortBy := "created_at"
	if slices.Contains(models.UserSortFields, q.SortBy) {
		sortBy = q.SortBy
	}

	var users []models.User
	err := query.
		Order(fmt.Sprintf("%s %s", sortBy, orderDirection(q.SortOrder))).
		Order("id ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, 0, translateError(err, "User")
	}

	items := make([]models.UserListItem, len(users))
	if len(users) == 0 {
		return items, total, nil
	}

	ids := make([]uint, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	submitted, err := s.countGrouped(ctx, "user_id", ids)
	if err != nil {
		return nil, 0, err
	}
	assigned, err := s.countGrouped(ctx, "assigned_to", ids)
	if err != nil {
		return nil, 0, err
	}
	for i, u := range users {
		items[i] = models.UserListItem{
			User:                    u,
			GrievancesCount:         submitted[u.ID],
			AssignedGrievancesCount: assigned[u.ID],
		}
	}
	return items, total, nil
}

type idCount struct {
	ID    uint  `gorm:"column:ref_id"`
	Total int64 `gorm:"column:total"`
}

// countGrouped counts grievances per value of column for the given ids.
func (s *Store) countGrouped(ctx context.Context, column string, ids []uint) (map[uint]int64, error) {
	var rows []idCount
	err := s.conn(ctx).Model(&models.Grievance{}).
		Select(column+" AS ref_id, COUNT(*) AS total").
		Where(column+" IN ?", ids).
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, translateError(err, "Grievance")
	}
	out := make(map[uint]int64, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Total
	}
	return out, nil
}

func (s *Store) UserStats(ctx context.Context, id uint) (models.UserStats, error) {
	var stats models.UserStats
	db := s.conn(ctx)
	if err := db.Model(&models.Grievance{}).Where("user_id = ?", id).Count(&stats.GrievancesCount).Error; err != nil {
		return stats, translateError(err, "Grievance")
	}
	if err := db.Model(&models.Grievance{}).Where("assigned_to = ?", id).Count(&stats.AssignedGrievancesCount).Error; err != nil {
		return stats, translateError(err, "Grievance")
	}
	if err := db.Model(&models.GrievanceComment{}).Where("user_id = ?", id).Count(&stats.CommentsCount).Error; err != nil {
		return stats, translateError(err, "Comment")
	}
	if err := db.Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", id, false).Count(&stats.UnreadNotifications).Error; err != nil {
		return stats, translateError(err, "Notification")
	}
	return stats, nil
}

// CountActiveGrievancesBySubmitter counts pending and in-progress grievances.
func (s *Store) CountActiveGrievancesBySubmitter(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&models.Grievance{}).
		Where("user_id = ? AND status IN ?", userID, []models.Status{models.StatusPending, models.StatusInProgress}).
		Count(&n).Error
	return n, translateError(err, "Grievance")
}

// DeleteUser removes the user together with the grievances they submitted
// that are no longer active, and everything hanging off those grievances.
// History rows and attachments the user left on other grievances keep their
// content with the actor cleared. The attachments of the removed grievances
// are returned so their files can be deleted. A user who still has pending or
// in-progress grievances fails with Conflict.
func (s *Store) DeleteUser(ctx context.Context, id uint) ([]models.GrievanceAttachment, error) {
	var attachments []models.GrievanceAttachment
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var grievanceIDs []uint
		if err := tx.Model(&models.Grievance{}).
			Where("user_id = ? AND status NOT IN ?", id, []models.Status{models.StatusPending, models.StatusInProgress}).
			Order("id ASC").
			Pluck("id", &grievanceIDs).Error; err != nil {
			return err
		}
		if len(grievanceIDs) > 0 {
			if err := tx.Where("grievance_id IN ?", grievanceIDs).Find(&attachments).Error; err != nil {
				return err
			}
			for _, model := range []interface{}{
				&models.GrievanceAttachment{},
				&models.GrievanceComment{},
				&models.GrievanceStatusHistory{},
			} {
				if err := tx.Where("grievance_id IN ?", grievanceIDs).Delete(model).Error; err != nil {
					return err
				}
			}
			if err := tx.Model(&models.Notification{}).Where("grievance_id IN ?", grievanceIDs).Update("grievance_id", nil).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", grievanceIDs).Delete(&models.Grievance{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("user_id = ?", id).Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.GrievanceComment{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Grievance{}).Where("assigned_to = ?", id).Update("assigned_to", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.GrievanceStatusHistory{}).Where("changed_by = ?", id).Update("changed_by", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.GrievanceAttachment{}).Where("uploaded_by = ?", id).Update("uploaded_by", nil).Error; err != nil {
			return err
		}

		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, translateError(err, "User")
	}
	return attachments, nil
}

// ListActiveUserIDsByRole returns ids of active users holding role.
func (s *Store) ListActiveUserIDsByRole(ctx context.Context, role models.Role) ([]uint, error) {
	var ids []uint
	err := s.conn(ctx).Model(&models.User{}).
		Where("role = ? AND is_active = ?", role, true).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, translateError(err, "User")
}

func (s *Store) CountActiveUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&models.User{}).Where("is_active = ?", true).Count(&n).Error
	return n, translateError(err, "User")
}

// ListUsersWithLegacyPasswords returns users whose stored password is not a
// bcrypt hash.
func (s *Store) ListUsersWithLegacyPasswords(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.conn(ctx).
		Where("password_hash NOT LIKE ?", "$2%").
		Find(&users).Error
	return users, translateError(err, "User")
}
