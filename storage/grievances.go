package storage

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm"

	"grievance-management-api/models"
)

// CreateGrievance persists the grievance, its initial history row and its
// attachments in one transaction. IDs are filled in on success.
func (s *Store) CreateGrievance(ctx context.Context, g *models.Grievance, history *models.GrievanceStatusHistory, attachments []models.GrievanceAttachment) error {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("User", "Category", "AssignedUser", "Attachments", "Comments", "StatusHistory").Create(g).Error; err != nil {
			return err
		}
		history.GrievanceID = g.ID
		if err := tx.Omit("User").Create(history).Error; err != nil {
			return err
		}
		if len(attachments) == 0 {
			return nil
		}
		for i := range attachments {
			attachments[i].GrievanceID = g.ID
		}
		return tx.Omit("Uploader").Create(&attachments).Error
	})
	return translateError(err, "Grievance")
}

func (s *Store) FindGrievance(ctx context.Context, id uint) (*models.Grievance, error) {
	var g models.Grievance
	if err := s.conn(ctx).First(&g, id).Error; err != nil {
		return nil, translateError(err, "Grievance")
	}
	return &g, nil
}

// FindGrievanceDetail loads a grievance with every relation expanded.
// Internal comments are dropped unless includeInternal is set.
func (s *Store) FindGrievanceDetail(ctx context.Context, id uint, includeInternal bool) (*models.Grievance, error) {
	var g models.Grievance
	err := s.conn(ctx).
		Preload("User").
		Preload("Category").
		Preload("AssignedUser").
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("uploaded_at ASC, id ASC")
		}).
		Preload("Attachments.Uploader").
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			if !includeInternal {
				db = db.Where("is_internal = ?", false)
			}
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Comments.User").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("changed_at ASC, id ASC")
		}).
		Preload("StatusHistory.User").
		First(&g, id).Error
	if err != nil {
		return nil, translateError(err, "Grievance")
	}
	g.CommentsCount = int64(len(g.Comments))
	return &g, nil
}

func (s *Store) ListGrievances(ctx context.Context, q models.GrievanceQuery) ([]models.Grievance, int64, error) {
	page, limit := normalizePage(q.Page, q.Limit, 10, 100)

	query := s.conn(ctx).Model(&models.Grievance{})
	if q.SubmitterID != nil {
		query = query.Where("grievances.user_id = ?", *q.SubmitterID)
	}
	if q.Status != "" {
		query = query.Where("grievances.status = ?", q.Status)
	}
	if q.Priority != "" {
		query = query.Where("grievances.priority = ?", q.Priority)
	}
	if q.CategoryID != nil {
		query = query.Where("grievances.category_id = ?", *q.CategoryID)
	}
	if q.Search != "" {
		pattern := likePattern(q.Search)
		submitters := s.conn(ctx).Model(&models.User{}).
			Select("id").
			Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?", pattern, pattern)
		query = query.Where(
			"LOWER(grievances.title) LIKE ? OR LOWER(grievances.description) LIKE ? OR grievances.user_id IN (?)",
			pattern, pattern, submitters,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translateError(err, "Grievance")
	}

	sortBy := "submission_date"
	if slices.Contains(models.GrievanceSortFields, q.SortBy) {
		sortBy = q.SortBy
	}

	var items []models.Grievance
	err := query.
		Preload("User").
		Preload("Category").
		Preload("AssignedUser").
		Order(fmt.Sprintf("grievances.%s %s", sortBy, orderDirection(q.SortOrder))).
		Order("grievances.id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, 0, translateError(err, "Grievance")
	}
	if err := s.fillCommentCounts(ctx, items, q.IncludeInternal); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Store) fillCommentCounts(ctx context.Context, items []models.Grievance, includeInternal bool) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]uint, len(items))
	for i, g := range items {
		ids[i] = g.ID
	}
	query := s.conn(ctx).Model(&models.GrievanceComment{}).
		Select("grievance_id AS ref_id, COUNT(*) AS total").
		Where("grievance_id IN ?", ids)
	if !includeInternal {
		query = query.Where("is_internal = ?", false)
	}
	var rows []idCount
	if err := query.Group("grievance_id").Scan(&rows).Error; err != nil {
		return translateError(err, "Comment")
	}
	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.ID] = r.Total
	}
	for i := range items {
		items[i].CommentsCount = counts[items[i].ID]
	}
	return nil
}

// RecentGrievances returns the newest submissions within the query scope.
func (s *Store) RecentGrievances(ctx context.Context, q models.RecentQuery) ([]models.Grievance, error) {
	_, limit := normalizePage(1, q.Limit, 10, 50)
	query := s.conn(ctx).Model(&models.Grievance{})
	if q.SubmitterID != nil {
		query = query.Where("user_id = ?", *q.SubmitterID)
	}
	if q.AssigneeOrUnassigned != nil {
		query = query.Where("assigned_to = ? OR assigned_to IS NULL", *q.AssigneeOrUnassigned)
	}
	var items []models.Grievance
	err := query.
		Preload("User").
		Preload("Category").
		Preload("AssignedUser").
		Order("submission_date DESC").
		Order("id DESC").
		Limit(limit).
		Find(&items).Error
	return items, translateError(err, "Grievance")
}

// UpdateGrievance applies a partial update. Status never changes here.
func (s *Store) UpdateGrievance(ctx context.Context, id uint, fields map[string]interface{}) error {
	delete(fields, "status")
	if len(fields) == 0 {
		return nil
	}
	res := s.conn(ctx).Model(&models.Grievance{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translateError(res.Error, "Grievance")
	}
	if res.RowsAffected == 0 {
		return translateError(gorm.ErrRecordNotFound, "Grievance")
	}
	return nil
}

// ChangeStatus updates the grievance and appends one history row in the same
// transaction. The update is conditional on the old status so a concurrent
// transition cannot be recorded twice.
func (s *Store) ChangeStatus(ctx context.Context, id uint, fields map[string]interface{}, history *models.GrievanceStatusHistory) error {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.Grievance{}).Where("id = ?", id)
		if history.OldStatus != nil {
			query = query.Where("status = ?", *history.OldStatus)
		}
		res := query.Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		history.GrievanceID = id
		return tx.Omit("User").Create(history).Error
	})
	return translateError(err, "Grievance")
}

// DeleteGrievance removes the grievance and its dependent rows, returning the
// attachments whose files the caller should remove.
func (s *Store) DeleteGrievance(ctx context.Context, id uint) ([]models.GrievanceAttachment, error) {
	var attachments []models.GrievanceAttachment
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("grievance_id = ?", id).Find(&attachments).Error; err != nil {
			return err
		}
		for _, model := range []interface{}{
			&models.GrievanceAttachment{},
			&models.GrievanceComment{},
			&models.GrievanceStatusHistory{},
		} {
			if err := tx.Where("grievance_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&models.Notification{}).Where("grievance_id = ?", id).Update("grievance_id", nil).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Grievance{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, translateError(err, "Grievance")
	}
	return attachments, nil
}

func (s *Store) AddAttachments(ctx context.Context, attachments []models.GrievanceAttachment) error {
	if len(attachments) == 0 {
		return nil
	}
	return translateError(s.conn(ctx).Omit("Uploader").Create(&attachments).Error, "Attachment")
}

func (s *Store) CreateComment(ctx context.Context, c *models.GrievanceComment) error {
	if err := s.conn(ctx).Omit("User").Create(c).Error; err != nil {
		return translateError(err, "Comment")
	}
	return translateError(s.conn(ctx).Preload("User").First(c, c.ID).Error, "Comment")
}

func (s *Store) ListComments(ctx context.Context, grievanceID uint, includeInternal bool) ([]models.GrievanceComment, error) {
	query := s.conn(ctx).Preload("User").Where("grievance_id = ?", grievanceID)
	if !includeInternal {
		query = query.Where("is_internal = ?", false)
	}
	var comments []models.GrievanceComment
	err := query.Order("created_at ASC, id ASC").Find(&comments).Error
	return comments, translateError(err, "Comment")
}
