package storage

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"grievance-management-api/models"
)

func (s *Store) ListCategories(ctx context.Context, activeOnly bool) ([]models.GrievanceCategory, error) {
	query := s.conn(ctx)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var categories []models.GrievanceCategory
	err := query.Order("name ASC").Find(&categories).Error
	return categories, translateError(err, "Category")
}

func (s *Store) FindCategory(ctx context.Context, id uint) (*models.GrievanceCategory, error) {
	var c models.GrievanceCategory
	if err := s.conn(ctx).First(&c, id).Error; err != nil {
		return nil, translateError(err, "Category")
	}
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, c *models.GrievanceCategory) error {
	return translateError(s.conn(ctx).Create(c).Error, "Category")
}

func (s *Store) UpdateCategory(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := s.conn(ctx).Model(&models.GrievanceCategory{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translateError(res.Error, "Category")
	}
	if res.RowsAffected == 0 {
		return translateError(gorm.ErrRecordNotFound, "Category")
	}
	return nil
}

// UpsertCategories inserts the named categories, leaving existing rows untouched.
func (s *Store) UpsertCategories(ctx context.Context, categories []models.GrievanceCategory) error {
	if len(categories) == 0 {
		return nil
	}
	err := s.conn(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&categories).Error
	return translateError(err, "Category")
}
