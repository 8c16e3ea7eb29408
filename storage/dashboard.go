package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"grievance-management-api/models"
)

func (s *Store) scopedGrievances(ctx context.Context, scope models.DashboardScope) *gorm.DB {
	query := s.conn(ctx).Model(&models.Grievance{})
	if scope.SubmitterID != nil {
		query = query.Where("grievances.user_id = ?", *scope.SubmitterID)
	}
	return query
}

var groupableColumns = map[string]bool{
	"status":   true,
	"priority": true,
}

// CountGrievancesBy groups grievances in scope by status or priority.
func (s *Store) CountGrievancesBy(ctx context.Context, scope models.DashboardScope, column string) ([]models.GroupCount, error) {
	if !groupableColumns[column] {
		return nil, fmt.Errorf("unsupported grouping column %q", column)
	}
	var rows []models.GroupCount
	err := s.scopedGrievances(ctx, scope).
		Select(column + " AS group_key, COUNT(*) AS total").
		Group(column).
		Scan(&rows).Error
	return rows, translateError(err, "Grievance")
}

func (s *Store) CountGrievancesByCategory(ctx context.Context, scope models.DashboardScope) ([]models.CategoryCount, error) {
	var rows []models.CategoryCount
	err := s.scopedGrievances(ctx, scope).
		Select("category_id, COUNT(*) AS total").
		Group("category_id").
		Scan(&rows).Error
	return rows, translateError(err, "Grievance")
}

// CountGrievancesSince counts grievances in scope submitted at or after since.
func (s *Store) CountGrievancesSince(ctx context.Context, scope models.DashboardScope, since time.Time) (int64, error) {
	var n int64
	err := s.scopedGrievances(ctx, scope).
		Where("grievances.submission_date >= ?", since).
		Count(&n).Error
	return n, translateError(err, "Grievance")
}

// SubmissionsBetween returns submission date and status for grievances
// submitted in [from, to).
func (s *Store) SubmissionsBetween(ctx context.Context, from, to time.Time) ([]models.SubmissionPoint, error) {
	var rows []models.SubmissionPoint
	err := s.conn(ctx).Model(&models.Grievance{}).
		Select("submission_date, status").
		Where("submission_date >= ? AND submission_date < ?", from, to).
		Scan(&rows).Error
	return rows, translateError(err, "Grievance")
}

func (s *Store) ResolutionSpans(ctx context.Context) ([]models.ResolutionSpan, error) {
	var rows []models.ResolutionSpan
	err := s.conn(ctx).Model(&models.Grievance{}).
		Select("submission_date, resolution_date").
		Where("resolution_date IS NOT NULL").
		Scan(&rows).Error
	return rows, translateError(err, "Grievance")
}

// TopDepartments ranks submitter departments by grievance count.
func (s *Store) TopDepartments(ctx context.Context, limit int) ([]models.DepartmentCount, error) {
	var rows []models.DepartmentCount
	err := s.conn(ctx).Model(&models.Grievance{}).
		Select("users.department AS department, COUNT(*) AS total").
		Joins("JOIN users ON users.id = grievances.user_id").
		Where("users.department IS NOT NULL AND users.department <> ?", "").
		Group("users.department").
		Order("total DESC").
		Order("users.department ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, translateError(err, "Grievance")
}
