package services

import (
	"context"

	"grievance-management-api/apperr"
	"grievance-management-api/authz"
	"grievance-management-api/models"
	"grievance-management-api/utils"
)

type CategoryService struct {
	categories CategoryRepository
	cache      *CategoryCache
	policy     *authz.Policy
}

func NewCategoryService(categories CategoryRepository, cache *CategoryCache, policy *authz.Policy) *CategoryService {
	return &CategoryService{categories: categories, cache: cache, policy: policy}
}

type CategoryInput struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=100"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	IsActive    *bool   `json:"is_active"`
}

func (s *CategoryService) List(ctx context.Context, caller authz.Caller, activeOnly bool) ([]models.GrievanceCategory, error) {
	if !s.policy.Allowed(caller, authz.Kind(authz.ObjCategory), authz.ActList) {
		return nil, apperr.Forbidden("Access denied")
	}
	items, err := s.categories.ListCategories(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.GrievanceCategory{}
	}
	return items, nil
}

func (s *CategoryService) Create(ctx context.Context, caller authz.Caller, in CategoryInput) (*models.GrievanceCategory, error) {
	if !s.policy.Allowed(caller, authz.Kind(authz.ObjCategory), authz.ActManage) {
		return nil, apperr.Forbidden("Access denied")
	}
	in.Name = utils.SanitizeOptional(in.Name)
	in.Description = utils.SanitizeOptional(in.Description)
	if in.Name == nil {
		return nil, apperr.Validation("Validation failed", apperr.FieldError{Field: "name", Message: "Name is required"})
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	c := &models.GrievanceCategory{Name: *in.Name, Description: in.Description, IsActive: true}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	if err := s.categories.CreateCategory(ctx, c); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return nil, apperr.Conflict("A category with this name already exists")
		}
		return nil, err
	}
	s.cache.Invalidate()
	return c, nil
}

func (s *CategoryService) Update(ctx context.Context, caller authz.Caller, id uint, in CategoryInput) (*models.GrievanceCategory, error) {
	if !s.policy.Allowed(caller, authz.Kind(authz.ObjCategory), authz.ActManage) {
		return nil, apperr.Forbidden("Access denied")
	}
	in.Name = utils.SanitizeOptional(in.Name)
	in.Description = utils.SanitizeOptional(in.Description)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if _, err := s.categories.FindCategory(ctx, id); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if in.Name != nil {
		fields["name"] = *in.Name
	}
	if in.Description != nil {
		fields["description"] = *in.Description
	}
	if in.IsActive != nil {
		fields["is_active"] = *in.IsActive
	}
	if len(fields) > 0 {
		if err := s.categories.UpdateCategory(ctx, id, fields); err != nil {
			if apperr.Is(err, apperr.KindConflict) {
				return nil, apperr.Conflict("A category with this name already exists")
			}
			return nil, err
		}
		s.cache.Invalidate()
	}
	return s.categories.FindCategory(ctx, id)
}

// Delete deactivates the category. Grievances keep their reference.
func (s *CategoryService) Delete(ctx context.Context, caller authz.Caller, id uint) error {
	if !s.policy.Allowed(caller, authz.Kind(authz.ObjCategory), authz.ActManage) {
		return apperr.Forbidden("Access denied")
	}
	if _, err := s.categories.FindCategory(ctx, id); err != nil {
		return err
	}
	if err := s.categories.UpdateCategory(ctx, id, map[string]interface{}{"is_active": false}); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}
