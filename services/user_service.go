package services

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"grievance-management-api/apperr"
	"grievance-management-api/authz"
	"grievance-management-api/models"
	"grievance-management-api/utils"
)

type UserService struct {
	users  UserRepository
	auth   *AuthService
	files  FileStore
	policy *authz.Policy
}

func NewUserService(users UserRepository, auth *AuthService, files FileStore, policy *authz.Policy) *UserService {
	return &UserService{users: users, auth: auth, files: files, policy: policy}
}

type ListUsersInput struct {
	Page      int
	Limit     int
	Search    string
	Role      string
	IsActive  *bool
	SortBy    string
	SortOrder string
}

type UserList struct {
	Users      []models.UserListItem `json:"users"`
	Pagination models.Pagination     `json:"pagination"`
}

type UserDetail struct {
	User  *models.User     `json:"user"`
	Stats models.UserStats `json:"stats"`
}

type UpdateUserInput struct {
	FirstName  *string `json:"first_name" validate:"omitempty,min=2,max=100"`
	LastName   *string `json:"last_name" validate:"omitempty,min=2,max=100"`
	Phone      *string `json:"phone" validate:"omitempty,phone"`
	Department *string `json:"department" validate:"omitempty,min=2,max=100"`
	Role       *string `json:"role"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

func (s *UserService) List(ctx context.Context, caller authz.Caller, in ListUsersInput) (*UserList, error) {
	if !s.policy.Allowed(caller, authz.Kind(authz.ObjUser), authz.ActList) {
		return nil, apperr.Forbidden("Access denied")
	}

	var details []apperr.FieldError
	q := models.UserQuery{
		Page:      in.Page,
		Limit:     in.Limit,
		Search:    strings.TrimSpace(in.Search),
		IsActive:  in.IsActive,
		SortBy:    in.SortBy,
		SortOrder: strings.ToLower(in.SortOrder),
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = 10
	}
	if q.Page < 1 {
		details = append(details, apperr.FieldError{Field: "page", Message: "Page must be a positive integer"})
	}
	if q.Limit < 1 || q.Limit > 100 {
		details = append(details, apperr.FieldError{Field: "limit", Message: "Limit must be between 1 and 100"})
	}
	if in.Role != "" {
		role, ok := utils.ParseRole(in.Role)
		if !ok {
			details = append(details, apperr.FieldError{Field: "role", Message: "Role must be one of: admin, staff, user"})
		}
		q.Role = role
	}
	if q.SortBy == "" {
		q.SortBy = "created_at"
	} else if !slices.Contains(models.UserSortFields, q.SortBy) {
		details = append(details, apperr.FieldError{Field: "sort_by", Message: "Invalid sort field"})
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	} else if q.SortOrder != "asc" && q.SortOrder != "desc" {
		details = append(details, apperr.FieldError{Field: "sort_order", Message: "Sort order must be asc or desc"})
	}
	if len(details) > 0 {
		return nil, apperr.Validation("Validation failed", details...)
	}

	items, total, err := s.users.ListUsers(ctx, q)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.UserListItem{}
	}
	return &UserList{Users: items, Pagination: models.NewPagination(q.Page, q.Limit, total)}, nil
}

func (s *UserService) Get(ctx context.Context, caller authz.Caller, id uint) (*UserDetail, error) {
	if !s.policy.Allowed(caller, authz.User(id), authz.ActRead) {
		return nil, apperr.Forbidden("Access denied")
	}
	user, err := s.users.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.users.UserStats(ctx, id)
	if err != nil {
		return nil, err
	}
	return &UserDetail{User: user, Stats: stats}, nil
}

// Update changes profile fields. A role change from a non-admin is ignored.
func (s *UserService) Update(ctx context.Context, caller authz.Caller, id uint, in UpdateUserInput) (*models.User, error) {
	if !s.policy.Allowed(caller, authz.User(id), authz.ActUpdate) {
		return nil, apperr.Forbidden("Access denied")
	}

	in.FirstName = utils.SanitizeOptional(in.FirstName)
	in.LastName = utils.SanitizeOptional(in.LastName)
	in.Phone = utils.SanitizeOptional(in.Phone)
	in.Department = utils.SanitizeOptional(in.Department)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	if _, err := s.users.FindUserByID(ctx, id); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if in.FirstName != nil {
		fields["first_name"] = *in.FirstName
	}
	if in.LastName != nil {
		fields["last_name"] = *in.LastName
	}
	if in.Phone != nil {
		fields["phone"] = *in.Phone
	}
	if in.Department != nil {
		fields["department"] = *in.Department
	}
	if in.Role != nil && caller.IsAdmin() {
		role, ok := utils.ParseRole(*in.Role)
		if !ok {
			return nil, apperr.Validation("Validation failed",
				apperr.FieldError{Field: "role", Message: "Role must be one of: admin, staff, user"})
		}
		fields["role"] = role
	}

	if len(fields) > 0 {
		if err := s.users.UpdateUser(ctx, id, fields); err != nil {
			return nil, err
		}
	}
	return s.users.FindUserByID(ctx, id)
}

// ChangePassword requires the current password only when callers change
// their own password.
func (s *UserService) ChangePassword(ctx context.Context, caller authz.Caller, id uint, in ChangePasswordInput) error {
	if !s.policy.Allowed(caller, authz.User(id), authz.ActChangePassword) {
		return apperr.Forbidden("Access denied")
	}
	if err := validateStruct(in); err != nil {
		return err
	}

	user, err := s.users.FindUserByID(ctx, id)
	if err != nil {
		return err
	}
	if caller.UserID == id {
		if in.CurrentPassword == "" || !CheckPasswordHash(in.CurrentPassword, user.PasswordHash) {
			return apperr.Validation("Invalid current password",
				apperr.FieldError{Field: "current_password", Message: "Current password is incorrect"})
		}
	}

	hash, err := s.auth.HashPassword(in.NewPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdateUser(ctx, id, map[string]interface{}{"password_hash": hash}); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Uint("user_id", id).Uint("changed_by", caller.UserID).Msg("password changed")
	return nil
}

func (s *UserService) ToggleStatus(ctx context.Context, caller authz.Caller, id uint) (*models.User, error) {
	if !s.policy.Allowed(caller, authz.User(id), authz.ActToggleStatus) {
		return nil, apperr.Forbidden("Access denied")
	}
	user, err := s.users.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.UserID == id && user.IsActive {
		return nil, apperr.Validation("You cannot deactivate your own account")
	}
	if err := s.users.UpdateUser(ctx, id, map[string]interface{}{"is_active": !user.IsActive}); err != nil {
		return nil, err
	}
	user.IsActive = !user.IsActive
	log.Ctx(ctx).Info().Uint("user_id", id).Bool("is_active", user.IsActive).Msg("user status toggled")
	return user, nil
}

// Delete refuses while the user still has pending or in-progress grievances.
// Their resolved, closed and rejected grievances are removed with them,
// attachment files included.
func (s *UserService) Delete(ctx context.Context, caller authz.Caller, id uint) error {
	if !s.policy.Allowed(caller, authz.User(id), authz.ActDelete) {
		return apperr.Forbidden("Access denied")
	}
	if _, err := s.users.FindUserByID(ctx, id); err != nil {
		return err
	}
	if caller.UserID == id {
		return apperr.Conflict("You cannot delete your own account")
	}
	active, err := s.users.CountActiveGrievancesBySubmitter(ctx, id)
	if err != nil {
		return err
	}
	if active > 0 {
		return apperr.Conflict("Cannot delete user with active grievances. Please resolve or reassign them first.")
	}
	attachments, err := s.users.DeleteUser(ctx, id)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(attachments))
	for _, a := range attachments {
		names = append(names, a.FilePath)
	}
	s.files.Remove(names...)

	log.Ctx(ctx).Info().Uint("user_id", id).Uint("deleted_by", caller.UserID).Int("attachments_removed", len(names)).Msg("user deleted")
	return nil
}
