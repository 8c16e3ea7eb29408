package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"grievance-management-api/apperr"
	"grievance-management-api/authz"
	"grievance-management-api/events"
	"grievance-management-api/models"
	"grievance-management-api/monitor"
	"grievance-management-api/utils"
)

// allowedTransitions is the grievance state machine. Closed is terminal.
var allowedTransitions = map[models.Status][]models.Status{
	models.StatusPending:    {models.StatusInProgress, models.StatusRejected},
	models.StatusInProgress: {models.StatusResolved, models.StatusRejected, models.StatusClosed},
	models.StatusResolved:   {models.StatusClosed, models.StatusInProgress},
	models.StatusRejected:   {models.StatusClosed},
}

// CanTransition reports whether a grievance may move from one status to another.
func CanTransition(from, to models.Status) bool {
	return slices.Contains(allowedTransitions[from], to)
}

type GrievanceService struct {
	grievances GrievanceRepository
	categories CategoryRepository
	users      UserRepository
	files      FileStore
	events     EventPublisher
	policy     *authz.Policy
	limits     UploadLimits
	now        func() time.Time
}

func NewGrievanceService(
	grievances GrievanceRepository,
	categories CategoryRepository,
	users UserRepository,
	files FileStore,
	publisher EventPublisher,
	policy *authz.Policy,
	limits UploadLimits,
) *GrievanceService {
	return &GrievanceService{
		grievances: grievances,
		categories: categories,
		users:      users,
		files:      files,
		events:     publisher,
		policy:     policy,
		limits:     limits,
		now:        time.Now,
	}
}

// NullableUint distinguishes an absent JSON field from an explicit null.
type NullableUint struct {
	Set   bool
	Value *uint
}

func (n *NullableUint) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var v uint
	if _, err := fmt.Sscan(string(data), &v); err != nil {
		return fmt.Errorf("expected an id or null, got %s", data)
	}
	n.Value = &v
	return nil
}

type CreateGrievanceInput struct {
	Title       string `json:"title" form:"title" validate:"min=5,max=255"`
	Description string `json:"description" form:"description" validate:"min=10"`
	CategoryID  *uint  `json:"category_id" form:"category_id"`
	Priority    string `json:"priority" form:"priority"`
	DueDate     string `json:"due_date" form:"due_date"`
}

type UpdateGrievanceInput struct {
	Title       *string      `json:"title" validate:"omitempty,min=5,max=255"`
	Description *string      `json:"description" validate:"omitempty,min=10"`
	CategoryID  NullableUint `json:"category_id"`
	DueDate     *string      `json:"due_date"`
	Priority    *string      `json:"priority"`
	AssignedTo  NullableUint `json:"assigned_to"`
}

type ChangeStatusInput struct {
	Status          string  `json:"status" binding:"required"`
	Reason          *string `json:"reason"`
	ResolutionNotes *string `json:"resolution_notes"`
}

type CommentInput struct {
	Comment    string `json:"comment" validate:"min=1,max=2000"`
	IsInternal bool   `json:"is_internal"`
}

// ListGrievancesInput carries raw list parameters; zero values mean defaults.
type ListGrievancesInput struct {
	Page       int
	Limit      int
	Status     string
	Priority   string
	CategoryID *uint
	Search     string
	SortBy     string
	SortOrder  string
}

type GrievanceList struct {
	Grievances []models.Grievance `json:"grievances"`
	Pagination models.Pagination  `json:"pagination"`
}

func (s *GrievanceService) Create(ctx context.Context, caller authz.Caller, in CreateGrievanceInput, uploads []Upload) (*models.Grievance, error) {
	if !s.policy.Allowed(caller, authz.Kind(authz.ObjGrievance), authz.ActCreate) {
		return nil, apperr.Forbidden("You are not allowed to submit grievances")
	}

	in.Title = utils.SanitizeInput(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	priority := models.PriorityMedium
	if strings.TrimSpace(in.Priority) != "" {
		p, ok := utils.ParsePriority(in.Priority)
		if !ok {
			return nil, invalidPriority()
		}
		priority = p
	}

	dueDate, err := parseDueDate(in.DueDate)
	if err != nil {
		return nil, err
	}

	if in.CategoryID != nil {
		if err := s.checkCategory(ctx, *in.CategoryID); err != nil {
			return nil, err
		}
	}

	checked, err := checkUploads(uploads, s.limits)
	if err != nil {
		return nil, err
	}

	now := s.now()
	attachments, stored, err := storeUploads(s.files, checked, caller.UserID, now)
	if err != nil {
		return nil, err
	}

	g := &models.Grievance{
		Title:          in.Title,
		Description:    in.Description,
		CategoryID:     in.CategoryID,
		UserID:         caller.UserID,
		Priority:       priority,
		Status:         models.StatusPending,
		SubmissionDate: now,
		DueDate:        dueDate,
	}
	reason := models.InitialSubmissionReason
	history := &models.GrievanceStatusHistory{
		NewStatus:    models.StatusPending,
		ChangedBy:    &caller.UserID,
		ChangeReason: &reason,
		ChangedAt:    now,
	}
	if err := s.grievances.CreateGrievance(ctx, g, history, attachments); err != nil {
		s.files.Remove(stored...)
		return nil, err
	}
	monitor.GrievancesCreatedTotal.Inc()

	detail, err := s.grievances.FindGrievanceDetail(ctx, g.ID, caller.Role.IsStaffOrAdmin())
	if err != nil {
		return nil, err
	}

	submitterName := ""
	if detail.User != nil {
		submitterName = strings.TrimSpace(detail.User.FirstName + " " + detail.User.LastName)
	}
	s.publish(ctx, events.TopicGrievanceSubmitted, events.GrievanceSubmitted{
		GrievanceID:   g.ID,
		Title:         g.Title,
		SubmitterID:   caller.UserID,
		SubmitterName: submitterName,
	})

	log.Ctx(ctx).Info().
		Uint("grievance_id", g.ID).
		Uint("user_id", caller.UserID).
		Int("attachments", len(attachments)).
		Msg("grievance submitted")
	return detail, nil
}

func (s *GrievanceService) List(ctx context.Context, caller authz.Caller, in ListGrievancesInput) (*GrievanceList, error) {
	if !s.policy.Allowed(caller, authz.Kind(authz.ObjGrievance), authz.ActList) {
		return nil, apperr.Forbidden("You are not allowed to list grievances")
	}

	q, err := buildGrievanceQuery(in)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() {
		id := caller.UserID
		q.SubmitterID = &id
	}
	q.IncludeInternal = caller.Role.IsStaffOrAdmin()

	items, total, err := s.grievances.ListGrievances(ctx, q)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Grievance{}
	}
	return &GrievanceList{
		Grievances: items,
		Pagination: models.NewPagination(q.Page, q.Limit, total),
	}, nil
}

func buildGrievanceQuery(in ListGrievancesInput) (models.GrievanceQuery, error) {
	var details []apperr.FieldError
	q := models.GrievanceQuery{
		Page:       in.Page,
		Limit:      in.Limit,
		CategoryID: in.CategoryID,
		Search:     strings.TrimSpace(in.Search),
		SortBy:     in.SortBy,
		SortOrder:  strings.ToLower(in.SortOrder),
	}

	if q.Page == 0 {
		q.Page = 1
	}
	if q.Page < 1 {
		details = append(details, apperr.FieldError{Field: "page", Message: "Page must be a positive integer"})
	}
	if q.Limit == 0 {
		q.Limit = 10
	}
	if q.Limit < 1 || q.Limit > 100 {
		details = append(details, apperr.FieldError{Field: "limit", Message: "Limit must be between 1 and 100"})
	}
	if in.Status != "" {
		st, ok := utils.ParseStatus(in.Status)
		if !ok {
			details = append(details, apperr.FieldError{Field: "status", Message: "Invalid status"})
		}
		q.Status = st
	}
	if in.Priority != "" {
		p, ok := utils.ParsePriority(in.Priority)
		if !ok {
			details = append(details, apperr.FieldError{Field: "priority", Message: "Invalid priority"})
		}
		q.Priority = p
	}
	if q.SortBy == "" {
		q.SortBy = "submission_date"
	} else if !slices.Contains(models.GrievanceSortFields, q.SortBy) {
		details = append(details, apperr.FieldError{Field: "sort_by", Message: "Invalid sort field"})
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	} else if q.SortOrder != "asc" && q.SortOrder != "desc" {
		details = append(details, apperr.FieldError{Field: "sort_order", Message: "Sort order must be asc or desc"})
	}

	if len(details) > 0 {
		return q, apperr.Validation("Validation failed", details...)
	}
	return q, nil
}

func (s *GrievanceService) Get(ctx context.Context, caller authz.Caller, id uint) (*models.Grievance, error) {
	g, err := s.authorize(ctx, caller, id, authz.ActRead)
	if err != nil {
		return nil, err
	}
	includeInternal := s.policy.Allowed(caller, authz.Grievance(g), authz.ActViewInternal)
	return s.grievances.FindGrievanceDetail(ctx, id, includeInternal)
}

func (s *GrievanceService) Update(ctx context.Context, caller authz.Caller, id uint, in UpdateGrievanceInput) (*models.Grievance, error) {
	g, err := s.grievances.FindGrievance(ctx, id)
	if err != nil {
		return nil, err
	}
	res := authz.Grievance(g)
	canTriage := s.policy.Allowed(caller, res, authz.ActAssign)

	fields := map[string]interface{}{}
	contentChange := in.Title != nil || in.Description != nil || in.CategoryID.Set || in.DueDate != nil
	triageChange := in.Priority != nil || in.AssignedTo.Set

	if contentChange {
		if !s.policy.Allowed(caller, res, authz.ActUpdate) {
			return nil, apperr.Forbidden("You are not allowed to edit this grievance")
		}
		if !canTriage && g.Status != models.StatusPending {
			return nil, apperr.Forbidden("Grievance can only be edited while pending")
		}
	}
	if triageChange && !canTriage {
		return nil, apperr.Forbidden("Only staff or administrators can change priority or assignment")
	}

	if in.Title != nil {
		t := utils.SanitizeInput(*in.Title)
		in.Title = &t
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		in.Description = &d
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	if in.Title != nil {
		fields["title"] = *in.Title
	}
	if in.Description != nil {
		fields["description"] = *in.Description
	}
	if in.CategoryID.Set {
		if in.CategoryID.Value != nil {
			if err := s.checkCategory(ctx, *in.CategoryID.Value); err != nil {
				return nil, err
			}
		}
		fields["category_id"] = in.CategoryID.Value
	}
	if in.DueDate != nil {
		due, err := parseDueDate(*in.DueDate)
		if err != nil {
			return nil, err
		}
		fields["due_date"] = due
	}
	if in.Priority != nil {
		p, ok := utils.ParsePriority(*in.Priority)
		if !ok {
			return nil, invalidPriority()
		}
		fields["priority"] = p
	}

	var newAssignee *uint
	if in.AssignedTo.Set {
		if in.AssignedTo.Value != nil {
			if err := s.checkAssignee(ctx, *in.AssignedTo.Value); err != nil {
				return nil, err
			}
			if g.AssignedTo == nil || *g.AssignedTo != *in.AssignedTo.Value {
				newAssignee = in.AssignedTo.Value
			}
		}
		fields["assigned_to"] = in.AssignedTo.Value
	}

	if len(fields) > 0 {
		if err := s.grievances.UpdateGrievance(ctx, id, fields); err != nil {
			return nil, err
		}
	}

	if newAssignee != nil && *newAssignee != caller.UserID {
		s.publish(ctx, events.TopicGrievanceAssigned, events.GrievanceAssigned{
			GrievanceID: g.ID,
			Title:       titleOf(g, fields),
			AssigneeID:  *newAssignee,
			AssignedBy:  caller.UserID,
		})
	}

	return s.grievances.FindGrievanceDetail(ctx, id, s.policy.Allowed(caller, res, authz.ActViewInternal))
}

func (s *GrievanceService) ChangeStatus(ctx context.Context, caller authz.Caller, id uint, in ChangeStatusInput) (*models.Grievance, error) {
	to, ok := utils.ParseStatus(in.Status)
	if !ok {
		return nil, apperr.Validation("Validation failed", apperr.FieldError{
			Field:   "status",
			Message: "Status must be one of: pending, in_progress, resolved, closed, rejected",
		})
	}

	g, err := s.authorize(ctx, caller, id, authz.ActChangeStatus)
	if err != nil {
		return nil, err
	}

	from := g.Status
	if !CanTransition(from, to) {
		return nil, apperr.New(apperr.KindInvalidTransition,
			fmt.Sprintf("Cannot change status from %s to %s", from, to))
	}

	now := s.now()
	fields := map[string]interface{}{"status": to}
	switch to {
	case models.StatusResolved, models.StatusClosed:
		if g.ResolutionDate == nil {
			fields["resolution_date"] = now
		}
		if notes := utils.SanitizeOptional(in.ResolutionNotes); notes != nil {
			fields["resolution_notes"] = *notes
		}
	case models.StatusInProgress:
		if from == models.StatusResolved {
			fields["resolution_date"] = nil
		}
	}

	history := &models.GrievanceStatusHistory{
		OldStatus:    &from,
		NewStatus:    to,
		ChangedBy:    &caller.UserID,
		ChangeReason: utils.SanitizeOptional(in.Reason),
		ChangedAt:    now,
	}
	if err := s.grievances.ChangeStatus(ctx, id, fields, history); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Conflict("Grievance status was changed by someone else, reload and retry")
		}
		return nil, err
	}
	monitor.StatusTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()

	if g.UserID != caller.UserID {
		s.publish(ctx, events.TopicGrievanceStatusChanged, events.GrievanceStatusChanged{
			GrievanceID: g.ID,
			Title:       g.Title,
			SubmitterID: g.UserID,
			OldStatus:   from,
			NewStatus:   to,
			ChangedBy:   caller.UserID,
		})
	}

	log.Ctx(ctx).Info().
		Uint("grievance_id", id).
		Str("from", string(from)).
		Str("to", string(to)).
		Uint("changed_by", caller.UserID).
		Msg("grievance status changed")

	return s.grievances.FindGrievanceDetail(ctx, id, true)
}

func (s *GrievanceService) Delete(ctx context.Context, caller authz.Caller, id uint) error {
	if _, err := s.authorize(ctx, caller, id, authz.ActDelete); err != nil {
		return err
	}
	attachments, err := s.grievances.DeleteGrievance(ctx, id)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(attachments))
	for _, a := range attachments {
		names = append(names, a.FilePath)
	}
	s.files.Remove(names...)

	log.Ctx(ctx).Info().Uint("grievance_id", id).Uint("deleted_by", caller.UserID).Msg("grievance deleted")
	return nil
}

func (s *GrievanceService) AddComment(ctx context.Context, caller authz.Caller, id uint, in CommentInput) (*models.GrievanceComment, error) {
	in.Comment = strings.TrimSpace(in.Comment)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	g, err := s.authorize(ctx, caller, id, authz.ActComment)
	if err != nil {
		return nil, err
	}
	if in.IsInternal && !s.policy.Allowed(caller, authz.Grievance(g), authz.ActCommentInternal) {
		return nil, apperr.Forbidden("Only staff or administrators can add internal comments")
	}

	c := &models.GrievanceComment{
		GrievanceID: id,
		UserID:      caller.UserID,
		Comment:     in.Comment,
		IsInternal:  in.IsInternal,
	}
	if err := s.grievances.CreateComment(ctx, c); err != nil {
		return nil, err
	}

	if !c.IsInternal && g.UserID != caller.UserID {
		commenter := ""
		if c.User != nil {
			commenter = strings.TrimSpace(c.User.FirstName + " " + c.User.LastName)
		}
		s.publish(ctx, events.TopicGrievanceCommented, events.GrievanceCommented{
			GrievanceID:   g.ID,
			Title:         g.Title,
			SubmitterID:   g.UserID,
			CommenterID:   caller.UserID,
			CommenterName: commenter,
		})
	}
	return c, nil
}

func (s *GrievanceService) ListComments(ctx context.Context, caller authz.Caller, id uint) ([]models.GrievanceComment, error) {
	g, err := s.authorize(ctx, caller, id, authz.ActRead)
	if err != nil {
		return nil, err
	}
	includeInternal := s.policy.Allowed(caller, authz.Grievance(g), authz.ActViewInternal)
	comments, err := s.grievances.ListComments(ctx, id, includeInternal)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []models.GrievanceComment{}
	}
	return comments, nil
}

// AddAttachments stores either all of the uploads or none of them.
func (s *GrievanceService) AddAttachments(ctx context.Context, caller authz.Caller, id uint, uploads []Upload) ([]models.GrievanceAttachment, error) {
	if _, err := s.authorize(ctx, caller, id, authz.ActAttach); err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, apperr.Validation("No files uploaded",
			apperr.FieldError{Field: "attachments", Message: "At least one file is required"})
	}

	checked, err := checkUploads(uploads, s.limits)
	if err != nil {
		return nil, err
	}
	attachments, stored, err := storeUploads(s.files, checked, caller.UserID, s.now())
	if err != nil {
		return nil, err
	}
	for i := range attachments {
		attachments[i].GrievanceID = id
	}
	if err := s.grievances.AddAttachments(ctx, attachments); err != nil {
		s.files.Remove(stored...)
		return nil, err
	}
	return attachments, nil
}

// authorize loads the grievance and checks action against the caller's
// relation to it.
func (s *GrievanceService) authorize(ctx context.Context, caller authz.Caller, id uint, action string) (*models.Grievance, error) {
	g, err := s.grievances.FindGrievance(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.Allowed(caller, authz.Grievance(g), action) {
		return nil, apperr.Forbidden("Access denied")
	}
	return g, nil
}

func (s *GrievanceService) checkCategory(ctx context.Context, id uint) error {
	c, err := s.categories.FindCategory(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Validation("Validation failed",
				apperr.FieldError{Field: "category_id", Message: "Category does not exist"})
		}
		return err
	}
	if !c.IsActive {
		return apperr.Validation("Validation failed",
			apperr.FieldError{Field: "category_id", Message: "Category is not active"})
	}
	return nil
}

func (s *GrievanceService) checkAssignee(ctx context.Context, id uint) error {
	u, err := s.users.FindUserByID(ctx, id)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return err
	}
	if u == nil || !u.IsActive || !u.Role.IsStaffOrAdmin() {
		return apperr.Validation("Validation failed",
			apperr.FieldError{Field: "assigned_to", Message: "Assignee must be an active staff member or administrator"})
	}
	return nil
}

// publish sends an event without failing the request that triggered it.
func (s *GrievanceService) publish(ctx context.Context, topic string, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(persistentContext(ctx), topic, payload); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("topic", topic).Msg("failed to publish event")
	}
}

func parseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.Validation("Validation failed",
		apperr.FieldError{Field: "due_date", Message: "Due date must be a valid date (YYYY-MM-DD or RFC 3339)"})
}

func invalidPriority() *apperr.Error {
	return apperr.Validation("Validation failed", apperr.FieldError{
		Field:   "priority",
		Message: "Priority must be one of: low, medium, high, urgent",
	})
}

func titleOf(g *models.Grievance, fields map[string]interface{}) string {
	if t, ok := fields["title"].(string); ok {
		return t
	}
	return g.Title
}

// persistentContext keeps request values but outlives request cancellation.
func persistentContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
