package services

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"grievance-management-api/apperr"
	"grievance-management-api/authz"
	"grievance-management-api/models"
)

var monthNames = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// DashboardService computes read-only aggregates. It never writes.
type DashboardService struct {
	dashboard  DashboardRepository
	categories *CategoryCache
	grievances GrievanceRepository
	policy     *authz.Policy
	loc        *time.Location
	now        func() time.Time
}

func NewDashboardService(dashboard DashboardRepository, categories *CategoryCache, grievances GrievanceRepository, policy *authz.Policy, loc *time.Location) *DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardService{
		dashboard:  dashboard,
		categories: categories,
		grievances: grievances,
		policy:     policy,
		loc:        loc,
		now:        time.Now,
	}
}

type TotalStats struct {
	TotalGrievances        int64 `json:"total_grievances"`
	PendingGrievances      int64 `json:"pending_grievances"`
	InProgressGrievances   int64 `json:"in_progress_grievances"`
	ResolvedGrievances     int64 `json:"resolved_grievances"`
	ClosedGrievances       int64 `json:"closed_grievances"`
	UrgentGrievances       int64 `json:"urgent_grievances"`
	HighPriorityGrievances int64 `json:"high_priority_grievances"`
	ActiveUsers            int64 `json:"active_users"`
	TodayGrievances        int64 `json:"today_grievances"`
	ThisWeekGrievances     int64 `json:"this_week_grievances"`
	ThisMonthGrievances    int64 `json:"this_month_grievances"`
}

type PriorityCount struct {
	Priority string `json:"priority"`
	Count    int64  `json:"count"`
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type CategoryBreakdown struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

type DashboardStats struct {
	TotalStats        TotalStats          `json:"total_stats"`
	PriorityBreakdown []PriorityCount     `json:"priority_breakdown"`
	StatusBreakdown   []StatusCount       `json:"status_breakdown"`
	CategoryBreakdown []CategoryBreakdown `json:"category_breakdown"`
}

type MonthBucket struct {
	Month      string `json:"month"`
	Total      int64  `json:"total"`
	Resolved   int64  `json:"resolved"`
	Pending    int64  `json:"pending"`
	InProgress int64  `json:"in_progress"`
}

type MonthlyStats struct {
	Year int           `json:"year"`
	Data []MonthBucket `json:"data"`
}

type PerformanceStats struct {
	AverageResolutionTime int                      `json:"average_resolution_time"`
	ActiveDepartments     []models.DepartmentCount `json:"active_departments"`
}

// Stats returns global numbers to staff and admins and submitter-scoped
// numbers to everyone else. Active users are always counted globally.
func (s *DashboardService) Stats(ctx context.Context, caller authz.Caller) (*DashboardStats, error) {
	if !s.policy.Allowed(caller, authz.Kind(authz.ObjDashboard), authz.ActStats) {
		return nil, apperr.Forbidden("Access denied")
	}
	var scope models.DashboardScope
	if !caller.Role.IsStaffOrAdmin() {
		id := caller.UserID
		scope.SubmitterID = &id
	}

	byStatus, err := s.dashboard.CountGrievancesBy(ctx, scope, "status")
	if err != nil {
		return nil, err
	}
	byPriority, err := s.dashboard.CountGrievancesBy(ctx, scope, "priority")
	if err != nil {
		return nil, err
	}
	byCategory, err := s.dashboard.CountGrievancesByCategory(ctx, scope)
	if err != nil {
		return nil, err
	}
	categories, err := s.categories.All(ctx)
	if err != nil {
		return nil, err
	}
	activeUsers, err := s.dashboard.CountActiveUsers(ctx)
	if err != nil {
		return nil, err
	}

	today, week, month := WindowStarts(s.now(), s.loc)
	todayCount, err := s.dashboard.CountGrievancesSince(ctx, scope, today)
	if err != nil {
		return nil, err
	}
	weekCount, err := s.dashboard.CountGrievancesSince(ctx, scope, week)
	if err != nil {
		return nil, err
	}
	monthCount, err := s.dashboard.CountGrievancesSince(ctx, scope, month)
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{
		PriorityBreakdown: make([]PriorityCount, 0, len(byPriority)),
		StatusBreakdown:   make([]StatusCount, 0, len(byStatus)),
		CategoryBreakdown: CategoryNames(byCategory, categories),
	}
	totals := &stats.TotalStats
	for _, row := range byStatus {
		totals.TotalGrievances += row.Count
		switch models.Status(row.Key) {
		case models.StatusPending:
			totals.PendingGrievances += row.Count
		case models.StatusInProgress:
			totals.InProgressGrievances += row.Count
		case models.StatusResolved:
			totals.ResolvedGrievances += row.Count
		case models.StatusClosed:
			totals.ResolvedGrievances += row.Count
			totals.ClosedGrievances += row.Count
		}
		stats.StatusBreakdown = append(stats.StatusBreakdown, StatusCount{Status: strings.ToLower(row.Key), Count: row.Count})
	}
	for _, row := range byPriority {
		switch models.Priority(row.Key) {
		case models.PriorityUrgent:
			totals.UrgentGrievances += row.Count
		case models.PriorityHigh:
			totals.HighPriorityGrievances += row.Count
		}
		stats.PriorityBreakdown = append(stats.PriorityBreakdown, PriorityCount{Priority: strings.ToLower(row.Key), Count: row.Count})
	}
	totals.ActiveUsers = activeUsers
	totals.TodayGrievances = todayCount
	totals.ThisWeekGrievances = weekCount
	totals.ThisMonthGrievances = monthCount
	return stats, nil
}

// MonthlyStats buckets a year's submissions by month. An empty or invalid
// year means the current year.
func (s *DashboardService) MonthlyStats(ctx context.Context, caller authz.Caller, rawYear string) (*MonthlyStats, error) {
	if !s.policy.Allowed(caller, authz.Kind(authz.ObjDashboard), authz.ActMonthly) {
		return nil, apperr.Forbidden("Access denied")
	}
	year := s.now().In(s.loc).Year()
	if y, err := strconv.Atoi(strings.TrimSpace(rawYear)); err == nil && y >= 1970 && y <= 9999 {
		year = y
	}

	from := time.Date(year, time.January, 1, 0, 0, 0, 0, s.loc)
	to := from.AddDate(1, 0, 0)
	points, err := s.dashboard.SubmissionsBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return &MonthlyStats{Year: year, Data: MonthlyBuckets(points, s.loc)}, nil
}

func (s *DashboardService) Performance(ctx context.Context, caller authz.Caller) (*PerformanceStats, error) {
	if !s.policy.Allowed(caller, authz.Kind(authz.ObjDashboard), authz.ActPerformance) {
		return nil, apperr.Forbidden("Access denied")
	}
	spans, err := s.dashboard.ResolutionSpans(ctx)
	if err != nil {
		return nil, err
	}
	departments, err := s.dashboard.TopDepartments(ctx, 5)
	if err != nil {
		return nil, err
	}
	if departments == nil {
		departments = []models.DepartmentCount{}
	}
	return &PerformanceStats{
		AverageResolutionTime: AverageResolutionDays(spans),
		ActiveDepartments:     departments,
	}, nil
}

// RecentGrievances scopes by role: admins see everything, staff see their
// queue and unassigned work, users see their own submissions.
func (s *DashboardService) RecentGrievances(ctx context.Context, caller authz.Caller, limit int) ([]models.Grievance, error) {
	if !s.policy.Allowed(caller, authz.Kind(authz.ObjDashboard), authz.ActRecent) {
		return nil, apperr.Forbidden("Access denied")
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	q := models.RecentQuery{Limit: limit}
	id := caller.UserID
	switch caller.Role {
	case models.RoleAdmin:
	case models.RoleStaff:
		q.AssigneeOrUnassigned = &id
	default:
		q.SubmitterID = &id
	}
	items, err := s.grievances.RecentGrievances(ctx, q)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Grievance{}
	}
	return items, nil
}

// WindowStarts returns the start of today, of the Sunday-aligned week and of
// the calendar month containing now, in loc.
func WindowStarts(now time.Time, loc *time.Location) (today, week, month time.Time) {
	local := now.In(loc)
	today = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	week = today.AddDate(0, 0, -int(today.Weekday()))
	month = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return today, week, month
}

// MonthlyBuckets always returns twelve zero-filled buckets, January first.
// Resolved counts resolved and closed grievances.
func MonthlyBuckets(points []models.SubmissionPoint, loc *time.Location) []MonthBucket {
	buckets := make([]MonthBucket, 12)
	for i := range buckets {
		buckets[i].Month = monthNames[i]
	}
	for _, p := range points {
		b := &buckets[p.SubmissionDate.In(loc).Month()-1]
		b.Total++
		switch p.Status {
		case models.StatusResolved, models.StatusClosed:
			b.Resolved++
		case models.StatusPending:
			b.Pending++
		case models.StatusInProgress:
			b.InProgress++
		}
	}
	return buckets
}

// AverageResolutionDays is the rounded mean of resolution minus submission,
// in days. No spans means zero.
func AverageResolutionDays(spans []models.ResolutionSpan) int {
	if len(spans) == 0 {
		return 0
	}
	var hours float64
	for _, s := range spans {
		hours += s.ResolutionDate.Sub(s.SubmissionDate).Hours()
	}
	avg := hours / 24 / float64(len(spans))
	return int(math.Round(avg))
}

// CategoryNames labels category counts, skipping uncategorised grievances
// and naming ids without a category row "Unknown".
func CategoryNames(counts []models.CategoryCount, categories []models.GrievanceCategory) []CategoryBreakdown {
	names := make(map[uint]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	out := make([]CategoryBreakdown, 0, len(counts))
	for _, row := range counts {
		if row.CategoryID == nil {
			continue
		}
		name, ok := names[*row.CategoryID]
		if !ok {
			name = "Unknown"
		}
		out = append(out, CategoryBreakdown{Category: name, Count: row.Count})
	}
	return out
}
