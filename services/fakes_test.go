package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"grievance-management-api/apperr"
	"grievance-management-api/authz"
	"grievance-management-api/events"
	"grievance-management-api/models"
)

// memStore is an in-memory implementation of every repository interface.
type memStore struct {
	mu sync.Mutex

	nextID        uint
	users         map[uint]*models.User
	categories    map[uint]*models.GrievanceCategory
	grievances    map[uint]*models.Grievance
	history       []models.GrievanceStatusHistory
	attachments   []models.GrievanceAttachment
	comments      []models.GrievanceComment
	notifications []models.Notification

	failCreateGrievance error
	failNotifications   error
}

func newMemStore() *memStore {
	return &memStore{
		users:      map[uint]*models.User{},
		categories: map[uint]*models.GrievanceCategory{},
		grievances: map[uint]*models.Grievance{},
	}
}

func (m *memStore) id() uint {
	m.nextID++
	return m.nextID
}

func (m *memStore) addUser(role models.Role, active bool) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	u := &models.User{
		ID:        id,
		Username:  fmt.Sprintf("user%d", id),
		Email:     fmt.Sprintf("user%d@example.com", id),
		FirstName: "First",
		LastName:  fmt.Sprintf("Last%d", id),
		Role:      role,
		IsActive:  active,
	}
	m.users[id] = u
	return u
}

func (m *memStore) addCategory(name string, active bool) *models.GrievanceCategory {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &models.GrievanceCategory{ID: m.id(), Name: name, IsActive: active}
	m.categories[c.ID] = c
	return c
}

func (m *memStore) addGrievance(submitter uint, status models.Status, assignee *uint) *models.Grievance {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := &models.Grievance{
		ID:             m.id(),
		Title:          "Broken projector",
		Description:    "Room 101 projector does not turn on",
		UserID:         submitter,
		AssignedTo:     assignee,
		Priority:       models.PriorityMedium,
		Status:         status,
		SubmissionDate: time.Now(),
	}
	m.grievances[g.ID] = g
	m.history = append(m.history, models.GrievanceStatusHistory{ID: m.id(), GrievanceID: g.ID, NewStatus: models.StatusPending, ChangedBy: &submitter})
	return g
}

func (m *memStore) historyFor(id uint) []models.GrievanceStatusHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GrievanceStatusHistory
	for _, h := range m.history {
		if h.GrievanceID == id {
			out = append(out, h)
		}
	}
	return out
}

func summary(u *models.User) *models.UserSummary {
	if u == nil {
		return nil
	}
	return &models.UserSummary{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email, Role: u.Role}
}

// users

func (m *memStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email || u.Username == user.Username {
			return apperr.Conflict("User already exists")
		}
	}
	user.ID = m.id()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memStore) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("User not found")
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("User not found")
}

func (m *memStore) FindUserByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email || u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("User not found")
}

func (m *memStore) UpdateUser(ctx context.Context, id uint, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperr.NotFound("User not found")
	}
	for k, v := range fields {
		switch k {
		case "first_name":
			u.FirstName = v.(string)
		case "last_name":
			u.LastName = v.(string)
		case "phone":
			s := v.(string)
			u.Phone = &s
		case "department":
			s := v.(string)
			u.Department = &s
		case "role":
			u.Role = v.(models.Role)
		case "is_active":
			u.IsActive = v.(bool)
		case "password_hash":
			u.PasswordHash = v.(string)
		default:
			return fmt.Errorf("unexpected user field %q", k)
		}
	}
	return nil
}

func (m *memStore) ListUsers(ctx context.Context, q models.UserQuery) ([]models.UserListItem, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserListItem
	for _, u := range m.users {
		if q.Role != "" && u.Role != q.Role {
			continue
		}
		out = append(out, models.UserListItem{User: *u})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (m *memStore) UserStats(ctx context.Context, id uint) (models.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var st models.UserStats
	for _, g := range m.grievances {
		if g.UserID == id {
			st.GrievancesCount++
		}
		if g.AssignedTo != nil && *g.AssignedTo == id {
			st.AssignedGrievancesCount++
		}
	}
	return st, nil
}

func (m *memStore) CountActiveGrievancesBySubmitter(ctx context.Context, userID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, g := range m.grievances {
		if g.UserID == userID && g.Status.Active() {
			n++
		}
	}
	return n, nil
}

// DeleteUser mirrors the database: active grievances block the delete,
// inactive ones go with the user and audit rows lose their actor.
func (m *memStore) DeleteUser(ctx context.Context, id uint) ([]models.GrievanceAttachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return nil, apperr.NotFound("User not found")
	}
	gone := map[uint]bool{}
	for gid, g := range m.grievances {
		if g.UserID != id {
			continue
		}
		if g.Status.Active() {
			return nil, apperr.Conflict("User is still referenced by other records")
		}
		gone[gid] = true
	}
	for gid, g := range m.grievances {
		if gone[gid] {
			delete(m.grievances, gid)
		} else if g.AssignedTo != nil && *g.AssignedTo == id {
			g.AssignedTo = nil
		}
	}

	var removed, kept []models.GrievanceAttachment
	for _, a := range m.attachments {
		switch {
		case gone[a.GrievanceID]:
			removed = append(removed, a)
			continue
		case a.UploadedBy != nil && *a.UploadedBy == id:
			a.UploadedBy = nil
		}
		kept = append(kept, a)
	}
	m.attachments = kept

	history := m.history[:0]
	for _, h := range m.history {
		if gone[h.GrievanceID] {
			continue
		}
		if h.ChangedBy != nil && *h.ChangedBy == id {
			h.ChangedBy = nil
		}
		history = append(history, h)
	}
	m.history = history

	comments := m.comments[:0]
	for _, c := range m.comments {
		if !gone[c.GrievanceID] && c.UserID != id {
			comments = append(comments, c)
		}
	}
	m.comments = comments

	notifications := m.notifications[:0]
	for _, n := range m.notifications {
		if n.UserID == id {
			continue
		}
		if n.GrievanceID != nil && gone[*n.GrievanceID] {
			n.GrievanceID = nil
		}
		notifications = append(notifications, n)
	}
	m.notifications = notifications

	delete(m.users, id)
	return removed, nil
}

func (m *memStore) ListActiveUserIDsByRole(ctx context.Context, role models.Role) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uint
	for _, u := range m.users {
		if u.Role == role && u.IsActive {
			ids = append(ids, u.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// categories

func (m *memStore) ListCategories(ctx context.Context, activeOnly bool) ([]models.GrievanceCategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GrievanceCategory
	for _, c := range m.categories {
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) FindCategory(ctx context.Context, id uint) (*models.GrievanceCategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, apperr.NotFound("Category not found")
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) CreateCategory(ctx context.Context, c *models.GrievanceCategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.categories {
		if existing.Name == c.Name {
			return apperr.Conflict("Category already exists")
		}
	}
	c.ID = m.id()
	cp := *c
	m.categories[c.ID] = &cp
	return nil
}

func (m *memStore) UpdateCategory(ctx context.Context, id uint, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return apperr.NotFound("Category not found")
	}
	for k, v := range fields {
		switch k {
		case "name":
			c.Name = v.(string)
		case "description":
			s := v.(string)
			c.Description = &s
		case "is_active":
			c.IsActive = v.(bool)
		}
	}
	return nil
}

// grievances

func (m *memStore) CreateGrievance(ctx context.Context, g *models.Grievance, history *models.GrievanceStatusHistory, attachments []models.GrievanceAttachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateGrievance != nil {
		return m.failCreateGrievance
	}
	g.ID = m.id()
	cp := *g
	m.grievances[g.ID] = &cp
	history.ID = m.id()
	history.GrievanceID = g.ID
	m.history = append(m.history, *history)
	for _, a := range attachments {
		a.ID = m.id()
		a.GrievanceID = g.ID
		m.attachments = append(m.attachments, a)
	}
	return nil
}

func (m *memStore) FindGrievance(ctx context.Context, id uint) (*models.Grievance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grievances[id]
	if !ok {
		return nil, apperr.NotFound("Grievance not found")
	}
	cp := *g
	return &cp, nil
}

func (m *memStore) FindGrievanceDetail(ctx context.Context, id uint, includeInternal bool) (*models.Grievance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grievances[id]
	if !ok {
		return nil, apperr.NotFound("Grievance not found")
	}
	cp := *g
	cp.User = summary(m.users[g.UserID])
	if g.CategoryID != nil {
		cp.Category = m.categories[*g.CategoryID]
	}
	if g.AssignedTo != nil {
		cp.AssignedUser = summary(m.users[*g.AssignedTo])
	}
	for _, a := range m.attachments {
		if a.GrievanceID == id {
			cp.Attachments = append(cp.Attachments, a)
		}
	}
	for _, c := range m.comments {
		if c.GrievanceID == id && (includeInternal || !c.IsInternal) {
			cp.Comments = append(cp.Comments, c)
		}
	}
	for _, h := range m.history {
		if h.GrievanceID == id {
			cp.StatusHistory = append(cp.StatusHistory, h)
		}
	}
	cp.CommentsCount = int64(len(cp.Comments))
	return &cp, nil
}

func (m *memStore) ListGrievances(ctx context.Context, q models.GrievanceQuery) ([]models.Grievance, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Grievance
	for _, g := range m.grievances {
		if q.SubmitterID != nil && g.UserID != *q.SubmitterID {
			continue
		}
		if q.Status != "" && g.Status != q.Status {
			continue
		}
		if q.Priority != "" && g.Priority != q.Priority {
			continue
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, int64(len(out)), nil
}

func (m *memStore) UpdateGrievance(ctx context.Context, id uint, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grievances[id]
	if !ok {
		return apperr.NotFound("Grievance not found")
	}
	for k, v := range fields {
		switch k {
		case "title":
			g.Title = v.(string)
		case "description":
			g.Description = v.(string)
		case "category_id":
			g.CategoryID = v.(*uint)
		case "due_date":
			g.DueDate = v.(*time.Time)
		case "priority":
			g.Priority = v.(models.Priority)
		case "assigned_to":
			g.AssignedTo = v.(*uint)
		default:
			return fmt.Errorf("unexpected grievance field %q", k)
		}
	}
	return nil
}

func (m *memStore) ChangeStatus(ctx context.Context, id uint, fields map[string]interface{}, history *models.GrievanceStatusHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grievances[id]
	if !ok || (history.OldStatus != nil && g.Status != *history.OldStatus) {
		return apperr.NotFound("Grievance not found")
	}
	for k, v := range fields {
		switch k {
		case "status":
			g.Status = v.(models.Status)
		case "resolution_date":
			if v == nil {
				g.ResolutionDate = nil
			} else {
				t := v.(time.Time)
				g.ResolutionDate = &t
			}
		case "resolution_notes":
			s := v.(string)
			g.ResolutionNotes = &s
		default:
			return fmt.Errorf("unexpected status field %q", k)
		}
	}
	history.ID = m.id()
	history.GrievanceID = id
	m.history = append(m.history, *history)
	return nil
}

func (m *memStore) DeleteGrievance(ctx context.Context, id uint) ([]models.GrievanceAttachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.grievances[id]; !ok {
		return nil, apperr.NotFound("Grievance not found")
	}
	delete(m.grievances, id)
	var removed, kept []models.GrievanceAttachment
	for _, a := range m.attachments {
		if a.GrievanceID == id {
			removed = append(removed, a)
		} else {
			kept = append(kept, a)
		}
	}
	m.attachments = kept
	return removed, nil
}

func (m *memStore) AddAttachments(ctx context.Context, attachments []models.GrievanceAttachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range attachments {
		a.ID = m.id()
		m.attachments = append(m.attachments, a)
	}
	return nil
}

func (m *memStore) CreateComment(ctx context.Context, c *models.GrievanceComment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.id()
	c.User = summary(m.users[c.UserID])
	m.comments = append(m.comments, *c)
	return nil
}

func (m *memStore) ListComments(ctx context.Context, grievanceID uint, includeInternal bool) ([]models.GrievanceComment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GrievanceComment
	for _, c := range m.comments {
		if c.GrievanceID == grievanceID && (includeInternal || !c.IsInternal) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) RecentGrievances(ctx context.Context, q models.RecentQuery) ([]models.Grievance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Grievance
	for _, g := range m.grievances {
		if q.SubmitterID != nil && g.UserID != *q.SubmitterID {
			continue
		}
		if q.AssigneeOrUnassigned != nil && g.AssignedTo != nil && *g.AssignedTo != *q.AssigneeOrUnassigned {
			continue
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// notifications

func (m *memStore) CreateNotifications(ctx context.Context, notifications []models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNotifications != nil {
		return m.failNotifications
	}
	for _, n := range notifications {
		n.ID = m.id()
		m.notifications = append(m.notifications, n)
	}
	return nil
}

func (m *memStore) ListNotifications(ctx context.Context, userID uint, unreadOnly bool, page, limit int) ([]models.Notification, int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	var unread int64
	for _, n := range m.notifications {
		if n.UserID != userID {
			continue
		}
		if !n.IsRead {
			unread++
		}
		if unreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
	}
	return out, int64(len(out)), unread, nil
}

func (m *memStore) MarkNotificationRead(ctx context.Context, userID, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		if m.notifications[i].ID == id && m.notifications[i].UserID == userID {
			m.notifications[i].IsRead = true
			return nil
		}
	}
	return apperr.NotFound("Notification not found")
}

func (m *memStore) MarkAllNotificationsRead(ctx context.Context, userID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.notifications {
		if m.notifications[i].UserID == userID && !m.notifications[i].IsRead {
			m.notifications[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *memStore) notificationsFor(userID uint) []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// memFiles records saved and removed attachment files.
type memFiles struct {
	mu      sync.Mutex
	n       int
	saved   map[string][]byte
	removed []string
	failOn  int
}

func newMemFiles() *memFiles {
	return &memFiles{saved: map[string][]byte{}}
}

func (f *memFiles) Save(originalName string, r io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	if f.failOn == f.n {
		return "", fmt.Errorf("disk full")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("file-%d%s", f.n, filepath.Ext(originalName))
	f.saved[name] = data
	return name, nil
}

func (f *memFiles) Remove(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		delete(f.saved, n)
		f.removed = append(f.removed, n)
	}
}

func (f *memFiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type publishedEvent struct {
	topic   string
	payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{topic: topic, payload: payload})
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

type recordingSubscriber struct {
	handlers map[string]events.Handler
}

func (s *recordingSubscriber) Subscribe(name, topic string, h events.Handler) {
	if s.handlers == nil {
		s.handlers = map[string]events.Handler{}
	}
	s.handlers[topic] = h
}

type fakeMailer struct {
	enabled bool
	err     error
	sent    [][]string
}

func (m *fakeMailer) Enabled() bool { return m.enabled }

func (m *fakeMailer) SendMail(to []string, subject, html string) error {
	m.sent = append(m.sent, to)
	return m.err
}

func memUpload(name string, data []byte) Upload {
	return Upload{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")
)

func callerFor(u *models.User) authz.Caller {
	return authz.Caller{UserID: u.ID, Email: u.Email, Role: u.Role}
}

var testPolicy = authz.MustNewPolicy()
