package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"grievance-management-api/models"
)

// newSQLiteStore opens an in-memory database that enforces the same foreign
// keys the migrations declare for MySQL and PostgreSQL.
func newSQLiteStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?_pragma=foreign_keys(1)"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return New(db), db
}

func createTestUser(t *testing.T, store *Store, name string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		Username:     name,
		Email:        fmt.Sprintf("%s@campus.test", name),
		PasswordHash: "$2a$10$hash",
		FirstName:    "Test",
		LastName:     name,
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u
}

func submitTestGrievance(t *testing.T, store *Store, owner *models.User, attachment string) *models.Grievance {
	t.Helper()
	now := time.Now().UTC()
	g := &models.Grievance{
		Title:          "Hostel water supply",
		Description:    "No water on the second floor since Monday.",
		UserID:         owner.ID,
		Priority:       models.PriorityHigh,
		Status:         models.StatusPending,
		SubmissionDate: now,
	}
	reason := models.InitialSubmissionReason
	history := &models.GrievanceStatusHistory{
		NewStatus:    models.StatusPending,
		ChangedBy:    &owner.ID,
		ChangeReason: &reason,
		ChangedAt:    now,
	}
	var attachments []models.GrievanceAttachment
	if attachment != "" {
		attachments = append(attachments, models.GrievanceAttachment{
			FileName:   "photo.png",
			FilePath:   attachment,
			FileSize:   1024,
			FileType:   "image/png",
			UploadedBy: &owner.ID,
			UploadedAt: now,
		})
	}
	require.NoError(t, store.CreateGrievance(context.Background(), g, history, attachments))
	return g
}

func moveTestGrievance(t *testing.T, store *Store, g *models.Grievance, by *models.User, to models.Status) {
	t.Helper()
	from := g.Status
	history := &models.GrievanceStatusHistory{
		OldStatus: &from,
		NewStatus: to,
		ChangedBy: &by.ID,
		ChangedAt: time.Now().UTC(),
	}
	require.NoError(t, store.ChangeStatus(context.Background(), g.ID, map[string]interface{}{"status": to}, history))
	g.Status = to
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func TestDeleteUserAfterGrievanceClosed(t *testing.T) {
	store, db := newSQLiteStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store, "owner", models.RoleUser)
	staff := createTestUser(t, store, "staff", models.RoleStaff)

	g := submitTestGrievance(t, store, owner, "3f2a.png")
	moveTestGrievance(t, store, g, staff, models.StatusInProgress)
	require.NoError(t, store.CreateComment(ctx, &models.GrievanceComment{GrievanceID: g.ID, UserID: staff.ID, Comment: "Plumber booked"}))
	require.NoError(t, store.CreateNotifications(ctx, []models.Notification{
		{UserID: owner.ID, Title: "Status changed", Message: "In progress", Type: models.NotificationInfo, GrievanceID: &g.ID},
		{UserID: staff.ID, Title: "New grievance", Message: "Hostel water supply", Type: models.NotificationInfo, GrievanceID: &g.ID},
	}))

	_, err := store.DeleteUser(ctx, owner.ID)
	require.Error(t, err)
	assert.Equal(t, int64(1), countRows(t, db, &models.User{}, "id = ?", owner.ID))
	assert.Equal(t, int64(1), countRows(t, db, &models.Grievance{}, "user_id = ?", owner.ID))

	moveTestGrievance(t, store, g, staff, models.StatusClosed)

	attachments, err := store.DeleteUser(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, "3f2a.png", attachments[0].FilePath)

	assert.Zero(t, countRows(t, db, &models.User{}, "id = ?", owner.ID))
	assert.Zero(t, countRows(t, db, &models.Grievance{}, "user_id = ?", owner.ID))
	assert.Zero(t, countRows(t, db, &models.GrievanceStatusHistory{}, "grievance_id = ?", g.ID))
	assert.Zero(t, countRows(t, db, &models.GrievanceAttachment{}, "grievance_id = ?", g.ID))
	assert.Zero(t, countRows(t, db, &models.GrievanceComment{}, "grievance_id = ?", g.ID))
	assert.Zero(t, countRows(t, db, &models.Notification{}, "user_id = ?", owner.ID))

	var kept models.Notification
	require.NoError(t, db.Where("user_id = ?", staff.ID).First(&kept).Error)
	assert.Nil(t, kept.GrievanceID)
}

func TestDeleteUserKeepsOtherGrievancesHistory(t *testing.T) {
	store, db := newSQLiteStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store, "owner", models.RoleUser)
	staff := createTestUser(t, store, "staff", models.RoleStaff)

	g := submitTestGrievance(t, store, owner, "")
	require.NoError(t, store.UpdateGrievance(ctx, g.ID, map[string]interface{}{"assigned_to": staff.ID}))
	moveTestGrievance(t, store, g, staff, models.StatusInProgress)
	require.NoError(t, db.Create(&models.GrievanceAttachment{
		GrievanceID: g.ID,
		FileName:    "report.pdf",
		FilePath:    "9c1d.pdf",
		FileSize:    2048,
		FileType:    "application/pdf",
		UploadedBy:  &staff.ID,
		UploadedAt:  time.Now().UTC(),
	}).Error)

	attachments, err := store.DeleteUser(ctx, staff.ID)
	require.NoError(t, err)
	assert.Empty(t, attachments)

	got, err := store.FindGrievance(ctx, g.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AssignedTo)
	assert.Equal(t, models.StatusInProgress, got.Status)

	var history []models.GrievanceStatusHistory
	require.NoError(t, db.Where("grievance_id = ?", g.ID).Order("id ASC").Find(&history).Error)
	require.Len(t, history, 2)
	require.NotNil(t, history[0].ChangedBy)
	assert.Equal(t, owner.ID, *history[0].ChangedBy)
	assert.Nil(t, history[1].ChangedBy)

	var attachment models.GrievanceAttachment
	require.NoError(t, db.Where("file_path = ?", "9c1d.pdf").First(&attachment).Error)
	assert.Nil(t, attachment.UploadedBy)
}
