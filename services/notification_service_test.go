package services

import (
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grievance-management-api/apperr"
	"grievance-management-api/events"
	"grievance-management-api/models"
)

func deliver(t *testing.T, sub *recordingSubscriber, topic string, payload interface{}) error {
	t.Helper()
	h, ok := sub.handlers[topic]
	require.True(t, ok, "no handler for %s", topic)
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return h(context.Background(), data)
}

func TestSubmittedNotifiesActiveAdmins(t *testing.T) {
	store := newMemStore()
	admin1 := store.addUser(models.RoleAdmin, true)
	admin2 := store.addUser(models.RoleAdmin, true)
	inactive := store.addUser(models.RoleAdmin, false)
	staff := store.addUser(models.RoleStaff, true)
	user := store.addUser(models.RoleUser, true)

	svc := NewNotificationService(store, store, nil)
	sub := &recordingSubscriber{}
	svc.Register(sub)
	assert.Len(t, sub.handlers, 4)

	err := deliver(t, sub, events.TopicGrievanceSubmitted, events.GrievanceSubmitted{
		GrievanceID: 12, Title: "Lab AC broken", SubmitterID: user.ID, SubmitterName: "Asha Rao",
	})
	require.NoError(t, err)

	for _, admin := range []*models.User{admin1, admin2} {
		got := store.notificationsFor(admin.ID)
		require.Len(t, got, 1)
		assert.Equal(t, "New Grievance Submitted", got[0].Title)
		assert.Equal(t, `A new grievance "Lab AC broken" has been submitted by Asha Rao`, got[0].Message)
		assert.Equal(t, models.NotificationInfo, got[0].Type)
		require.NotNil(t, got[0].GrievanceID)
		assert.Equal(t, uint(12), *got[0].GrievanceID)
	}
	assert.Empty(t, store.notificationsFor(inactive.ID))
	assert.Empty(t, store.notificationsFor(staff.ID))
}

func TestStatusChangeNotifiesSubmitter(t *testing.T) {
	store := newMemStore()
	user := store.addUser(models.RoleUser, true)
	svc := NewNotificationService(store, store, nil)
	sub := &recordingSubscriber{}
	svc.Register(sub)

	require.NoError(t, deliver(t, sub, events.TopicGrievanceStatusChanged, events.GrievanceStatusChanged{
		GrievanceID: 3, Title: "Wifi", SubmitterID: user.ID,
		OldStatus: models.StatusInProgress, NewStatus: models.StatusResolved,
	}))
	require.NoError(t, deliver(t, sub, events.TopicGrievanceStatusChanged, events.GrievanceStatusChanged{
		GrievanceID: 3, Title: "Wifi", SubmitterID: user.ID,
		OldStatus: models.StatusPending, NewStatus: models.StatusRejected,
	}))

	got := store.notificationsFor(user.ID)
	require.Len(t, got, 2)
	assert.Equal(t, models.NotificationSuccess, got[0].Type)
	assert.Equal(t, `Your grievance "Wifi" has been moved from in progress to resolved`, got[0].Message)
	assert.Equal(t, models.NotificationWarning, got[1].Type)
}

func TestAssignAndCommentNotifications(t *testing.T) {
	store := newMemStore()
	staff := store.addUser(models.RoleStaff, true)
	user := store.addUser(models.RoleUser, true)
	svc := NewNotificationService(store, store, nil)
	sub := &recordingSubscriber{}
	svc.Register(sub)

	require.NoError(t, deliver(t, sub, events.TopicGrievanceAssigned, events.GrievanceAssigned{
		GrievanceID: 5, Title: "Leaky roof", AssigneeID: staff.ID,
	}))
	require.NoError(t, deliver(t, sub, events.TopicGrievanceCommented, events.GrievanceCommented{
		GrievanceID: 5, Title: "Leaky roof", SubmitterID: user.ID, CommenterName: "Ravi Staff",
	}))

	require.Len(t, store.notificationsFor(staff.ID), 1)
	comment := store.notificationsFor(user.ID)
	require.Len(t, comment, 1)
	assert.Equal(t, `Ravi Staff commented on your grievance "Leaky roof"`, comment[0].Message)
}

func TestHandlerErrorsAreReturnedForRetry(t *testing.T) {
	store := newMemStore()
	user := store.addUser(models.RoleUser, true)
	store.failNotifications = apperr.New(apperr.KindUpstreamStoreUnavailable, "Database unavailable")
	svc := NewNotificationService(store, store, nil)
	sub := &recordingSubscriber{}
	svc.Register(sub)

	err := deliver(t, sub, events.TopicGrievanceCommented, events.GrievanceCommented{GrievanceID: 1, SubmitterID: user.ID})
	assert.Equal(t, apperr.KindUpstreamStoreUnavailable, apperr.KindOf(err))

	err = sub.handlers[events.TopicGrievanceAssigned](context.Background(), []byte("{not json"))
	assert.Error(t, err)
}

func TestMailFailureDoesNotFailNotify(t *testing.T) {
	store := newMemStore()
	user := store.addUser(models.RoleUser, true)
	mailer := &fakeMailer{enabled: true, err: errors.New("relay down")}
	svc := NewNotificationService(store, store, mailer)

	err := svc.Notify(context.Background(), []uint{user.ID, 404}, "Hello", "World <b>", models.NotificationInfo, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{user.Email}}, mailer.sent)
	assert.Len(t, store.notificationsFor(user.ID), 1)
}

func TestNotificationReadState(t *testing.T) {
	store := newMemStore()
	user := store.addUser(models.RoleUser, true)
	other := store.addUser(models.RoleUser, true)
	svc := NewNotificationService(store, store, nil)
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, []uint{user.ID}, "One", "first", models.NotificationInfo, nil))
	require.NoError(t, svc.Notify(ctx, []uint{user.ID}, "Two", "second", "bogus", nil))
	require.NoError(t, svc.Notify(ctx, []uint{other.ID}, "Three", "third", models.NotificationInfo, nil))

	list, err := svc.List(ctx, callerFor(user), false, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list.Notifications, 2)
	assert.Equal(t, int64(2), list.UnreadCount)
	assert.Equal(t, models.NotificationInfo, list.Notifications[1].Type)

	otherID := store.notificationsFor(other.ID)[0].ID
	err = svc.MarkRead(ctx, callerFor(user), otherID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	require.NoError(t, svc.MarkRead(ctx, callerFor(user), list.Notifications[0].ID))
	n, err := svc.MarkAllRead(ctx, callerFor(user))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unread, err := svc.List(ctx, callerFor(user), true, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, unread.Notifications)
	assert.Zero(t, unread.UnreadCount)
}
