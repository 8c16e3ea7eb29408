package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grievance-management-api/apperr"
	"grievance-management-api/models"
)

func TestCategoryCRUD(t *testing.T) {
	store := newMemStore()
	admin := store.addUser(models.RoleAdmin, true)
	user := store.addUser(models.RoleUser, true)
	svc := NewCategoryService(store, NewCategoryCache(store), testPolicy)
	ctx := context.Background()

	name := "  Hostel  "
	created, err := svc.Create(ctx, callerFor(admin), CategoryInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Hostel", created.Name)
	assert.True(t, created.IsActive)

	_, err = svc.Create(ctx, callerFor(admin), CategoryInput{Name: &name})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = svc.Create(ctx, callerFor(admin), CategoryInput{})
	assert.True(t, apperr.Is(err, apperr.KindValidationFailed))

	_, err = svc.Create(ctx, callerFor(user), CategoryInput{Name: &name})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	desc := "Rooms and mess"
	updated, err := svc.Update(ctx, callerFor(admin), created.ID, CategoryInput{Description: &desc})
	require.NoError(t, err)
	require.NotNil(t, updated.Description)
	assert.Equal(t, desc, *updated.Description)

	_, err = svc.Update(ctx, callerFor(admin), 999, CategoryInput{Description: &desc})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, svc.Delete(ctx, callerFor(admin), created.ID))

	active, err := svc.List(ctx, callerFor(user), true)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.NotNil(t, active)

	all, err := svc.List(ctx, callerFor(user), false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)
}
