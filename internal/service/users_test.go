package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/langchou/answerdesk/internal/apperr"
	"github.com/langchou/answerdesk/internal/models"
)

func newTestUserService() (*UserService, *memUsers) {
	store := newMemUsers()
	svc := NewUserService(store, zap.NewNop())
	svc.cost = bcrypt.MinCost
	return svc, store
}

func strPtr(s string) *string { return &s }

func rolePtr(r models.Role) *models.Role { return &r }

func TestEnsureDefaults(t *testing.T) {
	svc, store := newTestUserService()
	ctx := context.Background()

	created, err := svc.EnsureDefaults(ctx, Seed{Username: "admin", Password: "admin123"}, Seed{Username: "user", Password: "user123"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureDefaults(ctx, Seed{Username: "root", Password: "pw"}, Seed{})
	require.NoError(t, err)
	assert.False(t, created)

	count, _ := store.Count(ctx)
	assert.Equal(t, 2, count)

	admin, err := store.GetByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.NotEqual(t, "admin123", admin.PasswordHash)

	user, err := svc.Login(ctx, "user", "user123")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, user.Role)
}

func TestEnsureDefaultsAdminOnly(t *testing.T) {
	svc, store := newTestUserService()
	ctx := context.Background()

	created, err := svc.EnsureDefaults(ctx, Seed{Username: "admin", Password: "admin123"}, Seed{})
	require.NoError(t, err)
	assert.True(t, created)

	count, _ := store.Count(ctx)
	assert.Equal(t, 1, count)
}

func TestLogin(t *testing.T) {
	svc, _ := newTestUserService()
	ctx := context.Background()
	_, err := svc.Add(ctx, "alice", "s3cret", models.RoleUser)
	require.NoError(t, err)

	user, err := svc.Login(ctx, " alice ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = svc.Login(ctx, "alice", "wrong")
	assert.True(t, errors.Is(err, ErrInvalidLogin))

	_, err = svc.Login(ctx, "bob", "s3cret")
	assert.True(t, errors.Is(err, ErrInvalidLogin))
}

func TestAddUser(t *testing.T) {
	svc, _ := newTestUserService()
	ctx := context.Background()

	user, err := svc.Add(ctx, "alice", "pw", models.RoleUser)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)

	_, err = svc.Add(ctx, "alice", "pw2", models.RoleAdmin)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = svc.Add(ctx, "  ", "pw", models.RoleUser)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Add(ctx, "carol", "", models.RoleUser)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Add(ctx, "dave", "pw", models.Role("root"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	users, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestListEmpty(t *testing.T) {
	svc, _ := newTestUserService()

	users, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestUpdateUser(t *testing.T) {
	svc, _ := newTestUserService()
	ctx := context.Background()

	admin, err := svc.Add(ctx, "admin", "pw", models.RoleAdmin)
	require.NoError(t, err)
	alice, err := svc.Add(ctx, "alice", "pw", models.RoleUser)
	require.NoError(t, err)

	_, err = svc.Update(ctx, alice.ID, models.UserUpdate{Username: strPtr("admin")})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	updated, err := svc.Update(ctx, alice.ID, models.UserUpdate{
		Username: strPtr("alice2"),
		Password: strPtr("new-pw"),
	})
	require.NoError(t, err)
	assert.Equal(t, "alice2", updated.Username)

	_, err = svc.Login(ctx, "alice2", "new-pw")
	require.NoError(t, err)

	// 唯一的管理员不能降级
	_, err = svc.Update(ctx, admin.ID, models.UserUpdate{Role: rolePtr(models.RoleUser)})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = svc.Update(ctx, alice.ID, models.UserUpdate{Role: rolePtr(models.RoleAdmin)})
	require.NoError(t, err)
	_, err = svc.Update(ctx, admin.ID, models.UserUpdate{Role: rolePtr(models.RoleUser)})
	require.NoError(t, err)

	_, err = svc.Update(ctx, uuid.New(), models.UserUpdate{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.Update(ctx, alice.ID, models.UserUpdate{Password: strPtr("")})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestDeleteKeepsOneAdmin(t *testing.T) {
	svc, _ := newTestUserService()
	ctx := context.Background()

	admin, err := svc.Add(ctx, "admin", "pw", models.RoleAdmin)
	require.NoError(t, err)
	user, err := svc.Add(ctx, "user", "pw", models.RoleUser)
	require.NoError(t, err)

	err = svc.Delete(ctx, admin.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	require.NoError(t, svc.Delete(ctx, user.ID))

	err = svc.Delete(ctx, user.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	second, err := svc.Add(ctx, "ops", "pw", models.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, admin.ID))

	users, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, second.ID, users[0].ID)
}
