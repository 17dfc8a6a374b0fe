package service

import (
	"context"
	"testing"

	"maxxpharm/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticateRegistersClient(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	user, err := e.auth.Authenticate(ctx, 100, "Иван Петров", "ivan_petrov")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleClient, user.Role)
	assert.True(t, user.IsActive)
	assert.Equal(t, 1, e.logCount(t, ActionUserRegistered))

	again, err := e.auth.Authenticate(ctx, 100, "Иван Петрович", "ivan_petrov")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, "Иван Петрович", again.FullName)
	assert.Equal(t, 1, e.logCount(t, ActionUserLogin))

	stored, err := e.users.GetByTelegramID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "Иван Петрович", stored.FullName)
}

func TestAuthenticateConfiguredAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	admin, err := e.auth.Authenticate(ctx, adminTelegramID, "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSuperAdmin, admin.Role)
	assert.Equal(t, "User 777", admin.FullName)

	// an account demoted by hand is promoted back on the next login
	_, err = e.db.Exec(`UPDATE users SET role = 'CLIENT' WHERE telegram_id = ?`, adminTelegramID)
	require.NoError(t, err)
	admin, err = e.auth.Authenticate(ctx, adminTelegramID, "Админ", "")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSuperAdmin, admin.Role)
}

func TestAuthenticateBlockedUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	admin, err := e.auth.Authenticate(ctx, adminTelegramID, "Админ", "")
	require.NoError(t, err)
	e.client(t, 5)

	require.NoError(t, e.users.Block(ctx, admin, 5))
	_, err = e.auth.Authenticate(ctx, 5, "Клиент", "")
	assert.ErrorIs(t, err, ErrUserBlocked)

	require.NoError(t, e.users.Unblock(ctx, admin, 5))
	_, err = e.auth.Authenticate(ctx, 5, "Клиент", "")
	assert.NoError(t, err)
}

func TestPermissions(t *testing.T) {
	user := func(role domain.Role) *domain.User { return &domain.User{Role: role, IsActive: true} }

	assert.True(t, CanManageUsers(user(domain.RoleSuperAdmin)))
	assert.False(t, CanManageUsers(user(domain.RoleAdmin)))
	assert.True(t, CanManageProducts(user(domain.RoleAdmin)))
	assert.True(t, CanViewStatistics(user(domain.RoleSuperAdmin)))
	assert.False(t, CanViewStatistics(user(domain.RoleManager)))
	assert.True(t, CanManageOrders(user(domain.RoleManager)))
	assert.False(t, CanManageOrders(user(domain.RoleCourier)))
	assert.True(t, CanDeliverOrders(user(domain.RoleCourier)))
	assert.False(t, IsCourier(user(domain.RoleClient)))
	assert.False(t, IsManager(user("GUEST")), "unknown roles rank as clients")
	assert.True(t, CheckPermission(user("GUEST"), domain.RoleClient))

	blocked := &domain.User{Role: domain.RoleSuperAdmin}
	assert.False(t, IsAdmin(blocked))
	assert.ErrorIs(t, RequireRole(blocked, domain.RoleClient), ErrPermissionDenied)
	assert.ErrorIs(t, RequireRole(nil, domain.RoleClient), ErrPermissionDenied)
	assert.NoError(t, RequireRole(user(domain.RoleManager), domain.RoleCourier))
}

func TestChangeRole(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin, err := e.auth.Authenticate(ctx, adminTelegramID, "Админ", "")
	require.NoError(t, err)
	client := e.client(t, 10)

	assert.ErrorIs(t, e.users.ChangeRole(ctx, client, 10, domain.RoleAdmin), ErrPermissionDenied)
	assert.ErrorIs(t, e.users.ChangeRole(ctx, admin, 10, "BOSS"), ErrInvalidRole)
	assert.ErrorIs(t, e.users.ChangeRole(ctx, admin, adminTelegramID, domain.RoleClient), ErrPermissionDenied)
	assert.ErrorIs(t, e.users.ChangeRole(ctx, admin, 404, domain.RoleCourier), ErrUserNotFound)

	require.NoError(t, e.users.ChangeRole(ctx, admin, 10, domain.RoleCourier))
	couriers, err := e.users.GetByRole(ctx, domain.RoleCourier)
	require.NoError(t, err)
	require.Len(t, couriers, 1)
	assert.Equal(t, client.TelegramID, couriers[0].TelegramID)
	assert.Equal(t, 1, e.logCount(t, ActionUserRoleChanged))
}

func TestUpdatePhone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.client(t, 10)

	var verr ValidationError
	assert.ErrorAs(t, e.users.UpdatePhone(ctx, 10, "123"), &verr)
	assert.ErrorIs(t, e.users.UpdatePhone(ctx, 11, "+998 90 123 45 67"), ErrUserNotFound)
	require.NoError(t, e.users.UpdatePhone(ctx, 10, "+998 90 123 45 67"))

	user, err := e.users.GetByTelegramID(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "+998 90 123 45 67", user.Phone)
}
