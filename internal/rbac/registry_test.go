package rbac_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
	"github.com/odyssey-erp/odyssey-rbac/internal/testing/memstore"
)

type countingInvalidator struct {
	calls int
	err   error
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return c.err
}

func seedUser(t *testing.T, store *memstore.Store, username string) auth.User {
	t.Helper()
	user, err := store.Users().Insert(context.Background(), auth.NewUser{Username: username, PasswordHash: "x", FullName: username})
	require.NoError(t, err)
	return user
}

func TestGetOrCreatePermissionReturnsSameIdentity(t *testing.T) {
	ctx := context.Background()
	registry := rbac.NewRegistry(memstore.New().RBAC(), nil)

	first, err := registry.GetOrCreatePermission(ctx, "REPORT_EXPORT")
	require.NoError(t, err)
	second, err := registry.GetOrCreatePermission(ctx, "REPORT_EXPORT")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	ok, err := registry.PermissionExists(ctx, "REPORT_EXPORT")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = registry.PermissionExists(ctx, "report_export")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetOrCreatePermissionConcurrentCallersConverge(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	registry := rbac.NewRegistry(store.RBAC(), nil)

	const workers = 16
	ids := make([]int64, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			perm, err := registry.GetOrCreatePermission(ctx, "DATA_EXPORT")
			if err != nil {
				return err
			}
			ids[i] = perm.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	perms, err := registry.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, perms, 1)
}

func TestGetOrCreatePermissionRejectsBlankName(t *testing.T) {
	_, err := rbac.NewRegistry(memstore.New().RBAC(), nil).GetOrCreatePermission(context.Background(), "   ")
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestEnsureRoleCreatesAndLinks(t *testing.T) {
	ctx := context.Background()
	registry := rbac.NewRegistry(memstore.New().RBAC(), nil)

	role, err := registry.EnsureRole(ctx, "Editor", []string{"DATA_EDIT", "DASHBOARD_VIEW", "DATA_EDIT", " "})
	require.NoError(t, err)
	assert.Equal(t, "Editor", role.Name)

	perms, err := registry.RolePermissions(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"DASHBOARD_VIEW", "DATA_EDIT"}, permissionNames(perms))
}

func TestEnsureRoleLeavesExistingRoleUnchanged(t *testing.T) {
	ctx := context.Background()
	registry := rbac.NewRegistry(memstore.New().RBAC(), nil)

	original, err := registry.EnsureRole(ctx, "Viewer", []string{"DASHBOARD_VIEW"})
	require.NoError(t, err)

	again, err := registry.EnsureRole(ctx, "Viewer", []string{"DASHBOARD_VIEW", "USER_DELETE"})
	require.NoError(t, err)
	assert.Equal(t, original.ID, again.ID)

	perms, err := registry.RolePermissions(ctx, again.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"DASHBOARD_VIEW"}, permissionNames(perms))

	ok, err := registry.PermissionExists(ctx, "USER_DELETE")
	require.NoError(t, err)
	assert.False(t, ok, "permissions of an ignored role request must not be created")
}

func TestEnsureRoleConcurrentCallersConverge(t *testing.T) {
	ctx := context.Background()
	registry := rbac.NewRegistry(memstore.New().RBAC(), nil)

	const workers = 8
	ids := make([]int64, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			role, err := registry.EnsureRole(ctx, "Admin", shared.CoreScopes())
			if err != nil {
				return err
			}
			ids[i] = role.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	perms, err := registry.RolePermissions(ctx, ids[0])
	require.NoError(t, err)
	assert.Len(t, perms, len(shared.CoreScopes()))
}

func TestAssignRoleToUser(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	inv := &countingInvalidator{}
	registry := rbac.NewRegistry(store.RBAC(), inv)
	user := seedUser(t, store, "alice")
	role, err := registry.EnsureRole(ctx, "Viewer", []string{shared.PermDashboardView})
	require.NoError(t, err)

	require.NoError(t, registry.AssignRoleToUser(ctx, user.ID, role.ID))
	assert.Equal(t, 1, inv.calls)

	err = registry.AssignRoleToUser(ctx, user.ID, role.ID)
	require.ErrorIs(t, err, shared.ErrAssignmentConflict)
	assert.Equal(t, 1, inv.calls)

	err = registry.AssignRoleToUser(ctx, 999, role.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	err = registry.AssignRoleToUser(ctx, user.ID, 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAssignRoleToUserSurfacesInvalidationFailure(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	inv := &countingInvalidator{err: assert.AnError}
	registry := rbac.NewRegistry(store.RBAC(), inv)
	user := seedUser(t, store, "bob")
	role, err := registry.EnsureRole(ctx, "Viewer", nil)
	require.NoError(t, err)

	err = registry.AssignRoleToUser(ctx, user.ID, role.ID)
	require.ErrorIs(t, err, assert.AnError)
}

func TestRoleExists(t *testing.T) {
	ctx := context.Background()
	registry := rbac.NewRegistry(memstore.New().RBAC(), nil)
	ok, err := registry.RoleExists(ctx, "Admin")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = registry.EnsureRole(ctx, "Admin", nil)
	require.NoError(t, err)
	ok, err = registry.RoleExists(ctx, " Admin ")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = registry.FindRole(ctx, "Auditor")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func permissionNames(perms []rbac.Permission) []string {
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.Name
	}
	return names
}
