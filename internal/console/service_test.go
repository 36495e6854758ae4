package console_test

import (
	"context"
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-rbac/internal/audit"
	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	"github.com/odyssey-erp/odyssey-rbac/internal/bootstrap"
	"github.com/odyssey-erp/odyssey-rbac/internal/console"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
	"github.com/odyssey-erp/odyssey-rbac/internal/testing/memstore"
)

type fixture struct {
	store    *memstore.Store
	svc      *console.Service
	creds    *auth.Service
	registry *rbac.Registry
	logins   map[string]int
}

type loginCounter map[string]int

func (c loginCounter) ObserveLogin(outcome string) { c[outcome]++ }

func newFixture(t *testing.T, cache *rbac.PermissionCache) fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	chain, err := audit.NewChain([]byte("console-test"))
	require.NoError(t, err)

	var invalidator rbac.Invalidator
	if cache != nil {
		invalidator = cache
	}
	creds := auth.NewService(store.Users(), hasher)
	registry := rbac.NewRegistry(store.RBAC(), invalidator)
	engine := rbac.NewEngine(rbac.EngineConfig{Source: store.RBAC(), Cache: cache})
	logins := loginCounter{}

	_, err = bootstrap.NewSequencer(bootstrap.Config{
		Roles:       registry,
		Credentials: creds,
		Policy:      bootstrap.DefaultPolicy(),
		Admin:       bootstrap.AdminAccount{Username: "admin", Password: "admin123", FullName: "System Administrator"},
	}).Run(ctx)
	require.NoError(t, err)

	svc := console.NewService(console.Config{
		Credentials: creds,
		Registry:    registry,
		Engine:      engine,
		Trail:       audit.NewTrail(store.Audit(), chain, nil),
		Users:       store.Users(),
		Roles:       store.RBAC(),
		Tx:          store,
		Hasher:      hasher,
		Chain:       chain,
		Invalidator: invalidator,
		Observer:    logins,
	})
	return fixture{store: store, svc: svc, creds: creds, registry: registry, logins: logins}
}

func (f fixture) login(t *testing.T, username, password string) *shared.Session {
	t.Helper()
	sess, err := f.svc.Login(context.Background(), username, password)
	require.NoError(t, err)
	return sess
}

func (f fixture) createUser(t *testing.T, username, role string) {
	t.Helper()
	admin := f.login(t, "admin", "admin123")
	_, err := f.svc.CreateUser(context.Background(), admin, console.NewAccount{
		Username: username, Password: "password-1", FullName: username, Role: role,
	})
	require.NoError(t, err)
}

func TestLoginFailureForUnknownUserIsAuditedOnce(t *testing.T) {
	f := newFixture(t, nil)
	before := len(f.store.AuditEntries())

	sess, err := f.svc.Login(context.Background(), "ghost", "whatever")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.Nil(t, sess)

	entries := f.store.AuditEntries()[before:]
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].UserID)
	assert.Equal(t, "LOGIN_FAILURE:ghost", entries[0].Action)
	assert.Equal(t, 1, f.logins[console.LoginRejected])
}

func TestLoginFailureWithInvalidUTF8IsAudited(t *testing.T) {
	f := newFixture(t, nil)
	before := len(f.store.AuditEntries())

	_, err := f.svc.Login(context.Background(), "gh\xffost", "whatever")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	entries := f.store.AuditEntries()[before:]
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].UserID)
	assert.Equal(t, "LOGIN_FAILURE:gh\uFFFDost", entries[0].Action)
	assert.True(t, utf8.ValidString(entries[0].Action))
	assert.Equal(t, 1, f.logins[console.LoginRejected])
}

func TestLoginWrongPasswordLooksLikeUnknownUser(t *testing.T) {
	f := newFixture(t, nil)
	_, wrong := f.svc.Login(context.Background(), "admin", "not-the-password")
	_, unknown := f.svc.Login(context.Background(), "nobody", "not-the-password")
	require.ErrorIs(t, wrong, shared.ErrInvalidCredentials)
	assert.Equal(t, shared.UserSafeMessage(wrong), shared.UserSafeMessage(unknown))
}

func TestLoginSuccessAndLogoutAreAudited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sess := f.login(t, "admin", "admin123")
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "System Administrator", sess.FullName)

	require.NoError(t, f.svc.Logout(ctx, sess))

	entries := f.store.AuditEntries()
	require.GreaterOrEqual(t, len(entries), 2)
	last := entries[len(entries)-2:]
	assert.Equal(t, audit.ActionLoginSuccess, last[0].Action)
	assert.Equal(t, audit.ActionLogout, last[1].Action)
	assert.Equal(t, sess.UserID, *last[0].UserID)
	assert.Equal(t, sess.UserID, *last[1].UserID)
}

func TestLoginAbortsWhenAuditFails(t *testing.T) {
	f := newFixture(t, nil)
	f.store.FailAudit(errors.New("disk full"))

	sess, err := f.svc.Login(context.Background(), "admin", "admin123")
	require.ErrorIs(t, err, shared.ErrAuditWriteFailed)
	assert.Nil(t, sess)

	_, err = f.svc.Login(context.Background(), "ghost", "x")
	require.ErrorIs(t, err, shared.ErrAuditWriteFailed)
	assert.Equal(t, 1, f.logins[console.LoginErrored])
}

func TestAdminActionsFollowCatalogOrder(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.login(t, "admin", "admin123")

	actions, err := f.svc.Actions(context.Background(), sess)
	require.NoError(t, err)
	labels := make([]string, len(actions))
	for i, a := range actions {
		labels[i] = a.Label
	}
	assert.Equal(t, []string{
		"View Dashboard", "View Users", "Create User", "View Roles", "Edit Data", "View Audit Log", "Logout",
	}, labels)
}

func TestViewerIsGated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createUser(t, "vera", shared.RoleViewer)
	sess := f.login(t, "vera", "password-1")

	actions, err := f.svc.Actions(ctx, sess)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, console.KeyDashboard, actions[0].Key)
	assert.Equal(t, rbac.EndSession, actions[1])

	dash, err := f.svc.Dashboard(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, []string{shared.PermDashboardView}, dash.Permissions)

	_, err = f.svc.CreateUser(ctx, sess, console.NewAccount{Username: "eve", Password: "password-1", FullName: "Eve", Role: "Admin"})
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.ErrorIs(t, f.svc.EditData(ctx, sess), shared.ErrForbidden)
	_, err = f.svc.ListUsers(ctx, sess)
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = f.svc.ListRoles(ctx, sess)
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = f.svc.AuditLog(ctx, sess, 10)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.creds.FindByUsername(ctx, "eve")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEditorCanEditData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createUser(t, "eddie", shared.RoleEditor)
	sess := f.login(t, "eddie", "password-1")

	require.NoError(t, f.svc.EditData(ctx, sess))
	entries := f.store.AuditEntries()
	last := entries[len(entries)-1]
	assert.Equal(t, audit.ActionDataEdit, last.Action)
	assert.Equal(t, sess.UserID, *last.UserID)

	list, err := f.svc.ListUsers(ctx, sess)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCreateUserCommitsUserRoleAndAudit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	admin := f.login(t, "admin", "admin123")

	user, err := f.svc.CreateUser(ctx, admin, console.NewAccount{Username: "nina", Password: "password-1", FullName: "Nina", Role: "Editor"})
	require.NoError(t, err)

	list, err := f.svc.ListUsers(ctx, admin)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, user.ID, list[1].ID)
	assert.Equal(t, []string{"Editor"}, list[1].Roles)

	entries := f.store.AuditEntries()
	last := entries[len(entries)-1]
	assert.Equal(t, "USER_CREATE:nina", last.Action)
	assert.Equal(t, admin.UserID, *last.UserID)
}

func TestCreateUserRollsBackWhenAuditFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	admin := f.login(t, "admin", "admin123")
	f.store.FailAudit(errors.New("audit offline"))

	_, err := f.svc.CreateUser(ctx, admin, console.NewAccount{Username: "omar", Password: "password-1", FullName: "Omar", Role: "Viewer"})
	require.ErrorIs(t, err, shared.ErrAuditWriteFailed)

	_, err = f.creds.FindByUsername(ctx, "omar")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateUserRejectsUnknownRoleAndDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	admin := f.login(t, "admin", "admin123")

	_, err := f.svc.CreateUser(ctx, admin, console.NewAccount{Username: "pat", Password: "password-1", FullName: "Pat", Role: "Superuser"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = f.svc.CreateUser(ctx, admin, console.NewAccount{Username: "admin", Password: "password-1", FullName: "Again", Role: "Viewer"})
	require.ErrorIs(t, err, shared.ErrDuplicateUsername)
}

func TestCreateUserInvalidatesPermissionCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := rbac.NewPermissionCache(client, time.Minute)
	f := newFixture(t, cache)

	admin := f.login(t, "admin", "admin123")
	before, err := cache.Version(ctx)
	require.NoError(t, err)

	_, err = f.svc.CreateUser(ctx, admin, console.NewAccount{Username: "quinn", Password: "password-1", FullName: "Quinn", Role: "Editor"})
	require.NoError(t, err)

	after, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.Greater(t, after, before)

	sess := f.login(t, "quinn", "password-1")
	require.NoError(t, f.svc.EditData(ctx, sess))
}

func TestAuditLogAndRoleListingForAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	admin := f.login(t, "admin", "admin123")

	entries, err := f.svc.AuditLog(ctx, admin, 5)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, audit.ActionLoginSuccess, entries[0].Action)

	list, err := f.svc.ListRoles(ctx, admin)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Viewer", list[2].Name)
	assert.Equal(t, "DASHBOARD_VIEW", list[2].PermissionList())
}

func TestGatedOperationsRequireSession(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Actions(context.Background(), nil)
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.ErrorIs(t, f.svc.Logout(context.Background(), nil), shared.ErrForbidden)
}
