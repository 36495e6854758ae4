package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-rbac/internal/audit"
	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	"github.com/odyssey-erp/odyssey-rbac/internal/bootstrap"
	"github.com/odyssey-erp/odyssey-rbac/internal/console"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	_ "github.com/odyssey-erp/odyssey-rbac/internal/testing/guard"
	"github.com/odyssey-erp/odyssey-rbac/internal/testing/memstore"
)

type env struct {
	store *memstore.Store
	svc   *console.Service
	trail *audit.Trail
	chain *audit.Chain
}

func newEnv(t *testing.T) env {
	t.Helper()
	store := memstore.New()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	chain, err := audit.NewChain([]byte("cli-test"))
	require.NoError(t, err)

	creds := auth.NewService(store.Users(), hasher)
	registry := rbac.NewRegistry(store.RBAC(), nil)
	trail := audit.NewTrail(store.Audit(), chain, nil)
	_, err = bootstrap.NewSequencer(bootstrap.Config{
		Roles:       registry,
		Credentials: creds,
		Policy:      bootstrap.DefaultPolicy(),
		Admin:       bootstrap.AdminAccount{Username: "admin", Password: "admin123", FullName: "System Administrator"},
	}).Run(context.Background())
	require.NoError(t, err)

	svc := console.NewService(console.Config{
		Credentials: creds,
		Registry:    registry,
		Engine:      rbac.NewEngine(rbac.EngineConfig{Source: store.RBAC()}),
		Trail:       trail,
		Users:       store.Users(),
		Roles:       store.RBAC(),
		Tx:          store,
		Hasher:      hasher,
		Chain:       chain,
	})
	return env{store: store, svc: svc, trail: trail, chain: chain}
}

func (e env) run(t *testing.T, script ...string) (string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	code := NewConsole(e.svc, logger).Run(context.Background(), ConsoleOptions{
		Stdin:  strings.NewReader(strings.Join(script, "\n") + "\n"),
		Stdout: &stdout,
		Stderr: &stderr,
	})
	require.Empty(t, stderr.String())
	return stdout.String(), code
}

func TestConsoleAdminCreatesUserAndListsIt(t *testing.T) {
	e := newEnv(t)
	out, code := e.run(t,
		"1", "admin", "admin123",
		"3", "bob", "bob-password", "Bob Builder", "Viewer",
		"2",
		"7",
		"2",
	)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Login successful! Welcome System Administrator")
	assert.Contains(t, out, "User bob created successfully!")
	assert.Contains(t, out, "Bob Builder")
	assert.Contains(t, out, "Logged out.")
	assert.Contains(t, out, "Exiting system...")

	actions := make([]string, 0)
	for _, entry := range e.store.AuditEntries() {
		actions = append(actions, entry.Action)
	}
	assert.Equal(t, []string{"LOGIN_SUCCESS", "USER_CREATE:bob", "LOGOUT"}, actions)
}

func TestConsoleAdminMenuOrder(t *testing.T) {
	e := newEnv(t)
	out, code := e.run(t, "1", "admin", "admin123", "7", "2")
	require.Equal(t, 0, code)

	menu := out[strings.Index(out, "=== Menu ==="):]
	labels := []string{"1. View Dashboard", "2. View Users", "3. Create User", "4. View Roles", "5. Edit Data", "6. View Audit Log", "7. Logout"}
	last := -1
	for _, label := range labels {
		idx := strings.Index(menu, label)
		require.Greater(t, idx, last, label)
		last = idx
	}
}

func TestConsoleViewerSeesDashboardOnly(t *testing.T) {
	e := newEnv(t)
	_, code := e.run(t,
		"1", "admin", "admin123",
		"3", "vera", "vera-password", "Vera", "Viewer",
		"7", "2",
	)
	require.Equal(t, 0, code)

	out, code := e.run(t, "1", "vera", "vera-password", "1", "2", "2")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "1. View Dashboard\n2. Logout\n")
	assert.NotContains(t, out, "View Users")
	assert.Contains(t, out, "Permissions: DASHBOARD_VIEW")
}

func TestConsoleRejectedLoginShowsGenericMessage(t *testing.T) {
	e := newEnv(t)
	out, code := e.run(t, "1", "ghost", "nope", "1", "admin", "wrong-password", "2")
	require.Equal(t, 0, code)
	assert.Equal(t, 2, strings.Count(out, "Error: Invalid credentials"))
	assert.NotContains(t, out, "Login successful")

	entries := e.store.AuditEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "LOGIN_FAILURE:ghost", entries[0].Action)
	assert.Equal(t, "LOGIN_FAILURE:admin", entries[1].Action)
}

func TestConsoleUnknownRoleIsReported(t *testing.T) {
	e := newEnv(t)
	out, code := e.run(t,
		"1", "admin", "admin123",
		"3", "carol", "carol-password", "Carol", "Auditor",
		"7", "2",
	)
	require.Equal(t, 0, code)
	assert.Contains(t, out, `role "Auditor" does not exist`)
	assert.NotContains(t, out, "created successfully")
}

func TestConsoleInvalidChoices(t *testing.T) {
	e := newEnv(t)
	out, code := e.run(t, "9", "abc", "1", "admin", "admin123", "42", "7", "2")
	require.Equal(t, 0, code)
	assert.Equal(t, 3, strings.Count(out, "Invalid option!"))
}

func TestConsoleEndOfInputLogsOut(t *testing.T) {
	e := newEnv(t)
	_, code := e.run(t, "1", "admin", "admin123")
	require.Equal(t, 0, code)

	entries := e.store.AuditEntries()
	require.NotEmpty(t, entries)
	assert.Equal(t, audit.ActionLogout, entries[len(entries)-1].Action)
}

func TestConsoleEditDataIsAudited(t *testing.T) {
	e := newEnv(t)
	out, code := e.run(t, "1", "admin", "admin123", "5", "6", "7", "2")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Data edited successfully!")
	assert.Contains(t, out, "=== Audit Log ===")
	assert.Contains(t, out, "DATA_EDIT")
}
