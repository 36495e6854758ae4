package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
	"github.com/odyssey-erp/odyssey-rbac/internal/testing/memstore"
)

// countingHasher wraps bcrypt and counts comparisons.
type countingHasher struct {
	auth.BcryptHasher
	compares int
}

func (h *countingHasher) Compare(hash, raw string) bool {
	h.compares++
	return h.BcryptHasher.Compare(hash, raw)
}

func newService() (*auth.Service, *countingHasher) {
	hasher := &countingHasher{BcryptHasher: auth.NewBcryptHasher(bcrypt.MinCost)}
	return auth.NewService(memstore.New().Users(), hasher), hasher
}

func TestCreateStoresHashNotPassword(t *testing.T) {
	svc, _ := newService()
	user, err := svc.Create(context.Background(), "alice", "s3cret-pass", "Alice Liddell")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret-pass")))
}

func TestCreateDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()
	_, err := svc.Create(ctx, "alice", "password-1", "Alice")
	require.NoError(t, err)

	_, err = svc.Create(ctx, " alice ", "password-2", "Other Alice")
	require.ErrorIs(t, err, shared.ErrDuplicateUsername)
}

func TestCreateNormalizesUsername(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()
	_, err := svc.Create(ctx, "josé", "password-1", "José")
	require.NoError(t, err)

	user, err := svc.FindByUsername(ctx, "josé")
	require.NoError(t, err)
	assert.Equal(t, "josé", user.Username)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService()
	cases := map[string]struct {
		username, password, fullName string
		want                         string
	}{
		"short username":  {"al", "password-1", "Al", "username must be at least 3"},
		"short password":  {"alice", "short", "Alice", "password must be at least 8"},
		"missing name":    {"alice", "password-1", "  ", "full name is required"},
		"space in name":   {"al ice", "password-1", "Alice", "must not contain spaces"},
		"long username":   {strings.Repeat("a", 51), "password-1", "A", "username must be at most 50"},
		"control in name": {"al\tice", "password-1", "Alice", "must not contain spaces"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.username, tc.password, tc.fullName)
			require.ErrorIs(t, err, shared.ErrInvalidInput)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestVerifyCollapsesFailures(t *testing.T) {
	ctx := context.Background()
	svc, hasher := newService()
	created, err := svc.Create(ctx, "bob", "correct-horse", "Bob")
	require.NoError(t, err)

	user, err := svc.Verify(ctx, "bob", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	hasher.compares = 0
	_, wrongErr := svc.Verify(ctx, "bob", "battery-staple")
	_, unknownErr := svc.Verify(ctx, "ghost", "battery-staple")
	require.ErrorIs(t, wrongErr, shared.ErrInvalidCredentials)
	require.ErrorIs(t, unknownErr, shared.ErrInvalidCredentials)
	assert.Equal(t, wrongErr.Error(), unknownErr.Error())
	assert.Equal(t, 2, hasher.compares, "unknown users must pay for a hash comparison too")
}

type brokenRepo struct {
	auth.Repository
}

func (brokenRepo) FindByUsername(context.Context, string) (auth.User, error) {
	return auth.User{}, context.DeadlineExceeded
}

func TestVerifySurfacesStoreFailures(t *testing.T) {
	svc := auth.NewService(brokenRepo{}, auth.NewBcryptHasher(bcrypt.MinCost))
	_, err := svc.Verify(context.Background(), "bob", "whatever-pass")
	require.Error(t, err)
	assert.False(t, errors.Is(err, shared.ErrInvalidCredentials))
	assert.True(t, shared.IsRetryable(err))
}

func TestVerifyRejectsInvalidUTF8WithoutStore(t *testing.T) {
	hasher := &countingHasher{BcryptHasher: auth.NewBcryptHasher(bcrypt.MinCost)}
	svc := auth.NewService(brokenRepo{}, hasher)

	_, err := svc.Verify(context.Background(), "gh\xffost", "whatever-pass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.Equal(t, 1, hasher.compares)
}

func TestCreateRejectsInvalidUTF8(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Create(context.Background(), "gh\xffost", "correct-horse", "Ghost")
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestNewBcryptHasherClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, auth.NewBcryptHasher(0).Cost)
	assert.Equal(t, bcrypt.DefaultCost, auth.NewBcryptHasher(99).Cost)
	assert.Equal(t, 12, auth.NewBcryptHasher(12).Cost)
}
