package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Repository defines persistence operations for the credential store.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (User, error)
	// Insert returns shared.ErrConflict when the username is taken.
	Insert(ctx context.Context, user NewUser) (User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository on a pool or transaction.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

const userColumns = `id, username, password_hash, full_name, created_at`

// FindByUsername fetches a user by exact username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

// Insert creates a user row. The unique index on username decides conflicts.
func (r *PGRepository) Insert(ctx context.Context, user NewUser) (User, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, full_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO NOTHING
		RETURNING `+userColumns, user.Username, user.PasswordHash, user.FullName)
	created, err := scanUser(row)
	if errors.Is(err, shared.ErrNotFound) {
		return User{}, shared.ErrConflict
	}
	if err != nil {
		return User{}, fmt.Errorf("auth: insert user: %w", err)
	}
	return created, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

var _ Repository = (*PGRepository)(nil)
