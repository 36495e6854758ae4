package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Repository is the storage port of the registry and engine.
type Repository interface {
	FindRoleByName(ctx context.Context, name string) (Role, error)
	FindPermissionByName(ctx context.Context, name string) (Permission, error)
	// InsertRole returns shared.ErrConflict when the name is taken.
	InsertRole(ctx context.Context, name string) (Role, error)
	// InsertPermission returns shared.ErrConflict when the name is taken.
	InsertPermission(ctx context.Context, name string) (Permission, error)
	// LinkPermission is a no-op when the link already exists.
	LinkPermission(ctx context.Context, roleID, permissionID int64) error
	// InsertUserRole returns shared.ErrConflict for an existing assignment and
	// shared.ErrNotFound when the user or role is missing.
	InsertUserRole(ctx context.Context, userID, roleID int64) error
	RolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	UserPermissionNames(ctx context.Context, userID int64) ([]string, error)
	UserRoleCount(ctx context.Context, userID int64) (int, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a repository on a pool or transaction.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

// WithTx runs fn with a repository bound to a new transaction (or savepoint).
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &PGRepository{db: tx})
	})
}

// FindRoleByName fetches a role by exact name.
func (r *PGRepository) FindRoleByName(ctx context.Context, name string) (Role, error) {
	var role Role
	err := r.db.QueryRow(ctx, `SELECT id, name, created_at FROM roles WHERE name = $1`, name).
		Scan(&role.ID, &role.Name, &role.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, err
}

// FindPermissionByName fetches a permission by exact name.
func (r *PGRepository) FindPermissionByName(ctx context.Context, name string) (Permission, error) {
	var perm Permission
	err := r.db.QueryRow(ctx, `SELECT id, name FROM permissions WHERE name = $1`, name).
		Scan(&perm.ID, &perm.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, shared.ErrNotFound
	}
	return perm, err
}

// InsertRole creates a role; the unique index on name decides conflicts.
func (r *PGRepository) InsertRole(ctx context.Context, name string) (Role, error) {
	var role Role
	err := r.db.QueryRow(ctx, `
		INSERT INTO roles (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING
		RETURNING id, name, created_at`, name).Scan(&role.ID, &role.Name, &role.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrConflict
	}
	if err != nil {
		return Role{}, fmt.Errorf("rbac: insert role: %w", err)
	}
	return role, nil
}

// InsertPermission creates a permission; the unique index on name decides
// conflicts.
func (r *PGRepository) InsertPermission(ctx context.Context, name string) (Permission, error) {
	var perm Permission
	err := r.db.QueryRow(ctx, `
		INSERT INTO permissions (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING
		RETURNING id, name`, name).Scan(&perm.ID, &perm.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, shared.ErrConflict
	}
	if err != nil {
		return Permission{}, fmt.Errorf("rbac: insert permission: %w", err)
	}
	return perm, nil
}

// LinkPermission attaches a permission to a role.
func (r *PGRepository) LinkPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, roleID, permissionID)
	if db.IsForeignKeyViolation(err) {
		return shared.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("rbac: link permission: %w", err)
	}
	return nil
}

// InsertUserRole assigns a role to a user.
func (r *PGRepository) InsertUserRole(ctx context.Context, userID, roleID int64) error {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, userID, roleID)
	if db.IsForeignKeyViolation(err) {
		return shared.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("rbac: assign role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConflict
	}
	return nil
}

// RolePermissions lists the permissions linked to a role, ordered by name.
func (r *PGRepository) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name`, roleID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPermission)
}

// ListPermissions returns all permissions ordered by name.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPermission)
}

// UserPermissionNames resolves user -> roles -> permissions in one join.
func (r *PGRepository) UserPermissionNames(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT p.name
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// UserRoleCount returns how many roles userID holds.
func (r *PGRepository) UserRoleCount(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM user_roles WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("rbac: count user roles: %w", err)
	}
	return n, nil
}

func scanPermission(row pgx.CollectableRow) (Permission, error) {
	var perm Permission
	err := row.Scan(&perm.ID, &perm.Name)
	return perm, err
}

var _ Repository = (*PGRepository)(nil)
