package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Invalidator drops cached permission sets after a committed write.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Registry manages roles, permissions and their associations. It only ever
// adds rows; idempotent creation relies on the store's unique constraints.
type Registry struct {
	repo        Repository
	invalidator Invalidator
}

// NewRegistry constructs a Registry. invalidator may be nil.
func NewRegistry(repo Repository, invalidator Invalidator) *Registry {
	return &Registry{repo: repo, invalidator: invalidator}
}

// RoleExists reports whether a role with exactly this name exists.
func (r *Registry) RoleExists(ctx context.Context, name string) (bool, error) {
	_, err := r.repo.FindRoleByName(ctx, shared.NormalizeName(name))
	return exists(err)
}

// PermissionExists reports whether a permission with exactly this name exists.
func (r *Registry) PermissionExists(ctx context.Context, name string) (bool, error) {
	_, err := r.repo.FindPermissionByName(ctx, shared.NormalizeName(name))
	return exists(err)
}

// FindRole returns the role or shared.ErrNotFound.
func (r *Registry) FindRole(ctx context.Context, name string) (Role, error) {
	return r.repo.FindRoleByName(ctx, shared.NormalizeName(name))
}

// RolePermissions lists the permissions linked to a role.
func (r *Registry) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	return r.repo.RolePermissions(ctx, roleID)
}

// ListPermissions returns every permission.
func (r *Registry) ListPermissions(ctx context.Context) ([]Permission, error) {
	return r.repo.ListPermissions(ctx)
}

// GetOrCreatePermission returns the permission called name, creating it when
// absent. Concurrent callers converge on a single row.
func (r *Registry) GetOrCreatePermission(ctx context.Context, name string) (Permission, error) {
	name = shared.NormalizeName(name)
	if name == "" {
		return Permission{}, fmt.Errorf("%w: permission name required", shared.ErrInvalidInput)
	}
	return getOrCreatePermission(ctx, r.repo, name)
}

func getOrCreatePermission(ctx context.Context, repo Repository, name string) (Permission, error) {
	perm, err := repo.InsertPermission(ctx, name)
	if err == nil {
		return perm, nil
	}
	if !errors.Is(err, shared.ErrConflict) {
		return Permission{}, err
	}
	perm, err = repo.FindPermissionByName(ctx, name)
	if err != nil {
		return Permission{}, fmt.Errorf("rbac: lookup permission %q after conflict: %w", name, err)
	}
	return perm, nil
}

// EnsureRole returns the role called name. An existing role is returned as
// is and its permissions are left untouched. A missing role is created and
// linked to permissionNames in one transaction.
func (r *Registry) EnsureRole(ctx context.Context, name string, permissionNames []string) (Role, error) {
	name = shared.NormalizeName(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrInvalidInput)
	}
	perms := normalizeNames(permissionNames)

	var created Role
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		role, err := tx.InsertRole(ctx, name)
		if err != nil {
			return err
		}
		for _, permName := range perms {
			perm, err := getOrCreatePermission(ctx, tx, permName)
			if err != nil {
				return err
			}
			if err := tx.LinkPermission(ctx, role.ID, perm.ID); err != nil {
				return err
			}
		}
		created = role
		return nil
	})
	if errors.Is(err, shared.ErrConflict) {
		role, err := r.repo.FindRoleByName(ctx, name)
		if err != nil {
			return Role{}, fmt.Errorf("rbac: lookup role %q after conflict: %w", name, err)
		}
		return role, nil
	}
	if err != nil {
		return Role{}, fmt.Errorf("rbac: ensure role %q: %w", name, err)
	}
	return created, nil
}

// AssignRoleToUser grants roleID to userID. An existing assignment is
// reported as shared.ErrAssignmentConflict.
func (r *Registry) AssignRoleToUser(ctx context.Context, userID, roleID int64) error {
	err := r.repo.InsertUserRole(ctx, userID, roleID)
	switch {
	case errors.Is(err, shared.ErrConflict):
		return fmt.Errorf("rbac: user %d role %d: %w", userID, roleID, shared.ErrAssignmentConflict)
	case errors.Is(err, shared.ErrNotFound):
		return fmt.Errorf("rbac: user %d role %d: %w", userID, roleID, shared.ErrNotFound)
	case err != nil:
		return err
	}
	return r.invalidate(ctx)
}

// UserRoleCount returns how many roles userID holds.
func (r *Registry) UserRoleCount(ctx context.Context, userID int64) (int, error) {
	return r.repo.UserRoleCount(ctx, userID)
}

func (r *Registry) invalidate(ctx context.Context) error {
	if r.invalidator == nil {
		return nil
	}
	if err := r.invalidator.Invalidate(ctx); err != nil {
		return fmt.Errorf("rbac: invalidate permission cache: %w", err)
	}
	return nil
}

// normalizeNames trims, deduplicates and sorts names. A stable insert order
// keeps concurrent seeders from locking permission rows in opposite orders.
func normalizeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = shared.NormalizeName(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func exists(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	return false, err
}
