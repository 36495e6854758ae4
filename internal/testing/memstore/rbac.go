package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/roles"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

type roleRow struct {
	id        int64
	name      string
	createdAt time.Time
}

type permRow struct {
	id   int64
	name string
}

// RBACRepo implements rbac.Repository and roles.RepositoryPort.
type RBACRepo struct {
	sc scope
}

// WithTx runs fn against a repository bound to a nested scope.
func (r *RBACRepo) WithTx(ctx context.Context, fn func(context.Context, rbac.Repository) error) error {
	return r.sc.inTx(ctx, func(child scope) error {
		return fn(ctx, &RBACRepo{sc: child})
	})
}

// FindRoleByName fetches a role by exact name.
func (r *RBACRepo) FindRoleByName(ctx context.Context, name string) (rbac.Role, error) {
	if err := r.sc.lock(ctx); err != nil {
		return rbac.Role{}, err
	}
	defer r.sc.unlock()
	id, ok := r.sc.s.roleNames[name]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	row := r.sc.s.roles[id]
	return rbac.Role{ID: row.id, Name: row.name, CreatedAt: row.createdAt}, nil
}

// FindPermissionByName fetches a permission by exact name.
func (r *RBACRepo) FindPermissionByName(ctx context.Context, name string) (rbac.Permission, error) {
	if err := r.sc.lock(ctx); err != nil {
		return rbac.Permission{}, err
	}
	defer r.sc.unlock()
	id, ok := r.sc.s.permNames[name]
	if !ok {
		return rbac.Permission{}, shared.ErrNotFound
	}
	return rbac.Permission{ID: id, Name: name}, nil
}

// InsertRole adds a role; a taken name yields shared.ErrConflict.
func (r *RBACRepo) InsertRole(ctx context.Context, name string) (rbac.Role, error) {
	if err := r.sc.lock(ctx); err != nil {
		return rbac.Role{}, err
	}
	defer r.sc.unlock()
	s := r.sc.s
	if _, ok := s.roleNames[name]; ok {
		return rbac.Role{}, shared.ErrConflict
	}
	s.nextRoleID++
	row := roleRow{id: s.nextRoleID, name: name, createdAt: s.now()}
	s.roles[row.id] = row
	s.roleNames[name] = row.id
	r.sc.record(func() {
		delete(s.roles, row.id)
		delete(s.roleNames, name)
		for key := range s.rolePerms {
			if key[0] == row.id {
				delete(s.rolePerms, key)
			}
		}
		for key := range s.userRoles {
			if key[1] == row.id {
				delete(s.userRoles, key)
			}
		}
	})
	return rbac.Role{ID: row.id, Name: row.name, CreatedAt: row.createdAt}, nil
}

// InsertPermission adds a permission; a taken name yields shared.ErrConflict.
func (r *RBACRepo) InsertPermission(ctx context.Context, name string) (rbac.Permission, error) {
	if err := r.sc.lock(ctx); err != nil {
		return rbac.Permission{}, err
	}
	defer r.sc.unlock()
	s := r.sc.s
	if _, ok := s.permNames[name]; ok {
		return rbac.Permission{}, shared.ErrConflict
	}
	s.nextPermID++
	row := permRow{id: s.nextPermID, name: name}
	s.perms[row.id] = row
	s.permNames[name] = row.id
	r.sc.record(func() {
		delete(s.perms, row.id)
		delete(s.permNames, name)
		for key := range s.rolePerms {
			if key[1] == row.id {
				delete(s.rolePerms, key)
			}
		}
	})
	return rbac.Permission{ID: row.id, Name: name}, nil
}

// LinkPermission attaches a permission to a role, ignoring an existing link.
func (r *RBACRepo) LinkPermission(ctx context.Context, roleID, permissionID int64) error {
	if err := r.sc.lock(ctx); err != nil {
		return err
	}
	defer r.sc.unlock()
	s := r.sc.s
	if _, ok := s.roles[roleID]; !ok {
		return shared.ErrNotFound
	}
	if _, ok := s.perms[permissionID]; !ok {
		return shared.ErrNotFound
	}
	key := pair{roleID, permissionID}
	if _, ok := s.rolePerms[key]; ok {
		return nil
	}
	s.rolePerms[key] = struct{}{}
	r.sc.record(func() { delete(s.rolePerms, key) })
	return nil
}

// InsertUserRole assigns a role to a user.
func (r *RBACRepo) InsertUserRole(ctx context.Context, userID, roleID int64) error {
	if err := r.sc.lock(ctx); err != nil {
		return err
	}
	defer r.sc.unlock()
	s := r.sc.s
	if _, ok := s.users[userID]; !ok {
		return shared.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return shared.ErrNotFound
	}
	key := pair{userID, roleID}
	if _, ok := s.userRoles[key]; ok {
		return shared.ErrConflict
	}
	s.userRoles[key] = struct{}{}
	r.sc.record(func() { delete(s.userRoles, key) })
	return nil
}

// RolePermissions lists the permissions linked to a role ordered by name.
func (r *RBACRepo) RolePermissions(ctx context.Context, roleID int64) ([]rbac.Permission, error) {
	if err := r.sc.lock(ctx); err != nil {
		return nil, err
	}
	defer r.sc.unlock()
	s := r.sc.s
	var out []rbac.Permission
	for key := range s.rolePerms {
		if key[0] == roleID {
			out = append(out, rbac.Permission{ID: key[1], Name: s.perms[key[1]].name})
		}
	}
	sortPermissions(out)
	return out, nil
}

// UserPermissionNames resolves user -> roles -> permissions.
func (r *RBACRepo) UserPermissionNames(ctx context.Context, userID int64) ([]string, error) {
	if err := r.sc.lock(ctx); err != nil {
		return nil, err
	}
	defer r.sc.unlock()
	s := r.sc.s
	seen := make(map[string]struct{})
	for ur := range s.userRoles {
		if ur[0] != userID {
			continue
		}
		for rp := range s.rolePerms {
			if rp[0] == ur[1] {
				seen[s.perms[rp[1]].name] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	return names, nil
}

// UserRoleCount returns how many roles userID holds.
func (r *RBACRepo) UserRoleCount(ctx context.Context, userID int64) (int, error) {
	if err := r.sc.lock(ctx); err != nil {
		return 0, err
	}
	defer r.sc.unlock()
	n := 0
	for ur := range r.sc.s.userRoles {
		if ur[0] == userID {
			n++
		}
	}
	return n, nil
}

// ListPermissions returns all permissions ordered by name.
func (r *RBACRepo) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	if err := r.sc.lock(ctx); err != nil {
		return nil, err
	}
	defer r.sc.unlock()
	out := make([]rbac.Permission, 0, len(r.sc.s.perms))
	for _, row := range r.sc.s.perms {
		out = append(out, rbac.Permission{ID: row.id, Name: row.name})
	}
	sortPermissions(out)
	return out, nil
}

// ListRoles returns roles ordered by id with sorted permission names.
func (r *RBACRepo) ListRoles(ctx context.Context) ([]roles.Role, error) {
	if err := r.sc.lock(ctx); err != nil {
		return nil, err
	}
	defer r.sc.unlock()
	s := r.sc.s
	out := make([]roles.Role, 0, len(s.roles))
	for _, row := range s.roles {
		role := roles.Role{ID: row.id, Name: row.name, CreatedAt: row.createdAt, Permissions: []string{}}
		for key := range s.rolePerms {
			if key[0] == row.id {
				role.Permissions = append(role.Permissions, s.perms[key[1]].name)
			}
		}
		sort.Strings(role.Permissions)
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func sortPermissions(perms []rbac.Permission) {
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
}

var (
	_ rbac.Repository      = (*RBACRepo)(nil)
	_ roles.RepositoryPort = (*RBACRepo)(nil)
)
