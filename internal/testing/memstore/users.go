package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
	"github.com/odyssey-erp/odyssey-rbac/internal/users"
)

type userRow struct {
	id        int64
	username  string
	hash      string
	fullName  string
	createdAt time.Time
}

func (r userRow) toUser() auth.User {
	return auth.User{ID: r.id, Username: r.username, PasswordHash: r.hash, FullName: r.fullName, CreatedAt: r.createdAt}
}

// UserRepo implements auth.Repository and users.RepositoryPort.
type UserRepo struct {
	sc scope
}

// FindByUsername fetches a user by exact username.
func (r *UserRepo) FindByUsername(ctx context.Context, username string) (auth.User, error) {
	if err := r.sc.lock(ctx); err != nil {
		return auth.User{}, err
	}
	defer r.sc.unlock()
	id, ok := r.sc.s.usernames[username]
	if !ok {
		return auth.User{}, shared.ErrNotFound
	}
	return r.sc.s.users[id].toUser(), nil
}

// Insert adds a user; a taken username yields shared.ErrConflict.
func (r *UserRepo) Insert(ctx context.Context, user auth.NewUser) (auth.User, error) {
	if err := r.sc.lock(ctx); err != nil {
		return auth.User{}, err
	}
	defer r.sc.unlock()
	s := r.sc.s
	if _, ok := s.usernames[user.Username]; ok {
		return auth.User{}, shared.ErrConflict
	}
	s.nextUserID++
	row := userRow{id: s.nextUserID, username: user.Username, hash: user.PasswordHash, fullName: user.FullName, createdAt: s.now()}
	s.users[row.id] = row
	s.usernames[row.username] = row.id
	r.sc.record(func() {
		delete(s.users, row.id)
		delete(s.usernames, row.username)
		for key := range s.userRoles {
			if key[0] == row.id {
				delete(s.userRoles, key)
			}
		}
	})
	return row.toUser(), nil
}

// ListUsers returns users ordered by id with sorted role names.
func (r *UserRepo) ListUsers(ctx context.Context) ([]users.User, error) {
	if err := r.sc.lock(ctx); err != nil {
		return nil, err
	}
	defer r.sc.unlock()
	s := r.sc.s
	out := make([]users.User, 0, len(s.users))
	for _, row := range s.users {
		u := users.User{ID: row.id, Username: row.username, FullName: row.fullName, CreatedAt: row.createdAt, Roles: []string{}}
		for key := range s.userRoles {
			if key[0] == row.id {
				u.Roles = append(u.Roles, s.roles[key[1]].name)
			}
		}
		sort.Strings(u.Roles)
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var (
	_ auth.Repository      = (*UserRepo)(nil)
	_ users.RepositoryPort = (*UserRepo)(nil)
)
