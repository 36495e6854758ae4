package users

import "time"

// User is the listing projection of an account. Password hashes never leave
// the credential store.
type User struct {
	ID        int64
	Username  string
	FullName  string
	Roles     []string
	CreatedAt time.Time
}
