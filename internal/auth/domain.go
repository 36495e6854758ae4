package auth

import "time"

// User represents an identity record of the credential store.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	FullName     string
	CreatedAt    time.Time
}

// NewUser carries the fields required to insert a user. The password is
// already hashed.
type NewUser struct {
	Username     string
	PasswordHash string
	FullName     string
}
