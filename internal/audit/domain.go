package audit

import (
	"time"
	"unicode/utf8"
)

// Event actions written by the console.
const (
	ActionLoginSuccess = "LOGIN_SUCCESS"
	ActionLogout       = "LOGOUT"
	ActionDataEdit     = "DATA_EDIT"

	loginFailurePrefix = "LOGIN_FAILURE:"
	userCreatePrefix   = "USER_CREATE:"

	// MaxActionBytes mirrors the audit_logs.action column width.
	MaxActionBytes = 255
)

// Entry is one immutable row of the trail. UserID is nil when the actor was
// never identified, e.g. a failed login.
type Entry struct {
	ID         int64
	UserID     *int64
	Action     string
	OccurredAt time.Time
	PrevHash   []byte
	Hash       []byte
}

// LoginFailure is the action recorded for a rejected login attempt.
func LoginFailure(username string) string {
	return loginFailurePrefix + username
}

// UserCreate is the action recorded when an account is created.
func UserCreate(username string) string {
	return userCreatePrefix + username
}

// clampAction cuts action to MaxActionBytes without splitting a rune.
func clampAction(action string) string {
	if len(action) <= MaxActionBytes {
		return action
	}
	cut := MaxActionBytes
	for cut > 0 && !utf8.RuneStart(action[cut]) {
		cut--
	}
	return action[:cut]
}
