package shared

import (
	"time"

	"github.com/google/uuid"
)

// Session identifies an authenticated principal. It is created on login and
// passed explicitly to every gated operation; nothing stores it globally.
type Session struct {
	ID        string
	UserID    int64
	Username  string
	FullName  string
	StartedAt time.Time
}

// NewSession starts a session for the given user.
func NewSession(userID int64, username, fullName string, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Username:  username,
		FullName:  fullName,
		StartedAt: now.UTC(),
	}
}

// Actor returns the user ID as recorded in the audit trail.
func (s *Session) Actor() *int64 {
	if s == nil {
		return nil
	}
	id := s.UserID
	return &id
}
