package shared

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates a referenced entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateUsername indicates the username is already taken.
	ErrDuplicateUsername = errors.New("duplicate username")
	// ErrAssignmentConflict indicates the user already holds the role.
	ErrAssignmentConflict = errors.New("assignment already exists")
	// ErrInvalidCredentials indicates login failure. Unknown users and wrong
	// passwords both map here.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAuditWriteFailed indicates an audit record could not be persisted. The
	// operation that triggered it must be aborted.
	ErrAuditWriteFailed = errors.New("audit write failed")
	// ErrForbidden indicates the principal lacks the required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput indicates rejected user input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict is returned by repositories when a unique constraint rejected
	// an insert. Services translate it into a domain outcome.
	ErrConflict = errors.New("conflict")
)

// IsRetryable reports whether err is a transient failure, such as an expired
// deadline, rather than a definite rejection.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return pgconn.Timeout(err)
}

// UserSafeMessage maps domain errors to text that can be shown to operators.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid credentials"
	case errors.Is(err, ErrDuplicateUsername):
		return "Username already exists"
	case errors.Is(err, ErrAssignmentConflict):
		return "User already has that role"
	case errors.Is(err, ErrNotFound):
		return "Not found"
	case errors.Is(err, ErrForbidden):
		return "You are not allowed to do that"
	case errors.Is(err, ErrInvalidInput):
		return err.Error()
	case errors.Is(err, ErrAuditWriteFailed):
		return "Action aborted: the audit trail is unavailable"
	case IsRetryable(err):
		return "The store did not answer in time, please retry"
	default:
		return "Internal error"
	}
}
