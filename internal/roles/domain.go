package roles

import (
	"strings"
	"time"
)

// Role is the listing projection of a role with its aggregated permissions.
type Role struct {
	ID          int64
	Name        string
	Permissions []string
	CreatedAt   time.Time
}

// PermissionList joins the permission names for display.
func (r Role) PermissionList() string {
	return strings.Join(r.Permissions, ", ")
}
