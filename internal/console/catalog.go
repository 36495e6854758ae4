package console

import (
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Action keys of the default catalog.
const (
	KeyDashboard  = "dashboard"
	KeyListUsers  = "users"
	KeyCreateUser = "create_user"
	KeyListRoles  = "roles"
	KeyEditData   = "edit_data"
	KeyAuditLog   = "audit_log"
)

// DefaultCatalog returns the menu in display order. Logout is appended by the
// engine.
func DefaultCatalog() rbac.Catalog {
	return rbac.Catalog{
		{Key: KeyDashboard, Label: "View Dashboard", Permission: shared.PermDashboardView},
		{Key: KeyListUsers, Label: "View Users", Permission: shared.PermUserRead},
		{Key: KeyCreateUser, Label: "Create User", Permission: shared.PermUserCreate},
		{Key: KeyListRoles, Label: "View Roles", Permission: shared.PermRoleRead},
		{Key: KeyEditData, Label: "Edit Data", Permission: shared.PermDataEdit},
		{Key: KeyAuditLog, Label: "View Audit Log", Permission: shared.PermAuditRead},
	}
}
