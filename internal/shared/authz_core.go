package shared

// Core permissions seeded by the default bootstrap policy.
const (
	PermDashboardView = "DASHBOARD_VIEW"

	PermUserCreate = "USER_CREATE"
	PermUserRead   = "USER_READ"
	PermUserUpdate = "USER_UPDATE"
	PermUserDelete = "USER_DELETE"

	PermRoleCreate = "ROLE_CREATE"
	PermRoleRead   = "ROLE_READ"
	PermRoleUpdate = "ROLE_UPDATE"
	PermRoleDelete = "ROLE_DELETE"

	PermDataEdit  = "DATA_EDIT"
	PermAuditRead = "AUDIT_READ"
)

// CoreScopes lists every core permission.
func CoreScopes() []string {
	return []string{
		PermUserCreate,
		PermUserRead,
		PermUserUpdate,
		PermUserDelete,
		PermRoleCreate,
		PermRoleRead,
		PermRoleUpdate,
		PermRoleDelete,
		PermDashboardView,
		PermDataEdit,
		PermAuditRead,
	}
}

// Default role names.
const (
	RoleAdmin  = "Admin"
	RoleEditor = "Editor"
	RoleViewer = "Viewer"
)
