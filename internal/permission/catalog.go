package permission

import (
	"github.com/frahmantamala/access-control/internal/core/rbac"
)

const (
	ModuleUsers       = "users"
	ModuleRoles       = "roles"
	ModulePermissions = "permissions"
	ModuleAudit       = "audit"
	ModuleDashboard   = "dashboard"
	ModuleSettings    = "settings"
)

// Built-in permission keys.
const (
	UsersCreate      = "users.create"
	UsersRead        = "users.read"
	UsersUpdate      = "users.update"
	UsersDelete      = "users.delete"
	UsersManage      = "users.manage"
	RolesCreate      = "roles.create"
	RolesRead        = "roles.read"
	RolesUpdate      = "roles.update"
	RolesDelete      = "roles.delete"
	RolesManage      = "roles.manage"
	PermissionsRead  = "permissions.read"
	AuditRead        = "audit.read"
	AuditExport      = "audit.export"
	DashboardRead    = "dashboard.read"
	SettingsRead     = "settings.read"
	SettingsUpdate   = "settings.update"
	AllManage        = "all.manage"
)

// Catalog is the reference permission data seeded into the permission store.
var Catalog = []rbac.Permission{
	{Key: UsersCreate, Module: ModuleUsers, Action: "create", RiskLevel: rbac.RiskMedium, DisplayName: "Create users", Description: "Invite and create user accounts"},
	{Key: UsersRead, Module: ModuleUsers, Action: "read", RiskLevel: rbac.RiskLow, DisplayName: "View users", Description: "List and view user accounts"},
	{Key: UsersUpdate, Module: ModuleUsers, Action: "update", RiskLevel: rbac.RiskMedium, DisplayName: "Edit users", Description: "Edit user profiles, status and role"},
	{Key: UsersDelete, Module: ModuleUsers, Action: "delete", RiskLevel: rbac.RiskHigh, DisplayName: "Delete users", Description: "Remove user accounts"},
	{Key: UsersManage, Module: ModuleUsers, Action: "manage", RiskLevel: rbac.RiskHigh, DisplayName: "Manage users", Description: "Full control over user accounts"},
	{Key: RolesCreate, Module: ModuleRoles, Action: "create", RiskLevel: rbac.RiskHigh, DisplayName: "Create roles", Description: "Define new roles"},
	{Key: RolesRead, Module: ModuleRoles, Action: "read", RiskLevel: rbac.RiskLow, DisplayName: "View roles", Description: "List and view roles"},
	{Key: RolesUpdate, Module: ModuleRoles, Action: "update", RiskLevel: rbac.RiskHigh, DisplayName: "Edit roles", Description: "Change role details and permissions"},
	{Key: RolesDelete, Module: ModuleRoles, Action: "delete", RiskLevel: rbac.RiskCritical, DisplayName: "Delete roles", Description: "Remove roles"},
	{Key: RolesManage, Module: ModuleRoles, Action: "manage", RiskLevel: rbac.RiskCritical, DisplayName: "Manage roles", Description: "Full control over roles"},
	{Key: PermissionsRead, Module: ModulePermissions, Action: "read", RiskLevel: rbac.RiskLow, DisplayName: "View permissions", Description: "List the permission catalog"},
	{Key: AuditRead, Module: ModuleAudit, Action: "read", RiskLevel: rbac.RiskMedium, DisplayName: "View audit log", Description: "Browse audit entries"},
	{Key: AuditExport, Module: ModuleAudit, Action: "export", RiskLevel: rbac.RiskHigh, DisplayName: "Export audit log", Description: "Download audit entries as CSV or JSON"},
	{Key: DashboardRead, Module: ModuleDashboard, Action: "read", RiskLevel: rbac.RiskLow, DisplayName: "View dashboard", Description: "Open the dashboard"},
	{Key: SettingsRead, Module: ModuleSettings, Action: "read", RiskLevel: rbac.RiskLow, DisplayName: "View settings", Description: "View system settings"},
	{Key: SettingsUpdate, Module: ModuleSettings, Action: "update", RiskLevel: rbac.RiskCritical, DisplayName: "Edit settings", Description: "Change system settings"},
	{Key: AllManage, Module: "all", Action: "manage", RiskLevel: rbac.RiskCritical, DisplayName: "Full access", Description: "Every action on every module"},
}

// CatalogKeys returns every built-in key in catalog order.
func CatalogKeys() []string {
	keys := make([]string, 0, len(Catalog))
	for _, p := range Catalog {
		keys = append(keys, p.Key)
	}
	return keys
}
