package rbac

import "github.com/insidebox/backend/internal/models"

// Permission constants
const (
	PermManageProfile  = "manage_profile"
	PermManageRoles    = "manage_roles"
	PermListAccounts   = "list_accounts"
	PermDeleteAccounts = "delete_accounts"
	PermViewEvents     = "view_events"
)

// RolePermissions defines what each session role can do. Roles come from
// the token, which only carries admin after a fresh registry confirmation.
var RolePermissions = map[string][]string{
	models.RoleUser: {
		PermManageProfile,
	},
	models.RoleAdmin: {
		PermManageProfile, PermManageRoles, PermListAccounts, PermDeleteAccounts,
		PermViewEvents,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsPrivileged reports whether permission is reserved for admins.
func IsPrivileged(permission string) bool {
	return !HasPermission(models.RoleUser, permission)
}
