package role

import "github.com/frahmantamala/access-control/internal/core/rbac"

type CreateRoleRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Key         string   `json:"key" validate:"required,max=64,role_key"`
	Description string   `json:"description" validate:"max=500"`
	IsActive    *bool    `json:"is_active"`
	IsAdmin     bool     `json:"is_admin"`
	Permissions []string `json:"permissions"`
}

// UpdateRoleRequest changes only the fields that are set.
type UpdateRoleRequest struct {
	Name        *string  `json:"name" validate:"omitempty,max=100"`
	Key         *string  `json:"key" validate:"omitempty,max=64,role_key"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	IsActive    *bool    `json:"is_active"`
	IsAdmin     *bool    `json:"is_admin"`
	Permissions []string `json:"permissions"`
}

type RoleResponse struct {
	*rbac.Role
	UserCount int64 `json:"user_count"`
}

type RolesResponse struct {
	Roles []RoleResponse `json:"roles"`
}

type DeleteRoleResponse struct {
	ID              string `json:"id"`
	ReassignedTo    string `json:"reassigned_to,omitempty"`
	ReassignedUsers int    `json:"reassigned_users"`
}
