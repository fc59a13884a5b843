package user

import (
	"time"

	"github.com/frahmantamala/access-control/internal/core/rbac"
)

// UserResponse is the API view of a user: never the password hash, and the
// role resolved to its name.
type UserResponse struct {
	ID          string          `json:"id"`
	Username    string          `json:"username"`
	Email       string          `json:"email"`
	FullName    string          `json:"full_name"`
	Status      rbac.UserStatus `json:"status"`
	RoleID      string          `json:"role_id"`
	RoleName    string          `json:"role_name,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	LastLoginAt *time.Time      `json:"last_login_at,omitempty"`
}

func ToResponse(u *rbac.User, role *rbac.Role) UserResponse {
	resp := UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		Status:      u.Status,
		RoleID:      u.RoleID,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
		LastLoginAt: u.LastLoginAt,
	}
	if role != nil {
		resp.RoleName = role.Name
	}
	return resp
}
