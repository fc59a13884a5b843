package user

type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=255"`
	FullName string `json:"full_name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	RoleID   string `json:"role_id" validate:"required"`
	Status   string `json:"status" validate:"omitempty,oneof=active inactive suspended"`
}

// UpdateUserRequest changes only the fields that are set. Role changes go
// through ChangeRoleRequest so they are audited as such.
type UpdateUserRequest struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=50"`
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	FullName *string `json:"full_name" validate:"omitempty,max=100"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
	Status   *string `json:"status" validate:"omitempty,oneof=active inactive suspended"`
}

type ChangeRoleRequest struct {
	RoleID string `json:"role_id" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

type UsersResponse struct {
	Users []UserResponse `json:"users"`
}
