package role

import "time"

type Role struct {
	ID          string           `gorm:"primaryKey;column:id"`
	Name        string           `gorm:"column:name;not null"`
	Key         string           `gorm:"column:key;uniqueIndex;not null"`
	Description string           `gorm:"column:description"`
	IsSystem    bool             `gorm:"column:is_system;not null"`
	IsActive    bool             `gorm:"column:is_active;not null"`
	IsAdmin     bool             `gorm:"column:is_admin;not null"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
	CreatedBy   string           `gorm:"column:created_by"`
	UpdatedBy   string           `gorm:"column:updated_by"`
	Permissions []RolePermission `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
}

func (Role) TableName() string {
	return "roles"
}

// RolePermission grants one permission key to a role. Position keeps the
// order the keys were submitted in.
type RolePermission struct {
	RoleID        string `gorm:"primaryKey;column:role_id"`
	PermissionKey string `gorm:"primaryKey;column:permission_key"`
	Position      int    `gorm:"column:position;not null"`
}

func (RolePermission) TableName() string {
	return "role_permissions"
}
