package user

import "time"

type User struct {
	ID           string     `gorm:"primaryKey;column:id"`
	Username     string     `gorm:"column:username;uniqueIndex;not null"`
	Email        string     `gorm:"column:email;uniqueIndex;not null"`
	FullName     string     `gorm:"column:full_name;not null"`
	PasswordHash string     `gorm:"column:password_hash;not null"`
	Status       string     `gorm:"column:status;not null"`
	RoleID       string     `gorm:"column:role_id;index;not null"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
}

func (User) TableName() string {
	return "users"
}
