package permission

type Permission struct {
	ID          string `gorm:"primaryKey;column:id"`
	Key         string `gorm:"column:key;uniqueIndex;not null"`
	Module      string `gorm:"column:module;index;not null"`
	Action      string `gorm:"column:action;not null"`
	RiskLevel   string `gorm:"column:risk_level;not null"`
	DisplayName string `gorm:"column:display_name;not null"`
	Description string `gorm:"column:description"`
}

func (Permission) TableName() string {
	return "permissions"
}
