package postgres

import (
	"context"

	permissionDatamodel "github.com/frahmantamala/access-control/internal/core/datamodel/permission"
	"github.com/frahmantamala/access-control/internal/core/rbac"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PermissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) rbac.PermissionStore {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) List(ctx context.Context) ([]*rbac.Permission, error) {
	var rows []*permissionDatamodel.Permission
	if err := r.db.WithContext(ctx).Order("module ASC, key ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromDataModels(rows), nil
}

func (r *PermissionRepository) GetByKeys(ctx context.Context, keys []string) ([]*rbac.Permission, error) {
	if len(keys) == 0 {
		return []*rbac.Permission{}, nil
	}
	var rows []*permissionDatamodel.Permission
	if err := r.db.WithContext(ctx).Where("key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromDataModels(rows), nil
}

// Upsert inserts new permissions and refreshes the display fields of existing
// ones, matching on key.
func (r *PermissionRepository) Upsert(ctx context.Context, perms []*rbac.Permission) error {
	if len(perms) == 0 {
		return nil
	}
	rows := make([]*permissionDatamodel.Permission, 0, len(perms))
	for _, p := range perms {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		rows = append(rows, toDataModel(p))
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"module", "action", "risk_level", "display_name", "description"}),
	}).Create(&rows).Error
}

func toDataModel(p *rbac.Permission) *permissionDatamodel.Permission {
	return &permissionDatamodel.Permission{
		ID:          p.ID,
		Key:         p.Key,
		Module:      p.Module,
		Action:      p.Action,
		RiskLevel:   string(p.RiskLevel),
		DisplayName: p.DisplayName,
		Description: p.Description,
	}
}

func fromDataModels(rows []*permissionDatamodel.Permission) []*rbac.Permission {
	out := make([]*rbac.Permission, 0, len(rows))
	for _, row := range rows {
		out = append(out, &rbac.Permission{
			ID:          row.ID,
			Key:         row.Key,
			Module:      row.Module,
			Action:      row.Action,
			RiskLevel:   rbac.RiskLevel(row.RiskLevel),
			DisplayName: row.DisplayName,
			Description: row.Description,
		})
	}
	return out
}
