package postgres

import (
	"context"
	"sort"
	"time"

	roleDatamodel "github.com/frahmantamala/access-control/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/access-control/internal/core/datamodel/user"
	"github.com/frahmantamala/access-control/internal/core/rbac"
	"gorm.io/gorm"
)

type RoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) rbac.RoleStore {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) withPermissions(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Permissions", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

func (r *RoleRepository) GetByID(ctx context.Context, id string) (*rbac.Role, error) {
	var row roleDatamodel.Role
	err := r.withPermissions(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return fromDataModel(&row), nil
}

func (r *RoleRepository) GetByKey(ctx context.Context, key string) (*rbac.Role, error) {
	var row roleDatamodel.Role
	err := r.withPermissions(ctx).Where("key = ?", key).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return fromDataModel(&row), nil
}

func (r *RoleRepository) List(ctx context.Context) ([]*rbac.Role, error) {
	var rows []*roleDatamodel.Role
	if err := r.withPermissions(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*rbac.Role, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromDataModel(row))
	}
	return out, nil
}

func (r *RoleRepository) Create(ctx context.Context, role *rbac.Role) error {
	row := toDataModel(role)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	role.CreatedAt = row.CreatedAt
	role.UpdatedAt = row.UpdatedAt
	return nil
}

// Update saves the role columns and replaces its permission set in one
// transaction.
func (r *RoleRepository) Update(ctx context.Context, role *rbac.Role) error {
	row := toDataModel(role)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Permissions", "created_at", "created_by").Save(row).Error; err != nil {
			return err
		}
		if err := tx.Where("role_id = ?", role.ID).Delete(&roleDatamodel.RolePermission{}).Error; err != nil {
			return err
		}
		if len(row.Permissions) > 0 {
			if err := tx.Create(&row.Permissions).Error; err != nil {
				return err
			}
		}
		role.UpdatedAt = row.UpdatedAt
		return nil
	})
}

func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteRole(tx, id)
	})
}

// DeleteReassigning moves the role's users and deletes the role in one
// transaction.
func (r *RoleRepository) DeleteReassigning(ctx context.Context, id, reassignTo string) (int64, error) {
	var moved int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&userDatamodel.User{}).
			Where("role_id = ?", id).
			Updates(map[string]interface{}{"role_id": reassignTo, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		moved = res.RowsAffected
		return deleteRole(tx, id)
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

func deleteRole(tx *gorm.DB, id string) error {
	if err := tx.Where("role_id = ?", id).Delete(&roleDatamodel.RolePermission{}).Error; err != nil {
		return err
	}
	return tx.Where("id = ?", id).Delete(&roleDatamodel.Role{}).Error
}

func toDataModel(role *rbac.Role) *roleDatamodel.Role {
	perms := make([]roleDatamodel.RolePermission, 0, len(role.Permissions))
	for i, key := range role.Permissions {
		perms = append(perms, roleDatamodel.RolePermission{RoleID: role.ID, PermissionKey: key, Position: i})
	}
	return &roleDatamodel.Role{
		ID:          role.ID,
		Name:        role.Name,
		Key:         role.Key,
		Description: role.Description,
		IsSystem:    role.IsSystem,
		IsActive:    role.IsActive,
		IsAdmin:     role.IsAdmin,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
		CreatedBy:   role.CreatedBy,
		UpdatedBy:   role.UpdatedBy,
		Permissions: perms,
	}
}

func fromDataModel(row *roleDatamodel.Role) *rbac.Role {
	perms := append([]roleDatamodel.RolePermission(nil), row.Permissions...)
	sort.SliceStable(perms, func(i, j int) bool { return perms[i].Position < perms[j].Position })
	keys := make([]string, 0, len(perms))
	for _, p := range perms {
		keys = append(keys, p.PermissionKey)
	}
	return &rbac.Role{
		ID:          row.ID,
		Name:        row.Name,
		Key:         row.Key,
		Description: row.Description,
		IsSystem:    row.IsSystem,
		IsActive:    row.IsActive,
		IsAdmin:     row.IsAdmin,
		Permissions: keys,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		CreatedBy:   row.CreatedBy,
		UpdatedBy:   row.UpdatedBy,
	}
}
