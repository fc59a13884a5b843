package postgres

import (
	"context"
	"time"

	userDatamodel "github.com/frahmantamala/access-control/internal/core/datamodel/user"
	"github.com/frahmantamala/access-control/internal/core/rbac"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) rbac.UserStore {
	return &UserRepository{db: db}
}

func (r *UserRepository) first(ctx context.Context, query string, arg interface{}) (*rbac.User, error) {
	var row userDatamodel.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return fromDataModel(&row), nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*rbac.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*rbac.User, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*rbac.User, error) {
	return r.first(ctx, "LOWER(email) = LOWER(?)", email)
}

func (r *UserRepository) List(ctx context.Context) ([]*rbac.User, error) {
	var rows []*userDatamodel.User
	if err := r.db.WithContext(ctx).Order("username ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromDataModels(rows), nil
}

func (r *UserRepository) ListByRole(ctx context.Context, roleID string) ([]*rbac.User, error) {
	var rows []*userDatamodel.User
	if err := r.db.WithContext(ctx).Where("role_id = ?", roleID).Order("username ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromDataModels(rows), nil
}

func (r *UserRepository) CountByRole(ctx context.Context, roleID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&userDatamodel.User{}).Where("role_id = ?", roleID).Count(&n).Error
	return n, err
}

func (r *UserRepository) Create(ctx context.Context, user *rbac.User) error {
	row := toDataModel(user)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	user.CreatedAt = row.CreatedAt
	user.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *UserRepository) Update(ctx context.Context, user *rbac.User) error {
	row := toDataModel(user)
	if err := r.db.WithContext(ctx).Omit("created_at").Save(row).Error; err != nil {
		return err
	}
	user.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&userDatamodel.User{}).Error
}

// TouchLastLogin writes the single column so a concurrent edit of the row is
// never overwritten by a stale copy.
func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&userDatamodel.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

func toDataModel(u *rbac.User) *userDatamodel.User {
	return &userDatamodel.User{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FullName:     u.FullName,
		PasswordHash: u.PasswordHash,
		Status:       string(u.Status),
		RoleID:       u.RoleID,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		LastLoginAt:  u.LastLoginAt,
	}
}

func fromDataModel(row *userDatamodel.User) *rbac.User {
	return &rbac.User{
		ID:           row.ID,
		Username:     row.Username,
		Email:        row.Email,
		FullName:     row.FullName,
		PasswordHash: row.PasswordHash,
		Status:       rbac.UserStatus(row.Status),
		RoleID:       row.RoleID,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		LastLoginAt:  row.LastLoginAt,
	}
}

func fromDataModels(rows []*userDatamodel.User) []*rbac.User {
	out := make([]*rbac.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromDataModel(row))
	}
	return out
}
