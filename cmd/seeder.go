package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/core/common/validation"
	"github.com/frahmantamala/access-control/internal/core/rbac"
	"github.com/frahmantamala/access-control/internal/permission"
	permissionRepo "github.com/frahmantamala/access-control/internal/permission/postgres"
	roleRepo "github.com/frahmantamala/access-control/internal/role/postgres"
	userRepo "github.com/frahmantamala/access-control/internal/user/postgres"
	"github.com/frahmantamala/access-control/pkg/logger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleViewer     = "viewer"
)

// systemRoles are created once and can be edited but never deleted.
var systemRoles = []rbac.Role{
	{
		Name: "Super Admin", Key: RoleSuperAdmin, IsAdmin: true,
		Description: "Unrestricted access to every module",
		Permissions: []string{permission.AllManage},
	},
	{
		Name: "Administrator", Key: RoleAdmin, IsAdmin: true,
		Description: "Manages users and roles and reviews the audit trail",
		Permissions: []string{
			permission.UsersManage, permission.RolesManage, permission.PermissionsRead,
			permission.AuditRead, permission.AuditExport, permission.DashboardRead, permission.SettingsRead,
		},
	},
	{
		Name: "Viewer", Key: RoleViewer,
		Description: "Read-only access",
		Permissions: []string{
			permission.UsersRead, permission.RolesRead, permission.PermissionsRead, permission.DashboardRead,
		},
	},
}

type adminSeed struct {
	Username string
	Email    string
	FullName string
	Password string
}

var admin adminSeed

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the permission catalog, system roles and the initial administrator",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		dbs, err := initDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		defer dbs.Close()

		if admin.Password == "" {
			admin.Password = os.Getenv("ADMIN_PASSWORD")
		}

		lg := logger.LoggerWrapper()
		seeder := &Seeder{
			Permissions: permission.NewService(permissionRepo.NewPermissionRepository(dbs.Gorm), lg),
			Roles:       roleRepo.NewRoleRepository(dbs.Gorm),
			Users:       userRepo.NewUserRepository(dbs.Gorm),
			BcryptCost:  cfg.Security.BCryptCost,
			Logger:      lg,
		}
		return seeder.Run(cmd.Context(), admin)
	},
}

func init() {
	seedCmd.Flags().StringVar(&admin.Username, "admin-username", "admin", "username of the initial administrator")
	seedCmd.Flags().StringVar(&admin.Email, "admin-email", "admin@example.com", "email of the initial administrator")
	seedCmd.Flags().StringVar(&admin.FullName, "admin-name", "System Administrator", "display name of the initial administrator")
	seedCmd.Flags().StringVar(&admin.Password, "admin-password", "", "password of the initial administrator (or ADMIN_PASSWORD)")
}

// Seeder is idempotent: existing roles and users are left untouched.
type Seeder struct {
	Permissions *permission.Service
	Roles       rbac.RoleStore
	Users       rbac.UserStore
	BcryptCost  int
	Logger      *slog.Logger
}

func (s *Seeder) Run(ctx context.Context, a adminSeed) error {
	if err := s.Permissions.SeedCatalog(ctx); err != nil {
		return err
	}

	var superAdminID string
	for _, tmpl := range systemRoles {
		r, err := s.ensureRole(ctx, tmpl)
		if err != nil {
			return err
		}
		if r.Key == RoleSuperAdmin {
			superAdminID = r.ID
		}
	}

	return s.ensureAdmin(ctx, a, superAdminID)
}

func (s *Seeder) ensureRole(ctx context.Context, tmpl rbac.Role) (*rbac.Role, error) {
	existing, err := s.Roles.GetByKey(ctx, tmpl.Key)
	if err != nil {
		return nil, fmt.Errorf("lookup role %s: %w", tmpl.Key, err)
	}
	if existing != nil {
		s.Logger.Info("system role already exists", "key", tmpl.Key)
		return existing, nil
	}

	r := tmpl
	r.ID = uuid.NewString()
	r.IsSystem = true
	r.IsActive = true
	r.Permissions = append([]string(nil), tmpl.Permissions...)
	if err := s.Roles.Create(ctx, &r); err != nil {
		return nil, fmt.Errorf("create role %s: %w", tmpl.Key, err)
	}
	s.Logger.Info("seeded system role", "key", r.Key, "role_id", r.ID)
	return &r, nil
}

func (s *Seeder) ensureAdmin(ctx context.Context, a adminSeed, roleID string) error {
	existing, err := s.Users.GetByUsername(ctx, a.Username)
	if err != nil {
		return fmt.Errorf("lookup admin user: %w", err)
	}
	if existing != nil {
		s.Logger.Info("admin user already exists", "username", a.Username)
		return nil
	}

	if err := validation.ValidatePassword(a.Password); err != nil {
		return fmt.Errorf("admin password: %w", err)
	}
	cost := s.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), cost)
	if err != nil {
		return internal.NewInternalError("Failed to hash password", err)
	}

	u := &rbac.User{
		ID:           uuid.NewString(),
		Username:     a.Username,
		Email:        strings.ToLower(a.Email),
		FullName:     a.FullName,
		PasswordHash: string(hash),
		Status:       rbac.UserStatusActive,
		RoleID:       roleID,
	}
	if err := s.Users.Create(ctx, u); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	s.Logger.Info("seeded admin user", "username", u.Username, "user_id", u.ID)
	return nil
}
