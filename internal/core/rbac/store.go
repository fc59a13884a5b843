package rbac

import (
	"context"
	"time"
)

// UserStore is the user repository. Lookups return (nil, nil) when nothing
// matches, the same convention the gorm repositories use.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	ListByRole(ctx context.Context, roleID string) ([]*User, error)
	CountByRole(ctx context.Context, roleID string) (int64, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	// TouchLastLogin sets only the last-login timestamp of the user.
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

type RoleStore interface {
	GetByID(ctx context.Context, id string) (*Role, error)
	GetByKey(ctx context.Context, key string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Create(ctx context.Context, role *Role) error
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id string) error
	// DeleteReassigning moves every user holding the role to reassignTo and
	// deletes the role. Either both happen or neither does.
	DeleteReassigning(ctx context.Context, id, reassignTo string) (int64, error)
}

type PermissionStore interface {
	List(ctx context.Context) ([]*Permission, error)
	GetByKeys(ctx context.Context, keys []string) ([]*Permission, error)
	Upsert(ctx context.Context, perms []*Permission) error
}
