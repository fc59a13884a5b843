// Package memory is an in-process implementation of the rbac stores used by
// unit tests across the service packages.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/frahmantamala/access-control/internal/core/rbac"
)

var ErrDuplicate = errors.New("memory: duplicate record")

type Store struct {
	mu    sync.RWMutex
	users map[string]*rbac.User
	roles map[string]*rbac.Role
	perms map[string]*rbac.Permission
	fail  error
}

func New() *Store {
	return &Store{
		users: make(map[string]*rbac.User),
		roles: make(map[string]*rbac.Role),
		perms: make(map[string]*rbac.Permission),
	}
}

// SetFailure makes every subsequent call return err until it is reset with nil.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *Store) Users() rbac.UserStore             { return userStore{s} }
func (s *Store) Roles() rbac.RoleStore             { return roleStore{s} }
func (s *Store) Permissions() rbac.PermissionStore { return permissionStore{s} }

// PutUser and PutRole overwrite records without any uniqueness checks.
func (s *Store) PutUser(u *rbac.User) {
	s.mu.Lock()
	s.users[u.ID] = copyUser(u)
	s.mu.Unlock()
}

func (s *Store) PutRole(r *rbac.Role) {
	s.mu.Lock()
	s.roles[r.ID] = copyRole(r)
	s.mu.Unlock()
}

func (s *Store) PutPermissions(perms ...rbac.Permission) {
	s.mu.Lock()
	for i := range perms {
		p := perms[i]
		s.perms[p.Key] = &p
	}
	s.mu.Unlock()
}

func copyUser(u *rbac.User) *rbac.User {
	cp := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		cp.LastLoginAt = &t
	}
	return &cp
}

func copyRole(r *rbac.Role) *rbac.Role {
	cp := *r
	cp.Permissions = append([]string(nil), r.Permissions...)
	return &cp
}

type userStore struct{ s *Store }

func (u userStore) GetByID(_ context.Context, id string) (*rbac.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	if u.s.fail != nil {
		return nil, u.s.fail
	}
	if user, ok := u.s.users[id]; ok {
		return copyUser(user), nil
	}
	return nil, nil
}

func (u userStore) find(match func(*rbac.User) bool) (*rbac.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	if u.s.fail != nil {
		return nil, u.s.fail
	}
	for _, user := range u.s.users {
		if match(user) {
			return copyUser(user), nil
		}
	}
	return nil, nil
}

func (u userStore) GetByUsername(_ context.Context, username string) (*rbac.User, error) {
	return u.find(func(x *rbac.User) bool { return x.Username == username })
}

func (u userStore) GetByEmail(_ context.Context, email string) (*rbac.User, error) {
	return u.find(func(x *rbac.User) bool { return strings.EqualFold(x.Email, email) })
}

func (u userStore) list(match func(*rbac.User) bool) ([]*rbac.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	if u.s.fail != nil {
		return nil, u.s.fail
	}
	out := make([]*rbac.User, 0, len(u.s.users))
	for _, user := range u.s.users {
		if match(user) {
			out = append(out, copyUser(user))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (u userStore) List(_ context.Context) ([]*rbac.User, error) {
	return u.list(func(*rbac.User) bool { return true })
}

func (u userStore) ListByRole(_ context.Context, roleID string) ([]*rbac.User, error) {
	return u.list(func(x *rbac.User) bool { return x.RoleID == roleID })
}

func (u userStore) CountByRole(ctx context.Context, roleID string) (int64, error) {
	users, err := u.ListByRole(ctx, roleID)
	return int64(len(users)), err
}

func (u userStore) Create(_ context.Context, user *rbac.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if u.s.fail != nil {
		return u.s.fail
	}
	for _, existing := range u.s.users {
		if existing.ID == user.ID || existing.Username == user.Username || existing.Email == user.Email {
			return ErrDuplicate
		}
	}
	u.s.users[user.ID] = copyUser(user)
	return nil
}

func (u userStore) Update(_ context.Context, user *rbac.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if u.s.fail != nil {
		return u.s.fail
	}
	u.s.users[user.ID] = copyUser(user)
	return nil
}

func (u userStore) Delete(_ context.Context, id string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if u.s.fail != nil {
		return u.s.fail
	}
	delete(u.s.users, id)
	return nil
}

func (u userStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if u.s.fail != nil {
		return u.s.fail
	}
	if user, ok := u.s.users[id]; ok {
		user.LastLoginAt = &at
	}
	return nil
}

type roleStore struct{ s *Store }

func (r roleStore) GetByID(_ context.Context, id string) (*rbac.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.fail != nil {
		return nil, r.s.fail
	}
	if role, ok := r.s.roles[id]; ok {
		return copyRole(role), nil
	}
	return nil, nil
}

func (r roleStore) GetByKey(_ context.Context, key string) (*rbac.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.fail != nil {
		return nil, r.s.fail
	}
	for _, role := range r.s.roles {
		if role.Key == key {
			return copyRole(role), nil
		}
	}
	return nil, nil
}

func (r roleStore) List(_ context.Context) ([]*rbac.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.fail != nil {
		return nil, r.s.fail
	}
	out := make([]*rbac.Role, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		out = append(out, copyRole(role))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r roleStore) Create(_ context.Context, role *rbac.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return r.s.fail
	}
	for _, existing := range r.s.roles {
		if existing.ID == role.ID || existing.Key == role.Key {
			return ErrDuplicate
		}
	}
	r.s.roles[role.ID] = copyRole(role)
	return nil
}

func (r roleStore) Update(_ context.Context, role *rbac.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return r.s.fail
	}
	r.s.roles[role.ID] = copyRole(role)
	return nil
}

func (r roleStore) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return r.s.fail
	}
	delete(r.s.roles, id)
	return nil
}

func (r roleStore) DeleteReassigning(_ context.Context, id, reassignTo string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return 0, r.s.fail
	}
	var moved int64
	for _, user := range r.s.users {
		if user.RoleID == id {
			user.RoleID = reassignTo
			moved++
		}
	}
	delete(r.s.roles, id)
	return moved, nil
}

type permissionStore struct{ s *Store }

func (p permissionStore) List(_ context.Context) ([]*rbac.Permission, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	if p.s.fail != nil {
		return nil, p.s.fail
	}
	out := make([]*rbac.Permission, 0, len(p.s.perms))
	for _, perm := range p.s.perms {
		cp := *perm
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (p permissionStore) GetByKeys(_ context.Context, keys []string) ([]*rbac.Permission, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	if p.s.fail != nil {
		return nil, p.s.fail
	}
	out := make([]*rbac.Permission, 0, len(keys))
	for _, k := range keys {
		if perm, ok := p.s.perms[k]; ok {
			cp := *perm
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (p permissionStore) Upsert(_ context.Context, perms []*rbac.Permission) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if p.s.fail != nil {
		return p.s.fail
	}
	for _, perm := range perms {
		cp := *perm
		p.s.perms[perm.Key] = &cp
	}
	return nil
}
