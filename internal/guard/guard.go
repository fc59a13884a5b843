// Package guard holds the precondition checks every role and user mutation
// must pass before it reaches a store.
//
// Checks read current state from the stores on every call and never write.
// They return (nil, nil) when the mutation is allowed, a *Denial when it is
// refused, and an error only when a store call fails.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/core/rbac"
	"github.com/frahmantamala/access-control/pkg/metrics"
)

type Operation string

const (
	OpEdit       Operation = "edit"
	OpDelete     Operation = "delete"
	OpChangeRole Operation = "change_role"
	OpDeactivate Operation = "deactivate"
)

var selfReasons = map[Operation]string{
	OpEdit:       "You cannot edit your own account",
	OpDelete:     "You cannot delete your own account",
	OpChangeRole: "You cannot change your own role",
	OpDeactivate: "You cannot deactivate your own account",
}

// KeyValidator reports which permission keys are not known.
type KeyValidator interface {
	Unknown(ctx context.Context, keys []string) ([]string, error)
}

type Guard struct {
	mu     sync.Mutex
	users  rbac.UserStore
	roles  rbac.RoleStore
	keys   KeyValidator
	logger *slog.Logger
}

func New(users rbac.UserStore, roles rbac.RoleStore, keys KeyValidator, logger *slog.Logger) *Guard {
	return &Guard{
		users:  users,
		roles:  roles,
		keys:   keys,
		logger: logger,
	}
}

// Lock serializes guarded mutations within the process. Callers hold it from
// their first read of current state until the admitted write has landed, so
// two checks can never both pass against the same snapshot.
func (g *Guard) Lock() (unlock func()) {
	g.mu.Lock()
	return g.mu.Unlock
}

// ----------------- ROLES -----------------

// CheckRoleCreate validates a new role's permission set and machine key.
func (g *Guard) CheckRoleCreate(ctx context.Context, role *rbac.Role) (*Denial, error) {
	const check = "role_create"

	if d, err := g.checkPermissionSet(ctx, check, role.Permissions); d != nil || err != nil {
		return d, err
	}

	existing, err := g.roles.GetByKey(ctx, role.Key)
	if err != nil {
		return nil, fmt.Errorf("lookup role key: %w", err)
	}
	if existing != nil {
		return g.denied(deny(check, internal.ErrCodeDuplicateRoleKey,
			fmt.Sprintf("A role with key %q already exists", role.Key))), nil
	}
	return nil, nil
}

// CheckRoleUpdate validates the proposed state of an existing role. It also
// refuses to deactivate or strip admin from the role that keeps the last
// administrator account capable.
func (g *Guard) CheckRoleUpdate(ctx context.Context, proposed *rbac.Role) (*Denial, error) {
	const check = "role_update"

	current, err := g.roles.GetByID(ctx, proposed.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup role: %w", err)
	}
	if current == nil {
		return g.denied(deny(check, internal.ErrCodeRoleNotFound, "Role not found")), nil
	}

	if d, err := g.checkPermissionSet(ctx, check, proposed.Permissions); d != nil || err != nil {
		return d, err
	}

	if proposed.Key != current.Key {
		other, err := g.roles.GetByKey(ctx, proposed.Key)
		if err != nil {
			return nil, fmt.Errorf("lookup role key: %w", err)
		}
		if other != nil && other.ID != proposed.ID {
			return g.denied(deny(check, internal.ErrCodeDuplicateRoleKey,
				fmt.Sprintf("A role with key %q already exists", proposed.Key))), nil
		}
	}

	if current.GrantsAdmin() && !proposed.GrantsAdmin() {
		breaks, err := g.breaksLastAdmin(ctx, func(s *snapshot) {
			cp := *proposed
			s.roles[proposed.ID] = &cp
		})
		if err != nil {
			return nil, err
		}
		if breaks {
			return g.denied(deny(check, internal.ErrCodeModificationNotAllowed,
				fmt.Sprintf("Cannot remove administrator access from role %q: it is held by the last administrator account", current.Name))), nil
		}
	}
	return nil, nil
}

// CheckRoleDelete validates deleting roleID. When reassignTo is set the
// role's users are moved there as part of the deletion, so the assigned-users
// check is replaced by checks on the target role.
func (g *Guard) CheckRoleDelete(ctx context.Context, roleID, reassignTo string) (*Denial, error) {
	const check = "role_delete"

	role, err := g.roles.GetByID(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("lookup role: %w", err)
	}
	if role == nil {
		return g.denied(deny(check, internal.ErrCodeRoleNotFound, "Role not found")), nil
	}
	if role.IsSystem {
		return g.denied(deny(check, internal.ErrCodeDeleteNotAllowed,
			fmt.Sprintf("Cannot delete system role %q", role.Name))), nil
	}

	if role.GrantsAdmin() {
		breaks, err := g.breaksLastAdmin(ctx, func(s *snapshot) {
			delete(s.roles, roleID)
			for id, u := range s.users {
				if u.RoleID == roleID {
					cp := *u
					cp.RoleID = reassignTo
					s.users[id] = &cp
				}
			}
		})
		if err != nil {
			return nil, err
		}
		if breaks {
			return g.denied(deny(check, internal.ErrCodeDeleteNotAllowed,
				fmt.Sprintf("Cannot delete role %q: it is the last role granting administrator access", role.Name))), nil
		}
	}

	assigned, err := g.users.CountByRole(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("count role users: %w", err)
	}
	if assigned > 0 && reassignTo == "" {
		d := deny(check, internal.ErrCodeDeleteNotAllowed,
			fmt.Sprintf("Cannot delete role %q: %d user(s) are still assigned to it", role.Name, assigned))
		d.Details = map[string]interface{}{"assigned_users": assigned}
		return g.denied(d), nil
	}

	if reassignTo != "" {
		if reassignTo == roleID {
			return g.denied(deny(check, internal.ErrCodeDeleteNotAllowed,
				"Users cannot be reassigned to the role being deleted")), nil
		}
		target, err := g.roles.GetByID(ctx, reassignTo)
		if err != nil {
			return nil, fmt.Errorf("lookup reassignment role: %w", err)
		}
		if target == nil {
			return g.denied(deny(check, internal.ErrCodeRoleNotFound, "Reassignment role not found")), nil
		}
		if !target.IsActive {
			return g.denied(deny(check, internal.ErrCodeRoleInactive,
				fmt.Sprintf("Cannot reassign users to inactive role %q", target.Name))), nil
		}
	}
	return nil, nil
}

func (g *Guard) checkPermissionSet(ctx context.Context, check string, keys []string) (*Denial, error) {
	if len(keys) == 0 {
		return g.denied(deny(check, internal.ErrCodeNoPermissions, "A role must have at least one permission")), nil
	}
	unknown, err := g.keys.Unknown(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("validate permission keys: %w", err)
	}
	if len(unknown) > 0 {
		d := deny(check, internal.ErrCodeInvalidPermissions,
			fmt.Sprintf("Unknown permission keys: %v", unknown))
		d.Details = map[string]interface{}{"unknown": unknown}
		return g.denied(d), nil
	}
	return nil, nil
}

// ----------------- USERS -----------------

// CheckSelfModification refuses op when the actor and the target are the same
// user, whatever the actor's permissions.
func (g *Guard) CheckSelfModification(actorID, targetID string, op Operation) *Denial {
	if actorID == "" || actorID != targetID {
		return nil
	}
	reason, ok := selfReasons[op]
	if !ok {
		reason = "You cannot modify your own account"
	}
	code := internal.ErrCodeModificationNotAllowed
	if op == OpDelete {
		code = internal.ErrCodeDeleteNotAllowed
	}
	return g.denied(deny("self_"+string(op), code, reason))
}

// CheckRoleAssignment requires roleID to name an existing, active role.
func (g *Guard) CheckRoleAssignment(ctx context.Context, roleID string) (*Denial, error) {
	const check = "role_assignment"

	role, err := g.roles.GetByID(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("lookup role: %w", err)
	}
	if role == nil {
		return g.denied(deny(check, internal.ErrCodeRoleNotFound, "Role not found")), nil
	}
	if !role.IsActive {
		return g.denied(deny(check, internal.ErrCodeRoleInactive,
			fmt.Sprintf("Role %q is not active and cannot be assigned", role.Name))), nil
	}
	return nil, nil
}

func (g *Guard) CheckUserCreate(ctx context.Context, user *rbac.User) (*Denial, error) {
	if d, err := g.CheckRoleAssignment(ctx, user.RoleID); d != nil || err != nil {
		return d, err
	}
	return g.checkIdentity(ctx, "user_create", user)
}

// CheckUserUpdate validates the proposed state of an existing user edited by
// actorID.
func (g *Guard) CheckUserUpdate(ctx context.Context, actorID string, proposed *rbac.User) (*Denial, error) {
	const check = "user_update"

	if d := g.CheckSelfModification(actorID, proposed.ID, OpEdit); d != nil {
		return d, nil
	}
	current, err := g.users.GetByID(ctx, proposed.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if current == nil {
		return g.denied(deny(check, internal.ErrCodeUserNotFound, "User not found")), nil
	}
	if d, err := g.checkIdentity(ctx, check, proposed); d != nil || err != nil {
		return d, err
	}
	if proposed.RoleID != current.RoleID {
		if d, err := g.CheckRoleAssignment(ctx, proposed.RoleID); d != nil || err != nil {
			return d, err
		}
	}
	return g.checkUserLastAdmin(ctx, check, internal.ErrCodeModificationNotAllowed,
		"Cannot remove administrator access from the last administrator account", proposed)
}

func (g *Guard) CheckUserDelete(ctx context.Context, actorID, targetID string) (*Denial, error) {
	const check = "user_delete"

	if d := g.CheckSelfModification(actorID, targetID, OpDelete); d != nil {
		return d, nil
	}
	current, err := g.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if current == nil {
		return g.denied(deny(check, internal.ErrCodeUserNotFound, "User not found")), nil
	}
	return g.checkUserLastAdmin(ctx, check, internal.ErrCodeDeleteNotAllowed,
		"Cannot delete the last administrator account", nil, targetID)
}

func (g *Guard) CheckUserDeactivate(ctx context.Context, actorID, targetID string) (*Denial, error) {
	const check = "user_deactivate"

	if d := g.CheckSelfModification(actorID, targetID, OpDeactivate); d != nil {
		return d, nil
	}
	current, err := g.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if current == nil {
		return g.denied(deny(check, internal.ErrCodeUserNotFound, "User not found")), nil
	}
	proposed := *current
	proposed.Status = rbac.UserStatusInactive
	return g.checkUserLastAdmin(ctx, check, internal.ErrCodeModificationNotAllowed,
		"Cannot deactivate the last administrator account", &proposed)
}

func (g *Guard) CheckUserRoleChange(ctx context.Context, actorID, targetID, roleID string) (*Denial, error) {
	const check = "user_role_change"

	if d := g.CheckSelfModification(actorID, targetID, OpChangeRole); d != nil {
		return d, nil
	}
	current, err := g.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if current == nil {
		return g.denied(deny(check, internal.ErrCodeUserNotFound, "User not found")), nil
	}
	if d, err := g.CheckRoleAssignment(ctx, roleID); d != nil || err != nil {
		return d, err
	}
	proposed := *current
	proposed.RoleID = roleID
	return g.checkUserLastAdmin(ctx, check, internal.ErrCodeModificationNotAllowed,
		"Cannot remove administrator access from the last administrator account", &proposed)
}

func (g *Guard) checkIdentity(ctx context.Context, check string, user *rbac.User) (*Denial, error) {
	byName, err := g.users.GetByUsername(ctx, user.Username)
	if err != nil {
		return nil, fmt.Errorf("lookup username: %w", err)
	}
	if byName != nil && byName.ID != user.ID {
		return g.denied(deny(check, internal.ErrCodeDuplicateUsername,
			fmt.Sprintf("Username %q is already taken", user.Username))), nil
	}
	byEmail, err := g.users.GetByEmail(ctx, user.Email)
	if err != nil {
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	if byEmail != nil && byEmail.ID != user.ID {
		return g.denied(deny(check, internal.ErrCodeDuplicateEmail,
			fmt.Sprintf("Email %q is already registered", user.Email))), nil
	}
	return nil, nil
}

// checkUserLastAdmin replaces the user with proposed, or removes the users in
// removed, and denies when no administrator account would remain.
func (g *Guard) checkUserLastAdmin(ctx context.Context, check string, code internal.ErrorCode, reason string, proposed *rbac.User, removed ...string) (*Denial, error) {
	breaks, err := g.breaksLastAdmin(ctx, func(s *snapshot) {
		if proposed != nil {
			cp := *proposed
			s.users[proposed.ID] = &cp
		}
		for _, id := range removed {
			delete(s.users, id)
		}
	})
	if err != nil {
		return nil, err
	}
	if breaks {
		return g.denied(deny(check, code, reason)), nil
	}
	return nil, nil
}

// ----------------- LAST ADMIN -----------------

type snapshot struct {
	roles map[string]*rbac.Role
	users map[string]*rbac.User
}

// admins counts active users whose role exists, is active and is an admin role.
func (s *snapshot) admins() int {
	n := 0
	for _, u := range s.users {
		if u.IsActive() && s.roles[u.RoleID].GrantsAdmin() {
			n++
		}
	}
	return n
}

func (g *Guard) load(ctx context.Context) (*snapshot, error) {
	roles, err := g.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	users, err := g.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	s := &snapshot{
		roles: make(map[string]*rbac.Role, len(roles)),
		users: make(map[string]*rbac.User, len(users)),
	}
	for _, r := range roles {
		s.roles[r.ID] = r
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s, nil
}

// breaksLastAdmin reports whether mutate takes the number of admin-capable
// users from at least one to zero.
func (g *Guard) breaksLastAdmin(ctx context.Context, mutate func(*snapshot)) (bool, error) {
	s, err := g.load(ctx)
	if err != nil {
		return false, err
	}
	if s.admins() == 0 {
		return false, nil
	}
	mutate(s)
	return s.admins() == 0, nil
}

func (g *Guard) denied(d *Denial) *Denial {
	metrics.GuardDenials.WithLabelValues(d.Check, string(d.Code)).Inc()
	g.logger.Info("mutation denied",
		"check", d.Check,
		"code", d.Code,
		"reason", d.Reason)
	return d
}
