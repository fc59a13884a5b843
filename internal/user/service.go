package user

import (
	"context"
	"log/slog"
	"strings"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/core/common/validation"
	"github.com/frahmantamala/access-control/internal/core/events"
	"github.com/frahmantamala/access-control/internal/core/rbac"
	"github.com/frahmantamala/access-control/internal/guard"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	users      rbac.UserStore
	roles      rbac.RoleStore
	guard      *guard.Guard
	events     events.Publisher
	logger     *slog.Logger
	bcryptCost int
}

func NewService(users rbac.UserStore, roles rbac.RoleStore, g *guard.Guard, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		users:      users,
		roles:      roles,
		guard:      g,
		events:     publisher,
		logger:     logger,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// WithBcryptCost overrides the password hashing cost.
func (s *Service) WithBcryptCost(cost int) *Service {
	if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
		s.bcryptCost = cost
	}
	return s
}

func (s *Service) List(ctx context.Context) ([]UserResponse, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		s.logger.Error("failed to list users", "error", err)
		return nil, internal.NewInternalError("Failed to load users", err)
	}
	roles, err := s.roleNames(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, ToResponse(u, roles[u.RoleID]))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (*UserResponse, error) {
	u, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.respond(ctx, u)
}

func (s *Service) Create(ctx context.Context, actor events.Actor, req CreateUserRequest) (*UserResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		s.logger.Error("failed to hash password", "error", err)
		return nil, internal.NewInternalError("Failed to create user", err)
	}
	status := rbac.UserStatusActive
	if req.Status != "" {
		status = rbac.UserStatus(req.Status)
	}
	u := &rbac.User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		FullName:     strings.TrimSpace(req.FullName),
		PasswordHash: string(hash),
		Status:       status,
		RoleID:       req.RoleID,
	}

	unlock := s.guard.Lock()
	defer unlock()
	if err := s.check(s.guard.CheckUserCreate(ctx, u)); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		s.logger.Error("failed to create user", "username", u.Username, "error", err)
		return nil, internal.NewInternalError("Failed to create user", err)
	}

	s.logger.Info("user created", "user_id", u.ID, "role_id", u.RoleID, "actor", actor.UserID)
	s.publish(ctx, events.NewSecurityEvent(events.EventTypeUserCreated, actor, u.ID, u.Username).
		Diff("email", "", u.Email).
		Diff("role_id", "", u.RoleID).
		Diff("status", "", string(u.Status)))
	return s.respond(ctx, u)
}

func (s *Service) Update(ctx context.Context, actor events.Actor, id string, req UpdateUserRequest) (*UserResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if d := s.guard.CheckSelfModification(actor.UserID, id, guard.OpEdit); d != nil {
		return nil, d.AppError()
	}
	var passwordHash string
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), s.bcryptCost)
		if err != nil {
			s.logger.Error("failed to hash password", "error", err)
			return nil, internal.NewInternalError("Failed to update user", err)
		}
		passwordHash = string(hash)
	}

	unlock := s.guard.Lock()
	defer unlock()
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	proposed := *current
	if req.Username != nil {
		proposed.Username = strings.TrimSpace(*req.Username)
	}
	if req.Email != nil {
		proposed.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.FullName != nil {
		proposed.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Status != nil {
		proposed.Status = rbac.UserStatus(*req.Status)
	}
	passwordChanged := passwordHash != ""
	if passwordChanged {
		proposed.PasswordHash = passwordHash
	}

	if err := s.check(s.guard.CheckUserUpdate(ctx, actor.UserID, &proposed)); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, &proposed); err != nil {
		s.logger.Error("failed to update user", "user_id", id, "error", err)
		return nil, internal.NewInternalError("Failed to update user", err)
	}

	s.logger.Info("user updated", "user_id", id, "actor", actor.UserID)
	event := events.NewSecurityEvent(events.EventTypeUserUpdated, actor, proposed.ID, proposed.Username).
		Diff("username", current.Username, proposed.Username).
		Diff("email", current.Email, proposed.Email).
		Diff("full_name", current.FullName, proposed.FullName).
		Diff("status", string(current.Status), string(proposed.Status))
	if passwordChanged {
		event.WithChanges(events.FieldChange{Field: "password", OldValue: "[redacted]", NewValue: "[redacted]"})
	}
	s.publish(ctx, event)
	return s.respond(ctx, &proposed)
}

func (s *Service) Delete(ctx context.Context, actor events.Actor, id string) error {
	unlock := s.guard.Lock()
	defer unlock()
	if err := s.check(s.guard.CheckUserDelete(ctx, actor.UserID, id)); err != nil {
		return err
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete user", "user_id", id, "error", err)
		return internal.NewInternalError("Failed to delete user", err)
	}

	s.logger.Info("user deleted", "user_id", id, "actor", actor.UserID)
	s.publish(ctx, events.NewSecurityEvent(events.EventTypeUserDeleted, actor, id, current.Username))
	return nil
}

func (s *Service) Deactivate(ctx context.Context, actor events.Actor, id string) (*UserResponse, error) {
	unlock := s.guard.Lock()
	defer unlock()
	if err := s.check(s.guard.CheckUserDeactivate(ctx, actor.UserID, id)); err != nil {
		return nil, err
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == rbac.UserStatusInactive {
		return s.respond(ctx, current)
	}

	proposed := *current
	proposed.Status = rbac.UserStatusInactive
	if err := s.users.Update(ctx, &proposed); err != nil {
		s.logger.Error("failed to deactivate user", "user_id", id, "error", err)
		return nil, internal.NewInternalError("Failed to deactivate user", err)
	}

	s.logger.Info("user deactivated", "user_id", id, "actor", actor.UserID)
	s.publish(ctx, events.NewSecurityEvent(events.EventTypeUserUpdated, actor, id, current.Username).
		Diff("status", string(current.Status), string(proposed.Status)))
	return s.respond(ctx, &proposed)
}

func (s *Service) ChangeRole(ctx context.Context, actor events.Actor, id string, req ChangeRoleRequest) (*UserResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	unlock := s.guard.Lock()
	defer unlock()
	if err := s.check(s.guard.CheckUserRoleChange(ctx, actor.UserID, id, req.RoleID)); err != nil {
		return nil, err
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.RoleID == req.RoleID {
		return s.respond(ctx, current)
	}

	proposed := *current
	proposed.RoleID = req.RoleID
	if err := s.users.Update(ctx, &proposed); err != nil {
		s.logger.Error("failed to change user role", "user_id", id, "role_id", req.RoleID, "error", err)
		return nil, internal.NewInternalError("Failed to change role", err)
	}

	s.logger.Info("user role changed", "user_id", id, "from", current.RoleID, "to", req.RoleID, "actor", actor.UserID)
	s.publish(ctx, events.NewSecurityEvent(events.EventTypeUserRoleChanged, actor, id, current.Username).
		Diff("role_id", current.RoleID, proposed.RoleID).
		WithReason(req.Reason))
	return s.respond(ctx, &proposed)
}

func (s *Service) load(ctx context.Context, id string) (*rbac.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to get user", "user_id", id, "error", err)
		return nil, internal.NewInternalError("Failed to load user", err)
	}
	if u == nil {
		return nil, internal.ErrUserNotFound
	}
	return u, nil
}

func (s *Service) respond(ctx context.Context, u *rbac.User) (*UserResponse, error) {
	r, err := s.roles.GetByID(ctx, u.RoleID)
	if err != nil {
		s.logger.Error("failed to get role", "role_id", u.RoleID, "error", err)
		return nil, internal.NewInternalError("Failed to load role", err)
	}
	resp := ToResponse(u, r)
	return &resp, nil
}

func (s *Service) roleNames(ctx context.Context) (map[string]*rbac.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		s.logger.Error("failed to list roles", "error", err)
		return nil, internal.NewInternalError("Failed to load roles", err)
	}
	out := make(map[string]*rbac.Role, len(roles))
	for _, r := range roles {
		out[r.ID] = r
	}
	return out, nil
}

func (s *Service) check(d *guard.Denial, err error) error {
	if err != nil {
		s.logger.Error("guard check failed", "error", err)
		return internal.NewInternalError("Failed to validate change", err)
	}
	if d != nil {
		return d.AppError()
	}
	return nil
}

func (s *Service) publish(ctx context.Context, e *events.SecurityEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSync(ctx, e); err != nil {
		s.logger.Warn("event handlers failed", "event_type", e.EventType(), "error", err)
	}
}
