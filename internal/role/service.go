package role

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/core/common/validation"
	"github.com/frahmantamala/access-control/internal/core/events"
	"github.com/frahmantamala/access-control/internal/core/rbac"
	"github.com/frahmantamala/access-control/internal/guard"
	"github.com/google/uuid"
)

type Service struct {
	roles  rbac.RoleStore
	users  rbac.UserStore
	guard  *guard.Guard
	events events.Publisher
	logger *slog.Logger
}

func NewService(roles rbac.RoleStore, users rbac.UserStore, g *guard.Guard, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		roles:  roles,
		users:  users,
		guard:  g,
		events: publisher,
		logger: logger,
	}
}

func (s *Service) List(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		s.logger.Error("failed to list roles", "error", err)
		return nil, internal.NewInternalError("Failed to load roles", err)
	}
	out := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		count, err := s.users.CountByRole(ctx, r.ID)
		if err != nil {
			s.logger.Error("failed to count role users", "role_id", r.ID, "error", err)
			return nil, internal.NewInternalError("Failed to load roles", err)
		}
		out = append(out, RoleResponse{Role: r, UserCount: count})
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (*rbac.Role, error) {
	r, err := s.roles.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to get role", "role_id", id, "error", err)
		return nil, internal.NewInternalError("Failed to load role", err)
	}
	if r == nil {
		return nil, internal.ErrRoleNotFound
	}
	return r, nil
}

func (s *Service) Create(ctx context.Context, actor events.Actor, req CreateRoleRequest) (*rbac.Role, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	r := &rbac.Role{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Key:         req.Key,
		Description: req.Description,
		IsActive:    req.IsActive == nil || *req.IsActive,
		IsAdmin:     req.IsAdmin,
		Permissions: dedupe(req.Permissions),
		CreatedBy:   actor.UserID,
		UpdatedBy:   actor.UserID,
	}

	unlock := s.guard.Lock()
	defer unlock()
	if err := s.check(s.guard.CheckRoleCreate(ctx, r)); err != nil {
		return nil, err
	}
	if err := s.roles.Create(ctx, r); err != nil {
		s.logger.Error("failed to create role", "key", r.Key, "error", err)
		return nil, internal.NewInternalError("Failed to create role", err)
	}

	s.logger.Info("role created", "role_id", r.ID, "key", r.Key, "actor", actor.UserID)
	s.publish(ctx, events.NewSecurityEvent(events.EventTypeRoleCreated, actor, r.ID, r.Name).
		Diff("key", "", r.Key).
		Diff("permissions", "", strings.Join(r.Permissions, ",")).
		Diff("is_admin", "", strconv.FormatBool(r.IsAdmin)))
	return r, nil
}

func (s *Service) Update(ctx context.Context, actor events.Actor, id string, req UpdateRoleRequest) (*rbac.Role, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	unlock := s.guard.Lock()
	defer unlock()
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	proposed := *current
	if req.Name != nil {
		proposed.Name = strings.TrimSpace(*req.Name)
	}
	if req.Key != nil {
		proposed.Key = *req.Key
	}
	if req.Description != nil {
		proposed.Description = *req.Description
	}
	if req.IsActive != nil {
		proposed.IsActive = *req.IsActive
	}
	if req.IsAdmin != nil {
		proposed.IsAdmin = *req.IsAdmin
	}
	if req.Permissions != nil {
		proposed.Permissions = dedupe(req.Permissions)
	}
	proposed.UpdatedBy = actor.UserID

	if current.IsSystem && proposed.Key != current.Key {
		return nil, internal.ErrModificationNotAllowed.WithMessage(
			fmt.Sprintf("Cannot change the key of system role %q", current.Name))
	}

	if err := s.check(s.guard.CheckRoleUpdate(ctx, &proposed)); err != nil {
		return nil, err
	}
	if err := s.roles.Update(ctx, &proposed); err != nil {
		s.logger.Error("failed to update role", "role_id", id, "error", err)
		return nil, internal.NewInternalError("Failed to update role", err)
	}

	s.logger.Info("role updated", "role_id", id, "actor", actor.UserID)
	s.publish(ctx, events.NewSecurityEvent(events.EventTypeRoleUpdated, actor, proposed.ID, proposed.Name).
		Diff("name", current.Name, proposed.Name).
		Diff("key", current.Key, proposed.Key).
		Diff("description", current.Description, proposed.Description).
		Diff("is_active", strconv.FormatBool(current.IsActive), strconv.FormatBool(proposed.IsActive)).
		Diff("is_admin", strconv.FormatBool(current.IsAdmin), strconv.FormatBool(proposed.IsAdmin)).
		Diff("permissions", strings.Join(current.Permissions, ","), strings.Join(proposed.Permissions, ",")))
	return &proposed, nil
}

// Delete removes a role. Users still holding it are moved to reassignTo
// first; without a target the deletion is refused while users remain.
//
// Events are published only once the store has committed the whole change.
func (s *Service) Delete(ctx context.Context, actor events.Actor, id, reassignTo string) (*DeleteRoleResponse, error) {
	unlock := s.guard.Lock()
	defer unlock()
	if err := s.check(s.guard.CheckRoleDelete(ctx, id, reassignTo)); err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := &DeleteRoleResponse{ID: id}
	var moved []*rbac.User
	if reassignTo == "" {
		if err := s.roles.Delete(ctx, id); err != nil {
			s.logger.Error("failed to delete role", "role_id", id, "error", err)
			return nil, internal.NewInternalError("Failed to delete role", err)
		}
	} else {
		moved, err = s.users.ListByRole(ctx, id)
		if err != nil {
			s.logger.Error("failed to list role users", "role_id", id, "error", err)
			return nil, internal.NewInternalError("Failed to delete role", err)
		}
		if _, err := s.roles.DeleteReassigning(ctx, id, reassignTo); err != nil {
			s.logger.Error("failed to delete role", "role_id", id, "reassign_to", reassignTo, "error", err)
			return nil, internal.NewInternalError("Failed to delete role", err)
		}
		resp.ReassignedTo = reassignTo
		resp.ReassignedUsers = len(moved)
	}

	s.logger.Info("role deleted", "role_id", id, "reassigned_users", resp.ReassignedUsers, "actor", actor.UserID)
	for _, u := range moved {
		s.publish(ctx, events.NewSecurityEvent(events.EventTypeUserRoleChanged, actor, u.ID, u.Username).
			Diff("role_id", id, reassignTo).
			WithReason(fmt.Sprintf("Role %q deleted", current.Name)))
	}
	event := events.NewSecurityEvent(events.EventTypeRoleDeleted, actor, id, current.Name)
	if resp.ReassignedUsers > 0 {
		event.WithReason(fmt.Sprintf("%d user(s) reassigned to %s", resp.ReassignedUsers, reassignTo))
	}
	s.publish(ctx, event)
	return resp, nil
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

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
