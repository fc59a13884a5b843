package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/ability"
	"github.com/frahmantamala/access-control/internal/core/common/validation"
	"github.com/frahmantamala/access-control/internal/core/events"
	"github.com/frahmantamala/access-control/internal/core/rbac"
	"github.com/frahmantamala/access-control/internal/permission"
	"github.com/frahmantamala/access-control/internal/session"
	"github.com/frahmantamala/access-control/pkg/clock"
	"golang.org/x/crypto/bcrypt"
)

// Service authenticates users and owns the mapping from tokens to sessions.
type Service struct {
	users    rbac.UserStore
	roles    rbac.RoleStore
	registry *session.Registry
	tokens   TokenIssuer
	events   events.Publisher
	clock    clock.Clock
	ttl      time.Duration
	logger   *slog.Logger

	bcryptCost int
	dummyOnce  sync.Once
	dummyHash  []byte
}

// NewService creates a new auth service. Session expiry observed by the
// registry is reported as a logout event.
func NewService(users rbac.UserStore, roles rbac.RoleStore, registry *session.Registry, tokens TokenIssuer,
	publisher events.Publisher, clk clock.Clock, ttl time.Duration, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.System()
	}
	if ttl <= 0 {
		ttl = internal.DefaultSessionTTL
	}
	s := &Service{
		users:      users,
		roles:      roles,
		registry:   registry,
		tokens:     tokens,
		events:     publisher,
		clock:      clk,
		ttl:        ttl,
		logger:     logger,
		bcryptCost: bcrypt.DefaultCost,
	}
	registry.OnExpire(s.onExpire)
	return s
}

// WithBcryptCost sets the cost of the hash compared against when the
// identifier is unknown, keeping the response time independent of it.
func (s *Service) WithBcryptCost(cost int) *Service {
	if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
		s.bcryptCost = cost
	}
	return s
}

// Subscribe keeps live sessions in step with role and user changes.
func (s *Service) Subscribe(bus *events.EventBus) {
	bus.Subscribe(s.handleRoleChange, events.EventTypeRoleUpdated, events.EventTypeRoleDeleted)
	bus.Subscribe(s.handleUserChange,
		events.EventTypeUserUpdated, events.EventTypeUserDeleted, events.EventTypeUserRoleChanged)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	u, err := s.lookup(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		s.logger.Error("failed to load user for login", "error", err)
		return nil, internal.NewInternalError("Failed to sign in", err)
	}
	if u == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(req.Password))
		s.logger.Info("login rejected: unknown identifier")
		return nil, internal.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Info("login rejected: wrong password", "user_id", u.ID)
		return nil, internal.ErrInvalidCredentials
	}
	if !u.IsActive() {
		s.logger.Info("login rejected: user not active", "user_id", u.ID, "status", u.Status)
		return nil, internal.ErrUserInactive
	}

	engine, err := s.Resolve(ctx, u)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)
	token, err := s.tokens.Issue(u.ID, expiresAt)
	if err != nil {
		s.logger.Error("failed to issue token", "user_id", u.ID, "error", err)
		return nil, internal.NewInternalError("Failed to sign in", err)
	}

	snapshot := *u
	snapshot.PasswordHash = ""
	if _, err := s.registry.Start(ctx, session.Session{
		Token:        token,
		User:         &snapshot,
		LoginTime:    now,
		ExpiresAt:    expiresAt,
		LastActivity: now,
	}, engine); err != nil {
		s.logger.Error("failed to start session", "user_id", u.ID, "error", err)
		return nil, internal.NewInternalError("Failed to sign in", err)
	}

	if err := s.users.TouchLastLogin(ctx, u.ID, now); err != nil {
		s.logger.Warn("failed to record last login", "user_id", u.ID, "error", err)
	}

	s.logger.Info("user signed in", "user_id", u.ID, "expires_at", expiresAt)
	client := internal.ClientFromContext(ctx)
	s.publish(ctx, events.NewSecurityEvent(events.EventTypeSessionLogin,
		events.Actor{UserID: u.ID, Username: u.Username}, u.ID, u.Username).
		WithClient(client.IPAddress, client.UserAgent))

	return &LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User: SessionUser{
			ID:       u.ID,
			Username: u.Username,
			Email:    u.Email,
			FullName: u.FullName,
			RoleID:   u.RoleID,
		},
		Permissions: engine.Index().Keys(),
		Rules:       engine.Rules(),
	}, nil
}

// Logout ends the principal's session.
func (s *Service) Logout(ctx context.Context, p *Principal) error {
	if err := s.registry.Logout(ctx, p.Token); err != nil {
		s.logger.Error("failed to clear session", "user_id", p.User.ID, "error", err)
		return internal.NewInternalError("Failed to sign out", err)
	}
	client := internal.ClientFromContext(ctx)
	s.publish(ctx, events.NewSecurityEvent(events.EventTypeSessionLogout, p.Actor(), p.User.ID, p.User.Username).
		WithClient(client.IPAddress, client.UserAgent))
	return nil
}

// Authenticate maps a bearer token onto a live session.
func (s *Service) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, internal.ErrSessionNotFound
	}
	m, err := s.registry.Get(ctx, token, s.Resolve)
	if err != nil {
		return nil, err
	}
	sess, err := m.Session(ctx)
	if err != nil {
		return nil, err
	}
	if sess.User.ID != claims.UserID {
		s.logger.Warn("token subject does not match session", "user_id", sess.User.ID, "subject", claims.UserID)
		return nil, internal.ErrSessionNotFound
	}
	return &Principal{
		Token:   token,
		User:    sess.User,
		Ability: m.Ability(ctx),
		Session: m,
	}, nil
}

// Resolve builds the ability engine for u from the current state of the
// stores. It fails when the user or their role can no longer hold a session.
func (s *Service) Resolve(ctx context.Context, u *rbac.User) (*ability.Engine, error) {
	current, err := s.users.GetByID(ctx, u.ID)
	if err != nil {
		return nil, internal.NewInternalError("Failed to load user", err)
	}
	if current == nil {
		return nil, internal.ErrUserNotFound
	}
	if !current.IsActive() {
		return nil, internal.ErrUserInactive
	}

	r, err := s.roles.GetByID(ctx, current.RoleID)
	if err != nil {
		return nil, internal.NewInternalError("Failed to load role", err)
	}
	if r == nil {
		return nil, internal.ErrRoleNotFound
	}
	if !r.IsActive {
		return nil, internal.ErrRoleInactive
	}
	return ability.New(permission.NewIndex(r.Permissions)), nil
}

func (s *Service) Status(ctx context.Context, p *Principal) SessionResponse {
	return sessionResponse(p.Session.Status(ctx), p.Session.Ability(ctx))
}

// Activity records user activity on the principal's session.
func (s *Service) Activity(ctx context.Context, p *Principal) (SessionResponse, error) {
	st, err := p.Session.Touch(ctx)
	if err != nil {
		return SessionResponse{}, err
	}
	return sessionResponse(st, p.Session.Ability(ctx)), nil
}

// Refresh extends the principal's session by one full TTL from now.
func (s *Service) Refresh(ctx context.Context, p *Principal) (SessionResponse, error) {
	st, err := p.Session.Refresh(ctx, s.clock.Now().Add(s.ttl))
	if err != nil {
		if _, ok := internal.IsAppError(err); ok {
			return SessionResponse{}, err
		}
		s.logger.Error("failed to refresh session", "user_id", p.User.ID, "error", err)
		return SessionResponse{}, internal.NewInternalError("Failed to refresh session", err)
	}
	return sessionResponse(st, p.Session.Ability(ctx)), nil
}

func (s *Service) lookup(ctx context.Context, identifier string) (*rbac.User, error) {
	u, err := s.users.GetByUsername(ctx, identifier)
	if err != nil || u != nil {
		return u, err
	}
	if strings.Contains(identifier, "@") {
		return s.users.GetByEmail(ctx, identifier)
	}
	return nil, nil
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.bcryptCost)
	})
	return s.dummyHash
}

func (s *Service) onExpire(e session.Expiry) {
	if e.User == nil {
		return
	}
	s.publish(context.Background(), events.NewSecurityEvent(events.EventTypeSessionLogout,
		events.Actor{UserID: e.User.ID, Username: e.User.Username}, e.User.ID, e.User.Username).
		WithReason(fmt.Sprintf("Session expired (%s)", e.Reason)))
}

func (s *Service) handleRoleChange(ctx context.Context, _ events.Event) error {
	s.registry.Each(func(token string, m *session.Manager) {
		s.reauthorize(ctx, token, m)
	})
	return nil
}

func (s *Service) handleUserChange(ctx context.Context, e events.Event) error {
	se, ok := e.(*events.SecurityEvent)
	if !ok {
		return nil
	}
	s.registry.Each(func(token string, m *session.Manager) {
		if sess, err := m.Session(ctx); err == nil && sess.User.ID == se.EntityID {
			s.reauthorize(ctx, token, m)
		}
	})
	return nil
}

// reauthorize recomputes the engine of one session, ending it when the user
// may no longer hold a session at all.
func (s *Service) reauthorize(ctx context.Context, token string, m *session.Manager) {
	sess, err := m.Session(ctx)
	if err != nil {
		return
	}
	engine, resolveErr := s.Resolve(ctx, sess.User)
	if resolveErr == nil {
		m.Reauthorize(engine)
		s.logger.Info("session reauthorized", "user_id", sess.User.ID, "permissions", engine.Index().Len())
		return
	}
	if internal.AsAppError(resolveErr).Code == internal.ErrCodeInternal {
		s.logger.Error("failed to reauthorize session", "user_id", sess.User.ID, "error", resolveErr)
		return
	}

	if err := s.registry.Logout(ctx, token); err != nil {
		s.logger.Error("failed to revoke session", "user_id", sess.User.ID, "error", err)
		return
	}
	reason := internal.AsAppError(resolveErr).Message
	s.logger.Info("session revoked", "user_id", sess.User.ID, "reason", reason)
	s.publish(ctx, events.NewSecurityEvent(events.EventTypeSessionLogout,
		events.Actor{UserID: sess.User.ID, Username: sess.User.Username}, sess.User.ID, sess.User.Username).
		WithReason("Session revoked: "+reason))
}

func (s *Service) publish(ctx context.Context, e *events.SecurityEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSync(ctx, e); err != nil {
		s.logger.Warn("event handlers failed", "event_type", e.EventType(), "error", err)
	}
}
