package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/ability"
	"github.com/frahmantamala/access-control/internal/core/rbac"
	"github.com/frahmantamala/access-control/pkg/clock"
	"github.com/frahmantamala/access-control/pkg/metrics"
)

// Resolver rebuilds the ability of a restored user from current role data.
type Resolver func(ctx context.Context, user *rbac.User) (*ability.Engine, error)

// Manager is the state machine for one session. All transitions happen under
// mu; side effects (store writes, listeners, metrics) run after it is released
// and only for the goroutine that performed the transition.
type Manager struct {
	cfg    Config
	store  Store
	clock  clock.Clock
	logger *slog.Logger

	mu             sync.Mutex
	state          State
	session        *Session
	ability        *ability.Engine
	warning        bool
	warningMinutes int
	// dismissedAt is the minute count at which activity last cleared the
	// warning; it stays cleared until the next minute boundary.
	dismissedAt    int
	expiredReason  ExpiryReason
	generation     uint64
	cancel         context.CancelFunc

	onExpire  []func(Expiry)
	onWarning []func(Warning)
}

func NewManager(cfg Config, store Store, clk clock.Clock, logger *slog.Logger) *Manager {
	if clk == nil {
		clk = clock.System()
	}
	return &Manager{
		cfg:     cfg,
		store:   store,
		clock:   clk,
		logger:  logger,
		state:   StateAnonymous,
		ability: ability.Empty(),
	}
}

// OnExpire registers fn to run once per expired session.
func (m *Manager) OnExpire(fn func(Expiry)) {
	m.mu.Lock()
	m.onExpire = append(m.onExpire, fn)
	m.mu.Unlock()
}

// OnWarning registers fn to run when the warning is raised or its minute count
// changes.
func (m *Manager) OnWarning(fn func(Warning)) {
	m.mu.Lock()
	m.onWarning = append(m.onWarning, fn)
	m.mu.Unlock()
}

// Start moves the manager to StateAuthenticated. It is accepted only from
// StateAnonymous or StateExpired.
func (m *Manager) Start(ctx context.Context, s Session, engine *ability.Engine) error {
	now := m.clock.Now()
	if s.Token == "" || s.User == nil {
		return internal.NewValidationError("Session requires a token and a user", internal.ErrCodeValidationFailed)
	}
	if s.LoginTime.IsZero() {
		s.LoginTime = now
	}
	if !s.ExpiresAt.After(now) {
		return internal.ErrSessionExpired
	}
	s.LastActivity = now
	sess := s.clone()

	m.mu.Lock()
	if m.state == StateAuthenticated {
		m.mu.Unlock()
		return ErrAlreadyAuthenticated
	}
	m.mu.Unlock()

	if err := save(ctx, m.store, sess, sess.ExpiresAt.Sub(now)); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	m.mu.Lock()
	if m.state == StateAuthenticated {
		m.mu.Unlock()
		return ErrAlreadyAuthenticated
	}
	m.authenticateLocked(sess, engine)
	m.mu.Unlock()

	metrics.SessionTransitions.WithLabelValues(string(StateAuthenticated), "login").Inc()
	m.logger.Info("session started",
		"user_id", sess.User.ID,
		"expires_at", sess.ExpiresAt)
	return nil
}

func (m *Manager) authenticateLocked(s *Session, engine *ability.Engine) {
	if engine == nil {
		engine = ability.Empty()
	}
	m.stopLocked()
	m.state = StateAuthenticated
	m.session = s
	m.ability = engine
	m.warning = false
	m.warningMinutes = 0
	m.dismissedAt = 0
	m.expiredReason = ""

	if m.cfg.CheckInterval > 0 {
		pollCtx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		go m.poll(pollCtx, m.generation, m.cfg.CheckInterval)
	}
}

// stopLocked invalidates any running poller.
func (m *Manager) stopLocked() {
	m.generation++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Manager) poll(ctx context.Context, gen uint64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.generation != gen {
				m.mu.Unlock()
				return
			}
			fx := m.evaluateLocked()
			m.mu.Unlock()
			fx.run(context.WithoutCancel(ctx), m)
		}
	}
}

// effects are the side effects of one evaluation, applied outside the lock.
type effects struct {
	expired   *Expiry
	warning   *Warning
	onExpire  []func(Expiry)
	onWarning []func(Warning)
}

func (fx effects) run(ctx context.Context, m *Manager) {
	if fx.expired != nil {
		if err := wipe(ctx, m.store); err != nil {
			m.logger.Error("failed to clear expired session", "error", err)
		}
		metrics.SessionTransitions.WithLabelValues(string(StateExpired), string(fx.expired.Reason)).Inc()
		userID := ""
		if fx.expired.User != nil {
			userID = fx.expired.User.ID
		}
		m.logger.Info("session expired",
			"user_id", userID,
			"reason", fx.expired.Reason)
		for _, fn := range fx.onExpire {
			fn(*fx.expired)
		}
	}
	if fx.warning != nil {
		for _, fn := range fx.onWarning {
			fn(*fx.warning)
		}
	}
}

// evaluateLocked applies the expiry rules at the current time. Absolute expiry
// wins over idle expiry.
func (m *Manager) evaluateLocked() effects {
	if m.state != StateAuthenticated {
		return effects{}
	}
	now := m.clock.Now()
	s := m.session

	if now.After(s.ExpiresAt) {
		return m.expireLocked(ReasonAbsolute, now)
	}
	if m.cfg.IdleTimeout > 0 && now.Sub(s.LastActivity) > m.cfg.IdleTimeout {
		return m.expireLocked(ReasonIdle, now)
	}

	remaining := s.ExpiresAt.Sub(now)
	if remaining > 0 && remaining < m.cfg.WarningThreshold {
		minutes := minutesUntil(remaining)
		if m.warning && m.warningMinutes == minutes {
			return effects{}
		}
		if m.dismissedAt == minutes {
			return effects{}
		}
		m.dismissedAt = 0
		m.warning = true
		m.warningMinutes = minutes
		w := Warning{Active: true, MinutesUntilExpiry: minutes}
		return effects{warning: &w, onWarning: append([]func(Warning){}, m.onWarning...)}
	}
	m.warning = false
	m.warningMinutes = 0
	m.dismissedAt = 0
	return effects{}
}

func (m *Manager) expireLocked(reason ExpiryReason, now time.Time) effects {
	exp := Expiry{
		Token:  m.session.Token,
		User:   m.session.clone().User,
		Reason: reason,
		At:     now,
	}
	m.stopLocked()
	m.state = StateExpired
	m.expiredReason = reason
	m.session = nil
	m.ability = ability.Empty()
	m.warning = false
	m.warningMinutes = 0
	m.dismissedAt = 0
	return effects{expired: &exp, onExpire: append([]func(Expiry){}, m.onExpire...)}
}

// Check evaluates expiry now. Calling it repeatedly or concurrently fires the
// expiry side effects at most once.
func (m *Manager) Check(ctx context.Context) Status {
	m.mu.Lock()
	fx := m.evaluateLocked()
	st := m.statusLocked()
	m.mu.Unlock()
	fx.run(ctx, m)
	return st
}

// Status is Check under a reader's name.
func (m *Manager) Status(ctx context.Context) Status {
	return m.Check(ctx)
}

func (m *Manager) statusLocked() Status {
	st := Status{State: m.state, ExpiredReason: m.expiredReason}
	if m.state == StateAuthenticated {
		st.Session = m.session.clone()
		st.Warning = Warning{Active: m.warning, MinutesUntilExpiry: m.warningMinutes}
	}
	return st
}

// Session returns a copy of the live session.
func (m *Manager) Session(ctx context.Context) (*Session, error) {
	st := m.Check(ctx)
	if err := st.Err(); err != nil {
		return nil, err
	}
	return st.Session, nil
}

// Ability returns the session's engine, or one that denies everything when
// the session is not authenticated.
func (m *Manager) Ability(ctx context.Context) *ability.Engine {
	m.mu.Lock()
	fx := m.evaluateLocked()
	engine := m.ability
	if m.state != StateAuthenticated {
		engine = ability.Empty()
	}
	m.mu.Unlock()
	fx.run(ctx, m)
	return engine
}

// Touch records user activity. It resets the idle clock and clears the warning
// until the next minute boundary, but never moves ExpiresAt.
func (m *Manager) Touch(ctx context.Context) (Status, error) {
	m.mu.Lock()
	fx := m.evaluateLocked()
	if m.state == StateAuthenticated {
		m.session.LastActivity = m.clock.Now()
		if m.warning {
			m.dismissedAt = m.warningMinutes
		}
		m.warning = false
		m.warningMinutes = 0
	}
	st := m.statusLocked()
	m.mu.Unlock()
	fx.run(ctx, m)
	return st, st.Err()
}

// Refresh moves ExpiresAt to expiresAt, which must lie in the future.
func (m *Manager) Refresh(ctx context.Context, expiresAt time.Time) (Status, error) {
	m.mu.Lock()
	fx := m.evaluateLocked()
	if m.state != StateAuthenticated {
		st := m.statusLocked()
		m.mu.Unlock()
		fx.run(ctx, m)
		return st, st.Err()
	}
	now := m.clock.Now()
	if !expiresAt.After(now) {
		st := m.statusLocked()
		m.mu.Unlock()
		fx.run(ctx, m)
		return st, internal.NewValidationError("Expiry must be in the future", internal.ErrCodeValidationFailed)
	}
	m.session.ExpiresAt = expiresAt
	m.session.LastActivity = now
	m.warning = false
	m.warningMinutes = 0
	m.dismissedAt = 0
	s := m.session.clone()
	st := m.statusLocked()
	m.mu.Unlock()
	fx.run(ctx, m)

	// Every key is rewritten so its TTL follows the new expiry.
	if err := save(ctx, m.store, s, expiresAt.Sub(now)); err != nil {
		return st, fmt.Errorf("refresh session: %w", err)
	}
	m.logger.Info("session refreshed", "user_id", s.User.ID, "expires_at", expiresAt)
	return st, nil
}

// Reauthorize swaps the session's engine after a role change.
func (m *Manager) Reauthorize(engine *ability.Engine) {
	if engine == nil {
		engine = ability.Empty()
	}
	m.mu.Lock()
	if m.state == StateAuthenticated {
		m.ability = engine
	}
	m.mu.Unlock()
}

// Logout ends the session immediately and cancels its poller. Logging out an
// anonymous or expired manager is a no-op apart from clearing the store.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	wasAuthenticated := m.state == StateAuthenticated
	var userID string
	if wasAuthenticated {
		userID = m.session.User.ID
	}
	m.stopLocked()
	m.state = StateAnonymous
	m.session = nil
	m.ability = ability.Empty()
	m.warning = false
	m.warningMinutes = 0
	m.dismissedAt = 0
	m.expiredReason = ""
	m.mu.Unlock()

	if err := wipe(ctx, m.store); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if wasAuthenticated {
		metrics.SessionTransitions.WithLabelValues(string(StateAnonymous), "logout").Inc()
		m.logger.Info("session ended", "user_id", userID)
	}
	return nil
}

// Close stops the poller without touching the persisted session.
func (m *Manager) Close() {
	m.mu.Lock()
	m.stopLocked()
	m.mu.Unlock()
}

// Restore rebuilds the session from the store. Stale data moves the manager to
// StateExpired and malformed data degrades it to StateAnonymous; in both cases
// the store is cleared. An error is returned only for store failures or when
// resolve fails.
func (m *Manager) Restore(ctx context.Context, resolve Resolver) (State, error) {
	m.mu.Lock()
	if m.state == StateAuthenticated {
		m.mu.Unlock()
		return StateAuthenticated, nil
	}
	m.mu.Unlock()

	s, err := load(ctx, m.store)
	if err != nil {
		if !errors.Is(err, ErrMalformed) {
			return StateAnonymous, err
		}
		m.logger.Warn("discarding malformed session data", "error", err)
		m.discard(ctx)
		return StateAnonymous, nil
	}
	if s == nil {
		return StateAnonymous, nil
	}

	now := m.clock.Now()
	if now.After(s.ExpiresAt) {
		m.logger.Info("restored session already expired", "user_id", s.User.ID, "expires_at", s.ExpiresAt)
		m.discard(ctx)
		m.mu.Lock()
		if m.state != StateAuthenticated {
			m.state = StateExpired
			m.expiredReason = ReasonAbsolute
		}
		m.mu.Unlock()
		return StateExpired, nil
	}

	engine, err := resolve(ctx, s.User)
	if err != nil {
		m.logger.Warn("could not resolve restored session", "user_id", s.User.ID, "error", err)
		m.discard(ctx)
		return StateAnonymous, err
	}
	s.LastActivity = now

	m.mu.Lock()
	if m.state == StateAuthenticated {
		m.mu.Unlock()
		return StateAuthenticated, nil
	}
	m.authenticateLocked(s, engine)
	m.mu.Unlock()

	metrics.SessionTransitions.WithLabelValues(string(StateAuthenticated), "restore").Inc()
	m.logger.Info("session restored", "user_id", s.User.ID, "expires_at", s.ExpiresAt)
	return StateAuthenticated, nil
}

func (m *Manager) discard(ctx context.Context) {
	if err := wipe(ctx, m.store); err != nil {
		m.logger.Error("failed to clear session data", "error", err)
	}
}
