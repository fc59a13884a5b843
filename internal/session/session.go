// Package session tracks the lifetime of an authenticated session: absolute
// expiry, idle timeout and the pre-expiry warning.
package session

import (
	"errors"
	"time"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/core/rbac"
)

type State string

const (
	StateAnonymous     State = "anonymous"
	StateAuthenticated State = "authenticated"
	StateExpired       State = "expired"
)

type ExpiryReason string

const (
	ReasonAbsolute ExpiryReason = "absolute"
	ReasonIdle     ExpiryReason = "idle"
)

var ErrAlreadyAuthenticated = errors.New("session already authenticated")

// Session is the derived session record. It is never persisted as a single
// entity; see the store keys.
type Session struct {
	Token        string     `json:"token"`
	User         *rbac.User `json:"user"`
	LoginTime    time.Time  `json:"login_time"`
	ExpiresAt    time.Time  `json:"expires_at"`
	LastActivity time.Time  `json:"last_activity"`
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	if s.User != nil {
		u := *s.User
		cp.User = &u
	}
	return &cp
}

// Warning is raised while the session is inside the warning threshold.
type Warning struct {
	Active             bool `json:"active"`
	MinutesUntilExpiry int  `json:"minutes_until_expiry"`
}

// Expiry describes a transition to StateExpired.
type Expiry struct {
	Token  string       `json:"token"`
	User   *rbac.User   `json:"user,omitempty"`
	Reason ExpiryReason `json:"reason"`
	At     time.Time    `json:"at"`
}

// Status is a point-in-time view of a Manager.
type Status struct {
	State         State        `json:"state"`
	Session       *Session     `json:"session,omitempty"`
	Warning       Warning      `json:"warning"`
	ExpiredReason ExpiryReason `json:"expired_reason,omitempty"`
}

// Err maps a non-authenticated status onto the error taxonomy.
func (s Status) Err() error {
	switch s.State {
	case StateAuthenticated:
		return nil
	case StateExpired:
		return internal.ErrSessionExpired
	default:
		return internal.ErrSessionNotFound
	}
}

type Config struct {
	IdleTimeout      time.Duration
	WarningThreshold time.Duration
	CheckInterval    time.Duration
}

func DefaultConfig() Config {
	return Config{
		IdleTimeout:      internal.DefaultIdleTimeout,
		WarningThreshold: internal.DefaultWarningThreshold,
		CheckInterval:    internal.DefaultCheckInterval,
	}
}

func ConfigFrom(cfg internal.SessionConfig) Config {
	return Config{
		IdleTimeout:      cfg.IdleTimeout,
		WarningThreshold: cfg.WarningThreshold,
		CheckInterval:    cfg.CheckInterval,
	}
}

// minutesUntil rounds a positive duration up to whole minutes.
func minutesUntil(d time.Duration) int {
	m := int(d / time.Minute)
	if d%time.Minute != 0 {
		m++
	}
	return m
}
