package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/ability"
	"github.com/frahmantamala/access-control/pkg/clock"
	"github.com/frahmantamala/access-control/pkg/metrics"
)

// Registry owns one Manager per session token. Each manager writes to its own
// key namespace in the shared store.
type Registry struct {
	cfg    Config
	store  Store
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	managers map[string]*Manager
	expired  map[string]time.Time
	onExpire []func(Expiry)
}

func NewRegistry(cfg Config, store Store, clk clock.Clock, logger *slog.Logger) *Registry {
	if clk == nil {
		clk = clock.System()
	}
	return &Registry{
		cfg:      cfg,
		store:    store,
		clock:    clk,
		logger:   logger,
		managers: make(map[string]*Manager),
		expired:  make(map[string]time.Time),
	}
}

// OnExpire registers fn for the expiry of any session the registry tracks,
// including sessions started or restored later.
func (r *Registry) OnExpire(fn func(Expiry)) {
	r.mu.Lock()
	r.onExpire = append(r.onExpire, fn)
	r.mu.Unlock()
}

func (r *Registry) newManager(token string) *Manager {
	m := NewManager(r.cfg, WithPrefix(r.store, token), r.clock, r.logger.With("component", "session"))
	m.OnExpire(func(e Expiry) {
		r.mu.Lock()
		if r.managers[token] == m {
			delete(r.managers, token)
			r.expired[token] = e.At
		}
		r.updateGaugeLocked()
		listeners := append([]func(Expiry){}, r.onExpire...)
		r.mu.Unlock()

		for _, fn := range listeners {
			fn(e)
		}
	})
	return m
}

// Start begins tracking a freshly authenticated session.
func (r *Registry) Start(ctx context.Context, s Session, engine *ability.Engine) (*Manager, error) {
	m := r.newManager(s.Token)
	if err := m.Start(ctx, s, engine); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sweepLocked()
	if prev, ok := r.managers[s.Token]; ok {
		prev.Close()
	}
	r.managers[s.Token] = m
	delete(r.expired, s.Token)
	r.updateGaugeLocked()
	r.mu.Unlock()
	return m, nil
}

// Get returns the manager for token. A token unknown to this process is
// restored from the store through resolve.
func (r *Registry) Get(ctx context.Context, token string, resolve Resolver) (*Manager, error) {
	if token == "" {
		return nil, internal.ErrSessionNotFound
	}

	r.mu.Lock()
	if _, gone := r.expired[token]; gone {
		delete(r.expired, token)
		r.mu.Unlock()
		return nil, internal.ErrSessionExpired
	}
	m, ok := r.managers[token]
	r.mu.Unlock()

	if ok {
		if err := m.Check(ctx).Err(); err != nil {
			r.forget(token, m)
			return nil, err
		}
		return m, nil
	}

	m = r.newManager(token)
	state, err := m.Restore(ctx, resolve)
	if err != nil {
		return nil, err
	}
	switch state {
	case StateExpired:
		return nil, internal.ErrSessionExpired
	case StateAnonymous:
		return nil, internal.ErrSessionNotFound
	}
	if current, _, _ := m.store.Get(ctx, KeyToken); current != token {
		m.Close()
		return nil, internal.ErrSessionNotFound
	}

	r.mu.Lock()
	if existing, ok := r.managers[token]; ok {
		r.mu.Unlock()
		m.Close()
		return existing, nil
	}
	r.managers[token] = m
	r.updateGaugeLocked()
	r.mu.Unlock()
	return m, nil
}

// Logout ends the session for token. Unknown tokens are ignored.
func (r *Registry) Logout(ctx context.Context, token string) error {
	r.mu.Lock()
	m, ok := r.managers[token]
	delete(r.managers, token)
	delete(r.expired, token)
	r.updateGaugeLocked()
	r.mu.Unlock()

	if !ok {
		return wipe(ctx, WithPrefix(r.store, token))
	}
	return m.Logout(ctx)
}

// Each calls fn for every tracked manager.
func (r *Registry) Each(fn func(token string, m *Manager)) {
	r.mu.Lock()
	snapshot := make(map[string]*Manager, len(r.managers))
	for k, v := range r.managers {
		snapshot[k] = v
	}
	r.mu.Unlock()
	for k, v := range snapshot {
		fn(k, v)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

// Close stops every poller. Persisted sessions are kept so a restarted
// process can restore them.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, m := range r.managers {
		m.Close()
		delete(r.managers, token)
	}
	r.updateGaugeLocked()
}

func (r *Registry) forget(token string, m *Manager) {
	r.mu.Lock()
	if r.managers[token] == m {
		delete(r.managers, token)
	}
	delete(r.expired, token)
	r.updateGaugeLocked()
	r.mu.Unlock()
}

// sweepLocked drops expiry markers nobody asked about within the idle window.
func (r *Registry) sweepLocked() {
	horizon := r.cfg.IdleTimeout
	if horizon <= 0 {
		horizon = internal.DefaultIdleTimeout
	}
	now := r.clock.Now()
	for token, at := range r.expired {
		if now.Sub(at) > horizon {
			delete(r.expired, token)
		}
	}
}

func (r *Registry) updateGaugeLocked() {
	metrics.ActiveSessions.Set(float64(len(r.managers)))
}
