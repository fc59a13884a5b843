package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/frahmantamala/access-control/internal/core/rbac"
)

// Persisted session keys.
const (
	KeyToken     = "auth_token"
	KeyUser      = "auth_user"
	KeyExpiresAt = "auth_expires_at"
	KeyLoginTime = "auth_login_time"
)

var sessionKeys = []string{KeyToken, KeyUser, KeyExpiresAt, KeyLoginTime}

var ErrMalformed = errors.New("malformed session data")

// Store is the key-value persistence the manager writes its session to.
// Get reports ok=false for a missing key. A ttl of zero means no expiry.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Remove(ctx context.Context, keys ...string) error
}

func save(ctx context.Context, store Store, s *Session, ttl time.Duration) error {
	user, err := json.Marshal(s.User)
	if err != nil {
		return fmt.Errorf("encode session user: %w", err)
	}
	values := map[string]string{
		KeyToken:     s.Token,
		KeyUser:      string(user),
		KeyExpiresAt: s.ExpiresAt.UTC().Format(time.RFC3339Nano),
		KeyLoginTime: s.LoginTime.UTC().Format(time.RFC3339Nano),
	}
	for _, k := range sessionKeys {
		if err := store.Set(ctx, k, values[k], ttl); err != nil {
			return fmt.Errorf("persist %s: %w", k, err)
		}
	}
	return nil
}

// load reads a persisted session. It returns (nil, nil) when no token is
// stored and an error wrapping ErrMalformed when the values cannot be decoded.
func load(ctx context.Context, store Store) (*Session, error) {
	values := make(map[string]string, len(sessionKeys))
	for _, k := range sessionKeys {
		v, ok, err := store.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", k, err)
		}
		if !ok {
			if k == KeyToken {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: missing %s", ErrMalformed, k)
		}
		values[k] = v
	}
	if values[KeyToken] == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	var user rbac.User
	if err := json.Unmarshal([]byte(values[KeyUser]), &user); err != nil {
		return nil, fmt.Errorf("%w: user: %v", ErrMalformed, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: user without id", ErrMalformed)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, values[KeyExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("%w: expires at: %v", ErrMalformed, err)
	}
	loginTime, err := time.Parse(time.RFC3339Nano, values[KeyLoginTime])
	if err != nil {
		return nil, fmt.Errorf("%w: login time: %v", ErrMalformed, err)
	}
	return &Session{
		Token:     values[KeyToken],
		User:      &user,
		LoginTime: loginTime,
		ExpiresAt: expiresAt,
	}, nil
}

func wipe(ctx context.Context, store Store) error {
	return store.Remove(ctx, sessionKeys...)
}

// MemoryStore keeps values in process. TTLs are ignored; the manager
// re-validates expiry on restore.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.values, k)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

type prefixed struct {
	prefix string
	next   Store
}

// WithPrefix namespaces every key as "<prefix>:<key>".
func WithPrefix(store Store, prefix string) Store {
	if prefix == "" {
		return store
	}
	return prefixed{prefix: prefix + ":", next: store}
}

func (p prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.next.Get(ctx, p.prefix+key)
}

func (p prefixed) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return p.next.Set(ctx, p.prefix+key, value, ttl)
}

func (p prefixed) Remove(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = p.prefix + k
	}
	return p.next.Remove(ctx, full...)
}
