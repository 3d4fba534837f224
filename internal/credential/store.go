// Package credential holds the bearer token and per-role user record.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/appetiteclub/apt"

	"github.com/appetiteclub/cafesync/internal/retry"
	"github.com/appetiteclub/cafesync/pkg/enums/role"
)

const (
	TokenKey          = "token"
	LoginTimestampKey = "loginTimestamp"
)

var (
	// ErrPersistence is returned when the write-verify loop is exhausted.
	ErrPersistence = errors.New("credential persistence failure")
	// ErrUnknownUserKey is returned for user keys not owned by any role.
	ErrUnknownUserKey = errors.New("unknown user key")
)

// DefaultClearedWindow is how long RecentlyCleared stays true after Clear.
const DefaultClearedWindow = 3 * time.Second

// Credentials is the persisted session as seen by callers.
type Credentials struct {
	Token    string
	Role     role.Role
	UserKey  string
	User     json.RawMessage
	LoggedAt time.Time
}

// AllKeys lists every key the store owns.
func AllKeys() []string {
	keys := []string{TokenKey, LoginTimestampKey}
	for _, r := range role.All {
		keys = append(keys, r.UserKey())
	}
	return keys
}

// Store is the only component reading or writing session keys.
type Store struct {
	kv     KV
	logger apt.Logger
	policy retry.Policy
	window time.Duration
	now    func() time.Time

	// writeMu serializes Set and Clear so callers never observe a token
	// without its user record beyond one write-verify pass.
	writeMu sync.Mutex

	mu        sync.RWMutex
	clearedAt time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithRetryPolicy overrides the write-verify retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Store) { s.policy = p }
}

// WithClearedWindow overrides the RecentlyCleared validity window.
func WithClearedWindow(d time.Duration) Option {
	return func(s *Store) { s.window = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(kv KV, logger apt.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	s := &Store{
		kv:     kv,
		logger: logger,
		policy: retry.DefaultPolicy,
		window: DefaultClearedWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set writes token, user record and login timestamp, then reads them back.
// A mismatch is retried; exhaustion restores the previous values and returns
// an error wrapping ErrPersistence.
func (s *Store) Set(ctx context.Context, token, userKey string, user json.RawMessage) error {
	if role.ByUserKey(userKey) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownUserKey, userKey)
	}
	if len(user) == 0 {
		user = json.RawMessage("{}")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	previous, err := s.snapshot(ctx)
	if err != nil {
		return fmt.Errorf("%w: read previous session: %v", ErrPersistence, err)
	}

	want := map[string]string{
		TokenKey:          token,
		userKey:           string(user),
		LoginTimestampKey: strconv.FormatInt(s.now().UnixMilli(), 10),
	}

	res := retry.Do(ctx, s.policy, func(attempt int) error {
		if err := s.write(ctx, want); err != nil {
			s.logger.Debug("credential write failed", "attempt", attempt, "error", err)
			return err
		}
		if err := s.verify(ctx, want); err != nil {
			s.logger.Debug("credential verify failed", "attempt", attempt, "error", err)
			return err
		}
		return nil
	})
	if res.OK() {
		if err := s.kv.Delete(ctx, otherUserKeys(userKey)...); err != nil {
			s.logger.Error("cannot remove stale user records", "error", err)
		}
		s.logger.Debug("credentials stored", "user_key", userKey, "attempts", res.Attempts)
		return nil
	}

	s.logger.Error("credential write-verify exhausted", "attempts", res.Attempts, "error", res.LastErr)
	if err := s.restore(context.WithoutCancel(ctx), previous, want); err != nil {
		s.logger.Error("cannot restore previous credentials", "error", err)
	}
	return fmt.Errorf("%w: %v", ErrPersistence, res.Err())
}

// Get returns the current credentials, or nil when no token is stored.
func (s *Store) Get(ctx context.Context) (*Credentials, error) {
	token, ok, err := s.kv.Get(ctx, TokenKey)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	if !ok || token == "" {
		return nil, nil
	}

	creds := &Credentials{Token: token}
	for _, r := range role.All {
		v, ok, err := s.kv.Get(ctx, r.UserKey())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", r.UserKey(), err)
		}
		if ok {
			creds.Role = r
			creds.UserKey = r.UserKey()
			creds.User = json.RawMessage(v)
			break
		}
	}

	if ts, ok, err := s.kv.Get(ctx, LoginTimestampKey); err == nil && ok {
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			creds.LoggedAt = time.UnixMilli(ms)
		}
	}

	return creds, nil
}

// Token returns the stored bearer token or an empty string.
func (s *Store) Token(ctx context.Context) (string, error) {
	token, ok, err := s.kv.Get(ctx, TokenKey)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// Clear removes every session key. Safe to call on an empty store.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.kv.Delete(ctx, AllKeys()...); err != nil {
		return fmt.Errorf("clear session keys: %w", err)
	}

	s.mu.Lock()
	s.clearedAt = s.now()
	s.mu.Unlock()

	s.logger.Debug("credentials cleared")
	return nil
}

// RecentlyCleared reports whether Clear ran within the validity window.
func (s *Store) RecentlyCleared() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.clearedAt.IsZero() {
		return false
	}
	return s.now().Sub(s.clearedAt) < s.window
}

func otherUserKeys(userKey string) []string {
	var keys []string
	for _, r := range role.All {
		if r.UserKey() != userKey {
			keys = append(keys, r.UserKey())
		}
	}
	return keys
}

func (s *Store) write(ctx context.Context, values map[string]string) error {
	for k, v := range values {
		if err := s.kv.Set(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) verify(ctx context.Context, values map[string]string) error {
	for k, want := range values {
		got, ok, err := s.kv.Get(ctx, k)
		if err != nil {
			return err
		}
		if !ok || got != want {
			return fmt.Errorf("verify %s: stored value mismatch", k)
		}
	}
	return nil
}

type snapshotValue struct {
	value   string
	present bool
}

func (s *Store) snapshot(ctx context.Context) (map[string]snapshotValue, error) {
	snap := make(map[string]snapshotValue)
	for _, k := range AllKeys() {
		v, ok, err := s.kv.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		snap[k] = snapshotValue{value: v, present: ok}
	}
	return snap, nil
}

// restore puts back the keys a failed write changed.
func (s *Store) restore(ctx context.Context, previous map[string]snapshotValue, touched map[string]string) error {
	var missing []string
	for k := range touched {
		prev := previous[k]
		current, ok, err := s.kv.Get(ctx, k)
		if err != nil {
			return err
		}
		if ok == prev.present && current == prev.value {
			continue
		}
		if !prev.present {
			missing = append(missing, k)
			continue
		}
		if err := s.kv.Set(ctx, k, prev.value); err != nil {
			return err
		}
	}
	if len(missing) > 0 {
		return s.kv.Delete(ctx, missing...)
	}
	return nil
}
