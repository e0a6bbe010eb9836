// Package session issues and validates console sessions. Each session caches
// a snapshot of the principal's effective roles, permissions, and groups so
// permission checks do not traverse the capability graph on every request.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/gatehouse-cms/gatehouse/internal/identity"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

// expiredRetention keeps an expired session record around long enough to
// report SessionExpired instead of InvalidSession on its next use.
const expiredRetention = time.Hour

// Snapshot is the cached view of a principal attached to a session token.
type Snapshot struct {
	UserID      string    `json:"user_id"`
	Login       string    `json:"login"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	Groups      []string  `json:"groups"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Stale       bool      `json:"stale,omitempty"`
}

// HasPermission reports exact-name membership in the cached permission set.
func (s *Snapshot) HasPermission(name string) bool {
	return slices.Contains(s.Permissions, name)
}

// Grapher computes the effective closures cached in a snapshot. Implemented
// by the authz service.
type Grapher interface {
	EffectivePermissions(ctx context.Context, userID string) ([]string, error)
	EffectiveRoles(ctx context.Context, userID string) ([]string, error)
	EffectiveGroups(ctx context.Context, userID string) ([]string, error)
}

// Recorder observes cache behavior; nil-safe.
type Recorder interface {
	SessionCacheHit()
	SessionCacheMiss()
}

// Manager owns the token → snapshot table in Redis. Redis gives the table its
// concurrent-read/occasional-write safety; singleflight collapses concurrent
// refreshes of the same invalidated snapshot.
type Manager struct {
	client   *redis.Client
	graph    Grapher
	ttl      time.Duration
	refresh  singleflight.Group
	recorder Recorder
}

// NewManager constructs a Manager.
func NewManager(client *redis.Client, graph Grapher, ttl time.Duration) *Manager {
	return &Manager{client: client, graph: graph, ttl: ttl}
}

// SetRecorder wires cache metrics.
func (m *Manager) SetRecorder(r Recorder) {
	m.recorder = r
}

// TTL exposes the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create issues a session for a verified user and populates its snapshot
// from the capability graph. Blocked users get no token.
func (m *Manager) Create(ctx context.Context, user identity.User) (string, error) {
	if user.Blocked {
		return "", shared.ErrUserBlocked
	}
	snap, err := m.buildSnapshot(ctx, user.ID)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	snap.Login = user.Login
	snap.CreatedAt = now
	snap.ExpiresAt = now.Add(m.ttl)

	token, err := newToken()
	if err != nil {
		return "", err
	}
	if err := m.writeSnapshot(ctx, token, snap); err != nil {
		return "", err
	}
	pipe := m.client.Pipeline()
	pipe.SAdd(ctx, userKey(user.ID), token)
	pipe.Expire(ctx, userKey(user.ID), m.ttl+expiredRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", storageErr("index session", err)
	}
	return token, nil
}

// Resolve validates a token and returns its snapshot. Expiry is detected
// lazily here; an invalidated snapshot is rebuilt from the graph exactly
// once per token at a time.
func (m *Manager) Resolve(ctx context.Context, token string) (*Snapshot, error) {
	if token == "" {
		return nil, shared.ErrInvalidSession
	}
	snap, err := m.readSnapshot(ctx, token)
	if err != nil {
		return nil, err
	}
	if time.Now().After(snap.ExpiresAt) {
		m.drop(ctx, token, snap.UserID)
		return nil, shared.ErrSessionExpired
	}
	if !snap.Stale {
		if m.recorder != nil {
			m.recorder.SessionCacheHit()
		}
		return snap, nil
	}
	if m.recorder != nil {
		m.recorder.SessionCacheMiss()
	}
	refreshed, err, _ := m.refresh.Do(token, func() (any, error) {
		return m.rebuild(ctx, token, snap)
	})
	if err != nil {
		return nil, err
	}
	return refreshed.(*Snapshot), nil
}

// HasPermission combines Resolve with exact-name membership. This is the
// primitive every protected handler calls before executing.
func (m *Manager) HasPermission(ctx context.Context, token, name string) (bool, error) {
	snap, err := m.Resolve(ctx, token)
	if err != nil {
		return false, err
	}
	return snap.HasPermission(name), nil
}

// Invalidate marks one session's snapshot stale; the session itself stays
// alive and is recomputed on its next use.
func (m *Manager) Invalidate(ctx context.Context, token string) error {
	snap, err := m.readSnapshot(ctx, token)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidSession) {
			return nil
		}
		return err
	}
	snap.Stale = true
	return m.writeSnapshot(ctx, token, snap)
}

// InvalidateAllForUser marks every session of a user stale. Called whenever
// the user's effective closure may have changed.
func (m *Manager) InvalidateAllForUser(ctx context.Context, userID string) error {
	tokens, err := m.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return storageErr("list sessions", err)
	}
	for _, token := range tokens {
		if err := m.Invalidate(ctx, token); err != nil {
			return err
		}
	}
	return nil
}

// Revoke destroys a session; the token never resolves again.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	snap, err := m.readSnapshot(ctx, token)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidSession) {
			return nil
		}
		return err
	}
	m.drop(ctx, token, snap.UserID)
	return nil
}

// RevokeAllForUser destroys every session of a user (block, delete).
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) error {
	tokens, err := m.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return storageErr("list sessions", err)
	}
	pipe := m.client.Pipeline()
	for _, token := range tokens {
		pipe.Del(ctx, sessionKey(token))
	}
	pipe.Del(ctx, userKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return storageErr("revoke sessions", err)
	}
	return nil
}

func (m *Manager) rebuild(ctx context.Context, token string, snap *Snapshot) (*Snapshot, error) {
	fresh, err := m.buildSnapshot(ctx, snap.UserID)
	if err != nil {
		return nil, err
	}
	fresh.Login = snap.Login
	fresh.CreatedAt = snap.CreatedAt
	fresh.ExpiresAt = snap.ExpiresAt
	if err := m.writeSnapshot(ctx, token, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (m *Manager) buildSnapshot(ctx context.Context, userID string) (*Snapshot, error) {
	perms, err := m.graph.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	roles, err := m.graph.EffectiveRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	groups, err := m.graph.EffectiveGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{UserID: userID, Roles: roles, Permissions: perms, Groups: groups}, nil
}

func (m *Manager) readSnapshot(ctx context.Context, token string) (*Snapshot, error) {
	data, err := m.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.ErrInvalidSession
		}
		return nil, storageErr("read session", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, storageErr("decode session", err)
	}
	return &snap, nil
}

func (m *Manager) writeSnapshot(ctx context.Context, token string, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return storageErr("encode session", err)
	}
	retention := time.Until(snap.ExpiresAt) + expiredRetention
	if retention <= 0 {
		retention = time.Minute
	}
	if err := m.client.Set(ctx, sessionKey(token), data, retention).Err(); err != nil {
		return storageErr("write session", err)
	}
	return nil
}

func (m *Manager) drop(ctx context.Context, token, userID string) {
	pipe := m.client.Pipeline()
	pipe.Del(ctx, sessionKey(token))
	if userID != "" {
		pipe.SRem(ctx, userKey(userID), token)
	}
	_, _ = pipe.Exec(ctx)
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func sessionKey(token string) string {
	return "session:" + token
}

func userKey(userID string) string {
	return "user_sessions:" + userID
}

func storageErr(op string, err error) error {
	return fmt.Errorf("session: %s: %v: %w", op, err, shared.ErrStorage)
}
