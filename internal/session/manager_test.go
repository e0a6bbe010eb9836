package session_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-cms/gatehouse/internal/authz"
	"github.com/gatehouse-cms/gatehouse/internal/graph"
	"github.com/gatehouse-cms/gatehouse/internal/identity"
	"github.com/gatehouse-cms/gatehouse/internal/session"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

type fakeGrapher struct {
	perms  []string
	roles  []string
	groups []string
}

func (f *fakeGrapher) EffectivePermissions(context.Context, string) ([]string, error) {
	return append([]string(nil), f.perms...), nil
}

func (f *fakeGrapher) EffectiveRoles(context.Context, string) ([]string, error) {
	return append([]string(nil), f.roles...), nil
}

func (f *fakeGrapher) EffectiveGroups(context.Context, string) ([]string, error) {
	return append([]string(nil), f.groups...), nil
}

func newTestManager(t *testing.T, grapher session.Grapher, ttl time.Duration) *session.Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return session.NewManager(client, grapher, ttl)
}

func TestCreateAndResolve(t *testing.T) {
	ctx := context.Background()
	grapher := &fakeGrapher{perms: []string{"content::read"}, roles: []string{"viewer"}}
	mgr := newTestManager(t, grapher, time.Hour)

	token, err := mgr.Create(ctx, identity.User{ID: "u1", Login: "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	snap, err := mgr.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, "alice", snap.Login)
	assert.Equal(t, []string{"content::read"}, snap.Permissions)
	assert.Equal(t, []string{"viewer"}, snap.Roles)
	assert.True(t, snap.HasPermission("content::read"))
	assert.False(t, snap.HasPermission("content::write"))
}

func TestCreateRefusesBlockedUser(t *testing.T) {
	mgr := newTestManager(t, &fakeGrapher{}, time.Hour)

	_, err := mgr.Create(context.Background(), identity.User{ID: "u1", Login: "alice", Blocked: true})
	assert.ErrorIs(t, err, shared.ErrUserBlocked)
}

func TestResolveUnknownToken(t *testing.T) {
	mgr := newTestManager(t, &fakeGrapher{}, time.Hour)

	_, err := mgr.Resolve(context.Background(), "bogus")
	assert.ErrorIs(t, err, shared.ErrInvalidSession)

	_, err = mgr.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, shared.ErrInvalidSession)
}

func TestResolveDetectsExpiryLazily(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, &fakeGrapher{}, 20*time.Millisecond)

	token, err := mgr.Create(ctx, identity.User{ID: "u1", Login: "alice"})
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	_, err = mgr.Resolve(ctx, token)
	assert.ErrorIs(t, err, shared.ErrSessionExpired)

	// The expired record is dropped on detection; a second resolve sees an
	// unknown token.
	_, err = mgr.Resolve(ctx, token)
	assert.ErrorIs(t, err, shared.ErrInvalidSession)
}

func TestInvalidateTriggersRebuild(t *testing.T) {
	ctx := context.Background()
	grapher := &fakeGrapher{perms: []string{"content::read"}}
	mgr := newTestManager(t, grapher, time.Hour)

	token, err := mgr.Create(ctx, identity.User{ID: "u1", Login: "alice"})
	require.NoError(t, err)

	grapher.perms = []string{"content::read", "content::write"}

	// Without invalidation the stale snapshot keeps serving.
	snap, err := mgr.Resolve(ctx, token)
	require.NoError(t, err)
	assert.False(t, snap.HasPermission("content::write"))

	require.NoError(t, mgr.InvalidateAllForUser(ctx, "u1"))

	snap, err = mgr.Resolve(ctx, token)
	require.NoError(t, err)
	assert.True(t, snap.HasPermission("content::write"))
	assert.Equal(t, "alice", snap.Login)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, &fakeGrapher{}, time.Hour)

	token, err := mgr.Create(ctx, identity.User{ID: "u1", Login: "alice"})
	require.NoError(t, err)

	require.NoError(t, mgr.Revoke(ctx, token))
	_, err = mgr.Resolve(ctx, token)
	assert.ErrorIs(t, err, shared.ErrInvalidSession)

	// Revoking an already-dead token succeeds.
	assert.NoError(t, mgr.Revoke(ctx, token))
}

func TestRevokeAllForUser(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, &fakeGrapher{}, time.Hour)

	first, err := mgr.Create(ctx, identity.User{ID: "u1", Login: "alice"})
	require.NoError(t, err)
	second, err := mgr.Create(ctx, identity.User{ID: "u1", Login: "alice"})
	require.NoError(t, err)

	require.NoError(t, mgr.RevokeAllForUser(ctx, "u1"))

	_, err = mgr.Resolve(ctx, first)
	assert.ErrorIs(t, err, shared.ErrInvalidSession)
	_, err = mgr.Resolve(ctx, second)
	assert.ErrorIs(t, err, shared.ErrInvalidSession)
}

// Revocation propagates through a live role: alice logs in as an editor, the
// role loses content::write, and her open session stops authorizing writes.
func TestRoleRevocationReachesOpenSession(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore()
	authzSvc := authz.NewService(store, slog.Default())
	mgr := newTestManager(t, authzSvc, time.Hour)
	authzSvc.SetSessionInvalidator(mgr)

	alice, err := store.CreateNode(ctx, graph.Node{Kind: graph.KindUser, Name: "alice"})
	require.NoError(t, err)
	role, err := authzSvc.CreateRole(ctx, "editor", "")
	require.NoError(t, err)
	write, err := authzSvc.CreatePermission(ctx, "content::write")
	require.NoError(t, err)
	require.NoError(t, authzSvc.GrantPermission(ctx, role.ID, write.ID))
	require.NoError(t, authzSvc.AssignRole(ctx, alice.ID, role.ID))

	token, err := mgr.Create(ctx, identity.User{ID: alice.ID, Login: "alice"})
	require.NoError(t, err)

	ok, err := mgr.HasPermission(ctx, token, "content::write")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, authzSvc.RevokePermission(ctx, role.ID, write.ID))

	ok, err = mgr.HasPermission(ctx, token, "content::write")
	require.NoError(t, err)
	assert.False(t, ok)
}
