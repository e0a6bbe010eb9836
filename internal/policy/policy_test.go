package policy_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-cms/gatehouse/internal/identity"
	"github.com/gatehouse-cms/gatehouse/internal/policy"
	"github.com/gatehouse-cms/gatehouse/internal/session"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

func TestRequiredPermission(t *testing.T) {
	assert.Equal(t, "content::read", policy.RequiredPermission(policy.Resource{Slug: "blog", Public: true}, policy.OpRead))
	assert.Equal(t, "content::delete", policy.RequiredPermission(policy.Resource{Slug: "anything", Public: true}, policy.OpDelete))
	assert.Equal(t, "internal-notes::write", policy.RequiredPermission(policy.Resource{Slug: "internal-notes"}, policy.OpWrite))
}

type staticGrapher struct {
	perms []string
}

func (s staticGrapher) EffectivePermissions(context.Context, string) ([]string, error) {
	return s.perms, nil
}

func (s staticGrapher) EffectiveRoles(context.Context, string) ([]string, error) {
	return nil, nil
}

func (s staticGrapher) EffectiveGroups(context.Context, string) ([]string, error) {
	return nil, nil
}

type countingRecorder struct {
	allowed int
	denied  int
}

func (c *countingRecorder) AuthzDecision(allowed bool) {
	if allowed {
		c.allowed++
	} else {
		c.denied++
	}
}

func newGuard(t *testing.T, perms []string) (*policy.Guard, string, *countingRecorder) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mgr := session.NewManager(client, staticGrapher{perms: perms}, time.Hour)
	token, err := mgr.Create(context.Background(), identity.User{ID: "u1", Login: "alice"})
	require.NoError(t, err)

	recorder := &countingRecorder{}
	guard := policy.NewGuard(mgr)
	guard.SetRecorder(recorder)
	return guard, token, recorder
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	guard, token, recorder := newGuard(t, []string{"content::read", "internal-notes::write"})

	assert.NoError(t, guard.Authorize(ctx, token, policy.Resource{Slug: "blog", Public: true}, policy.OpRead))
	assert.NoError(t, guard.Authorize(ctx, token, policy.Resource{Slug: "internal-notes"}, policy.OpWrite))

	err := guard.Authorize(ctx, token, policy.Resource{Slug: "blog", Public: true}, policy.OpWrite)
	assert.ErrorIs(t, err, shared.ErrAccessForbidden)

	// Holding the public content permission does not imply scoped access.
	err = guard.Authorize(ctx, token, policy.Resource{Slug: "internal-notes"}, policy.OpRead)
	assert.ErrorIs(t, err, shared.ErrAccessForbidden)

	assert.Equal(t, 2, recorder.allowed)
	assert.Equal(t, 2, recorder.denied)
}

func TestAuthorizeForwardsSessionErrors(t *testing.T) {
	ctx := context.Background()
	guard, _, recorder := newGuard(t, nil)

	err := guard.Authorize(ctx, "unknown-token", policy.Resource{Slug: "blog", Public: true}, policy.OpRead)
	assert.ErrorIs(t, err, shared.ErrInvalidSession)

	err = guard.Authorize(ctx, "", policy.Resource{Slug: "blog", Public: true}, policy.OpRead)
	assert.ErrorIs(t, err, shared.ErrInvalidSession)

	// Session failures never count as authorization decisions.
	assert.Zero(t, recorder.allowed+recorder.denied)
}
