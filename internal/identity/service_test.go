package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-cms/gatehouse/internal/graph"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hasher, err := NewHasher(testSalt)
	require.NoError(t, err)
	return NewService(graph.NewMemStore(), hasher)
}

func TestCreateAndVerify(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	user, err := svc.Create(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Login)
	assert.NotEmpty(t, user.PasswordHash)
	assert.False(t, user.Blocked)

	verified, err := svc.Verify(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, verified.ID)
}

func TestVerifyWrongPasswordAndUnknownLoginLookAlike(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Create(ctx, "alice", "s3cret")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Verify(ctx, "nobody", "anything")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestCreateDuplicateLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Create(ctx, "alice", "s3cret")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "alice", "other")
	assert.ErrorIs(t, err, shared.ErrEntryAlreadyExists)
}

func TestSetBlocked(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	user, err := svc.Create(ctx, "alice", "s3cret")
	require.NoError(t, err)

	blocked, err := svc.SetBlocked(ctx, user.ID, true)
	require.NoError(t, err)
	assert.True(t, blocked.Blocked)

	// Blocking does not disturb the stored credential.
	_, err = svc.Verify(ctx, "alice", "s3cret")
	assert.NoError(t, err)

	unblocked, err := svc.SetBlocked(ctx, user.ID, false)
	require.NoError(t, err)
	assert.False(t, unblocked.Blocked)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	user, err := svc.Create(ctx, "alice", "old-pass")
	require.NoError(t, err)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "new-pass"))

	_, err = svc.Verify(ctx, "alice", "old-pass")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = svc.Verify(ctx, "alice", "new-pass")
	assert.NoError(t, err)
}

func TestFindRejectsNonUserNode(t *testing.T) {
	ctx := context.Background()
	hasher, err := NewHasher(testSalt)
	require.NoError(t, err)
	store := graph.NewMemStore()
	svc := NewService(store, hasher)

	role, err := store.CreateNode(ctx, graph.Node{Kind: graph.KindRole, Name: "editor"})
	require.NoError(t, err)

	_, err = svc.Find(ctx, role.ID)
	assert.ErrorIs(t, err, shared.ErrEntryNotFound)
}
