package bootstrap

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-cms/gatehouse/internal/authz"
	"github.com/gatehouse-cms/gatehouse/internal/graph"
	"github.com/gatehouse-cms/gatehouse/internal/identity"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

const testSalt = "dGVzdC1zYWx0LTEyMw"

func newServices(t *testing.T) (*authz.Service, *identity.Service) {
	t.Helper()
	store := graph.NewMemStore()
	hasher, err := identity.NewHasher(testSalt)
	require.NoError(t, err)
	return authz.NewService(store, slog.Default()), identity.NewService(store, hasher)
}

func TestEnsureSeedsAdministrator(t *testing.T) {
	ctx := context.Background()
	authzSvc, users := newServices(t)

	require.NoError(t, Ensure(ctx, slog.Default(), authzSvc, users, "admin", "admin-pass"))

	for _, name := range shared.CoreScopes() {
		_, err := authzSvc.GetPermissionByName(ctx, name)
		assert.NoError(t, err, "core scope %s", name)
	}

	role, err := authzSvc.GetRoleBySlug(ctx, AdminRoleSlug)
	require.NoError(t, err)
	names, err := authzSvc.RolePermissions(ctx, role.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, shared.CoreScopes(), names)

	admin, err := users.FindByLogin(ctx, "admin")
	require.NoError(t, err)
	roles, err := authzSvc.EffectiveRoles(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{AdminRoleSlug}, roles)
}

func TestEnsureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	authzSvc, users := newServices(t)

	require.NoError(t, Ensure(ctx, slog.Default(), authzSvc, users, "admin", "admin-pass"))
	require.NoError(t, Ensure(ctx, slog.Default(), authzSvc, users, "admin", "admin-pass"))

	all, err := users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEnsureWithoutAdminCredentials(t *testing.T) {
	ctx := context.Background()
	authzSvc, users := newServices(t)

	require.NoError(t, Ensure(ctx, slog.Default(), authzSvc, users, "", ""))

	all, err := users.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
