package schemas

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-cms/gatehouse/internal/authz"
	"github.com/gatehouse-cms/gatehouse/internal/graph"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

func newTestService(t *testing.T) (*Service, *authz.Service, *graph.MemStore) {
	t.Helper()
	store := graph.NewMemStore()
	authzSvc := authz.NewService(store, slog.Default())
	return NewService(store, authzSvc, slog.Default()), authzSvc, store
}

func TestCreatePrivateSchemaProvisionsScopedPermissions(t *testing.T) {
	ctx := context.Background()
	svc, authzSvc, _ := newTestService(t)

	schema, err := svc.Create(ctx, "Internal Notes", "", false)
	require.NoError(t, err)
	assert.Equal(t, "internal-notes", schema.Slug)
	assert.Equal(t, "Internal Notes", schema.Title)
	assert.False(t, schema.Public)

	for _, name := range []string{"internal-notes::read", "internal-notes::write", "internal-notes::delete"} {
		_, err := authzSvc.GetPermissionByName(ctx, name)
		assert.NoError(t, err, "expected %s to exist", name)
	}
}

func TestCreatePublicSchemaSkipsScopedPermissions(t *testing.T) {
	ctx := context.Background()
	svc, authzSvc, _ := newTestService(t)

	schema, err := svc.Create(ctx, "blog", "Blog", true)
	require.NoError(t, err)
	assert.True(t, schema.Public)

	_, err = authzSvc.GetPermissionByName(ctx, "blog::read")
	assert.ErrorIs(t, err, shared.ErrEntryNotFound)
}

func TestDeletePrivateSchemaCascadesPermissions(t *testing.T) {
	ctx := context.Background()
	svc, authzSvc, _ := newTestService(t)

	_, err := svc.Create(ctx, "internal-notes", "", false)
	require.NoError(t, err)

	role, err := authzSvc.CreateRole(ctx, "editor", "")
	require.NoError(t, err)
	_, err = authzSvc.SetRolePermissions(ctx, role.ID, []string{"internal-notes::read"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "internal-notes"))

	_, err = svc.Get(ctx, "internal-notes")
	assert.ErrorIs(t, err, shared.ErrEntryNotFound)
	_, err = authzSvc.GetPermissionByName(ctx, "internal-notes::read")
	assert.ErrorIs(t, err, shared.ErrEntryNotFound)

	names, err := authzSvc.RolePermissions(ctx, role.ID)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestUpdateTitleKeepsSlugAndVisibility(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	created, err := svc.Create(ctx, "blog", "Blog", true)
	require.NoError(t, err)

	updated, err := svc.UpdateTitle(ctx, "blog", "The Blog")
	require.NoError(t, err)
	assert.Equal(t, created.Slug, updated.Slug)
	assert.Equal(t, "The Blog", updated.Title)
	assert.True(t, updated.Public)
}

func TestEnsureScopedPermissionsRepairsDrift(t *testing.T) {
	ctx := context.Background()
	svc, authzSvc, _ := newTestService(t)

	_, err := svc.Create(ctx, "internal-notes", "", false)
	require.NoError(t, err)

	perm, err := authzSvc.GetPermissionByName(ctx, "internal-notes::write")
	require.NoError(t, err)
	require.NoError(t, authzSvc.DeletePermission(ctx, perm.ID))

	repaired, err := svc.EnsureScopedPermissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	_, err = authzSvc.GetPermissionByName(ctx, "internal-notes::write")
	assert.NoError(t, err)

	// A second scan finds nothing to do.
	repaired, err = svc.EnsureScopedPermissions(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired)
}
