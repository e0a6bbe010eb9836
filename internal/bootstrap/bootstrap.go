// Package bootstrap seeds the capability graph with the built-in permission
// catalog, the administrator role, and an initial administrator account.
// Every step is idempotent so it can run on each startup.
package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gatehouse-cms/gatehouse/internal/authz"
	"github.com/gatehouse-cms/gatehouse/internal/identity"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

// AdminRoleSlug names the seeded all-permissions role.
const AdminRoleSlug = "administrator"

// Ensure provisions core permissions, the administrator role with every core
// scope granted, and (when credentials are configured) the admin user.
func Ensure(ctx context.Context, logger *slog.Logger, authzSvc *authz.Service, users *identity.Service, adminLogin, adminPassword string) error {
	for _, name := range shared.CoreScopes() {
		if _, err := authzSvc.EnsurePermission(ctx, name); err != nil {
			return err
		}
	}

	role, err := authzSvc.GetRoleBySlug(ctx, AdminRoleSlug)
	if errors.Is(err, shared.ErrEntryNotFound) {
		role, err = authzSvc.CreateRole(ctx, AdminRoleSlug, "Administrator")
	}
	if err != nil {
		return err
	}
	for _, name := range shared.CoreScopes() {
		perm, err := authzSvc.GetPermissionByName(ctx, name)
		if err != nil {
			return err
		}
		if err := authzSvc.GrantPermission(ctx, role.ID, perm.ID); err != nil {
			return err
		}
	}

	if adminLogin == "" || adminPassword == "" {
		logger.Info("bootstrap: no admin credentials configured, skipping admin user")
		return nil
	}
	user, err := users.FindByLogin(ctx, adminLogin)
	if errors.Is(err, shared.ErrEntryNotFound) {
		user, err = users.Create(ctx, adminLogin, adminPassword)
		if err == nil {
			logger.Info("bootstrap: created admin user", slog.String("login", adminLogin))
		}
	}
	if err != nil {
		return err
	}
	return authzSvc.AssignRole(ctx, user.ID, role.ID)
}
