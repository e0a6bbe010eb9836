package shared

// Core console permissions. Schema-scoped permissions ("<slug>::read" and
// friends) are provisioned per schema at creation time.
const (
	PermRoleRead   = "role::read"
	PermRoleWrite  = "role::write"
	PermRoleDelete = "role::delete"

	PermUserRead   = "user::read"
	PermUserWrite  = "user::write"
	PermUserDelete = "user::delete"

	PermGroupRead   = "group::read"
	PermGroupWrite  = "group::write"
	PermGroupDelete = "group::delete"

	PermSchemaRead   = "schema::read"
	PermSchemaWrite  = "schema::write"
	PermSchemaDelete = "schema::delete"

	PermContentRead   = "content::read"
	PermContentWrite  = "content::write"
	PermContentDelete = "content::delete"
)

// CoreScopes lists every built-in permission, used by seeding and the
// integrity scan.
func CoreScopes() []string {
	return []string{
		PermRoleRead, PermRoleWrite, PermRoleDelete,
		PermUserRead, PermUserWrite, PermUserDelete,
		PermGroupRead, PermGroupWrite, PermGroupDelete,
		PermSchemaRead, PermSchemaWrite, PermSchemaDelete,
		PermContentRead, PermContentWrite, PermContentDelete,
	}
}
