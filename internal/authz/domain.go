package authz

import "time"

// Role groups permissions under a unique slug.
type Role struct {
	ID        string
	Slug      string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Permission is an atomic capability matched by exact name,
// e.g. "role::write" or "news::read".
type Permission struct {
	ID   string
	Name string
}

// Group scopes users organizationally; it carries no permissions.
type Group struct {
	ID        string
	Slug      string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
