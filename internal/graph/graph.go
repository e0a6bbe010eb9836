// Package graph defines the directed-graph storage used by the authorization
// core: typed nodes with a per-kind unique name, and typed many-to-many edges.
package graph

import (
	"context"
	"time"
)

// Kind identifies a node type.
type Kind string

// Node kinds known to the console.
const (
	KindUser       Kind = "user"
	KindRole       Kind = "role"
	KindPermission Kind = "permission"
	KindGroup      Kind = "group"
	KindSchema     Kind = "schema"
	KindContent    Kind = "content"
)

// EdgeKind identifies an edge type.
type EdgeKind string

// Edge kinds known to the console.
const (
	EdgeUserRole       EdgeKind = "user_roles"
	EdgeRolePermission EdgeKind = "role_permissions"
	EdgeUserGroup      EdgeKind = "user_groups"
)

// Node is a stored entity. Name is unique within a kind; Attrs carries
// kind-specific fields (title, password hash, flags).
type Node struct {
	ID        string
	Kind      Kind
	Name      string
	Attrs     map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Attr returns an attribute value or the empty string.
func (n Node) Attr(key string) string {
	if n.Attrs == nil {
		return ""
	}
	return n.Attrs[key]
}

// Store is the opaque graph-query executor. Implementations report a missing
// entry as shared.ErrEntryNotFound, a unique-name clash as
// shared.ErrEntryAlreadyExists, and connection failures wrapped in
// shared.ErrStorage. Traversals that match nothing return an empty slice,
// never an error.
type Store interface {
	CreateNode(ctx context.Context, n Node) (Node, error)
	GetNode(ctx context.Context, id string) (Node, error)
	GetNodeByName(ctx context.Context, kind Kind, name string) (Node, error)
	UpdateNode(ctx context.Context, n Node) (Node, error)
	ListNodes(ctx context.Context, kind Kind) ([]Node, error)

	// DeleteNode removes the node and every edge touching it in one
	// transaction.
	DeleteNode(ctx context.Context, id string) error

	// Relate asserts an edge; re-asserting an existing edge is a no-op.
	Relate(ctx context.Context, kind EdgeKind, src, dst string) error
	// Unrelate removes an edge; removing a missing edge is a no-op.
	Unrelate(ctx context.Context, kind EdgeKind, src, dst string) error
	// DropEdges removes every out-edge of the given kind from src.
	DropEdges(ctx context.Context, kind EdgeKind, src string) error
	// ReplaceEdges drops all out-edges of the given kind from src and
	// asserts the given set, atomically.
	ReplaceEdges(ctx context.Context, kind EdgeKind, src string, dsts []string) error

	// Traverse follows the edge kinds in order starting at from and returns
	// the distinct nodes reached, ordered by name.
	Traverse(ctx context.Context, from string, path ...EdgeKind) ([]Node, error)
	// Predecessors returns the distinct nodes with an edge of the given kind
	// pointing at dst, ordered by name.
	Predecessors(ctx context.Context, kind EdgeKind, dst string) ([]Node, error)
}
