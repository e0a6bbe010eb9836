// Package authz maintains the capability graph: roles, permissions, groups,
// and the user→role, role→permission, user→group edges, plus the effective
// closures derived from them.
package authz

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gatehouse-cms/gatehouse/internal/graph"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

const attrTitle = "title"

// SessionInvalidator evicts cached permission snapshots. Implemented by the
// session manager; a nil invalidator turns eviction into a no-op (tests).
type SessionInvalidator interface {
	InvalidateAllForUser(ctx context.Context, userID string) error
}

// RoleFanout defers role-scoped invalidation to a background queue. When nil,
// the service walks the role's holders synchronously.
type RoleFanout interface {
	EnqueueRoleInvalidation(ctx context.Context, roleID string) error
}

// Service orchestrates capability-graph mutations and closure queries.
type Service struct {
	store    graph.Store
	logger   *slog.Logger
	sessions SessionInvalidator
	fanout   RoleFanout
}

// NewService constructs a Service.
func NewService(store graph.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// SetSessionInvalidator wires the session cache eviction hook. Called after
// construction because the session manager needs this service to refresh
// snapshots.
func (s *Service) SetSessionInvalidator(inv SessionInvalidator) {
	s.sessions = inv
}

// SetRoleFanout wires the background fan-out for role-scoped invalidation.
func (s *Service) SetRoleFanout(f RoleFanout) {
	s.fanout = f
}

// Roles

// CreateRole inserts a role under a normalized slug.
func (s *Service) CreateRole(ctx context.Context, slug, title string) (Role, error) {
	slug = shared.Slugify(slug)
	if slug == "" {
		return Role{}, errors.New("authz: role slug required")
	}
	if strings.TrimSpace(title) == "" {
		title = shared.TitleFromSlug(slug)
	}
	node, err := s.store.CreateNode(ctx, graph.Node{
		Kind:  graph.KindRole,
		Name:  slug,
		Attrs: map[string]string{attrTitle: strings.TrimSpace(title)},
	})
	if err != nil {
		return Role{}, err
	}
	return toRole(node), nil
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id string) (Role, error) {
	node, err := s.nodeOfKind(ctx, id, graph.KindRole)
	if err != nil {
		return Role{}, err
	}
	return toRole(node), nil
}

// GetRoleBySlug fetches a role by slug.
func (s *Service) GetRoleBySlug(ctx context.Context, slug string) (Role, error) {
	node, err := s.store.GetNodeByName(ctx, graph.KindRole, slug)
	if err != nil {
		return Role{}, err
	}
	return toRole(node), nil
}

// ListRoles returns all roles ordered by slug.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	nodes, err := s.store.ListNodes(ctx, graph.KindRole)
	if err != nil {
		return nil, err
	}
	roles := make([]Role, len(nodes))
	for i, node := range nodes {
		roles[i] = toRole(node)
	}
	return roles, nil
}

// UpdateRole rewrites a role's slug and title.
func (s *Service) UpdateRole(ctx context.Context, id, slug, title string) (Role, error) {
	node, err := s.nodeOfKind(ctx, id, graph.KindRole)
	if err != nil {
		return Role{}, err
	}
	if slug = shared.Slugify(slug); slug != "" {
		node.Name = slug
	}
	if title = strings.TrimSpace(title); title != "" {
		if node.Attrs == nil {
			node.Attrs = map[string]string{}
		}
		node.Attrs[attrTitle] = title
	}
	updated, err := s.store.UpdateNode(ctx, node)
	if err != nil {
		return Role{}, err
	}
	return toRole(updated), nil
}

// DeleteRole removes the role, cascading its role→permission and user→role
// edges, and evicts the sessions of every former holder.
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	holders, err := s.store.Predecessors(ctx, graph.EdgeUserRole, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteNode(ctx, id); err != nil {
		return err
	}
	for _, holder := range holders {
		s.invalidateUser(ctx, holder.ID)
	}
	return nil
}

// User ↔ role edges

// AssignRole adds a user→role edge. Idempotent; fails with
// shared.ErrEntryNotFound when either endpoint is absent.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) error {
	if _, err := s.nodeOfKind(ctx, userID, graph.KindUser); err != nil {
		return err
	}
	if _, err := s.nodeOfKind(ctx, roleID, graph.KindRole); err != nil {
		return err
	}
	if err := s.store.Relate(ctx, graph.EdgeUserRole, userID, roleID); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	return nil
}

// UnassignRole removes a user→role edge. Removing a missing edge succeeds.
func (s *Service) UnassignRole(ctx context.Context, userID, roleID string) error {
	if err := s.store.Unrelate(ctx, graph.EdgeUserRole, userID, roleID); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	return nil
}

// Permissions

// CreatePermission inserts a permission by exact name.
func (s *Service) CreatePermission(ctx context.Context, name string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, errors.New("authz: permission name required")
	}
	node, err := s.store.CreateNode(ctx, graph.Node{Kind: graph.KindPermission, Name: name})
	if err != nil {
		return Permission{}, err
	}
	return Permission{ID: node.ID, Name: node.Name}, nil
}

// EnsurePermission inserts a permission unless it already exists.
func (s *Service) EnsurePermission(ctx context.Context, name string) (Permission, error) {
	perm, err := s.CreatePermission(ctx, name)
	if errors.Is(err, shared.ErrEntryAlreadyExists) {
		return s.GetPermissionByName(ctx, name)
	}
	return perm, err
}

// GetPermissionByName fetches a permission by exact name.
func (s *Service) GetPermissionByName(ctx context.Context, name string) (Permission, error) {
	node, err := s.store.GetNodeByName(ctx, graph.KindPermission, name)
	if err != nil {
		return Permission{}, err
	}
	return Permission{ID: node.ID, Name: node.Name}, nil
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	nodes, err := s.store.ListNodes(ctx, graph.KindPermission)
	if err != nil {
		return nil, err
	}
	perms := make([]Permission, len(nodes))
	for i, node := range nodes {
		perms[i] = Permission{ID: node.ID, Name: node.Name}
	}
	return perms, nil
}

// DeletePermission removes a permission, cascading its role edges, and evicts
// the sessions of every role holder that carried it.
func (s *Service) DeletePermission(ctx context.Context, id string) error {
	roles, err := s.store.Predecessors(ctx, graph.EdgeRolePermission, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteNode(ctx, id); err != nil {
		return err
	}
	for _, role := range roles {
		s.invalidateRole(ctx, role.ID)
	}
	return nil
}

// Role ↔ permission edges

// GrantPermission adds a role→permission edge. Idempotent; fails with
// shared.ErrEntryNotFound when either endpoint is absent.
func (s *Service) GrantPermission(ctx context.Context, roleID, permID string) error {
	if _, err := s.nodeOfKind(ctx, roleID, graph.KindRole); err != nil {
		return err
	}
	if _, err := s.nodeOfKind(ctx, permID, graph.KindPermission); err != nil {
		return err
	}
	if err := s.store.Relate(ctx, graph.EdgeRolePermission, roleID, permID); err != nil {
		return err
	}
	s.invalidateRole(ctx, roleID)
	return nil
}

// RevokePermission removes a role→permission edge. Removing a missing edge
// succeeds.
func (s *Service) RevokePermission(ctx context.Context, roleID, permID string) error {
	if err := s.store.Unrelate(ctx, graph.EdgeRolePermission, roleID, permID); err != nil {
		return err
	}
	s.invalidateRole(ctx, roleID)
	return nil
}

// DropAllPermissions removes every role→permission edge of a role.
func (s *Service) DropAllPermissions(ctx context.Context, roleID string) error {
	if err := s.store.DropEdges(ctx, graph.EdgeRolePermission, roleID); err != nil {
		return err
	}
	s.invalidateRole(ctx, roleID)
	return nil
}

// SetRolePermissions replaces a role's permission set wholesale. Unknown
// permission names are logged and skipped; the drop-then-reassign itself is
// one storage transaction. Returns the names actually granted.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, names []string) ([]string, error) {
	if _, err := s.nodeOfKind(ctx, roleID, graph.KindRole); err != nil {
		return nil, err
	}
	granted := make([]string, 0, len(names))
	ids := make([]string, 0, len(names))
	for _, name := range names {
		perm, err := s.GetPermissionByName(ctx, strings.TrimSpace(name))
		if err != nil {
			if errors.Is(err, shared.ErrEntryNotFound) {
				s.logger.Warn("skipping unknown permission", slog.String("permission", name))
				continue
			}
			return nil, err
		}
		ids = append(ids, perm.ID)
		granted = append(granted, perm.Name)
	}
	if err := s.store.ReplaceEdges(ctx, graph.EdgeRolePermission, roleID, ids); err != nil {
		return nil, err
	}
	s.invalidateRole(ctx, roleID)
	return granted, nil
}

// RolePermissions lists the permission names granted to a role.
func (s *Service) RolePermissions(ctx context.Context, roleID string) ([]string, error) {
	nodes, err := s.store.Traverse(ctx, roleID, graph.EdgeRolePermission)
	if err != nil {
		return nil, err
	}
	return nodeNames(nodes), nil
}

// Groups

// CreateGroup inserts a group under a normalized slug.
func (s *Service) CreateGroup(ctx context.Context, slug, title string) (Group, error) {
	slug = shared.Slugify(slug)
	if slug == "" {
		return Group{}, errors.New("authz: group slug required")
	}
	if strings.TrimSpace(title) == "" {
		title = shared.TitleFromSlug(slug)
	}
	node, err := s.store.CreateNode(ctx, graph.Node{
		Kind:  graph.KindGroup,
		Name:  slug,
		Attrs: map[string]string{attrTitle: strings.TrimSpace(title)},
	})
	if err != nil {
		return Group{}, err
	}
	return toGroup(node), nil
}

// GetGroupBySlug fetches a group by slug.
func (s *Service) GetGroupBySlug(ctx context.Context, slug string) (Group, error) {
	node, err := s.store.GetNodeByName(ctx, graph.KindGroup, slug)
	if err != nil {
		return Group{}, err
	}
	return toGroup(node), nil
}

// ListGroups returns all groups ordered by slug.
func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	nodes, err := s.store.ListNodes(ctx, graph.KindGroup)
	if err != nil {
		return nil, err
	}
	groups := make([]Group, len(nodes))
	for i, node := range nodes {
		groups[i] = toGroup(node)
	}
	return groups, nil
}

// UpdateGroup rewrites a group's title.
func (s *Service) UpdateGroup(ctx context.Context, id, title string) (Group, error) {
	node, err := s.nodeOfKind(ctx, id, graph.KindGroup)
	if err != nil {
		return Group{}, err
	}
	if node.Attrs == nil {
		node.Attrs = map[string]string{}
	}
	node.Attrs[attrTitle] = strings.TrimSpace(title)
	updated, err := s.store.UpdateNode(ctx, node)
	if err != nil {
		return Group{}, err
	}
	return toGroup(updated), nil
}

// DeleteGroup removes a group, cascading its user→group edges.
func (s *Service) DeleteGroup(ctx context.Context, id string) error {
	members, err := s.store.Predecessors(ctx, graph.EdgeUserGroup, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteNode(ctx, id); err != nil {
		return err
	}
	for _, member := range members {
		s.invalidateUser(ctx, member.ID)
	}
	return nil
}

// AssignGroup adds a user→group edge.
func (s *Service) AssignGroup(ctx context.Context, userID, groupID string) error {
	if _, err := s.nodeOfKind(ctx, userID, graph.KindUser); err != nil {
		return err
	}
	if _, err := s.nodeOfKind(ctx, groupID, graph.KindGroup); err != nil {
		return err
	}
	if err := s.store.Relate(ctx, graph.EdgeUserGroup, userID, groupID); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	return nil
}

// UnassignGroup removes a user→group edge. Removing a missing edge succeeds.
func (s *Service) UnassignGroup(ctx context.Context, userID, groupID string) error {
	if err := s.store.Unrelate(ctx, graph.EdgeUserGroup, userID, groupID); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	return nil
}

// Effective closures

// EffectivePermissions returns the union of permission names reachable via
// user→role→permission, deduplicated and sorted.
func (s *Service) EffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	nodes, err := s.store.Traverse(ctx, userID, graph.EdgeUserRole, graph.EdgeRolePermission)
	if err != nil {
		return nil, err
	}
	return nodeNames(nodes), nil
}

// EffectiveRoles returns the user's direct role slugs, deduplicated and sorted.
func (s *Service) EffectiveRoles(ctx context.Context, userID string) ([]string, error) {
	nodes, err := s.store.Traverse(ctx, userID, graph.EdgeUserRole)
	if err != nil {
		return nil, err
	}
	return nodeNames(nodes), nil
}

// EffectiveGroups returns the user's direct group slugs, deduplicated and sorted.
func (s *Service) EffectiveGroups(ctx context.Context, userID string) ([]string, error) {
	nodes, err := s.store.Traverse(ctx, userID, graph.EdgeUserGroup)
	if err != nil {
		return nil, err
	}
	return nodeNames(nodes), nil
}

// DeleteUser removes a user node with all touching edges and evicts their
// sessions.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.nodeOfKind(ctx, userID, graph.KindUser); err != nil {
		return err
	}
	if err := s.store.DeleteNode(ctx, userID); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	return nil
}

// InvalidateRoleSessions evicts the session caches of every user holding the
// role. Called inline when no fan-out queue is wired, and by the background
// worker otherwise.
func (s *Service) InvalidateRoleSessions(ctx context.Context, roleID string) error {
	holders, err := s.store.Predecessors(ctx, graph.EdgeUserRole, roleID)
	if err != nil {
		return err
	}
	for _, holder := range holders {
		s.invalidateUser(ctx, holder.ID)
	}
	return nil
}

func (s *Service) invalidateUser(ctx context.Context, userID string) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.InvalidateAllForUser(ctx, userID); err != nil {
		s.logger.Error("invalidate sessions", slog.String("user", userID), slog.Any("error", err))
	}
}

func (s *Service) invalidateRole(ctx context.Context, roleID string) {
	if s.fanout != nil {
		if err := s.fanout.EnqueueRoleInvalidation(ctx, roleID); err == nil {
			return
		} else {
			s.logger.Warn("fanout enqueue failed, invalidating inline", slog.Any("error", err))
		}
	}
	if err := s.InvalidateRoleSessions(ctx, roleID); err != nil {
		s.logger.Error("invalidate role sessions", slog.String("role", roleID), slog.Any("error", err))
	}
}

func (s *Service) nodeOfKind(ctx context.Context, id string, kind graph.Kind) (graph.Node, error) {
	node, err := s.store.GetNode(ctx, id)
	if err != nil {
		return graph.Node{}, err
	}
	if node.Kind != kind {
		return graph.Node{}, shared.ErrEntryNotFound
	}
	return node, nil
}

func nodeNames(nodes []graph.Node) []string {
	names := make([]string, len(nodes))
	for i, node := range nodes {
		names[i] = node.Name
	}
	return names
}

func toRole(node graph.Node) Role {
	return Role{
		ID:        node.ID,
		Slug:      node.Name,
		Title:     node.Attr(attrTitle),
		CreatedAt: node.CreatedAt,
		UpdatedAt: node.UpdatedAt,
	}
}

func toGroup(node graph.Node) Group {
	return Group{
		ID:        node.ID,
		Slug:      node.Name,
		Title:     node.Attr(attrTitle),
		CreatedAt: node.CreatedAt,
		UpdatedAt: node.UpdatedAt,
	}
}
