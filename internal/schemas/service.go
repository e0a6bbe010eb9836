// Package schemas owns the content-schema registry. A schema's public flag
// decides which permission gates its content: public schemas share the
// category-level "content::*" names, private ones get their own
// "<slug>::read|write|delete" permissions provisioned at creation time.
package schemas

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gatehouse-cms/gatehouse/internal/authz"
	"github.com/gatehouse-cms/gatehouse/internal/graph"
	"github.com/gatehouse-cms/gatehouse/internal/policy"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

const (
	attrTitle  = "title"
	attrPublic = "public"
)

// Schema describes a content collection.
type Schema struct {
	ID        string
	Slug      string
	Title     string
	Public    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Resource converts the schema into an access-policy resource.
func (s Schema) Resource() policy.Resource {
	return policy.Resource{Slug: s.Slug, Public: s.Public}
}

// Service maintains schema nodes and their scoped permissions.
type Service struct {
	store  graph.Store
	authz  *authz.Service
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(store graph.Store, authzSvc *authz.Service, logger *slog.Logger) *Service {
	return &Service{store: store, authz: authzSvc, logger: logger}
}

// Create registers a schema. Private schemas get their three scoped
// permissions provisioned immediately so roles can reference them.
func (s *Service) Create(ctx context.Context, slug, title string, public bool) (Schema, error) {
	slug = shared.Slugify(slug)
	if slug == "" {
		return Schema{}, errors.New("schemas: slug required")
	}
	if strings.TrimSpace(title) == "" {
		title = shared.TitleFromSlug(slug)
	}
	attrs := map[string]string{attrTitle: strings.TrimSpace(title)}
	if public {
		attrs[attrPublic] = "true"
	}
	node, err := s.store.CreateNode(ctx, graph.Node{Kind: graph.KindSchema, Name: slug, Attrs: attrs})
	if err != nil {
		return Schema{}, err
	}
	if !public {
		for _, name := range scopedPermissions(slug) {
			if _, err := s.authz.EnsurePermission(ctx, name); err != nil {
				s.logger.Error("provision schema permission", slog.String("permission", name), slog.Any("error", err))
			}
		}
	}
	return toSchema(node), nil
}

// Get fetches a schema by slug.
func (s *Service) Get(ctx context.Context, slug string) (Schema, error) {
	node, err := s.store.GetNodeByName(ctx, graph.KindSchema, slug)
	if err != nil {
		return Schema{}, err
	}
	return toSchema(node), nil
}

// List returns all schemas ordered by slug.
func (s *Service) List(ctx context.Context) ([]Schema, error) {
	nodes, err := s.store.ListNodes(ctx, graph.KindSchema)
	if err != nil {
		return nil, err
	}
	out := make([]Schema, len(nodes))
	for i, node := range nodes {
		out[i] = toSchema(node)
	}
	return out, nil
}

// UpdateTitle rewrites a schema's title. The slug and public flag are
// immutable; permission names derived from them must stay stable.
func (s *Service) UpdateTitle(ctx context.Context, slug, title string) (Schema, error) {
	node, err := s.store.GetNodeByName(ctx, graph.KindSchema, slug)
	if err != nil {
		return Schema{}, err
	}
	if node.Attrs == nil {
		node.Attrs = map[string]string{}
	}
	node.Attrs[attrTitle] = strings.TrimSpace(title)
	updated, err := s.store.UpdateNode(ctx, node)
	if err != nil {
		return Schema{}, err
	}
	return toSchema(updated), nil
}

// Delete removes a schema and, for private ones, its scoped permissions
// together with every role edge that referenced them.
func (s *Service) Delete(ctx context.Context, slug string) error {
	node, err := s.store.GetNodeByName(ctx, graph.KindSchema, slug)
	if err != nil {
		return err
	}
	if node.Attr(attrPublic) != "true" {
		for _, name := range scopedPermissions(slug) {
			perm, err := s.authz.GetPermissionByName(ctx, name)
			if err != nil {
				if errors.Is(err, shared.ErrEntryNotFound) {
					continue
				}
				return err
			}
			if err := s.authz.DeletePermission(ctx, perm.ID); err != nil {
				return err
			}
		}
	}
	return s.store.DeleteNode(ctx, node.ID)
}

// EnsureScopedPermissions re-provisions missing permissions for private
// schemas. Used by the background integrity scan.
func (s *Service) EnsureScopedPermissions(ctx context.Context) (int, error) {
	all, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, schema := range all {
		if schema.Public {
			continue
		}
		for _, name := range scopedPermissions(schema.Slug) {
			if _, err := s.authz.GetPermissionByName(ctx, name); err == nil {
				continue
			} else if !errors.Is(err, shared.ErrEntryNotFound) {
				return repaired, err
			}
			if _, err := s.authz.EnsurePermission(ctx, name); err != nil {
				return repaired, err
			}
			repaired++
		}
	}
	return repaired, nil
}

func scopedPermissions(slug string) []string {
	return []string{
		slug + "::" + string(policy.OpRead),
		slug + "::" + string(policy.OpWrite),
		slug + "::" + string(policy.OpDelete),
	}
}

func toSchema(node graph.Node) Schema {
	return Schema{
		ID:        node.ID,
		Slug:      node.Name,
		Title:     node.Attr(attrTitle),
		Public:    node.Attr(attrPublic) == "true",
		CreatedAt: node.CreatedAt,
		UpdatedAt: node.UpdatedAt,
	}
}
