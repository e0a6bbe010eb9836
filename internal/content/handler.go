// Package content exposes the content endpoints. It exists to exercise the
// access-policy choke point: every operation derives its required permission
// from the target schema before touching storage, and the authorize call
// always precedes the side effect.
package content

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-cms/gatehouse/internal/graph"
	"github.com/gatehouse-cms/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-cms/gatehouse/internal/policy"
	"github.com/gatehouse-cms/gatehouse/internal/schemas"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

const (
	attrTitle = "title"
	attrBody  = "body"
)

// Handler serves content reads and writes.
type Handler struct {
	store    graph.Store
	schemas  *schemas.Service
	guard    *policy.Guard
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(store graph.Store, schemaSvc *schemas.Service, guard *policy.Guard) *Handler {
	return &Handler{store: store, schemas: schemaSvc, guard: guard, validate: validator.New()}
}

type contentResponse struct {
	Schema    string    `json:"schema"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type contentPutRequest struct {
	Title string `json:"title" validate:"required"`
	Body  string `json:"body"`
}

// Routes mounts the handler.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/{schema}", h.list)
	r.Get("/{schema}/{slug}", h.get)
	r.Put("/{schema}/{slug}", h.put)
	r.Delete("/{schema}/{slug}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	schema, err := h.authorize(r, policy.OpRead)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	nodes, err := h.store.ListNodes(r.Context(), graph.KindContent)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	prefix := schema.Slug + "/"
	out := make([]contentResponse, 0)
	for _, node := range nodes {
		if len(node.Name) > len(prefix) && node.Name[:len(prefix)] == prefix {
			out = append(out, toResponse(schema.Slug, node))
		}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	schema, err := h.authorize(r, policy.OpRead)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	node, err := h.store.GetNodeByName(r.Context(), graph.KindContent, contentName(schema.Slug, chi.URLParam(r, "slug")))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(schema.Slug, node))
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	schema, err := h.authorize(r, policy.OpWrite)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req contentPutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	name := contentName(schema.Slug, chi.URLParam(r, "slug"))
	attrs := map[string]string{attrTitle: req.Title, attrBody: req.Body}
	node, err := h.store.GetNodeByName(r.Context(), graph.KindContent, name)
	switch {
	case err == nil:
		node.Attrs = attrs
		if node, err = h.store.UpdateNode(r.Context(), node); err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, toResponse(schema.Slug, node))
	default:
		node, err = h.store.CreateNode(r.Context(), graph.Node{Kind: graph.KindContent, Name: name, Attrs: attrs})
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, toResponse(schema.Slug, node))
	}
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	schema, err := h.authorize(r, policy.OpDelete)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	node, err := h.store.GetNodeByName(r.Context(), graph.KindContent, contentName(schema.Slug, chi.URLParam(r, "slug")))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.store.DeleteNode(r.Context(), node.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

// authorize resolves the schema named in the URL and gates the operation on
// the permission derived from it. A missing schema surfaces as forbidden,
// not as not-found, so callers cannot enumerate schemas they cannot read.
func (h *Handler) authorize(r *http.Request, op policy.Operation) (schemas.Schema, error) {
	schema, err := h.schemas.Get(r.Context(), chi.URLParam(r, "schema"))
	if err != nil {
		return schemas.Schema{}, shared.ErrAccessForbidden
	}
	token := shared.TokenFromContext(r.Context())
	if err := h.guard.Authorize(r.Context(), token, schema.Resource(), op); err != nil {
		return schemas.Schema{}, err
	}
	return schema, nil
}

func contentName(schemaSlug, slug string) string {
	return schemaSlug + "/" + shared.Slugify(slug)
}

func toResponse(schemaSlug string, node graph.Node) contentResponse {
	return contentResponse{
		Schema:    schemaSlug,
		Slug:      node.Name[len(schemaSlug)+1:],
		Title:     node.Attr(attrTitle),
		Body:      node.Attr(attrBody),
		CreatedAt: node.CreatedAt,
		UpdatedAt: node.UpdatedAt,
	}
}
