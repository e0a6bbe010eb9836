// Package groups exposes group CRUD and membership listing endpoints.
package groups

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-cms/gatehouse/internal/authz"
	"github.com/gatehouse-cms/gatehouse/internal/graph"
	"github.com/gatehouse-cms/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-cms/gatehouse/internal/policy"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

// Handler serves the group endpoints.
type Handler struct {
	logger   *slog.Logger
	authz    *authz.Service
	store    graph.Store
	guard    *policy.Guard
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, authzSvc *authz.Service, store graph.Store, guard *policy.Guard) *Handler {
	return &Handler{logger: logger, authz: authzSvc, store: store, guard: guard, validate: validator.New()}
}

type groupResponse struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type groupCreateRequest struct {
	Slug  string `json:"slug" validate:"required"`
	Title string `json:"title"`
}

type groupUpdateRequest struct {
	Title string `json:"title" validate:"required"`
}

// Routes mounts the handler.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{slug}", h.get)
	r.Put("/{slug}", h.update)
	r.Delete("/{slug}", h.delete)
	r.Get("/{slug}/users", h.members)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermGroupRead); err != nil {
		httpx.RespondError(w, err)
		return
	}
	groups, err := h.authz.ListGroups(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]groupResponse, len(groups))
	for i, group := range groups {
		out[i] = toResponse(group)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermGroupRead); err != nil {
		httpx.RespondError(w, err)
		return
	}
	group, err := h.authz.GetGroupBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(group))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermGroupWrite); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req groupCreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	group, err := h.authz.CreateGroup(r.Context(), req.Slug, req.Title)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(group))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermGroupWrite); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req groupUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	group, err := h.authz.GetGroupBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	group, err = h.authz.UpdateGroup(r.Context(), group.ID, req.Title)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(group))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermGroupDelete); err != nil {
		httpx.RespondError(w, err)
		return
	}
	group, err := h.authz.GetGroupBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.authz.DeleteGroup(r.Context(), group.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) members(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermGroupRead); err != nil {
		httpx.RespondError(w, err)
		return
	}
	group, err := h.authz.GetGroupBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	users, err := h.store.Predecessors(r.Context(), graph.EdgeUserGroup, group.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	logins := make([]string, len(users))
	for i, user := range users {
		logins[i] = user.Name
	}
	httpx.JSON(w, http.StatusOK, map[string][]string{"list": logins})
}

func (h *Handler) require(r *http.Request, perm string) error {
	return h.guard.Require(r.Context(), shared.TokenFromContext(r.Context()), perm)
}

func toResponse(group authz.Group) groupResponse {
	return groupResponse{
		ID:        group.ID,
		Slug:      group.Slug,
		Title:     group.Title,
		CreatedAt: group.CreatedAt,
		UpdatedAt: group.UpdatedAt,
	}
}
