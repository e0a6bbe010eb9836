// Package roles exposes role CRUD and role-permission management endpoints.
package roles

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-cms/gatehouse/internal/authz"
	"github.com/gatehouse-cms/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-cms/gatehouse/internal/policy"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

// Handler serves the role endpoints.
type Handler struct {
	logger   *slog.Logger
	authz    *authz.Service
	guard    *policy.Guard
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, authzSvc *authz.Service, guard *policy.Guard) *Handler {
	return &Handler{logger: logger, authz: authzSvc, guard: guard, validate: validator.New()}
}

type roleResponse struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Permissions []string  `json:"permissions,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type roleCreateRequest struct {
	Slug        string   `json:"slug" validate:"required"`
	Title       string   `json:"title"`
	Permissions []string `json:"permissions"`
}

type roleUpdateRequest struct {
	Title       string   `json:"title"`
	Permissions []string `json:"permissions"`
}

type listRequest struct {
	List []string `json:"list" validate:"required,min=1"`
}

// Routes mounts the handler.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Delete("/", h.bulkDelete)
	r.Get("/{slug}", h.get)
	r.Put("/{slug}", h.update)
	r.Delete("/{slug}", h.delete)
	r.Get("/{slug}/permissions", h.getPermissions)
	r.Put("/{slug}/permissions", h.setPermissions)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermRoleRead); err != nil {
		httpx.RespondError(w, err)
		return
	}
	roles, err := h.authz.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, len(roles))
	for i, role := range roles {
		out[i] = toResponse(role, nil)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermRoleRead); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.authz.GetRoleBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perms, err := h.authz.RolePermissions(r.Context(), role.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(role, perms))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermRoleWrite); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req roleCreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.authz.CreateRole(r.Context(), req.Slug, req.Title)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var granted []string
	if len(req.Permissions) > 0 {
		if granted, err = h.authz.SetRolePermissions(r.Context(), role.ID, req.Permissions); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	httpx.JSON(w, http.StatusCreated, toResponse(role, granted))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermRoleWrite); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req roleUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed payload")
		return
	}
	role, err := h.authz.GetRoleBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err = h.authz.UpdateRole(r.Context(), role.ID, "", req.Title)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var granted []string
	if req.Permissions != nil {
		if granted, err = h.authz.SetRolePermissions(r.Context(), role.ID, req.Permissions); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	httpx.JSON(w, http.StatusOK, toResponse(role, granted))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermRoleDelete); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.authz.GetRoleBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.authz.DeleteRole(r.Context(), role.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

// bulkDelete removes a list of roles by slug; a failing item is logged and
// the batch continues.
func (h *Handler) bulkDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermRoleDelete); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req listRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	for _, slug := range req.List {
		role, err := h.authz.GetRoleBySlug(r.Context(), slug)
		if err == nil {
			err = h.authz.DeleteRole(r.Context(), role.ID)
		}
		if err != nil {
			h.logger.Error("role delete", slog.String("slug", slug), slog.Any("error", err))
		}
	}
	httpx.NoContent(w)
}

func (h *Handler) getPermissions(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermRoleRead); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.authz.GetRoleBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perms, err := h.authz.RolePermissions(r.Context(), role.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string][]string{"list": perms})
}

// setPermissions gives the role's permission list set-replacement semantics:
// everything is dropped, then the submitted names are granted. Unknown names
// are skipped, not fatal to the batch.
func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermRoleWrite); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req listRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed payload")
		return
	}
	role, err := h.authz.GetRoleBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	granted, err := h.authz.SetRolePermissions(r.Context(), role.ID, req.List)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string][]string{"list": granted})
}

func (h *Handler) require(r *http.Request, perm string) error {
	return h.guard.Require(r.Context(), shared.TokenFromContext(r.Context()), perm)
}

func toResponse(role authz.Role, perms []string) roleResponse {
	return roleResponse{
		ID:          role.ID,
		Slug:        role.Slug,
		Title:       role.Title,
		Permissions: perms,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}
