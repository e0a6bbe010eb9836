// Package perms exposes the permission catalog endpoints.
package perms

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-cms/gatehouse/internal/authz"
	"github.com/gatehouse-cms/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-cms/gatehouse/internal/policy"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

// Handler serves the permission catalog.
type Handler struct {
	authz    *authz.Service
	guard    *policy.Guard
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(authzSvc *authz.Service, guard *policy.Guard) *Handler {
	return &Handler{authz: authzSvc, guard: guard, validate: validator.New()}
}

type permCreateRequest struct {
	Name string `json:"name" validate:"required,min=3"`
}

// Routes mounts the handler. The catalog is managed under the role scope
// because permissions only matter through role grants.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Delete("/{name}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermRoleRead); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perms, err := h.authz.ListPermissions(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	names := make([]string, len(perms))
	for i, perm := range perms {
		names[i] = perm.Name
	}
	httpx.JSON(w, http.StatusOK, map[string][]string{"list": names})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermRoleWrite); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req permCreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := h.authz.CreatePermission(r.Context(), req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"id": perm.ID, "name": perm.Name})
}

// delete refuses to remove the built-in scopes that gate the console itself.
func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermRoleDelete); err != nil {
		httpx.RespondError(w, err)
		return
	}
	name := chi.URLParam(r, "name")
	if slices.Contains(shared.CoreScopes(), name) {
		httpx.Problem(w, http.StatusConflict, "Conflict", "built-in permissions cannot be deleted")
		return
	}
	perm, err := h.authz.GetPermissionByName(r.Context(), name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.authz.DeletePermission(r.Context(), perm.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) require(r *http.Request, perm string) error {
	return h.guard.Require(r.Context(), shared.TokenFromContext(r.Context()), perm)
}
