// Package users exposes user CRUD, blocking, and role/group listing
// endpoints.
package users

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-cms/gatehouse/internal/authz"
	"github.com/gatehouse-cms/gatehouse/internal/identity"
	"github.com/gatehouse-cms/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-cms/gatehouse/internal/policy"
	"github.com/gatehouse-cms/gatehouse/internal/session"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

// Handler serves the user endpoints.
type Handler struct {
	logger   *slog.Logger
	users    *identity.Service
	authz    *authz.Service
	sessions *session.Manager
	guard    *policy.Guard
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, users *identity.Service, authzSvc *authz.Service, sessions *session.Manager, guard *policy.Guard) *Handler {
	return &Handler{
		logger:   logger,
		users:    users,
		authz:    authzSvc,
		sessions: sessions,
		guard:    guard,
		validate: validator.New(),
	}
}

type userResponse struct {
	ID        string    `json:"id"`
	Login     string    `json:"login"`
	Blocked   bool      `json:"blocked"`
	Roles     []string  `json:"roles,omitempty"`
	Groups    []string  `json:"groups,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type userCreateRequest struct {
	Login    string `json:"login" validate:"required,min=3"`
	Password string `json:"password" validate:"required,min=8"`
}

type userUpdateRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Routes mounts the handler.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{login}", h.get)
	r.Put("/{login}", h.update)
	r.Delete("/{login}", h.delete)
	r.Post("/{login}/block", h.block)
	r.Post("/{login}/unblock", h.unblock)
	r.Get("/{login}/roles", h.roles)
	r.Get("/{login}/permissions", h.permissions)
	r.Get("/{login}/groups", h.groups)
	r.Post("/{login}/role/{role}", h.assignRole)
	r.Delete("/{login}/role/{role}", h.unassignRole)
	r.Post("/{login}/group/{group}", h.assignGroup)
	r.Delete("/{login}/group/{group}", h.unassignGroup)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermUserRead); err != nil {
		httpx.RespondError(w, err)
		return
	}
	users, err := h.users.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]userResponse, len(users))
	for i, user := range users {
		out[i] = toResponse(user, nil, nil)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermUserRead); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.users.FindByLogin(r.Context(), chi.URLParam(r, "login"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	roles, err := h.authz.EffectiveRoles(r.Context(), user.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	groups, err := h.authz.EffectiveGroups(r.Context(), user.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(user, roles, groups))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermUserWrite); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req userCreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.users.Create(r.Context(), req.Login, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(user, nil, nil))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermUserWrite); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req userUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed payload")
		return
	}
	user, err := h.users.FindByLogin(r.Context(), chi.URLParam(r, "login"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.Login != "" && req.Login != user.Login {
		if user, err = h.users.UpdateLogin(r.Context(), user.ID, req.Login); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if req.Password != "" {
		if err = h.users.ChangePassword(r.Context(), user.ID, req.Password); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	httpx.JSON(w, http.StatusOK, toResponse(user, nil, nil))
}

// delete revokes every live session first so the removed principal cannot
// keep acting on a cached snapshot.
func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermUserDelete); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.users.FindByLogin(r.Context(), chi.URLParam(r, "login"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.sessions.RevokeAllForUser(r.Context(), user.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.authz.DeleteUser(r.Context(), user.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) block(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

func (h *Handler) unblock(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *Handler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	if err := h.require(r, shared.PermUserWrite); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.users.FindByLogin(r.Context(), chi.URLParam(r, "login"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err = h.users.SetBlocked(r.Context(), user.ID, blocked)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if blocked {
		// Blocking ends existing sessions, not just future logins.
		if err := h.sessions.RevokeAllForUser(r.Context(), user.ID); err != nil {
			h.logger.Error("revoke sessions on block", slog.String("login", user.Login), slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, toResponse(user, nil, nil))
}

func (h *Handler) roles(w http.ResponseWriter, r *http.Request) {
	h.effective(w, r, h.authz.EffectiveRoles)
}

func (h *Handler) permissions(w http.ResponseWriter, r *http.Request) {
	h.effective(w, r, h.authz.EffectivePermissions)
}

func (h *Handler) groups(w http.ResponseWriter, r *http.Request) {
	h.effective(w, r, h.authz.EffectiveGroups)
}

func (h *Handler) effective(w http.ResponseWriter, r *http.Request, query func(ctx context.Context, userID string) ([]string, error)) {
	if err := h.require(r, shared.PermUserRead); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.users.FindByLogin(r.Context(), chi.URLParam(r, "login"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := query(r.Context(), user.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string][]string{"list": items})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	h.roleEdge(w, r, h.authz.AssignRole)
}

func (h *Handler) unassignRole(w http.ResponseWriter, r *http.Request) {
	h.roleEdge(w, r, h.authz.UnassignRole)
}

func (h *Handler) roleEdge(w http.ResponseWriter, r *http.Request, mutate func(ctx context.Context, userID, roleID string) error) {
	if err := h.require(r, shared.PermUserWrite); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.users.FindByLogin(r.Context(), chi.URLParam(r, "login"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.authz.GetRoleBySlug(r.Context(), chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := mutate(r.Context(), user.ID, role.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) assignGroup(w http.ResponseWriter, r *http.Request) {
	h.groupEdge(w, r, h.authz.AssignGroup)
}

func (h *Handler) unassignGroup(w http.ResponseWriter, r *http.Request) {
	h.groupEdge(w, r, h.authz.UnassignGroup)
}

func (h *Handler) groupEdge(w http.ResponseWriter, r *http.Request, mutate func(ctx context.Context, userID, groupID string) error) {
	if err := h.require(r, shared.PermUserWrite); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.users.FindByLogin(r.Context(), chi.URLParam(r, "login"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	group, err := h.authz.GetGroupBySlug(r.Context(), chi.URLParam(r, "group"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := mutate(r.Context(), user.ID, group.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) require(r *http.Request, perm string) error {
	return h.guard.Require(r.Context(), shared.TokenFromContext(r.Context()), perm)
}

func toResponse(user identity.User, roles, groups []string) userResponse {
	return userResponse{
		ID:        user.ID,
		Login:     user.Login,
		Blocked:   user.Blocked,
		Roles:     roles,
		Groups:    groups,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
