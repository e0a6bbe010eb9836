// Package auth exposes the login, logout, and whoami endpoints.
package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-cms/gatehouse/internal/identity"
	"github.com/gatehouse-cms/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-cms/gatehouse/internal/session"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

// Handler serves the authentication endpoints.
type Handler struct {
	logger     *slog.Logger
	users      *identity.Service
	sessions   *session.Manager
	validate   *validator.Validate
	cookieName string
	secure     bool
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, users *identity.Service, sessions *session.Manager, cookieName string, secure bool) *Handler {
	return &Handler{
		logger:     logger,
		users:      users,
		sessions:   sessions,
		validate:   validator.New(),
		cookieName: cookieName,
		secure:     secure,
	}
}

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token       string    `json:"token"`
	Login       string    `json:"login"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	Groups      []string  `json:"groups"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Routes mounts the handler. Rate limiting on login is applied by the router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.users.Verify(r.Context(), req.Login, req.Password)
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("verify credentials", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	token, err := h.sessions.Create(r.Context(), user)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	snap, err := h.sessions.Resolve(r.Context(), token)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	http.SetCookie(w, h.sessionCookie(token, snap.ExpiresAt))
	httpx.JSON(w, http.StatusOK, loginResponse{
		Token:       token,
		Login:       snap.Login,
		Roles:       snap.Roles,
		Permissions: snap.Permissions,
		Groups:      snap.Groups,
		ExpiresAt:   snap.ExpiresAt,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token := shared.TokenFromContext(r.Context())
	if err := h.sessions.Revoke(r.Context(), token); err != nil {
		httpx.RespondError(w, err)
		return
	}
	http.SetCookie(w, h.expiredCookie())
	httpx.NoContent(w)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sessions.Resolve(r.Context(), shared.TokenFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{
		Login:       snap.Login,
		Roles:       snap.Roles,
		Permissions: snap.Permissions,
		Groups:      snap.Groups,
		ExpiresAt:   snap.ExpiresAt,
	})
}

func (h *Handler) sessionCookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  expires,
	}
}

func (h *Handler) expiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
