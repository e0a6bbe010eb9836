package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/gatehouse-cms/gatehouse/internal/auth"
	"github.com/gatehouse-cms/gatehouse/internal/content"
	"github.com/gatehouse-cms/gatehouse/internal/groups"
	"github.com/gatehouse-cms/gatehouse/internal/observability"
	"github.com/gatehouse-cms/gatehouse/internal/perms"
	"github.com/gatehouse-cms/gatehouse/internal/roles"
	"github.com/gatehouse-cms/gatehouse/internal/schemas"
	"github.com/gatehouse-cms/gatehouse/internal/users"
)

// RouterParams carries the handlers mounted on the API router.
type RouterParams struct {
	Config         *Config
	AuthHandler    *auth.Handler
	UserHandler    *users.Handler
	RoleHandler    *roles.Handler
	GroupHandler   *groups.Handler
	PermHandler    *perms.Handler
	SchemaHandler  *schemas.Handler
	ContentHandler *content.Handler
	Metrics        *observability.Metrics
	Middlewares    []func(http.Handler) http.Handler
}

// NewRouter assembles the HTTP surface.
func NewRouter(params RouterParams) chi.Router {
	r := chi.NewRouter()
	for _, mw := range params.Middlewares {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	loginLimit, loginWindow := 10, time.Minute
	if params.Config != nil {
		if params.Config.LoginRateLimit > 0 {
			loginLimit = params.Config.LoginRateLimit
		}
		if params.Config.LoginRateWindow > 0 {
			loginWindow = params.Config.LoginRateWindow
		}
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(loginLimit, loginWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))
			r.Route("/auth", params.AuthHandler.Routes)
		})
		r.Route("/user", params.UserHandler.Routes)
		r.Route("/role", params.RoleHandler.Routes)
		r.Route("/group", params.GroupHandler.Routes)
		r.Route("/permission", params.PermHandler.Routes)
		r.Route("/schema", params.SchemaHandler.Routes)
		r.Route("/content", params.ContentHandler.Routes)
	})

	return r
}
