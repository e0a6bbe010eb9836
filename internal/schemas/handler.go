package schemas

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-cms/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-cms/gatehouse/internal/policy"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

// Handler serves the schema registry endpoints.
type Handler struct {
	service  *Service
	guard    *policy.Guard
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(service *Service, guard *policy.Guard) *Handler {
	return &Handler{service: service, guard: guard, validate: validator.New()}
}

type schemaResponse struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type schemaCreateRequest struct {
	Slug   string `json:"slug" validate:"required"`
	Title  string `json:"title"`
	Public bool   `json:"public"`
}

type schemaUpdateRequest struct {
	Title string `json:"title" validate:"required"`
}

// Routes mounts the handler.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{slug}", h.get)
	r.Put("/{slug}", h.update)
	r.Delete("/{slug}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermSchemaRead); err != nil {
		httpx.RespondError(w, err)
		return
	}
	all, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]schemaResponse, len(all))
	for i, schema := range all {
		out[i] = toResponse(schema)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermSchemaRead); err != nil {
		httpx.RespondError(w, err)
		return
	}
	schema, err := h.service.Get(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(schema))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermSchemaWrite); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req schemaCreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	schema, err := h.service.Create(r.Context(), req.Slug, req.Title, req.Public)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(schema))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermSchemaWrite); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req schemaUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	schema, err := h.service.UpdateTitle(r.Context(), chi.URLParam(r, "slug"), req.Title)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(schema))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.require(r, shared.PermSchemaDelete); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "slug")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) require(r *http.Request, perm string) error {
	return h.guard.Require(r.Context(), shared.TokenFromContext(r.Context()), perm)
}

func toResponse(schema Schema) schemaResponse {
	return schemaResponse{
		ID:        schema.ID,
		Slug:      schema.Slug,
		Title:     schema.Title,
		Public:    schema.Public,
		CreatedAt: schema.CreatedAt,
		UpdatedAt: schema.UpdatedAt,
	}
}
