package projects

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/quarry-hq/quarry/internal/authz"
	"github.com/quarry-hq/quarry/internal/nav"
	"github.com/quarry-hq/quarry/internal/platform/httpx"
	"github.com/quarry-hq/quarry/internal/shared"
)

const manageExpression = "hasAuthority('PROJECT_MANAGE')"

// NavRegistration declares the projects menu entry. Reading is open to any
// authenticated user, so no permissions are required for visibility.
func NavRegistration() nav.Registration {
	return nav.Registration{
		Label:       "Projects",
		Path:        "/projects",
		Icon:        "folder",
		Expressions: []string{"isAuthenticated()"},
	}
}

// Handler exposes project CRUD over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(service *Service, validate *validator.Validate) *Handler {
	return &Handler{service: service, validate: validate}
}

// MountRoutes registers project routes. Reads require authentication only;
// writes require the management authority.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(authz.RequireAuthenticated).Get("/", h.list)
	r.With(authz.RequireAuthenticated).Get("/{id}", h.get)

	r.Group(func(r chi.Router) {
		r.Use(authz.RequireExpression(manageExpression))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

type projectRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=128"`
	Description string `json:"description" validate:"max=2000"`
}

type projectResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func toResponse(p *Project) projectResponse {
	return projectResponse{ID: p.ID, Name: p.Name, Description: p.Description}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]projectResponse, 0, len(all))
	for i := range all {
		out = append(out, toResponse(&all[i]))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid project id")
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	created, err := h.service.Create(r.Context(), req.Name, req.Description, p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid project id")
		return
	}
	var req projectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	updated, err := h.service.Update(r.Context(), id, req.Name, req.Description, p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(updated))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid project id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
