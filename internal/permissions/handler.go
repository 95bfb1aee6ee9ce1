package permissions

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/quarry-hq/quarry/internal/authz"
	"github.com/quarry-hq/quarry/internal/nav"
	"github.com/quarry-hq/quarry/internal/platform/httpx"
)

const guardExpression = "hasAuthority('ROLE_MANAGE')"

// NavRegistration declares the permissions menu entry. The catalog is managed
// under the same authority as roles.
func NavRegistration() nav.Registration {
	return nav.Registration{
		Label:       "Permissions",
		Path:        "/permissions",
		Icon:        "key",
		Expressions: []string{guardExpression},
	}
}

// Handler exposes the permission catalog over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(service *Service, validate *validator.Validate) *Handler {
	return &Handler{service: service, validate: validate}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(authz.RequireExpression(guardExpression))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Delete("/{name}", h.delete)
	})
}

type permissionResponse struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type createPermissionRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	Description string `json:"description" validate:"max=255"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionResponse{Name: p.Name, Description: p.Description})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	perm, err := h.service.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, permissionResponse{Name: perm.Name, Description: perm.Description})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
