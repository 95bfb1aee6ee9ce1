package nav

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quarry-hq/quarry/internal/authz"
	"github.com/quarry-hq/quarry/internal/platform/httpx"
	"github.com/quarry-hq/quarry/internal/shared"
)

// Handler serves the navigation menu filtered by the caller's live authority
// set. The set comes from the authenticated principal in context, never from
// request input.
type Handler struct {
	registry *Registry
}

// NewHandler constructs a Handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// MountRoutes registers navigation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(authz.RequireAuthenticated).Get("/", h.getNavigation)
}

func (h *Handler) getNavigation(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, h.registry.GetForPermissions(p.Authorities))
}
