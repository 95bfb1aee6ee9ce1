package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/quarry-hq/quarry/internal/auth"
	"github.com/quarry-hq/quarry/internal/comments"
	"github.com/quarry-hq/quarry/internal/nav"
	"github.com/quarry-hq/quarry/internal/permissions"
	"github.com/quarry-hq/quarry/internal/projects"
	"github.com/quarry-hq/quarry/internal/roles"
	"github.com/quarry-hq/quarry/internal/tickets"
	"github.com/quarry-hq/quarry/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthMiddleware     func(http.Handler) http.Handler
	AuthHandler        *auth.Handler
	NavHandler         *nav.Handler
	UsersHandler       *users.Handler
	RolesHandler       *roles.Handler
	PermissionsHandler *permissions.Handler
	ProjectsHandler    *projects.Handler
	TicketsHandler     *tickets.Handler
	CommentsHandler    *comments.Handler
}

// NewRouter constructs the chi.Router with application defaults. All API
// routes live under /api/v1.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
		Auth:   params.AuthMiddleware,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)
		if params.NavHandler != nil {
			r.Route("/ui/navigation", params.NavHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.ProjectsHandler != nil {
			r.Route("/projects", params.ProjectsHandler.MountRoutes)
		}
		if params.TicketsHandler != nil {
			r.Route("/tickets", params.TicketsHandler.MountRoutes)
		}
		if params.CommentsHandler != nil {
			r.Route("/comments", params.CommentsHandler.MountRoutes)
		}
	})

	return r
}
