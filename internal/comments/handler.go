package comments

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

// NavRegistration declares the comments menu entry.
func NavRegistration() nav.Registration {
	return nav.Registration{
		Label:       "Comments",
		Path:        "/comments",
		Icon:        "message",
		Expressions: []string{"isAuthenticated()"},
	}
}

// Handler exposes comment CRUD over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(service *Service, validate *validator.Validate) *Handler {
	return &Handler{service: service, validate: validate}
}

// MountRoutes registers comment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(authz.RequireAuthenticated)
		r.Get("/ticket/{ticketID}", h.listByTicket)
		r.Post("/ticket/{ticketID}", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

type commentRequest struct {
	Body string `json:"body" validate:"required,min=1,max=5000"`
}

type commentResponse struct {
	ID       int64  `json:"id"`
	TicketID int64  `json:"ticketId"`
	Body     string `json:"body"`
	Author   string `json:"author"`
}

func toResponse(c *Comment) commentResponse {
	return commentResponse{ID: c.ID, TicketID: c.TicketID, Body: c.Body, Author: c.AuthorUsername}
}

func (h *Handler) listByTicket(w http.ResponseWriter, r *http.Request) {
	ticketID, err := strconv.ParseInt(chi.URLParam(r, "ticketID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid ticket id")
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	all, err := h.service.ListByTicket(r.Context(), ticketID, p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]commentResponse, 0, len(all))
	for i := range all {
		out = append(out, toResponse(&all[i]))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ticketID, err := strconv.ParseInt(chi.URLParam(r, "ticketID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid ticket id")
		return
	}
	var req commentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	created, err := h.service.Create(r.Context(), ticketID, req.Body, p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid comment id")
		return
	}
	var req commentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	updated, err := h.service.Update(r.Context(), id, req.Body, p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(updated))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid comment id")
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), id, p); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
