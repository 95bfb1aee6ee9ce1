package tickets

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

// NavRegistration declares the tickets menu entry. Listed for everyone who
// can at least see their own tickets; the blanket authorities widen what the
// routes return but are not required for visibility.
func NavRegistration() nav.Registration {
	return nav.Registration{
		Label:       "Tickets",
		Path:        "/tickets",
		Icon:        "ticket",
		Expressions: []string{"isAuthenticated()"},
	}
}

// Handler exposes ticket CRUD over HTTP. Per-ticket decisions live in the
// service; the routes only require an authenticated caller.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(service *Service, validate *validator.Validate) *Handler {
	return &Handler{service: service, validate: validate}
}

// MountRoutes registers ticket routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(authz.RequireAuthenticated)
		r.Get("/mine", h.listMine)
		r.Get("/project/{projectID}", h.listByProject)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Post("/{id}/close", h.close)
	})
}

type ticketRequest struct {
	ProjectID   int64  `json:"projectId" validate:"required"`
	Title       string `json:"title" validate:"required,min=2,max=200"`
	Description string `json:"description" validate:"max=5000"`
	AssigneeID  *int64 `json:"assigneeId"`
}

type updateTicketRequest struct {
	Title       string `json:"title" validate:"required,min=2,max=200"`
	Description string `json:"description" validate:"max=5000"`
	AssigneeID  *int64 `json:"assigneeId"`
}

type ticketResponse struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"projectId"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Creator   string `json:"creator"`
	Assignee  string `json:"assignee,omitempty"`
}

func toResponse(t *Ticket) ticketResponse {
	return ticketResponse{
		ID:        t.ID,
		ProjectID: t.ProjectID,
		Title:     t.Title,
		Status:    t.Status,
		Creator:   t.CreatorUsername,
		Assignee:  t.AssigneeUsername,
	}
}

func toResponses(all []Ticket) []ticketResponse {
	out := make([]ticketResponse, 0, len(all))
	for i := range all {
		out = append(out, toResponse(&all[i]))
	}
	return out
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	all, err := h.service.ListMine(r.Context(), p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponses(all))
}

func (h *Handler) listByProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid project id")
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	all, err := h.service.ListByProject(r.Context(), projectID, p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponses(all))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid ticket id")
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	t, err := h.service.Get(r.Context(), id, p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	created, err := h.service.Create(r.Context(), CreateTicket{
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		AssigneeID:  req.AssigneeID,
	}, p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid ticket id")
		return
	}
	var req updateTicketRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	updated, err := h.service.Update(r.Context(), id, UpdateTicket{
		Title:       req.Title,
		Description: req.Description,
		AssigneeID:  req.AssigneeID,
	}, p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(updated))
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid ticket id")
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	if err := h.service.Close(r.Context(), id, p); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
