package users

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/quarry-hq/quarry/internal/authz"
	"github.com/quarry-hq/quarry/internal/nav"
	"github.com/quarry-hq/quarry/internal/platform/httpx"
	"github.com/quarry-hq/quarry/internal/shared"
)

const guardExpression = "hasAuthority('USER_MANAGE')"

// NavRegistration declares the users menu entry.
func NavRegistration() nav.Registration {
	return nav.Registration{
		Label:       "Users",
		Path:        "/users",
		Icon:        "user",
		Expressions: []string{guardExpression},
	}
}

// Handler exposes user management over HTTP. Most routes require the
// management authority; reading a single profile is additionally open to the
// profile's owner.
type Handler struct {
	service  *Service
	decider  *authz.Decider
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(service *Service, decider *authz.Decider, validate *validator.Validate) *Handler {
	return &Handler{service: service, decider: decider, validate: validate}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(authz.RequireAuthenticated).Post("/me/deactivate", h.deactivateSelf)
	r.With(authz.RequireAuthenticated).Get("/{username}", h.get)

	r.Group(func(r chi.Router) {
		r.Use(authz.RequireExpression(guardExpression))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Put("/{username}", h.update)
		r.Delete("/{username}", h.delete)
		r.Post("/{username}/activate", h.activate)
		r.Put("/{username}/password", h.resetPassword)
		r.Post("/{username}/roles/{role}", h.assignRole)
		r.Delete("/{username}/roles/{role}", h.removeRole)
		r.Post("/{username}/permissions/{permission}", h.grantPermission)
		r.Delete("/{username}/permissions/{permission}", h.revokePermission)
	})
}

type userResponse struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Enabled     bool     `json:"enabled"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func toResponse(user *User) userResponse {
	perms := user.Permissions
	if perms == nil {
		perms = []string{}
	}
	return userResponse{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Enabled:     user.Enabled,
		Roles:       user.RoleNames(),
		Permissions: perms,
	}
}

type createUserRequest struct {
	Username  string   `json:"username" validate:"required,min=3,max=64"`
	Email     string   `json:"email" validate:"required,email"`
	Password  string   `json:"password" validate:"required,min=8,max=72"`
	FirstName string   `json:"firstName" validate:"required,max=64"`
	LastName  string   `json:"lastName" validate:"required,max=64"`
	Roles     []string `json:"roles"`
}

type updateUserRequest struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	FirstName *string `json:"firstName" validate:"omitempty,max=64"`
	LastName  *string `json:"lastName" validate:"omitempty,max=64"`
	Enabled   *bool   `json:"enabled"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]userResponse, 0, len(all))
	for i := range all {
		out = append(out, toResponse(&all[i]))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	p := shared.PrincipalFromContext(r.Context())
	if !h.decider.CanAccessUser(username, p) {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	user, err := h.service.Get(r.Context(), username)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	user, err := h.service.Create(r.Context(), CreateUser{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Roles:     req.Roles,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(user))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	user, err := h.service.Update(r.Context(), chi.URLParam(r, "username"), UpdateUser{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Enabled:   req.Enabled,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "username"), p); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivateSelf(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	if err := h.service.DeactivateSelf(r.Context(), p); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Activate(r.Context(), chi.URLParam(r, "username")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	if err := h.service.AdminResetPassword(r.Context(), chi.URLParam(r, "username"), req.NewPassword); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	err := h.service.AssignRole(r.Context(), chi.URLParam(r, "username"), chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	err := h.service.RemoveRole(r.Context(), chi.URLParam(r, "username"), chi.URLParam(r, "role"), p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	err := h.service.GrantPermission(r.Context(), chi.URLParam(r, "username"), chi.URLParam(r, "permission"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	err := h.service.RevokePermission(r.Context(), chi.URLParam(r, "username"), chi.URLParam(r, "permission"), p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
