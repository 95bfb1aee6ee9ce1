package httpx

import (
	"errors"
	"net/http"

	"github.com/quarry-hq/quarry/internal/shared"
	"github.com/quarry-hq/quarry/internal/token"
)

// RespondError maps domain errors to HTTP responses. Self-action violations
// map to 400 (the actor is authorized but the action is rejected), in-use and
// conflicts to 409, missing resources to 404, authority failures to 401/403.
func RespondError(w http.ResponseWriter, err error) {
	var selfAction *shared.SelfActionError
	var inUse *shared.ResourceInUseError

	switch {
	case errors.As(err, &selfAction):
		Problem(w, http.StatusBadRequest, "Self Action Forbidden", selfAction.Message)
	case errors.As(err, &inUse):
		Problem(w, http.StatusConflict, "Resource In Use", inUse.Message)
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, token.ErrInvalidToken):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrAccountDisabled):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "You do not have permission to perform this action.")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
