package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quarry-hq/quarry/internal/shared"
)

func doRequest(t *testing.T, mw func(http.Handler) http.Handler, p *shared.Principal) *httptest.ResponseRecorder {
	t.Helper()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if p != nil {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), p))
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestRequireAnyUnauthenticated(t *testing.T) {
	res := doRequest(t, RequireAny("USER_MANAGE"), nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestRequireAnyForbidden(t *testing.T) {
	res := doRequest(t, RequireAny("USER_MANAGE"), principal("dev", "TICKET_UPDATE"))
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequireAnyGranted(t *testing.T) {
	res := doRequest(t, RequireAny("USER_MANAGE", "ROLE_MANAGE"), principal("admin", "ROLE_MANAGE"))
	assert.Equal(t, http.StatusNoContent, res.Code)
}

func TestRequireAnyNormalizesRoleNames(t *testing.T) {
	res := doRequest(t, RequireAny("ADMIN"), principal("admin", "ROLE_ADMIN"))
	assert.Equal(t, http.StatusNoContent, res.Code)
}

func TestRequireExpressionAuthorityGate(t *testing.T) {
	mw := RequireExpression("hasAuthority('USER_MANAGE')")
	assert.Equal(t, http.StatusForbidden, doRequest(t, mw, principal("dev", "TICKET_UPDATE")).Code)
	assert.Equal(t, http.StatusNoContent, doRequest(t, mw, principal("admin", "USER_MANAGE")).Code)
}

func TestRequireExpressionOpaqueFallsBackToAuthenticated(t *testing.T) {
	mw := RequireExpression("isAuthenticated()")
	assert.Equal(t, http.StatusUnauthorized, doRequest(t, mw, nil).Code)
	assert.Equal(t, http.StatusNoContent, doRequest(t, mw, principal("anyone")).Code)
}
