package authz

import (
	"net/http"

	"github.com/quarry-hq/quarry/internal/platform/httpx"
	"github.com/quarry-hq/quarry/internal/shared"
)

// RequireAuthenticated rejects requests without a principal in context.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.PrincipalFromContext(r.Context()) == nil {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAny ensures the principal holds at least one of the named
// authorities. Names are compared after Normalize on both sides so
// hasRole('ADMIN') matches a granted ROLE_ADMIN. Missing principal is 401,
// missing authority 403.
func RequireAny(authorities ...string) func(http.Handler) http.Handler {
	required := NormalizeAll(authorities)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := shared.PrincipalFromContext(r.Context())
			if p == nil {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			if len(required) == 0 || intersects(NormalizeAll(p.Authorities), required) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.RespondError(w, shared.ErrForbidden)
		})
	}
}

func intersects(granted, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, g := range granted {
		set[g] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

// RequireExpression enforces the authority part of a declarative guard
// expression. The expression is parsed once at route registration; an
// expression whose vocabulary cannot be extracted (e.g. isAuthenticated())
// degrades to an authenticated-only gate. Routes that combine authorities
// with ownership predicates pass the ownership half explicitly.
func RequireExpression(expr string) func(http.Handler) http.Handler {
	required := Extract(expr)
	if len(required) == 0 {
		return func(next http.Handler) http.Handler {
			return RequireAuthenticated(next)
		}
	}
	return RequireAny(required...)
}
