package auth

import (
	"net/http"
	"strings"

	"github.com/quarry-hq/quarry/internal/shared"
)

// Middleware turns a bearer token into a principal in the request context.
// The token's authority snapshot is ignored; authorities are resolved fresh
// from the store so role or permission changes apply immediately. Any
// verification or lookup failure falls through to the unauthenticated path,
// where guarded routes respond 401.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := s.tokens.Verify(r.Context(), raw)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := s.users.GetByUsername(r.Context(), claims.Subject)
		if err != nil || !user.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		p := &shared.Principal{
			ID:          user.ID,
			Username:    user.Username,
			Authorities: effective(user),
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
