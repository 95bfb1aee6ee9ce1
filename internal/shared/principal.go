package shared

import (
	"context"
	"slices"
)

// Principal describes the authenticated actor for the current request.
// Authorities carry the effective permission set resolved at authentication
// time; they are never read back from request input.
type Principal struct {
	ID          int64
	Username    string
	Authorities []string
}

// HasAuthority reports whether the principal holds the named authority.
func (p *Principal) HasAuthority(name string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Authorities, name)
}

// HasAnyAuthority reports whether the principal holds at least one of the
// named authorities.
func (p *Principal) HasAnyAuthority(names ...string) bool {
	if p == nil {
		return false
	}
	for _, name := range names {
		if slices.Contains(p.Authorities, name) {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context. Returns nil for
// unauthenticated requests; callers must treat nil as access denied.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
