package authz

import "sort"

// RoleGrant is the snapshot of a role needed to resolve authorities: its name
// and the permissions it carries.
type RoleGrant struct {
	Name        string
	Permissions []string
}

// EffectiveAuthorities returns the deduplicated, sorted union of a
// principal's direct permissions, its role names, and every permission those
// roles carry. Pure function over the snapshot; cheap enough to call on every
// request. A principal with no grants yields an empty set, which is a valid
// state: it can authenticate but reaches nothing permission-gated.
func EffectiveAuthorities(direct []string, roles []RoleGrant) []string {
	seen := make(map[string]struct{}, len(direct))
	for _, p := range direct {
		if p != "" {
			seen[p] = struct{}{}
		}
	}
	for _, role := range roles {
		if role.Name != "" {
			seen[role.Name] = struct{}{}
		}
		for _, p := range role.Permissions {
			if p != "" {
				seen[p] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NormalizeAll maps Normalize over a set of authority names, deduplicated.
// Used when matching authorities against the navigation vocabulary, where
// ROLE_ prefixes are stripped.
func NormalizeAll(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		n := Normalize(name)
		if n == "" {
			continue
		}
		seen[n] = struct{}{}
	}
	return sortedNames(seen)
}
