// Package authz computes effective authority sets, evaluates access
// predicates, and parses the declarative guard expressions attached to
// routes.
package authz

import (
	"regexp"
	"sort"
	"strings"
)

// Guard expressions use a narrow predicate vocabulary: hasRole('X'),
// hasAnyRole('X','Y'), hasAuthority('X'), hasAnyAuthority('X','Y').
// Anything else — isAuthenticated(), custom predicate references — is
// deliberately unparseable and contributes nothing. Extraction never fails:
// one broken expression must not take down registry construction.
var (
	hasRolePattern         = regexp.MustCompile(`hasRole\('(.*?)'\)`)
	hasAnyRolePattern      = regexp.MustCompile(`hasAnyRole\((.*?)\)`)
	hasAuthorityPattern    = regexp.MustCompile(`hasAuthority\('(.*?)'\)`)
	hasAnyAuthorityPattern = regexp.MustCompile(`hasAnyAuthority\((.*?)\)`)
)

const rolePrefix = "ROLE_"

// Normalize trims an authority name and strips the ROLE_ prefix, collapsing
// role-style and authority-style predicates into one vocabulary.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	return strings.TrimPrefix(name, rolePrefix)
}

// Extract returns the normalized authority names referenced by a single guard
// expression. Unrecognized expressions yield an empty result.
func Extract(expr string) []string {
	seen := make(map[string]struct{})
	for _, pattern := range []*regexp.Regexp{hasRolePattern, hasAnyRolePattern, hasAuthorityPattern, hasAnyAuthorityPattern} {
		for _, match := range pattern.FindAllStringSubmatch(expr, -1) {
			for _, raw := range strings.Split(match[1], ",") {
				name := Normalize(stripQuotes(strings.TrimSpace(raw)))
				if name == "" {
					continue
				}
				seen[name] = struct{}{}
			}
		}
	}
	return sortedNames(seen)
}

// ExtractAll unions the extraction of several expressions, typically a
// component's type-level guard plus one per operation.
func ExtractAll(exprs ...string) []string {
	seen := make(map[string]struct{})
	for _, expr := range exprs {
		for _, name := range Extract(expr) {
			seen[name] = struct{}{}
		}
	}
	return sortedNames(seen)
}

func stripQuotes(s string) string {
	s = strings.Trim(s, `'"`)
	return s
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
