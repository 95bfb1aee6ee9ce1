// Package nav builds and serves the permission-aware navigation menu.
//
// Handlers register themselves with an explicit Registration — a build-time
// table standing in for runtime discovery — and the registry is constructed
// exactly once at startup, before the first request. After Build the
// descriptor universe is frozen; reads need no locking and the per-permission
// filtered views are cached for the process lifetime.
package nav

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/quarry-hq/quarry/internal/authz"
)

// Descriptor is a single navigation menu entry. RequiredPermissions is the
// union of the registration's explicit permissions and the names extracted
// from its guard expressions. An empty set means visible to any
// authenticated caller.
type Descriptor struct {
	Label               string   `json:"label"`
	Path                string   `json:"path"`
	Icon                string   `json:"icon"`
	RequiredPermissions []string `json:"requiredPermissions"`
}

// Registration declares a navigable component: its menu metadata, any
// explicitly required permissions, and the declarative guard expressions of
// its operations. Expressions outside the recognized vocabulary contribute
// nothing.
type Registration struct {
	Label       string
	Path        string
	Icon        string
	Permissions []string
	Expressions []string
}

// Registry holds the frozen descriptor list and the filtered-view cache.
type Registry struct {
	items []Descriptor

	mu    sync.RWMutex
	cache map[string][]Descriptor
	group singleflight.Group
}

// Build constructs the registry from the registration table. Descriptors are
// sorted deterministically by label; the list never changes afterwards.
func Build(regs []Registration) *Registry {
	items := make([]Descriptor, 0, len(regs))
	for _, reg := range regs {
		required := authz.ExtractAll(reg.Expressions...)
		merged := make(map[string]struct{}, len(required)+len(reg.Permissions))
		for _, name := range reg.Permissions {
			if n := authz.Normalize(name); n != "" {
				merged[n] = struct{}{}
			}
		}
		for _, name := range required {
			merged[name] = struct{}{}
		}
		names := make([]string, 0, len(merged))
		for name := range merged {
			names = append(names, name)
		}
		sort.Strings(names)
		items = append(items, Descriptor{
			Label:               reg.Label,
			Path:                reg.Path,
			Icon:                reg.Icon,
			RequiredPermissions: names,
		})
	}

	collator := collate.New(language.English)
	sort.SliceStable(items, func(i, j int) bool {
		return collator.CompareString(items[i].Label, items[j].Label) < 0
	})

	return &Registry{
		items: items,
		cache: make(map[string][]Descriptor),
	}
}

// GetAll returns the full descriptor list, independent of caller.
func (r *Registry) GetAll() []Descriptor {
	return r.items
}

// GetForPermissions returns the descriptors visible to a caller holding the
// given permission set: entries whose requirement is empty or intersects the
// set. Results are cached per canonical permission-set key — keyed by the
// full set, not caller identity, since grants change between logins. Cache
// population is idempotent; concurrent first calls for the same key collapse
// through singleflight and any interleaving produces the same value.
func (r *Registry) GetForPermissions(permissions []string) []Descriptor {
	normalized := authz.NormalizeAll(permissions)
	key := strings.Join(normalized, ",")

	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	result, _, _ := r.group.Do(key, func() (any, error) {
		filtered := r.filter(normalized)
		r.mu.Lock()
		r.cache[key] = filtered
		r.mu.Unlock()
		return filtered, nil
	})
	return result.([]Descriptor)
}

func (r *Registry) filter(permissions []string) []Descriptor {
	set := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		set[p] = struct{}{}
	}
	filtered := make([]Descriptor, 0, len(r.items))
	for _, item := range r.items {
		if len(item.RequiredPermissions) == 0 || anyIn(item.RequiredPermissions, set) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func anyIn(names []string, set map[string]struct{}) bool {
	for _, name := range names {
		if _, ok := set[name]; ok {
			return true
		}
	}
	return false
}
