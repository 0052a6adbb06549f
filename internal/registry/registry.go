package registry

import (
	"strings"

	"github.com/samber/lo"
)

type entry struct {
	site Site
	code string
	name string
}

// Registry resolves free-text site identifiers against the canonical site list.
type Registry struct {
	entries []entry
}

// New builds a Registry preserving the given order, which is also the
// precedence order of fuzzy matches.
func New(sites []Site) *Registry {
	entries := make([]entry, 0, len(sites))
	for _, s := range sites {
		entries = append(entries, entry{site: s, code: Key(s.Code), name: Key(s.Name)})
	}
	return &Registry{entries: entries}
}

// Resolve matches input by code, then exact name, then substring containment
// in either direction. The first containment hit in registry order wins.
func (r *Registry) Resolve(input string) (Site, bool) {
	if r == nil {
		return Site{}, false
	}
	key := Key(input)
	if key == "" {
		return Site{}, false
	}
	for _, e := range r.entries {
		if e.code != "" && e.code == key {
			return e.site, true
		}
	}
	for _, e := range r.entries {
		if e.name == key {
			return e.site, true
		}
	}
	for _, e := range r.entries {
		if e.name == "" {
			continue
		}
		if strings.Contains(key, e.name) || strings.Contains(e.name, key) {
			return e.site, true
		}
	}
	return Site{}, false
}

// Lookup returns the site with the given code.
func (r *Registry) Lookup(code string) (Site, bool) {
	if r == nil {
		return Site{}, false
	}
	key := Key(code)
	for _, e := range r.entries {
		if e.code == key {
			return e.site, true
		}
	}
	return Site{}, false
}

// Sites returns a copy of the registry in its declared order.
func (r *Registry) Sites() []Site {
	if r == nil {
		return nil
	}
	out := make([]Site, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.site)
	}
	return out
}

// Regions lists distinct regions in order of first appearance.
func (r *Registry) Regions() []string {
	if r == nil {
		return nil
	}
	return lo.Uniq(lo.Map(r.entries, func(e entry, _ int) string { return e.site.Region }))
}

// TotalAnnualObjective sums the yearly targets of every site.
func (r *Registry) TotalAnnualObjective() int {
	if r == nil {
		return 0
	}
	return lo.SumBy(r.entries, func(e entry) int { return e.site.AnnualObjective })
}

// Len reports the number of registered sites.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}
