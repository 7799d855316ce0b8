package search

import (
	"sort"
	"strings"

	"github.com/signalsfoundry/meteor-showers/catalog"
	"github.com/signalsfoundry/meteor-showers/core"
)

// Adapter answers object queries against the current catalog. It only reads
// from the store.
type Adapter struct {
	store *catalog.Store
}

// NewAdapter creates an adapter over store.
func NewAdapter(store *catalog.Store) *Adapter {
	return &Adapter{store: store}
}

// Objects returns every shower as a SkyObject, ordered by ID.
func (a *Adapter) Objects() []SkyObject {
	showers := a.store.Showers()
	out := make([]SkyObject, 0, len(showers))
	for _, s := range showers {
		out = append(out, NewShowerObject(s))
	}
	return out
}

// SearchAround returns the showers whose radiant lies within radiusDeg of
// dir, nearest first.
func (a *Adapter) SearchAround(dir core.Vec3, radiusDeg float64) []SkyObject {
	if dir.Norm() == 0 || radiusDeg < 0 {
		return nil
	}
	type hit struct {
		obj SkyObject
		sep float64
	}
	var hits []hit
	for _, s := range a.store.Showers() {
		obj := NewShowerObject(s)
		sep := core.AngularSeparationDeg(dir, obj.Position())
		if sep <= radiusDeg {
			hits = append(hits, hit{obj: obj, sep: sep})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].sep < hits[j].sep })
	out := make([]SkyObject, len(hits))
	for i, h := range hits {
		out[i] = h.obj
	}
	return out
}

// SearchByName finds a shower by display name, ignoring case.
func (a *Adapter) SearchByName(name string) (SkyObject, bool) {
	name = strings.TrimSpace(name)
	for _, s := range a.store.Showers() {
		if strings.EqualFold(s.DisplayName(), name) {
			return NewShowerObject(s), true
		}
	}
	return nil, false
}

// SearchByID finds a shower by catalog ID, ignoring case.
func (a *Adapter) SearchByID(id string) (SkyObject, bool) {
	id = strings.TrimSpace(id)
	if s := a.store.Get(id); s != nil {
		return NewShowerObject(s), true
	}
	for _, s := range a.store.Showers() {
		if strings.EqualFold(s.ID, id) {
			return NewShowerObject(s), true
		}
	}
	return nil, false
}

// ListMatchingPrefix completes prefix against shower names: an exact match
// first, then other names starting with prefix in lexicographic order, at
// most max results (max <= 0 means no cap).
func (a *Adapter) ListMatchingPrefix(prefix string, max int) []string {
	return a.ListMatching(prefix, max, false)
}

// ListMatching is ListMatchingPrefix with optional matching at the start of
// any word of the name; those matches follow the whole-name matches.
func (a *Adapter) ListMatching(prefix string, max int, useStartOfWords bool) []string {
	p := strings.ToLower(strings.TrimSpace(prefix))
	if p == "" {
		return nil
	}

	var exact, starts, words []string
	for _, s := range a.store.Showers() {
		name := s.DisplayName()
		lower := strings.ToLower(name)
		switch {
		case lower == p:
			exact = append(exact, name)
		case strings.HasPrefix(lower, p):
			starts = append(starts, name)
		case useStartOfWords && wordHasPrefix(lower, p):
			words = append(words, name)
		}
	}
	byName := func(names []string) {
		sort.Slice(names, func(i, j int) bool {
			li, lj := strings.ToLower(names[i]), strings.ToLower(names[j])
			if li != lj {
				return li < lj
			}
			return names[i] < names[j]
		})
	}
	byName(exact)
	byName(starts)
	byName(words)

	out := append(append(exact, starts...), words...)
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

func wordHasPrefix(name, prefix string) bool {
	for _, w := range strings.FieldsFunc(name, func(r rune) bool {
		return r == ' ' || r == '-' || r == '(' || r == ')' || r == '/'
	}) {
		if strings.HasPrefix(w, prefix) {
			return true
		}
	}
	return false
}

// ListAll returns every shower name in lexicographic order.
func (a *Adapter) ListAll() []string {
	showers := a.store.Showers()
	out := make([]string, 0, len(showers))
	for _, s := range showers {
		out = append(out, s.DisplayName())
	}
	sort.Strings(out)
	return out
}
