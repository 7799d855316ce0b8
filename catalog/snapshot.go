package catalog

import (
	"fmt"
	"sort"

	"github.com/signalsfoundry/meteor-showers/model"
)

// Snapshot is an immutable, validated catalog version. Showers returned from
// a Snapshot are shared between readers and must not be modified.
type Snapshot struct {
	version string
	showers []*model.Shower
	index   map[string]int
}

// NewSnapshot builds a snapshot from showers, sorted by ID. IDs must be
// non-empty and unique.
func NewSnapshot(version string, showers []*model.Shower) (*Snapshot, error) {
	sorted := make([]*model.Shower, 0, len(showers))
	index := make(map[string]int, len(showers))
	for _, s := range showers {
		if s == nil || s.ID == "" {
			return nil, &ParseError{Field: "id", Err: ErrMissingField}
		}
		if _, dup := index[s.ID]; dup {
			return nil, &ValidationError{Record: s.ID, Period: -1, Field: "id", Err: ErrDuplicateID}
		}
		index[s.ID] = -1
		sorted = append(sorted, s)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for i, s := range sorted {
		index[s.ID] = i
	}
	return &Snapshot{version: version, showers: sorted, index: index}, nil
}

// Empty returns a snapshot with no showers and no version.
func Empty() *Snapshot {
	return &Snapshot{index: map[string]int{}}
}

// Version returns the catalog's version string.
func (s *Snapshot) Version() string { return s.version }

// Len returns the number of showers.
func (s *Snapshot) Len() int { return len(s.showers) }

// Showers returns the showers ordered by ID. The slice is a copy; the
// elements are shared.
func (s *Snapshot) Showers() []*model.Shower {
	out := make([]*model.Shower, len(s.showers))
	copy(out, s.showers)
	return out
}

// At returns the shower at index i (ID order).
func (s *Snapshot) At(i int) *model.Shower {
	if i < 0 || i >= len(s.showers) {
		return nil
	}
	return s.showers[i]
}

// Get returns the shower with the given ID, or nil.
func (s *Snapshot) Get(id string) *model.Shower {
	i, ok := s.index[id]
	if !ok {
		return nil
	}
	return s.showers[i]
}

// IndexOf returns the position of id in ID order.
func (s *Snapshot) IndexOf(id string) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("catalog %q (%d showers)", s.version, len(s.showers))
}
