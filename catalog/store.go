package catalog

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/meteor-showers/internal/logging"
	"github.com/signalsfoundry/meteor-showers/model"
)

// EventType indicates what kind of change happened in the store.
type EventType int

const (
	EventCatalogReplaced EventType = iota
)

// Event is emitted to subscribers when the catalog changes.
type Event struct {
	Type            EventType
	PreviousVersion string
	Version         string
	Generation      uint64
	Showers         int
}

// MetricsRecorder receives catalog size and generation after each replacement.
type MetricsRecorder interface {
	SetCatalog(showers int, generation uint64)
}

// ShowerRef is a weak, generational reference to a shower. It stays valid
// across catalog replacements for as long as a shower with the same ID exists.
type ShowerRef struct {
	ID         string
	Index      int
	Generation uint64
}

type published struct {
	snap *Snapshot
	gen  uint64
}

// Store holds the active catalog snapshot. Reads are lock-free; Replace
// swaps the whole snapshot so readers observe either the old or the new
// catalog, never a mix.
type Store struct {
	cur atomic.Pointer[published]

	mu      sync.Mutex // serialises writers and guards subs
	subs    map[int]func(Event)
	nextSub int

	log     logging.Logger
	metrics MetricsRecorder
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l logging.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore constructs a store holding an empty catalog at generation 0.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		subs: make(map[int]func(Event)),
		log:  logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.cur.Store(&published{snap: Empty()})
	return s
}

// Snapshot returns the current catalog and its generation.
func (s *Store) Snapshot() (*Snapshot, uint64) {
	p := s.cur.Load()
	return p.snap, p.gen
}

// Generation returns the number of replacements performed so far.
func (s *Store) Generation() uint64 {
	return s.cur.Load().gen
}

// Version returns the current catalog version ("" before the first load).
func (s *Store) Version() string {
	return s.cur.Load().snap.Version()
}

// Get returns the shower with the given ID from the current catalog, or nil.
func (s *Store) Get(id string) *model.Shower {
	return s.cur.Load().snap.Get(id)
}

// Showers returns the current catalog's showers ordered by ID.
func (s *Store) Showers() []*model.Shower {
	return s.cur.Load().snap.Showers()
}

// Ref returns a generational reference to a shower in the current catalog.
func (s *Store) Ref(id string) (ShowerRef, bool) {
	p := s.cur.Load()
	i, ok := p.snap.IndexOf(id)
	if !ok {
		return ShowerRef{}, false
	}
	return ShowerRef{ID: id, Index: i, Generation: p.gen}, true
}

// Resolve follows a reference into the current catalog. References minted
// for the current generation resolve by index; older ones fall back to an
// ID lookup and fail if the shower was removed.
func (s *Store) Resolve(ref ShowerRef) (*model.Shower, bool) {
	p := s.cur.Load()
	if ref.Generation == p.gen {
		if sh := p.snap.At(ref.Index); sh != nil && sh.ID == ref.ID {
			return sh, true
		}
	}
	sh := p.snap.Get(ref.ID)
	return sh, sh != nil
}

// Replace atomically installs snap and notifies subscribers. It returns the
// new generation.
func (s *Store) Replace(snap *Snapshot) (uint64, error) {
	if snap == nil {
		return 0, ErrNilSnapshot
	}

	s.mu.Lock()
	prev := s.cur.Load()
	next := &published{snap: snap, gen: prev.gen + 1}
	s.cur.Store(next)
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.log.Info(context.Background(), "catalog replaced",
		logging.String("previous_version", prev.snap.Version()),
		logging.String("version", snap.Version()),
		logging.Int("showers", snap.Len()),
		logging.Any("generation", next.gen),
	)
	if s.metrics != nil {
		s.metrics.SetCatalog(snap.Len(), next.gen)
	}

	event := Event{
		Type:            EventCatalogReplaced,
		PreviousVersion: prev.snap.Version(),
		Version:         snap.Version(),
		Generation:      next.gen,
		Showers:         snap.Len(),
	}
	// Notify outside the lock so subscribers may read the store.
	for _, fn := range subs {
		fn(event)
	}
	return next.gen, nil
}

// LoadFile parses path and replaces the catalog with it. On failure the
// previous snapshot stays active and the error is returned.
func (s *Store) LoadFile(path string) error {
	snap, err := Load(path)
	if err != nil {
		s.log.Warn(context.Background(), "catalog load rejected; keeping previous catalog",
			logging.String("path", path),
			logging.String("current_version", s.Version()),
			logging.Err(err),
		)
		return err
	}
	_, err = s.Replace(snap)
	return err
}

// Subscribe registers a callback for store events. It returns an unsubscribe
// function.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
