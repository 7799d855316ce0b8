package stream

import (
	"math"
	"sort"
	"time"

	"github.com/signalsfoundry/meteor-showers/catalog"
	"github.com/signalsfoundry/meteor-showers/core"
)

// DefaultBucketWidth is the spawn-time granularity of the Active Matrix.
const DefaultBucketWidth = 250 * time.Millisecond

// Handle identifies a stream slot. A handle goes stale once its stream is
// retired, even if the slot is reused.
type Handle struct {
	Index uint32
	Gen   uint32
}

// Valid reports whether h could refer to a stream. The zero Handle never does.
func (h Handle) Valid() bool { return h.Gen != 0 }

// Stream is one transient meteor streak. Streams age with the matrix that
// holds them: Born is the matrix age at the stream's spawn instant.
type Stream struct {
	Shower    catalog.ShowerRef
	SpawnTime time.Time
	Lifetime  time.Duration
	Born      time.Duration

	// Trajectory: the streak runs along the great circle leaving the radiant
	// at Azimuth, from StartAngle to StartAngle+Length degrees away from it.
	Radiant    core.Vec3
	Azimuth    float64
	StartAngle float64
	Length     float64

	Magnitude float64
	Speed     int
}

// Deadline is the matrix age at which the stream expires.
func (s *Stream) Deadline() time.Duration { return s.Born + s.Lifetime }

// Elapsed returns how long the stream has lived at matrix age.
func (s *Stream) Elapsed(age time.Duration) time.Duration {
	return max(age-s.Born, 0)
}

// Expired reports whether the stream has reached its lifetime at matrix age.
func (s *Stream) Expired(age time.Duration) bool {
	return age >= s.Deadline()
}

// Progress returns the fraction of the lifetime elapsed at age, in [0, 1].
func (s *Stream) Progress(age time.Duration) float64 {
	if s.Lifetime <= 0 {
		return 1
	}
	p := float64(s.Elapsed(age)) / float64(s.Lifetime)
	return clamp01(p)
}

// Position returns the streak head's direction on the celestial sphere.
func (s *Stream) Position(age time.Duration) core.Vec3 {
	return core.Offset(s.Radiant, s.Azimuth, s.StartAngle+s.Length*s.Progress(age))
}

type slot struct {
	gen    uint32
	alive  bool
	bucket int64
	stream Stream
}

// bucket holds the handles spawned in one time slice and the earliest
// deadline among them.
type bucket struct {
	handles []Handle
	due     time.Duration
}

// Matrix is the arena holding live streams, with a secondary index of
// spawn-time buckets. Buckets hold handles only; the arena owns the streams.
// The matrix keeps its own age clock, so aging the population is a single
// addition and retirement only visits buckets whose earliest deadline passed.
type Matrix struct {
	width   time.Duration
	age     time.Duration
	slots   []slot
	free    []uint32
	buckets map[int64]*bucket
	live    int
}

// NewMatrix creates an empty matrix with the given bucket width.
func NewMatrix(width time.Duration) *Matrix {
	if width <= 0 {
		width = DefaultBucketWidth
	}
	return &Matrix{
		width:   width,
		buckets: make(map[int64]*bucket),
	}
}

// BucketKey maps a spawn time to its bucket.
func (m *Matrix) BucketKey(t time.Time) int64 {
	ns := t.UnixNano()
	w := int64(m.width)
	k := ns / w
	if ns < 0 && ns%w != 0 {
		k--
	}
	return k
}

// Insert stores s and indexes it under the bucket of its spawn time.
func (m *Matrix) Insert(s Stream) Handle {
	var idx uint32
	if n := len(m.free); n > 0 {
		idx = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		idx = uint32(len(m.slots))
		m.slots = append(m.slots, slot{})
	}
	sl := &m.slots[idx]
	sl.gen++
	if sl.gen == 0 {
		sl.gen = 1
	}
	sl.alive = true
	sl.stream = s
	sl.bucket = m.BucketKey(s.SpawnTime)

	h := Handle{Index: idx, Gen: sl.gen}
	b := m.buckets[sl.bucket]
	if b == nil {
		b = &bucket{due: s.Deadline()}
		m.buckets[sl.bucket] = b
	}
	b.handles = append(b.handles, h)
	b.due = min(b.due, s.Deadline())
	m.live++
	return h
}

// Age returns the total time the matrix has been advanced.
func (m *Matrix) Age() time.Duration { return m.age }

// Tick ages every stream by dt. Negative values are ignored.
func (m *Matrix) Tick(dt time.Duration) {
	if dt > 0 {
		m.age += dt
	}
}

// RetireExpired removes every stream whose deadline has passed and returns
// how many were removed. Buckets whose earliest deadline is still ahead are
// skipped without touching their streams.
func (m *Matrix) RetireExpired() int {
	retired := 0
	for key, b := range m.buckets {
		if b.due > m.age {
			continue
		}
		kept := b.handles[:0]
		due := time.Duration(math.MaxInt64)
		for _, h := range b.handles {
			sl := &m.slots[h.Index]
			if sl.stream.Expired(m.age) {
				m.release(h)
				retired++
				continue
			}
			kept = append(kept, h)
			due = min(due, sl.stream.Deadline())
		}
		if len(kept) == 0 {
			delete(m.buckets, key)
			continue
		}
		clear(b.handles[len(kept):])
		b.handles = kept
		b.due = due
	}
	return retired
}

// Get returns the stream behind h, or false if h is stale.
func (m *Matrix) Get(h Handle) (*Stream, bool) {
	sl := m.lookup(h)
	if sl == nil {
		return nil, false
	}
	return &sl.stream, true
}

// Remove retires the stream behind h. It returns false for stale handles, so
// a stream is only ever removed once.
func (m *Matrix) Remove(h Handle) bool {
	sl := m.lookup(h)
	if sl == nil {
		return false
	}
	b := m.buckets[sl.bucket]
	deadline := sl.stream.Deadline()
	for i, other := range b.handles {
		if other == h {
			last := len(b.handles) - 1
			b.handles[i] = b.handles[last]
			b.handles[last] = Handle{}
			b.handles = b.handles[:last]
			break
		}
	}
	switch {
	case len(b.handles) == 0:
		delete(m.buckets, sl.bucket)
	case deadline == b.due:
		b.due = time.Duration(math.MaxInt64)
		for _, other := range b.handles {
			b.due = min(b.due, m.slots[other.Index].stream.Deadline())
		}
	}
	m.release(h)
	return true
}

// release frees the slot behind a live handle without touching its bucket.
func (m *Matrix) release(h Handle) {
	sl := &m.slots[h.Index]
	sl.alive = false
	sl.stream = Stream{}
	m.free = append(m.free, h.Index)
	m.live--
}

func (m *Matrix) lookup(h Handle) *slot {
	if !h.Valid() || int(h.Index) >= len(m.slots) {
		return nil
	}
	sl := &m.slots[h.Index]
	if !sl.alive || sl.gen != h.Gen {
		return nil
	}
	return sl
}

// Len returns the number of live streams.
func (m *Matrix) Len() int { return m.live }

// Buckets returns the keys of non-empty buckets in ascending order.
func (m *Matrix) Buckets() []int64 {
	keys := make([]int64, 0, len(m.buckets))
	for k := range m.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Bucket returns a copy of the handles indexed under key.
func (m *Matrix) Bucket(key int64) []Handle {
	b := m.buckets[key]
	if b == nil {
		return nil
	}
	return append([]Handle(nil), b.handles...)
}

// Handles returns every live handle, oldest bucket first.
func (m *Matrix) Handles() []Handle {
	out := make([]Handle, 0, m.live)
	for _, k := range m.Buckets() {
		out = append(out, m.buckets[k].handles...)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
