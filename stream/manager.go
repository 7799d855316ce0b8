// Package stream maintains the live population of meteor streaks whose
// spawn rate follows each shower's current activity.
package stream

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/signalsfoundry/meteor-showers/activity"
	"github.com/signalsfoundry/meteor-showers/catalog"
	"github.com/signalsfoundry/meteor-showers/core"
	"github.com/signalsfoundry/meteor-showers/internal/logging"
)

const (
	defaultSpeed = 40 // km/s, for catalog entries without a speed

	// Streaks start between these angular distances from the radiant.
	minStartAngle = 2.0
	maxStartAngle = 45.0
)

// MetricsRecorder receives per-frame population statistics.
type MetricsRecorder interface {
	ObserveAdvance(spawned, retired, active int, took time.Duration)
}

// Particle is the render-facing view of one live stream.
type Particle struct {
	Handle    Handle
	ShowerID  string
	Position  core.Vec3
	Radiant   core.Vec3
	Age       time.Duration
	Progress  float64
	Magnitude float64
	Speed     int
}

// AdvanceResult summarises one Advance call.
type AdvanceResult struct {
	Spawned int
	Retired int
	Active  int
}

// Manager owns the Active Matrix and advances it frame by frame. Advance and
// SetTime are meant to be called from a single frame loop; Snapshot may be
// called concurrently.
type Manager struct {
	mu sync.Mutex

	store     *catalog.Store
	matrix    *Matrix
	rng       *rand.Rand
	acc       map[string]float64
	gen       uint64
	now       time.Time
	rateScale float64

	log     logging.Logger
	metrics MetricsRecorder
}

// Option configures a Manager.
type Option func(*Manager)

// WithSeed makes spawning deterministic.
func WithSeed(seed uint64) Option {
	return func(m *Manager) {
		m.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithBucketWidth overrides DefaultBucketWidth.
func WithBucketWidth(d time.Duration) Option {
	return func(m *Manager) {
		m.matrix = NewMatrix(d)
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(r MetricsRecorder) Option {
	return func(m *Manager) {
		m.metrics = r
	}
}

// NewManager creates a manager reading showers from store, with its clock
// set to start.
func NewManager(store *catalog.Store, start time.Time, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		matrix:    NewMatrix(DefaultBucketWidth),
		acc:       make(map[string]float64),
		now:       start.UTC(),
		rateScale: 1,
		log:       logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return m
}

// Now returns the manager's simulation time.
func (m *Manager) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// SetTime jumps the simulation clock without spawning or aging anything.
// Pending fractional spawns are dropped since they belong to the old time.
func (m *Manager) SetTime(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t.UTC()
	clear(m.acc)
}

// SetRateScale multiplies every shower's spawn rate. Zero pauses spawning;
// negative values are treated as zero.
func (m *Manager) SetRateScale(k float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateScale = math.Max(0, k)
}

// Len returns the number of live streams.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matrix.Len()
}

// Clear retires every live stream.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.matrix.Handles() {
		m.matrix.Remove(h)
	}
	clear(m.acc)
}

// Advance moves the simulation forward by dt: it spawns streams for every
// active shower, ages all streams and retires the expired ones along with
// those whose shower left the catalog. On return no live stream has reached
// its lifetime.
func (m *Manager) Advance(dt time.Duration) AdvanceResult {
	if dt < 0 {
		dt = 0
	}
	began := time.Now()

	m.mu.Lock()
	res := AdvanceResult{}
	start := m.now
	end := start.Add(dt)

	born := m.matrix.Age()
	snap, gen := m.store.Snapshot()
	seen := make(map[string]struct{}, snap.Len())
	for i := 0; i < snap.Len(); i++ {
		sh := snap.At(i)
		rate := activity.Rate(sh, start) * m.rateScale
		if rate <= 0 {
			continue
		}
		seen[sh.ID] = struct{}{}
		acc := m.acc[sh.ID] + rate*dt.Seconds()
		n := int(math.Floor(acc))
		m.acc[sh.ID] = acc - float64(n)

		ref := catalog.ShowerRef{ID: sh.ID, Index: i, Generation: gen}
		radiant := core.FromEquatorial(sh.Radiant.RA, sh.Radiant.Dec)
		for range n {
			offset := time.Duration(m.rng.Float64() * float64(dt))
			m.matrix.Insert(m.newStream(ref, radiant, sh.Speed, start.Add(offset), born+offset))
			res.Spawned++
		}
	}
	for id := range m.acc {
		if _, ok := seen[id]; !ok {
			delete(m.acc, id)
		}
	}

	m.matrix.Tick(dt)
	res.Retired += m.matrix.RetireExpired()
	if gen != m.gen {
		res.Retired += m.retireOrphans()
		m.gen = gen
	}

	m.now = end
	res.Active = m.matrix.Len()
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ObserveAdvance(res.Spawned, res.Retired, res.Active, time.Since(began))
	}
	if res.Spawned > 0 || res.Retired > 0 {
		m.log.Debug(context.Background(), "stream population advanced",
			logging.Int("spawned", res.Spawned),
			logging.Int("retired", res.Retired),
			logging.Int("active", res.Active),
		)
	}
	return res
}

// retireOrphans removes streams whose shower left the catalog. Showers only
// disappear when the catalog generation changes, so Advance calls it then.
func (m *Manager) retireOrphans() int {
	retired := 0
	for _, h := range m.matrix.Handles() {
		s, _ := m.matrix.Get(h)
		if _, ok := m.store.Resolve(s.Shower); !ok {
			m.matrix.Remove(h)
			retired++
		}
	}
	return retired
}

// newStream samples a streak around the radiant. Faster showers give shorter,
// longer-reaching streaks; faint magnitudes are more common than bright ones.
func (m *Manager) newStream(ref catalog.ShowerRef, radiant core.Vec3, speed int, at time.Time, born time.Duration) Stream {
	if speed <= 0 {
		speed = defaultSpeed
	}
	v := float64(speed)
	lifetime := time.Duration((0.4 + 0.8*m.rng.Float64()) * (40 / v) * float64(time.Second))
	lifetime = max(lifetime, 150*time.Millisecond)

	return Stream{
		Shower:     ref,
		SpawnTime:  at,
		Lifetime:   lifetime,
		Born:       born,
		Radiant:    radiant,
		Azimuth:    m.rng.Float64() * 360,
		StartAngle: minStartAngle + (maxStartAngle-minStartAngle)*m.rng.Float64(),
		Length:     (3 + v/8) * (0.5 + m.rng.Float64()),
		Magnitude:  -1 + 6*math.Sqrt(m.rng.Float64()),
		Speed:      speed,
	}
}

// Snapshot returns the live streams, oldest first.
func (m *Manager) Snapshot() []Particle {
	m.mu.Lock()
	defer m.mu.Unlock()
	handles := m.matrix.Handles()
	age := m.matrix.Age()
	out := make([]Particle, 0, len(handles))
	for _, h := range handles {
		s, ok := m.matrix.Get(h)
		if !ok {
			continue
		}
		out = append(out, Particle{
			Handle:    h,
			ShowerID:  s.Shower.ID,
			Position:  s.Position(age),
			Radiant:   s.Radiant,
			Age:       s.Elapsed(age),
			Progress:  s.Progress(age),
			Magnitude: s.Magnitude,
			Speed:     s.Speed,
		})
	}
	return out
}

// Counts returns the number of live streams per shower ID.
func (m *Manager) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int)
	for _, h := range m.matrix.Handles() {
		if s, ok := m.matrix.Get(h); ok {
			out[s.Shower.ID]++
		}
	}
	return out
}
