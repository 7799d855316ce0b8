package timectrl

import (
	"context"
	"sync"
	"time"
)

// Listener is invoked once per frame with the new simulation time and the
// simulated duration that elapsed since the previous frame.
type Listener func(now time.Time, dt time.Duration)

// TimeController drives simulation time frame by frame and notifies
// registered listeners. Simulation time advances by Tick × rate per frame;
// a rate of 1 is real time and 0 pauses the clock.
type TimeController struct {
	mu          sync.RWMutex
	Tick        time.Duration
	rate        float64
	currentTime time.Time

	listeners []Listener
}

// NewTimeController constructs a real-time controller starting at start.
func NewTimeController(start time.Time, tick time.Duration) *TimeController {
	if tick <= 0 {
		tick = time.Second / 60
	}
	return &TimeController{
		Tick:        tick,
		rate:        1,
		currentTime: start.UTC(),
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime jumps the simulation clock. Listeners see the jump on the next
// frame as a regular step from the new time.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t.UTC()
}

// Rate returns the simulation seconds advanced per wall-clock second.
func (tc *TimeController) Rate() float64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.rate
}

// SetRate changes the time rate. Negative rates are treated as a pause.
func (tc *TimeController) SetRate(r float64) {
	if r < 0 {
		r = 0
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.rate = r
}

// AddListener registers a callback invoked on every frame.
func (tc *TimeController) AddListener(fn Listener) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Step advances the clock by one frame and notifies listeners. It returns
// the new simulation time.
func (tc *TimeController) Step() time.Time {
	tc.mu.Lock()
	dt := time.Duration(float64(tc.Tick) * tc.rate)
	tc.currentTime = tc.currentTime.Add(dt)
	now := tc.currentTime
	listeners := append([]Listener(nil), tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(now, dt)
	}
	return now
}

// Start steps the controller once per Tick of wall-clock time in a separate
// goroutine until ctx is cancelled or, when frames > 0, that many frames have
// run. It returns a channel that is closed when the controller finishes.
func (tc *TimeController) Start(ctx context.Context, frames int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(tc.Tick)
		defer ticker.Stop()

		for n := 0; frames <= 0 || n < frames; n++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tc.Step()
			}
		}
	}()
	return done
}
