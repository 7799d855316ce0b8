// Package engine wires the catalog, update coordinator, activity model and
// stream population into one frame-driven unit.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/meteor-showers/activity"
	"github.com/signalsfoundry/meteor-showers/catalog"
	"github.com/signalsfoundry/meteor-showers/internal/logging"
	"github.com/signalsfoundry/meteor-showers/internal/notify"
	"github.com/signalsfoundry/meteor-showers/search"
	"github.com/signalsfoundry/meteor-showers/stream"
	"github.com/signalsfoundry/meteor-showers/timectrl"
	"github.com/signalsfoundry/meteor-showers/update"
)

// Engine owns the per-frame work. The time controller calls OnFrame; the
// update coordinator, message queue and catalog watcher run on their own
// goroutines and share only the catalog store with the frame loop.
type Engine struct {
	store    *catalog.Store
	updater  *update.Coordinator
	streams  *stream.Manager
	search   *search.Adapter
	clock    *timectrl.TimeController
	messages *notify.Queue
	watcher  *catalog.Watcher
	log      logging.Logger

	show atomic.Bool

	mu      sync.RWMutex
	skyDate time.Time
	active  []activity.ActiveShower

	unsubscribe func()
}

// Components are the collaborators an Engine is built from. Store, Updater,
// Streams and Clock are required.
type Components struct {
	Store    *catalog.Store
	Updater  *update.Coordinator
	Streams  *stream.Manager
	Clock    *timectrl.TimeController
	Messages *notify.Queue
	Watcher  *catalog.Watcher
	Logger   logging.Logger
}

// New assembles an engine and registers it as a frame listener on the clock.
func New(c Components) *Engine {
	log := c.Logger
	if log == nil {
		log = logging.Noop()
	}
	messages := c.Messages
	if messages == nil {
		messages = notify.NewQueue(notify.WithLogger(log))
	}
	e := &Engine{
		store:    c.Store,
		updater:  c.Updater,
		streams:  c.Streams,
		search:   search.NewAdapter(c.Store),
		clock:    c.Clock,
		messages: messages,
		watcher:  c.Watcher,
		log:      log.With(logging.String("component", "engine")),
	}
	s := c.Updater.Settings()
	e.show.Store(s.EnableAtStartup && s.ShowMeteors)
	e.refreshActive(c.Clock.Now())

	e.unsubscribe = c.Store.Subscribe(func(catalog.Event) {
		e.refreshActive(e.clock.Now())
	})
	c.Clock.AddListener(e.OnFrame)
	return e
}

// Store returns the catalog store.
func (e *Engine) Store() *catalog.Store { return e.store }

// Updater returns the update coordinator.
func (e *Engine) Updater() *update.Coordinator { return e.updater }

// Streams returns the stream population manager.
func (e *Engine) Streams() *stream.Manager { return e.streams }

// Search returns the spatial query adapter.
func (e *Engine) Search() *search.Adapter { return e.search }

// Clock returns the simulation clock.
func (e *Engine) Clock() *timectrl.TimeController { return e.clock }

// Messages returns the notification display queue.
func (e *Engine) Messages() *notify.Queue { return e.messages }

// ShowMeteors reports whether meteors are being simulated.
func (e *Engine) ShowMeteors() bool { return e.show.Load() }

// SetShowMeteors toggles meteor simulation and persists the choice. Hiding
// meteors retires every live stream.
func (e *Engine) SetShowMeteors(on bool) error {
	e.show.Store(on)
	if !on {
		e.streams.Clear()
	}
	return e.updater.UpdateSettings(func(s *update.Settings) { s.ShowMeteors = on })
}

// ActiveInfo returns the showers active on the current sky date, busiest
// first.
func (e *Engine) ActiveInfo() []activity.ActiveShower {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]activity.ActiveShower(nil), e.active...)
}

// OnFrame advances the engine to now. dt is the simulated time since the
// previous frame; a clock jump resynchronises the stream population first.
func (e *Engine) OnFrame(now time.Time, dt time.Duration) {
	e.mu.RLock()
	changed := !activity.SkyDate(now).Equal(e.skyDate)
	e.mu.RUnlock()
	if changed {
		e.refreshActive(now)
	}

	if !e.show.Load() {
		return
	}
	if expected := e.streams.Now().Add(dt); !expected.Equal(now) {
		e.streams.SetTime(now.Add(-dt))
	}
	e.streams.Advance(dt)
}

func (e *Engine) refreshActive(now time.Time) {
	day := activity.SkyDate(now)
	info := activity.ActiveInfo(e.store.Showers(), day)

	e.mu.Lock()
	e.skyDate = day
	e.active = info
	e.mu.Unlock()

	e.log.Debug(context.Background(), "active showers refreshed",
		logging.Time("sky_date", day),
		logging.Int("active", len(info)),
	)
}

// Run drives the clock, the update coordinator, the message queue and the
// catalog watcher until ctx is cancelled, then waits for all of them.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	run(e.updater.Run)
	run(e.messages.Run)
	if e.watcher != nil {
		run(e.watcher.Run)
	}
	done := e.clock.Start(ctx, 0)

	e.log.Info(ctx, "engine started",
		logging.String("catalog_version", e.store.Version()),
		logging.Bool("show_meteors", e.show.Load()),
	)
	<-done
	wg.Wait()
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	e.log.Info(context.Background(), "engine stopped")
}
