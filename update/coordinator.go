// Package update keeps the meteor shower catalog current by periodically
// fetching a remote copy and installing it when its version changes.
package update

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/meteor-showers/catalog"
	"github.com/signalsfoundry/meteor-showers/internal/logging"
	"github.com/signalsfoundry/meteor-showers/model"
)

const tracerName = "github.com/signalsfoundry/meteor-showers/update"

// DefaultCheckInterval is how often Run evaluates whether an update is due.
const DefaultCheckInterval = time.Minute

// Notifier delivers update notifications to the host.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// MetricsRecorder receives the outcome of every update attempt.
type MetricsRecorder interface {
	ObserveUpdate(state model.UpdateState, took time.Duration)
	SetLastUpdate(t time.Time)
}

// Config describes where the coordinator reads and writes its files.
type Config struct {
	CatalogPath   string
	SettingsPath  string // empty disables persisting settings
	CheckInterval time.Duration
	Settings      Settings
}

// Coordinator runs the update state machine. At most one fetch is in flight;
// catalog readers are never blocked by it.
type Coordinator struct {
	mu         sync.Mutex
	state      model.UpdateState
	lastResult model.UpdateState
	attemptID  string
	inflight   chan struct{}
	cancel     context.CancelFunc
	baseCtx    context.Context
	settings   Settings

	cfg      Config
	store    *catalog.Store
	fetcher  Fetcher
	notifier Notifier
	log      logging.Logger
	metrics  MetricsRecorder
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithFetcher overrides the default HTTP fetcher.
func WithFetcher(f Fetcher) Option {
	return func(c *Coordinator) {
		if f != nil {
			c.fetcher = f
		}
	}
}

// WithNotifier attaches a notification sink.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithLogger sets the coordinator's logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock overrides time.Now for timestamps recorded by the coordinator.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator creates a coordinator that installs downloads into store.
func NewCoordinator(store *catalog.Store, cfg Config, opts ...Option) *Coordinator {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.Settings.URL == "" && cfg.Settings.FrequencyHours == 0 {
		cfg.Settings = DefaultSettings()
	}
	c := &Coordinator{
		state:      model.UpdateIdle,
		lastResult: model.UpdateIdle,
		baseCtx:    context.Background(),
		settings:   cfg.Settings,
		cfg:        cfg,
		store:      store,
		fetcher:    NewHTTPFetcher(30 * time.Second),
		log:        logging.Noop(),
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.log = c.log.With(logging.String("component", "update"))
	return c
}

// Status returns a snapshot of the coordinator's state.
func (c *Coordinator) Status() model.UpdateStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.UpdateStatus{
		State:          c.state,
		LastResult:     c.lastResult,
		LastAttemptID:  c.attemptID,
		LastUpdate:     c.settings.LastUpdate,
		CatalogVersion: c.store.Version(),
		Enabled:        c.settings.Enabled,
		Frequency:      c.settings.Frequency(),
	}
}

// Settings returns the current settings.
func (c *Coordinator) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// UpdateSettings applies fn to the settings and persists the result.
func (c *Coordinator) UpdateSettings(fn func(*Settings)) error {
	c.mu.Lock()
	next := c.settings
	fn(&next)
	if err := next.Validate(); err != nil {
		c.mu.Unlock()
		return &ConfigError{Path: c.cfg.SettingsPath, Err: err}
	}
	c.settings = next
	c.mu.Unlock()
	return c.saveSettings(next)
}

// SecondsToUpdate returns the seconds left until the next periodic check is
// due; zero or negative means due now.
func (c *Coordinator) SecondsToUpdate(now time.Time) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	due := c.settings.LastUpdate.Add(c.settings.Frequency())
	return int64(math.Ceil(due.Sub(now).Seconds()))
}

// CheckForUpdate starts an attempt when updates are enabled and the
// configured frequency has elapsed since the last update. It reports whether
// an attempt was started.
func (c *Coordinator) CheckForUpdate(now time.Time) bool {
	c.mu.Lock()
	due := c.settings.Enabled && now.Sub(c.settings.LastUpdate) >= c.settings.Frequency()
	c.mu.Unlock()
	if !due {
		return false
	}
	return c.start("periodic", "")
}

// RequestUpdate starts an attempt regardless of the enabled flag and
// frequency. It is a no-op, returning false, while an attempt is in flight.
func (c *Coordinator) RequestUpdate() bool {
	return c.start("explicit", "")
}

// RequestUpdateFrom is RequestUpdate against url for this attempt only. The
// saved settings, and with them later periodic checks, keep their own URL.
func (c *Coordinator) RequestUpdateFrom(url string) bool {
	return c.start("explicit", url)
}

// Wait blocks until no attempt is in flight or ctx is done, and returns the
// most recent terminal state.
func (c *Coordinator) Wait(ctx context.Context) (model.UpdateState, error) {
	c.mu.Lock()
	ch := c.inflight
	c.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return model.UpdateUpdating, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult, nil
}

// Run checks for due updates every CheckInterval until ctx is cancelled.
// Cancelling ctx abandons an in-flight fetch; the current catalog stays.
func (c *Coordinator) Run(ctx context.Context) {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	c.CheckForUpdate(c.now())
	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			if c.cancel != nil {
				c.cancel()
			}
			c.mu.Unlock()
			return
		case <-ticker.C:
			c.CheckForUpdate(c.now())
		}
	}
}

// start begins an attempt. An empty url means the one from settings.
func (c *Coordinator) start(trigger, url string) bool {
	c.mu.Lock()
	next, notes := Transition(c.state, EventCheckRequested)
	if next == c.state {
		c.mu.Unlock()
		c.log.Debug(context.Background(), "update already in flight; check ignored", logging.String("trigger", trigger))
		return false
	}
	c.state = next
	id := uuid.NewString()
	c.attemptID = id
	done := make(chan struct{})
	c.inflight = done
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancel = cancel
	if url == "" {
		url = c.settings.URL
	}
	c.mu.Unlock()

	c.deliver(ctx, notes)
	go c.attempt(ctx, cancel, done, id, url, trigger)
	return true
}

func (c *Coordinator) attempt(ctx context.Context, cancel context.CancelFunc, done chan struct{}, id, url, trigger string) {
	defer close(done)
	defer cancel()

	began := c.now()
	ctx, span := c.tracer.Start(ctx, "update.attempt", trace.WithAttributes(
		attribute.String("update.attempt_id", id),
		attribute.String("update.trigger", trigger),
		attribute.String("update.url", url),
	))
	defer span.End()

	log := c.log.With(logging.String("attempt_id", id))
	log.Info(ctx, "catalog update started", logging.String("trigger", trigger), logging.String("url", url))

	event, err := c.fetchAndInstall(ctx, url, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	c.mu.Lock()
	state, notes := Transition(c.state, event)
	c.state = state
	c.lastResult = state
	if event == EventCatalogReplaced || event == EventVersionUnchanged {
		c.settings.LastUpdate = began
	}
	settings := c.settings
	c.mu.Unlock()

	span.SetAttributes(attribute.String("update.result", state.String()))
	took := c.now().Sub(began)
	if c.metrics != nil {
		c.metrics.ObserveUpdate(state, took)
		if event == EventCatalogReplaced || event == EventVersionUnchanged {
			c.metrics.SetLastUpdate(settings.LastUpdate)
		}
	}
	if err != nil {
		log.Warn(ctx, "catalog update failed", logging.String("state", state.String()), logging.Duration("took", took), logging.Err(err))
	} else {
		log.Info(ctx, "catalog update finished", logging.String("state", state.String()), logging.Duration("took", took))
	}
	if event == EventCatalogReplaced || event == EventVersionUnchanged {
		if err := c.saveSettings(settings); err != nil {
			log.Warn(ctx, "saving update settings failed", logging.Err(err))
		}
	}

	// Terminal states are reported once, then the machine returns to Idle.
	c.deliver(context.WithoutCancel(ctx), notes)
	c.mu.Lock()
	c.state, _ = Transition(c.state, EventObserved)
	c.mu.Unlock()
}

// fetchAndInstall performs the download and, if it carries a new version,
// installs it. The returned event classifies the outcome.
func (c *Coordinator) fetchAndInstall(ctx context.Context, url string, log logging.Logger) (Event, error) {
	data, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return EventFetchFailed, err
	}
	if err := ctx.Err(); err != nil {
		return EventFetchFailed, &TransportError{URL: url, Err: err}
	}

	// The version token is read before the full parse, so an unchanged
	// download is never validated or installed.
	current := c.store.Version()
	if v := catalog.VersionOfBytes(data); v != "" && v == current {
		log.Info(ctx, "remote catalog unchanged", logging.String("version", current))
		return EventVersionUnchanged, nil
	}
	snap, err := catalog.Parse(data)
	if err != nil {
		return EventPayloadInvalid, err
	}
	if snap.Version() == current {
		log.Info(ctx, "remote catalog unchanged", logging.String("version", current))
		return EventVersionUnchanged, nil
	}

	// Abandoned attempts must not touch disk or the store.
	if err := ctx.Err(); err != nil {
		return EventFetchFailed, &TransportError{URL: url, Err: err}
	}
	if path := c.cfg.CatalogPath; path != "" {
		c.mu.Lock()
		discard := c.settings.DiscardBackup
		c.mu.Unlock()
		if !discard {
			backup, err := catalog.BackupFile(path, false)
			if err != nil {
				return EventPayloadInvalid, fmt.Errorf("backing up catalog: %w", err)
			}
			if backup != "" {
				log.Debug(ctx, "previous catalog backed up", logging.String("backup", backup))
			}
		}
		if err := catalog.WriteFile(path, data); err != nil {
			return EventPayloadInvalid, fmt.Errorf("writing catalog: %w", err)
		}
	}
	if _, err := c.store.Replace(snap); err != nil {
		return EventPayloadInvalid, err
	}
	log.Info(ctx, "catalog replaced by download",
		logging.String("previous_version", current),
		logging.String("version", snap.Version()),
		logging.Int("showers", snap.Len()),
	)
	return EventCatalogReplaced, nil
}

func (c *Coordinator) deliver(ctx context.Context, notes []Notification) {
	if c.notifier == nil {
		return
	}
	for _, n := range notes {
		c.notifier.Notify(ctx, n)
	}
}

func (c *Coordinator) saveSettings(s Settings) error {
	if c.cfg.SettingsPath == "" {
		return nil
	}
	return SaveSettings(c.cfg.SettingsPath, s)
}

// IsTransport reports whether err came from the transport layer.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
