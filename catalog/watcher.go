package catalog

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/signalsfoundry/meteor-showers/internal/logging"
)

// DefaultDebounce is how long a catalog file must stay quiet before reload.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads the store when the catalog file is edited on disk. It
// watches the parent directory so editors that save via rename are seen.
type Watcher struct {
	path     string
	store    *Store
	log      logging.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher

	// OnReload, if set, is called after every reload attempt with its result.
	OnReload func(version string, err error)
}

// NewWatcher creates a watcher for the catalog at path.
func NewWatcher(path string, store *Store, log logging.Logger) (*Watcher, error) {
	if log == nil {
		log = logging.Noop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:     abs,
		store:    store,
		log:      log.With(logging.String("component", "catalog_watcher")),
		debounce: DefaultDebounce,
		watcher:  fw,
	}, nil
}

// Run processes file events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var pending time.Time
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.Now()
			}

		case <-ticker.C:
			if pending.IsZero() || time.Since(pending) < w.debounce {
				continue
			}
			pending = time.Time{}
			w.reload(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn(ctx, "catalog watch error", logging.Err(err))
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	onDisk := VersionOf(w.path)
	if onDisk == "" {
		// Mid-write or removed; a later event will retrigger.
		return
	}
	if onDisk == w.store.Version() {
		w.log.Debug(ctx, "catalog file changed but version is current", logging.String("version", onDisk))
		return
	}
	err := w.store.LoadFile(w.path)
	if err == nil {
		w.log.Info(ctx, "catalog reloaded from disk", logging.String("version", onDisk))
	}
	if w.OnReload != nil {
		w.OnReload(onDisk, err)
	}
}
