package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/signalsfoundry/meteor-showers/model"
)

func versionedSnapshot(t *testing.T, version string, ids ...string) *Snapshot {
	t.Helper()
	showers := make([]*model.Shower, 0, len(ids))
	for _, id := range ids {
		showers = append(showers, &model.Shower{ID: id, Name: id + "@" + version})
	}
	snap, err := NewSnapshot(version, showers)
	if err != nil {
		t.Fatalf("NewSnapshot error: %v", err)
	}
	return snap
}

func TestNewSnapshotRejectsDuplicates(t *testing.T) {
	_, err := NewSnapshot("1", []*model.Shower{{ID: "A"}, {ID: "A"}})
	if err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if _, err := NewSnapshot("1", []*model.Shower{{ID: ""}}); err == nil {
		t.Fatalf("expected empty id error")
	}
}

func TestStoreReplaceAndGet(t *testing.T) {
	store := NewStore()
	if store.Version() != "" || store.Generation() != 0 {
		t.Fatalf("new store should be empty at generation 0")
	}
	gen, err := store.Replace(versionedSnapshot(t, "1", "PER", "GEM"))
	if err != nil || gen != 1 {
		t.Fatalf("Replace = %d, %v", gen, err)
	}
	if got := store.Get("PER"); got == nil || got.Name != "PER@1" {
		t.Fatalf("Get(PER) = %+v", got)
	}
	if store.Get("missing") != nil {
		t.Fatalf("Get(missing) should be nil")
	}
	if _, err := store.Replace(nil); err == nil {
		t.Fatalf("Replace(nil) should fail")
	}
}

func TestStoreResolveAcrossGenerations(t *testing.T) {
	store := NewStore()
	store.Replace(versionedSnapshot(t, "1", "GEM", "PER"))

	ref, ok := store.Ref("PER")
	if !ok || ref.Generation != 1 {
		t.Fatalf("Ref(PER) = %+v, %v", ref, ok)
	}
	if sh, ok := store.Resolve(ref); !ok || sh.Name != "PER@1" {
		t.Fatalf("Resolve same generation = %+v, %v", sh, ok)
	}

	// New generation with a different layout: old ref resolves by ID.
	store.Replace(versionedSnapshot(t, "2", "AAA", "GEM", "PER"))
	if sh, ok := store.Resolve(ref); !ok || sh.Name != "PER@2" {
		t.Fatalf("Resolve after relayout = %+v, %v", sh, ok)
	}

	// Shower removed: the weak reference dangles safely.
	store.Replace(versionedSnapshot(t, "3", "GEM"))
	if sh, ok := store.Resolve(ref); ok || sh != nil {
		t.Fatalf("Resolve of removed shower = %+v, %v", sh, ok)
	}
}

func TestStoreLoadFileKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "showers.json")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := NewStore()
	if err := store.LoadFile(path); err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if store.Version() != "2.0.1" {
		t.Fatalf("version = %q", store.Version())
	}

	if err := os.WriteFile(path, []byte(`{"version": "9", "showers": {"X": {}}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.LoadFile(path); err == nil {
		t.Fatalf("expected LoadFile to fail on a bad record")
	}
	if store.Version() != "2.0.1" || store.Get("PER") == nil {
		t.Fatalf("previous snapshot not kept: version=%q", store.Version())
	}
}

func TestStoreSubscribe(t *testing.T) {
	store := NewStore()
	var events []Event
	unsub := store.Subscribe(func(e Event) {
		// Subscribers run outside the lock and may read the store.
		if store.Version() != e.Version {
			t.Errorf("store version %q during event for %q", store.Version(), e.Version)
		}
		events = append(events, e)
	})

	store.Replace(versionedSnapshot(t, "1", "A"))
	store.Replace(versionedSnapshot(t, "2", "A", "B"))
	unsub()
	store.Replace(versionedSnapshot(t, "3", "A"))

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].PreviousVersion != "1" || events[1].Version != "2" || events[1].Showers != 2 || events[1].Generation != 2 {
		t.Fatalf("unexpected event: %+v", events[1])
	}
}

type recordingMetrics struct {
	showers int
	gen     uint64
}

func (r *recordingMetrics) SetCatalog(showers int, generation uint64) {
	r.showers, r.gen = showers, generation
}

func TestStoreMetricsRecorder(t *testing.T) {
	rec := &recordingMetrics{}
	store := NewStore(WithMetricsRecorder(rec))
	store.Replace(versionedSnapshot(t, "1", "A", "B", "C"))
	if rec.showers != 3 || rec.gen != 1 {
		t.Fatalf("metrics = %+v", rec)
	}
}

// Readers running alongside a writer must only ever see whole catalogs: every
// shower in a snapshot carries that snapshot's version.
func TestStoreReplaceIsAtomicForConcurrentReaders(t *testing.T) {
	store := NewStore()
	store.Replace(versionedSnapshot(t, "0", "A", "B", "C", "D"))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 8)

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap, _ := store.Snapshot()
				want := "@" + snap.Version()
				for _, s := range snap.Showers() {
					if len(s.Name) < len(want) || s.Name[len(s.Name)-len(want):] != want {
						errs <- fmt.Errorf("snapshot %q contains %q", snap.Version(), s.Name)
						return
					}
				}
			}
		}()
	}

	for i := 1; i <= 200; i++ {
		ids := []string{"A", "B", "C", "D"}
		if i%2 == 0 {
			ids = []string{"B", "C", "E"}
		}
		store.Replace(versionedSnapshot(t, fmt.Sprint(i), ids...))
	}
	close(stop)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	if store.Generation() != 201 {
		t.Fatalf("generation = %d, want 201", store.Generation())
	}
}
