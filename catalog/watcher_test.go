package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWatcherReloadsNewVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "showers.json")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := NewStore()
	if err := store.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	w, err := NewWatcher(path, store, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	reloaded := make(chan string, 4)
	w.OnReload = func(version string, err error) {
		if err == nil {
			reloaded <- version
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	updated := strings.Replace(sampleCatalog, `"version": "2.0.1"`, `"version": "2.0.2"`, 1)
	if err := WriteFile(path, []byte(updated)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case v := <-reloaded:
		if v != "2.0.2" || store.Version() != "2.0.2" {
			t.Fatalf("reloaded %q, store at %q", v, store.Version())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for catalog reload")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "showers.json")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := NewStore()
	store.LoadFile(path)

	w, err := NewWatcher(path, store, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	calls := make(chan struct{}, 4)
	w.OnReload = func(string, error) { calls <- struct{}{} }
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-calls:
		t.Fatal("unexpected reload for unrelated file")
	case <-time.After(500 * time.Millisecond):
	}
}
