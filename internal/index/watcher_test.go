package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"aether/internal/core"
	"aether/internal/store"
)

func TestWatcherPersistsChangesUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	workspace := t.TempDir()
	writeFile(t, filepath.Join(workspace, "app.py"), "def seeded():\n    return 1\n")

	observer := newTestObserver(t, workspace)
	if err := observer.SeedFromDisk(context.Background()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	db, err := store.Open(workspace)
	if err != nil {
		t.Fatalf("store open failed: %v", err)
	}
	defer db.Close()

	watcher := NewWatcher(workspace, observer, db, 50*time.Millisecond, 10*time.Millisecond)
	if _, err := watcher.PersistSeed(); err != nil {
		t.Fatalf("persist seed failed: %v", err)
	}

	records, err := db.SearchSymbols("seeded", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected seeded symbol persisted, got %d", len(records))
	}

	events := make(chan core.SymbolChangeEvent, 16)
	watcher.OnEvent = func(event core.SymbolChangeEvent) { events <- event }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	// Give the watch registration a moment before touching files.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(workspace, "fresh.py"), "def brand_new():\n    return 2\n")

	select {
	case event := <-events:
		if event.FilePath != "fresh.py" {
			t.Errorf("expected event for fresh.py, got %s", event.FilePath)
		}
		if len(event.Added) != 1 || event.Added[0].Name != "brand_new" {
			t.Errorf("expected brand_new added, got %+v", event.Added)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change event")
	}

	records, err = db.SearchSymbols("brand_new", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected brand_new persisted, got %d", len(records))
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

func TestWatcherIndexesFilesInsideMovedDirectory(t *testing.T) {
	defer goleak.VerifyNone(t)

	workspace := t.TempDir()
	staging := t.TempDir()
	writeFile(t, filepath.Join(staging, "pkg", "mod.py"), "def landed():\n    return 1\n")

	observer := newTestObserver(t, workspace)
	if err := observer.SeedFromDisk(context.Background()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	db, err := store.Open(workspace)
	if err != nil {
		t.Fatalf("store open failed: %v", err)
	}
	defer db.Close()

	watcher := NewWatcher(workspace, observer, db, 50*time.Millisecond, 10*time.Millisecond)

	events := make(chan core.SymbolChangeEvent, 16)
	watcher.OnEvent = func(event core.SymbolChangeEvent) { events <- event }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	// A directory moved in whole emits only its own create event; files
	// inside it must still be picked up.
	time.Sleep(100 * time.Millisecond)
	if err := os.Rename(filepath.Join(staging, "pkg"), filepath.Join(workspace, "pkg")); err != nil {
		t.Fatalf("rename failed: %v", err)
	}

	select {
	case event := <-events:
		if event.FilePath != "pkg/mod.py" {
			t.Errorf("expected event for pkg/mod.py, got %s", event.FilePath)
		}
		if len(event.Added) != 1 || event.Added[0].Name != "landed" {
			t.Errorf("expected landed added, got %+v", event.Added)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for moved directory contents")
	}

	records, err := db.SearchSymbols("landed", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected landed persisted, got %d", len(records))
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

func TestWatcherPersistsDeletions(t *testing.T) {
	workspace := t.TempDir()
	path := filepath.Join(workspace, "app.py")
	writeFile(t, path, "def doomed():\n    return 1\n")

	observer := newTestObserver(t, workspace)
	if err := observer.SeedFromDisk(context.Background()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	db, err := store.Open(workspace)
	if err != nil {
		t.Fatalf("store open failed: %v", err)
	}
	defer db.Close()

	watcher := NewWatcher(workspace, observer, db, 50*time.Millisecond, 10*time.Millisecond)
	if _, err := watcher.PersistSeed(); err != nil {
		t.Fatalf("persist seed failed: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := watcher.processAndPersist(path); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	records, err := db.SearchSymbols("doomed", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("deleted symbol should be tombstoned, got %d", len(records))
	}
	if _, ok, err := db.GetIndexedFile("app.py"); err != nil || ok {
		t.Fatalf("indexed file row should be gone (ok=%v err=%v)", ok, err)
	}
}
