package index

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"aether/internal/core"
	"aether/internal/logging"
	"aether/internal/store"
)

// Watcher runs the incremental indexing loop: fsnotify events are
// debounced per path, each drained path is re-extracted through the
// Observer, and resulting change events are persisted to the store.
type Watcher struct {
	workspace string
	observer  *Observer
	db        *store.Store
	debounce  time.Duration
	poll      time.Duration

	// OnEvent, when set, receives every persisted change event. The CLI
	// uses it to print JSON lines.
	OnEvent func(core.SymbolChangeEvent)
}

// NewWatcher wires an Observer and Store into a watch loop.
func NewWatcher(workspace string, observer *Observer, db *store.Store, debounce, poll time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	return &Watcher{
		workspace: workspace,
		observer:  observer,
		db:        db,
		debounce:  debounce,
		poll:      poll,
	}
}

// PersistSeed writes the observer's seeded snapshots to the store: one
// synthetic all-added event per file plus its edges, intents and file
// snapshot row. Returns the number of files persisted.
func (w *Watcher) PersistSeed() (int, error) {
	count := 0
	for _, event := range w.observer.InitialEvents() {
		if err := w.persistEvent(event); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Run watches the workspace until the context is cancelled. The initial
// directory tree is registered recursively; directories created later are
// added as their create events arrive.
func (w *Watcher) Run(ctx context.Context) error {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to initialize file watcher: %w", err)
	}
	defer notifier.Close()

	if err := w.watchTree(notifier, w.workspace); err != nil {
		return err
	}
	logging.Index("Watching %s (debounce %v)", w.workspace, w.debounce)

	queue := NewDebounceQueue()
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-notifier.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			w.enqueue(notifier, queue, event)

		case err, ok := <-notifier.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			logging.IndexError("Watch error: %v", err)

		case now := <-ticker.C:
			for _, path := range queue.DrainDue(now, w.debounce) {
				if err := w.processAndPersist(path); err != nil {
					logging.IndexError("Failed to process %s: %v", path, err)
				}
			}
		}
	}
}

func (w *Watcher) watchTree(notifier *fsnotify.Watcher, root string) error {
	patterns := w.observer.opts.patterns()
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		rel := relativeWorkspacePath(w.workspace, path)
		if rel != "." && isIgnoredRel(rel, entry.Name(), patterns) {
			return filepath.SkipDir
		}
		if err := notifier.Add(path); err != nil {
			logging.IndexDebug("Cannot watch %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) enqueue(notifier *fsnotify.Watcher, queue *DebounceQueue, event fsnotify.Event) {
	rel := relativeWorkspacePath(w.workspace, event.Name)
	if isIgnoredRel(rel, filepath.Base(rel), w.observer.opts.patterns()) {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// A directory moved or created with contents emits only its
			// own Create event: watch the subtree and enqueue every file
			// already inside it.
			if err := w.watchTree(notifier, event.Name); err != nil {
				logging.IndexDebug("Cannot watch new directory %s: %v", event.Name, err)
			}
			w.enqueueTree(queue, event.Name)
			return
		}
	}

	queue.Mark(event.Name, time.Now())
}

// enqueueTree marks every supported file under root for processing.
func (w *Watcher) enqueueTree(queue *DebounceQueue, root string) {
	patterns := w.observer.opts.patterns()
	now := time.Now()
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel := relativeWorkspacePath(w.workspace, path)
		if entry.IsDir() {
			if rel != "." && isIgnoredRel(rel, entry.Name(), patterns) {
				return filepath.SkipDir
			}
			return nil
		}
		if isIgnoredRel(rel, entry.Name(), patterns) {
			return nil
		}
		if !w.observer.registry.Supports(path) {
			return nil
		}
		queue.Mark(path, now)
		return nil
	})
}

func (w *Watcher) processAndPersist(path string) error {
	event, _, err := w.observer.ProcessPath(path)
	if err != nil {
		return err
	}
	if event == nil {
		return nil
	}
	if err := w.persistEvent(*event); err != nil {
		return err
	}
	if w.OnEvent != nil {
		w.OnEvent(*event)
	}
	return nil
}

func (w *Watcher) persistEvent(event core.SymbolChangeEvent) error {
	now := time.Now()
	if err := w.db.ApplyChangeEvent(event, now); err != nil {
		return err
	}

	extracted, ok := w.observer.Extracted(event.FilePath)
	if !ok {
		// File is gone: clear its edges, intents and snapshot row.
		if err := w.db.ReplaceEdgesForFile(event.FilePath, nil); err != nil {
			return err
		}
		if err := w.db.ReplaceIntentsForFile(event.FilePath, nil); err != nil {
			return err
		}
		return w.db.DeleteIndexedFile(event.FilePath)
	}

	if err := w.db.ReplaceEdgesForFile(event.FilePath, extracted.Edges); err != nil {
		return err
	}
	if err := w.db.ReplaceIntentsForFile(event.FilePath, extracted.TestIntents); err != nil {
		return err
	}

	absolute := filepath.Join(w.workspace, filepath.FromSlash(event.FilePath))
	info, err := os.Stat(absolute)
	if err != nil {
		return w.db.DeleteIndexedFile(event.FilePath)
	}
	content, err := os.ReadFile(absolute)
	if err != nil {
		return w.db.DeleteIndexedFile(event.FilePath)
	}
	return w.db.UpsertIndexedFile(store.IndexedFile{
		Path:        event.FilePath,
		Language:    string(event.Language),
		Size:        info.Size(),
		ModTimeUnix: info.ModTime().Unix(),
		ContentHash: core.ContentHash(string(content)),
		Fingerprint: fmt.Sprintf("%d:%d", info.Size(), info.ModTime().Unix()),
	})
}
