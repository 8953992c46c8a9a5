// Package index observes a workspace: it seeds per-file symbol snapshots
// from disk, diffs re-extractions into change events, and drives the
// fsnotify watch loop that keeps the store current.
package index

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"aether/internal/core"
	"aether/internal/logging"
	"aether/internal/parse"
)

// Options tunes workspace scanning.
type Options struct {
	// MaxConcurrency bounds the seed scan worker pool. <= 0 means NumCPU
	// capped at 20.
	MaxConcurrency int
	// IgnorePatterns extends DefaultIgnorePatterns.
	IgnorePatterns []string
	// MaxFileBytes skips larger files. <= 0 disables the cap.
	MaxFileBytes int64
}

func (o Options) workers() int {
	workers := o.MaxConcurrency
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 20 {
			workers = 20
		}
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

func (o Options) patterns() []string {
	return append(DefaultIgnorePatterns(), o.IgnorePatterns...)
}

type fileSnapshot struct {
	language  core.Language
	extracted *parse.ExtractedFile
}

// Observer holds per-file extraction snapshots keyed by workspace-relative
// path, so a file change can be diffed against what was last seen.
type Observer struct {
	workspace string
	registry  *parse.Registry
	opts      Options

	mu        sync.Mutex
	snapshots map[string]fileSnapshot
}

// NewObserver creates an Observer over a workspace root.
func NewObserver(workspace string, registry *parse.Registry, opts Options) *Observer {
	return &Observer{
		workspace: workspace,
		registry:  registry,
		opts:      opts,
		snapshots: make(map[string]fileSnapshot),
	}
}

// SeedFromDisk walks the workspace and extracts every supported file with
// a bounded worker pool.
func (o *Observer) SeedFromDisk(ctx context.Context) error {
	timer := logging.StartTimer(logging.CategoryIndex, "SeedFromDisk")
	defer timer.Stop()

	patterns := o.opts.patterns()
	var candidates []string
	err := filepath.WalkDir(o.workspace, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel := relativeWorkspacePath(o.workspace, path)
		if entry.IsDir() {
			if rel != "." && isIgnoredRel(rel, entry.Name(), patterns) {
				return filepath.SkipDir
			}
			return nil
		}
		if isIgnoredRel(rel, entry.Name(), patterns) {
			return nil
		}
		if !o.registry.Supports(path) {
			return nil
		}
		if o.opts.MaxFileBytes > 0 {
			if info, err := entry.Info(); err == nil && info.Size() > o.opts.MaxFileBytes {
				logging.IndexDebug("Skipping oversized file %s", rel)
				return nil
			}
		}
		candidates = append(candidates, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk workspace %s: %w", o.workspace, err)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(o.opts.workers())
	for _, path := range candidates {
		path := path
		group.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			content, err := os.ReadFile(path)
			if err != nil {
				// File vanished between walk and read.
				return nil
			}
			rel := relativeWorkspacePath(o.workspace, path)
			extracted, err := o.registry.ExtractFile(rel, content)
			if err != nil {
				// One broken file must not abort the scan; it gets
				// picked up once it parses again.
				logging.IndexError("Skipping unparseable file %s: %v", rel, err)
				return nil
			}
			language, _ := parse.LanguageForPath(rel)

			o.mu.Lock()
			o.snapshots[rel] = fileSnapshot{language: language, extracted: extracted}
			o.mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	logging.Index("Seeded %d files from %s", len(candidates), o.workspace)
	return nil
}

// ProcessPath re-extracts one file and diffs it against its snapshot. A
// deleted or newly unparseable file produces an all-removed event. Returns
// nil when nothing changed, the path is ignored, or the extension is
// unsupported.
func (o *Observer) ProcessPath(path string) (*core.SymbolChangeEvent, *parse.ExtractedFile, error) {
	rel := relativeWorkspacePath(o.workspace, path)
	if isIgnoredRel(rel, filepath.Base(rel), o.opts.patterns()) {
		return nil, nil, nil
	}

	o.mu.Lock()
	previous, hadPrevious := o.snapshots[rel]
	o.mu.Unlock()

	language, supported := parse.LanguageForPath(rel)
	if !supported {
		if !hadPrevious {
			return nil, nil, nil
		}
		language = previous.language
	}

	absolute := path
	if !filepath.IsAbs(absolute) {
		absolute = filepath.Join(o.workspace, rel)
	}

	current := &parse.ExtractedFile{}
	if info, err := os.Stat(absolute); err == nil && info.Mode().IsRegular() {
		content, err := os.ReadFile(absolute)
		if err != nil && !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("failed to read changed file %s: %w", absolute, err)
		}
		if err == nil {
			current, err = o.registry.ExtractSource(language, rel, content)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to extract symbols from %s: %w", absolute, err)
			}
		}
	}

	var previousSymbols []core.Symbol
	if hadPrevious {
		previousSymbols = previous.extracted.Symbols
	}
	event := core.DiffSymbols(rel, language, previousSymbols, current.Symbols)

	o.mu.Lock()
	if len(current.Symbols) == 0 {
		delete(o.snapshots, rel)
	} else {
		o.snapshots[rel] = fileSnapshot{language: language, extracted: current}
	}
	o.mu.Unlock()

	if event.IsEmpty() {
		return nil, current, nil
	}
	return &event, current, nil
}

// InitialEvents exposes the seeded snapshots as synthetic all-added change
// events, sorted by file path.
func (o *Observer) InitialEvents() []core.SymbolChangeEvent {
	o.mu.Lock()
	defer o.mu.Unlock()

	var events []core.SymbolChangeEvent
	for rel, snapshot := range o.snapshots {
		if len(snapshot.extracted.Symbols) == 0 {
			continue
		}
		added := make([]core.Symbol, len(snapshot.extracted.Symbols))
		copy(added, snapshot.extracted.Symbols)
		sort.Slice(added, func(i, j int) bool { return added[i].ID < added[j].ID })

		events = append(events, core.SymbolChangeEvent{
			FilePath: rel,
			Language: snapshot.language,
			Added:    added,
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].FilePath < events[j].FilePath })
	return events
}

// Extracted returns the current snapshot extraction for a workspace-relative
// path.
func (o *Observer) Extracted(rel string) (*parse.ExtractedFile, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	snapshot, ok := o.snapshots[rel]
	if !ok {
		return nil, false
	}
	return snapshot.extracted, true
}

// Files returns the workspace-relative paths currently snapshotted, sorted.
func (o *Observer) Files() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	files := make([]string, 0, len(o.snapshots))
	for rel := range o.snapshots {
		files = append(files, rel)
	}
	sort.Strings(files)
	return files
}

// relativeWorkspacePath rewrites an absolute path inside the workspace to
// its normalized relative form. Paths outside the workspace pass through
// normalized.
func relativeWorkspacePath(workspace, path string) string {
	if filepath.IsAbs(path) {
		if rel, err := filepath.Rel(workspace, path); err == nil && !isParentEscape(rel) {
			return core.NormalizePath(rel)
		}
	}
	return core.NormalizePath(path)
}

func isParentEscape(rel string) bool {
	return rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator)
}
