package index

import (
	"sort"
	"sync"
	"time"
)

// DebounceQueue coalesces bursts of watcher events per path. Each Mark
// resets the path's clock; DrainDue releases paths that have stayed quiet
// for a full window.
type DebounceQueue struct {
	mu      sync.Mutex
	pending map[string]time.Time
}

// NewDebounceQueue creates an empty queue.
func NewDebounceQueue() *DebounceQueue {
	return &DebounceQueue{pending: make(map[string]time.Time)}
}

// Mark records (or refreshes) a pending path.
func (q *DebounceQueue) Mark(path string, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[path] = now
}

// DrainDue removes and returns the paths whose last event is at least one
// debounce window old, sorted.
func (q *DebounceQueue) DrainDue(now time.Time, debounce time.Duration) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []string
	for path, lastSeen := range q.pending {
		if now.Sub(lastSeen) >= debounce {
			due = append(due, path)
			delete(q.pending, path)
		}
	}
	sort.Strings(due)
	return due
}

// Len returns the number of pending paths.
func (q *DebounceQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
