package work

import (
	"sync"
	"time"
)

// CompletionTracker tracks when each job last ran.
type CompletionTracker struct {
	completions map[string]time.Time
	mu          sync.RWMutex
}

// NewCompletionTracker creates a new completion tracker.
func NewCompletionTracker() *CompletionTracker {
	return &CompletionTracker{
		completions: make(map[string]time.Time),
	}
}

// MarkCompletedAt records that a job ran at a specific time.
func (t *CompletionTracker) MarkCompletedAt(name string, completedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.completions[name] = completedAt
}

// GetCompletion returns when a job last ran and whether an entry exists.
func (t *CompletionTracker) GetCompletion(name string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	completedAt, exists := t.completions[name]
	return completedAt, exists
}

// Clear removes the entry for a job.
func (t *CompletionTracker) Clear(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.completions, name)
}

// Snapshot returns a copy of every entry.
func (t *CompletionTracker) Snapshot() map[string]time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]time.Time, len(t.completions))
	for name, at := range t.completions {
		out[name] = at
	}
	return out
}

// Advance sets the entry for name to at unless the current entry is later.
// Returns true if the entry changed.
func (t *CompletionTracker) Advance(name string, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.completions[name]; ok && !at.After(current) {
		return false
	}
	t.completions[name] = at
	return true
}
