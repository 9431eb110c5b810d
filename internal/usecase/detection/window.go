package detection

import (
	"time"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

// WindowEntry is one recorded attempt inside a rolling window
type WindowEntry struct {
	Timestamp time.Time
	SourceIP  string
	Username  string
	Server    string
	Outcome   entity.Outcome
}

// RollingWindow is a bounded, time-pruned history of recent attempts.
// It is not safe for concurrent use; the owning engine serializes access
// through its per-key shard locks.
type RollingWindow struct {
	entries    []WindowEntry
	maxEntries int
	horizon    time.Duration
}

// NewRollingWindow creates a window capped in both count and age
func NewRollingWindow(maxEntries int, horizon time.Duration) *RollingWindow {
	return &RollingWindow{
		entries:    make([]WindowEntry, 0, 16),
		maxEntries: maxEntries,
		horizon:    horizon,
	}
}

// Append records an attempt, pruning anything outside the horizon first.
// Invariant after return: all stored entries satisfy now-ts <= horizon and
// len(entries) <= maxEntries.
func (w *RollingWindow) Append(e WindowEntry, now time.Time) {
	w.prune(now)
	w.entries = append(w.entries, e)
	if len(w.entries) > w.maxEntries {
		w.entries = w.entries[len(w.entries)-w.maxEntries:]
	}
}

// prune drops entries older than the horizon. Entries are time-ordered,
// so the first one inside the horizon bounds the cut.
func (w *RollingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.horizon)
	i := 0
	for ; i < len(w.entries); i++ {
		if !w.entries[i].Timestamp.Before(cutoff) {
			break
		}
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}
}

// Len returns the number of stored entries after pruning
func (w *RollingWindow) Len(now time.Time) int {
	w.prune(now)
	return len(w.entries)
}

// CountSince counts entries within the given sub-window, optionally
// restricted to failures
func (w *RollingWindow) CountSince(now time.Time, d time.Duration, failuresOnly bool) int {
	w.prune(now)
	cutoff := now.Add(-d)
	count := 0
	for i := len(w.entries) - 1; i >= 0; i-- {
		if w.entries[i].Timestamp.Before(cutoff) {
			break
		}
		if failuresOnly && !w.entries[i].Outcome.IsFailure() {
			continue
		}
		count++
	}
	return count
}

// FailureRate returns failures/total over the whole window, 0 when empty
func (w *RollingWindow) FailureRate(now time.Time) float64 {
	w.prune(now)
	if len(w.entries) == 0 {
		return 0
	}
	failures := 0
	for _, e := range w.entries {
		if e.Outcome.IsFailure() {
			failures++
		}
	}
	return float64(failures) / float64(len(w.entries))
}

// EntriesSince returns a snapshot of entries within the sub-window,
// optionally restricted to failures
func (w *RollingWindow) EntriesSince(now time.Time, d time.Duration, failuresOnly bool) []WindowEntry {
	w.prune(now)
	cutoff := now.Add(-d)
	var out []WindowEntry
	for _, e := range w.entries {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		if failuresOnly && !e.Outcome.IsFailure() {
			continue
		}
		out = append(out, e)
	}
	return out
}
