package state

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Snapshot is an immutable captured copy of a session state plus provenance
// metadata.
type Snapshot struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Node      string         `json:"node"`
	State     *State         `json:"state"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// History is a bounded, in-memory log of snapshots with strict FIFO ring
// buffer semantics: insertion order defines eviction order. History is
// diagnostic only; it is never read by the router and must not affect
// engine decisions. Safe for concurrent use.
type History struct {
	mu    sync.RWMutex
	buf   []Snapshot
	start int
	count int
}

// DefaultHistoryCapacity bounds history when no capacity is configured.
const DefaultHistoryCapacity = 64

// NewHistory creates a history holding at most capacity snapshots.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{buf: make([]Snapshot, capacity)}
}

// AddSnapshot records a deep copy of the state. When at capacity the oldest
// entry is evicted.
func (h *History) AddSnapshot(node string, s *State, metadata map[string]any) {
	snap := Snapshot{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Node:      node,
		State:     s.Clone(),
		Metadata:  metadata,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	idx := (h.start + h.count) % len(h.buf)
	h.buf[idx] = snap
	if h.count < len(h.buf) {
		h.count++
	} else {
		h.start = (h.start + 1) % len(h.buf)
	}
}

// Len returns the number of retained snapshots.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// LatestSnapshot returns the most recently inserted snapshot. The second
// return is false when the history is empty.
func (h *History) LatestSnapshot() (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return Snapshot{}, false
	}
	idx := (h.start + h.count - 1) % len(h.buf)
	return h.buf[idx], true
}

// SnapshotsByTimeRange returns the snapshots captured within [from, to],
// inclusive, in insertion order.
func (h *History) SnapshotsByTimeRange(from, to time.Time) []Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Snapshot
	h.each(func(s Snapshot) {
		if !s.Timestamp.Before(from) && !s.Timestamp.After(to) {
			out = append(out, s)
		}
	})
	return out
}

// SnapshotsByStage returns the snapshots whose state was in stage at
// capture time, in insertion order.
func (h *History) SnapshotsByStage(stage Stage) []Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Snapshot
	h.each(func(s Snapshot) {
		if s.State != nil && s.State.CurrentStage == stage {
			out = append(out, s)
		}
	})
	return out
}

// Snapshots returns all retained snapshots in insertion order.
func (h *History) Snapshots() []Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Snapshot, 0, h.count)
	h.each(func(s Snapshot) { out = append(out, s) })
	return out
}

// each visits retained snapshots in insertion order. Callers hold the lock.
func (h *History) each(fn func(Snapshot)) {
	for i := 0; i < h.count; i++ {
		fn(h.buf[(h.start+i)%len(h.buf)])
	}
}
