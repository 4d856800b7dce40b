// Package window implements the per-type sliding event buffers the
// correlator matches rule conditions against.
package window

import (
	"sort"
	"sync"
	"time"

	"github.com/telhawk-systems/logiccorrelator/internal/event"
)

// entry pairs an admitted event with the ingest time it arrived at, since
// §4.1 ties expiry to ingest time rather than the event's own timestamp.
type entry struct {
	event      *event.Event
	ingestTime time.Time
}

// Store is a per-event-type, insertion-ordered buffer with bounded
// retention. It owns the events it holds once Admit returns; callers read
// through Slice and never get write access back.
//
// Grounded on original_source/core/state_manager.py's event_windows
// (a dict of deques keyed by type) and its _cleanup_expired_events sweep,
// adapted to a mutex-guarded map of slices since Go has no GIL to lean on.
type Store struct {
	mu      sync.RWMutex
	buffers map[string][]entry

	eventsStored  int64
	eventsExpired int64
}

// New returns an empty window store.
func New() *Store {
	return &Store{buffers: make(map[string][]entry)}
}

// Admit appends e to its type's buffer. Insertion order is preserved
// regardless of e.Timestamp — the window store is arrival-ordered, as §3
// requires, not timestamp-ordered.
func (s *Store) Admit(e *event.Event, ingestTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers[e.Type] = append(s.buffers[e.Type], entry{event: e, ingestTime: ingestTime})
	s.eventsStored++
}

// Slice returns the events of the given type with
// now - e.Timestamp <= window, in arrival order. The slice is a fresh copy;
// mutating it never affects the store.
func (s *Store) Slice(eventType string, now time.Time, window time.Duration) []*event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.buffers[eventType]
	out := make([]*event.Event, 0, len(buf))
	for _, en := range buf {
		if now.Sub(en.event.Timestamp) <= window {
			out = append(out, en.event)
		}
	}
	return out
}

// Expire drops entries whose ingest time is older than retention, per
// buffer. A buffer left empty is removed entirely so Summary and memory use
// don't grow for event types that stop arriving.
func (s *Store) Expire(now time.Time, retention time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-retention)
	for t, buf := range s.buffers {
		keepFrom := 0
		for keepFrom < len(buf) && buf[keepFrom].ingestTime.Before(cutoff) {
			keepFrom++
		}
		if keepFrom == 0 {
			continue
		}
		s.eventsExpired += int64(keepFrom)
		if keepFrom == len(buf) {
			delete(s.buffers, t)
			continue
		}
		remaining := make([]entry, len(buf)-keepFrom)
		copy(remaining, buf[keepFrom:])
		s.buffers[t] = remaining
	}
}

// Summary reports the current event count per type, ported from the
// original get_window_summary.
func (s *Store) Summary() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int, len(s.buffers))
	for t, buf := range s.buffers {
		if len(buf) > 0 {
			out[t] = len(buf)
		}
	}
	return out
}

// Stats mirrors the original get_stats: totals plus how many distinct
// windows currently hold at least one event.
type Stats struct {
	TotalEventsStored int64
	EventsExpired     int64
	CurrentEvents     int64
	WindowsActive     int
}

// Stats returns a point-in-time snapshot of store-wide counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{TotalEventsStored: s.eventsStored, EventsExpired: s.eventsExpired}
	for _, buf := range s.buffers {
		if len(buf) > 0 {
			st.WindowsActive++
			st.CurrentEvents += int64(len(buf))
		}
	}
	return st
}

// Types returns the event types currently tracked, sorted for deterministic
// iteration (rule evaluation order must not depend on map iteration order).
func (s *Store) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.buffers))
	for t := range s.buffers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
