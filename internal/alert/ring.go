package alert

import "sync"

// Ring is the bounded in-memory alert accumulator §4.5 requires (default
// 500), queried via the external read API. Oldest-wins eviction, same
// discipline as decisiongraph.Recorder.
type Ring struct {
	mu       sync.Mutex
	capacity int
	alerts   []*Alert
}

// NewRing returns a Ring retaining at most capacity alerts.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 500
	}
	return &Ring{capacity: capacity}
}

// Push appends a, evicting the oldest alert if the ring is full.
func (r *Ring) Push(a *Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.alerts = append(r.alerts, a)
	if over := len(r.alerts) - r.capacity; over > 0 {
		r.alerts = r.alerts[over:]
	}
}

// Len returns how many alerts are currently retained.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// All returns a snapshot of every retained alert, oldest first.
func (r *Ring) All() []*Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}
