package audit

import "sync"

// Ring is a bounded, thread-safe buffer of events in insertion order.
// When full, the oldest event is evicted to make room for the new one.
type Ring struct {
	mu       sync.RWMutex
	events   []Event
	head     int // next write position
	count    int
	capacity int

	evicted int64
}

// NewRing creates a ring with the given capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRetention
	}
	return &Ring{
		events:   make([]Event, capacity),
		capacity: capacity,
	}
}

// Push adds an event, evicting the oldest if the ring is full.
// Returns true when an event was evicted.
func (r *Ring) Push(event Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.head] = event
	r.head = (r.head + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
		return false
	}
	r.evicted++
	return true
}

// Snapshot copies the retained events, oldest first.
func (r *Ring) Snapshot() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Event, 0, r.count)
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := range r.count {
		out = append(out, r.events[(start+i)%r.capacity])
	}
	return out
}

// Len returns the number of retained events.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Cap returns the retention cap.
func (r *Ring) Cap() int {
	return r.capacity
}

// Evicted returns how many events have been dropped since creation.
func (r *Ring) Evicted() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.evicted
}

// Reset drops every retained event.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.events)
	r.head = 0
	r.count = 0
}
