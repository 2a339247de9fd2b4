// Package window holds fixed-window counter stores. Each Increment applies
// one request to a key atomically: open a window on the first request, reset
// it once now has passed its end, otherwise count the request.
package window

import (
	"context"
	"sync"
	"time"

	"repairhub/internal/ratelimit/models"
)

// InMemoryStore keeps one entry per key behind its own lock. Keys never
// contend with each other; the sync.Map only serializes entry creation.
type InMemoryStore struct {
	entries sync.Map // string -> *entry
}

type entry struct {
	mu      sync.Mutex
	start   time.Time
	count   int
	window  time.Duration
	deleted bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Increment counts one request for key at now.
func (s *InMemoryStore) Increment(_ context.Context, key string, now time.Time, window time.Duration) (models.Window, error) {
	for {
		v, _ := s.entries.LoadOrStore(key, &entry{})
		e := v.(*entry)

		e.mu.Lock()
		if e.deleted {
			// Swept between load and lock; retry against the replacement.
			e.mu.Unlock()
			continue
		}
		if e.count == 0 || !now.Before(e.start.Add(e.window)) {
			e.start = now
			e.count = 0
		}
		e.window = window
		e.count++
		w := models.Window{Start: e.start, Count: e.count}
		e.mu.Unlock()
		return w, nil
	}
}

// Reset clears the counter for a key.
func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	if v, ok := s.entries.LoadAndDelete(key); ok {
		e := v.(*entry)
		e.mu.Lock()
		e.deleted = true
		e.mu.Unlock()
	}
	return nil
}

// Sweep removes every key whose window ended at or before now and returns
// how many were removed.
func (s *InMemoryStore) Sweep(now time.Time) int {
	removed := 0
	s.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		if e.count > 0 && !now.Before(e.start.Add(e.window)) {
			e.deleted = true
			s.entries.CompareAndDelete(k, v)
			removed++
		}
		e.mu.Unlock()
		return true
	})
	return removed
}

// Len returns the number of tracked keys.
func (s *InMemoryStore) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// StartCleanup sweeps expired windows every interval until ctx is done.
func (s *InMemoryStore) StartCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(time.Now())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
