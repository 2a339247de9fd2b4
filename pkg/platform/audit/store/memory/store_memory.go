package memory

import (
	"context"

	audit "repairhub/pkg/platform/audit"
)

// InMemoryStore keeps the retained trail in a ring. It is not durable and is
// meant for tests and throwaway development runs.
type InMemoryStore struct {
	ring *audit.Ring
}

// NewInMemoryStore creates a store retaining at most retention events.
func NewInMemoryStore(retention int) *InMemoryStore {
	return &InMemoryStore{ring: audit.NewRing(retention)}
}

func (s *InMemoryStore) Init(_ context.Context) error { return nil }

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.ring.Push(event)
	return nil
}

func (s *InMemoryStore) Snapshot(_ context.Context) ([]audit.Event, error) {
	return s.ring.Snapshot(), nil
}

func (s *InMemoryStore) Close() error { return nil }

// Clear drops every retained event.
func (s *InMemoryStore) Clear() {
	s.ring.Reset()
}
