package audit

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory audit sink for tests and Postgres-less runs.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) ListByEntity(_ context.Context, entityType, entityID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, event := range s.events {
		if event.EntityType == entityType && event.EntityID == entityID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByCorrelation(_ context.Context, correlationID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, event := range s.events {
		if event.CorrelationID == correlationID {
			out = append(out, event)
		}
	}
	return out, nil
}

// All returns every recorded event in append order.
func (s *MemoryStore) All() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
