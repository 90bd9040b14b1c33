package persistence

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/petrijr/pathways/pkg/api"
)

// EventStore is an append-only history store for pathway events.
// Events outlive the pathway they describe.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.PathwayEvent) error
	// ListEvents returns the events of one pathway, oldest first.
	ListEvents(ctx context.Context, pathway uuid.UUID) ([]api.PathwayEvent, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(ctx context.Context, ev api.PathwayEvent) error { return nil }
func (NoopEventStore) ListEvents(ctx context.Context, pathway uuid.UUID) ([]api.PathwayEvent, error) {
	return nil, nil
}

// InMemoryEventStore keeps events in a map. It is goroutine-safe.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events map[uuid.UUID][]api.PathwayEvent
}

var _ EventStore = (*InMemoryEventStore)(nil)

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{events: make(map[uuid.UUID][]api.PathwayEvent)}
}

func (s *InMemoryEventStore) AppendEvent(ctx context.Context, ev api.PathwayEvent) error {
	ev = withTimestamp(ev)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.PathwayUUID] = append(s.events[ev.PathwayUUID], ev)
	return nil
}

func (s *InMemoryEventStore) ListEvents(ctx context.Context, pathway uuid.UUID) ([]api.PathwayEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evs := s.events[pathway]
	out := make([]api.PathwayEvent, len(evs))
	copy(out, evs)
	return out, nil
}
