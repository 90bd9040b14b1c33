package persistence

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/petrijr/pathways/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of
// PathwayStore backed by a map. Pathways are cloned on the way in and out.
type InMemoryStore struct {
	mu       sync.RWMutex
	pathways map[uuid.UUID]*api.Pathway
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		pathways: make(map[uuid.UUID]*api.Pathway),
	}
}

// Ensure InMemoryStore implements the interface.
var _ PathwayStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) CreatePathway(ctx context.Context, p *api.Pathway) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pathways[p.UUID]; ok {
		return ErrPathwayExists
	}
	s.pathways[p.UUID] = p.Clone()
	return nil
}

func (s *InMemoryStore) UpdatePathway(ctx context.Context, p *api.Pathway) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pathways[p.UUID]; !ok {
		return ErrPathwayNotFound
	}
	s.pathways[p.UUID] = p.Clone()
	return nil
}

func (s *InMemoryStore) GetPathway(ctx context.Context, id uuid.UUID) (*api.Pathway, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pathways[id]
	if !ok {
		return nil, ErrPathwayNotFound
	}
	return p.Clone(), nil
}

func (s *InMemoryStore) DeletePathway(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pathways[id]; !ok {
		return ErrPathwayNotFound
	}
	delete(s.pathways, id)
	return nil
}

func (s *InMemoryStore) ListPathways(ctx context.Context, filter PathwayFilter) ([]*api.Pathway, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*api.Pathway{}
	for _, p := range s.pathways {
		if !filter.matches(p) {
			continue
		}
		result = append(result, p.Clone())
	}
	sortPathways(result)
	return result, nil
}
