package persistence

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/petrijr/pathways/pkg/api"
)

var (
	// ErrPathwayNotFound is returned when a pathway is not in the store.
	ErrPathwayNotFound = errors.New("pathway not found")

	// ErrPathwayExists is returned when creating a pathway whose uuid is
	// already stored.
	ErrPathwayExists = errors.New("pathway already exists")
)

// PathwayFilter is used to select pathways from the store.
// Nil / empty values mean "no filter" for that field.
type PathwayFilter struct {
	OwnerUserID    *int64
	OwnerGroupName string
}

func (f PathwayFilter) matches(p *api.Pathway) bool {
	if f.OwnerUserID != nil && (p.Owner.UserID == nil || *p.Owner.UserID != *f.OwnerUserID) {
		return false
	}
	if f.OwnerGroupName != "" && p.Owner.GroupName != f.OwnerGroupName {
		return false
	}
	return true
}

// PathwayStore handles storage of pathways.
//
// Implementations return copies: mutating a returned pathway never changes
// stored state until it is passed back to UpdatePathway.
type PathwayStore interface {
	// CreatePathway stores a new pathway. It returns ErrPathwayExists if
	// the uuid is taken.
	CreatePathway(ctx context.Context, p *api.Pathway) error
	// UpdatePathway replaces a stored pathway.
	UpdatePathway(ctx context.Context, p *api.Pathway) error
	GetPathway(ctx context.Context, id uuid.UUID) (*api.Pathway, error)
	DeletePathway(ctx context.Context, id uuid.UUID) error
	// ListPathways returns matching pathways ordered by creation time.
	ListPathways(ctx context.Context, filter PathwayFilter) ([]*api.Pathway, error)
}

// sortPathways orders by creation time, breaking ties by uuid so that
// results are stable across backends.
func sortPathways(ps []*api.Pathway) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return ps[i].UUID.String() < ps[j].UUID.String()
	})
}
