package learningcontext

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/petrijr/pathways/internal/persistence"
	"github.com/petrijr/pathways/pkg/api"
	"github.com/petrijr/pathways/pkg/keys"
)

// PathwayLoader loads a pathway by uuid. persistence.PathwayStore
// satisfies it.
type PathwayLoader interface {
	GetPathway(ctx context.Context, id uuid.UUID) (*api.Pathway, error)
}

// PathwayContext serves blocks addressed by pathway usage keys. Every such
// block is an alias for an item's original block, resolved through the
// registry.
type PathwayContext struct {
	loader   PathwayLoader
	registry *Registry
	// useDraft selects which copy of the pathway data is consulted.
	useDraft bool
}

var _ Context = (*PathwayContext)(nil)

// NewPathwayContext creates a context resolving items through loader.
// Studio uses the draft data (useDraft) and the LMS the published data.
func NewPathwayContext(loader PathwayLoader, registry *Registry, useDraft bool) *PathwayContext {
	return &PathwayContext{loader: loader, registry: registry, useDraft: useDraft}
}

// NewRegistryWithPathways returns a registry serving library, course and
// pathway usage keys, the last backed by loader.
func NewRegistryWithPathways(loader PathwayLoader, useDraft bool) *Registry {
	r := NewRegistry()
	r.Register(keys.LibraryUsageNamespace, LibraryContext{})
	r.Register(keys.CourseUsageNamespace, CourseContext{})
	r.Register(keys.PathwayUsageNamespace, NewPathwayContext(loader, r, useDraft))
	return r
}

func asPathwayUsage(key keys.UsageKey) (keys.PathwayUsageKey, error) {
	k, ok := key.(keys.PathwayUsageKey)
	if !ok {
		return keys.PathwayUsageKey{}, fmt.Errorf("%s is not a pathway usage key: %w", key, ErrBlockNotFound)
	}
	return k, nil
}

// OriginalUsageKey returns the usage key of the block that key aliases.
// For descendants (keys with a child usage id) the original item key is
// re-pointed at the child's block type and usage id.
func (c *PathwayContext) OriginalUsageKey(ctx context.Context, key keys.PathwayUsageKey) (keys.UsageKey, error) {
	data, err := c.pathwayData(ctx, key.Pathway)
	if err != nil {
		return nil, err
	}
	item, ok := data.FindItem(key.UsageID)
	if !ok {
		return nil, fmt.Errorf("%s: no item %q: %w", key.Pathway, key.UsageID, ErrBlockNotFound)
	}
	orig, err := keys.ParseUsageKey(item.OriginalUsageID)
	if err != nil {
		return nil, fmt.Errorf("%s: item %q: %w", key.Pathway, key.UsageID, err)
	}
	if key.ChildUsageID != "" {
		return orig.WithBlock(key.Type, key.ChildUsageID)
	}
	return orig, nil
}

func (c *PathwayContext) DefinitionForUsage(ctx context.Context, key keys.UsageKey) (Definition, error) {
	k, err := asPathwayUsage(key)
	if err != nil {
		return Definition{}, err
	}
	orig, err := c.OriginalUsageKey(ctx, k)
	if err != nil {
		return Definition{}, err
	}
	return c.registry.DefinitionForUsage(ctx, orig)
}

func (c *PathwayContext) UsageForChildInclude(ctx context.Context, parent keys.UsageKey, include Include) (keys.UsageKey, error) {
	k, err := asPathwayUsage(parent)
	if err != nil {
		return nil, err
	}
	origParent, err := c.OriginalUsageKey(ctx, k)
	if err != nil {
		return nil, err
	}
	origChild, err := c.registry.UsageForChildInclude(ctx, origParent, include)
	if err != nil {
		return nil, err
	}
	// The item's usage id is shared by all of its descendants.
	return keys.NewPathwayUsageKey(k.Pathway, include.BlockType, k.UsageID, origChild.BlockID())
}

func (c *PathwayContext) CanViewBlock(ctx context.Context, p api.Principal, key keys.UsageKey) bool {
	return blockExists(ctx, c, key)
}

func (c *PathwayContext) CanEditBlock(ctx context.Context, p api.Principal, key keys.UsageKey) bool {
	return blockExists(ctx, c, key)
}

func (c *PathwayContext) pathwayData(ctx context.Context, key keys.PathwayKey) (api.Data, error) {
	ck := cacheKey{pathway: key.UUID, draft: c.useDraft}
	cache := cacheFrom(ctx)
	if d, ok := cache.get(ck); ok {
		return d, nil
	}

	pw, err := c.loader.GetPathway(ctx, key.UUID)
	if errors.Is(err, persistence.ErrPathwayNotFound) {
		return api.Data{}, fmt.Errorf("%s: %w", key, ErrBlockNotFound)
	}
	if err != nil {
		return api.Data{}, fmt.Errorf("load %s: %w", key, err)
	}
	d := pw.Published
	if c.useDraft {
		d = pw.Draft
	}
	cache.put(ck, d)
	return d, nil
}
