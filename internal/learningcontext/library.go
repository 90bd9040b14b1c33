package learningcontext

import (
	"context"
	"fmt"

	"github.com/petrijr/pathways/pkg/api"
	"github.com/petrijr/pathways/pkg/keys"
)

// LibraryContext serves blocks of content libraries. A library usage's
// definition lives at "<block_type>/<usage_id>/definition.xml" in the
// library's bundle.
type LibraryContext struct{}

var _ Context = LibraryContext{}

func (LibraryContext) DefinitionForUsage(ctx context.Context, key keys.UsageKey) (Definition, error) {
	k, ok := key.(keys.LibraryUsageKey)
	if !ok {
		return Definition{}, fmt.Errorf("%s is not a library usage key: %w", key, ErrBlockNotFound)
	}
	return Definition{
		Context:      k.Library,
		BlockType:    k.Type,
		DefinitionID: k.UsageID,
		OLXPath:      fmt.Sprintf("%s/%s/definition.xml", k.Type, k.UsageID),
	}, nil
}

func (LibraryContext) UsageForChildInclude(ctx context.Context, parent keys.UsageKey, include Include) (keys.UsageKey, error) {
	k, ok := parent.(keys.LibraryUsageKey)
	if !ok {
		return nil, fmt.Errorf("%s is not a library usage key: %w", parent, ErrBlockNotFound)
	}
	usageID := include.UsageHint
	if usageID == "" {
		usageID = include.DefinitionID
	}
	return keys.NewLibraryUsageKey(k.Library, include.BlockType, usageID)
}

func (c LibraryContext) CanViewBlock(ctx context.Context, p api.Principal, key keys.UsageKey) bool {
	return blockExists(ctx, c, key)
}

func (c LibraryContext) CanEditBlock(ctx context.Context, p api.Principal, key keys.UsageKey) bool {
	return blockExists(ctx, c, key)
}
