package learningcontext

import (
	"context"
	"fmt"

	"github.com/petrijr/pathways/pkg/api"
	"github.com/petrijr/pathways/pkg/keys"
)

// CourseContext serves blocks of course runs. In a course export every
// block is stored at "<block_type>/<block_id>.xml" and children are
// referenced by their url_name, so the definition id is the block id.
type CourseContext struct{}

var _ Context = CourseContext{}

func (CourseContext) DefinitionForUsage(ctx context.Context, key keys.UsageKey) (Definition, error) {
	k, ok := key.(keys.CourseUsageKey)
	if !ok {
		return Definition{}, fmt.Errorf("%s is not a course usage key: %w", key, ErrBlockNotFound)
	}
	return Definition{
		Context:      k.Course,
		BlockType:    k.Type,
		DefinitionID: k.ID,
		OLXPath:      fmt.Sprintf("%s/%s.xml", k.Type, k.ID),
	}, nil
}

func (CourseContext) UsageForChildInclude(ctx context.Context, parent keys.UsageKey, include Include) (keys.UsageKey, error) {
	k, ok := parent.(keys.CourseUsageKey)
	if !ok {
		return nil, fmt.Errorf("%s is not a course usage key: %w", parent, ErrBlockNotFound)
	}
	blockID := include.UsageHint
	if blockID == "" {
		blockID = include.DefinitionID
	}
	return keys.NewCourseUsageKey(k.Course, include.BlockType, blockID)
}

func (c CourseContext) CanViewBlock(ctx context.Context, p api.Principal, key keys.UsageKey) bool {
	return blockExists(ctx, c, key)
}

func (c CourseContext) CanEditBlock(ctx context.Context, p api.Principal, key keys.UsageKey) bool {
	return blockExists(ctx, c, key)
}
