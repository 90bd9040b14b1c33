package learningcontext

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/pathways/internal/persistence"
	"github.com/petrijr/pathways/pkg/api"
	"github.com/petrijr/pathways/pkg/keys"
)

var testPathwayID = uuid.MustParse("b0fd731a-5bab-4fe2-8491-405292e5176e")

type countingLoader struct {
	store *persistence.InMemoryStore
	loads atomic.Int32
}

func (l *countingLoader) GetPathway(ctx context.Context, id uuid.UUID) (*api.Pathway, error) {
	l.loads.Add(1)
	return l.store.GetPathway(ctx, id)
}

func newLoader(t *testing.T) *countingLoader {
	t.Helper()

	draft, err := api.Clean(api.Data{Items: []api.Item{
		{ID: "0ff24589", OriginalUsageID: "lb:TestOrg:lib1:unit:u1"},
		{ID: "draftonly", OriginalUsageID: "lb:TestOrg:lib1:html:h9"},
	}})
	require.NoError(t, err)
	published, err := api.Clean(api.Data{Items: []api.Item{
		{ID: "0ff24589", OriginalUsageID: "lb:TestOrg:lib1:unit:u1"},
	}})
	require.NoError(t, err)

	now := time.Now()
	store := persistence.NewInMemoryStore()
	require.NoError(t, store.CreatePathway(context.Background(), &api.Pathway{
		UUID:      testPathwayID,
		Owner:     api.OwnerUser(10),
		Draft:     draft,
		Published: published,
		CreatedAt: now,
		UpdatedAt: now,
	}))
	return &countingLoader{store: store}
}

func pathwayUsage(t *testing.T, blockType, usageID, child string) keys.PathwayUsageKey {
	t.Helper()
	k, err := keys.NewPathwayUsageKey(keys.NewPathwayKey(testPathwayID), blockType, usageID, child)
	require.NoError(t, err)
	return k
}

func TestPathwayContext_OriginalUsageKey(t *testing.T) {
	ctx := context.Background()
	r := NewRegistryWithPathways(newLoader(t), true)
	pc, err := r.ForKey(pathwayUsage(t, "unit", "0ff24589", ""))
	require.NoError(t, err)

	orig, err := pc.(*PathwayContext).OriginalUsageKey(ctx, pathwayUsage(t, "unit", "0ff24589", ""))
	require.NoError(t, err)
	require.Equal(t, "lb:TestOrg:lib1:unit:u1", orig.String())

	child, err := pc.(*PathwayContext).OriginalUsageKey(ctx, pathwayUsage(t, "problem", "0ff24589", "p1"))
	require.NoError(t, err)
	require.Equal(t, "lb:TestOrg:lib1:problem:p1", child.String())

	_, err = pc.(*PathwayContext).OriginalUsageKey(ctx, pathwayUsage(t, "unit", "missing", ""))
	require.ErrorIs(t, err, ErrBlockNotFound)
}

func TestPathwayContext_DraftVersusPublished(t *testing.T) {
	ctx := context.Background()
	loader := newLoader(t)
	key := pathwayUsage(t, "html", "draftonly", "")

	def, err := NewRegistryWithPathways(loader, true).DefinitionForUsage(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "html/h9/definition.xml", def.OLXPath)

	_, err = NewRegistryWithPathways(loader, false).DefinitionForUsage(ctx, key)
	require.ErrorIs(t, err, ErrBlockNotFound)
}

func TestPathwayContext_DefinitionForUsage(t *testing.T) {
	r := NewRegistryWithPathways(newLoader(t), false)

	def, err := r.DefinitionForUsage(context.Background(), pathwayUsage(t, "problem", "0ff24589", "p1"))
	require.NoError(t, err)
	require.Equal(t, "lib:TestOrg:lib1", def.Context.String())
	require.Equal(t, "problem", def.BlockType)
	require.Equal(t, "p1", def.DefinitionID)
	require.Equal(t, "problem/p1/definition.xml", def.OLXPath)
}

func TestPathwayContext_UsageForChildInclude(t *testing.T) {
	ctx := context.Background()
	r := NewRegistryWithPathways(newLoader(t), false)
	parent := pathwayUsage(t, "unit", "0ff24589", "")

	child, err := r.UsageForChildInclude(ctx, parent, Include{BlockType: "problem", DefinitionID: "p1"})
	require.NoError(t, err)
	require.Equal(t, "lx-pb:b0fd731a-5bab-4fe2-8491-405292e5176e:problem:0ff24589:p1", child.String())

	hinted, err := r.UsageForChildInclude(ctx, parent, Include{BlockType: "problem", DefinitionID: "p1", UsageHint: "p1-again"})
	require.NoError(t, err)
	require.Equal(t, "lx-pb:b0fd731a-5bab-4fe2-8491-405292e5176e:problem:0ff24589:p1-again", hinted.String())

	// A grandchild resolves through its own original key.
	def, err := r.DefinitionForUsage(ctx, hinted)
	require.NoError(t, err)
	require.Equal(t, "problem/p1-again/definition.xml", def.OLXPath)
}

func TestPathwayContext_Permissions(t *testing.T) {
	ctx := context.Background()
	r := NewRegistryWithPathways(newLoader(t), false)
	c, err := r.ForKey(pathwayUsage(t, "unit", "0ff24589", ""))
	require.NoError(t, err)

	p := api.Principal{UserID: 42}
	require.True(t, c.CanViewBlock(ctx, p, pathwayUsage(t, "unit", "0ff24589", "")))
	require.True(t, c.CanEditBlock(ctx, p, pathwayUsage(t, "unit", "0ff24589", "")))
	require.False(t, c.CanViewBlock(ctx, p, pathwayUsage(t, "html", "draftonly", "")))
}

func TestPathwayContext_UnknownPathway(t *testing.T) {
	r := NewRegistryWithPathways(newLoader(t), true)
	k, err := keys.NewPathwayUsageKey(keys.NewPathwayKey(uuid.New()), "unit", "0ff24589", "")
	require.NoError(t, err)

	_, err = r.DefinitionForUsage(context.Background(), k)
	require.ErrorIs(t, err, ErrBlockNotFound)
}

func TestPathwayContext_RequestCache(t *testing.T) {
	loader := newLoader(t)
	r := NewRegistryWithPathways(loader, true)
	key := pathwayUsage(t, "unit", "0ff24589", "")

	ctx := WithRequestCache(context.Background())
	for range 3 {
		_, err := r.DefinitionForUsage(ctx, key)
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, loader.loads.Load())

	// Without a cache every lookup reads the store.
	for range 2 {
		_, err := r.DefinitionForUsage(context.Background(), key)
		require.NoError(t, err)
	}
	require.EqualValues(t, 3, loader.loads.Load())
}

func TestLibraryContext(t *testing.T) {
	ctx := context.Background()
	k, err := keys.ParseUsageKey("lb:TestOrg:lib1:html:h1")
	require.NoError(t, err)

	var c LibraryContext
	def, err := c.DefinitionForUsage(ctx, k)
	require.NoError(t, err)
	require.Equal(t, "h1", def.DefinitionID)
	require.Equal(t, "html/h1/definition.xml", def.OLXPath)

	child, err := c.UsageForChildInclude(ctx, k, Include{BlockType: "video", DefinitionID: "v1"})
	require.NoError(t, err)
	require.Equal(t, "lb:TestOrg:lib1:video:v1", child.String())

	_, err = c.DefinitionForUsage(ctx, pathwayUsage(t, "unit", "0ff24589", ""))
	require.ErrorIs(t, err, ErrBlockNotFound)
}

func TestCourseContext(t *testing.T) {
	ctx := context.Background()
	k, err := keys.ParseUsageKey("block-v1:edX+DemoX+2024+type@vertical+block@intro")
	require.NoError(t, err)

	var c CourseContext
	def, err := c.DefinitionForUsage(ctx, k)
	require.NoError(t, err)
	require.Equal(t, "course-v1:edX+DemoX+2024", def.Context.String())
	require.Equal(t, "intro", def.DefinitionID)
	require.Equal(t, "vertical/intro.xml", def.OLXPath)

	child, err := c.UsageForChildInclude(ctx, k, Include{BlockType: "problem", DefinitionID: "q1"})
	require.NoError(t, err)
	require.Equal(t, "block-v1:edX+DemoX+2024+type@problem+block@q1", child.String())

	_, err = c.DefinitionForUsage(ctx, pathwayUsage(t, "unit", "0ff24589", ""))
	require.ErrorIs(t, err, ErrBlockNotFound)
}

func TestPathwayContext_CourseItems(t *testing.T) {
	ctx := context.Background()
	draft, err := api.Clean(api.Data{Items: []api.Item{
		{ID: "fromcourse", OriginalUsageID: "block-v1:edX+DemoX+2024+type@vertical+block@intro"},
	}})
	require.NoError(t, err)
	store := persistence.NewInMemoryStore()
	now := time.Now()
	require.NoError(t, store.CreatePathway(ctx, &api.Pathway{
		UUID:      testPathwayID,
		Draft:     draft,
		Published: api.EmptyData(),
		CreatedAt: now,
		UpdatedAt: now,
	}))

	r := NewRegistryWithPathways(store, true)
	key := pathwayUsage(t, "vertical", "fromcourse", "")

	def, err := r.DefinitionForUsage(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "vertical/intro.xml", def.OLXPath)

	child, err := r.UsageForChildInclude(ctx, key, Include{BlockType: "html", DefinitionID: "welcome"})
	require.NoError(t, err)
	require.Equal(t, "lx-pb:"+testPathwayID.String()+":html:fromcourse:welcome", child.String())
}

func TestRegistry_UnknownNamespace(t *testing.T) {
	k, err := keys.ParseUsageKey("block-v1:edX+DemoX+2024+type@html+block@intro")
	require.NoError(t, err)

	_, err = NewRegistry().ForKey(k)
	require.ErrorIs(t, err, ErrBlockNotFound)
}
