package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/pathways/pkg/api"
)

// Behavioural tests shared by every PathwayStore and EventStore backend.
// Callers must hand in empty stores.

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newStoredPathway(t *testing.T, owner api.Owner, createdOffset time.Duration) *api.Pathway {
	t.Helper()

	draft, err := api.Clean(api.Data{
		Title:       "A Test Pathway",
		Description: "with unicode: ✓",
		Items: []api.Item{
			{ID: "0ff24589", OriginalUsageID: "lb:TestOrg:lib1:problem:p1", Data: map[string]any{"notes": "first"}},
			{OriginalUsageID: "lb:TestOrg:lib1:html:h1"},
		},
		Extra: map[string]any{"nested": map[string]any{"n": 1.5, "list": []any{"a", true}}},
	})
	require.NoError(t, err)

	at := testEpoch.Add(createdOffset)
	return &api.Pathway{
		UUID:      uuid.New(),
		Owner:     owner,
		Draft:     draft,
		Published: api.EmptyData(),
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func requireSamePathway(t *testing.T, want, got *api.Pathway) {
	t.Helper()

	require.Equal(t, want.UUID, got.UUID)
	require.Equal(t, want.Owner, got.Owner)
	require.Equal(t, want.Draft, got.Draft)
	require.Equal(t, want.Published, got.Published)
	require.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at: want %v, got %v", want.CreatedAt, got.CreatedAt)
	require.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updated_at: want %v, got %v", want.UpdatedAt, got.UpdatedAt)
}

func runPathwayStoreContract(t *testing.T, store PathwayStore) {
	ctx := context.Background()

	t.Run("CreateGetUpdateDelete", func(t *testing.T) {
		p := newStoredPathway(t, api.OwnerUser(7), 0)
		require.NoError(t, store.CreatePathway(ctx, p))

		got, err := store.GetPathway(ctx, p.UUID)
		require.NoError(t, err)
		requireSamePathway(t, p, got)

		got.Published = got.Draft.Clone()
		got.Owner = api.OwnerGroup("authors")
		got.UpdatedAt = got.UpdatedAt.Add(time.Minute)
		require.NoError(t, store.UpdatePathway(ctx, got))

		again, err := store.GetPathway(ctx, p.UUID)
		require.NoError(t, err)
		requireSamePathway(t, got, again)

		require.NoError(t, store.DeletePathway(ctx, p.UUID))
		_, err = store.GetPathway(ctx, p.UUID)
		require.True(t, errors.Is(err, ErrPathwayNotFound), "expected ErrPathwayNotFound, got %v", err)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		p := newStoredPathway(t, api.OwnerUser(1), time.Second)
		require.NoError(t, store.CreatePathway(ctx, p))

		err := store.CreatePathway(ctx, p)
		require.True(t, errors.Is(err, ErrPathwayExists), "expected ErrPathwayExists, got %v", err)

		require.NoError(t, store.DeletePathway(ctx, p.UUID))
	})

	t.Run("MissingPathway", func(t *testing.T) {
		missing := newStoredPathway(t, api.OwnerUser(1), 0)

		_, err := store.GetPathway(ctx, missing.UUID)
		require.True(t, errors.Is(err, ErrPathwayNotFound), "get: %v", err)
		err = store.UpdatePathway(ctx, missing)
		require.True(t, errors.Is(err, ErrPathwayNotFound), "update: %v", err)
		err = store.DeletePathway(ctx, missing.UUID)
		require.True(t, errors.Is(err, ErrPathwayNotFound), "delete: %v", err)
	})

	t.Run("ReturnedValuesAreCopies", func(t *testing.T) {
		p := newStoredPathway(t, api.OwnerUser(3), 0)
		require.NoError(t, store.CreatePathway(ctx, p))
		p.Draft.Title = "changed after create"

		got, err := store.GetPathway(ctx, p.UUID)
		require.NoError(t, err)
		require.Equal(t, "A Test Pathway", got.Draft.Title)

		got.Draft.Items[0].Data["notes"] = "changed after get"
		again, err := store.GetPathway(ctx, p.UUID)
		require.NoError(t, err)
		require.Equal(t, "first", again.Draft.Items[0].Data["notes"])

		require.NoError(t, store.DeletePathway(ctx, p.UUID))
	})

	t.Run("ListFiltersAndOrders", func(t *testing.T) {
		third := newStoredPathway(t, api.OwnerUser(10), 3*time.Second)
		first := newStoredPathway(t, api.OwnerUser(10), 1*time.Second)
		group := newStoredPathway(t, api.OwnerGroup("staff-team"), 2*time.Second)
		other := newStoredPathway(t, api.OwnerUser(11), 4*time.Second)
		for _, p := range []*api.Pathway{third, first, group, other} {
			require.NoError(t, store.CreatePathway(ctx, p))
		}

		all, err := store.ListPathways(ctx, PathwayFilter{})
		require.NoError(t, err)
		require.Equal(t, []uuid.UUID{first.UUID, group.UUID, third.UUID, other.UUID}, uuids(all))

		uid := int64(10)
		byUser, err := store.ListPathways(ctx, PathwayFilter{OwnerUserID: &uid})
		require.NoError(t, err)
		require.Equal(t, []uuid.UUID{first.UUID, third.UUID}, uuids(byUser))

		byGroup, err := store.ListPathways(ctx, PathwayFilter{OwnerGroupName: "staff-team"})
		require.NoError(t, err)
		require.Equal(t, []uuid.UUID{group.UUID}, uuids(byGroup))

		// Moving a pathway to another owner moves it between filters.
		first.Owner = api.OwnerGroup("staff-team")
		require.NoError(t, store.UpdatePathway(ctx, first))

		byUser, err = store.ListPathways(ctx, PathwayFilter{OwnerUserID: &uid})
		require.NoError(t, err)
		require.Equal(t, []uuid.UUID{third.UUID}, uuids(byUser))

		byGroup, err = store.ListPathways(ctx, PathwayFilter{OwnerGroupName: "staff-team"})
		require.NoError(t, err)
		require.Equal(t, []uuid.UUID{first.UUID, group.UUID}, uuids(byGroup))

		none, err := store.ListPathways(ctx, PathwayFilter{OwnerGroupName: "nobody"})
		require.NoError(t, err)
		require.Empty(t, none)

		for _, p := range []*api.Pathway{third, first, group, other} {
			require.NoError(t, store.DeletePathway(ctx, p.UUID))
		}
	})
}

func runEventStoreContract(t *testing.T, store EventStore) {
	ctx := context.Background()
	a := uuid.New()
	b := uuid.New()

	evs := []api.PathwayEvent{
		{PathwayUUID: a, At: testEpoch, Type: api.EventPathwayCreated, Actor: "alice"},
		{PathwayUUID: b, At: testEpoch, Type: api.EventPathwayCreated, Actor: "bob"},
		{PathwayUUID: a, At: testEpoch.Add(time.Second), Type: api.EventPathwayOwnerChanged, Actor: "alice", Detail: "group:authors"},
		{PathwayUUID: a, Type: api.EventPathwayPublished, Actor: "alice"},
	}
	for _, ev := range evs {
		require.NoError(t, store.AppendEvent(ctx, ev))
	}

	got, err := store.ListEvents(ctx, a)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, api.EventPathwayCreated, got[0].Type)
	require.Equal(t, api.EventPathwayOwnerChanged, got[1].Type)
	require.Equal(t, "group:authors", got[1].Detail)
	require.Equal(t, api.EventPathwayPublished, got[2].Type)
	require.False(t, got[2].At.IsZero(), "missing timestamps are filled in")
	for _, ev := range got {
		require.Equal(t, a, ev.PathwayUUID)
		require.Equal(t, "alice", ev.Actor)
	}

	none, err := store.ListEvents(ctx, uuid.New())
	require.NoError(t, err)
	require.Empty(t, none)
}

func uuids(ps []*api.Pathway) []uuid.UUID {
	out := make([]uuid.UUID, len(ps))
	for i, p := range ps {
		out[i] = p.UUID
	}
	return out
}
