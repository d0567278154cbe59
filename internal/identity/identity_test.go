package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"filecache-core/internal/identity"
	"filecache-core/internal/storetest"
)

func ptr(s string) *string { return &s }

func TestResolve_ByUUIDTakesPriorityOverByName(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	parent := "parent-uuid"
	id, err := st.Queries.InsertItem(ctx, "item-uuid", &parent, ptr("old-name.txt"), 2, false, "2024-01-01T00:00:00Z")
	require.NoError(t, err)

	res, err := identity.Resolve(ctx, st.Queries, identity.Candidate{UUID: "item-uuid", Parent: &parent, Name: "new-name.txt"})
	require.NoError(t, err)
	require.True(t, res.Found)
	require.True(t, res.MatchedByUUID)
	require.Equal(t, id, res.ExistingID)
	require.False(t, res.HasConflict)
}

func TestResolve_ByNameWhenUUIDUnseen(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	parent := "parent-uuid"
	id, err := st.Queries.InsertItem(ctx, "search-orphan-uuid", &parent, ptr("report.pdf"), 2, false, "2024-01-01T00:00:00Z")
	require.NoError(t, err)

	res, err := identity.Resolve(ctx, st.Queries, identity.Candidate{UUID: "real-uuid-now-known", Parent: &parent, Name: "report.pdf"})
	require.NoError(t, err)
	require.True(t, res.Found)
	require.False(t, res.MatchedByUUID)
	require.Equal(t, id, res.ExistingID)
}

func TestResolve_IgnoresStaleRowsForNameLookup(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	parent := "parent-uuid"
	id, err := st.Queries.InsertItem(ctx, "stale-uuid", &parent, ptr("report.pdf"), 2, false, "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	require.NoError(t, st.Queries.UpdateItem(ctx, id, &parent, ptr("report.pdf"), true, false, nil, "2024-01-01T00:00:00Z"))

	res, err := identity.Resolve(ctx, st.Queries, identity.Candidate{UUID: "fresh-uuid", Parent: &parent, Name: "report.pdf"})
	require.NoError(t, err)
	require.False(t, res.Found)
}

func TestResolve_ReportsConflictWhenMoveCollidesWithLiveRow(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	parent := "parent-uuid"
	movedID, err := st.Queries.InsertItem(ctx, "moved-item", &parent, ptr("old-name.txt"), 2, false, "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	collidingID, err := st.Queries.InsertItem(ctx, "colliding-item", &parent, ptr("new-name.txt"), 2, false, "2024-01-01T00:00:00Z")
	require.NoError(t, err)

	res, err := identity.Resolve(ctx, st.Queries, identity.Candidate{UUID: "moved-item", Parent: &parent, Name: "new-name.txt"})
	require.NoError(t, err)
	require.True(t, res.Found)
	require.True(t, res.MatchedByUUID)
	require.Equal(t, movedID, res.ExistingID)
	require.True(t, res.HasConflict)
	require.Equal(t, collidingID, res.ConflictID)
}
