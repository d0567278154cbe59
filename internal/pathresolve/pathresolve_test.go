package pathresolve_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"filecache-core/internal/cacheerr"
	"filecache-core/internal/pathresolve"
	"filecache-core/internal/store"
	"filecache-core/internal/storetest"
)

func ptr(s string) *string { return &s }

func insertChain(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	_, err := st.Queries.InsertItem(ctx, "root-uuid", nil, nil, 0, false, "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	_, err = st.Queries.InsertItem(ctx, "docs-uuid", ptr("root-uuid"), ptr("Documents"), 1, false, "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	_, err = st.Queries.InsertItem(ctx, "report-uuid", ptr("docs-uuid"), ptr("report.pdf"), 2, false, "2024-01-01T00:00:00Z")
	require.NoError(t, err)
}

func TestResolve_BuildsPathFromRootToLeaf(t *testing.T) {
	st := storetest.New(t)
	insertChain(t, st)

	r, err := pathresolve.New(st, 16)
	require.NoError(t, err)
	path, err := r.Resolve(context.Background(), "report-uuid")
	require.NoError(t, err)
	require.Equal(t, "/Documents/report.pdf", path)
}

func TestResolve_RootItemResolvesToSlash(t *testing.T) {
	st := storetest.New(t)
	insertChain(t, st)

	r, err := pathresolve.New(st, 16)
	require.NoError(t, err)
	path, err := r.Resolve(context.Background(), "root-uuid")
	require.NoError(t, err)
	require.Equal(t, "/", path)
}

func TestResolve_DetectsCycles(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	idA, err := st.Queries.InsertItem(ctx, "a-uuid", ptr("b-uuid"), ptr("a"), 1, false, "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	_, err = st.Queries.InsertItem(ctx, "b-uuid", ptr("a-uuid"), ptr("b"), 1, false, "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	_ = idA

	r, err := pathresolve.New(st, 16)
	require.NoError(t, err)
	_, err = r.Resolve(ctx, "a-uuid")
	require.Error(t, err)
}

func TestResolve_FallsBackToParentPathWhenAncestorMissing(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	id, err := st.Queries.InsertItem(ctx, "orphan-file", ptr("missing-parent"), ptr("orphan.pdf"), 2, false, "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	require.NoError(t, st.Queries.SetItemParentPath(ctx, id, ptr("/somewhere/far")))

	r, err := pathresolve.New(st, 16)
	require.NoError(t, err)
	path, err := r.Resolve(ctx, "orphan-file")
	require.NoError(t, err)
	require.Equal(t, "/somewhere/far/orphan.pdf", path)
}

func TestResolve_FailsWithPathUnresolvableWhenAncestorMissingAndNoParentPath(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	_, err := st.Queries.InsertItem(ctx, "stranded-file", ptr("missing-parent"), ptr("stranded.pdf"), 2, false, "2024-01-01T00:00:00Z")
	require.NoError(t, err)

	r, err := pathresolve.New(st, 16)
	require.NoError(t, err)
	_, err = r.Resolve(ctx, "stranded-file")
	require.ErrorIs(t, err, cacheerr.ErrPathUnresolvable)
}

func TestResolve_UsesCacheOnSecondLookup(t *testing.T) {
	st := storetest.New(t)
	insertChain(t, st)

	r, err := pathresolve.New(st, 16)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "report-uuid")
	require.NoError(t, err)

	// Rename the leaf directly in the store without going through upsert
	// engine or invalidating the cache; a cached lookup must not observe it.
	item, err := st.Queries.GetItemByUUID(ctx, "report-uuid")
	require.NoError(t, err)
	require.NoError(t, st.Queries.SetItemName(ctx, item.ID, ptr("renamed.pdf")))

	second, err := r.Resolve(ctx, "report-uuid")
	require.NoError(t, err)
	require.Equal(t, first, second)

	r.Invalidate("report-uuid")
	third, err := r.Resolve(ctx, "report-uuid")
	require.NoError(t, err)
	require.Equal(t, "/Documents/renamed.pdf", third)
}
