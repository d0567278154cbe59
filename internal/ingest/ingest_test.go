package ingest_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"filecache-core/internal/decoder"
	"filecache-core/internal/ingest"
	"filecache-core/internal/remote"
	"filecache-core/internal/storetest"
	"filecache-core/internal/upsertengine"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func meta(t *testing.T, name string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{"name": name})
	require.NoError(t, err)
	return b
}

func TestIngest_SeedsOrphanParentPathWhenParentUnmaterialized(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	engine := upsertengine.New(decoder.PlainDecoder{}, fixedClock{t: time.Unix(0, 0)})
	ig := ingest.New(st, engine)

	matches := []remote.SearchMatch{
		{
			Child: remote.Child{UUID: "deep-file", ParentUUID: "unseen-parent", Kind: remote.ChildFile, RawMetadata: meta(t, "deep.txt")},
			Path:  "/projects/2024/deep.txt",
		},
	}

	result, err := ig.Ingest(ctx, matches, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Ingested)

	item, err := st.Queries.GetItemByUUID(ctx, "deep-file")
	require.NoError(t, err)
	require.NotNil(t, item.ParentPath)
	require.Equal(t, "/projects/2024", *item.ParentPath)
}

func TestIngest_RecentsReplacesPreviousFlagSet(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	engine := upsertengine.New(decoder.PlainDecoder{}, fixedClock{t: time.Unix(0, 0)})
	ig := ingest.New(st, engine)

	first := []remote.SearchMatch{
		{Child: remote.Child{UUID: "old-recent", ParentUUID: "root", Kind: remote.ChildFile, RawMetadata: meta(t, "old.txt")}, Path: "/old.txt"},
	}
	_, err := ig.Ingest(ctx, first, true)
	require.NoError(t, err)

	item, err := st.Queries.GetItemByUUID(ctx, "old-recent")
	require.NoError(t, err)
	require.True(t, item.IsRecent)

	second := []remote.SearchMatch{
		{Child: remote.Child{UUID: "new-recent", ParentUUID: "root", Kind: remote.ChildFile, RawMetadata: meta(t, "new.txt")}, Path: "/new.txt"},
	}
	_, err = ig.Ingest(ctx, second, true)
	require.NoError(t, err)

	item, err = st.Queries.GetItemByUUID(ctx, "old-recent")
	require.NoError(t, err)
	require.False(t, item.IsRecent, "a fresh recents listing should clear items no longer reported")

	item, err = st.Queries.GetItemByUUID(ctx, "new-recent")
	require.NoError(t, err)
	require.True(t, item.IsRecent)
}

func TestClearSearch_RemovesUnreferencedOrphans(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	engine := upsertengine.New(decoder.PlainDecoder{}, fixedClock{t: time.Unix(0, 0)})
	ig := ingest.New(st, engine)

	matches := []remote.SearchMatch{
		{Child: remote.Child{UUID: "orphan-file", ParentUUID: "never-seen", Kind: remote.ChildFile, RawMetadata: meta(t, "x.txt")}, Path: "/a/x.txt"},
	}
	_, err := ig.Ingest(ctx, matches, false)
	require.NoError(t, err)

	require.NoError(t, ig.ClearSearch(ctx))

	_, err = st.Queries.GetItemByUUID(ctx, "orphan-file")
	require.Error(t, err, "orphaned search item with no children and no longer-referenced parent should be cleared")
}
