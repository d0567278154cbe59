package refresher_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"filecache-core/internal/decoder"
	"filecache-core/internal/refresher"
	"filecache-core/internal/remote"
	"filecache-core/internal/store/sqlc"
	"filecache-core/internal/storetest"
	"filecache-core/internal/upsertengine"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func meta(t *testing.T, name string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{"name": name})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestRefresh_UpsertsListedChildrenAndSweepsMissingOnes(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	engine := upsertengine.New(decoder.PlainDecoder{}, fixedClock{t: time.Unix(0, 0)})

	fake := remote.NewMemoryRemote()
	fake.SetChildren("dir-1", []remote.Child{
		{UUID: "child-a", ParentUUID: "dir-1", Kind: remote.ChildFile, RawMetadata: meta(t, "a.txt")},
	})

	_, err := st.Queries.InsertItem(ctx, "stale-child", ptrStr("dir-1"), ptrStr("old.txt"), 2, false, "2024-01-01T00:00:00Z")
	require.NoError(t, err)

	r := refresher.New(st, fake, engine)
	result, err := r.Refresh(ctx, "dir-1")
	require.NoError(t, err)
	require.Equal(t, 1, result.Upserted)
	require.EqualValues(t, 1, result.Swept)

	_, err = st.Queries.GetItemByUUID(ctx, "stale-child")
	require.Error(t, err, "swept child should no longer exist")

	item, err := st.Queries.GetItemByUUID(ctx, "child-a")
	require.NoError(t, err)
	require.False(t, item.IsStale)
}

func TestRefresh_SetsLastListedOnRootsDirRow(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	engine := upsertengine.New(decoder.PlainDecoder{}, fixedClock{t: time.Unix(0, 0)})

	require.NoError(t, st.WithTx(ctx, func(q *sqlc.Queries) error {
		return engine.UpsertRoot(ctx, q, upsertengine.RemoteRoot{UUID: "root-uuid"})
	}))

	fake := remote.NewMemoryRemote()
	fake.SetChildren("root-uuid", []remote.Child{
		{UUID: "child-a", ParentUUID: "root-uuid", Kind: remote.ChildFile, RawMetadata: meta(t, "a.txt")},
	})

	r := refresher.New(st, fake, engine)
	_, err := r.Refresh(ctx, "root-uuid")
	require.NoError(t, err)

	dir, err := st.Queries.GetDirByUUID(ctx, "root-uuid")
	require.NoError(t, err, "root must have a dirs-table counterpart row to track last_listed on")
	require.NotNil(t, dir.LastListed)
}

func TestRefresh_CollapsesConcurrentCallsForSameDirectory(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	engine := upsertengine.New(decoder.PlainDecoder{}, fixedClock{t: time.Unix(0, 0)})

	var calls atomic.Int32
	release := make(chan struct{})
	fake := &gatedRemote{MemoryRemote: remote.NewMemoryRemote(), calls: &calls, release: release}
	fake.SetChildren("dir-1", []remote.Child{
		{UUID: "child-a", ParentUUID: "dir-1", Kind: remote.ChildFile, RawMetadata: meta(t, "a.txt")},
	})

	r := refresher.New(st, fake, engine)

	var ready sync.WaitGroup
	var wg sync.WaitGroup
	const n = 8
	ready.Add(n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ready.Done()
			_, err := r.Refresh(ctx, "dir-1")
			require.NoError(t, err)
		}()
	}

	ready.Wait()                     // every goroutine has at least started
	time.Sleep(20 * time.Millisecond) // give them time to join the in-flight call
	close(release)                   // let the single real ListDir call proceed
	wg.Wait()

	require.EqualValues(t, 1, calls.Load(), "singleflight should collapse all concurrent refreshes into one remote call")
}

func ptrStr(s string) *string { return &s }

// gatedRemote wraps MemoryRemote to count ListDir calls and block until the
// test signals every concurrent Refresh call has had a chance to join the
// in-flight singleflight call.
type gatedRemote struct {
	*remote.MemoryRemote
	calls   *atomic.Int32
	release chan struct{}
}

func (g *gatedRemote) ListDir(ctx context.Context, dirUUID string) ([]remote.Child, error) {
	g.calls.Add(1)
	<-g.release
	return g.MemoryRemote.ListDir(ctx, dirUUID)
}
