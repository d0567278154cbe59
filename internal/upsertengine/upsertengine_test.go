package upsertengine_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"filecache-core/internal/cacheerr"
	"filecache-core/internal/decoder"
	"filecache-core/internal/model"
	"filecache-core/internal/store/sqlc"
	"filecache-core/internal/storetest"
	"filecache-core/internal/upsertengine"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func plainMeta(t *testing.T, name string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{"name": name})
	require.NoError(t, err)
	return b
}

func TestUpsertDir_DecodesNameAndWritesItem(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	engine := upsertengine.New(decoder.PlainDecoder{}, fixedClock{t: time.Unix(0, 0)})

	err := st.WithTx(ctx, func(q *sqlc.Queries) error {
		return engine.UpsertDir(ctx, q, upsertengine.RemoteDir{
			UUID: "dir-1", ParentUUID: "root-uuid", RawMetadata: plainMeta(t, "Documents"), KeyVersion: 1,
		})
	})
	require.NoError(t, err)

	item, err := st.Queries.GetItemByUUID(ctx, "dir-1")
	require.NoError(t, err)
	require.NotNil(t, item.Name)
	require.Equal(t, "Documents", *item.Name)
	require.Equal(t, "Documents", item.EffectiveName)
}

func TestUpsertDir_DefersWhenDecoderCannotProcess(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	engine := upsertengine.New(decoder.NewAgeDecoder(), fixedClock{t: time.Unix(0, 0)}) // no identity unlocked

	// Treat the deferral as non-fatal inside the transaction, the way the
	// refresher and ingester do, so the structural writes are committed.
	var upsertErr error
	err := st.WithTx(ctx, func(q *sqlc.Queries) error {
		upsertErr = engine.UpsertDir(ctx, q, upsertengine.RemoteDir{
			UUID: "dir-locked", ParentUUID: "root-uuid", RawMetadata: []byte("ciphertext"), KeyVersion: 1,
		})
		if cacheerr.IsDeferred(upsertErr) {
			return nil
		}
		return upsertErr
	})
	require.NoError(t, err)
	require.ErrorIs(t, upsertErr, cacheerr.ErrDecodeDeferred)

	item, err := st.Queries.GetItemByUUID(ctx, "dir-locked")
	require.NoError(t, err)
	require.Nil(t, item.Name)

	meta, err := st.Queries.GetDirMeta(ctx, item.ID)
	require.NoError(t, err)
	require.EqualValues(t, model.MetadataEncrypted, meta.State)
	require.NotNil(t, meta.RawMetadata)
}

func TestUpsertDir_LocalFavoriteWinsOverRemote(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	engine := upsertengine.New(decoder.PlainDecoder{}, fixedClock{t: time.Unix(0, 0)})

	require.NoError(t, st.WithTx(ctx, func(q *sqlc.Queries) error {
		return engine.UpsertDir(ctx, q, upsertengine.RemoteDir{
			UUID: "dir-1", ParentUUID: "root-uuid", RawMetadata: plainMeta(t, "Documents"), KeyVersion: 1, Favorited: true,
		})
	}))

	dir, err := st.Queries.GetDirByUUID(ctx, "dir-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, dir.FavoriteRank)

	// Remote now reports not-favorited; the locally asserted favorite must
	// still win.
	require.NoError(t, st.WithTx(ctx, func(q *sqlc.Queries) error {
		return engine.UpsertDir(ctx, q, upsertengine.RemoteDir{
			UUID: "dir-1", ParentUUID: "root-uuid", RawMetadata: plainMeta(t, "Documents"), KeyVersion: 1, Favorited: false,
		})
	}))

	dir, err = st.Queries.GetDirByUUID(ctx, "dir-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, dir.FavoriteRank)
}

func TestUpsertDir_PreservesLocalDataAcrossRemoteUpserts(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	engine := upsertengine.New(decoder.PlainDecoder{}, fixedClock{t: time.Unix(0, 0)})

	require.NoError(t, st.WithTx(ctx, func(q *sqlc.Queries) error {
		return engine.UpsertDir(ctx, q, upsertengine.RemoteDir{
			UUID: "dir-1", ParentUUID: "root-uuid", RawMetadata: plainMeta(t, "Documents"), KeyVersion: 1,
		})
	}))

	dir, err := st.Queries.GetDirByUUID(ctx, "dir-1")
	require.NoError(t, err)
	opaque := `{"thumbnail_cached":true}`
	require.NoError(t, st.Queries.UpdateDirLocalData(ctx, dir.ItemID, &opaque))

	require.NoError(t, st.WithTx(ctx, func(q *sqlc.Queries) error {
		return engine.UpsertDir(ctx, q, upsertengine.RemoteDir{
			UUID: "dir-1", ParentUUID: "root-uuid", RawMetadata: plainMeta(t, "Documents (renamed)"), KeyVersion: 1,
		})
	}))

	dir, err = st.Queries.GetDirByUUID(ctx, "dir-1")
	require.NoError(t, err)
	require.NotNil(t, dir.LocalData)
	require.Equal(t, opaque, *dir.LocalData)
}

func TestUpsertDir_RejectsMoveThatWouldCreateACycle(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	engine := upsertengine.New(decoder.PlainDecoder{}, fixedClock{t: time.Unix(0, 0)})

	require.NoError(t, st.WithTx(ctx, func(q *sqlc.Queries) error {
		return engine.UpsertDir(ctx, q, upsertengine.RemoteDir{
			UUID: "parent-dir", ParentUUID: "root-uuid", RawMetadata: plainMeta(t, "Parent"),
		})
	}))
	require.NoError(t, st.WithTx(ctx, func(q *sqlc.Queries) error {
		return engine.UpsertDir(ctx, q, upsertengine.RemoteDir{
			UUID: "child-dir", ParentUUID: "parent-dir", RawMetadata: plainMeta(t, "Child"),
		})
	}))

	// Moving parent-dir underneath its own descendant must be rejected.
	err := st.WithTx(ctx, func(q *sqlc.Queries) error {
		return engine.UpsertDir(ctx, q, upsertengine.RemoteDir{
			UUID: "parent-dir", ParentUUID: "child-dir", RawMetadata: plainMeta(t, "Parent"),
		})
	})
	require.ErrorIs(t, err, cacheerr.ErrCycle)
}

func TestUpsertDir_DecodedRowClearsRawMetadata(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	engine := upsertengine.New(decoder.PlainDecoder{}, fixedClock{t: time.Unix(0, 0)})

	require.NoError(t, st.WithTx(ctx, func(q *sqlc.Queries) error {
		return engine.UpsertDir(ctx, q, upsertengine.RemoteDir{
			UUID: "dir-1", ParentUUID: "root-uuid", RawMetadata: plainMeta(t, "Documents"), KeyVersion: 1,
		})
	}))

	item, err := st.Queries.GetItemByUUID(ctx, "dir-1")
	require.NoError(t, err)
	meta, err := st.Queries.GetDirMeta(ctx, item.ID)
	require.NoError(t, err)
	require.EqualValues(t, model.MetadataDecoded, meta.State)
	require.Nil(t, meta.RawMetadata)
}

func TestUpsertFile_DefersPreservesReportedRawState(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	engine := upsertengine.New(decoder.NewAgeDecoder(), fixedClock{t: time.Unix(0, 0)}) // no identity unlocked

	var upsertErr error
	require.NoError(t, st.WithTx(ctx, func(q *sqlc.Queries) error {
		upsertErr = engine.UpsertFile(ctx, q, upsertengine.RemoteFile{
			UUID: "file-shared", ParentUUID: "root-uuid", RawMetadata: []byte("ciphertext"),
			RawState: model.MetadataRSAEncrypted, KeyVersion: 1, LastModified: time.Unix(0, 0),
		})
		if cacheerr.IsDeferred(upsertErr) {
			return nil
		}
		return upsertErr
	}))
	require.ErrorIs(t, upsertErr, cacheerr.ErrDecodeDeferred)

	file, err := st.Queries.GetFileByUUID(ctx, "file-shared")
	require.NoError(t, err)
	meta, err := st.Queries.GetFileMeta(ctx, file.ItemID)
	require.NoError(t, err)
	require.EqualValues(t, model.MetadataRSAEncrypted, meta.State)
}

func TestUpsertFile_PreservesIsRecentFlagOnSubsequentUpsert(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	engine := upsertengine.New(decoder.PlainDecoder{}, fixedClock{t: time.Unix(0, 0)})

	require.NoError(t, st.WithTx(ctx, func(q *sqlc.Queries) error {
		return engine.UpsertFile(ctx, q, upsertengine.RemoteFile{
			UUID: "file-1", ParentUUID: "root-uuid", RawMetadata: plainMeta(t, "report.pdf"), LastModified: time.Unix(0, 0),
		})
	}))
	require.NoError(t, st.Queries.SetItemRecent(ctx, "file-1", true))

	// A later directory-refresh upsert of the same item (not a recents
	// ingestion) must not clobber the sticky is_recent flag.
	require.NoError(t, st.WithTx(ctx, func(q *sqlc.Queries) error {
		return engine.UpsertFile(ctx, q, upsertengine.RemoteFile{
			UUID: "file-1", ParentUUID: "root-uuid", RawMetadata: plainMeta(t, "report.pdf"), LastModified: time.Unix(100, 0),
		})
	}))

	item, err := st.Queries.GetItemByUUID(ctx, "file-1")
	require.NoError(t, err)
	require.True(t, item.IsRecent, "a refresh-driven upsert must OR is_recent rather than overwrite it")
}

func TestUpsertFile_DecodesSizeAndChecksum(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	engine := upsertengine.New(decoder.PlainDecoder{}, fixedClock{t: time.Unix(0, 0)})

	b, err := json.Marshal(map[string]any{"name": "report.pdf", "size": 4096, "checksum": "deadbeef"})
	require.NoError(t, err)

	require.NoError(t, st.WithTx(ctx, func(q *sqlc.Queries) error {
		return engine.UpsertFile(ctx, q, upsertengine.RemoteFile{
			UUID: "file-1", ParentUUID: "root-uuid", RawMetadata: b, KeyVersion: 1, Size: 10, LastModified: time.Unix(0, 0),
		})
	}))

	file, err := st.Queries.GetFileByUUID(ctx, "file-1")
	require.NoError(t, err)
	require.EqualValues(t, 4096, file.Size)
	require.NotNil(t, file.Checksum)
	require.Equal(t, "deadbeef", *file.Checksum)
}

func TestUpsertFile_StoresChunksRegionAndBucketStructurally(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	engine := upsertengine.New(decoder.PlainDecoder{}, fixedClock{t: time.Unix(0, 0)})

	region, bucket := "eu-central-1", "filen-1"
	require.NoError(t, st.WithTx(ctx, func(q *sqlc.Queries) error {
		return engine.UpsertFile(ctx, q, upsertengine.RemoteFile{
			UUID: "file-1", ParentUUID: "root-uuid", RawMetadata: plainMeta(t, "report.pdf"),
			Size: 4096, Chunks: 3, Region: &region, Bucket: &bucket, LastModified: time.Unix(0, 0),
		})
	}))

	file, err := st.Queries.GetFileByUUID(ctx, "file-1")
	require.NoError(t, err)
	require.EqualValues(t, 3, file.Chunks)
	require.NotNil(t, file.Region)
	require.Equal(t, region, *file.Region)
	require.NotNil(t, file.Bucket)
	require.Equal(t, bucket, *file.Bucket)
}

func TestUpsertFile_DecodesFileKeyAndVersion(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	engine := upsertengine.New(decoder.PlainDecoder{}, fixedClock{t: time.Unix(0, 0)})

	b, err := json.Marshal(map[string]any{"name": "report.pdf", "file_key": []byte("a-32-byte-file-content-key-here"), "file_key_version": 2})
	require.NoError(t, err)

	require.NoError(t, st.WithTx(ctx, func(q *sqlc.Queries) error {
		return engine.UpsertFile(ctx, q, upsertengine.RemoteFile{
			UUID: "file-1", ParentUUID: "root-uuid", RawMetadata: b, KeyVersion: 1, LastModified: time.Unix(0, 0),
		})
	}))

	file, err := st.Queries.GetFileByUUID(ctx, "file-1")
	require.NoError(t, err)
	meta, err := st.Queries.GetFileMeta(ctx, file.ItemID)
	require.NoError(t, err)
	require.Equal(t, []byte("a-32-byte-file-content-key-here"), meta.DecodedFileKey)
	require.NotNil(t, meta.DecodedFileKeyVersion)
	require.EqualValues(t, 2, *meta.DecodedFileKeyVersion)
}
