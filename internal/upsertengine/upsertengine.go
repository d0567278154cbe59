// Package upsertengine implements the four upsert entry points that write a
// remote-observed item into the store: UpsertRoot, UpsertDir, UpsertFile,
// and UpsertItemOnly. Each composes the Identity Resolver's lookup with the
// store's hand-written query layer inside a single transaction, following
// the transactional shape of bt-go/internal/database/sqlite.go's
// CreateDirectory (child-consolidation in one transaction) and
// CreateFileSnapshotAndContent (find-or-create, compare, insert).
package upsertengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"filecache-core/internal/cacheerr"
	"filecache-core/internal/decoder"
	"filecache-core/internal/identity"
	"filecache-core/internal/model"
	"filecache-core/internal/store/sqlc"
)

// Clock abstracts "now" so merge timestamps are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// Engine applies remote-observed items to the store.
type Engine struct {
	decoder decoder.MetadataDecoder
	clock   Clock
}

// New creates an Engine using dec to decode metadata blobs and clock for
// timestamps.
func New(dec decoder.MetadataDecoder, clock Clock) *Engine {
	return &Engine{decoder: dec, clock: clock}
}

// RemoteRoot is the input to UpsertRoot.
type RemoteRoot struct {
	UUID        string
	StorageUsed int64
	StorageMax  int64
}

// RemoteDir is the input to UpsertDir.
type RemoteDir struct {
	UUID        string
	ParentUUID  string
	RawMetadata []byte
	// RawState is the raw encoding the remote reported for RawMetadata
	// (decrypted-raw/encrypted/rsa-encrypted) when the decoder cannot
	// process it; the zero value defaults to encrypted. Ignored once the
	// decoder succeeds, since a successful decode always commits
	// model.MetadataDecoded.
	RawState    model.MetadataState
	KeyVersion  int
	Favorited   bool
}

// RemoteFile is the input to UpsertFile.
type RemoteFile struct {
	UUID         string
	ParentUUID   string
	RawMetadata  []byte
	RawState     model.MetadataState
	KeyVersion   int
	Size         int64
	Chunks       int64
	Region       *string
	Bucket       *string
	LastModified time.Time
	Favorited    bool
}

// nowStr formats t the way every timestamp column in the store is stored:
// RFC3339 in UTC, sortable as text.
func nowStr(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// unixPtr converts a decoded unix-seconds timestamp to the stored text
// format, or nil if the decoder didn't report one.
func unixPtr(sec *int64) *string {
	if sec == nil {
		return nil
	}
	s := nowStr(time.Unix(*sec, 0))
	return &s
}

// int64Ptr widens a decoded int to int64 for the store's column type, or nil
// if the decoder didn't report one.
func int64Ptr(v *int) *int64 {
	if v == nil {
		return nil
	}
	w := int64(*v)
	return &w
}

// UpsertItemOnly resolves and writes only the items row for uuid/parent/name
// without touching any typed table, for items whose identity and placement
// are known but not their typed attributes. parentPath, when non-nil, is
// stored as the item's parent_path.
func (e *Engine) UpsertItemOnly(ctx context.Context, q *sqlc.Queries, uuid string, parent *string, name *string, typ int64, parentPath *string) (int64, error) {
	effectiveName := uuid
	if name != nil {
		effectiveName = *name
	}
	res, err := identity.Resolve(ctx, q, identity.Candidate{UUID: uuid, Parent: parent, Name: effectiveName})
	if err != nil {
		return 0, err
	}

	now := nowStr(e.clock.Now())

	if res.HasConflict {
		if err := identity.DeleteConflicting(ctx, dbtxAdapter{q}, res.ConflictID); err != nil {
			return 0, err
		}
	}

	if res.Found {
		if err := q.UpdateItem(ctx, res.ExistingID, parent, name, false, res.ExistingIsRecent, parentPath, now); err != nil {
			return 0, cacheerr.StoreIO("updating item", err)
		}
		return res.ExistingID, nil
	}

	id, err := q.InsertItem(ctx, uuid, parent, name, typ, false, now)
	if err != nil {
		return 0, cacheerr.StoreIO("inserting item", err)
	}
	if parentPath != nil {
		if err := q.SetItemParentPath(ctx, id, parentPath); err != nil {
			return 0, cacheerr.StoreIO("setting parent path", err)
		}
	}
	return id, nil
}

// UpsertRoot upserts the single synthetic root item, its root row, and its
// dirs-table counterpart row, which exists solely so last_listed can be
// tracked on root the same way it is for any other directory. Grounded on
// the original implementation's DBRoot::upsert_from_remote, which performs
// the equivalent generic dir upsert right after the root row
// (original_source/.../src/sql/dir.rs).
func (e *Engine) UpsertRoot(ctx context.Context, q *sqlc.Queries, r RemoteRoot) error {
	itemID, err := e.upsertItemFor(ctx, q, r.UUID, nil, nil, 0 /* ItemTypeRoot */)
	if err != nil {
		return err
	}
	now := nowStr(e.clock.Now())
	if err := q.UpsertRoot(ctx, itemID, r.UUID, r.StorageUsed, r.StorageMax, &now); err != nil {
		return cacheerr.StoreIO("upserting root", err)
	}
	if err := q.UpsertDir(ctx, itemID, r.UUID, 0, nil, nil, nil, false); err != nil {
		return cacheerr.StoreIO("upserting root dir row", err)
	}
	return nil
}

// UpsertDir resolves identity, upserts the items row, merges favorite_rank
// and preserves local_data, then attempts to decode raw metadata. If the
// decoder defers, the meta row is written with the reported raw state
// (encrypted when unset) and the call returns cacheerr.ErrDecodeDeferred.
// The writes belong to the caller's transaction: they are kept only if the
// caller treats the deferral as non-fatal and commits, as the refresher,
// ingester and cache facade do.
func (e *Engine) UpsertDir(ctx context.Context, q *sqlc.Queries, r RemoteDir) error {
	// Identity resolution needs a name to match on; until metadata is
	// decoded the name is unknown, so resolve by UUID-or-(parent,uuid) using
	// the uuid itself as a placeholder name, matching how the original
	// implementation seeds a root/dir row before any metadata is readable.
	existing, existed, err := e.lookupDir(ctx, q, r.UUID)
	if err != nil {
		return err
	}

	decoded, ok, decErr := e.decoder.Decode(ctx, r.RawMetadata, r.KeyVersion)
	if decErr != nil {
		return fmt.Errorf("decoding dir metadata for %s: %w", r.UUID, decErr)
	}

	var name *string
	if ok {
		n := decoded.Name
		name = &n
	}

	if existed {
		if err := rejectCycle(ctx, q, r.UUID, r.ParentUUID); err != nil {
			return err
		}
	}

	itemID, err := e.upsertItemFor(ctx, q, r.UUID, &r.ParentUUID, name, 1 /* ItemTypeDir */)
	if err != nil {
		return err
	}

	favoriteRank := mergeFavoriteRank(existing.favoriteRank, r.Favorited, existed)

	if err := q.UpsertDir(ctx, itemID, r.UUID, favoriteRank, decoded.Color, nil, nil, false); err != nil {
		return cacheerr.StoreIO("upserting dir", err)
	}

	if ok {
		if err := q.UpsertDirMeta(ctx, sqlc.DirMetaRow{
			ItemID: itemID, State: int64(model.MetadataDecoded), RawMetadata: nil,
			KeyVersion: int64(r.KeyVersion), DecodedName: &decoded.Name, DecodedColor: decoded.Color,
			DecodedCreated: unixPtr(decoded.Created),
		}); err != nil {
			return cacheerr.StoreIO("upserting dir meta", err)
		}
		return nil
	}

	if err := q.UpsertDirMeta(ctx, sqlc.DirMetaRow{
		ItemID: itemID, State: int64(effectiveRawState(r.RawState)), RawMetadata: r.RawMetadata, KeyVersion: int64(r.KeyVersion),
	}); err != nil {
		return cacheerr.StoreIO("upserting dir meta", err)
	}
	return cacheerr.ErrDecodeDeferred
}

// UpsertFile mirrors UpsertDir for files.
func (e *Engine) UpsertFile(ctx context.Context, q *sqlc.Queries, r RemoteFile) error {
	existing, existed, err := e.lookupFile(ctx, q, r.UUID)
	if err != nil {
		return err
	}

	decoded, ok, decErr := e.decoder.Decode(ctx, r.RawMetadata, r.KeyVersion)
	if decErr != nil {
		return fmt.Errorf("decoding file metadata for %s: %w", r.UUID, decErr)
	}

	var name *string
	if ok {
		n := decoded.Name
		name = &n
	}

	itemID, err := e.upsertItemFor(ctx, q, r.UUID, &r.ParentUUID, name, 2 /* ItemTypeFile */)
	if err != nil {
		return err
	}

	favoriteRank := mergeFavoriteRank(existing.favoriteRank, r.Favorited, existed)

	checksum := decoded.Checksum
	size := r.Size
	if ok && decoded.Size != nil {
		size = *decoded.Size
	}

	if err := q.UpsertFile(ctx, itemID, r.UUID, size, r.Chunks, checksum, nowStr(r.LastModified), favoriteRank, r.Region, r.Bucket, nil, false); err != nil {
		return cacheerr.StoreIO("upserting file", err)
	}

	if ok {
		if err := q.UpsertFileMeta(ctx, sqlc.FileMetaRow{
			ItemID: itemID, State: int64(model.MetadataDecoded), RawMetadata: nil, KeyVersion: int64(r.KeyVersion),
			DecodedName: &decoded.Name, DecodedSize: decoded.Size, DecodedChecksum: decoded.Checksum,
			DecodedModified: unixPtr(decoded.Modified), DecodedMime: decoded.Mime, DecodedCreated: unixPtr(decoded.Created),
			DecodedFileKey: decoded.FileKey, DecodedFileKeyVersion: int64Ptr(decoded.FileKeyVersion),
		}); err != nil {
			return cacheerr.StoreIO("upserting file meta", err)
		}
		return nil
	}

	if err := q.UpsertFileMeta(ctx, sqlc.FileMetaRow{
		ItemID: itemID, State: int64(effectiveRawState(r.RawState)), RawMetadata: r.RawMetadata, KeyVersion: int64(r.KeyVersion),
	}); err != nil {
		return cacheerr.StoreIO("upserting file meta", err)
	}
	return cacheerr.ErrDecodeDeferred
}

// effectiveRawState coerces the raw encoding a caller reported for an
// undecoded blob: the zero value (unset, or a caller mistakenly reporting
// Decoded alongside present ciphertext) defaults to the generic encrypted
// state rather than violating invariant 3.
func effectiveRawState(s model.MetadataState) model.MetadataState {
	if s == model.MetadataDecoded {
		return model.MetadataEncrypted
	}
	return s
}

// mergeFavoriteRank implements the cache's merge rule: a local, user-asserted
// favorite (existing != 0) always wins over what the remote reports;
// otherwise the remote's favorited flag determines the rank (1 if favorited,
// 0 otherwise). This matches the "local wins for asserted favorites" rule.
func mergeFavoriteRank(existingRank int64, remoteFavorited bool, existed bool) int64 {
	if existed && existingRank != 0 {
		return existingRank
	}
	if remoteFavorited {
		return 1
	}
	return 0
}

// maxAncestorWalk bounds rejectCycle's ancestor walk, mirroring
// pathresolve's own depth bound; a legitimate tree never nests this deep.
const maxAncestorWalk = 1000

// rejectCycle walks newParent's ancestor chain looking for uuid, returning
// cacheerr.ErrCycle if found. Only directories can have descendants, so
// this only needs to run for UpsertDir's existing-directory moves: a file
// can never be an ancestor of anything.
func rejectCycle(ctx context.Context, q *sqlc.Queries, uuid, newParent string) error {
	current := newParent
	for depth := 0; depth < maxAncestorWalk; depth++ {
		if current == uuid {
			return cacheerr.Cycle(uuid)
		}
		item, err := q.GetItemByUUID(ctx, current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return cacheerr.StoreIO("walking ancestor chain", err)
		}
		if item.Parent == nil {
			return nil
		}
		current = *item.Parent
	}
	return cacheerr.Cycle(uuid)
}

type existingDir struct{ favoriteRank int64 }
type existingFile struct{ favoriteRank int64 }

func (e *Engine) lookupDir(ctx context.Context, q *sqlc.Queries, uuid string) (existingDir, bool, error) {
	row, err := q.GetDirByUUID(ctx, uuid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return existingDir{}, false, nil
		}
		return existingDir{}, false, cacheerr.StoreIO("looking up existing dir", err)
	}
	return existingDir{favoriteRank: row.FavoriteRank}, true, nil
}

func (e *Engine) lookupFile(ctx context.Context, q *sqlc.Queries, uuid string) (existingFile, bool, error) {
	row, err := q.GetFileByUUID(ctx, uuid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return existingFile{}, false, nil
		}
		return existingFile{}, false, cacheerr.StoreIO("looking up existing file", err)
	}
	return existingFile{favoriteRank: row.FavoriteRank}, true, nil
}

// upsertItemFor runs identity resolution and writes/updates the items row,
// clearing is_stale and any parent_path orphan marker now that the item has
// a real listing backing it.
func (e *Engine) upsertItemFor(ctx context.Context, q *sqlc.Queries, uuid string, parent *string, name *string, typ int64) (int64, error) {
	effectiveName := uuid
	if name != nil {
		effectiveName = *name
	}

	res, err := identity.Resolve(ctx, q, identity.Candidate{UUID: uuid, Parent: parent, Name: effectiveName})
	if err != nil {
		return 0, err
	}

	now := nowStr(e.clock.Now())

	if res.HasConflict {
		if err := identity.DeleteConflicting(ctx, dbtxAdapter{q}, res.ConflictID); err != nil {
			return 0, err
		}
	}

	if res.Found {
		if err := q.UpdateItem(ctx, res.ExistingID, parent, name, false, res.ExistingIsRecent, nil, now); err != nil {
			return 0, cacheerr.StoreIO("updating item", err)
		}
		if name != nil {
			if err := q.SetItemName(ctx, res.ExistingID, name); err != nil {
				return 0, cacheerr.StoreIO("setting item name", err)
			}
		}
		return res.ExistingID, nil
	}

	id, err := q.InsertItem(ctx, uuid, parent, name, typ, false, now)
	if err != nil {
		return 0, cacheerr.StoreIO("inserting item", err)
	}
	return id, nil
}

// dbtxAdapter adapts *sqlc.Queries to identity.DBTX by routing through its
// ExecContext-equivalent raw delete, since Queries doesn't expose its
// underlying DBTX directly.
type dbtxAdapter struct{ q *sqlc.Queries }

func (a dbtxAdapter) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return a.q.ExecRaw(ctx, query, args...)
}
