package sqlc

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, the same abstraction sqlc
// generates so the same query methods work inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries wraps a DBTX with the cache's parameterized statements.
type Queries struct {
	db DBTX
}

// New builds a Queries over the given DBTX.
func New(db DBTX) *Queries { return &Queries{db: db} }

// WithTx returns a Queries bound to tx instead of q's original DBTX, so a
// caller can compose several statements into one transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries { return &Queries{db: tx} }

// ExecRaw exposes the underlying DBTX's ExecContext for the rare caller
// (identity conflict resolution) that needs a one-off statement not worth
// its own named method.
func (q *Queries) ExecRaw(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, query, args...)
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// --- items ---

const selectItemColumns = `id, uuid, parent, name, effective_name, type, is_stale, is_recent, parent_path, updated_at`

func scanItem(row *sql.Row) (ItemRow, error) {
	var r ItemRow
	var isStale, isRecent int64
	if err := row.Scan(&r.ID, &r.UUID, &r.Parent, &r.Name, &r.EffectiveName, &r.Type, &isStale, &isRecent, &r.ParentPath, &r.UpdatedAt); err != nil {
		return ItemRow{}, err
	}
	r.IsStale = isStale != 0
	r.IsRecent = isRecent != 0
	return r, nil
}

func scanItemRows(rows *sql.Rows) (ItemRow, error) {
	var r ItemRow
	var isStale, isRecent int64
	if err := rows.Scan(&r.ID, &r.UUID, &r.Parent, &r.Name, &r.EffectiveName, &r.Type, &isStale, &isRecent, &r.ParentPath, &r.UpdatedAt); err != nil {
		return ItemRow{}, err
	}
	r.IsStale = isStale != 0
	r.IsRecent = isRecent != 0
	return r, nil
}

// GetItemByUUID looks up an item regardless of staleness (Identity Resolver
// rule 1).
func (q *Queries) GetItemByUUID(ctx context.Context, uuid string) (ItemRow, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+selectItemColumns+` FROM items WHERE uuid = ?`, uuid)
	return scanItem(row)
}

// GetLiveItemByParentName looks up a non-stale item by (parent, effective
// name) (Identity Resolver rule 2).
func (q *Queries) GetLiveItemByParentName(ctx context.Context, parent *string, name string) (ItemRow, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+selectItemColumns+` FROM items WHERE parent IS ? AND effective_name = ? AND is_stale = 0`, parent, name)
	return scanItem(row)
}

// InsertItem inserts a new items row and returns its surrogate id.
func (q *Queries) InsertItem(ctx context.Context, uuid string, parent, name *string, typ int64, isRecent bool, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO items (uuid, parent, name, type, is_stale, is_recent, updated_at) VALUES (?, ?, ?, ?, 0, ?, ?)`,
		uuid, parent, name, typ, boolToInt(isRecent), updatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateItem updates the mutable fields of an existing items row by id.
func (q *Queries) UpdateItem(ctx context.Context, id int64, parent, name *string, isStale, isRecent bool, parentPath *string, updatedAt string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE items SET parent = ?, name = ?, is_stale = ?, is_recent = ?, parent_path = ?, updated_at = ? WHERE id = ?`,
		parent, name, boolToInt(isStale), boolToInt(isRecent), parentPath, updatedAt, id)
	return err
}

// SetItemName updates only the denormalized name column, used once metadata
// decoding produces the decoded display name.
func (q *Queries) SetItemName(ctx context.Context, id int64, name *string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE items SET name = ? WHERE id = ?`, name, id)
	return err
}

// MarkChildrenStale marks every non-stale child of parent stale, the first
// phase of a directory refresh.
func (q *Queries) MarkChildrenStale(ctx context.Context, parent string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE items SET is_stale = 1 WHERE parent = ? AND is_stale = 0`, parent)
	return err
}

// DeleteStaleChildren deletes every still-stale child of parent, the sweep
// phase of a directory refresh, and returns how many rows were removed.
func (q *Queries) DeleteStaleChildren(ctx context.Context, parent string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM items WHERE parent = ? AND is_stale = 1`, parent)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteItem deletes an items row by uuid and returns how many rows were
// removed (0 means no such item). ON DELETE CASCADE takes care of the
// dirs/files/root/meta sidecars; trg_items_cascade_delete takes care of any
// local-only subtree under a deleted directory.
func (q *Queries) DeleteItem(ctx context.Context, uuid string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM items WHERE uuid = ?`, uuid)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearItemStale clears is_stale on an item that was just re-seen during a
// refresh.
func (q *Queries) ClearItemStale(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `UPDATE items SET is_stale = 0 WHERE id = ?`, id)
	return err
}

// SetItemRecent sets or clears the sticky is_recent flag.
func (q *Queries) SetItemRecent(ctx context.Context, uuid string, recent bool) error {
	_, err := q.db.ExecContext(ctx, `UPDATE items SET is_recent = ? WHERE uuid = ?`, boolToInt(recent), uuid)
	return err
}

// ClearAllRecents clears is_recent on every item, used before re-ingesting a
// fresh recents listing.
func (q *Queries) ClearAllRecents(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `UPDATE items SET is_recent = 0 WHERE is_recent = 1`)
	return err
}

// SetItemParentPath sets the orphan side-channel path for a search match
// whose parent isn't materialized locally.
func (q *Queries) SetItemParentPath(ctx context.Context, id int64, parentPath *string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE items SET parent_path = ? WHERE id = ?`, parentPath, id)
	return err
}

// ClearOrphanedSearchItems deletes any item that exists only as a search
// orphan (has a parent_path but its parent was never subsequently listed)
// and has no children of its own.
func (q *Queries) ClearOrphanedSearchItems(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `
		DELETE FROM items
		WHERE parent_path IS NOT NULL
		AND (parent IS NULL OR parent NOT IN (SELECT uuid FROM items))
		AND uuid NOT IN (SELECT parent FROM items WHERE parent IS NOT NULL)`)
	return err
}

// ListRecents returns every item currently flagged is_recent, most recently
// updated first.
func (q *Queries) ListRecents(ctx context.Context) ([]ItemRow, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+selectItemColumns+` FROM items WHERE is_recent = 1 ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ItemRow
	for rows.Next() {
		r, err := scanItemRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListChildren returns the non-stale children of parent ordered by name.
func (q *Queries) ListChildren(ctx context.Context, parent string) ([]ItemRow, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+selectItemColumns+` FROM items WHERE parent = ? AND is_stale = 0 ORDER BY effective_name ASC`, parent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ItemRow
	for rows.Next() {
		r, err := scanItemRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SearchFilter narrows Search per spec §4.7: files respect size, mime, and
// modified; directories respect only type and name, and compare
// decoded_created against MinModified.
type SearchFilter struct {
	MimeGlobs   []string // SQLite GLOB patterns, OR-joined; files only
	MinSize     int64    // files only; 0 means unfiltered
	MinModified *string  // RFC3339; files compare decoded_modified, dirs compare decoded_created
	Type        *int64   // restricts to a single items.type value
}

const prefixedItemColumns = `i.id, i.uuid, i.parent, i.name, i.effective_name, i.type, i.is_stale, i.is_recent, i.parent_path, i.updated_at`

// Search returns non-stale items whose effective name contains needle,
// case-insensitively, narrowed by filter. files/file_meta and dirs/dir_meta
// are left-joined so root rows and items with no meta sidecar yet still
// match on name alone.
func (q *Queries) Search(ctx context.Context, needle string, filter SearchFilter) ([]ItemRow, error) {
	query := `SELECT ` + prefixedItemColumns + ` FROM items i
		LEFT JOIN files f ON f.item_id = i.id
		LEFT JOIN file_meta fm ON fm.item_id = i.id
		LEFT JOIN dirs d ON d.item_id = i.id
		LEFT JOIN dir_meta dm ON dm.item_id = i.id
		WHERE i.is_stale = 0 AND i.effective_name LIKE '%' || ? || '%'`
	args := []any{needle}

	if filter.Type != nil {
		query += ` AND i.type = ?`
		args = append(args, *filter.Type)
	}
	if filter.MinSize > 0 {
		query += ` AND (i.type != 2 OR f.size >= ?)`
		args = append(args, filter.MinSize)
	}
	if len(filter.MimeGlobs) > 0 {
		clause := ""
		for _, g := range filter.MimeGlobs {
			if clause != "" {
				clause += " OR "
			}
			clause += "fm.decoded_mime GLOB ?"
			args = append(args, g)
		}
		query += ` AND (i.type != 2 OR (` + clause + `))`
	}
	if filter.MinModified != nil {
		query += ` AND (i.type != 2 OR fm.decoded_modified >= ?) AND (i.type != 1 OR dm.decoded_created >= ?)`
		args = append(args, *filter.MinModified, *filter.MinModified)
	}
	query += ` ORDER BY i.effective_name ASC`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ItemRow
	for rows.Next() {
		r, err := scanItemRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- root ---

func (q *Queries) GetRoot(ctx context.Context) (RootRow, error) {
	var r RootRow
	err := q.db.QueryRowContext(ctx, `
		SELECT root.item_id, root.uuid, root.storage_used, root.storage_max, root.last_updated, dirs.last_listed
		FROM root LEFT JOIN dirs ON dirs.item_id = root.item_id LIMIT 1`).
		Scan(&r.ItemID, &r.UUID, &r.StorageUsed, &r.StorageMax, &r.LastUpdated, &r.LastListed)
	return r, err
}

// UpsertRoot writes the root row. Per §4.3, only storage_used, storage_max,
// and last_updated are writable on conflict; item_id/uuid are identity.
func (q *Queries) UpsertRoot(ctx context.Context, itemID int64, uuid string, storageUsed, storageMax int64, lastUpdated *string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO root (item_id, uuid, storage_used, storage_max, last_updated) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (item_id) DO UPDATE SET storage_used = excluded.storage_used, storage_max = excluded.storage_max,
			last_updated = excluded.last_updated`,
		itemID, uuid, storageUsed, storageMax, lastUpdated)
	return err
}

// --- dirs ---

func scanDirRow(scan func(dest ...any) error) (DirRow, error) {
	var r DirRow
	if err := scan(&r.ItemID, &r.UUID, &r.FavoriteRank, &r.Color, &r.LastListed, &r.LocalData); err != nil {
		return DirRow{}, err
	}
	return r, nil
}

func (q *Queries) GetDirByItemID(ctx context.Context, itemID int64) (DirRow, error) {
	row := q.db.QueryRowContext(ctx, `SELECT item_id, uuid, favorite_rank, color, last_listed, local_data FROM dirs WHERE item_id = ?`, itemID)
	return scanDirRow(row.Scan)
}

func (q *Queries) GetDirByUUID(ctx context.Context, uuid string) (DirRow, error) {
	row := q.db.QueryRowContext(ctx, `SELECT item_id, uuid, favorite_rank, color, last_listed, local_data FROM dirs WHERE uuid = ?`, uuid)
	return scanDirRow(row.Scan)
}

// UpsertDir inserts or updates a dirs row. On conflict, localData replaces
// the stored value only when overwriteLocalData is true; otherwise the
// existing local_data is kept as is.
func (q *Queries) UpsertDir(ctx context.Context, itemID int64, uuid string, favoriteRank int64, color *string, lastListed *string, localData *string, overwriteLocalData bool) error {
	if overwriteLocalData {
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO dirs (item_id, uuid, favorite_rank, color, last_listed, local_data) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (item_id) DO UPDATE SET favorite_rank = excluded.favorite_rank, color = excluded.color,
				last_listed = COALESCE(excluded.last_listed, dirs.last_listed), local_data = excluded.local_data`,
			itemID, uuid, favoriteRank, color, lastListed, localData)
		return err
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO dirs (item_id, uuid, favorite_rank, color, last_listed, local_data) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (item_id) DO UPDATE SET favorite_rank = excluded.favorite_rank, color = excluded.color,
			last_listed = COALESCE(excluded.last_listed, dirs.last_listed), local_data = dirs.local_data`,
		itemID, uuid, favoriteRank, color, lastListed, localData)
	return err
}

func (q *Queries) UpdateDirFavoriteRank(ctx context.Context, itemID, favoriteRank int64) error {
	_, err := q.db.ExecContext(ctx, `UPDATE dirs SET favorite_rank = ? WHERE item_id = ?`, favoriteRank, itemID)
	return err
}

func (q *Queries) UpdateDirLastListed(ctx context.Context, itemID int64, when string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE dirs SET last_listed = ? WHERE item_id = ?`, when, itemID)
	return err
}

func (q *Queries) UpdateDirLocalData(ctx context.Context, itemID int64, localData *string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE dirs SET local_data = ? WHERE item_id = ?`, localData, itemID)
	return err
}

// --- files ---

func scanFileRow(scan func(dest ...any) error) (FileRow, error) {
	var r FileRow
	if err := scan(&r.ItemID, &r.UUID, &r.Size, &r.Chunks, &r.Checksum, &r.LastModified, &r.FavoriteRank, &r.Region, &r.Bucket, &r.LocalData); err != nil {
		return FileRow{}, err
	}
	return r, nil
}

const selectFileColumns = `item_id, uuid, size, chunks, checksum, last_modified, favorite_rank, region, bucket, local_data`

func (q *Queries) GetFileByItemID(ctx context.Context, itemID int64) (FileRow, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+selectFileColumns+` FROM files WHERE item_id = ?`, itemID)
	return scanFileRow(row.Scan)
}

func (q *Queries) GetFileByUUID(ctx context.Context, uuid string) (FileRow, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+selectFileColumns+` FROM files WHERE uuid = ?`, uuid)
	return scanFileRow(row.Scan)
}

func (q *Queries) UpsertFile(ctx context.Context, itemID int64, uuid string, size, chunks int64, checksum *string, lastModified string, favoriteRank int64, region, bucket, localData *string, overwriteLocalData bool) error {
	if overwriteLocalData {
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO files (item_id, uuid, size, chunks, checksum, last_modified, favorite_rank, region, bucket, local_data) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (item_id) DO UPDATE SET size = excluded.size, chunks = excluded.chunks, checksum = excluded.checksum,
				last_modified = excluded.last_modified, favorite_rank = excluded.favorite_rank, region = excluded.region,
				bucket = excluded.bucket, local_data = excluded.local_data`,
			itemID, uuid, size, chunks, checksum, lastModified, favoriteRank, region, bucket, localData)
		return err
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO files (item_id, uuid, size, chunks, checksum, last_modified, favorite_rank, region, bucket, local_data) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (item_id) DO UPDATE SET size = excluded.size, chunks = excluded.chunks, checksum = excluded.checksum,
			last_modified = excluded.last_modified, favorite_rank = excluded.favorite_rank, region = excluded.region,
			bucket = excluded.bucket, local_data = files.local_data`,
		itemID, uuid, size, chunks, checksum, lastModified, favoriteRank, region, bucket, localData)
	return err
}

func (q *Queries) UpdateFileFavoriteRank(ctx context.Context, itemID, favoriteRank int64) error {
	_, err := q.db.ExecContext(ctx, `UPDATE files SET favorite_rank = ? WHERE item_id = ?`, favoriteRank, itemID)
	return err
}

func (q *Queries) UpdateFileLocalData(ctx context.Context, itemID int64, localData *string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE files SET local_data = ? WHERE item_id = ?`, localData, itemID)
	return err
}

// --- dir_meta / file_meta ---

func (q *Queries) GetDirMeta(ctx context.Context, itemID int64) (DirMetaRow, error) {
	var r DirMetaRow
	err := q.db.QueryRowContext(ctx, `SELECT item_id, state, raw_metadata, key_version, decoded_name, decoded_color, decoded_created FROM dir_meta WHERE item_id = ?`, itemID).
		Scan(&r.ItemID, &r.State, &r.RawMetadata, &r.KeyVersion, &r.DecodedName, &r.DecodedColor, &r.DecodedCreated)
	return r, err
}

func (q *Queries) UpsertDirMeta(ctx context.Context, m DirMetaRow) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO dir_meta (item_id, state, raw_metadata, key_version, decoded_name, decoded_color, decoded_created) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (item_id) DO UPDATE SET state = excluded.state, raw_metadata = excluded.raw_metadata,
			key_version = excluded.key_version, decoded_name = excluded.decoded_name, decoded_color = excluded.decoded_color,
			decoded_created = excluded.decoded_created`,
		m.ItemID, m.State, m.RawMetadata, m.KeyVersion, m.DecodedName, m.DecodedColor, m.DecodedCreated)
	return err
}

func (q *Queries) DeleteDirMeta(ctx context.Context, itemID int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM dir_meta WHERE item_id = ?`, itemID)
	return err
}

const selectFileMetaColumns = `item_id, state, raw_metadata, key_version, decoded_name, decoded_size, decoded_checksum, decoded_modified, decoded_mime, decoded_created, decoded_file_key, decoded_file_key_version`

func (q *Queries) GetFileMeta(ctx context.Context, itemID int64) (FileMetaRow, error) {
	var r FileMetaRow
	err := q.db.QueryRowContext(ctx, `SELECT `+selectFileMetaColumns+` FROM file_meta WHERE item_id = ?`, itemID).
		Scan(&r.ItemID, &r.State, &r.RawMetadata, &r.KeyVersion, &r.DecodedName, &r.DecodedSize, &r.DecodedChecksum, &r.DecodedModified, &r.DecodedMime, &r.DecodedCreated, &r.DecodedFileKey, &r.DecodedFileKeyVersion)
	return r, err
}

func (q *Queries) UpsertFileMeta(ctx context.Context, m FileMetaRow) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO file_meta (item_id, state, raw_metadata, key_version, decoded_name, decoded_size, decoded_checksum, decoded_modified, decoded_mime, decoded_created, decoded_file_key, decoded_file_key_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (item_id) DO UPDATE SET state = excluded.state, raw_metadata = excluded.raw_metadata,
			key_version = excluded.key_version, decoded_name = excluded.decoded_name, decoded_size = excluded.decoded_size,
			decoded_checksum = excluded.decoded_checksum, decoded_modified = excluded.decoded_modified,
			decoded_mime = excluded.decoded_mime, decoded_created = excluded.decoded_created,
			decoded_file_key = excluded.decoded_file_key, decoded_file_key_version = excluded.decoded_file_key_version`,
		m.ItemID, m.State, m.RawMetadata, m.KeyVersion, m.DecodedName, m.DecodedSize, m.DecodedChecksum, m.DecodedModified, m.DecodedMime, m.DecodedCreated, m.DecodedFileKey, m.DecodedFileKeyVersion)
	return err
}

func (q *Queries) DeleteFileMeta(ctx context.Context, itemID int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM file_meta WHERE item_id = ?`, itemID)
	return err
}
