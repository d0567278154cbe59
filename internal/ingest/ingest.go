// Package ingest implements the Search/Recents Ingester: it writes remote
// search and recents matches into the store, seeding a parent_path orphan
// side-channel for any match whose ancestor chain isn't materialized yet, so
// the Path Resolver can still show something useful until the real parent
// directory is refreshed. Grounded on the original implementation's
// SELECT_SEARCH/UPDATE_SEARCH_PATH/CLEAR_ORPHANED_SEARCH_ITEMS statements
// (original_source/.../src/sql/statements.rs) and spec.md §4.5.
package ingest

import (
	"context"
	"strings"
	"time"

	"filecache-core/internal/cacheerr"
	"filecache-core/internal/model"
	"filecache-core/internal/remote"
	"filecache-core/internal/store"
	"filecache-core/internal/store/sqlc"
	"filecache-core/internal/upsertengine"
)

// Ingester applies remote search/recents matches to the store.
type Ingester struct {
	store  *store.Store
	engine *upsertengine.Engine
}

// New creates an Ingester.
func New(st *store.Store, engine *upsertengine.Engine) *Ingester {
	return &Ingester{store: st, engine: engine}
}

// Result reports how many matches were ingested and how many metadata
// decodes were deferred.
type Result struct {
	Ingested int
	Deferred int
}

// Ingest writes matches (a search result set or a recents listing) into the
// store. When isRecents is true, every previously-recent item is cleared
// first so the is_recent flag exactly tracks the latest listing; search
// ingestion never clears anything global, since search results are
// additive hits against the existing tree.
func (ig *Ingester) Ingest(ctx context.Context, matches []remote.SearchMatch, isRecents bool) (Result, error) {
	var result Result

	err := ig.store.WithTx(ctx, func(q *sqlc.Queries) error {
		if isRecents {
			if err := q.ClearAllRecents(ctx); err != nil {
				return cacheerr.StoreIO("clearing recents", err)
			}
		}

		for _, m := range matches {
			var upsertErr error
			switch m.Kind {
			case remote.ChildDir:
				upsertErr = ig.engine.UpsertDir(ctx, q, upsertengine.RemoteDir{
					UUID: m.UUID, ParentUUID: m.ParentUUID, RawMetadata: m.RawMetadata,
					RawState: model.MetadataState(m.RawState), KeyVersion: m.KeyVersion, Favorited: m.Favorited,
				})
			case remote.ChildFile:
				upsertErr = ig.engine.UpsertFile(ctx, q, upsertengine.RemoteFile{
					UUID: m.UUID, ParentUUID: m.ParentUUID, RawMetadata: m.RawMetadata,
					RawState: model.MetadataState(m.RawState), KeyVersion: m.KeyVersion, Size: m.Size,
					Chunks: m.Chunks, Region: m.Region, Bucket: m.Bucket,
					LastModified: time.Unix(m.LastModified, 0), Favorited: m.Favorited,
				})
			}

			if upsertErr != nil && !cacheerr.IsDeferred(upsertErr) {
				return upsertErr
			}
			if cacheerr.IsDeferred(upsertErr) {
				result.Deferred++
			}

			item, err := q.GetItemByUUID(ctx, m.UUID)
			if err != nil {
				return cacheerr.StoreIO("reloading ingested item", err)
			}

			// Seed the orphan side-channel only if the parent isn't
			// materialized locally yet. parent_path holds the directory
			// part of the match's path; readers append the item's own name.
			if _, err := q.GetItemByUUID(ctx, m.ParentUUID); err != nil {
				path := m.Path
				if i := strings.LastIndex(path, "/"); i >= 0 {
					path = path[:i]
				}
				if err := q.SetItemParentPath(ctx, item.ID, &path); err != nil {
					return cacheerr.StoreIO("setting parent path", err)
				}
			}

			if isRecents {
				if err := q.SetItemRecent(ctx, m.UUID, true); err != nil {
					return cacheerr.StoreIO("marking item recent", err)
				}
			}

			result.Ingested++
		}

		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// ClearSearch discards every search/recents orphan (an item carrying a
// parent_path) whose parent is still not in the store and which no other
// item names as its parent. Callers run this
// before issuing a fresh search so stale orphans from a previous query
// don't linger. Grounded on the original implementation's
// CLEAR_ORPHANED_SEARCH_ITEMS/CLEAR_SEARCH_FROM_ITEMS statements.
func (ig *Ingester) ClearSearch(ctx context.Context) error {
	return ig.store.WithTx(ctx, func(q *sqlc.Queries) error {
		if err := q.ClearOrphanedSearchItems(ctx); err != nil {
			return cacheerr.StoreIO("clearing orphaned search items", err)
		}
		return nil
	})
}
