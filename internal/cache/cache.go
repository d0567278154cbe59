// Package cache wires the Store, Identity Resolver, Upsert Engine,
// Directory Refresher, Search/Recents Ingester, Path Resolver, and Query
// Surface into the cache's single exposed API, the same role
// bt-go/internal/bt.BTService plus internal/app.BTApp play together for the
// backup tool: one facade a binding layer or CLI can hold onto.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"filecache-core/internal/cacheerr"
	"filecache-core/internal/config"
	"filecache-core/internal/decoder"
	"filecache-core/internal/ingest"
	"filecache-core/internal/model"
	"filecache-core/internal/pathresolve"
	"filecache-core/internal/query"
	"filecache-core/internal/refresher"
	"filecache-core/internal/remote"
	"filecache-core/internal/store"
	"filecache-core/internal/store/sqlc"
	"filecache-core/internal/upsertengine"
)

// Cache is the stable facade over the cache core.
type Cache struct {
	store     *store.Store
	engine    *upsertengine.Engine
	refresher *refresher.Refresher
	ingester  *ingest.Ingester
	paths     *pathresolve.Resolver
	query     *query.Surface
	clock     Clock
}

// Open opens (or creates) the database at cfg.DatabasePath, applying
// migrations, and wires every component together using rq and dec as the
// remote and metadata collaborators.
func Open(cfg config.Config, rq remote.RemoteQuery, dec decoder.MetadataDecoder) (*Cache, error) {
	return OpenWithClock(cfg, rq, dec, RealClock{})
}

// OpenWithClock is Open with an injectable Clock, for deterministic tests.
func OpenWithClock(cfg config.Config, rq remote.RemoteQuery, dec decoder.MetadataDecoder, clock Clock) (*Cache, error) {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	engine := upsertengine.New(dec, clock)
	paths, err := pathresolve.New(st, cfg.PathCacheSize)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating path resolver: %w", err)
	}

	return &Cache{
		store:     st,
		engine:    engine,
		refresher: refresher.New(st, rq, engine),
		ingester:  ingest.New(st, engine),
		paths:     paths,
		query:     query.New(st, paths),
		clock:     clock,
	}, nil
}

// RefreshDir reconciles dirUUID's children against the remote collaborator.
func (c *Cache) RefreshDir(ctx context.Context, dirUUID string) (refresher.Result, error) {
	return c.refresher.Refresh(ctx, dirUUID)
}

// IngestSearch writes a remote search result set into the store.
func (c *Cache) IngestSearch(ctx context.Context, matches []remote.SearchMatch) (ingest.Result, error) {
	if err := c.ingester.ClearSearch(ctx); err != nil {
		return ingest.Result{}, err
	}
	return c.ingester.Ingest(ctx, matches, false)
}

// IngestRecents writes a remote recents listing into the store, replacing
// whatever was previously flagged recent.
func (c *Cache) IngestRecents(ctx context.Context, matches []remote.SearchMatch) (ingest.Result, error) {
	return c.ingester.Ingest(ctx, matches, true)
}

// GetObject resolves uuid to its fully-typed object.
func (c *Cache) GetObject(ctx context.Context, uuid string) (model.Object, error) {
	return c.query.GetObject(ctx, uuid)
}

// ListChildren lists dirUUID's non-stale children.
func (c *Cache) ListChildren(ctx context.Context, dirUUID string, order query.OrderBy) ([]model.Item, error) {
	return c.query.ListChildren(ctx, dirUUID, order)
}

// Search returns items matching q, narrowed by filter.
func (c *Cache) Search(ctx context.Context, q string, filter query.SearchFilter, order query.OrderBy) ([]model.Item, error) {
	return c.query.Search(ctx, q, filter, order)
}

// FindChild looks up parent's non-stale child named name.
func (c *Cache) FindChild(ctx context.Context, parent, name string) (model.Item, error) {
	return c.query.FindChild(ctx, parent, name)
}

// GetRoot returns the synthetic root's accounting row.
func (c *Cache) GetRoot(ctx context.Context) (model.Root, error) {
	return c.query.GetRoot(ctx)
}

// Recents returns every item currently flagged recent.
func (c *Cache) Recents(ctx context.Context) ([]model.Item, error) {
	return c.query.Recents(ctx)
}

// ResolvePath returns uuid's absolute path.
func (c *Cache) ResolvePath(ctx context.Context, uuid string) (string, error) {
	return c.paths.Resolve(ctx, uuid)
}

// SetRecent sets or clears uuid's sticky is_recent flag directly, without
// going through a full recents listing ingestion (§6 set_recent).
func (c *Cache) SetRecent(ctx context.Context, uuid string, recent bool) error {
	return c.store.WithTx(ctx, func(q *sqlc.Queries) error {
		if err := q.SetItemRecent(ctx, uuid, recent); err != nil {
			return cacheerr.StoreIO("setting item recent", err)
		}
		return nil
	})
}

// ClearSearch discards orphaned search items left over from a previous
// search, independent of running a new one (§6 clear_search).
func (c *Cache) ClearSearch(ctx context.Context) error {
	return c.ingester.ClearSearch(ctx)
}

// UpsertRoot creates or updates the single synthetic root item and its
// accounting row (§4.3 upsert_root), the fourth Upsert Engine entry point
// alongside UpsertFromRemote's dir/file cases.
func (c *Cache) UpsertRoot(ctx context.Context, uuid string, storageUsed, storageMax int64) error {
	return c.store.WithTx(ctx, func(q *sqlc.Queries) error {
		return c.engine.UpsertRoot(ctx, q, upsertengine.RemoteRoot{UUID: uuid, StorageUsed: storageUsed, StorageMax: storageMax})
	})
}

// UpsertFromRemote writes a single remote-observed item into the store,
// outside of a directory refresh or search/recents ingestion (§6
// upsert_from_remote).
func (c *Cache) UpsertFromRemote(ctx context.Context, ch remote.Child) error {
	return c.store.WithTx(ctx, func(q *sqlc.Queries) error {
		var err error
		switch ch.Kind {
		case remote.ChildDir:
			err = c.engine.UpsertDir(ctx, q, upsertengine.RemoteDir{
				UUID: ch.UUID, ParentUUID: ch.ParentUUID, RawMetadata: ch.RawMetadata,
				RawState: model.MetadataState(ch.RawState), KeyVersion: ch.KeyVersion, Favorited: ch.Favorited,
			})
		case remote.ChildFile:
			err = c.engine.UpsertFile(ctx, q, upsertengine.RemoteFile{
				UUID: ch.UUID, ParentUUID: ch.ParentUUID, RawMetadata: ch.RawMetadata,
				RawState: model.MetadataState(ch.RawState), KeyVersion: ch.KeyVersion, Size: ch.Size,
				Chunks: ch.Chunks, Region: ch.Region, Bucket: ch.Bucket,
				LastModified: time.Unix(ch.LastModified, 0), Favorited: ch.Favorited,
			})
		default:
			return fmt.Errorf("upserting %s: unknown child kind %d", ch.UUID, ch.Kind)
		}
		if err != nil && !cacheerr.IsDeferred(err) {
			return err
		}
		return nil
	})
}

// UpdateRootAccounting overwrites the root's storage_used/storage_max and
// bumps last_updated to now (§6 update_root_accounting).
func (c *Cache) UpdateRootAccounting(ctx context.Context, storageUsed, storageMax int64) error {
	return c.store.WithTx(ctx, func(q *sqlc.Queries) error {
		root, err := q.GetRoot(ctx)
		if err != nil {
			return cacheerr.StoreIO("loading root for accounting update", err)
		}
		now := c.clock.Now().UTC().Format(time.RFC3339Nano)
		if err := q.UpsertRoot(ctx, root.ItemID, root.UUID, storageUsed, storageMax, &now); err != nil {
			return cacheerr.StoreIO("updating root accounting", err)
		}
		return nil
	})
}

// Delete removes uuid from the store. If uuid names a non-file item,
// trg_items_cascade_delete removes its entire non-orphan subtree along with
// it (§6 delete).
func (c *Cache) Delete(ctx context.Context, uuid string) error {
	return c.store.WithTx(ctx, func(q *sqlc.Queries) error {
		n, err := q.DeleteItem(ctx, uuid)
		if err != nil {
			return cacheerr.StoreIO("deleting item", err)
		}
		if n == 0 {
			return cacheerr.NotFound("item %s", uuid)
		}
		return nil
	})
}

// UpdateLocalData overwrites uuid's caller-owned opaque local_data payload,
// the one mutation path that intentionally bypasses the Upsert Engine's
// COALESCE-preservation rule.
func (c *Cache) UpdateLocalData(ctx context.Context, uuid string, localData *string) error {
	return c.store.WithTx(ctx, func(q *sqlc.Queries) error {
		item, err := q.GetItemByUUID(ctx, uuid)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return cacheerr.NotFound("item %s", uuid)
			}
			return cacheerr.StoreIO("loading item for local data update", err)
		}

		switch model.ItemType(item.Type) {
		case model.ItemTypeDir:
			if err := q.UpdateDirLocalData(ctx, item.ID, localData); err != nil {
				return cacheerr.StoreIO("updating dir local data", err)
			}
		case model.ItemTypeFile:
			if err := q.UpdateFileLocalData(ctx, item.ID, localData); err != nil {
				return cacheerr.StoreIO("updating file local data", err)
			}
		default:
			return fmt.Errorf("item %s has no local_data slot (type %s)", uuid, model.ItemType(item.Type))
		}
		return nil
	})
}

// Close releases the underlying database connection.
func (c *Cache) Close() error {
	return c.store.Close()
}
