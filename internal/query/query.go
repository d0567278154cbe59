// Package query implements the Query Surface: read-only projections over
// the store for the cache's exposed API (GetObject, ListChildren, FindChild,
// Search, Recents, GetRoot). Grounded on spec.md §4.7 and the original
// implementation's query_dir_children/query_recents/query_search
// (original_source/.../src/local.rs).
package query

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"filecache-core/internal/cacheerr"
	"filecache-core/internal/model"
	"filecache-core/internal/store"
	"filecache-core/internal/store/sqlc"
)

// PathResolver resolves an item's absolute path, satisfied structurally by
// *pathresolve.Resolver; declared here instead of imported so this package
// doesn't depend on internal/pathresolve.
type PathResolver interface {
	Resolve(ctx context.Context, uuid string) (string, error)
}

// Surface answers read queries against the store.
type Surface struct {
	store *store.Store
	paths PathResolver
}

// New creates a Surface. paths is used only by Search, to synthesize each
// match's search_path.
func New(st *store.Store, paths PathResolver) *Surface { return &Surface{store: st, paths: paths} }

// OrderBy parameterizes ListChildren/Search ordering, mirroring the
// original implementation's convert_order_by helper
// (original_source/.../src/sql/statements.rs): "name" (the default) or
// "modified" (the items row's updated_at), either ascending or descending.
type OrderBy struct {
	Field string
	Desc  bool
}

// GetObject resolves uuid to a fully-typed model.Object.
func (s *Surface) GetObject(ctx context.Context, uuid string) (model.Object, error) {
	q := s.store.Queries
	item, err := q.GetItemByUUID(ctx, uuid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Object{}, cacheerr.NotFound("object %s", uuid)
		}
		return model.Object{}, cacheerr.StoreIO("loading object", err)
	}

	obj := model.Object{Item: itemFromRow(item)}

	switch model.ItemType(item.Type) {
	case model.ItemTypeRoot:
		root, err := q.GetRoot(ctx)
		if err != nil {
			return model.Object{}, cacheerr.StoreIO("loading root", err)
		}
		obj.Root = rootFromRow(root)
	case model.ItemTypeDir:
		dir, err := q.GetDirByItemID(ctx, item.ID)
		if err != nil {
			return model.Object{}, cacheerr.StoreIO("loading dir", err)
		}
		obj.Dir = dirFromRow(dir)
	case model.ItemTypeFile:
		file, err := q.GetFileByItemID(ctx, item.ID)
		if err != nil {
			return model.Object{}, cacheerr.StoreIO("loading file", err)
		}
		obj.File = fileFromRow(file)
	}

	return obj, nil
}

// ListChildren returns the non-stale children of a directory UUID.
func (s *Surface) ListChildren(ctx context.Context, dirUUID string, order OrderBy) ([]model.Item, error) {
	rows, err := s.store.Queries.ListChildren(ctx, dirUUID)
	if err != nil {
		return nil, cacheerr.StoreIO("listing children", err)
	}
	items := itemsFromRows(rows)
	sortItems(items, order)
	return items, nil
}

// SearchFilter narrows Search per spec §4.7: files respect size, mime, and
// modified; directories respect only type and name, comparing decoded_created
// against MinModified.
type SearchFilter struct {
	MimeGlobs   []string
	MinSize     int64
	MinModified *time.Time
	Type        *model.ItemType
}

// Search returns items whose name matches q, narrowed by filter, each
// carrying a synthesized search_path (§4.6).
func (s *Surface) Search(ctx context.Context, q string, filter SearchFilter, order OrderBy) ([]model.Item, error) {
	sf := sqlc.SearchFilter{MimeGlobs: filter.MimeGlobs, MinSize: filter.MinSize}
	if filter.MinModified != nil {
		ts := filter.MinModified.UTC().Format(time.RFC3339Nano)
		sf.MinModified = &ts
	}
	if filter.Type != nil {
		t := int64(*filter.Type)
		sf.Type = &t
	}

	rows, err := s.store.Queries.Search(ctx, q, sf)
	if err != nil {
		return nil, cacheerr.StoreIO("searching", err)
	}
	items := itemsFromRows(rows)
	for i := range items {
		items[i].SearchPath = s.searchPath(ctx, items[i])
	}
	sortItems(items, order)
	return items, nil
}

// FindChild looks up a single non-stale child of parent by its effective
// name (§6 find_child).
func (s *Surface) FindChild(ctx context.Context, parent, name string) (model.Item, error) {
	row, err := s.store.Queries.GetLiveItemByParentName(ctx, &parent, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Item{}, cacheerr.NotFound("child %q of %s", name, parent)
		}
		return model.Item{}, cacheerr.StoreIO("finding child", err)
	}
	return itemFromRow(row), nil
}

// GetRoot returns the single synthetic root's accounting row (§6 get_root).
func (s *Surface) GetRoot(ctx context.Context) (model.Root, error) {
	row, err := s.store.Queries.GetRoot(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Root{}, cacheerr.NotFound("root")
		}
		return model.Root{}, cacheerr.StoreIO("loading root", err)
	}
	return *rootFromRow(row), nil
}

// searchPath synthesizes a match's absolute path: orphan matches (reached
// only via the parent_path side-channel) use that side-channel directly,
// since their ancestors aren't materialized locally for the Path Resolver
// to walk; everything else is resolved the normal way. Resolution failures
// are swallowed (empty search_path) rather than failing the whole search.
func (s *Surface) searchPath(ctx context.Context, item model.Item) string {
	if item.ParentPath != nil {
		return *item.ParentPath + "/" + item.EffectiveName
	}
	if s.paths == nil {
		return ""
	}
	p, err := s.paths.Resolve(ctx, item.UUID)
	if err != nil {
		return ""
	}
	return p
}

// Recents returns every item currently flagged recent.
func (s *Surface) Recents(ctx context.Context) ([]model.Item, error) {
	rows, err := s.store.Queries.ListRecents(ctx)
	if err != nil {
		return nil, cacheerr.StoreIO("listing recents", err)
	}
	return itemsFromRows(rows), nil
}

func itemFromRow(r sqlc.ItemRow) model.Item {
	updatedAt, _ := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	return model.Item{
		ID: r.ID, UUID: r.UUID, Parent: r.Parent, Name: r.Name, EffectiveName: r.EffectiveName,
		Type: model.ItemType(r.Type), IsStale: r.IsStale, IsRecent: r.IsRecent, ParentPath: r.ParentPath,
		UpdatedAt: updatedAt,
	}
}

func itemsFromRows(rows []sqlc.ItemRow) []model.Item {
	items := make([]model.Item, len(rows))
	for i, r := range rows {
		items[i] = itemFromRow(r)
	}
	return items
}

func rootFromRow(r sqlc.RootRow) *model.Root {
	root := &model.Root{ItemID: r.ItemID, UUID: r.UUID, StorageUsed: r.StorageUsed, StorageMax: r.StorageMax}
	if r.LastUpdated != nil {
		if t, err := time.Parse(time.RFC3339Nano, *r.LastUpdated); err == nil {
			root.LastUpdated = &t
		}
	}
	if r.LastListed != nil {
		if t, err := time.Parse(time.RFC3339Nano, *r.LastListed); err == nil {
			root.LastListed = &t
		}
	}
	return root
}

func dirFromRow(r sqlc.DirRow) *model.Dir {
	d := &model.Dir{ItemID: r.ItemID, UUID: r.UUID, FavoriteRank: r.FavoriteRank, Color: r.Color, LocalData: r.LocalData}
	if r.LastListed != nil {
		if t, err := time.Parse(time.RFC3339Nano, *r.LastListed); err == nil {
			d.LastListed = &t
		}
	}
	return d
}

func fileFromRow(r sqlc.FileRow) *model.File {
	return &model.File{
		ItemID: r.ItemID, UUID: r.UUID, Size: r.Size, Chunks: r.Chunks, Checksum: r.Checksum,
		FavoriteRank: r.FavoriteRank, Region: r.Region, Bucket: r.Bucket, LocalData: r.LocalData,
	}
}

// sortItems applies OrderBy in Go, since effective_name ordering is already
// pushed into SQL (ASC) for the common case; a non-default order re-sorts
// the already-fetched set, which is small enough (one directory's children,
// one search's matches) that this is simpler than a second parameterized
// query string per field.
func sortItems(items []model.Item, order OrderBy) {
	if order.Field == "" && !order.Desc {
		return
	}
	less := func(i, j int) bool {
		switch order.Field {
		case "modified":
			return items[i].UpdatedAt.Before(items[j].UpdatedAt)
		default:
			return items[i].EffectiveName < items[j].EffectiveName
		}
	}
	if order.Desc {
		orig := less
		less = func(i, j int) bool { return orig(j, i) }
	}
	insertionSort(items, less)
}

func insertionSort(items []model.Item, less func(i, j int) bool) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
