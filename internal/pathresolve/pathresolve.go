// Package pathresolve implements the Path Resolver: a recursive walk from
// an item up to the root, building an absolute path, with cycle detection
// and an LRU cache of already-resolved paths so repeated lookups of shared
// ancestor chains don't re-walk the store every time. Grounded on spec.md
// §4.6 and the original implementation's recursive_select_path_from_uuid
// (original_source/.../src/local.rs).
package pathresolve

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"filecache-core/internal/cacheerr"
	"filecache-core/internal/store"
)

// maxDepth bounds the ancestor walk; exceeding it means a cycle slipped
// past the Upsert Engine's own cycle rejection (defense in depth, not the
// primary guard).
const maxDepth = 1000

// Resolver resolves absolute paths for items by UUID.
type Resolver struct {
	store *store.Store
	cache *lru.Cache[string, string]
}

// New creates a Resolver with an LRU cache holding up to size resolved
// paths.
func New(st *store.Store, size int) (*Resolver, error) {
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &Resolver{store: st, cache: c}, nil
}

// Invalidate drops uuid's cached path, called by the Upsert Engine whenever
// an item's own name or parent changes.
func (r *Resolver) Invalidate(uuid string) {
	r.cache.Remove(uuid)
}

// Resolve returns uuid's absolute path, e.g. "/docs/report.pdf", with the
// root rendered as "/".
func (r *Resolver) Resolve(ctx context.Context, uuid string) (string, error) {
	if p, ok := r.cache.Get(uuid); ok {
		return p, nil
	}

	q := r.store.Queries
	segments := make([]string, 0, 8)
	seen := make(map[string]bool)

	var leafParentPath *string

	current := uuid
	for depth := 0; ; depth++ {
		if depth > maxDepth {
			return "", cacheerr.PathUnresolvable("path for %s exceeds max depth (likely a cycle)", uuid)
		}
		if seen[current] {
			return "", cacheerr.PathUnresolvable("path for %s contains a cycle at %s", uuid, current)
		}
		seen[current] = true

		item, err := q.GetItemByUUID(ctx, current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				if depth == 0 {
					return "", cacheerr.NotFound("item %s not found while resolving path", current)
				}
				// An ancestor is missing from the store (spec.md §4.6): fall
				// back to the original item's own parent_path side-channel
				// if it has one, otherwise the path cannot be resolved.
				if leafParentPath != nil {
					return *leafParentPath + "/" + segments[0], nil
				}
				return "", cacheerr.PathUnresolvable("ancestor %s missing while resolving path for %s", current, uuid)
			}
			return "", cacheerr.StoreIO("resolving path", err)
		}

		if depth == 0 {
			leafParentPath = item.ParentPath
		}

		if item.Parent == nil {
			break // reached the root
		}

		segments = append(segments, item.EffectiveName)
		current = *item.Parent
	}

	// segments were collected leaf-first; reverse into root-first order.
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}

	path := "/" + strings.Join(segments, "/")
	r.cache.Add(uuid, path)
	return path, nil
}
