// Package refresher implements the Directory Refresher: mark children
// stale, list the remote directory, upsert every child, then sweep whatever
// is still stale. A singleflight.Group collapses concurrent refreshes of the
// same directory into one remote listing, mirroring the "await the ongoing
// listing" behavior the original implementation's update_items_in_path
// hand-rolls with shared futures (original_source/.../src/sync.rs).
package refresher

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/singleflight"

	"filecache-core/internal/cacheerr"
	"filecache-core/internal/model"
	"filecache-core/internal/remote"
	"filecache-core/internal/store"
	"filecache-core/internal/store/sqlc"
	"filecache-core/internal/upsertengine"
)

// Refresher owns the per-directory in-flight guard.
type Refresher struct {
	store  *store.Store
	remote remote.RemoteQuery
	engine *upsertengine.Engine
	guard  singleflight.Group
}

// New creates a Refresher.
func New(st *store.Store, rq remote.RemoteQuery, engine *upsertengine.Engine) *Refresher {
	return &Refresher{store: st, remote: rq, engine: engine}
}

// Result reports how many children were added/updated and how many stale
// children were swept.
type Result struct {
	Upserted int
	Swept    int64
	Deferred int // count of children whose metadata decode was deferred
}

// Refresh lists dirUUID remotely and reconciles the store to match. Calls
// for the same dirUUID made while a refresh is already in flight share its
// result instead of issuing a second remote listing.
func (r *Refresher) Refresh(ctx context.Context, dirUUID string) (Result, error) {
	v, err, _ := r.guard.Do(dirUUID, func() (any, error) {
		return r.refresh(ctx, dirUUID)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (r *Refresher) refresh(ctx context.Context, dirUUID string) (Result, error) {
	children, err := r.remote.ListDir(ctx, dirUUID)
	if err != nil {
		return Result{}, cacheerr.RefreshFailed(dirUUID, err)
	}

	var result Result
	var teardownErrs *multierror.Error

	txErr := r.store.WithTx(ctx, func(q *sqlc.Queries) error {
		if err := q.MarkChildrenStale(ctx, dirUUID); err != nil {
			return cacheerr.StoreIO("marking children stale", err)
		}

		for _, c := range children {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("refresh of %s cancelled: %w", dirUUID, cacheerr.ErrCancelled)
			}

			switch c.Kind {
			case remote.ChildDir:
				err = r.engine.UpsertDir(ctx, q, upsertengine.RemoteDir{
					UUID: c.UUID, ParentUUID: c.ParentUUID, RawMetadata: c.RawMetadata,
					RawState: model.MetadataState(c.RawState), KeyVersion: c.KeyVersion, Favorited: c.Favorited,
				})
			case remote.ChildFile:
				err = r.engine.UpsertFile(ctx, q, upsertengine.RemoteFile{
					UUID: c.UUID, ParentUUID: c.ParentUUID, RawMetadata: c.RawMetadata,
					RawState: model.MetadataState(c.RawState), KeyVersion: c.KeyVersion, Size: c.Size,
					Chunks: c.Chunks, Region: c.Region, Bucket: c.Bucket,
					LastModified: time.Unix(c.LastModified, 0), Favorited: c.Favorited,
				})
			default:
				return fmt.Errorf("refresh of %s: unknown child kind %d", dirUUID, c.Kind)
			}

			if err != nil {
				if cacheerr.IsDeferred(err) {
					result.Deferred++
					continue
				}
				return err
			}
			result.Upserted++
		}

		swept, err := q.DeleteStaleChildren(ctx, dirUUID)
		if err != nil {
			return cacheerr.StoreIO("sweeping stale children", err)
		}
		result.Swept = swept

		if dirRow, err := q.GetDirByUUID(ctx, dirUUID); err == nil {
			if err := q.UpdateDirLastListed(ctx, dirRow.ItemID, nowISO()); err != nil {
				teardownErrs = multierror.Append(teardownErrs, fmt.Errorf("updating last_listed: %w", err))
			}
		}

		return nil
	})

	if txErr != nil {
		return Result{}, cacheerr.RefreshFailed(dirUUID, txErr)
	}
	if teardownErrs != nil && teardownErrs.Len() > 0 {
		return result, cacheerr.RefreshFailed(dirUUID, teardownErrs)
	}
	return result, nil
}

func nowISO() string { return time.Now().UTC().Format(time.RFC3339Nano) }
