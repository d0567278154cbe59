// Package identity implements the two-rule lookup the Upsert Engine uses to
// decide whether an incoming remote item is already represented locally.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"filecache-core/internal/cacheerr"
	"filecache-core/internal/store/sqlc"
)

// Candidate describes the identity the caller wants to resolve: the
// remote-stable UUID plus the (parent, name) pair it would occupy if newly
// created or moved.
type Candidate struct {
	UUID   string
	Parent *string
	Name   string
}

// Result reports what Resolve found.
type Result struct {
	// ExistingID is the local surrogate key of the matched row, if any.
	ExistingID int64
	// Found is true if a row matched by either rule.
	Found bool
	// MatchedByUUID is true if rule 1 matched (the row may be stale).
	MatchedByUUID bool
	// ConflictID is the surrogate key of a different, live row occupying
	// the candidate's (parent, name) slot, set only when rule 1 also
	// matched a different row and rule 2 found a live collision.
	ConflictID int64
	HasConflict bool
	// ExistingIsRecent carries the matched row's current is_recent flag, so
	// the caller can OR it into the upserted row instead of clobbering it.
	// Meaningless when Found is false.
	ExistingIsRecent bool
}

// Resolve applies the two-rule identity resolution from the cache's upsert
// contract:
//
//  1. Look up by UUID, regardless of staleness. If found, that is the row to
//     update, even if the candidate's name/parent differ (a move/rename).
//  2. If rule 1 didn't match, look up by (parent, effective name) among
//     non-stale rows only. If found, that is the row to update (an item
//     previously seen from search/recents is now being seen in its real
//     location, or a stale/new-name collision during a directory refresh).
//
// If rule 1 matches row A and a different, live row B already occupies the
// candidate's (parent, name) slot, that is reported as a conflict: the
// caller (the Upsert Engine) must delete B in the same transaction before
// renaming/moving A into that slot.
func Resolve(ctx context.Context, q *sqlc.Queries, c Candidate) (Result, error) {
	byUUID, err := q.GetItemByUUID(ctx, c.UUID)
	switch {
	case err == nil:
		res := Result{ExistingID: byUUID.ID, Found: true, MatchedByUUID: true, ExistingIsRecent: byUUID.IsRecent}
		collision, err := q.GetLiveItemByParentName(ctx, c.Parent, c.Name)
		if err == nil && collision.ID != byUUID.ID {
			res.HasConflict = true
			res.ConflictID = collision.ID
		} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return Result{}, cacheerr.StoreIO("checking name collision", err)
		}
		return res, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to rule 2
	default:
		return Result{}, cacheerr.StoreIO("resolving by uuid", err)
	}

	byName, err := q.GetLiveItemByParentName(ctx, c.Parent, c.Name)
	switch {
	case err == nil:
		return Result{ExistingID: byName.ID, Found: true, ExistingIsRecent: byName.IsRecent}, nil
	case errors.Is(err, sql.ErrNoRows):
		return Result{}, nil
	default:
		return Result{}, cacheerr.StoreIO("resolving by parent/name", err)
	}
}

// DeleteConflicting removes the row flagged as ConflictID in a Result,
// called by the Upsert Engine inside the same transaction as the rename it
// is clearing the way for.
func DeleteConflicting(ctx context.Context, tx DBTX, id int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conflicting item %d: %w", id, err)
	}
	return nil
}

// DBTX is the minimal exec surface DeleteConflicting needs; *sql.Tx and
// *sql.DB both satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
