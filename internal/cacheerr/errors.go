// Package cacheerr defines the typed error taxonomy every layer of the
// cache returns, so callers can branch on errors.Is/errors.As instead of
// inspecting message text.
package cacheerr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Wrap with fmt.Errorf("...: %w", ErrX) to attach context
// while keeping errors.Is working.
var (
	// ErrNotFound means the requested item has no row in the store.
	ErrNotFound = errors.New("item not found")
	// ErrStale means the resolved row is marked stale and cannot be used for
	// identity resolution.
	ErrStale = errors.New("item is stale")
	// ErrRefreshFailed means a directory listing from the remote collaborator
	// failed; the store is left at its pre-refresh state.
	ErrRefreshFailed = errors.New("directory refresh failed")
	// ErrDecodeDeferred means metadata could not be decoded yet; the row was
	// still stored in its encrypted state.
	ErrDecodeDeferred = errors.New("metadata decode deferred")
	// ErrPathUnresolvable means a path could not be built, typically because
	// an ancestor is missing or a cycle was detected.
	ErrPathUnresolvable = errors.New("path unresolvable")
	// ErrCancelled mirrors context.Canceled for callers that only want to
	// check the cache's own taxonomy.
	ErrCancelled = errors.New("operation cancelled")
	// ErrStoreIO covers underlying database errors not otherwise classified.
	ErrStoreIO = errors.New("store i/o error")
	// ErrCycle means applying an upsert would make an item its own ancestor.
	ErrCycle = errors.New("move would create a cycle")
)

// ConflictError describes a collision with an existing, non-stale row that
// holds the same (parent, name) but a different UUID. The Upsert Engine does
// not return it: it deletes the colliding row (identity.DeleteConflicting)
// and proceeds.
type ConflictError struct {
	Parent string
	Name   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting item already exists at parent=%s name=%q", e.Parent, e.Name)
}

// Is lets errors.Is(err, ErrConflict) match any *ConflictError, the same
// pattern sentinel + typed error taxonomies use elsewhere in this codebase.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ErrConflict is the sentinel matched by any *ConflictError via Is.
var ErrConflict = errors.New("conflicting item")

// NotFound formats a message from format and args and wraps ErrNotFound.
func NotFound(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// StoreIO wraps a low-level database error as ErrStoreIO, preserving the
// original error for errors.Is/As/Unwrap chains.
func StoreIO(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreIO, err)
}

// PathUnresolvable formats a message from format and args and wraps
// ErrPathUnresolvable.
func PathUnresolvable(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrPathUnresolvable)...)
}

// RefreshFailed wraps err as ErrRefreshFailed.
func RefreshFailed(dirUUID string, err error) error {
	return fmt.Errorf("refreshing directory %s: %w: %w", dirUUID, ErrRefreshFailed, err)
}

// IsDeferred reports whether err is (or wraps) ErrDecodeDeferred.
func IsDeferred(err error) bool {
	return errors.Is(err, ErrDecodeDeferred)
}

// Cycle wraps ErrCycle with the offending uuid.
func Cycle(uuid string) error {
	return fmt.Errorf("item %s: %w", uuid, ErrCycle)
}
