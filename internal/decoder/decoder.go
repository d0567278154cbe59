// Package decoder defines the MetadataDecoder collaborator the Upsert
// Engine calls to turn a raw_metadata blob into readable fields, plus two
// concrete implementations: a plain pass-through for tests and an
// age-backed one exercising a real asymmetric decryption pipeline.
package decoder

import "context"

// Decoded is what a successful decode yields. Which optional fields are
// populated depends on whether the caller is decoding directory or file
// metadata; the Upsert Engine reads only the fields relevant to the item
// type it's upserting.
type Decoded struct {
	Name     string
	Color    *string
	Size     *int64
	Checksum *string
	Modified *int64 // unix seconds
	Mime     *string
	Created  *int64 // unix seconds

	// FileKey and FileKeyVersion are file-only: the per-file content
	// encryption key and its version, carried inside the same metadata
	// blob as name/mime/created rather than arriving structurally like
	// size or chunk count.
	FileKey        []byte
	FileKeyVersion *int
}

// MetadataDecoder decrypts and parses a raw_metadata blob. ok is false (with
// a nil error) when the decoder cannot process this blob yet — for example,
// the decryption key hasn't been unlocked — which the Upsert Engine treats
// as a deferred decode rather than a failure: the row is stored in its
// encrypted state and retried on the next upsert carrying the same bytes.
type MetadataDecoder interface {
	Decode(ctx context.Context, raw []byte, keyVersion int) (Decoded, bool, error)
}
