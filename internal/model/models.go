// Package model holds the plain domain structs shared by every layer of the
// cache: the Store reads and writes them, the Upsert Engine builds and merges
// them, and the Query Surface returns them to callers.
package model

import "time"

// ItemType distinguishes the three kinds of row that can occupy the items
// table: the single synthetic root, a directory, or a file.
type ItemType int

const (
	ItemTypeRoot ItemType = 0
	ItemTypeDir  ItemType = 1
	ItemTypeFile ItemType = 2
)

func (t ItemType) String() string {
	switch t {
	case ItemTypeRoot:
		return "root"
	case ItemTypeDir:
		return "dir"
	case ItemTypeFile:
		return "file"
	default:
		return "unknown"
	}
}

// MetadataState tracks how far a metadata blob has progressed toward being
// readable plaintext. The four values mirror the raw encodings a remote
// listing can report a still-ciphertext blob in before it reaches Decoded;
// which one applies determines nothing about the store's behavior beyond
// invariant 3 (raw_metadata present iff state != Decoded), but it is
// preserved so a later decode attempt knows which decryption path the
// ciphertext needs.
type MetadataState int

const (
	// MetadataDecoded means raw_metadata has been decrypted and parsed into
	// name/size/timestamps already reflected on the row; raw_metadata is
	// cleared once a row reaches this state.
	MetadataDecoded MetadataState = 0
	// MetadataDecryptedRaw means the blob is a raw (already-decrypted at the
	// transport layer) but still-encoded payload, not yet parsed.
	MetadataDecryptedRaw MetadataState = 1
	// MetadataEncrypted means raw_metadata holds symmetric ciphertext the
	// decoder has not yet been able to process.
	MetadataEncrypted MetadataState = 2
	// MetadataRSAEncrypted means raw_metadata holds ciphertext wrapped for
	// an RSA-keyed share, requiring a different decode path than ordinary
	// symmetric metadata.
	MetadataRSAEncrypted MetadataState = 3
)

func (s MetadataState) String() string {
	switch s {
	case MetadataDecoded:
		return "decoded"
	case MetadataDecryptedRaw:
		return "decrypted-raw"
	case MetadataEncrypted:
		return "encrypted"
	case MetadataRSAEncrypted:
		return "rsa-encrypted"
	default:
		return "unknown"
	}
}

// Item is the identity row shared by every object in the tree: root,
// directories, and files all have exactly one items row.
type Item struct {
	ID            int64   // local surrogate key
	UUID          string  // remote-stable identity
	Parent        *string // parent UUID; nil for the root item and the trash sentinel
	Name          *string // denormalized decoded name, nil until decoded
	EffectiveName string  // generated column: COALESCE(name, uuid)
	Type          ItemType
	IsStale       bool // set by the Directory Refresher's mark phase
	IsRecent      bool // sticky: set by recents ingestion, never cleared by refresh
	ParentPath    *string
	UpdatedAt     time.Time

	// SearchPath is synthesized only by Search (§4.6): the resolved or
	// parent_path-derived absolute path of the match, populated nowhere
	// else.
	SearchPath string `json:"search_path,omitempty"`
}

// Root is the single per-account synthetic root directory.
type Root struct {
	ItemID      int64
	UUID        string
	StorageUsed int64
	StorageMax  int64
	LastUpdated *time.Time
	// LastListed mirrors the root's own dirs-table counterpart row, set by
	// the Directory Refresher the same way it is for any other directory.
	LastListed *time.Time
}

// Dir holds directory-specific attributes layered on top of an Item.
type Dir struct {
	ItemID       int64
	UUID         string
	FavoriteRank int64 // 0 means not favorited; otherwise most-recent-favorite-wins ordinal
	Color        *string
	LastListed   *time.Time // nil until the Directory Refresher has listed it once
	LocalData    *string    // opaque, caller-owned; preserved verbatim across remote upserts
}

// File holds file-specific attributes layered on top of an Item.
type File struct {
	ItemID       int64
	UUID         string
	Size         int64
	Chunks       int64
	Checksum     *string
	LastModified time.Time
	FavoriteRank int64
	Region       *string
	Bucket       *string
	LocalData    *string
}

// DirMeta is the decodable metadata blob attached to a Dir.
type DirMeta struct {
	ItemID         int64
	State          MetadataState
	RawMetadata    []byte
	KeyVersion     int
	DecodedName    *string
	DecodedColor   *string
	DecodedCreated *time.Time
}

// FileMeta is the decodable metadata blob attached to a File.
type FileMeta struct {
	ItemID          int64
	State           MetadataState
	RawMetadata     []byte
	KeyVersion      int
	DecodedName     *string
	DecodedSize     *int64
	DecodedChecksum *string
	DecodedModified *time.Time
	DecodedMime     *string
	DecodedCreated  *time.Time
	// DecodedFileKey and DecodedFileKeyVersion are the per-file content
	// encryption key and its version (1-3), decoded out of the same
	// metadata blob as name/mime/created; nil until decoded.
	DecodedFileKey        []byte
	DecodedFileKeyVersion *int
}

// Object is a fully resolved item: its identity row plus whichever typed
// payload (Root, Dir, or File) applies, the shape the Query Surface returns.
type Object struct {
	Item Item
	Root *Root
	Dir  *Dir
	File *File
}
