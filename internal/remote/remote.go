// Package remote defines the RemoteQuery collaborator the Directory
// Refresher and Search/Recents Ingester call out to, plus an in-memory fake
// used by tests and the debug CLI.
package remote

import "context"

// ChildKind mirrors model.ItemType for the wire shape, kept separate so this
// package has no dependency on internal/model.
type ChildKind int

const (
	ChildDir  ChildKind = 1
	ChildFile ChildKind = 2
)

// RawMetadataState mirrors the non-decoded values of model.MetadataState
// (decrypted-raw=1, encrypted=2, rsa-encrypted=3) for the wire shape, kept
// separate for the same reason ChildKind is. The zero value means the
// remote didn't report an encoding; callers default it to "encrypted".
type RawMetadataState int

const (
	RawStateDecryptedRaw RawMetadataState = 1
	RawStateEncrypted    RawMetadataState = 2
	RawStateRSAEncrypted RawMetadataState = 3
)

// Child is one entry in a remote directory listing.
type Child struct {
	UUID         string
	ParentUUID   string
	Kind         ChildKind
	RawMetadata  []byte
	RawState     RawMetadataState // encoding of RawMetadata while still encrypted
	KeyVersion   int
	Size         int64   // files only; ignored for dirs
	Chunks       int64   // files only; ignored for dirs
	Region       *string // files only; ignored for dirs
	Bucket       *string // files only; ignored for dirs
	LastModified int64   // files only; unix seconds
	Favorited    bool
}

// SearchQuery describes a remote search or recents request.
type SearchQuery struct {
	Query      string // empty for a recents request
	IsRecents  bool
}

// SearchMatch is one result from a remote search or recents listing. Path is
// the match's full remote path, used to seed the parent_path orphan
// side-channel when the match's ancestors aren't materialized locally.
type SearchMatch struct {
	Child
	Path string
}

// RemoteQuery is the abstract collaborator for all remote listing/search
// calls (spec external interface). The production implementation (an
// authenticated HTTPS/JSON client) is out of scope for this repository.
type RemoteQuery interface {
	ListDir(ctx context.Context, dirUUID string) ([]Child, error)
	GetItem(ctx context.Context, uuid string) (Child, error)
	Search(ctx context.Context, q SearchQuery) ([]SearchMatch, error)
}
