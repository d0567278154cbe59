package sqlc

// ItemRow is the row shape of the items table.
type ItemRow struct {
	ID            int64
	UUID          string
	Parent        *string
	Name          *string
	EffectiveName string
	Type          int64
	IsStale       bool
	IsRecent      bool
	ParentPath    *string
	UpdatedAt     string
}

// RootRow is the row shape of the root table, joined with its dirs-table
// counterpart row for LastListed.
type RootRow struct {
	ItemID      int64
	UUID        string
	StorageUsed int64
	StorageMax  int64
	LastUpdated *string
	LastListed  *string
}

// DirRow is the row shape of the dirs table.
type DirRow struct {
	ItemID       int64
	UUID         string
	FavoriteRank int64
	Color        *string
	LastListed   *string
	LocalData    *string
}

// FileRow is the row shape of the files table.
type FileRow struct {
	ItemID       int64
	UUID         string
	Size         int64
	Chunks       int64
	Checksum     *string
	LastModified string
	FavoriteRank int64
	Region       *string
	Bucket       *string
	LocalData    *string
}

// DirMetaRow is the row shape of the dir_meta table.
type DirMetaRow struct {
	ItemID         int64
	State          int64
	RawMetadata    []byte
	KeyVersion     int64
	DecodedName    *string
	DecodedColor   *string
	DecodedCreated *string
}

// FileMetaRow is the row shape of the file_meta table.
type FileMetaRow struct {
	ItemID                int64
	State                 int64
	RawMetadata           []byte
	KeyVersion            int64
	DecodedName           *string
	DecodedSize           *int64
	DecodedChecksum       *string
	DecodedModified       *string
	DecodedMime           *string
	DecodedCreated        *string
	DecodedFileKey        []byte
	DecodedFileKeyVersion *int64
}
