package decoder

import (
	"context"
	"encoding/json"
	"fmt"
)

// plainPayload is the JSON shape PlainDecoder expects raw_metadata to hold.
type plainPayload struct {
	Name           string  `json:"name"`
	Color          *string `json:"color,omitempty"`
	Size           *int64  `json:"size,omitempty"`
	Checksum       *string `json:"checksum,omitempty"`
	Modified       *int64  `json:"modified,omitempty"`
	Mime           *string `json:"mime,omitempty"`
	Created        *int64  `json:"created,omitempty"`
	FileKey        []byte  `json:"file_key,omitempty"`
	FileKeyVersion *int    `json:"file_key_version,omitempty"`
}

// PlainDecoder treats raw_metadata as the UTF-8 JSON encoding of the decoded
// fields rather than ciphertext. It never defers: malformed JSON is a real
// error, not a locked-key deferral. Grounded on
// bt-go/internal/encryption/test.go's TestEncryptor, which stands in for a
// real cipher in tests the same way.
type PlainDecoder struct{}

func (PlainDecoder) Decode(_ context.Context, raw []byte, _ int) (Decoded, bool, error) {
	var p plainPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Decoded{}, false, fmt.Errorf("decoding plain metadata: %w", err)
	}
	return Decoded{
		Name: p.Name, Color: p.Color, Size: p.Size, Checksum: p.Checksum, Modified: p.Modified, Mime: p.Mime, Created: p.Created,
		FileKey: p.FileKey, FileKeyVersion: p.FileKeyVersion,
	}, true, nil
}
