package decoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"filippo.io/age"
)

// AgeDecoder decrypts raw_metadata as an age ciphertext produced for one of
// its recipients, then parses the plaintext as JSON. It defers (ok=false,
// err=nil) rather than erroring when no identity has been unlocked yet,
// matching the two-phase commit the Upsert Engine expects while the user
// hasn't entered their passphrase. Grounded on
// bt-go/internal/encryption/age.go's AgeEncryptor/AgeDecryptionContext.
type AgeDecoder struct {
	mu         sync.RWMutex
	identities []age.Identity
}

// NewAgeDecoder creates a decoder with no unlocked identity; Decode will
// defer every blob until Unlock is called.
func NewAgeDecoder() *AgeDecoder {
	return &AgeDecoder{}
}

// Unlock stores identities, replacing any stored before (typically a single *age.X25519Identity
// produced by decrypting a passphrase-protected private key file, the same
// way bt-go's AgeEncryptor.Unlock does) so subsequent Decode calls can
// proceed.
func (d *AgeDecoder) Unlock(identities ...age.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.identities = identities
}

func (d *AgeDecoder) Decode(_ context.Context, raw []byte, _ int) (Decoded, bool, error) {
	d.mu.RLock()
	identities := d.identities
	d.mu.RUnlock()

	if len(identities) == 0 {
		return Decoded{}, false, nil
	}

	r, err := age.Decrypt(bytes.NewReader(raw), identities...)
	if err != nil {
		return Decoded{}, false, fmt.Errorf("decrypting metadata: %w", err)
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		return Decoded{}, false, fmt.Errorf("reading decrypted metadata: %w", err)
	}

	var p plainPayload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return Decoded{}, false, fmt.Errorf("parsing decrypted metadata: %w", err)
	}
	return Decoded{
		Name: p.Name, Color: p.Color, Size: p.Size, Checksum: p.Checksum, Modified: p.Modified, Mime: p.Mime, Created: p.Created,
		FileKey: p.FileKey, FileKeyVersion: p.FileKeyVersion,
	}, true, nil
}
