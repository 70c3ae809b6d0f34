package version

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/google/uuid"
)

// NewID returns a new 128-bit stable schema identifier.
func NewID() string {
	return uuid.New().String()
}

// ContentHash computes the SHA-256 hash of already-canonicalized bytes, returned
// as a lowercase hex string. Callers MUST canonicalize before hashing (see
// pkg/format's per-adapter Canonicalize) so that whitespace and key-order
// differences never produce spurious distinct identities.
func ContentHash(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// StreamingContentHash computes the SHA-256 hash of r without materializing the
// full body in memory, for archive-path bodies above the inline-storage
// threshold (spec: "the storage tier SHOULD stream bodies ... over a streaming
// SHA-256").
func StreamingContentHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
