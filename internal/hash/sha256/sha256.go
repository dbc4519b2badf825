// Package sha256 names archived pages by the SHA-256 digest of their body.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Hasher digests page bodies. Identical pages from the same host on the same
// day collapse onto one archive object.
type Hasher struct {
	// Length truncates the hex digest when positive.
	Length int
}

// New returns a Hasher producing full 64 character digests.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return h.trim(hex.EncodeToString(sum[:])), nil
}

// HashReader digests a stream without buffering it.
func (h *Hasher) HashReader(r io.Reader) (string, error) {
	d := sha256.New()
	if _, err := io.Copy(d, r); err != nil {
		return "", fmt.Errorf("hash stream: %w", err)
	}
	return h.trim(hex.EncodeToString(d.Sum(nil))), nil
}

func (h *Hasher) trim(digest string) string {
	if h.Length > 0 && h.Length < len(digest) {
		return digest[:h.Length]
	}
	return digest
}
