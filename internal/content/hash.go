package content

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hasher computes the digest used to detect identical content.
type Hasher interface {
	Hash(content string) string
}

// SHA256Hasher hashes content with SHA-256.
type SHA256Hasher struct{}

// Hash returns the lowercase hex SHA-256 of content.
func (SHA256Hasher) Hash(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// Blake3Hasher hashes content with BLAKE3-256.
type Blake3Hasher struct{}

// Hash returns the lowercase hex BLAKE3 digest of content.
func (Blake3Hasher) Hash(content string) string {
	h := blake3.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// NewHasher returns the hasher registered under name.
// Hashes from different algorithms never match, so switching an existing
// bucket to another algorithm disables deduplication against older versions.
func NewHasher(name string) (Hasher, error) {
	switch name {
	case "", "sha256":
		return SHA256Hasher{}, nil
	case "blake3":
		return Blake3Hasher{}, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", name)
	}
}
