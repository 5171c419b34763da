// ABOUTME: Content addressing for versions
// ABOUTME: SHA3-256 over the canonical payload followed by parent hashes in order

package contenthash

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/nainya/contentvc/pkg/payload"
)

// Size is the digest length in bytes
const Size = 32

// domain separates version digests from any other use of the same hash function
const domain = "contentvc/version/v1\x00"

// Hash identifies a version's content plus its lineage
type Hash [Size]byte

// Of computes the hash of a payload and its parent hashes.
// Parents are hashed in the order given: first parent, then merge parent.
func Of(p payload.Payload, parents ...Hash) Hash {
	h := sha3.New256()
	h.Write([]byte(domain))
	h.Write(p.Canonical())
	h.Write([]byte{byte(len(parents))})
	for _, parent := range parents {
		h.Write(parent[:])
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Parse decodes the hex form produced by String
func Parse(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("parse content hash: %w", err)
	}
	if len(b) != Size {
		return Hash{}, fmt.Errorf("parse content hash: want %d bytes, got %d", Size, len(b))
	}
	var out Hash
	copy(out[:], b)
	return out, nil
}

// String returns the lowercase hex form
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 8 hex characters
func (h Hash) Short() string {
	return hex.EncodeToString(h[:4])
}

// IsZero reports whether h is unset
func (h Hash) IsZero() bool {
	return h == Hash{}
}
