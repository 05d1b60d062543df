// Package blobstore stores poster images. Blobs are content addressed: the
// key of a blob is the hex SHA-256 of its bytes, so identical posters share
// one stored copy.
package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"

	"shelf-go/internal/shelf"
)

// keyLength is the length of a hex encoded SHA-256 digest.
const keyLength = sha256.Size * 2

// ValidateKey rejects anything that is not a lower-case hex SHA-256 digest.
func ValidateKey(key string) error {
	if len(key) != keyLength {
		return fmt.Errorf("%w: invalid blob key %q", shelf.ErrNotFound, key)
	}
	for _, c := range key {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return fmt.Errorf("%w: invalid blob key %q", shelf.ErrNotFound, key)
		}
	}
	return nil
}

func newHash() hash.Hash {
	return sha256.New()
}

func keyOf(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
