package testutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// FingerprintHashBytes is how much of a file a hashing Fingerprinter reads.
const FingerprintHashBytes = 1 << 20

// BlobKey returns the key a content-addressed blob store assigns to data.
func BlobKey(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// FingerprintHash returns the Fingerprint.Hash expected for a file holding content.
func FingerprintHash(content []byte) string {
	if len(content) > FingerprintHashBytes {
		content = content[:FingerprintHashBytes]
	}
	return BlobKey(content)
}
