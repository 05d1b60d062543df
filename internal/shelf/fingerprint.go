package shelf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"shelf-go/internal/model"
)

// hashPrefixBytes is how much of a file is hashed when hashing is enabled.
const hashPrefixBytes = 1 << 20

// Fingerprinter computes file identity tuples.
type Fingerprinter struct {
	// Hash additionally records a SHA-256 of the first MiB of content.
	Hash bool
}

// Of stats f and returns its fingerprint.
func (fp Fingerprinter) Of(ctx context.Context, f FileRef) (model.Fingerprint, error) {
	st, err := f.Stat(ctx)
	if err != nil {
		return model.Fingerprint{}, fmt.Errorf("stat %s: %w", f.Name(), err)
	}
	out := model.Fingerprint{
		Name:         f.Name(),
		Size:         st.Size,
		LastModified: st.ModTime.UnixMilli(),
	}
	if !fp.Hash {
		return out, nil
	}

	r, err := f.Open(ctx)
	if err != nil {
		return model.Fingerprint{}, fmt.Errorf("open %s: %w", f.Name(), err)
	}
	defer r.Close()

	h := sha256.New()
	if _, err := io.CopyN(h, r, hashPrefixBytes); err != nil && err != io.EOF {
		return model.Fingerprint{}, fmt.Errorf("hashing %s: %w", f.Name(), err)
	}
	out.Hash = hex.EncodeToString(h.Sum(nil))
	return out, nil
}
