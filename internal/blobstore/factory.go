package blobstore

import (
	"fmt"

	"shelf-go/internal/config"
	"shelf-go/internal/shelf"
)

// Store is a shelf.BlobStore whose backing storage can be checked up front.
type Store interface {
	shelf.BlobStore
	ValidateSetup() error
}

// NewBlobStoreFromConfig creates a Store based on the blobs config type.
func NewBlobStoreFromConfig(cfg config.BlobsConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem blob store requires root to be set")
		}
		store, err := NewFileSystemStore(cfg.Root)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob store type: %s", cfg.Type)
	}
}
