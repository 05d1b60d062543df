package blobstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"shelf-go/internal/shelf"
)

// FileSystemStore keeps blobs as files:
//
//	<root>/
//	  posters/
//	    <sha256>
type FileSystemStore struct {
	root       string
	postersDir string
}

// NewFileSystemStore creates a store rooted at root, creating it if needed.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	postersDir := filepath.Join(root, "posters")
	if err := os.MkdirAll(postersDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create posters directory: %w", err)
	}
	return &FileSystemStore{root: root, postersDir: postersDir}, nil
}

// Put stores the blob and returns its key. Storing the same bytes twice is
// safe and yields the same key.
func (s *FileSystemStore) Put(r io.Reader, size int64) (string, error) {
	tmpFile, err := os.CreateTemp(s.postersDir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	h := newHash()
	written, err := io.Copy(io.MultiWriter(tmpFile, h), r)
	if err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	key := keyOf(h)
	destPath := filepath.Join(s.postersDir, key)
	if _, err := os.Stat(destPath); err == nil {
		// Already stored; the deferred cleanup drops the temp copy.
		return key, nil
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return key, nil
}

// Get writes the blob stored under key to w.
func (s *FileSystemStore) Get(key string, w io.Writer) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(s.postersDir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: blob %s", shelf.ErrNotFound, key)
		}
		return fmt.Errorf("failed to open blob: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}
	return nil
}

// Delete removes the blob stored under key. Missing blobs are ignored.
func (s *FileSystemStore) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.postersDir, key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the store directories are accessible.
func (s *FileSystemStore) ValidateSetup() error {
	for _, dir := range []string{s.root, s.postersDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("blob directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("blob path is not a directory: %s", dir)
		}
	}
	return nil
}

var _ shelf.BlobStore = (*FileSystemStore)(nil)
