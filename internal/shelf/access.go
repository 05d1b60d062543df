package shelf

import (
	"context"
	"io"
	"time"
)

// FileStat is the metadata needed to fingerprint a file.
type FileStat struct {
	Size    int64
	ModTime time.Time
}

// FileRef is a readable file obtained from a directory listing, a picker
// selection, or a resolved durable handle. Stat and Open may fail with
// ErrNotFound or ErrPermissionDenied even after the reference was granted.
type FileRef interface {
	// Name returns the base file name.
	Name() string

	// Stat returns fresh size and modification time.
	Stat(ctx context.Context) (FileStat, error)

	// Open opens the file's bytes for reading.
	Open(ctx context.Context) (io.ReadCloser, error)

	// Handle returns a durable reference that can be stored and resolved in a
	// later session, or "" when the file has none.
	Handle() string
}

// EntryKind distinguishes files from directories in a listing.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
)

// Entry is one immediate child of a directory.
type Entry struct {
	Name string
	Kind EntryKind
	File FileRef      // set when Kind == KindFile
	Dir  DirectoryRef // set when Kind == KindDirectory
}

// DirectoryRef is a granted directory that can enumerate its children.
type DirectoryRef interface {
	Name() string
	Entries(ctx context.Context) ([]Entry, error)
}

// FileAccess opens user-selected directories and files.
type FileAccess interface {
	// OpenDirectory resolves a raw path to a directory reference.
	OpenDirectory(ctx context.Context, rawPath string) (DirectoryRef, error)

	// OpenFile resolves a raw path to a file reference.
	OpenFile(ctx context.Context, rawPath string) (FileRef, error)
}

// HandleResolver is implemented by FileAccess variants that can turn a stored
// durable handle back into a file reference.
type HandleResolver interface {
	ResolveHandle(ctx context.Context, handle string) (FileRef, error)
}

// Capability describes what the host file access can do.
type Capability struct {
	// PersistentHandles is true when file handles survive across sessions.
	// When false, the access is picker-only and sources must be kept in the
	// transient SourceCache for the rest of the session.
	PersistentHandles bool
}

// ProbeCapability inspects a FileAccess implementation.
func ProbeCapability(access FileAccess) Capability {
	_, ok := access.(HandleResolver)
	return Capability{PersistentHandles: ok}
}

// SelectedFile is one file of a flat selection, with an optional
// slash-separated path relative to the selection root.
type SelectedFile struct {
	File         FileRef
	RelativePath string
}

// Thumbnail is the result of a poster capture. Image is empty when no frame
// could be captured; DurationSec is 0 when unknown.
type Thumbnail struct {
	Image       []byte
	DurationSec float64
}

// Thumbnailer captures a still image and the media duration from a video.
type Thumbnailer interface {
	Capture(ctx context.Context, src FileRef, offsetSec float64) (Thumbnail, error)
}

// BlobStore stores binary poster images.
type BlobStore interface {
	// Put stores size bytes read from r and returns the key they are stored under.
	Put(r io.Reader, size int64) (string, error)

	// Get writes the blob stored under key to w.
	Get(key string, w io.Writer) error

	// Delete removes the blob stored under key. Deleting a missing key is not an error.
	Delete(key string) error
}

// IgnoreMatcher decides whether an entry, by its path relative to the import
// root, should be skipped while walking.
type IgnoreMatcher interface {
	Match(relativePath string) bool
}
