package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"shelf-go/internal/config"
	"shelf-go/internal/shelf"
)

// mapError translates OS errors into the shelf access sentinels.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", shelf.ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", shelf.ErrPermissionDenied, err)
	default:
		return err
	}
}

// OSAccess opens files on the local filesystem. A file's durable handle is
// its absolute path, so it can be resolved again in a later session.
type OSAccess struct{}

func NewOSAccess() *OSAccess {
	return &OSAccess{}
}

// OpenDirectory resolves rawPath to a directory.
func (a *OSAccess) OpenDirectory(ctx context.Context, rawPath string) (shelf.DirectoryRef, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, mapError(err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absPath)
	}
	return &Directory{path: absPath}, nil
}

// OpenFile resolves rawPath to a regular file.
func (a *OSAccess) OpenFile(ctx context.Context, rawPath string) (shelf.FileRef, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	return openRegular(absPath)
}

// ResolveHandle turns a stored handle back into a file reference.
func (a *OSAccess) ResolveHandle(ctx context.Context, handle string) (shelf.FileRef, error) {
	if !filepath.IsAbs(handle) {
		return nil, fmt.Errorf("%w: handle is not an absolute path: %q", shelf.ErrNotFound, handle)
	}
	return openRegular(handle)
}

func openRegular(absPath string) (*File, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, mapError(err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", shelf.ErrNotFound, absPath)
	}
	return &File{path: absPath}, nil
}

// File is a file on the local filesystem.
type File struct {
	path      string
	transient bool
}

func (f *File) Name() string { return filepath.Base(f.path) }

// Path returns the absolute path of the file.
func (f *File) Path() string { return f.path }

func (f *File) Stat(ctx context.Context) (shelf.FileStat, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return shelf.FileStat{}, mapError(err)
	}
	return shelf.FileStat{Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (f *File) Open(ctx context.Context) (io.ReadCloser, error) {
	r, err := os.Open(f.path)
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}

// Handle returns the absolute path, or "" for files obtained through a
// picker-only access.
func (f *File) Handle() string {
	if f.transient {
		return ""
	}
	return f.path
}

// Directory is a directory on the local filesystem.
type Directory struct {
	path      string
	transient bool
}

func (d *Directory) Name() string { return filepath.Base(d.path) }

// Entries lists regular files and directories. Symlinks are followed;
// other special files are skipped.
func (d *Directory) Entries(ctx context.Context) ([]shelf.Entry, error) {
	dirEntries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, mapError(err)
	}

	entries := make([]shelf.Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		p := filepath.Join(d.path, de.Name())
		mode := de.Type()
		if mode&fs.ModeSymlink != 0 {
			info, err := os.Stat(p)
			if err != nil {
				// Dangling link.
				continue
			}
			mode = info.Mode().Type()
		}

		switch {
		case mode.IsDir():
			entries = append(entries, shelf.Entry{
				Name: de.Name(),
				Kind: shelf.KindDirectory,
				Dir:  &Directory{path: p, transient: d.transient},
			})
		case mode.IsRegular():
			entries = append(entries, shelf.Entry{
				Name: de.Name(),
				Kind: shelf.KindFile,
				File: &File{path: p, transient: d.transient},
			})
		}
	}
	return entries, nil
}

// PickerAccess opens local files but never hands out durable handles, the
// way a sandboxed file picker behaves. Selected files stay playable for the
// session through the source cache only.
type PickerAccess struct {
	os *OSAccess
}

func NewPickerAccess() *PickerAccess {
	return &PickerAccess{os: NewOSAccess()}
}

func (a *PickerAccess) OpenDirectory(ctx context.Context, rawPath string) (shelf.DirectoryRef, error) {
	dir, err := a.os.OpenDirectory(ctx, rawPath)
	if err != nil {
		return nil, err
	}
	d := dir.(*Directory)
	d.transient = true
	return d, nil
}

func (a *PickerAccess) OpenFile(ctx context.Context, rawPath string) (shelf.FileRef, error) {
	f, err := a.os.OpenFile(ctx, rawPath)
	if err != nil {
		return nil, err
	}
	file := f.(*File)
	file.transient = true
	return file, nil
}

// NewAccessFromConfig creates the file access selected by the filesystem mode.
func NewAccessFromConfig(cfg config.FilesystemConfig) (shelf.FileAccess, error) {
	switch cfg.Mode {
	case "", "persistent":
		return NewOSAccess(), nil
	case "picker":
		return NewPickerAccess(), nil
	default:
		return nil, fmt.Errorf("unknown filesystem mode: %s", cfg.Mode)
	}
}

var (
	_ shelf.FileAccess     = (*OSAccess)(nil)
	_ shelf.HandleResolver = (*OSAccess)(nil)
	_ shelf.FileAccess     = (*PickerAccess)(nil)
	_ shelf.FileRef        = (*File)(nil)
	_ shelf.DirectoryRef   = (*Directory)(nil)
)
