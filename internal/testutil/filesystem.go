package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"shelf-go/internal/shelf"
)

// MockFile is a file in the mock file tree.
type MockFile struct {
	Content []byte
	ModTime time.Time
}

// MockFileAccess is an in-memory file tree implementing shelf.FileAccess
// and shelf.HandleResolver. Paths are slash-separated and absolute
// ("/courses/Go/intro.mp4"). A file's handle is its path.
type MockFileAccess struct {
	mu     sync.Mutex
	files  map[string]*MockFile
	dirs   map[string]bool
	errors map[string]error
}

// NewMockFileAccess creates an empty tree containing only "/".
func NewMockFileAccess() *MockFileAccess {
	return &MockFileAccess{
		files:  make(map[string]*MockFile),
		dirs:   map[string]bool{"/": true},
		errors: make(map[string]error),
	}
}

func (m *MockFileAccess) addParents(p string) {
	for dir := path.Dir(p); !m.dirs[dir]; dir = path.Dir(dir) {
		m.dirs[dir] = true
	}
}

// AddDir adds a directory and its parents.
func (m *MockFileAccess) AddDir(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	m.addParents(p)
	m.dirs[p] = true
}

// AddFile adds or replaces a file, creating parent directories.
func (m *MockFileAccess) AddFile(p string, content []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	m.addParents(p)
	m.files[p] = &MockFile{Content: content, ModTime: modTime}
}

// RemoveFile deletes a file. References to it start failing with ErrNotFound.
func (m *MockFileAccess) RemoveFile(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path.Clean(p))
}

// MoveFile renames a file, keeping its content and modification time.
func (m *MockFileAccess) MoveFile(from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from, to = path.Clean(from), path.Clean(to)
	f, ok := m.files[from]
	if !ok {
		return
	}
	delete(m.files, from)
	m.addParents(to)
	m.files[to] = f
}

// SetError makes every access to p fail with err. A nil err clears it.
func (m *MockFileAccess) SetError(p string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errors, path.Clean(p))
		return
	}
	m.errors[path.Clean(p)] = err
}

func (m *MockFileAccess) lookup(p string) (*MockFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errors[p]; err != nil {
		return nil, err
	}
	f, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shelf.ErrNotFound, p)
	}
	return f, nil
}

func (m *MockFileAccess) OpenDirectory(ctx context.Context, rawPath string) (shelf.DirectoryRef, error) {
	return m.openDirectory(rawPath, false)
}

func (m *MockFileAccess) openDirectory(rawPath string, transient bool) (*mockDir, error) {
	p := path.Clean(rawPath)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errors[p]; err != nil {
		return nil, err
	}
	if !m.dirs[p] {
		return nil, fmt.Errorf("%w: %s", shelf.ErrNotFound, p)
	}
	return &mockDir{access: m, path: p, transient: transient}, nil
}

func (m *MockFileAccess) OpenFile(ctx context.Context, rawPath string) (shelf.FileRef, error) {
	return m.openFile(rawPath, false)
}

func (m *MockFileAccess) openFile(rawPath string, transient bool) (*mockFileRef, error) {
	p := path.Clean(rawPath)
	if _, err := m.lookup(p); err != nil {
		return nil, err
	}
	return &mockFileRef{access: m, path: p, transient: transient}, nil
}

// ResolveHandle returns a reference to the file at the handle's path.
func (m *MockFileAccess) ResolveHandle(ctx context.Context, handle string) (shelf.FileRef, error) {
	return m.openFile(handle, false)
}

// MustOpenFile opens p or panics. Intended for test setup.
func (m *MockFileAccess) MustOpenFile(p string) shelf.FileRef {
	f, err := m.openFile(p, false)
	if err != nil {
		panic(err)
	}
	return f
}

// PickerFileAccess exposes a MockFileAccess as a picker-only access: files
// carry no handle and stored handles cannot be resolved.
type PickerFileAccess struct {
	tree *MockFileAccess
}

func NewPickerFileAccess(tree *MockFileAccess) *PickerFileAccess {
	return &PickerFileAccess{tree: tree}
}

func (p *PickerFileAccess) OpenDirectory(ctx context.Context, rawPath string) (shelf.DirectoryRef, error) {
	return p.tree.openDirectory(rawPath, true)
}

func (p *PickerFileAccess) OpenFile(ctx context.Context, rawPath string) (shelf.FileRef, error) {
	return p.tree.openFile(rawPath, true)
}

// MustOpenFile opens p without a handle or panics.
func (p *PickerFileAccess) MustOpenFile(rawPath string) shelf.FileRef {
	f, err := p.tree.openFile(rawPath, true)
	if err != nil {
		panic(err)
	}
	return f
}

type mockFileRef struct {
	access    *MockFileAccess
	path      string
	transient bool
}

func (f *mockFileRef) Name() string { return path.Base(f.path) }

func (f *mockFileRef) Stat(ctx context.Context) (shelf.FileStat, error) {
	file, err := f.access.lookup(f.path)
	if err != nil {
		return shelf.FileStat{}, err
	}
	return shelf.FileStat{Size: int64(len(file.Content)), ModTime: file.ModTime}, nil
}

func (f *mockFileRef) Open(ctx context.Context) (io.ReadCloser, error) {
	file, err := f.access.lookup(f.path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

func (f *mockFileRef) Handle() string {
	if f.transient {
		return ""
	}
	return f.path
}

type mockDir struct {
	access    *MockFileAccess
	path      string
	transient bool
}

func (d *mockDir) Name() string { return path.Base(d.path) }

// Entries lists the immediate children.
func (d *mockDir) Entries(ctx context.Context) ([]shelf.Entry, error) {
	m := d.access
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errors[d.path]; err != nil {
		return nil, err
	}
	if !m.dirs[d.path] {
		return nil, fmt.Errorf("%w: %s", shelf.ErrNotFound, d.path)
	}

	var entries []shelf.Entry
	for p := range m.dirs {
		if p != "/" && path.Dir(p) == d.path {
			entries = append(entries, shelf.Entry{
				Name: path.Base(p),
				Kind: shelf.KindDirectory,
				Dir:  &mockDir{access: m, path: p, transient: d.transient},
			})
		}
	}
	for p := range m.files {
		if path.Dir(p) == d.path {
			entries = append(entries, shelf.Entry{
				Name: path.Base(p),
				Kind: shelf.KindFile,
				File: &mockFileRef{access: m, path: p, transient: d.transient},
			})
		}
	}
	// Reverse byte order, so tests notice when callers forget to sort.
	sort.Slice(entries, func(i, j int) bool {
		return strings.Compare(entries[i].Name, entries[j].Name) > 0
	})
	return entries, nil
}

var (
	_ shelf.FileAccess     = (*MockFileAccess)(nil)
	_ shelf.HandleResolver = (*MockFileAccess)(nil)
	_ shelf.FileAccess     = (*PickerFileAccess)(nil)
)
