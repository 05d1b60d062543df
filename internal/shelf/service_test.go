package shelf_test

import (
	"context"
	"testing"
	"time"

	"shelf-go/internal/blobstore"
	"shelf-go/internal/database"
	"shelf-go/internal/model"
	"shelf-go/internal/shelf"
	"shelf-go/internal/testutil"
)

// testEnv bundles a service with handles on its collaborators.
type testEnv struct {
	svc    *shelf.ShelfService
	db     *database.SQLiteDatabase
	tree   *testutil.MockFileAccess
	picker *testutil.PickerFileAccess
	blobs  *blobstore.MemoryStore
	thumbs *testutil.FakeThumbnailer
	clock  *testutil.StubClock
	cache  *shelf.SourceCache
	events *testutil.EventRecorder
}

type envOption func(*envConfig)

type envConfig struct {
	picker bool
	opts   shelf.Options
}

func withPicker() envOption {
	return func(c *envConfig) { c.picker = true }
}

func withOptions(opts shelf.Options) envOption {
	return func(c *envConfig) { c.opts = opts }
}

func newTestEnv(t *testing.T, options ...envOption) *testEnv {
	t.Helper()
	cfg := &envConfig{}
	for _, o := range options {
		o(cfg)
	}

	recorder := testutil.NewEventRecorder()
	env := &testEnv{
		db:     testutil.NewTestDatabase(t, recorder),
		events: recorder,
		tree:   testutil.NewMockFileAccess(),
		blobs:  blobstore.NewMemoryStore(),
		thumbs: testutil.NewFakeThumbnailer(),
		clock:  testutil.FixedClock(),
		cache:  shelf.NewSourceCache(),
	}
	env.picker = testutil.NewPickerFileAccess(env.tree)

	var access shelf.FileAccess = env.tree
	if cfg.picker {
		access = env.picker
	}
	env.svc = shelf.NewShelfService(env.db, env.blobs, access, env.thumbs, env.cache,
		shelf.NewNopLogger(), env.clock, testutil.NewStubIDGenerator(), cfg.opts)
	return env
}

var modTime = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// addVideos creates files with distinct content under the tree.
func (e *testEnv) addVideos(paths ...string) {
	for _, p := range paths {
		e.tree.AddFile(p, []byte("content of "+p), modTime)
	}
}

func (e *testEnv) importDir(t *testing.T, dirPath string, opts shelf.ImportOptions) *shelf.ImportSummary {
	t.Helper()
	dir, err := e.svc.Access().OpenDirectory(context.Background(), dirPath)
	if err != nil {
		t.Fatalf("OpenDirectory(%s) error = %v", dirPath, err)
	}
	summary, err := e.svc.ImportDirectory(context.Background(), dir, opts)
	if err != nil {
		t.Fatalf("ImportDirectory() error = %v", err)
	}
	return summary
}

func (e *testEnv) openFile(t *testing.T, p string) shelf.FileRef {
	t.Helper()
	f, err := e.svc.Access().OpenFile(context.Background(), p)
	if err != nil {
		t.Fatalf("OpenFile(%s) error = %v", p, err)
	}
	return f
}

func (e *testEnv) video(t *testing.T, id string) *model.Video {
	t.Helper()
	v, err := e.svc.GetVideo(id)
	if err != nil {
		t.Fatalf("GetVideo(%s) error = %v", id, err)
	}
	return v
}

func videoTitles(videos []*model.Video) []string {
	out := make([]string, len(videos))
	for i, v := range videos {
		out[i] = v.Title
	}
	return out
}

func moduleTitles(modules []*model.Module) []string {
	out := make([]string, len(modules))
	for i, m := range modules {
		out[i] = m.Title
	}
	return out
}

func TestNewShelfService_Capability(t *testing.T) {
	if !newTestEnv(t).svc.Capability().PersistentHandles {
		t.Error("mock tree access should be persistent")
	}
	if newTestEnv(t, withPicker()).svc.Capability().PersistentHandles {
		t.Error("picker access should not be persistent")
	}
}
