package shelf_test

import (
	"testing"
	"time"

	"shelf-go/internal/shelf"
	"shelf-go/internal/testutil"
)

func TestSourceCache(t *testing.T) {
	tree := testutil.NewMockFileAccess()
	tree.AddFile("/a.mp4", []byte("a"), time.Unix(0, 0))
	tree.AddFile("/b.mp4", []byte("b"), time.Unix(0, 0))
	a := tree.MustOpenFile("/a.mp4")
	b := tree.MustOpenFile("/b.mp4")

	c := shelf.NewSourceCache()
	if _, ok := c.Get("v1"); ok {
		t.Fatal("empty cache returned an entry")
	}

	c.Put("v1", a)
	c.PutAll(map[string]shelf.FileRef{"v2": b, "v3": a})
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
	if got, ok := c.Get("v2"); !ok || got.Name() != "b.mp4" {
		t.Errorf("Get(v2) = %v, %v", got, ok)
	}

	c.Put("v1", b)
	if got, _ := c.Get("v1"); got.Name() != "b.mp4" {
		t.Errorf("Put should replace, got %s", got.Name())
	}

	c.Remove("v1")
	c.RemoveAll([]string{"v2", "missing"})
	if c.Len() != 1 {
		t.Fatalf("Len() after removals = %d, want 1", c.Len())
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
	c.Put("v4", a)
	if c.Len() != 1 {
		t.Errorf("cache unusable after Clear")
	}
}
