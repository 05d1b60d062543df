package shelf_test

import (
	"context"
	"testing"

	"shelf-go/internal/events"
	"shelf-go/internal/shelf"
)

func TestShelfService_ChangeEvents(t *testing.T) {
	env := newTestEnv(t)
	env.addVideos("/lib/c/01 a.mp4", "/lib/c/02 b.mp4")

	summary := env.importDir(t, "/lib/c", shelf.ImportOptions{})
	created := env.events.Find(events.TopicCourses, "created")
	if len(created) != 1 || created[0].IDs[0] != summary.Course.ID {
		t.Fatalf("courses/created events = %+v", created)
	}

	t.Run("relink publishes one batch", func(t *testing.T) {
		env.events.Reset()
		env.tree.MoveFile("/lib/c/01 a.mp4", "/moved/01 a.mp4")
		env.tree.MoveFile("/lib/c/02 b.mp4", "/moved/02 b.mp4")
		files := []shelf.FileRef{env.openFile(t, "/moved/01 a.mp4"), env.openFile(t, "/moved/02 b.mp4")}

		if _, err := env.svc.RelinkCourse(context.Background(), summary.Course.ID, files); err != nil {
			t.Fatalf("RelinkCourse() error = %v", err)
		}
		updated := env.events.Find(events.TopicVideos, "updated")
		if len(updated) != 1 {
			t.Fatalf("videos/updated events = %d, want 1", len(updated))
		}
		if len(updated[0].IDs) != 2 {
			t.Errorf("event ids = %v, want both videos", updated[0].IDs)
		}
	})

	t.Run("delete publishes course and videos", func(t *testing.T) {
		env.events.Reset()
		if err := env.svc.DeleteCourse(summary.Course.ID); err != nil {
			t.Fatalf("DeleteCourse() error = %v", err)
		}
		if got := env.events.Find(events.TopicCourses, "deleted"); len(got) != 1 {
			t.Errorf("courses/deleted events = %d, want 1", len(got))
		}
		deleted := env.events.Find(events.TopicVideos, "deleted")
		if len(deleted) != 1 || len(deleted[0].IDs) != 2 {
			t.Errorf("videos/deleted events = %+v", deleted)
		}
	})

	t.Run("failed import publishes nothing", func(t *testing.T) {
		env.events.Reset()
		env.tree.AddFile("/empty/readme.txt", []byte("x"), modTime)
		dir, err := env.svc.Access().OpenDirectory(context.Background(), "/empty")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := env.svc.ImportDirectory(context.Background(), dir, shelf.ImportOptions{}); err == nil {
			t.Fatal("expected error")
		}
		if got := env.events.Events(); len(got) != 0 {
			t.Errorf("events = %+v, want none", got)
		}
	})
}
