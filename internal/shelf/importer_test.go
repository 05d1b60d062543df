package shelf_test

import (
	"context"
	"errors"
	"path"
	"strings"
	"testing"

	"shelf-go/internal/fs"
	"shelf-go/internal/shelf"
)

func TestShelfService_ImportDirectory(t *testing.T) {
	t.Run("subdirectories become modules in natural order", func(t *testing.T) {
		env := newTestEnv(t)
		env.addVideos(
			"/lib/go_course/Lecture 1/2 Setup.mp4",
			"/lib/go_course/Lecture 1/1 Intro.mp4",
			"/lib/go_course/Lecture 1/slides.pdf",
			"/lib/go_course/readme.txt",
		)
		env.tree.AddDir("/lib/go_course/Lecture 2")

		summary := env.importDir(t, "/lib/go_course", shelf.ImportOptions{})
		if summary.Course.Title != "Go Course" {
			t.Errorf("course title = %q, want Go Course", summary.Course.Title)
		}

		detail, err := env.svc.GetCourse(summary.Course.ID)
		if err != nil {
			t.Fatalf("GetCourse() error = %v", err)
		}
		if got := moduleTitles(detail.Modules); !equalStrings(got, []string{"Lecture 1", "Lecture 2"}) {
			t.Fatalf("modules = %v, want [Lecture 1 Lecture 2]", got)
		}
		lecture1 := detail.ModuleVideos(detail.Modules[0].ID)
		if got := videoTitles(lecture1); !equalStrings(got, []string{"1 Intro", "2 Setup"}) {
			t.Errorf("Lecture 1 videos = %v", got)
		}
		if len(detail.ModuleVideos(detail.Modules[1].ID)) != 0 {
			t.Error("Lecture 2 should be empty")
		}
		if len(detail.ModuleVideos("")) != 0 {
			t.Error("root files are not imported when subdirectories exist")
		}

		v := lecture1[0]
		if v.RelativePath != "Lecture 1/1 Intro.mp4" {
			t.Errorf("RelativePath = %q", v.RelativePath)
		}
		if v.Handle != "/lib/go_course/Lecture 1/1 Intro.mp4" {
			t.Errorf("Handle = %q", v.Handle)
		}
		if v.Fingerprint.Name != "1 Intro.mp4" || v.Fingerprint.LastModified != modTime.UnixMilli() {
			t.Errorf("Fingerprint = %+v", v.Fingerprint)
		}
		if v.Order != 0 || lecture1[1].Order != 1 {
			t.Errorf("orders = %d, %d", v.Order, lecture1[1].Order)
		}
		if env.cache.Len() != 2 {
			t.Errorf("cache Len() = %d, want 2", env.cache.Len())
		}
	})

	t.Run("root videos without subdirectories", func(t *testing.T) {
		env := newTestEnv(t)
		env.addVideos("/lib/flat/10 end.mkv", "/lib/flat/2 middle.mp4", "/lib/flat/1 start.webm")

		summary := env.importDir(t, "/lib/flat", shelf.ImportOptions{})
		if len(summary.Modules) != 0 {
			t.Errorf("modules = %d, want 0", len(summary.Modules))
		}
		if got := videoTitles(summary.Videos); !equalStrings(got, []string{"1 Start", "2 Middle", "10 End"}) {
			t.Errorf("videos = %v", got)
		}
		for _, v := range summary.Videos {
			if v.ModuleID != "" {
				t.Errorf("%s: ModuleID = %q, want root", v.Title, v.ModuleID)
			}
		}
	})

	t.Run("captures posters and durations", func(t *testing.T) {
		env := newTestEnv(t)
		env.addVideos("/lib/c/a.mp4", "/lib/c/b.mp4", "/lib/c/c.mp4")
		env.thumbs.Durations = map[string]float64{"a.mp4": 42}
		env.thumbs.Fail = map[string]bool{"b.mp4": true}

		summary := env.importDir(t, "/lib/c", shelf.ImportOptions{GenerateThumbnails: true})
		a, b, c := summary.Videos[0], summary.Videos[1], summary.Videos[2]
		if a.DurationSec != 42 || a.PosterBlobKey == "" {
			t.Errorf("a = duration %v poster %q", a.DurationSec, a.PosterBlobKey)
		}
		if b.PosterBlobKey != "" || b.DurationSec != 0 {
			t.Errorf("failed capture should leave b without poster, got %+v", b)
		}
		if c.PosterBlobKey == "" {
			t.Error("c should have a poster")
		}
		if summary.Course.CoverBlobKey != a.PosterBlobKey {
			t.Errorf("cover = %q, want first poster %q", summary.Course.CoverBlobKey, a.PosterBlobKey)
		}
		if env.blobs.Len() != 2 {
			t.Errorf("blobs = %d, want 2", env.blobs.Len())
		}
		for _, off := range env.thumbs.Offsets() {
			if off != shelf.DefaultThumbnailOffsetSec {
				t.Errorf("offset = %v, want %v", off, shelf.DefaultThumbnailOffsetSec)
			}
		}
	})

	t.Run("nothing to import", func(t *testing.T) {
		env := newTestEnv(t)
		env.addVideos("/lib/empty/readme.txt")
		dir, _ := env.tree.OpenDirectory(context.Background(), "/lib/empty")

		_, err := env.svc.ImportDirectory(context.Background(), dir, shelf.ImportOptions{})
		if !errors.Is(err, shelf.ErrNothingToImport) {
			t.Fatalf("expected ErrNothingToImport, got %v", err)
		}
		courses, _ := env.svc.ListCourses()
		if len(courses) != 0 {
			t.Errorf("courses = %d, want 0", len(courses))
		}
	})

	t.Run("cancellation before commit stores nothing", func(t *testing.T) {
		env := newTestEnv(t)
		env.addVideos(
			"/lib/c/Lecture 1/1 a.mp4",
			"/lib/c/Lecture 1/2 b.mp4",
			"/lib/c/Lecture 2/3 c.mp4",
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		env.thumbs.OnCapture = func(name string) {
			if name == "2 b.mp4" {
				cancel()
			}
		}

		dir, _ := env.tree.OpenDirectory(ctx, "/lib/c")
		_, err := env.svc.ImportDirectory(ctx, dir, shelf.ImportOptions{GenerateThumbnails: true})
		if !errors.Is(err, shelf.ErrAborted) {
			t.Fatalf("expected ErrAborted, got %v", err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled in chain, got %v", err)
		}

		courses, _ := env.svc.ListCourses()
		if len(courses) != 0 {
			t.Errorf("courses = %d, want 0", len(courses))
		}
		if v, _ := env.db.FindVideo("id-3"); v != nil {
			t.Error("no video should be stored")
		}
		if env.blobs.Len() != 0 {
			t.Errorf("posters of an aborted import should be removed, %d left", env.blobs.Len())
		}
		if env.cache.Len() != 0 {
			t.Errorf("cache Len() = %d, want 0", env.cache.Len())
		}
	})

	t.Run("already cancelled context", func(t *testing.T) {
		env := newTestEnv(t)
		env.addVideos("/lib/c/a.mp4")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		dir, _ := env.tree.OpenDirectory(context.Background(), "/lib/c")

		if _, err := env.svc.ImportDirectory(ctx, dir, shelf.ImportOptions{}); !errors.Is(err, shelf.ErrAborted) {
			t.Fatalf("expected ErrAborted, got %v", err)
		}
	})

	t.Run("unreadable directory", func(t *testing.T) {
		env := newTestEnv(t)
		env.addVideos("/lib/c/Lecture 1/a.mp4")
		dir, _ := env.tree.OpenDirectory(context.Background(), "/lib/c")
		env.tree.SetError("/lib/c/Lecture 1", shelf.ErrPermissionDenied)

		_, err := env.svc.ImportDirectory(context.Background(), dir, shelf.ImportOptions{})
		if !errors.Is(err, shelf.ErrPermissionDenied) {
			t.Fatalf("expected ErrPermissionDenied, got %v", err)
		}
	})

	t.Run("ignore patterns", func(t *testing.T) {
		env := newTestEnv(t, withOptions(shelf.Options{Ignore: fs.NewIgnoreMatcher([]string{".*"})}))
		env.addVideos("/lib/c/a.mp4", "/lib/c/.hidden.mp4")

		summary := env.importDir(t, "/lib/c", shelf.ImportOptions{})
		if got := videoTitles(summary.Videos); !equalStrings(got, []string{"A"}) {
			t.Errorf("videos = %v, want [A]", got)
		}

		env.addVideos("/lib/d/keep.mp4", "/lib/d/drafts/x.mp4", "/lib/d/Part 1/b.mp4")
		override := fs.NewIgnoreMatcher([]string{"drafts"})
		summary = env.importDir(t, "/lib/d", shelf.ImportOptions{Ignore: override})
		if got := moduleTitles(summary.Modules); !equalStrings(got, []string{"Part 1"}) {
			t.Errorf("modules = %v, want [Part 1]", got)
		}
	})

	t.Run("picker access stores no handles", func(t *testing.T) {
		env := newTestEnv(t, withPicker())
		env.addVideos("/lib/c/a.mp4", "/lib/c/b.mp4")

		summary := env.importDir(t, "/lib/c", shelf.ImportOptions{})
		for _, v := range summary.Videos {
			if v.Handle != "" {
				t.Errorf("%s: Handle = %q, want empty", v.Title, v.Handle)
			}
			if _, ok := env.cache.Get(v.ID); !ok {
				t.Errorf("%s: source not cached", v.Title)
			}
		}
	})
}

func TestShelfService_ImportFiles(t *testing.T) {
	ctx := context.Background()

	t.Run("leading directory becomes module", func(t *testing.T) {
		env := newTestEnv(t)
		env.addVideos("/sel/Lecture 1/Intro.mp4", "/sel/Lecture 1/Setup.mp4", "/sel/Outro.mp4")
		files := []shelf.SelectedFile{
			{File: env.openFile(t, "/sel/Outro.mp4"), RelativePath: "Outro.mp4"},
			{File: env.openFile(t, "/sel/Lecture 1/Setup.mp4"), RelativePath: "Lecture 1/Setup.mp4"},
			{File: env.openFile(t, "/sel/Lecture 1/Intro.mp4"), RelativePath: "Lecture 1/Intro.mp4"},
		}

		summary, err := env.svc.ImportFiles(ctx, files, shelf.ImportOptions{})
		if err != nil {
			t.Fatalf("ImportFiles() error = %v", err)
		}
		if summary.Course.Title != shelf.ImportedCourseTitle {
			t.Errorf("course title = %q", summary.Course.Title)
		}

		detail, _ := env.svc.GetCourse(summary.Course.ID)
		if got := moduleTitles(detail.Modules); !equalStrings(got, []string{"Lecture 1"}) {
			t.Fatalf("modules = %v", got)
		}
		if got := videoTitles(detail.ModuleVideos(detail.Modules[0].ID)); !equalStrings(got, []string{"Intro", "Setup"}) {
			t.Errorf("Lecture 1 videos = %v", got)
		}
		root := detail.ModuleVideos("")
		if got := videoTitles(root); !equalStrings(got, []string{"Outro"}) {
			t.Errorf("root videos = %v", got)
		}
		if root[0].RelativePath != "Outro.mp4" {
			t.Errorf("RelativePath = %q", root[0].RelativePath)
		}
	})

	t.Run("nested segments join into the title", func(t *testing.T) {
		env := newTestEnv(t)
		env.addVideos("/sel/part_1/chapter-2/clip.mp4")
		files := []shelf.SelectedFile{
			{File: env.openFile(t, "/sel/part_1/chapter-2/clip.mp4"), RelativePath: `part_1\chapter-2\clip.mp4`},
		}
		summary, err := env.svc.ImportFiles(ctx, files, shelf.ImportOptions{})
		if err != nil {
			t.Fatalf("ImportFiles() error = %v", err)
		}
		if got := moduleTitles(summary.Modules); !equalStrings(got, []string{"Part 1"}) {
			t.Errorf("modules = %v", got)
		}
		if summary.Videos[0].Title != "Chapter 2 • Clip" {
			t.Errorf("title = %q", summary.Videos[0].Title)
		}
	})

	t.Run("directories with the same title stay separate modules", func(t *testing.T) {
		env := newTestEnv(t)
		rels := []string{"Season.1/a.mp4", "Season.2/b.mp4", "Week_1/c.mp4", "Week 1/d.mp4", "season.1/e.mp4"}
		var files []shelf.SelectedFile
		for _, rel := range rels {
			env.addVideos("/sel/" + rel)
			files = append(files, shelf.SelectedFile{File: env.openFile(t, "/sel/"+rel), RelativePath: rel})
		}

		summary, err := env.svc.ImportFiles(ctx, files, shelf.ImportOptions{})
		if err != nil {
			t.Fatalf("ImportFiles() error = %v", err)
		}
		detail, _ := env.svc.GetCourse(summary.Course.ID)
		if got := len(detail.Modules); got != 4 {
			t.Fatalf("got %d modules %v, want 4", got, moduleTitles(detail.Modules))
		}

		perDir := make(map[string]int)
		for _, m := range detail.Modules {
			videos := detail.ModuleVideos(m.ID)
			dir := strings.ToLower(path.Dir(videos[0].RelativePath))
			for i, v := range videos {
				if got := strings.ToLower(path.Dir(v.RelativePath)); got != dir {
					t.Errorf("module %q mixes %s and %s", m.Title, dir, got)
				}
				if v.Order != i {
					t.Errorf("module %q video %q order = %d, want %d", m.Title, v.Title, v.Order, i)
				}
			}
			perDir[dir] = len(videos)
		}
		want := map[string]int{"season.1": 2, "season.2": 1, "week_1": 1, "week 1": 1}
		for dir, n := range want {
			if perDir[dir] != n {
				t.Errorf("module %s has %d videos, want %d", dir, perDir[dir], n)
			}
		}
	})

	t.Run("module inferred from filename prefix", func(t *testing.T) {
		env := newTestEnv(t)
		env.addVideos("/sel/Basics - Intro.mp4", "/sel/basics - Setup.mp4", "/sel/Advanced__Closures.mp4", "/sel/Outro.mp4", "/sel/01 - Numbers.mp4")
		var files []shelf.SelectedFile
		for _, p := range []string{"/sel/Outro.mp4", "/sel/basics - Setup.mp4", "/sel/Basics - Intro.mp4", "/sel/Advanced__Closures.mp4", "/sel/01 - Numbers.mp4"} {
			files = append(files, shelf.SelectedFile{File: env.openFile(t, p)})
		}

		summary, err := env.svc.ImportFiles(ctx, files, shelf.ImportOptions{})
		if err != nil {
			t.Fatalf("ImportFiles() error = %v", err)
		}
		detail, _ := env.svc.GetCourse(summary.Course.ID)
		if got := moduleTitles(detail.Modules); !equalStrings(got, []string{"Advanced", "Basics"}) {
			t.Fatalf("modules = %v, want [Advanced Basics]", got)
		}
		if n := len(detail.ModuleVideos(detail.Modules[1].ID)); n != 2 {
			t.Errorf("Basics videos = %d, want 2 (case-insensitive grouping)", n)
		}
		if n := len(detail.ModuleVideos("")); n != 2 {
			t.Errorf("root videos = %d, want 2", n)
		}
	})

	t.Run("non-video files are skipped", func(t *testing.T) {
		env := newTestEnv(t)
		env.addVideos("/sel/notes.txt")
		files := []shelf.SelectedFile{{File: env.openFile(t, "/sel/notes.txt")}}
		if _, err := env.svc.ImportFiles(ctx, files, shelf.ImportOptions{}); !errors.Is(err, shelf.ErrNothingToImport) {
			t.Fatalf("expected ErrNothingToImport, got %v", err)
		}
	})

	t.Run("missing file aborts without records", func(t *testing.T) {
		env := newTestEnv(t)
		env.addVideos("/sel/a.mp4", "/sel/b.mp4")
		files := []shelf.SelectedFile{{File: env.openFile(t, "/sel/a.mp4")}, {File: env.openFile(t, "/sel/b.mp4")}}
		env.tree.RemoveFile("/sel/b.mp4")

		if _, err := env.svc.ImportFiles(ctx, files, shelf.ImportOptions{GenerateThumbnails: true}); !errors.Is(err, shelf.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		courses, _ := env.svc.ListCourses()
		if len(courses) != 0 {
			t.Errorf("courses = %d, want 0", len(courses))
		}
		if env.blobs.Len() != 0 {
			t.Errorf("blobs = %d, want 0", env.blobs.Len())
		}
	})
}
