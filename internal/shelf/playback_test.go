package shelf_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"shelf-go/internal/shelf"
)

func TestShelfService_LoadVideoSource(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, options ...envOption) (*testEnv, string) {
		t.Helper()
		env := newTestEnv(t, options...)
		env.addVideos("/lib/c/intro.mp4")
		summary := env.importDir(t, "/lib/c", shelf.ImportOptions{})
		return env, summary.Videos[0].ID
	}

	t.Run("stored handle", func(t *testing.T) {
		env, id := setup(t)
		env.cache.Clear()

		res, err := env.svc.LoadVideoSource(ctx, id)
		if err != nil {
			t.Fatalf("LoadVideoSource() error = %v", err)
		}
		if res.Status != shelf.SourceOK || res.FromCache || res.Source == nil {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("fingerprint drift is re-stamped", func(t *testing.T) {
		env, id := setup(t)
		later := modTime.Add(time.Hour)
		env.tree.AddFile("/lib/c/intro.mp4", []byte("re-encoded and longer"), later)

		res, err := env.svc.LoadVideoSource(ctx, id)
		if err != nil || res.Status != shelf.SourceOK {
			t.Fatalf("LoadVideoSource() = %+v, %v", res, err)
		}
		v := env.video(t, id)
		if v.Fingerprint.LastModified != later.UnixMilli() || v.Fingerprint.Size != int64(len("re-encoded and longer")) {
			t.Errorf("fingerprint not updated: %+v", v.Fingerprint)
		}
	})

	t.Run("missing file without cache", func(t *testing.T) {
		env, id := setup(t)
		env.cache.Clear()
		env.tree.RemoveFile("/lib/c/intro.mp4")

		res, err := env.svc.LoadVideoSource(ctx, id)
		if err != nil {
			t.Fatalf("LoadVideoSource() error = %v", err)
		}
		if res.Status != shelf.SourceMissing || res.Source != nil {
			t.Errorf("result = %+v", res)
		}
		if !env.video(t, id).Missing {
			t.Error("video should be marked missing")
		}

		env.addVideos("/lib/c/intro.mp4")
		res, _ = env.svc.LoadVideoSource(ctx, id)
		if res.Status != shelf.SourceOK {
			t.Fatalf("restored file status = %s", res.Status)
		}
		if env.video(t, id).Missing {
			t.Error("missing flag should clear once the file is back")
		}
	})

	t.Run("permission denied is not missing", func(t *testing.T) {
		env, id := setup(t)
		env.cache.Clear()
		env.tree.SetError("/lib/c/intro.mp4", shelf.ErrPermissionDenied)

		res, err := env.svc.LoadVideoSource(ctx, id)
		if err != nil {
			t.Fatalf("LoadVideoSource() error = %v", err)
		}
		if res.Status != shelf.SourceNoPermission {
			t.Errorf("status = %s, want no-permission", res.Status)
		}
		if env.video(t, id).Missing {
			t.Error("no-permission must not mark the video missing")
		}
	})

	t.Run("picker source from cache", func(t *testing.T) {
		env, id := setup(t, withPicker())

		res, err := env.svc.LoadVideoSource(ctx, id)
		if err != nil {
			t.Fatalf("LoadVideoSource() error = %v", err)
		}
		if res.Status != shelf.SourceOK || !res.FromCache {
			t.Errorf("result = %+v", res)
		}

		env.cache.Clear()
		res, _ = env.svc.LoadVideoSource(ctx, id)
		if res.Status != shelf.SourceMissing {
			t.Errorf("after session end status = %s, want missing", res.Status)
		}
	})

	t.Run("cached source with foreign fingerprint is rejected", func(t *testing.T) {
		env, id := setup(t, withPicker())
		env.addVideos("/other/unrelated.mp4")
		env.cache.Put(id, env.openFile(t, "/other/unrelated.mp4"))

		res, _ := env.svc.LoadVideoSource(ctx, id)
		if res.Status != shelf.SourceMissing {
			t.Errorf("status = %s, want missing", res.Status)
		}
	})

	t.Run("vanished cached source is evicted", func(t *testing.T) {
		env, id := setup(t, withPicker())
		env.tree.RemoveFile("/lib/c/intro.mp4")

		res, _ := env.svc.LoadVideoSource(ctx, id)
		if res.Status != shelf.SourceMissing {
			t.Errorf("status = %s, want missing", res.Status)
		}
		if _, ok := env.cache.Get(id); ok {
			t.Error("unreadable cached source should be evicted")
		}
	})

	t.Run("unknown video", func(t *testing.T) {
		env, _ := setup(t)
		if _, err := env.svc.LoadVideoSource(ctx, "nope"); !errors.Is(err, shelf.ErrVideoNotFound) {
			t.Errorf("expected ErrVideoNotFound, got %v", err)
		}
	})
}

func TestPlaybackSession(t *testing.T) {
	setup := func(t *testing.T) (*testEnv, string) {
		t.Helper()
		env := newTestEnv(t)
		env.addVideos("/lib/c/intro.mp4")
		summary := env.importDir(t, "/lib/c", shelf.ImportOptions{})
		return env, summary.Videos[0].ID
	}

	t.Run("play counts once per start", func(t *testing.T) {
		env, id := setup(t)
		session, err := env.svc.StartPlayback(id)
		if err != nil {
			t.Fatalf("StartPlayback() error = %v", err)
		}
		for i := 0; i < 3; i++ {
			if err := session.Play(); err != nil {
				t.Fatalf("Play() error = %v", err)
			}
		}
		if err := session.Pause(); err != nil {
			t.Fatalf("Pause() error = %v", err)
		}
		if err := session.Play(); err != nil {
			t.Fatalf("Play() error = %v", err)
		}

		p, _ := env.svc.GetProgress(id)
		if p.PlayCount != 2 {
			t.Errorf("PlayCount = %d, want 2", p.PlayCount)
		}
		if p.FirstStartedAt == nil || p.LastPlayedAt == nil {
			t.Errorf("timestamps not set: %+v", p)
		}
	})

	t.Run("ticks are throttled", func(t *testing.T) {
		env, id := setup(t)
		session, _ := env.svc.StartPlayback(id)

		if _, err := session.Tick(10, 600); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
		env.clock.Advance(time.Second)
		session.Tick(11, 600)

		p, _ := env.svc.GetProgress(id)
		if p.LastPositionSec != 10 {
			t.Errorf("position = %v, want 10 (second tick throttled)", p.LastPositionSec)
		}

		env.clock.Advance(time.Second)
		session.Tick(12, 600)
		p, _ = env.svc.GetProgress(id)
		if p.LastPositionSec != 12 {
			t.Errorf("position = %v, want 12", p.LastPositionSec)
		}

		env.clock.Advance(500 * time.Millisecond)
		session.Tick(13, 600)
		if err := session.Pause(); err != nil {
			t.Fatalf("Pause() error = %v", err)
		}
		p, _ = env.svc.GetProgress(id)
		if p.LastPositionSec != 13 {
			t.Errorf("position after pause = %v, want 13", p.LastPositionSec)
		}
	})

	t.Run("pause does not delay the next tick save", func(t *testing.T) {
		env, id := setup(t)
		session, _ := env.svc.StartPlayback(id)

		session.Tick(10, 600)
		env.clock.Advance(time.Second)
		session.Tick(11, 600)
		if err := session.Pause(); err != nil {
			t.Fatalf("Pause() error = %v", err)
		}

		env.clock.Advance(time.Second)
		session.Tick(12, 600)
		p, _ := env.svc.GetProgress(id)
		if p.LastPositionSec != 12 {
			t.Errorf("position = %v, want 12", p.LastPositionSec)
		}
	})

	t.Run("completion is sticky", func(t *testing.T) {
		env, id := setup(t)
		session, _ := env.svc.StartPlayback(id)

		completed, err := session.Tick(550, 600)
		if err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
		if !completed {
			t.Fatal("tick inside the window should complete")
		}
		env.clock.Advance(5 * time.Second)
		completed, _ = session.Tick(20, 600)
		if completed || !session.Completed() {
			t.Error("seeking back must not re-evaluate completion")
		}

		p, _ := env.svc.GetProgress(id)
		if !p.Completed || p.CompletedAt == nil {
			t.Errorf("progress = %+v", p)
		}
		if p.LastPositionSec != 20 {
			t.Errorf("position = %v, want 20", p.LastPositionSec)
		}
	})

	t.Run("end completes", func(t *testing.T) {
		env, id := setup(t)
		session, _ := env.svc.StartPlayback(id)
		if err := session.End(300); err != nil {
			t.Fatalf("End() error = %v", err)
		}
		p, _ := env.svc.GetProgress(id)
		if !p.Completed || p.LastPositionSec != 300 {
			t.Errorf("progress = %+v", p)
		}
	})

	t.Run("resume position", func(t *testing.T) {
		env, id := setup(t)
		if _, err := env.svc.SavePosition(id, 3); err != nil {
			t.Fatalf("SavePosition() error = %v", err)
		}
		session, _ := env.svc.StartPlayback(id)
		if _, ok := session.ResumePosition(); ok {
			t.Error("positions under the resume threshold start over")
		}

		env.svc.SavePosition(id, 95)
		session, _ = env.svc.StartPlayback(id)
		if pos, ok := session.ResumePosition(); !ok || pos != 95 {
			t.Errorf("ResumePosition() = %v, %v, want 95, true", pos, ok)
		}

		env.svc.MarkCompleted(id, 0)
		session, _ = env.svc.StartPlayback(id)
		if _, ok := session.ResumePosition(); ok {
			t.Error("completed videos start over")
		}
	})

	t.Run("reported duration", func(t *testing.T) {
		env, id := setup(t)
		session, _ := env.svc.StartPlayback(id)
		if err := session.ReportDuration(321.5); err != nil {
			t.Fatalf("ReportDuration() error = %v", err)
		}
		if got := env.video(t, id).DurationSec; got != 321.5 {
			t.Errorf("DurationSec = %v, want 321.5", got)
		}
		session.ReportDuration(322)
		if got := env.video(t, id).DurationSec; got != 321.5 {
			t.Errorf("sub-second drift should be ignored, got %v", got)
		}
	})

	t.Run("respects stored settings", func(t *testing.T) {
		env, id := setup(t)
		off := false
		if _, err := env.svc.UpdateSettings(shelf.SettingsPatch{AllowLastSecondsComplete: &off}); err != nil {
			t.Fatalf("UpdateSettings() error = %v", err)
		}
		session, _ := env.svc.StartPlayback(id)
		if completed, _ := session.Tick(580, 1000); completed {
			t.Error("tail window is disabled; 58% must not complete")
		}
	})
}
