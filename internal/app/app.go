package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"shelf-go/internal/blobstore"
	"shelf-go/internal/config"
	"shelf-go/internal/database"
	"shelf-go/internal/events"
	"shelf-go/internal/fs"
	"shelf-go/internal/model"
	"shelf-go/internal/shelf"
	"shelf-go/internal/thumbnail"
)

// watchedTopics are logged as they are published.
var watchedTopics = []string{
	events.TopicCourses,
	events.TopicVideos,
	events.TopicProgress,
	events.TopicNotes,
	events.TopicSettings,
}

// ShelfApp is the application layer between the CLI and ShelfService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the session lifecycle on Close.
type ShelfApp struct {
	cfg     *config.Config
	db      *database.SQLiteDatabase
	blobs   blobstore.Store
	hub     *events.Hub
	cache   *shelf.SourceCache
	service *shelf.ShelfService
	logger  *slogAdapter
	op      *Operation
	logFile *os.File

	unsubscribe []func()
	watchers    sync.WaitGroup
}

// NewShelfApp creates a fully wired ShelfApp from the given config.
// operation identifies the CLI command being run (e.g. "ImportDirectory").
// The caller must call Close when done.
func NewShelfApp(cfg *config.Config, operation, parameters string) (*ShelfApp, error) {
	access, err := fs.NewAccessFromConfig(cfg.Filesystem)
	if err != nil {
		return nil, fmt.Errorf("creating file access: %w", err)
	}

	thumbs, err := thumbnail.NewThumbnailerFromConfig(cfg.Thumbnails)
	if err != nil {
		return nil, fmt.Errorf("creating thumbnailer: %w", err)
	}

	blobs, err := blobstore.NewBlobStoreFromConfig(cfg.Blobs)
	if err != nil {
		return nil, fmt.Errorf("creating blob store: %w", err)
	}
	if err := blobs.ValidateSetup(); err != nil {
		return nil, fmt.Errorf("validating blob store: %w", err)
	}

	hub := events.NewHub()
	db, err := database.NewDatabaseFromConfig(cfg.Database, hub)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	consoleLevel, err := parseLevel(cfg.LogLevel)
	if err != nil {
		db.Close()
		return nil, err
	}
	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID, consoleLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	cache := shelf.NewSourceCache()
	svc := shelf.NewShelfService(db, blobs, access, thumbs, cache, adapter, shelf.RealClock{}, shelf.UUIDGenerator{}, shelf.Options{
		ThumbnailOffsetSec: cfg.Thumbnails.OffsetSec,
		HashFingerprints:   cfg.Filesystem.HashFingerprints,
		Ignore:             fs.NewIgnoreMatcher(cfg.Filesystem.Ignore),
	})

	a := &ShelfApp{
		cfg:     cfg,
		db:      db,
		blobs:   blobs,
		hub:     hub,
		cache:   cache,
		service: svc,
		logger:  adapter,
		op:      NewOperation(operation, parameters),
		logFile: logFile,
	}
	a.watchChanges()
	return a, nil
}

// watchChanges logs every committed change until Close.
func (a *ShelfApp) watchChanges() {
	for _, topic := range watchedTopics {
		ch, unsub := a.hub.Subscribe(topic)
		a.unsubscribe = append(a.unsubscribe, unsub)
		a.watchers.Add(1)
		go func() {
			defer a.watchers.Done()
			for ev := range ch {
				a.logger.Debug("library changed", "topic", ev.Topic, "type", ev.Type, "ids", strings.Join(ev.IDs, ","))
			}
		}()
	}
}

// Service returns the underlying service for read-only queries.
func (a *ShelfApp) Service() *shelf.ShelfService {
	return a.service
}

// Events returns the change notification hub.
func (a *ShelfApp) Events() *events.Hub {
	return a.hub
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for library-mutating commands.
func (a *ShelfApp) persistOperation() error {
	if a.op.Persisted() {
		return nil
	}
	dbOp, err := a.db.CreateOperation(a.op.Name, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// mutate runs fn as part of the persisted operation and records its outcome.
func (a *ShelfApp) mutate(fn func() error) error {
	if err := a.persistOperation(); err != nil {
		return err
	}
	err := fn()
	a.op.Record(err)
	return err
}

// ImportDirectory imports the directory at rawPath as a course. Patterns
// from the directory's ignore file are added to the configured ones.
func (a *ShelfApp) ImportDirectory(ctx context.Context, rawPath string, generateThumbnails bool) (*shelf.ImportSummary, error) {
	var summary *shelf.ImportSummary
	err := a.mutate(func() error {
		absPath, err := filepath.Abs(rawPath)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		dir, err := a.service.Access().OpenDirectory(ctx, absPath)
		if err != nil {
			return fmt.Errorf("opening directory: %w", err)
		}
		ignore, err := fs.LoadIgnoreMatcher(absPath, a.cfg.Filesystem.Ignore)
		if err != nil {
			return err
		}
		summary, err = a.service.ImportDirectory(ctx, dir, shelf.ImportOptions{
			GenerateThumbnails: generateThumbnails,
			Ignore:             ignore,
		})
		return err
	})
	return summary, err
}

// ImportFiles imports a flat list of files as one course. When base is set,
// each file's path relative to base drives module grouping.
func (a *ShelfApp) ImportFiles(ctx context.Context, base string, rawPaths []string, generateThumbnails bool) (*shelf.ImportSummary, error) {
	var summary *shelf.ImportSummary
	err := a.mutate(func() error {
		selected, err := a.selectFiles(ctx, base, rawPaths)
		if err != nil {
			return err
		}
		summary, err = a.service.ImportFiles(ctx, selected, shelf.ImportOptions{GenerateThumbnails: generateThumbnails})
		return err
	})
	return summary, err
}

func (a *ShelfApp) selectFiles(ctx context.Context, base string, rawPaths []string) ([]shelf.SelectedFile, error) {
	var absBase string
	if base != "" {
		var err error
		if absBase, err = filepath.Abs(base); err != nil {
			return nil, fmt.Errorf("resolving base: %w", err)
		}
	}

	selected := make([]shelf.SelectedFile, 0, len(rawPaths))
	for _, raw := range rawPaths {
		absPath, err := filepath.Abs(raw)
		if err != nil {
			return nil, fmt.Errorf("resolving path: %w", err)
		}
		f, err := a.service.Access().OpenFile(ctx, absPath)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", raw, err)
		}
		selected = append(selected, shelf.SelectedFile{File: f, RelativePath: relativeTo(absBase, absPath)})
	}
	return selected, nil
}

// relativeTo returns absPath relative to absBase with forward slashes, or ""
// when there is no base or the path lies outside it.
func relativeTo(absBase, absPath string) string {
	if absBase == "" {
		return ""
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.ToSlash(rel)
}

func (a *ShelfApp) openFiles(ctx context.Context, rawPaths []string) ([]shelf.FileRef, error) {
	files := make([]shelf.FileRef, 0, len(rawPaths))
	for _, raw := range rawPaths {
		f, err := a.service.Access().OpenFile(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", raw, err)
		}
		files = append(files, f)
	}
	return files, nil
}

// RelinkVideo points a video at the file at rawPath.
func (a *ShelfApp) RelinkVideo(ctx context.Context, videoID, rawPath string) (*model.Video, error) {
	var video *model.Video
	err := a.mutate(func() error {
		files, err := a.openFiles(ctx, []string{rawPath})
		if err != nil {
			return err
		}
		video, err = a.service.RelinkVideo(ctx, videoID, files[0])
		return err
	})
	return video, err
}

// RelinkCourse matches the files at rawPaths against a course's videos.
func (a *ShelfApp) RelinkCourse(ctx context.Context, courseID string, rawPaths []string) (*shelf.RelinkSummary, error) {
	var summary *shelf.RelinkSummary
	err := a.mutate(func() error {
		files, err := a.openFiles(ctx, rawPaths)
		if err != nil {
			return err
		}
		summary, err = a.service.RelinkCourse(ctx, courseID, files)
		return err
	})
	return summary, err
}

// Play resolves a playable source for a video and counts a playback start.
// The returned session is nil unless the source is available.
func (a *ShelfApp) Play(ctx context.Context, videoID string) (*shelf.SourceResult, *shelf.PlaybackSession, error) {
	var (
		result  *shelf.SourceResult
		session *shelf.PlaybackSession
	)
	err := a.mutate(func() error {
		var err error
		result, err = a.service.LoadVideoSource(ctx, videoID)
		if err != nil || result.Status != shelf.SourceOK {
			return err
		}
		if session, err = a.service.StartPlayback(videoID); err != nil {
			return err
		}
		return session.Play()
	})
	return result, session, err
}

// ReportPosition records a playback position and applies the completion
// policy. It returns true when the position completed the video.
func (a *ShelfApp) ReportPosition(videoID string, positionSec, durationSec float64) (bool, error) {
	var completed bool
	err := a.mutate(func() error {
		session, err := a.service.StartPlayback(videoID)
		if err != nil {
			return err
		}
		if durationSec > 0 {
			if err := session.ReportDuration(durationSec); err != nil {
				return err
			}
		} else {
			durationSec = session.Video().DurationSec
		}
		if completed, err = session.Tick(positionSec, durationSec); err != nil {
			return err
		}
		return session.Flush()
	})
	return completed, err
}

// MarkCompleted marks a video as watched.
func (a *ShelfApp) MarkCompleted(videoID string) error {
	return a.mutate(func() error {
		video, err := a.service.GetVideo(videoID)
		if err != nil {
			return err
		}
		_, err = a.service.MarkCompleted(videoID, video.DurationSec)
		return err
	})
}

// ResetProgress forgets a video's progress.
func (a *ShelfApp) ResetProgress(videoID string) error {
	return a.mutate(func() error {
		if _, err := a.service.GetVideo(videoID); err != nil {
			return err
		}
		return a.service.ResetProgress(videoID)
	})
}

// SetNote replaces a video's note.
func (a *ShelfApp) SetNote(videoID, markdown string) (*model.Note, error) {
	var note *model.Note
	err := a.mutate(func() error {
		var err error
		note, err = a.service.UpsertNote(videoID, markdown)
		return err
	})
	return note, err
}

// RenameCourse changes a course's title.
func (a *ShelfApp) RenameCourse(courseID, title string) (*model.Course, error) {
	var course *model.Course
	err := a.mutate(func() error {
		var err error
		course, err = a.service.UpdateCourse(courseID, shelf.CoursePatch{Title: &title})
		return err
	})
	return course, err
}

// DeleteCourse removes a course and everything attached to it.
func (a *ShelfApp) DeleteCourse(courseID string) error {
	return a.mutate(func() error {
		return a.service.DeleteCourse(courseID)
	})
}

// UpdateSettings changes the completion policy.
func (a *ShelfApp) UpdateSettings(patch shelf.SettingsPatch) (model.Settings, error) {
	var settings model.Settings
	err := a.mutate(func() error {
		var err error
		settings, err = a.service.UpdateSettings(patch)
		return err
	})
	return settings, err
}

// Close finalizes the operation and closes all resources. The session
// source cache is cleared.
func (a *ShelfApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	a.cache.Clear()

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	for _, unsub := range a.unsubscribe {
		unsub()
	}
	a.watchers.Wait()

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
