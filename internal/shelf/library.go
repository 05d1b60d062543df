package shelf

import (
	"fmt"
	"io"
	"strings"

	"shelf-go/internal/model"
)

// CourseDetail is a course with its modules, videos and recorded progress.
type CourseDetail struct {
	Course   *model.Course
	Modules  []*model.Module
	Videos   []*model.Video
	Progress map[string]*model.Progress // keyed by video id; absent means no progress
}

// Rollup computes the course's progress summary.
func (d *CourseDetail) Rollup() CourseProgress {
	return ComputeCourseProgress(d.Videos, d.Progress)
}

// ModuleVideos returns the videos of a module in order; "" selects root-level videos.
func (d *CourseDetail) ModuleVideos(moduleID string) []*model.Video {
	var out []*model.Video
	for _, v := range d.Videos {
		if v.ModuleID == moduleID {
			out = append(out, v)
		}
	}
	return out
}

// ListCourses returns every course with its contents, most recently updated first.
func (s *ShelfService) ListCourses() ([]*CourseDetail, error) {
	courses, err := s.database.ListCourses()
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	details := make([]*CourseDetail, 0, len(courses))
	for _, c := range courses {
		d, err := s.courseDetail(c)
		if err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, nil
}

// GetCourse returns one course with its contents.
func (s *ShelfService) GetCourse(courseID string) (*CourseDetail, error) {
	c, err := s.findCourse(courseID)
	if err != nil {
		return nil, err
	}
	return s.courseDetail(c)
}

func (s *ShelfService) findCourse(courseID string) (*model.Course, error) {
	c, err := s.database.FindCourse(courseID)
	if err != nil {
		return nil, fmt.Errorf("finding course: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCourseNotFound, courseID)
	}
	return c, nil
}

func (s *ShelfService) courseDetail(c *model.Course) (*CourseDetail, error) {
	modules, err := s.database.FindModulesByCourse(c.ID)
	if err != nil {
		return nil, fmt.Errorf("finding modules: %w", err)
	}
	videos, err := s.database.FindVideosByCourse(c.ID)
	if err != nil {
		return nil, fmt.Errorf("finding videos: %w", err)
	}
	progress, err := s.database.FindProgressByCourse(c.ID)
	if err != nil {
		return nil, fmt.Errorf("finding progress: %w", err)
	}

	d := &CourseDetail{
		Course:   c,
		Modules:  modules,
		Videos:   videos,
		Progress: make(map[string]*model.Progress, len(progress)),
	}
	for _, p := range progress {
		d.Progress[p.VideoID] = p
	}
	return d, nil
}

// GetVideo returns a single video.
func (s *ShelfService) GetVideo(videoID string) (*model.Video, error) {
	v, err := s.database.FindVideo(videoID)
	if err != nil {
		return nil, fmt.Errorf("finding video: %w", err)
	}
	if v == nil {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
	}
	return v, nil
}

// ContinueWatching returns unfinished videos across the library.
func (s *ShelfService) ContinueWatching(limit int) ([]ContinueItem, error) {
	courses, err := s.ListCourses()
	if err != nil {
		return nil, err
	}
	return SelectContinueWatching(courses, limit), nil
}

// CoursePatch lists course fields to change; nil fields are left alone.
type CoursePatch struct {
	Title        *string
	Description  *string
	CoverBlobKey *string
}

// UpdateCourse applies patch to a course. A replaced cover image is deleted
// once nothing references it.
func (s *ShelfService) UpdateCourse(courseID string, patch CoursePatch) (*model.Course, error) {
	c, err := s.findCourse(courseID)
	if err != nil {
		return nil, err
	}
	oldCover := c.CoverBlobKey

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, fmt.Errorf("course title cannot be empty")
		}
		c.Title = title
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	if patch.CoverBlobKey != nil {
		c.CoverBlobKey = *patch.CoverBlobKey
	}
	c.UpdatedAt = s.clock.Now()

	if err := s.database.UpdateCourse(c); err != nil {
		return nil, fmt.Errorf("updating course: %w", err)
	}
	if oldCover != "" && oldCover != c.CoverBlobKey {
		s.discardBlobs([]string{oldCover})
	}
	return c, nil
}

// DeleteCourse removes a course with its modules, videos, progress and notes,
// then deletes poster blobs nothing else references.
func (s *ShelfService) DeleteCourse(courseID string) error {
	if _, err := s.findCourse(courseID); err != nil {
		return err
	}
	videos, err := s.database.FindVideosByCourse(courseID)
	if err != nil {
		return fmt.Errorf("finding videos: %w", err)
	}

	orphaned, err := s.database.DeleteCourse(courseID)
	if err != nil {
		return fmt.Errorf("deleting course: %w", err)
	}

	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
	}
	s.cache.RemoveAll(ids)

	for _, key := range orphaned {
		if err := s.blobs.Delete(key); err != nil {
			s.logger.Warn("deleting poster", "key", key, "error", err)
		}
	}

	s.logger.Info("course deleted", "course_id", courseID, "videos", len(videos), "blobs", len(orphaned))
	return nil
}

// LoadPoster writes the poster stored under key to w.
func (s *ShelfService) LoadPoster(key string, w io.Writer) error {
	if key == "" {
		return fmt.Errorf("%w: empty poster key", ErrNotFound)
	}
	if err := s.blobs.Get(key, w); err != nil {
		return fmt.Errorf("loading poster: %w", err)
	}
	return nil
}

// GetNote returns the note for a video, or nil when none was written.
func (s *ShelfService) GetNote(videoID string) (*model.Note, error) {
	n, err := s.database.FindNote(videoID)
	if err != nil {
		return nil, fmt.Errorf("finding note: %w", err)
	}
	return n, nil
}

// UpsertNote replaces a video's note.
func (s *ShelfService) UpsertNote(videoID string, markdown string) (*model.Note, error) {
	if _, err := s.GetVideo(videoID); err != nil {
		return nil, err
	}
	n := &model.Note{
		VideoID:   videoID,
		Markdown:  markdown,
		UpdatedAt: s.clock.Now(),
	}
	if err := s.database.PutNote(n); err != nil {
		return nil, fmt.Errorf("storing note: %w", err)
	}
	return n, nil
}

// GetSettings returns the stored completion policy, or the defaults.
func (s *ShelfService) GetSettings() (model.Settings, error) {
	stored, err := s.database.GetSettings()
	if err != nil {
		return model.Settings{}, fmt.Errorf("loading settings: %w", err)
	}
	if stored == nil {
		return DefaultSettings(), nil
	}
	return ClampSettings(*stored), nil
}

// SettingsPatch lists settings to change; nil fields are left alone.
type SettingsPatch struct {
	CompletionThreshold      *float64
	AllowLastSecondsComplete *bool
	LastSecondsWindow        *int
}

// UpdateSettings applies patch, clamps the result and stores it.
func (s *ShelfService) UpdateSettings(patch SettingsPatch) (model.Settings, error) {
	current, err := s.GetSettings()
	if err != nil {
		return model.Settings{}, err
	}
	if patch.CompletionThreshold != nil {
		current.CompletionThreshold = *patch.CompletionThreshold
	}
	if patch.AllowLastSecondsComplete != nil {
		current.AllowLastSecondsComplete = *patch.AllowLastSecondsComplete
	}
	if patch.LastSecondsWindow != nil {
		current.LastSecondsWindow = *patch.LastSecondsWindow
	}
	current = ClampSettings(current)
	if err := s.database.PutSettings(&current); err != nil {
		return model.Settings{}, fmt.Errorf("storing settings: %w", err)
	}
	return current, nil
}

// History returns the most recent recorded operations.
func (s *ShelfService) History(limit int) ([]*model.Operation, error) {
	ops, err := s.database.ListOperations(limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}
