package shelf

import (
	"fmt"
	"math"
	"sort"
	"time"

	"shelf-go/internal/model"
)

const (
	DefaultCompletionThreshold = 0.9
	MinCompletionThreshold     = 0.8
	MaxCompletionThreshold     = 1.0
	DefaultLastSecondsWindow   = 30

	// ResumeThresholdSec is the position below which a video is treated as not started.
	ResumeThresholdSec = 5.0

	// ContinueWatchingLimit caps SelectContinueWatching's default result.
	ContinueWatchingLimit = 6

	// ProgressSaveInterval is the minimum gap between position writes during playback.
	ProgressSaveInterval = 2 * time.Second
)

// DefaultSettings returns the completion policy used when none is stored.
func DefaultSettings() model.Settings {
	return model.Settings{
		CompletionThreshold:      DefaultCompletionThreshold,
		AllowLastSecondsComplete: true,
		LastSecondsWindow:        DefaultLastSecondsWindow,
	}
}

// ClampSettings brings settings into their valid ranges.
func ClampSettings(s model.Settings) model.Settings {
	switch {
	case math.IsNaN(s.CompletionThreshold):
		s.CompletionThreshold = DefaultCompletionThreshold
	case s.CompletionThreshold < MinCompletionThreshold:
		s.CompletionThreshold = MinCompletionThreshold
	case s.CompletionThreshold > MaxCompletionThreshold:
		s.CompletionThreshold = MaxCompletionThreshold
	}
	if s.LastSecondsWindow < 1 {
		s.LastSecondsWindow = 1
	}
	return s
}

// IsComplete reports whether a playback position counts as having finished
// the video: either the watched fraction reaches the threshold, or the tail
// window is enabled and the remaining time fits inside it.
// An unknown or non-positive duration is never complete.
func IsComplete(positionSec, durationSec float64, settings model.Settings) bool {
	if math.IsNaN(durationSec) || math.IsInf(durationSec, 0) || durationSec <= 0 || math.IsNaN(positionSec) {
		return false
	}
	settings = ClampSettings(settings)
	if positionSec/durationSec >= settings.CompletionThreshold {
		return true
	}
	return settings.AllowLastSecondsComplete && durationSec-positionSec <= float64(settings.LastSecondsWindow)
}

// CourseProgress is the rollup of a course's videos.
type CourseProgress struct {
	TotalVideos              int
	CompletedVideos          int
	Percent                  int
	TotalDuration            float64
	EstimatedWatchedDuration float64
}

// ComputeCourseProgress aggregates progress over videos. progress is keyed by
// video id; videos without an entry have no recorded progress.
func ComputeCourseProgress(videos []*model.Video, progress map[string]*model.Progress) CourseProgress {
	out := CourseProgress{TotalVideos: len(videos)}
	for _, v := range videos {
		out.TotalDuration += v.DurationSec
		p := progress[v.ID]
		switch {
		case p == nil:
		case p.Completed:
			out.CompletedVideos++
			out.EstimatedWatchedDuration += v.DurationSec
		default:
			out.EstimatedWatchedDuration += math.Min(v.DurationSec, p.LastPositionSec)
		}
	}
	if out.TotalVideos > 0 {
		out.Percent = int(math.Round(100 * float64(out.CompletedVideos) / float64(out.TotalVideos)))
	}
	return out
}

// VideoProgressRatio returns the watched fraction of v in [0, 1].
func VideoProgressRatio(v *model.Video, p *model.Progress) float64 {
	if p == nil || v.DurationSec <= 0 {
		return 0
	}
	return math.Min(1, math.Max(0, p.LastPositionSec/v.DurationSec))
}

// ContinueItem is a started but unfinished video.
type ContinueItem struct {
	Course   *model.Course
	Video    *model.Video
	Progress *model.Progress
}

// SelectContinueWatching returns up to limit unfinished videos with a
// position past the resume threshold, most recently played first.
func SelectContinueWatching(courses []*CourseDetail, limit int) []ContinueItem {
	var items []ContinueItem
	for _, c := range courses {
		for _, v := range c.Videos {
			p := c.Progress[v.ID]
			if p == nil || p.Completed || p.LastPositionSec < ResumeThresholdSec {
				continue
			}
			items = append(items, ContinueItem{Course: c.Course, Video: v, Progress: p})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return lastActivity(items[i].Progress).After(lastActivity(items[j].Progress))
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func lastActivity(p *model.Progress) time.Time {
	for _, t := range []*time.Time{p.LastPlayedAt, p.CompletedAt, p.FirstStartedAt} {
		if t != nil {
			return *t
		}
	}
	return time.Time{}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// GetProgress returns the stored progress for a video, or the default when
// nothing was recorded yet.
func (s *ShelfService) GetProgress(videoID string) (*model.Progress, error) {
	p, err := s.database.FindProgress(videoID)
	if err != nil {
		return nil, fmt.Errorf("finding progress: %w", err)
	}
	if p == nil {
		return model.DefaultProgress(videoID), nil
	}
	return p, nil
}

// UpdateProgress applies patch to the current progress and stores the result.
func (s *ShelfService) UpdateProgress(videoID string, patch func(*model.Progress)) (*model.Progress, error) {
	video, err := s.database.FindVideo(videoID)
	if err != nil {
		return nil, fmt.Errorf("finding video: %w", err)
	}
	if video == nil {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
	}

	p, err := s.GetProgress(videoID)
	if err != nil {
		return nil, err
	}
	patch(p)
	p.VideoID = videoID
	if p.LastPositionSec < 0 || math.IsNaN(p.LastPositionSec) {
		p.LastPositionSec = 0
	}
	if p.PlayCount < 0 {
		p.PlayCount = 0
	}
	if err := s.database.PutProgress(p); err != nil {
		return nil, fmt.Errorf("storing progress: %w", err)
	}
	return p, nil
}

// SavePosition records the current playback position.
func (s *ShelfService) SavePosition(videoID string, positionSec float64) (*model.Progress, error) {
	now := s.clock.Now()
	return s.UpdateProgress(videoID, func(p *model.Progress) {
		p.LastPositionSec = positionSec
		p.LastPlayedAt = timePtr(now)
	})
}

// MarkCompleted marks a video as finished. A positive duration also moves
// the stored position to the end.
func (s *ShelfService) MarkCompleted(videoID string, durationSec float64) (*model.Progress, error) {
	now := s.clock.Now()
	p, err := s.UpdateProgress(videoID, func(p *model.Progress) {
		p.Completed = true
		p.CompletedAt = timePtr(now)
		p.LastPlayedAt = timePtr(now)
		if durationSec > 0 && !math.IsInf(durationSec, 0) {
			p.LastPositionSec = durationSec
		}
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("video completed", "video_id", videoID)
	return p, nil
}

// ResetProgress forgets all progress for a video.
func (s *ShelfService) ResetProgress(videoID string) error {
	if err := s.database.DeleteProgress(videoID); err != nil {
		return fmt.Errorf("deleting progress: %w", err)
	}
	return nil
}

// RecordPlayStart counts a playback start.
func (s *ShelfService) RecordPlayStart(videoID string) (*model.Progress, error) {
	now := s.clock.Now()
	return s.UpdateProgress(videoID, func(p *model.Progress) {
		p.PlayCount++
		if p.FirstStartedAt == nil {
			p.FirstStartedAt = timePtr(now)
		}
		p.LastPlayedAt = timePtr(now)
	})
}
