package shelf

import (
	"context"
	"fmt"

	"shelf-go/internal/model"
)

// RelinkSummary reports the outcome of a course relink.
type RelinkSummary struct {
	MatchedIDs         []string
	UnmatchedVideoIDs  []string
	UnmatchedFileNames []string
}

// matchIndex holds FIFO queues of candidate videos by full and loose key.
type matchIndex struct {
	full  map[string][]*model.Video
	loose map[string][]*model.Video
}

func newMatchIndex(videos []*model.Video) *matchIndex {
	idx := &matchIndex{
		full:  make(map[string][]*model.Video),
		loose: make(map[string][]*model.Video),
	}
	for _, v := range videos {
		idx.full[v.Fingerprint.FullKey()] = append(idx.full[v.Fingerprint.FullKey()], v)
		idx.loose[v.Fingerprint.LooseKey()] = append(idx.loose[v.Fingerprint.LooseKey()], v)
	}
	return idx
}

// take returns the video that fp should bind to, removing it from both
// queues it was indexed under. The full-key queue is consulted before the
// loose-key queue. Within a queue a video whose stored hash equals fp's hash
// wins, otherwise the earliest queued video does.
func (idx *matchIndex) take(fp model.Fingerprint) *model.Video {
	v := pick(idx.full[fp.FullKey()], fp.Hash)
	if v == nil {
		v = pick(idx.loose[fp.LooseKey()], fp.Hash)
	}
	if v == nil {
		return nil
	}
	// Remove under the keys the video was indexed with, not the new file's.
	idx.full[v.Fingerprint.FullKey()] = without(idx.full[v.Fingerprint.FullKey()], v)
	idx.loose[v.Fingerprint.LooseKey()] = without(idx.loose[v.Fingerprint.LooseKey()], v)
	return v
}

func pick(queue []*model.Video, hash string) *model.Video {
	if len(queue) == 0 {
		return nil
	}
	if hash != "" {
		for _, v := range queue {
			if v.Fingerprint.Hash == hash {
				return v
			}
		}
	}
	return queue[0]
}

func without(queue []*model.Video, target *model.Video) []*model.Video {
	out := queue[:0:0]
	for _, v := range queue {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// bind points v at a newly selected file.
func (s *ShelfService) bind(v *model.Video, fp model.Fingerprint, f FileRef) {
	v.Fingerprint = fp
	v.Handle = s.handleFor(f)
	v.Missing = false
	v.UpdatedAt = s.clock.Now()
}

// RelinkVideo binds a single video to f without any matching.
func (s *ShelfService) RelinkVideo(ctx context.Context, videoID string, f FileRef) (*model.Video, error) {
	if err := checkAborted(ctx); err != nil {
		return nil, err
	}
	video, err := s.database.FindVideo(videoID)
	if err != nil {
		return nil, fmt.Errorf("finding video: %w", err)
	}
	if video == nil {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
	}

	fp, err := s.fingerprinter.Of(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting %s: %w", f.Name(), err)
	}
	if err := checkAborted(ctx); err != nil {
		return nil, err
	}

	s.bind(video, fp, f)
	if err := s.database.UpdateVideo(video); err != nil {
		return nil, fmt.Errorf("updating video: %w", err)
	}
	s.cache.Put(video.ID, f)

	s.logger.Info("video relinked", "video_id", video.ID, "file", f.Name())
	return video, nil
}

// RelinkCourse matches files against the videos of a course. Matching is
// deterministic for a given file order and never binds a video twice.
// Videos left without a file are marked missing. All updates are stored
// in one transaction.
func (s *ShelfService) RelinkCourse(ctx context.Context, courseID string, files []FileRef) (*RelinkSummary, error) {
	if err := checkAborted(ctx); err != nil {
		return nil, err
	}
	course, err := s.database.FindCourse(courseID)
	if err != nil {
		return nil, fmt.Errorf("finding course: %w", err)
	}
	if course == nil {
		return nil, fmt.Errorf("%w: %s", ErrCourseNotFound, courseID)
	}
	videos, err := s.database.FindVideosByCourse(courseID)
	if err != nil {
		return nil, fmt.Errorf("finding videos: %w", err)
	}

	idx := newMatchIndex(videos)
	summary := &RelinkSummary{}
	matched := make(map[string]bool)
	sources := make(map[string]FileRef)
	var updates []*model.Video

	for _, f := range files {
		if err := checkAborted(ctx); err != nil {
			return nil, err
		}
		fp, err := s.fingerprinter.Of(ctx, f)
		if err != nil {
			if isRecoverableAccessError(err) {
				s.logger.Warn("skipping unreadable file", "file", f.Name(), "error", err)
				summary.UnmatchedFileNames = append(summary.UnmatchedFileNames, f.Name())
				continue
			}
			return nil, fmt.Errorf("fingerprinting %s: %w", f.Name(), err)
		}

		v := idx.take(fp)
		if v == nil {
			summary.UnmatchedFileNames = append(summary.UnmatchedFileNames, f.Name())
			continue
		}
		s.bind(v, fp, f)
		matched[v.ID] = true
		sources[v.ID] = f
		summary.MatchedIDs = append(summary.MatchedIDs, v.ID)
		updates = append(updates, v)
	}

	for _, v := range videos {
		if matched[v.ID] {
			continue
		}
		summary.UnmatchedVideoIDs = append(summary.UnmatchedVideoIDs, v.ID)
		if !v.Missing {
			v.Missing = true
			v.Handle = ""
			v.UpdatedAt = s.clock.Now()
			updates = append(updates, v)
		}
	}

	if err := checkAborted(ctx); err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := s.database.UpdateVideos(updates); err != nil {
			return nil, fmt.Errorf("updating videos: %w", err)
		}
	}
	s.cache.PutAll(sources)

	s.logger.Info("course relinked",
		"course_id", courseID,
		"matched", len(summary.MatchedIDs),
		"unmatched_videos", len(summary.UnmatchedVideoIDs),
		"unmatched_files", len(summary.UnmatchedFileNames))
	return summary, nil
}
