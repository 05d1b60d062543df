package shelf

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/time/rate"

	"shelf-go/internal/model"
)

// SourceStatus is the outcome of resolving a video's bytes.
type SourceStatus string

const (
	SourceOK           SourceStatus = "ok"
	SourceMissing      SourceStatus = "missing"
	SourceNoPermission SourceStatus = "no-permission"
)

// SourceResult is a resolved playback source. Source is set only when
// Status is SourceOK.
type SourceResult struct {
	Status    SourceStatus
	Source    FileRef
	FromCache bool
}

// LoadVideoSource finds a readable source for a video. The stored handle is
// tried first; if it is gone or unreadable the session cache is consulted,
// accepting a cached file whose fingerprint matches fully or loosely.
// A video with no usable source is marked missing, unless access was denied,
// in which case no-permission is reported and the record is left alone.
func (s *ShelfService) LoadVideoSource(ctx context.Context, videoID string) (*SourceResult, error) {
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

	permissionDenied := false

	if video.Handle != "" {
		f, fp, err := s.readHandle(ctx, video.Handle)
		switch {
		case err == nil:
			if err := s.ensureFingerprint(video, fp); err != nil {
				return nil, err
			}
			return &SourceResult{Status: SourceOK, Source: f}, nil
		case errors.Is(err, ErrPermissionDenied):
			permissionDenied = true
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrHandleUnsupported):
		default:
			return nil, fmt.Errorf("reading handle: %w", err)
		}
		s.logger.Debug("stored handle unusable", "video_id", videoID, "error", err)
	}

	if cached, ok := s.cache.Get(videoID); ok {
		fp, err := s.fingerprinter.Of(ctx, cached)
		switch {
		case err == nil:
			if fp.Equal(video.Fingerprint) || fp.LooselyEqual(video.Fingerprint) {
				if err := s.ensureFingerprint(video, fp); err != nil {
					return nil, err
				}
				return &SourceResult{Status: SourceOK, Source: cached, FromCache: true}, nil
			}
		case isRecoverableAccessError(err):
			s.cache.Remove(videoID)
		default:
			return nil, fmt.Errorf("reading cached source: %w", err)
		}
	}

	if permissionDenied {
		return &SourceResult{Status: SourceNoPermission}, nil
	}

	if !video.Missing {
		video.Missing = true
		video.UpdatedAt = s.clock.Now()
		if err := s.database.UpdateVideo(video); err != nil {
			return nil, fmt.Errorf("marking video missing: %w", err)
		}
		s.logger.Info("video missing", "video_id", videoID, "file", video.Fingerprint.Name)
	}
	return &SourceResult{Status: SourceMissing}, nil
}

func (s *ShelfService) readHandle(ctx context.Context, handle string) (FileRef, model.Fingerprint, error) {
	resolver, ok := s.access.(HandleResolver)
	if !ok {
		return nil, model.Fingerprint{}, ErrHandleUnsupported
	}
	f, err := resolver.ResolveHandle(ctx, handle)
	if err != nil {
		return nil, model.Fingerprint{}, err
	}
	fp, err := s.fingerprinter.Of(ctx, f)
	if err != nil {
		return nil, model.Fingerprint{}, err
	}
	return f, fp, nil
}

// ensureFingerprint re-stamps a drifted fingerprint and clears the missing flag.
func (s *ShelfService) ensureFingerprint(video *model.Video, fp model.Fingerprint) error {
	drifted := !video.Fingerprint.Equal(fp)
	if !drifted && !video.Missing {
		return nil
	}
	if drifted {
		video.Fingerprint = fp
	}
	video.Missing = false
	video.UpdatedAt = s.clock.Now()
	if err := s.database.UpdateVideo(video); err != nil {
		return fmt.Errorf("updating video fingerprint: %w", err)
	}
	return nil
}

// PlaybackSession tracks one viewing of a video. Completion is sticky: once
// a tick completes the video, later ticks never re-evaluate it, so seeking
// backwards does not flap the state.
type PlaybackSession struct {
	svc      *ShelfService
	video    *model.Video
	settings model.Settings

	completed    bool
	playReported bool
	saves        *rate.Limiter
	position     float64
	dirty        bool
}

// StartPlayback opens a session for a video using the current settings.
func (s *ShelfService) StartPlayback(videoID string) (*PlaybackSession, error) {
	video, err := s.database.FindVideo(videoID)
	if err != nil {
		return nil, fmt.Errorf("finding video: %w", err)
	}
	if video == nil {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
	}
	settings, err := s.GetSettings()
	if err != nil {
		return nil, err
	}
	progress, err := s.GetProgress(videoID)
	if err != nil {
		return nil, err
	}
	return &PlaybackSession{
		svc:       s,
		video:     video,
		settings:  settings,
		completed: progress.Completed,
		position:  progress.LastPositionSec,
		saves:     rate.NewLimiter(rate.Every(ProgressSaveInterval), 1),
	}, nil
}

// Video returns the video being played.
func (p *PlaybackSession) Video() *model.Video {
	return p.video
}

// Completed reports whether the video has been completed in this session
// or before it.
func (p *PlaybackSession) Completed() bool {
	return p.completed
}

// ResumePosition returns where playback should resume, if anywhere.
func (p *PlaybackSession) ResumePosition() (float64, bool) {
	if p.completed || p.position <= ResumeThresholdSec {
		return 0, false
	}
	return p.position, true
}

// Play records a playback start. Repeated calls without an intervening
// Pause count once.
func (p *PlaybackSession) Play() error {
	if p.playReported {
		return nil
	}
	if _, err := p.svc.RecordPlayStart(p.video.ID); err != nil {
		return err
	}
	p.playReported = true
	return nil
}

// Pause ends the current play and stores the latest position.
func (p *PlaybackSession) Pause() error {
	p.playReported = false
	return p.Flush()
}

// Tick reports the current position. The position is stored at most once
// per ProgressSaveInterval. It returns true when this tick completed the video.
func (p *PlaybackSession) Tick(positionSec, durationSec float64) (bool, error) {
	p.position = positionSec
	p.dirty = true

	if p.saves.AllowN(p.svc.clock.Now(), 1) {
		if err := p.Flush(); err != nil {
			return false, err
		}
	}

	if p.completed || !IsComplete(positionSec, durationSec, p.settings) {
		return false, nil
	}
	if err := p.complete(durationSec); err != nil {
		return false, err
	}
	return true, nil
}

// End handles the media reaching its end.
func (p *PlaybackSession) End(durationSec float64) error {
	if p.completed || durationSec <= 0 {
		return p.Flush()
	}
	return p.complete(durationSec)
}

func (p *PlaybackSession) complete(durationSec float64) error {
	if _, err := p.svc.MarkCompleted(p.video.ID, durationSec); err != nil {
		return err
	}
	p.completed = true
	p.position = durationSec
	p.dirty = false
	return nil
}

// Flush stores the latest position if it has not been saved yet.
func (p *PlaybackSession) Flush() error {
	if !p.dirty {
		return nil
	}
	if _, err := p.svc.SavePosition(p.video.ID, p.position); err != nil {
		return err
	}
	p.dirty = false
	return nil
}

// ReportDuration records the media duration seen by the player when it
// differs from the stored one by more than a second.
func (p *PlaybackSession) ReportDuration(durationSec float64) error {
	if durationSec <= 0 || math.IsInf(durationSec, 0) || math.IsNaN(durationSec) {
		return nil
	}
	if p.video.DurationSec > 0 && math.Abs(p.video.DurationSec-durationSec) <= 1 {
		return nil
	}
	p.video.DurationSec = durationSec
	p.video.UpdatedAt = p.svc.clock.Now()
	if err := p.svc.database.UpdateVideo(p.video); err != nil {
		return fmt.Errorf("updating duration: %w", err)
	}
	return nil
}
