package thumbnail

import (
	"context"
	"fmt"

	"shelf-go/internal/config"
	"shelf-go/internal/shelf"
)

// Nop captures nothing. Imports with it produce no posters and unknown durations.
type Nop struct{}

func (Nop) Capture(ctx context.Context, src shelf.FileRef, offsetSec float64) (shelf.Thumbnail, error) {
	return shelf.Thumbnail{}, nil
}

// NewThumbnailerFromConfig creates the thumbnailer selected by cfg.Type.
func NewThumbnailerFromConfig(cfg config.ThumbnailsConfig) (shelf.Thumbnailer, error) {
	switch cfg.Type {
	case "ffmpeg":
		return NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath, cfg.MaxWidth), nil
	case "none", "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown thumbnails type: %s", cfg.Type)
	}
}

var (
	_ shelf.Thumbnailer = Nop{}
	_ shelf.Thumbnailer = (*FFmpeg)(nil)
)
