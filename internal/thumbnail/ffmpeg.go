package thumbnail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"shelf-go/internal/shelf"
)

// FFmpeg captures posters with ffmpeg and reads durations with ffprobe.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	MaxWidth    int // 0 keeps the frame size
}

func NewFFmpeg(ffmpegPath, ffprobePath string, maxWidth int) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, MaxWidth: maxWidth}
}

// pathProvider is implemented by file references backed by a local path.
type pathProvider interface {
	Path() string
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Capture probes the duration of src and grabs one frame at offsetSec, or at
// the midpoint when the video is shorter than that. A frame that cannot be
// decoded leaves Image empty without failing the capture.
func (f *FFmpeg) Capture(ctx context.Context, src shelf.FileRef, offsetSec float64) (shelf.Thumbnail, error) {
	inputPath, cleanup, err := localPath(ctx, src)
	if err != nil {
		return shelf.Thumbnail{}, err
	}
	defer cleanup()

	duration, err := f.probeDuration(ctx, inputPath)
	if err != nil {
		return shelf.Thumbnail{}, err
	}

	seek := offsetSec
	if duration > 0 && seek >= duration {
		seek = duration / 2
	}

	frame, err := f.extractFrame(ctx, inputPath, seek)
	if err != nil {
		if ctx.Err() != nil {
			return shelf.Thumbnail{}, ctx.Err()
		}
		return shelf.Thumbnail{DurationSec: duration}, nil
	}

	poster, err := Downscale(frame, f.MaxWidth)
	if err != nil {
		return shelf.Thumbnail{DurationSec: duration}, nil
	}
	return shelf.Thumbnail{Image: poster, DurationSec: duration}, nil
}

func (f *FFmpeg) probeDuration(ctx context.Context, inputPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		inputPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if parsed.Format.Duration == "" {
		return 0, nil
	}
	duration, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil || duration < 0 {
		return 0, nil
	}
	return duration, nil
}

func (f *FFmpeg) extractFrame(ctx context.Context, inputPath string, seekSec float64) ([]byte, error) {
	cmd := exec.CommandContext(ctx, f.FFmpegPath,
		"-ss", fmt.Sprintf("%.2f", seekSec),
		"-i", inputPath,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame: %w\n%s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame")
	}
	return stdout.Bytes(), nil
}

// localPath returns a path ffmpeg can read. Sources without a local path
// are copied to a temporary file that cleanup removes.
func localPath(ctx context.Context, src shelf.FileRef) (string, func(), error) {
	if p, ok := src.(pathProvider); ok && p.Path() != "" {
		return p.Path(), func() {}, nil
	}

	r, err := src.Open(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("opening %s: %w", src.Name(), err)
	}
	defer r.Close()

	tmp, err := os.CreateTemp("", "shelf-capture-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp file: %w", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("copying %s: %w", src.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("closing temp file: %w", err)
	}
	return tmp.Name(), cleanup, nil
}
