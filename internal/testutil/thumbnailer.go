package testutil

import (
	"context"
	"errors"
	"sync"

	"shelf-go/internal/shelf"
)

// ErrCaptureFailed is returned by FakeThumbnailer for names listed in Fail.
var ErrCaptureFailed = errors.New("capture failed")

// FakeThumbnailer returns a poster derived from the file name and a fixed
// duration without decoding anything.
type FakeThumbnailer struct {
	mu sync.Mutex

	// Durations maps file names to reported durations; others report DefaultDuration.
	Durations       map[string]float64
	DefaultDuration float64

	// Fail lists file names whose capture returns ErrCaptureFailed.
	Fail map[string]bool

	// Image, when set, is returned for every file instead of a per-name poster.
	Image []byte

	// OnCapture is called before each capture, e.g. to cancel a context.
	OnCapture func(name string)

	calls   []string
	offsets []float64
}

func NewFakeThumbnailer() *FakeThumbnailer {
	return &FakeThumbnailer{DefaultDuration: 120}
}

func (f *FakeThumbnailer) Capture(ctx context.Context, src shelf.FileRef, offsetSec float64) (shelf.Thumbnail, error) {
	name := src.Name()
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.offsets = append(f.offsets, offsetSec)
	hook := f.OnCapture
	f.mu.Unlock()

	if hook != nil {
		hook(name)
	}
	if err := ctx.Err(); err != nil {
		return shelf.Thumbnail{}, err
	}
	if f.Fail[name] {
		return shelf.Thumbnail{}, ErrCaptureFailed
	}

	duration := f.DefaultDuration
	if d, ok := f.Durations[name]; ok {
		duration = d
	}
	image := f.Image
	if image == nil {
		image = []byte("poster:" + name)
	}
	return shelf.Thumbnail{Image: image, DurationSec: duration}, nil
}

// Calls returns the names of captured files in order.
func (f *FakeThumbnailer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Offsets returns the offsets passed to each capture.
func (f *FakeThumbnailer) Offsets() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.offsets...)
}

var _ shelf.Thumbnailer = (*FakeThumbnailer)(nil)
