package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

const posterQuality = 80

// Downscale re-encodes a JPEG frame no wider than maxWidth, keeping the
// aspect ratio. Frames already narrow enough, or maxWidth <= 0, are
// returned unchanged.
func Downscale(frame []byte, maxWidth int) ([]byte, error) {
	src, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	b := src.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return frame, nil
	}

	height := b.Dy() * maxWidth / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: posterQuality}); err != nil {
		return nil, fmt.Errorf("encoding poster: %w", err)
	}
	return buf.Bytes(), nil
}
