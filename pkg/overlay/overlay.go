// Package overlay burns a text label into JPEG frames.
package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TimestampLayout is the format of the label drawn on every frame.
const TimestampLayout = "2006-01-02 15:04:05"

// Origin is the baseline position of the label.
var Origin = image.Pt(10, 30)

// DefaultQuality is the JPEG quality used when re-encoding.
const DefaultQuality = 85

// ErrDecode is returned when a frame is not a decodable JPEG.
var ErrDecode = errors.New("overlay: cannot decode frame")

// Annotator draws text onto an encoded frame and returns the re-encoded
// frame.
type Annotator interface {
	Annotate(frame []byte, text string) ([]byte, error)
}

// Basic is a pure Go annotator using the 7x13 bitmap font.
type Basic struct {
	Quality int
}

// NewBasic returns a Basic annotator encoding at quality.
func NewBasic(quality int) *Basic {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Basic{Quality: quality}
}

// Annotate decodes frame, draws text in white at Origin and re-encodes.
func (b *Basic) Annotate(frame []byte, text string) ([]byte, error) {
	src, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(bounds.Min.X+Origin.X, bounds.Min.Y+Origin.Y),
	}
	d.DrawString(text)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: b.Quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// Passthrough returns frames unchanged.
type Passthrough struct{}

func (Passthrough) Annotate(frame []byte, _ string) ([]byte, error) {
	if len(frame) == 0 {
		return nil, ErrDecode
	}
	return frame, nil
}
