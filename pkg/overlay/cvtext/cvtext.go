// Package cvtext annotates frames with OpenCV's Hershey fonts.
package cvtext

import (
	"fmt"
	"image/color"

	"github.com/teslashibe/go-skycam/pkg/overlay"
	"gocv.io/x/gocv"
)

// Annotator draws anti-aliased Hershey simplex text via GoCV.
type Annotator struct {
	Quality   int
	Scale     float64
	Thickness int
	Color     color.RGBA
}

var _ overlay.Annotator = (*Annotator)(nil)

// New returns an Annotator with a white, scale 1, 2 px label.
func New(quality int) *Annotator {
	if quality <= 0 || quality > 100 {
		quality = overlay.DefaultQuality
	}
	return &Annotator{
		Quality:   quality,
		Scale:     1,
		Thickness: 2,
		Color:     color.RGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

// Annotate decodes frame, draws text at overlay.Origin and re-encodes.
func (a *Annotator) Annotate(frame []byte, text string) ([]byte, error) {
	img, err := gocv.IMDecode(frame, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", overlay.ErrDecode, err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, overlay.ErrDecode
	}

	gocv.PutTextWithParams(&img, text, overlay.Origin, gocv.FontHersheySimplex, a.Scale, a.Color, a.Thickness, gocv.LineAA, false)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), a.Quality})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}

// Name is the name cvtext registers with overlay.New.
const Name = "gocv"

func init() {
	overlay.Register(Name, func(quality int) overlay.Annotator { return New(quality) })
}
