// Package cvcam drives a V4L2 (or any OpenCV-readable) camera through GoCV.
package cvcam

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/teslashibe/go-skycam/pkg/camera"
	"github.com/teslashibe/go-skycam/pkg/device"
	"gocv.io/x/gocv"
)

// Config selects the capture source.
type Config struct {
	Source  string // device index ("0") or path/URL
	Width   int
	Height  int
	Quality int // JPEG quality
}

// Camera implements device.Device on a gocv.VideoCapture. Controls
// OpenCV cannot set are kept in shadow state.
type Camera struct {
	cfg     Config
	capture *gocv.VideoCapture

	mu     sync.Mutex
	shadow camera.ParameterSet
	closed bool
}

var _ device.Device = (*Camera)(nil)

// Open opens the capture source and pushes the default parameters.
func Open(cfg Config) (*Camera, error) {
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 85
	}

	var src interface{} = cfg.Source
	if idx, err := strconv.Atoi(cfg.Source); err == nil {
		src = idx
	}
	capture, err := gocv.OpenVideoCapture(src)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", cfg.Source, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("open %q: device not available", cfg.Source)
	}

	if cfg.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	c := &Camera{cfg: cfg, capture: capture, shadow: camera.Defaults()}
	c.push(c.shadow)
	return c, nil
}

// Capture reads one frame and encodes it as JPEG.
func (c *Camera) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, device.ErrClosed
	}

	mat := gocv.NewMat()
	defer mat.Close()

	if ok := c.capture.Read(&mat); !ok {
		return nil, errors.New("failed to read frame from camera")
	}
	if mat.Empty() {
		return nil, device.ErrEmptyFrame
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{int(gocv.IMWriteJpegQuality), c.cfg.Quality})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}

// Apply checks set, pushes what OpenCV can express and records the rest.
func (c *Camera) Apply(ctx context.Context, set camera.ParameterSet) error {
	if err := set.Check(); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return device.ErrClosed
	}
	c.push(set)
	c.shadow = c.shadow.Merge(set)
	return nil
}

// push maps parameters onto capture properties. OpenCV's V4L2 backend
// takes brightness, contrast, saturation and sharpness normalised to
// [0,1] and exposure in 100 µs units.
func (c *Camera) push(set camera.ParameterSet) {
	for p, v := range set.All() {
		switch p {
		case camera.FrameRate:
			c.capture.Set(gocv.VideoCaptureFPS, v.Float())
		case camera.Brightness:
			c.capture.Set(gocv.VideoCaptureBrightness, (v.Float()+1)/2)
		case camera.Contrast:
			c.capture.Set(gocv.VideoCaptureContrast, v.Float()/2)
		case camera.Saturation:
			c.capture.Set(gocv.VideoCaptureSaturation, v.Float()/2)
		case camera.Sharpness:
			c.capture.Set(gocv.VideoCaptureSharpness, v.Float()/2)
		case camera.AnalogueGain:
			c.capture.Set(gocv.VideoCaptureGain, v.Float())
		case camera.ExposureTime:
			if v.Int() > 0 {
				c.capture.Set(gocv.VideoCaptureExposure, float64(v.Int())/100)
			}
		}
	}
}

// Read returns the shadow state, refreshed with the properties OpenCV
// can report.
func (c *Camera) Read(ctx context.Context) (camera.ParameterSet, error) {
	if err := ctx.Err(); err != nil {
		return camera.ParameterSet{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return camera.ParameterSet{}, device.ErrClosed
	}
	out := c.shadow
	if fps := c.capture.Get(gocv.VideoCaptureFPS); fps >= 1 && fps <= camera.MaxFrameRate {
		out.Set(camera.FrameRate, camera.Float(fps))
	}
	return out, nil
}

// Close releases the capture.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.capture.Close()
}

// DriverName is the name cvcam registers with device.Open.
const DriverName = "gocv"

func init() {
	device.Register(DriverName, func(opts device.Options) (device.Device, error) {
		return Open(Config{
			Source:  opts.Source,
			Width:   opts.Width,
			Height:  opts.Height,
			Quality: opts.Quality,
		})
	})
}
