package device

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-skycam/pkg/camera"
)

// LibcameraConfig configures the rpicam-still driver.
type LibcameraConfig struct {
	Binary  string        // default "rpicam-still"
	Width   int           // default 1280
	Height  int           // default 720
	Quality int           // JPEG quality, default 85
	Timeout time.Duration // per capture, default 10s
}

// DefaultLibcameraConfig returns the defaults used on a Raspberry Pi.
func DefaultLibcameraConfig() LibcameraConfig {
	return LibcameraConfig{
		Binary:  "rpicam-still",
		Width:   1280,
		Height:  720,
		Quality: 85,
		Timeout: 10 * time.Second,
	}
}

// runFunc executes a capture command and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Libcamera drives the sensor through one rpicam-still invocation per
// frame. Every applied control is kept in shadow state and reported by
// Read, but rpicam-still has no flag for TemporalNoiseReductionMode,
// HighQualityDenoise, LocalToneMappingEnable, LensShading,
// DefectivePixelCorrection, BlackLevel or the Night and
// MultiExposureUnmerged HDR modes. Those are reported without reaching
// the sensor.
type Libcamera struct {
	cfg    LibcameraConfig
	run    runFunc
	logger *slog.Logger

	mu     sync.Mutex
	shadow camera.ParameterSet
	closed bool
}

// NewLibcamera returns a driver. It does not probe the binary; the first
// capture reports a missing one.
func NewLibcamera(cfg LibcameraConfig, logger *slog.Logger) *Libcamera {
	def := DefaultLibcameraConfig()
	if cfg.Binary == "" {
		cfg.Binary = def.Binary
	}
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = def.Quality
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Libcamera{
		cfg:    cfg,
		run:    execRun,
		logger: logger.With("driver", "libcamera"),
		shadow: camera.Defaults(),
	}
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if i := strings.LastIndexByte(msg, '\n'); i >= 0 {
			msg = msg[i+1:]
		}
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// Capture runs the still binary with flags built from the shadow state.
func (l *Libcamera) Capture(ctx context.Context) ([]byte, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	args := l.argsLocked()
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	start := time.Now()
	out, err := l.run(ctx, l.cfg.Binary, args...)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrEmptyFrame
	}
	l.logger.Debug("frame captured", "bytes", len(out), "elapsed", time.Since(start))
	return out, nil
}

// Apply checks set and merges it into the shadow state. It is applied on
// the next capture.
func (l *Libcamera) Apply(_ context.Context, set camera.ParameterSet) error {
	if err := set.Check(); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.shadow = l.shadow.Merge(set)
	if kept := shadowOnly(set); len(kept) > 0 {
		l.logger.Debug("controls retained without a capture flag", "params", kept)
	}
	return nil
}

// shadowOnly lists the params in set that no capture flag carries.
func shadowOnly(set camera.ParameterSet) []string {
	var out []string
	for p, v := range set.All() {
		switch p {
		case camera.TemporalNoiseReductionMode, camera.HighQualityDenoise,
			camera.LocalToneMappingEnable, camera.LensShading,
			camera.DefectivePixelCorrection, camera.BlackLevel:
			out = append(out, p.String())
		case camera.HdrMode:
			if flagName(hdrFlag, v.Int()) == "" {
				out = append(out, p.String())
			}
		}
	}
	return out
}

// Read returns the shadow state.
func (l *Libcamera) Read(context.Context) (camera.ParameterSet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return camera.ParameterSet{}, ErrClosed
	}
	return l.shadow, nil
}

// Close marks the driver closed. No process outlives a capture.
func (l *Libcamera) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// rpicam option values for the enum controls it exposes, indexed by
// code. An empty name has no flag value.
var (
	awbFlag      = []string{"auto", "tungsten", "fluorescent", "indoor", "daylight", "cloudy"}
	hdrFlag      = []string{"off", "single-exp", "sensor", "", ""}
	denoiseFlag  = []string{"cdn_off", "cdn_fast", "cdn_hq"}
	exposureFlag = []string{"normal", "sport", "long", "custom"}
	meteringFlag = []string{"centre", "spot", "average", "custom"}
)

func flagName(names []string, code int64) string {
	if code < 0 || code >= int64(len(names)) {
		return ""
	}
	return names[code]
}

func (l *Libcamera) argsLocked() []string {
	s := l.shadow
	args := []string{
		"--immediate", "-n", "-t", "1", "-o", "-",
		"--encoding", "jpg",
		"--width", strconv.Itoa(l.cfg.Width),
		"--height", strconv.Itoa(l.cfg.Height),
		"--quality", strconv.Itoa(l.cfg.Quality),
	}
	num := func(flag string, p camera.Param) {
		if v, ok := s.Get(p); ok {
			args = append(args, flag, v.String())
		}
	}
	enum := func(flag string, p camera.Param, names []string) {
		if v, ok := s.Get(p); ok {
			if name := flagName(names, v.Int()); name != "" {
				args = append(args, flag, name)
			}
		}
	}

	if v, ok := s.Get(camera.ExposureTime); ok && v.Int() > 0 {
		args = append(args, "--shutter", strconv.FormatInt(v.Int(), 10))
	}
	num("--gain", camera.AnalogueGain)
	enum("--awb", camera.AwbMode, awbFlag)
	num("--brightness", camera.Brightness)
	num("--contrast", camera.Contrast)
	num("--saturation", camera.Saturation)
	num("--sharpness", camera.Sharpness)
	enum("--denoise", camera.NoiseReductionMode, denoiseFlag)
	enum("--metering", camera.AeMeteringMode, meteringFlag)
	enum("--exposure", camera.AeExposureMode, exposureFlag)
	enum("--hdr", camera.HdrMode, hdrFlag)
	num("--framerate", camera.FrameRate)
	return args
}
