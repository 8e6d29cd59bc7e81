package device

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/teslashibe/go-skycam/pkg/camera"
)

type fakeRunner struct {
	name string
	args []string
	out  []byte
	err  error
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.name, f.args = name, args
	return f.out, f.err
}

func flagValue(args []string, flag string) (string, bool) {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return "", false
	}
	return args[i+1], true
}

func TestLibcameraArgsFollowShadow(t *testing.T) {
	fr := &fakeRunner{out: []byte{0xff, 0xd8, 0xff, 0xd9}}
	l := NewLibcamera(LibcameraConfig{Binary: "/usr/bin/rpicam-still", Width: 640, Height: 480}, nil)
	l.run = fr.run
	ctx := context.Background()

	if err := l.Apply(ctx, camera.LowLightPreset()); err != nil {
		t.Fatal(err)
	}
	frame, err := l.Capture(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(frame) != 4 {
		t.Errorf("frame = %d bytes", len(frame))
	}
	if fr.name != "/usr/bin/rpicam-still" {
		t.Errorf("binary = %s", fr.name)
	}

	want := map[string]string{
		"--width":     "640",
		"--height":    "480",
		"--shutter":   "100000",
		"--gain":      "8",
		"--awb":       "tungsten",
		"--denoise":   "cdn_hq",
		"--framerate": "15",
		"--metering":  "centre",
		"--contrast":  "1.2",
	}
	for flag, val := range want {
		got, ok := flagValue(fr.args, flag)
		if !ok || got != val {
			t.Errorf("%s = %q (present=%v), want %q", flag, got, ok, val)
		}
	}

	// night HDR has no flag value but is retained
	if got, ok := flagValue(fr.args, "--hdr"); ok {
		t.Errorf("--hdr = %q for night mode", got)
	}
	st, _ := l.Read(ctx)
	if v, _ := st.Get(camera.HdrMode); v.Int() != 3 {
		t.Errorf("HdrMode shadow = %v, want 3", v)
	}
}

func TestLibcameraCaptureErrors(t *testing.T) {
	fr := &fakeRunner{err: errors.New("exit status 255")}
	l := NewLibcamera(LibcameraConfig{}, nil)
	l.run = fr.run
	ctx := context.Background()

	if _, err := l.Capture(ctx); err == nil || !strings.Contains(err.Error(), "exit status 255") {
		t.Errorf("Capture() = %v", err)
	}

	fr.err = nil
	if _, err := l.Capture(ctx); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("empty output: %v, want ErrEmptyFrame", err)
	}
}

func TestLibcameraApplyIsAtomic(t *testing.T) {
	l := NewLibcamera(LibcameraConfig{}, nil)
	ctx := context.Background()

	bad := camera.NewSet(
		camera.Pair{Param: camera.Contrast, Value: camera.Float(1.9)},
		camera.Pair{Param: camera.AnalogueGain, Value: camera.Float(99)},
	)
	if err := l.Apply(ctx, bad); !errors.Is(err, camera.ErrOutOfDomain) {
		t.Fatalf("Apply() = %v", err)
	}
	st, _ := l.Read(ctx)
	if !st.Equal(camera.Defaults()) {
		t.Errorf("rejected apply changed shadow: %v", st)
	}

	_ = l.Close()
	if _, err := l.Capture(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Capture after Close = %v", err)
	}
}

func TestLibcameraHdrFlag(t *testing.T) {
	fr := &fakeRunner{out: []byte{0xff, 0xd8}}
	l := NewLibcamera(LibcameraConfig{}, nil)
	l.run = fr.run
	ctx := context.Background()

	for code, want := range map[int]string{0: "off", 1: "single-exp", 2: "sensor"} {
		if err := l.Apply(ctx, camera.NewSet(camera.Pair{Param: camera.HdrMode, Value: camera.Enum(code)})); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Capture(ctx); err != nil {
			t.Fatal(err)
		}
		if got, ok := flagValue(fr.args, "--hdr"); !ok || got != want {
			t.Errorf("HdrMode %d: --hdr = %q (present=%v), want %q", code, got, ok, want)
		}
	}
}

func TestShadowOnlyParams(t *testing.T) {
	got := shadowOnly(camera.LowLightPreset())
	want := []string{"HdrMode", "TemporalNoiseReductionMode", "HighQualityDenoise",
		"LocalToneMappingEnable", "LensShading", "DefectivePixelCorrection", "BlackLevel"}
	if !slices.Equal(got, want) {
		t.Errorf("shadowOnly(low light) = %v, want %v", got, want)
	}

	flagged := camera.NewSet(
		camera.Pair{Param: camera.HdrMode, Value: camera.Enum(1)},
		camera.Pair{Param: camera.Contrast, Value: camera.Float(1.1)},
	)
	if got := shadowOnly(flagged); len(got) != 0 {
		t.Errorf("shadowOnly(flagged) = %v", got)
	}
}
