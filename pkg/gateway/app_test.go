package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-skycam/internal/config"
	"github.com/teslashibe/go-skycam/pkg/camera"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Camera.Driver = config.DriverSim
	cfg.Camera.Width, cfg.Camera.Height = 32, 24
	cfg.Stream.Annotator = config.AnnotatorBasic
	cfg.Stream.FrameInterval = 5 * time.Millisecond
	cfg.Stream.StatusInterval = 10 * time.Millisecond
	cfg.Audit.Enabled = true
	cfg.Audit.Path = filepath.Join(t.TempDir(), "audit.db")
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Camera.Driver = "webcam9000"

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewRegistersConfiguredPresets(t *testing.T) {
	cfg := testConfig(t)
	cfg.Presets = map[string]map[string]any{
		"night_sky": {"exposureTime": 800, "iso": 16},
	}

	app, err := New(cfg)
	require.NoError(t, err)

	set, ok := app.Presets().Get("night_sky")
	require.True(t, ok)
	v, _ := set.Get(camera.ExposureTime)
	assert.Equal(t, int64(800_000), v.Int())
	assert.Len(t, app.Presets().Names(), 4)
}

func TestServeEndToEnd(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, app.Init())
	defer app.Shutdown()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	// open a stream so the tracker goes active
	feed, err := http.Get(base + "/video_feed")
	require.NoError(t, err)
	buf := make([]byte, 64)
	_, err = io.ReadAtLeast(feed.Body, buf, 16)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var got struct{ Status string }
		resp, err := http.Get(base + "/stream_status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(&got) == nil && got.Status == "active"
	}, 3*time.Second, 20*time.Millisecond)

	resp, err := http.Post(base+"/apply_preset", "application/json", strings.NewReader(`{"preset":"low_light"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/api/audit")
	require.NoError(t, err)
	var entries struct {
		Entries []struct {
			Operation string `json:"operation"`
			Preset    string `json:"preset"`
		} `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	resp.Body.Close()
	require.Len(t, entries.Entries, 1)
	assert.Equal(t, "apply_preset", entries.Entries[0].Operation)
	assert.Equal(t, camera.PresetLowLight, entries.Entries[0].Preset)

	feed.Body.Close()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeBeforeInit(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	assert.Error(t, app.Serve(context.Background(), ln))
}
