package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skylog "github.com/teslashibe/go-skycam/internal/log"
	"github.com/teslashibe/go-skycam/pkg/audit"
	"github.com/teslashibe/go-skycam/pkg/camera"
	"github.com/teslashibe/go-skycam/pkg/control"
	"github.com/teslashibe/go-skycam/pkg/device"
	"github.com/teslashibe/go-skycam/pkg/liveness"
	"github.com/teslashibe/go-skycam/pkg/overlay"
	"github.com/teslashibe/go-skycam/pkg/stream"
)

type testEnv struct {
	srv  *Server
	sim  *device.Sim
	ctrl *control.Controller
	live *liveness.Tracker
}

func newTestEnv(t *testing.T, cfg Config, opts ...Option) *testEnv {
	t.Helper()

	logger := skylog.New(io.Discard, "error", "text")
	sim := device.NewSim(32, 24)
	guard := device.NewGuard(sim)
	reg, err := camera.NewRegistry(nil)
	require.NoError(t, err)

	ctrl := control.New(guard, reg, control.WithLogger(logger))
	live := liveness.New()
	prod := stream.New(guard, live,
		stream.WithLogger(logger),
		stream.WithAnnotator(overlay.Passthrough{}),
		stream.WithConfig(stream.Config{FrameInterval: 5 * time.Millisecond, Backoff: 5 * time.Millisecond}),
	)

	opts = append([]Option{WithLogger(logger)}, opts...)
	srv := NewServer(cfg, ctrl, prod, live, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return &testEnv{srv: srv, sim: sim, ctrl: ctrl, live: live}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode(t *testing.T, data []byte) Response {
	t.Helper()
	var r Response
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

func TestUpdateCamera(t *testing.T) {
	env := newTestEnv(t, Config{})

	code, body := env.do(t, http.MethodPost, "/update_camera", `{"exposureTime": 50, "iso": 2, "awbMode": "Daylight"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, success(msgUpdated), decode(t, body))

	state := env.sim.State()
	v, _ := state.Get(camera.ExposureTime)
	assert.Equal(t, int64(50_000), v.Int())
	v, _ = state.Get(camera.AnalogueGain)
	assert.Equal(t, 2.0, v.Float())
	v, _ = state.Get(camera.AwbMode)
	assert.Equal(t, int64(4), v.Int())
}

func TestUpdateCameraRejectsInvalid(t *testing.T) {
	env := newTestEnv(t, Config{})
	before := env.sim.State()

	code, body := env.do(t, http.MethodPost, "/update_camera", `{"iso": 99, "frameRate": 0, "brightness": 0.5}`)
	require.Equal(t, http.StatusBadRequest, code)

	resp := decode(t, body)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, []string{
		"ISO must be between 1 and 16.",
		"Frame rate must be between 1 and 30.",
	}, resp.Messages)
	assert.True(t, before.Equal(env.sim.State()), "rejected update must not touch the device")
	assert.Zero(t, env.sim.Applies())
}

func TestUpdateCameraRejectsNonObject(t *testing.T) {
	env := newTestEnv(t, Config{})

	for _, body := range []string{`[1,2]`, `null`, `not json`} {
		code, data := env.do(t, http.MethodPost, "/update_camera", body)
		assert.Equal(t, http.StatusBadRequest, code, body)
		assert.Equal(t, []string{msgBadBody}, decode(t, data).Messages, body)
	}
}

func TestUpdateCameraApplyFailure(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.sim.SetApplyFault(device.FailApplyAfter(1, 1))

	code, body := env.do(t, http.MethodPost, "/update_camera", `{"iso": 4, "contrast": 1.5}`)
	require.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, failure(msgUpdateFailed), decode(t, body))

	// the revert restored the first parameter
	v, _ := env.sim.State().Get(camera.AnalogueGain)
	assert.Equal(t, 1.0, v.Float())
}

func TestApplyPreset(t *testing.T) {
	env := newTestEnv(t, Config{})

	code, body := env.do(t, http.MethodPost, "/apply_preset", `{"preset": "low_light"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, success("Applied low_light preset successfully."), decode(t, body))

	code, body = env.do(t, http.MethodPost, "/apply_preset", `{"preset": "moonwalk"}`)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, failure("Unknown preset: moonwalk"), decode(t, body))

	code, body = env.do(t, http.MethodPost, "/apply_preset", `{}`)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, failure(msgPresetMissing), decode(t, body))
}

func TestApplyPresetFailure(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.sim.SetApplyFault(device.FailApplyAfter(0, 0))

	code, body := env.do(t, http.MethodPost, "/apply_preset", `{"preset": "fast_motion"}`)
	require.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, failure(msgPresetFailed), decode(t, body))
}

func TestResetCamera(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.do(t, http.MethodPost, "/apply_preset", `{"preset": "high_detail"}`)

	code, body := env.do(t, http.MethodPost, "/reset_camera", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, success(msgReset), decode(t, body))
	assert.True(t, camera.Defaults().Equal(env.sim.State()))

	env.sim.SetApplyFault(device.FailApplyAfter(0, 0))
	code, body = env.do(t, http.MethodPost, "/reset_camera", "")
	require.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, failure(msgResetFailed), decode(t, body))
}

func TestGetCameraSettings(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.sim.SetPartialRead(true)
	env.do(t, http.MethodPost, "/update_camera", `{"exposureTime": 12.5}`)

	code, body := env.do(t, http.MethodGet, "/get_camera_settings", "")
	require.Equal(t, http.StatusOK, code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Len(t, got, camera.NumParams)
	assert.Equal(t, 12.5, got["exposureTime"])
	assert.Equal(t, "Auto", got["awbMode"])
	assert.Equal(t, "Fast", got["noiseReduction"])
	assert.Equal(t, true, got["defectivePixelCorrection"])

	env.sim.SetReadError(device.ErrInjected)
	code, body = env.do(t, http.MethodGet, "/get_camera_settings", "")
	require.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, failure(msgReadFailed), decode(t, body))
}

func TestStreamStatus(t *testing.T) {
	env := newTestEnv(t, Config{})

	_, body := env.do(t, http.MethodGet, "/stream_status", "")
	assert.JSONEq(t, `{"status":"stopped"}`, string(body))

	env.live.Touch()
	_, body = env.do(t, http.MethodGet, "/stream_status", "")
	assert.JSONEq(t, `{"status":"active"}`, string(body))
}

func TestListPresets(t *testing.T) {
	env := newTestEnv(t, Config{})

	code, body := env.do(t, http.MethodGet, "/api/presets", "")
	require.Equal(t, http.StatusOK, code)

	var got struct {
		Presets []PresetInfo `json:"presets"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got.Presets, 3)
	assert.Equal(t, camera.PresetFastMotion, got.Presets[0].Name)
	assert.Equal(t, camera.MaxFrameRate, got.Presets[0].Settings["frameRate"])
}

func TestAuditEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{})
	code, _ := env.do(t, http.MethodGet, "/api/audit", "")
	assert.Equal(t, http.StatusNotFound, code)

	store, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	env = newTestEnv(t, Config{}, WithAudit(store))
	env.ctrl.OnEvent(store.HandleEvent)

	env.do(t, http.MethodPost, "/update_camera", `{"iso": 3}`)
	env.do(t, http.MethodPost, "/apply_preset", `{"preset": "nope"}`)

	code, body := env.do(t, http.MethodGet, "/api/audit?limit=1", "")
	require.Equal(t, http.StatusOK, code)

	var got struct {
		Entries []audit.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "apply_preset", got.Entries[0].Operation)
	assert.Equal(t, "unknown_preset", got.Entries[0].Outcome)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, Config{CORSOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodGet, "/stream_status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := env.srv.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/stream_status", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = env.srv.App().Test(req, -1)
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{MetricsPath: "/metrics"})
	env.do(t, http.MethodGet, "/stream_status", "")

	code, body := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "skycam_http_requests_total")
	assert.Contains(t, string(body), `route="/stream_status"`)
}

func serve(t *testing.T, srv *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	return ln.Addr().String()
}

func TestVideoFeedStreamsParts(t *testing.T) {
	env := newTestEnv(t, Config{})
	addr := serve(t, env.srv)

	resp, err := http.Get("http://" + addr + "/video_feed")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, stream.ContentType, resp.Header.Get("Content-Type"))

	mr := multipart.NewReader(resp.Body, stream.Boundary)
	for i := range 3 {
		part, err := mr.NextPart()
		require.NoError(t, err, "part %d", i)
		assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))
		data, err := io.ReadAll(part)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte{0xFF, 0xD8}), "part %d is not a JPEG", i)
	}
	assert.True(t, env.live.IsAlive(time.Second))
}

func TestVideoFeedSurvivesCaptureFailures(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.sim.FailCaptures(3, nil)
	addr := serve(t, env.srv)

	resp, err := http.Get("http://" + addr + "/video_feed")
	require.NoError(t, err)
	defer resp.Body.Close()

	part, err := multipart.NewReader(resp.Body, stream.Boundary).NextPart()
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))
	assert.GreaterOrEqual(t, env.sim.Captures(), 4)
}

func TestShutdownEndsStreams(t *testing.T) {
	env := newTestEnv(t, Config{})
	addr := serve(t, env.srv)

	resp, err := http.Get("http://" + addr + "/video_feed")
	require.NoError(t, err)
	defer resp.Body.Close()
	_, err = multipart.NewReader(resp.Body, stream.Boundary).NextPart()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, env.srv.Shutdown(ctx))

	_, err = io.Copy(io.Discard, resp.Body)
	assert.NoError(t, err)
}
