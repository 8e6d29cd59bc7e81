package web

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-skycam/pkg/hub"
	"github.com/teslashibe/go-skycam/pkg/liveness"
	"github.com/teslashibe/go-skycam/pkg/metrics"
)

type envelope struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func startHub(t *testing.T) *hub.Hub {
	t.Helper()
	h := hub.New("status")
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h
}

func dial(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/status", nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var env envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestStatusWebsocketPushesSettingsEvents(t *testing.T) {
	h := startHub(t)
	env := newTestEnv(t, Config{}, WithHub(h))
	env.ctrl.OnEvent(env.srv.HandleEvent)
	addr := serve(t, env.srv)

	conn := dial(t, addr)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post("http://"+addr+"/update_camera", "application/json", strings.NewReader(`{"iso": 8}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	msg := readEnvelope(t, conn)
	assert.Equal(t, hub.KindSettings, msg.Type)
	assert.Equal(t, "update", msg.Data["operation"])
	assert.Equal(t, "applied", msg.Data["outcome"])
}

func TestStatusWebsocketRequiresUpgrade(t *testing.T) {
	h := startHub(t)
	env := newTestEnv(t, Config{}, WithHub(h))

	code, _ := env.do(t, http.MethodGet, "/ws/status", "")
	assert.Equal(t, http.StatusUpgradeRequired, code)
}

func TestMonitorStreamReportsTransitions(t *testing.T) {
	h := startHub(t)
	env := newTestEnv(t, Config{LivenessThreshold: 300 * time.Millisecond}, WithHub(h))
	addr := serve(t, env.srv)

	var (
		statuses = make(chan string, 8)
		ctx, end = context.WithCancel(context.Background())
	)
	defer end()
	go env.srv.MonitorStream(ctx, 5*time.Millisecond, func(s string) { statuses <- s })

	assert.Equal(t, liveness.StatusStopped, <-statuses)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.StreamAlive))

	env.live.Touch()
	assert.Equal(t, liveness.StatusActive, <-statuses)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StreamAlive))

	// the latest status is retained for clients that connect later; the
	// hub may replay the older one first if the register wins the race
	conn := dial(t, addr)
	msg := readEnvelope(t, conn)
	if msg.Data["status"] != liveness.StatusActive {
		msg = readEnvelope(t, conn)
	}
	assert.Equal(t, hub.KindStreamStatus, msg.Type)
	assert.Equal(t, liveness.StatusActive, msg.Data["status"])

	assert.Equal(t, liveness.StatusStopped, <-statuses)
}
