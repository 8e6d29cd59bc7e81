// Package gateway wires the camera gateway together: device, control
// plane, frame producer, HTTP surface and the optional audit and MQTT
// sinks.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/teslashibe/go-skycam/internal/config"
	"github.com/teslashibe/go-skycam/internal/log"
	"github.com/teslashibe/go-skycam/pkg/audit"
	"github.com/teslashibe/go-skycam/pkg/camera"
	"github.com/teslashibe/go-skycam/pkg/control"
	"github.com/teslashibe/go-skycam/pkg/device"
	"github.com/teslashibe/go-skycam/pkg/hub"
	"github.com/teslashibe/go-skycam/pkg/liveness"
	"github.com/teslashibe/go-skycam/pkg/overlay"
	"github.com/teslashibe/go-skycam/pkg/stream"
	"github.com/teslashibe/go-skycam/pkg/telemetry"
	"github.com/teslashibe/go-skycam/pkg/web"
)

// App is the running gateway.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	presets  *camera.Registry
	guard    *device.Guard
	live     *liveness.Tracker
	ctrl     *control.Controller
	producer *stream.Producer
	hub      *hub.Hub
	audit    *audit.Store
	mqtt     *telemetry.Publisher
	web      *web.Server
}

// New checks cfg and builds the preset registry. Nothing is opened
// until Init.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	extra, err := cfg.PresetSets()
	if err != nil {
		return nil, err
	}
	presets, err := camera.NewRegistry(extra)
	if err != nil {
		return nil, fmt.Errorf("presets: %w", err)
	}
	return &App{
		cfg:     cfg,
		logger:  log.Component("gateway"),
		presets: presets,
	}, nil
}

// Presets returns the preset registry.
func (a *App) Presets() *camera.Registry {
	return a.presets
}

// Init opens the device and the optional sinks and builds the server.
// Optional sinks that fail to start are logged and skipped.
func (a *App) Init() error {
	dev, err := device.Open(a.cfg.Camera.Driver, device.Options{
		Source:  a.cfg.Camera.Device,
		Binary:  a.cfg.Camera.Binary,
		Width:   a.cfg.Camera.Width,
		Height:  a.cfg.Camera.Height,
		Quality: a.cfg.Camera.Quality,
		Timeout: a.cfg.Camera.CaptureTimeout,
		Logger:  log.Component("device"),
	})
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	a.guard = device.NewGuard(dev)
	a.logger.Info("camera opened", "driver", a.cfg.Camera.Driver,
		"width", a.cfg.Camera.Width, "height", a.cfg.Camera.Height)

	ann, err := overlay.New(a.cfg.Stream.Annotator, a.cfg.Stream.Quality)
	if err != nil {
		a.logger.Warn("annotator unavailable, using basic", "annotator", a.cfg.Stream.Annotator, "error", err)
		ann = overlay.NewBasic(a.cfg.Stream.Quality)
	}

	a.live = liveness.New()
	a.hub = hub.New("status")
	a.ctrl = control.New(a.guard, a.presets)
	a.producer = stream.New(a.guard, a.live,
		stream.WithAnnotator(ann),
		stream.WithConfig(stream.Config{
			FrameInterval: a.cfg.Stream.FrameInterval,
			Backoff:       a.cfg.Stream.Backoff,
		}),
	)

	opts := []web.Option{web.WithHub(a.hub)}

	if a.cfg.Audit.Enabled {
		store, err := audit.Open(a.cfg.Audit.Path)
		if err != nil {
			a.logger.Warn("audit log disabled", "path", a.cfg.Audit.Path, "error", err)
		} else {
			a.audit = store
			a.ctrl.OnEvent(store.HandleEvent)
			opts = append(opts, web.WithAudit(store))
			a.logger.Info("audit log enabled", "path", a.cfg.Audit.Path)
		}
	}

	if a.cfg.MQTT.Enabled {
		pub, err := telemetry.Connect(telemetry.Config{
			Broker:      a.cfg.MQTT.Broker,
			ClientID:    a.cfg.MQTT.ClientID,
			Username:    a.cfg.MQTT.Username,
			Password:    a.cfg.MQTT.Password,
			TopicPrefix: a.cfg.MQTT.TopicPrefix,
			QoS:         byte(a.cfg.MQTT.QoS),
		}, nil)
		if err != nil {
			a.logger.Warn("mqtt telemetry disabled", "broker", a.cfg.MQTT.Broker, "error", err)
		} else {
			a.mqtt = pub
			a.ctrl.OnEvent(pub.HandleEvent)
		}
	}

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.web = web.NewServer(web.Config{
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		StaticDir:         a.cfg.Server.StaticDir,
		MetricsPath:       metricsPath,
		LivenessThreshold: a.cfg.Stream.LivenessThreshold,
	}, a.ctrl, a.producer, a.live, opts...)
	a.ctrl.OnEvent(a.web.HandleEvent)

	return nil
}

// Run listens on the configured address until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Addr(), err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the gateway on ln until ctx is cancelled, then shuts the
// HTTP server down within the configured timeout.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	if a.web == nil {
		return errors.New("gateway: Serve called before Init")
	}

	go a.hub.Run(ctx)

	var sinks []func(string)
	if a.mqtt != nil {
		sinks = append(sinks, a.mqtt.HandleStreamStatus)
	}
	go a.web.MonitorStream(ctx, a.cfg.Stream.StatusInterval, sinks...)

	errc := make(chan error, 1)
	go func() { errc <- a.web.Serve(ln) }()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.web.Shutdown(shCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Shutdown releases the device and the sinks.
func (a *App) Shutdown() {
	if a.mqtt != nil {
		if err := a.mqtt.Close(); err != nil {
			a.logger.Warn("mqtt close", "error", err)
		}
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.logger.Warn("audit close", "error", err)
		}
	}
	if a.guard != nil {
		if err := a.guard.Close(); err != nil {
			a.logger.Warn("camera close", "error", err)
		}
	}
}
