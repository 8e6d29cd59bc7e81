// Package web serves the camera gateway over HTTP: the MJPEG feed, the
// settings control plane, stream status and the dashboard websocket.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-skycam/internal/log"
	"github.com/teslashibe/go-skycam/pkg/audit"
	"github.com/teslashibe/go-skycam/pkg/control"
	"github.com/teslashibe/go-skycam/pkg/hub"
	"github.com/teslashibe/go-skycam/pkg/liveness"
	"github.com/teslashibe/go-skycam/pkg/metrics"
	"github.com/teslashibe/go-skycam/pkg/stream"
)

// Config holds HTTP surface settings.
type Config struct {
	// CORSOrigins lists origins allowed to call the API. Empty allows all.
	CORSOrigins []string

	// StaticDir is served at / when set.
	StaticDir string

	// MetricsPath exposes Prometheus metrics when set.
	MetricsPath string

	// LivenessThreshold is the frame age after which the stream is
	// reported stopped.
	LivenessThreshold time.Duration
}

// AuditLog lists recorded control transactions.
type AuditLog interface {
	List(ctx context.Context, limit int) ([]audit.Entry, error)
}

// Server is the camera gateway HTTP server
type Server struct {
	app      *fiber.App
	cfg      Config
	logger   *slog.Logger
	ctrl     *control.Controller
	producer *stream.Producer
	live     *liveness.Tracker
	hub      *hub.Hub
	audit    AuditLog

	// Streams derive from base so Shutdown can end them before fiber
	// waits for connections to drain.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithHub enables the /ws/status websocket backed by h.
func WithHub(h *hub.Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithAudit enables /api/audit.
func WithAudit(a AuditLog) Option {
	return func(s *Server) { s.audit = a }
}

// NewServer creates the server and registers its routes.
func NewServer(cfg Config, ctrl *control.Controller, producer *stream.Producer, live *liveness.Tracker, opts ...Option) *Server {
	if cfg.LivenessThreshold <= 0 {
		cfg.LivenessThreshold = liveness.DefaultThreshold
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		ctrl:     ctrl,
		producer: producer,
		live:     live,
		base:     base,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Component("web")
	}

	app := fiber.New(fiber.Config{
		AppName:               "skycam",
		DisableStartupMessage: true,
	})

	app.Use(s.countRequests)

	corsCfg := cors.Config{}
	if len(cfg.CORSOrigins) > 0 {
		corsCfg.AllowOrigins = strings.Join(cfg.CORSOrigins, ",")
	}
	app.Use(cors.New(corsCfg))

	// Stream and control plane
	app.Get("/video_feed", s.handleVideoFeed)
	app.Post("/update_camera", s.handleUpdateCamera)
	app.Post("/apply_preset", s.handleApplyPreset)
	app.Post("/reset_camera", s.handleResetCamera)
	app.Get("/get_camera_settings", s.handleGetCameraSettings)
	app.Get("/stream_status", s.handleStreamStatus)

	api := app.Group("/api")
	api.Get("/presets", s.handleListPresets)
	api.Get("/audit", s.handleListAudit)

	if s.hub != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/status", websocket.New(s.handleStatusWS))
	}

	if cfg.MetricsPath != "" {
		app.Get(cfg.MetricsPath, adaptor.HTTPHandler(promhttp.Handler()))
	}

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown ends open streams, then stops the server, waiting up to ctx
// for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("streams still open at shutdown")
		}

		if err := s.app.ShutdownWithContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.shutdownErr = err
		}
	})
	return s.shutdownErr
}

// HandleEvent forwards a control event to websocket clients.
func (s *Server) HandleEvent(ev control.Event) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(hub.KindSettings, ev, false); err != nil {
		s.logger.Warn("failed to publish settings event", "error", err)
	}
}

// MonitorStream reports stream status transitions every interval until
// ctx ends: the gauge is updated, the status is retained on the hub and
// each sink is called.
func (s *Server) MonitorStream(ctx context.Context, interval time.Duration, sinks ...func(status string)) {
	s.live.Watch(ctx, s.cfg.LivenessThreshold, interval, func(status string) {
		if status == liveness.StatusActive {
			metrics.StreamAlive.Set(1)
		} else {
			metrics.StreamAlive.Set(0)
		}
		s.logger.Info("stream status changed", "status", status)
		if s.hub != nil {
			if err := s.hub.Publish(hub.KindStreamStatus, fiber.Map{"status": status}, true); err != nil {
				s.logger.Warn("failed to publish stream status", "error", err)
			}
		}
		for _, fn := range sinks {
			fn(status)
		}
	})
}

func (s *Server) countRequests(c *fiber.Ctx) error {
	err := c.Next()

	status := c.Response().StatusCode()
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		status = ferr.Code
	}
	metrics.RequestCount.WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).Inc()
	return err
}
