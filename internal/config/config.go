// Package config loads go-skycam configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-skycam/pkg/camera"
)

// Camera drivers.
const (
	DriverSim       = "sim"
	DriverLibcamera = "libcamera"
	DriverGoCV      = "gocv"
)

// Frame annotators.
const (
	AnnotatorGoCV  = "gocv"
	AnnotatorBasic = "basic"
	AnnotatorNone  = "none"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig              `yaml:"server"`
	Camera  CameraConfig              `yaml:"camera"`
	Stream  StreamConfig              `yaml:"stream"`
	Logging LoggingConfig             `yaml:"logging"`
	MQTT    MQTTConfig                `yaml:"mqtt"`
	Audit   AuditConfig               `yaml:"audit"`
	Metrics MetricsConfig             `yaml:"metrics"`
	Presets map[string]map[string]any `yaml:"presets"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	StaticDir       string        `yaml:"static_dir"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CameraConfig selects and configures the sensor driver.
type CameraConfig struct {
	Driver         string        `yaml:"driver"`
	Device         string        `yaml:"device"` // gocv source: index or path
	Binary         string        `yaml:"binary"` // libcamera still binary
	Width          int           `yaml:"width"`
	Height         int           `yaml:"height"`
	Quality        int           `yaml:"quality"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
}

// StreamConfig contains frame producer settings.
type StreamConfig struct {
	FrameInterval     time.Duration `yaml:"frame_interval"`
	Backoff           time.Duration `yaml:"backoff"`
	LivenessThreshold time.Duration `yaml:"liveness_threshold"`
	StatusInterval    time.Duration `yaml:"status_interval"`
	Annotator         string        `yaml:"annotator"`
	Quality           int           `yaml:"quality"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MQTTConfig contains broker settings for telemetry.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// AuditConfig contains the SQLite audit trail settings.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000"},
			ShutdownTimeout: 5 * time.Second,
		},
		Camera: CameraConfig{
			Driver:         DriverLibcamera,
			Device:         "0",
			Binary:         "rpicam-still",
			Width:          1920,
			Height:         1080,
			Quality:        85,
			CaptureTimeout: 10 * time.Second,
		},
		Stream: StreamConfig{
			FrameInterval:     100 * time.Millisecond,
			Backoff:           time.Second,
			LivenessThreshold: 5 * time.Second,
			StatusInterval:    time.Second,
			Annotator:         AnnotatorGoCV,
			Quality:           85,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		MQTT: MQTTConfig{
			ClientID:    "skycam",
			TopicPrefix: "skycam",
			QoS:         1,
		},
		Audit: AuditConfig{
			Path: "./data/skycam-audit.db",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if !slices.Contains([]string{DriverSim, DriverLibcamera, DriverGoCV}, c.Camera.Driver) {
		errs = append(errs, fmt.Errorf("camera.driver %q: want %s, %s or %s", c.Camera.Driver, DriverSim, DriverLibcamera, DriverGoCV))
	}
	if !slices.Contains([]string{AnnotatorGoCV, AnnotatorBasic, AnnotatorNone}, c.Stream.Annotator) {
		errs = append(errs, fmt.Errorf("stream.annotator %q: want %s, %s or %s", c.Stream.Annotator, AnnotatorGoCV, AnnotatorBasic, AnnotatorNone))
	}
	if c.Camera.Quality < 1 || c.Camera.Quality > 100 {
		errs = append(errs, fmt.Errorf("camera.quality %d not in [1,100]", c.Camera.Quality))
	}
	if c.Stream.Quality < 1 || c.Stream.Quality > 100 {
		errs = append(errs, fmt.Errorf("stream.quality %d not in [1,100]", c.Stream.Quality))
	}
	for name, d := range map[string]time.Duration{
		"stream.frame_interval":     c.Stream.FrameInterval,
		"stream.backoff":            c.Stream.Backoff,
		"stream.liveness_threshold": c.Stream.LivenessThreshold,
		"stream.status_interval":    c.Stream.StatusInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", c.MQTT.QoS))
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		errs = append(errs, errors.New("audit.path is required when audit is enabled"))
	}
	if _, err := c.PresetSets(); err != nil {
		errs = append(errs, fmt.Errorf("presets: %w", err))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// PresetSets validates the configured presets.
func (c *Config) PresetSets() (map[string]camera.ParameterSet, error) {
	if len(c.Presets) == 0 {
		return nil, nil
	}
	return camera.PresetsFromWire(c.Presets)
}
