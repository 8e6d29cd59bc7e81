package config

import (
	"os"
	"strconv"
)

// Environment variables that override the config file.
const (
	EnvHost       = "SKYCAM_HOST"
	EnvPort       = "SKYCAM_PORT"
	EnvDriver     = "SKYCAM_DRIVER"
	EnvLogLevel   = "SKYCAM_LOG_LEVEL"
	EnvMQTTBroker = "SKYCAM_MQTT_BROKER"
	EnvAuditPath  = "SKYCAM_AUDIT_PATH"
)

// envString returns the value of key, or def when unset.
func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt returns the integer value of key, or def when unset or invalid.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Host = envString(EnvHost, cfg.Server.Host)
	cfg.Server.Port = envInt(EnvPort, cfg.Server.Port)
	cfg.Camera.Driver = envString(EnvDriver, cfg.Camera.Driver)
	cfg.Logging.Level = envString(EnvLogLevel, cfg.Logging.Level)

	if v := os.Getenv(EnvMQTTBroker); v != "" {
		cfg.MQTT.Broker = v
		cfg.MQTT.Enabled = true
	}
	if v := os.Getenv(EnvAuditPath); v != "" {
		cfg.Audit.Path = v
		cfg.Audit.Enabled = true
	}
}
