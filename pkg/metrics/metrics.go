// Package metrics exposes Prometheus collectors for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProduced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skycam_frames_produced_total",
			Help: "Total number of frames delivered to stream consumers",
		},
	)

	CaptureFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skycam_capture_failures_total",
			Help: "Total number of failed capture, annotate or encode attempts",
		},
	)

	CaptureLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skycam_capture_latency_seconds",
			Help:    "Time spent inside the device capture call, lock wait included",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skycam_active_streams",
			Help: "Number of open /video_feed connections",
		},
	)

	StreamAlive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "skycam_stream_alive",
			Help: "1 when a frame was delivered within the liveness threshold",
		},
	)

	SettingsTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skycam_settings_transactions_total",
			Help: "Control-plane operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skycam_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)
