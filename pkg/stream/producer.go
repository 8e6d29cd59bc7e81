// Package stream produces annotated JPEG frames for MJPEG consumers.
package stream

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/teslashibe/go-skycam/internal/log"
	"github.com/teslashibe/go-skycam/pkg/liveness"
	"github.com/teslashibe/go-skycam/pkg/metrics"
	"github.com/teslashibe/go-skycam/pkg/overlay"
)

// Capturer grabs one encoded frame. *device.Guard satisfies it.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Config holds producer pacing.
type Config struct {
	// FrameInterval is the pause after each delivered frame.
	FrameInterval time.Duration

	// Backoff is the pause after a failed attempt.
	Backoff time.Duration

	// TimestampLayout formats the label drawn on each frame.
	TimestampLayout string
}

// DefaultConfig returns roughly 10 fps with a 1 s failure backoff.
func DefaultConfig() Config {
	return Config{
		FrameInterval:   100 * time.Millisecond,
		Backoff:         time.Second,
		TimestampLayout: overlay.TimestampLayout,
	}
}

// Producer turns a Capturer into per-consumer frame sequences.
type Producer struct {
	src    Capturer
	ann    overlay.Annotator
	live   *liveness.Tracker
	clock  clockwork.Clock
	logger *slog.Logger
	cfg    Config
}

// Option configures a Producer.
type Option func(*Producer)

// WithClock sets the clock used for timestamps and pacing.
func WithClock(c clockwork.Clock) Option {
	return func(p *Producer) { p.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Producer) { p.logger = l }
}

// WithConfig overrides pacing. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(p *Producer) {
		if cfg.FrameInterval > 0 {
			p.cfg.FrameInterval = cfg.FrameInterval
		}
		if cfg.Backoff > 0 {
			p.cfg.Backoff = cfg.Backoff
		}
		if cfg.TimestampLayout != "" {
			p.cfg.TimestampLayout = cfg.TimestampLayout
		}
	}
}

// WithAnnotator sets the frame annotator.
func WithAnnotator(a overlay.Annotator) Option {
	return func(p *Producer) { p.ann = a }
}

// New returns a Producer reading from src and touching live on every
// delivered frame.
func New(src Capturer, live *liveness.Tracker, opts ...Option) *Producer {
	p := &Producer{
		src:  src,
		live: live,
		cfg:  DefaultConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.clock == nil {
		p.clock = clockwork.NewRealClock()
	}
	if p.logger == nil {
		p.logger = log.Component("stream")
	}
	if p.ann == nil {
		p.ann = overlay.NewBasic(overlay.DefaultQuality)
	}
	if p.live == nil {
		p.live = liveness.NewWithClock(p.clock)
	}
	return p
}

// Frames returns a lazy, unbounded frame sequence. Each range over it is
// an independent producer. Failures are logged and retried after Backoff
// forever; the sequence ends when the consumer stops ranging or ctx is
// cancelled.
func (p *Producer) Frames(ctx context.Context) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		failures := 0
		for ctx.Err() == nil {
			frame, err := p.next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				metrics.CaptureFailures.Inc()
				p.logger.Warn("frame capture failed, retrying",
					"attempt", failures,
					"backoff", p.cfg.Backoff,
					"error", err,
				)
				if !p.wait(ctx, p.cfg.Backoff) {
					return
				}
				continue
			}

			if failures > 0 {
				p.logger.Info("frame capture recovered", "failed_attempts", failures)
				failures = 0
			}

			p.live.Touch()
			metrics.FramesProduced.Inc()
			if !yield(frame) {
				return
			}
			if !p.wait(ctx, p.cfg.FrameInterval) {
				return
			}
		}
	}
}

func (p *Producer) next(ctx context.Context) ([]byte, error) {
	start := p.clock.Now()
	raw, err := p.src.Capture(ctx)
	metrics.CaptureLatency.Observe(p.clock.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	stamp := p.clock.Now().Format(p.cfg.TimestampLayout)
	frame, err := p.ann.Annotate(raw, stamp)
	if err != nil {
		return nil, fmt.Errorf("annotate: %w", err)
	}
	return frame, nil
}

// wait pauses for d and reports false if ctx ended first.
func (p *Producer) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-p.clock.After(d):
		return true
	}
}
