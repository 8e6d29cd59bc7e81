// Package liveness tracks when the last frame was delivered to any
// stream consumer.
package liveness

import (
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultThreshold is how long without a frame before the stream counts
// as stopped.
const DefaultThreshold = 5 * time.Second

// Status strings reported over HTTP.
const (
	StatusActive  = "active"
	StatusStopped = "stopped"
)

// Tracker holds the time of the most recent frame. It is safe for
// concurrent use without locks. A Tracker that was never touched is not
// alive.
type Tracker struct {
	clock clockwork.Clock
	last  atomic.Int64 // unix nanos, 0 = never
}

// New returns a Tracker on the real clock.
func New() *Tracker {
	return NewWithClock(clockwork.NewRealClock())
}

// NewWithClock returns a Tracker reading time from clock.
func NewWithClock(clock clockwork.Clock) *Tracker {
	return &Tracker{clock: clock}
}

// Touch records a frame delivery now.
func (t *Tracker) Touch() {
	t.last.Store(t.clock.Now().UnixNano())
}

// LastFrame returns the time of the last touch.
func (t *Tracker) LastFrame() (time.Time, bool) {
	n := t.last.Load()
	if n == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}

// IsAlive reports whether a frame was delivered within threshold.
func (t *Tracker) IsAlive(threshold time.Duration) bool {
	last, ok := t.LastFrame()
	if !ok {
		return false
	}
	return t.clock.Since(last) <= threshold
}

// Status returns StatusActive or StatusStopped.
func (t *Tracker) Status(threshold time.Duration) string {
	if t.IsAlive(threshold) {
		return StatusActive
	}
	return StatusStopped
}
