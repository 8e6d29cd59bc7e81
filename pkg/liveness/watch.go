package liveness

import (
	"context"
	"time"
)

// Watch polls t every interval and calls fn with the current status
// whenever it changes, starting with the status at the first tick. It
// returns when ctx is cancelled.
func (t *Tracker) Watch(ctx context.Context, threshold, interval time.Duration, fn func(status string)) {
	last := ""
	for {
		if s := t.Status(threshold); s != last {
			last = s
			fn(s)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.clock.After(interval):
		}
	}
}
