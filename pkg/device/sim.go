package device

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-skycam/pkg/camera"
)

// ApplyFault decides whether the call-th Apply (1-based) fails before
// writing p. Returning nil lets the write proceed.
type ApplyFault func(call int, p camera.Param) error

// Sim is an in-memory sensor. Frames are flat gray JPEGs whose level
// follows Brightness. Apply writes one parameter at a time, so a failure
// midway leaves the state partially updated like real hardware.
type Sim struct {
	width, height int

	mu          sync.Mutex
	state       camera.ParameterSet
	closed      bool
	captures    int
	applies     int
	failCapture int
	captureErr  error
	fault       ApplyFault
	applyDelay  time.Duration
	readErr     error
	partialRead bool
	seen        []camera.ParameterSet

	inflight atomic.Int32
	overlaps atomic.Int32
}

// NewSim returns a Sim holding the default parameters.
func NewSim(width, height int) *Sim {
	if width <= 0 {
		width = 64
	}
	if height <= 0 {
		height = 48
	}
	return &Sim{width: width, height: height, state: camera.Defaults()}
}

func (s *Sim) enter() {
	if s.inflight.Add(1) > 1 {
		s.overlaps.Add(1)
	}
}

func (s *Sim) exit() { s.inflight.Add(-1) }

// Capture renders the current state as a JPEG.
func (s *Sim) Capture(ctx context.Context) ([]byte, error) {
	s.enter()
	defer s.exit()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.captures++
	if s.failCapture != 0 {
		if s.failCapture > 0 {
			s.failCapture--
		}
		err := s.captureErr
		s.mu.Unlock()
		return nil, fmt.Errorf("capture: %w", err)
	}
	state := s.state
	s.seen = append(s.seen, state)
	s.mu.Unlock()

	return s.render(state)
}

func (s *Sim) render(state camera.ParameterSet) ([]byte, error) {
	level := 128.0
	if v, ok := state.Get(camera.Brightness); ok {
		level += v.Float() * 127
	}
	img := image.NewGray(image.Rect(0, 0, s.width, s.height))
	c := color.Gray{Y: uint8(level)}
	for i := range img.Pix {
		img.Pix[i] = c.Y
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Apply writes set one parameter at a time in Param order.
func (s *Sim) Apply(ctx context.Context, set camera.ParameterSet) error {
	s.enter()
	defer s.exit()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.applies++
	call, fault, delay := s.applies, s.fault, s.applyDelay
	s.mu.Unlock()

	if err := set.Check(); err != nil {
		return err
	}
	for p, v := range set.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if fault != nil {
			if err := fault(call, p); err != nil {
				return fmt.Errorf("apply %s: %w", p, err)
			}
		}
		s.mu.Lock()
		s.state.Set(p, v)
		s.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	return nil
}

// Read returns the current state.
func (s *Sim) Read(ctx context.Context) (camera.ParameterSet, error) {
	s.enter()
	defer s.exit()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return camera.ParameterSet{}, ErrClosed
	}
	if s.readErr != nil {
		return camera.ParameterSet{}, s.readErr
	}
	if s.partialRead {
		// sensors commonly omit write-only controls from their metadata
		return s.state.Restrict([]camera.Param{camera.ExposureTime, camera.AnalogueGain, camera.FrameRate}), nil
	}
	return s.state, nil
}

// Close marks the device closed.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// FailCaptures makes the next n captures fail with err (ErrInjected when
// nil). A negative n fails every capture until reset with n = 0.
func (s *Sim) FailCaptures(n int, err error) {
	if err == nil {
		err = ErrInjected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCapture, s.captureErr = n, err
}

// SetApplyFault installs fn; nil clears it.
func (s *Sim) SetApplyFault(fn ApplyFault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// FailApplyAfter returns a fault that fails call number call after n
// parameters were written. call 0 matches every call.
func FailApplyAfter(call, n int) ApplyFault {
	written := 0
	var mu sync.Mutex
	return func(c int, _ camera.Param) error {
		if call != 0 && c != call {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		if written >= n {
			return ErrInjected
		}
		written++
		return nil
	}
}

// SetApplyDelay sleeps d after each parameter write.
func (s *Sim) SetApplyDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyDelay = d
}

// SetReadError makes Read fail with err; nil clears it.
func (s *Sim) SetReadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// SetPartialRead makes Read report only exposure, gain and frame rate.
func (s *Sim) SetPartialRead(partial bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partialRead = partial
}

// SetState overwrites the sensor state without going through Apply.
func (s *Sim) SetState(set camera.ParameterSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = set
}

// State returns the current parameters.
func (s *Sim) State() camera.ParameterSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Captures returns the number of Capture calls, failed ones included.
func (s *Sim) Captures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures
}

// Applies returns the number of Apply calls.
func (s *Sim) Applies() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applies
}

// Seen returns the parameter state observed by each successful capture.
func (s *Sim) Seen() []camera.ParameterSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]camera.ParameterSet(nil), s.seen...)
}

// Overlaps returns how many calls started while another was in flight.
func (s *Sim) Overlaps() int {
	return int(s.overlaps.Load())
}
