package device

import (
	"context"
	"sync"

	"github.com/teslashibe/go-skycam/pkg/camera"
)

// Guard is the single mutual-exclusion domain around a Device. Every
// capture, apply and read takes the same lock, and Transaction holds it
// across a multi-step sequence.
type Guard struct {
	mu  sync.Mutex
	dev Device
}

// NewGuard wraps dev. The Guard owns dev from here on.
func NewGuard(dev Device) *Guard {
	return &Guard{dev: dev}
}

// Capture grabs one frame. The lock is held for the capture only.
func (g *Guard) Capture(ctx context.Context) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dev.Capture(ctx)
}

// Apply pushes set to the device.
func (g *Guard) Apply(ctx context.Context, set camera.ParameterSet) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dev.Apply(ctx, set)
}

// Read returns the device's reported parameters.
func (g *Guard) Read(ctx context.Context) (camera.ParameterSet, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dev.Read(ctx)
}

// Transaction runs fn with exclusive access to the device. fn must not
// retain d or call back into the Guard.
func (g *Guard) Transaction(fn func(d Device) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g.dev)
}

// Close closes the device once no operation is in flight.
func (g *Guard) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dev.Close()
}
