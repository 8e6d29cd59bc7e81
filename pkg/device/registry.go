package device

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Driver names registered by this package.
const (
	DriverSim       = "sim"
	DriverLibcamera = "libcamera"
)

// Options is the driver-independent device configuration. Drivers use
// the fields that apply to them.
type Options struct {
	Source  string // device index or path
	Binary  string // capture binary
	Width   int
	Height  int
	Quality int
	Timeout time.Duration
	Logger  *slog.Logger
}

// Factory opens a device.
type Factory func(opts Options) (Device, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// Register makes a driver available to Open. Drivers that need cgo
// register from their own package's init.
func Register(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = f
}

// Open opens the named driver.
func Open(name string, opts Options) (Device, error) {
	driversMu.RLock()
	f, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownDriver, name, Drivers())
	}
	return f(opts)
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(DriverSim, func(opts Options) (Device, error) {
		return NewSim(opts.Width, opts.Height), nil
	})
	Register(DriverLibcamera, func(opts Options) (Device, error) {
		return NewLibcamera(LibcameraConfig{
			Binary:  opts.Binary,
			Width:   opts.Width,
			Height:  opts.Height,
			Quality: opts.Quality,
			Timeout: opts.Timeout,
		}, opts.Logger), nil
	})
}
