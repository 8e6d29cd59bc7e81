// Package device abstracts the camera sensor. A Device is not safe for
// concurrent use; all access goes through a Guard.
package device

import (
	"context"

	"github.com/teslashibe/go-skycam/pkg/camera"
)

// Device is a handle to one physical sensor.
type Device interface {
	// Capture grabs one encoded JPEG frame.
	Capture(ctx context.Context) ([]byte, error)

	// Apply pushes parameters to the sensor. A failed Apply may leave
	// the sensor partially updated.
	Apply(ctx context.Context, set camera.ParameterSet) error

	// Read returns the parameters the sensor reports. It may be partial.
	Read(ctx context.Context) (camera.ParameterSet, error)

	Close() error
}
