package device

import "errors"

var (
	// ErrClosed is returned by every call on a closed device.
	ErrClosed = errors.New("device: closed")

	// ErrEmptyFrame is returned when the sensor produced no image data.
	ErrEmptyFrame = errors.New("device: empty frame")

	// ErrInjected is the default error Sim returns for injected faults.
	ErrInjected = errors.New("device: injected fault")
)

// ErrUnknownDriver is returned by Open for a name nobody registered.
var ErrUnknownDriver = errors.New("device: unknown driver")
