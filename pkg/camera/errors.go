package camera

import (
	"errors"
	"strings"
)

var (
	// ErrOutOfDomain is returned by Check for values outside a param's domain.
	ErrOutOfDomain = errors.New("camera: value out of domain")

	// ErrUnknownParam is returned when decoding a name that is not in the table.
	ErrUnknownParam = errors.New("camera: unknown parameter")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("camera: invalid settings")
)

// ValidationError lists every reason a settings request was rejected.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "invalid settings: " + strings.Join(e.Reasons, " ")
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
