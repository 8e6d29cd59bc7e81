package control

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPreset is returned by ApplyPreset for a name not in the registry.
	ErrUnknownPreset = errors.New("control: unknown preset")

	// ErrApplyFailed is matched by every *ApplyError.
	ErrApplyFailed = errors.New("control: apply failed")
)

// ApplyError reports a device failure during a control operation.
// Outcome tells whether the device was rolled back.
type ApplyError struct {
	Op        Operation
	Outcome   Outcome
	Err       error
	RevertErr error
}

func (e *ApplyError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Outcome, e.Err)
	if e.RevertErr != nil {
		msg += fmt.Sprintf(" (revert: %v)", e.RevertErr)
	}
	return msg
}

func (e *ApplyError) Unwrap() []error {
	errs := []error{ErrApplyFailed, e.Err}
	if e.RevertErr != nil {
		errs = append(errs, e.RevertErr)
	}
	return errs
}
