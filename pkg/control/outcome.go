package control

import (
	"time"

	"github.com/teslashibe/go-skycam/pkg/camera"
)

// Operation names a control-plane entry point.
type Operation string

const (
	OpUpdate Operation = "update"
	OpPreset Operation = "apply_preset"
	OpReset  Operation = "reset"
)

// Outcome is the terminal state of one control operation.
type Outcome int

const (
	// Applied: the device accepted every parameter.
	Applied Outcome = iota
	// Rejected: validation failed and the device was not touched.
	Rejected
	// UnknownPreset: the preset name is not registered.
	UnknownPreset
	// Reverted: apply failed and the prior values were restored.
	Reverted
	// RevertFailed: apply failed and so did the restore. The device is in
	// an unknown state.
	RevertFailed
	// Failed: the device failed and no revert was attempted.
	Failed
)

var outcomeNames = [...]string{
	Applied:       "applied",
	Rejected:      "rejected",
	UnknownPreset: "unknown_preset",
	Reverted:      "reverted",
	RevertFailed:  "revert_failed",
	Failed:        "failed",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// OK reports whether the device accepted the change.
func (o Outcome) OK() bool { return o == Applied }

// Result describes a finished operation.
type Result struct {
	Outcome Outcome
	Preset  string
	Params  camera.ParameterSet
	Reasons []string
}

// Event is published after every completed operation, once the device
// lock is released.
type Event struct {
	ID        string              `json:"id"`
	Operation Operation           `json:"operation"`
	Outcome   Outcome             `json:"outcome"`
	Preset    string              `json:"preset,omitempty"`
	Params    camera.ParameterSet `json:"params"`
	Reasons   []string            `json:"reasons,omitempty"`
	Err       string              `json:"error,omitempty"`
	At        time.Time           `json:"at"`
}
