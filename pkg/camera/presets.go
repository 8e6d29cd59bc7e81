package camera

import (
	"errors"
	"fmt"
	"sort"
)

// Built-in preset names.
const (
	PresetLowLight   = "low_light"
	PresetFastMotion = "fast_motion"
	PresetHighDetail = "high_detail"
)

// Defaults returns the complete parameter set used by reset and to fill
// gaps in a device read-back.
func Defaults() ParameterSet {
	return NewSet(
		Pair{ExposureTime, Int(33000)}, // 33 ms
		Pair{AnalogueGain, Float(1.0)},
		Pair{AwbMode, Enum(0)},
		Pair{FrameRate, Float(30)},
		Pair{NoiseReductionMode, Enum(1)},
		Pair{Contrast, Float(1.0)},
		Pair{Brightness, Float(0)},
		Pair{Sharpness, Float(1.0)},
		Pair{Saturation, Float(1.0)},
		Pair{HdrMode, Enum(0)},
		Pair{TemporalNoiseReductionMode, Enum(0)},
		Pair{HighQualityDenoise, Enum(0)},
		Pair{LocalToneMappingEnable, Bool(false)},
		Pair{LensShading, Float(1.0)},
		Pair{DefectivePixelCorrection, Bool(true)},
		Pair{BlackLevel, Int(0)},
		Pair{AeExposureMode, Enum(0)},
		Pair{AeMeteringMode, Enum(0)},
	)
}

// LowLightPreset trades motion sharpness for signal: long exposure, high
// gain, night HDR and aggressive denoising.
func LowLightPreset() ParameterSet {
	return NewSet(
		Pair{ExposureTime, Int(100000)},
		Pair{AnalogueGain, Float(8.0)},
		Pair{AwbMode, Enum(1)},
		Pair{FrameRate, Float(15)},
		Pair{NoiseReductionMode, Enum(2)},
		Pair{Contrast, Float(1.2)},
		Pair{Brightness, Float(0.1)},
		Pair{Sharpness, Float(0.8)},
		Pair{HdrMode, Enum(3)},
		Pair{TemporalNoiseReductionMode, Enum(2)},
		Pair{HighQualityDenoise, Enum(2)},
		Pair{LocalToneMappingEnable, Bool(true)},
		Pair{LensShading, Float(1.0)},
		Pair{DefectivePixelCorrection, Bool(true)},
		Pair{BlackLevel, Int(5)},
	)
}

// FastMotionPreset uses a 5 ms shutter at the frame rate ceiling.
func FastMotionPreset() ParameterSet {
	return NewSet(
		Pair{ExposureTime, Int(5000)},
		Pair{AnalogueGain, Float(2.0)},
		Pair{AwbMode, Enum(0)},
		Pair{FrameRate, Float(MaxFrameRate)},
		Pair{NoiseReductionMode, Enum(1)},
		Pair{Contrast, Float(1.1)},
		Pair{Brightness, Float(0)},
		Pair{Sharpness, Float(1.2)},
		Pair{HdrMode, Enum(1)},
		Pair{TemporalNoiseReductionMode, Enum(0)},
		Pair{HighQualityDenoise, Enum(0)},
		Pair{LocalToneMappingEnable, Bool(false)},
		Pair{LensShading, Float(1.0)},
		Pair{DefectivePixelCorrection, Bool(true)},
		Pair{BlackLevel, Int(0)},
	)
}

// HighDetailPreset disables noise reduction and raises sharpness.
func HighDetailPreset() ParameterSet {
	return NewSet(
		Pair{ExposureTime, Int(20000)},
		Pair{AnalogueGain, Float(1.0)},
		Pair{AwbMode, Enum(0)},
		Pair{FrameRate, Float(30)},
		Pair{NoiseReductionMode, Enum(0)},
		Pair{Contrast, Float(1.3)},
		Pair{Brightness, Float(0)},
		Pair{Sharpness, Float(1.5)},
		Pair{HdrMode, Enum(1)},
		Pair{TemporalNoiseReductionMode, Enum(0)},
		Pair{HighQualityDenoise, Enum(0)},
		Pair{LocalToneMappingEnable, Bool(true)},
		Pair{LensShading, Float(1.0)},
		Pair{DefectivePixelCorrection, Bool(true)},
		Pair{BlackLevel, Int(0)},
	)
}

// Presets returns the built-in presets keyed by name.
func Presets() map[string]ParameterSet {
	return map[string]ParameterSet{
		PresetLowLight:   LowLightPreset(),
		PresetFastMotion: FastMotionPreset(),
		PresetHighDetail: HighDetailPreset(),
	}
}

// ErrDuplicatePreset is returned when two presets share a name.
var ErrDuplicatePreset = errors.New("camera: duplicate preset")

// Registry is an immutable set of named presets. Every preset has passed
// Check, so applying one never needs validation.
type Registry struct {
	presets map[string]ParameterSet
	names   []string
}

// NewRegistry builds a registry from the built-ins plus extra. A preset
// that fails Check, is empty, or reuses a name is a construction error.
func NewRegistry(extra map[string]ParameterSet) (*Registry, error) {
	r := &Registry{presets: make(map[string]ParameterSet)}
	add := func(name string, set ParameterSet) error {
		if name == "" {
			return errors.New("camera: preset with empty name")
		}
		if _, dup := r.presets[name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicatePreset, name)
		}
		if set.Empty() {
			return fmt.Errorf("camera: preset %s sets no parameters", name)
		}
		if err := set.Check(); err != nil {
			return fmt.Errorf("camera: preset %s: %w", name, err)
		}
		r.presets[name] = set
		r.names = append(r.names, name)
		return nil
	}

	for name, set := range Presets() {
		if err := add(name, set); err != nil {
			return nil, err
		}
	}
	for name, set := range extra {
		if err := add(name, set); err != nil {
			return nil, err
		}
	}
	sort.Strings(r.names)
	return r, nil
}

// Get returns the preset named name.
func (r *Registry) Get(name string) (ParameterSet, bool) {
	set, ok := r.presets[name]
	return set, ok
}

// Names returns the preset names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// PresetsFromWire validates wire-keyed preset definitions, as found in
// the config file. Reasons from every preset are collected.
func PresetsFromWire(defs map[string]map[string]any) (map[string]ParameterSet, error) {
	out := make(map[string]ParameterSet, len(defs))
	var reasons []string
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		set, err := Validate(defs[name])
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				for _, r := range verr.Reasons {
					reasons = append(reasons, name+": "+r)
				}
				continue
			}
			return nil, err
		}
		out[name] = set
	}
	if len(reasons) > 0 {
		return nil, &ValidationError{Reasons: reasons}
	}
	return out, nil
}
