// Package camera defines the sensor parameters go-skycam can change at
// runtime: the parameter table, typed parameter sets, validation of
// untrusted requests and the preset registry.
package camera

import (
	"fmt"
	"strconv"
)

// Param names one sensor control. The set is closed; ParameterSet is
// indexed by it.
type Param int

// Sensor controls, in canonical order.
const (
	ExposureTime Param = iota
	AnalogueGain
	AwbMode
	FrameRate
	NoiseReductionMode
	Contrast
	Brightness
	Sharpness
	Saturation
	HdrMode
	TemporalNoiseReductionMode
	HighQualityDenoise
	LocalToneMappingEnable
	LensShading
	DefectivePixelCorrection
	BlackLevel
	AeExposureMode
	AeMeteringMode

	numParams
)

// NumParams is the number of known parameters.
const NumParams = int(numParams)

// Kind is the value type a parameter carries.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	}
	return "unknown"
}

// Spec describes one parameter: its device name, wire key, type and domain.
type Spec struct {
	Param Param
	Name  string // device control name, e.g. "ExposureTime"
	Key   string // HTTP wire key, e.g. "exposureTime"
	Label string // human label used in rejection reasons
	Kind  Kind

	// Min and Max bound numeric parameters (inclusive), in device units.
	Min, Max float64

	// Enum is set for KindEnum parameters.
	Enum *EnumTable
}

// Sensor limits for the Raspberry Pi camera modules this gateway targets.
const (
	MaxExposureMicros = 1_000_000 // 1 s
	MaxAnalogueGain   = 16.0
	MaxFrameRate      = 30.0
	MaxBlackLevel     = 4095 // 12-bit pedestal
)

var specs = [numParams]Spec{
	ExposureTime:               {Param: ExposureTime, Name: "ExposureTime", Key: "exposureTime", Label: "Exposure time", Kind: KindInt, Min: 0, Max: MaxExposureMicros},
	AnalogueGain:               {Param: AnalogueGain, Name: "AnalogueGain", Key: "iso", Label: "ISO", Kind: KindFloat, Min: 1, Max: MaxAnalogueGain},
	AwbMode:                    {Param: AwbMode, Name: "AwbMode", Key: "awbMode", Label: "AWB mode", Kind: KindEnum, Enum: AwbModes},
	FrameRate:                  {Param: FrameRate, Name: "FrameRate", Key: "frameRate", Label: "Frame rate", Kind: KindFloat, Min: 1, Max: MaxFrameRate},
	NoiseReductionMode:         {Param: NoiseReductionMode, Name: "NoiseReductionMode", Key: "noiseReduction", Label: "Noise reduction", Kind: KindEnum, Enum: NoiseReductionModes},
	Contrast:                   {Param: Contrast, Name: "Contrast", Key: "contrast", Label: "Contrast", Kind: KindFloat, Min: 0, Max: 2},
	Brightness:                 {Param: Brightness, Name: "Brightness", Key: "brightness", Label: "Brightness", Kind: KindFloat, Min: -1, Max: 1},
	Sharpness:                  {Param: Sharpness, Name: "Sharpness", Key: "sharpness", Label: "Sharpness", Kind: KindFloat, Min: 0, Max: 2},
	Saturation:                 {Param: Saturation, Name: "Saturation", Key: "saturation", Label: "Saturation", Kind: KindFloat, Min: 0, Max: 2},
	HdrMode:                    {Param: HdrMode, Name: "HdrMode", Key: "hdrMode", Label: "HDR mode", Kind: KindEnum, Enum: HdrModes},
	TemporalNoiseReductionMode: {Param: TemporalNoiseReductionMode, Name: "TemporalNoiseReductionMode", Key: "temporalNoiseReduction", Label: "Temporal noise reduction", Kind: KindEnum, Enum: TemporalNoiseReductionModes},
	HighQualityDenoise:         {Param: HighQualityDenoise, Name: "HighQualityDenoise", Key: "highQualityDenoise", Label: "High quality denoise", Kind: KindEnum, Enum: HighQualityDenoiseModes},
	LocalToneMappingEnable:     {Param: LocalToneMappingEnable, Name: "LocalToneMappingEnable", Key: "localToneMapping", Label: "Local tone mapping", Kind: KindBool},
	LensShading:                {Param: LensShading, Name: "LensShading", Key: "lensShading", Label: "Lens shading", Kind: KindFloat, Min: 0, Max: 1},
	DefectivePixelCorrection:   {Param: DefectivePixelCorrection, Name: "DefectivePixelCorrection", Key: "defectivePixelCorrection", Label: "Defective pixel correction", Kind: KindBool},
	BlackLevel:                 {Param: BlackLevel, Name: "BlackLevel", Key: "blackLevel", Label: "Black level", Kind: KindInt, Min: 0, Max: MaxBlackLevel},
	AeExposureMode:             {Param: AeExposureMode, Name: "AeExposureMode", Key: "exposureMode", Label: "Exposure mode", Kind: KindEnum, Enum: AeExposureModes},
	AeMeteringMode:             {Param: AeMeteringMode, Name: "AeMeteringMode", Key: "meteringMode", Label: "Metering mode", Kind: KindEnum, Enum: AeMeteringModes},
}

// SpecOf returns the table entry for p.
func SpecOf(p Param) Spec {
	if !p.Valid() {
		return Spec{Param: p, Name: "Param(" + strconv.Itoa(int(p)) + ")"}
	}
	return specs[p]
}

// Specs returns the full parameter table in canonical order.
func Specs() []Spec {
	out := make([]Spec, 0, numParams)
	for _, s := range specs {
		out = append(out, s)
	}
	return out
}

// Valid reports whether p is a known parameter.
func (p Param) Valid() bool {
	return p >= 0 && p < numParams
}

func (p Param) String() string {
	return SpecOf(p).Name
}

// ParamByName looks a parameter up by its device name.
func ParamByName(name string) (Param, bool) {
	for _, s := range specs {
		if s.Name == name {
			return s.Param, true
		}
	}
	return 0, false
}

// ParamByKey looks a parameter up by its HTTP wire key.
func ParamByKey(key string) (Param, bool) {
	for _, s := range specs {
		if s.Key == key {
			return s.Param, true
		}
	}
	return 0, false
}

// Check reports whether v is inside p's domain.
func (s Spec) Check(v Value) error {
	if v.Kind() != s.Kind {
		return fmt.Errorf("%w: %s wants %s, got %s", ErrOutOfDomain, s.Name, s.Kind, v.Kind())
	}
	switch s.Kind {
	case KindInt, KindFloat:
		f := v.Float()
		if f < s.Min || f > s.Max {
			return fmt.Errorf("%w: %s=%v outside [%v, %v]", ErrOutOfDomain, s.Name, f, s.Min, s.Max)
		}
	case KindEnum:
		if !s.Enum.Known(v.Int()) {
			return fmt.Errorf("%w: %s code %d not in %s table", ErrOutOfDomain, s.Name, v.Int(), s.Enum.Name)
		}
	}
	return nil
}
