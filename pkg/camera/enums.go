package camera

import "strings"

// EnumTable maps symbolic mode names to the integer codes the sensor
// driver understands. Unknown names resolve to Fallback instead of being
// rejected.
type EnumTable struct {
	Name     string
	Names    []string // indexed by code
	Fallback int
}

func newEnumTable(name string, fallback int, names ...string) *EnumTable {
	return &EnumTable{Name: name, Names: names, Fallback: fallback}
}

// Mode tables. Codes follow libcamera's control enums.
var (
	AwbModes                    = newEnumTable("AwbMode", 0, "Auto", "Tungsten", "Fluorescent", "Indoor", "Daylight", "Cloudy")
	NoiseReductionModes         = newEnumTable("NoiseReductionMode", 1, "Off", "Fast", "HighQuality")
	HdrModes                    = newEnumTable("HdrMode", 0, "Off", "SingleExposure", "MultiExposure", "Night", "MultiExposureUnmerged")
	TemporalNoiseReductionModes = newEnumTable("TemporalNoiseReductionMode", 0, "Off", "Normal", "Aggressive")
	HighQualityDenoiseModes     = newEnumTable("HighQualityDenoise", 0, "Off", "Normal", "HighQuality")
	AeExposureModes             = newEnumTable("AeExposureMode", 0, "Normal", "Short", "Long", "Custom")
	AeMeteringModes             = newEnumTable("AeMeteringMode", 0, "CentreWeighted", "Spot", "Matrix", "Custom")
)

// Lookup returns the code for a symbolic name (case-insensitive).
func (t *EnumTable) Lookup(name string) (int, bool) {
	name = strings.TrimSpace(name)
	for code, n := range t.Names {
		if strings.EqualFold(n, name) {
			return code, true
		}
	}
	return 0, false
}

// Known reports whether code is a valid entry.
func (t *EnumTable) Known(code int64) bool {
	return code >= 0 && code < int64(len(t.Names))
}

// NameOf returns the symbolic name for code, or "" if unknown.
func (t *EnumTable) NameOf(code int64) string {
	if !t.Known(code) {
		return ""
	}
	return t.Names[code]
}

// Resolve maps a loosely typed request value to a code. It never fails:
// anything unrecognised resolves to the fallback.
func (t *EnumTable) Resolve(v any) (code int, matched bool) {
	switch val := v.(type) {
	case string:
		if c, ok := t.Lookup(val); ok {
			return c, true
		}
	default:
		if f, ok := toFloat(v); ok && f == float64(int64(f)) && t.Known(int64(f)) {
			return int(f), true
		}
	}
	return t.Fallback, false
}
