package camera

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Exposure time travels in milliseconds over HTTP and in microseconds
// everywhere else.
const (
	microsPerMilli  = 1000
	MaxExposureMs   = MaxExposureMicros / microsPerMilli
	exposureMsLabel = "ms"
)

// Validate turns an untrusted, wire-keyed request into a ParameterSet.
// Either every present field is accepted or a *ValidationError listing
// one reason per rejected field is returned. Unknown keys are ignored.
func Validate(req map[string]any) (ParameterSet, error) {
	var (
		out     ParameterSet
		reasons []string
	)
	for _, s := range specs {
		raw, ok := req[s.Key]
		if !ok {
			continue
		}
		v, reason := s.parse(raw)
		if reason != "" {
			reasons = append(reasons, reason)
			continue
		}
		out.Set(s.Param, v)
	}
	if len(reasons) > 0 {
		return ParameterSet{}, &ValidationError{Reasons: reasons}
	}
	return out, nil
}

// UnknownKeys returns the request keys Validate ignores.
func UnknownKeys(req map[string]any) []string {
	var out []string
	for k := range req {
		if _, ok := ParamByKey(k); !ok {
			out = append(out, k)
		}
	}
	return out
}

func (s Spec) parse(raw any) (Value, string) {
	switch s.Kind {
	case KindEnum:
		code, _ := s.Enum.Resolve(raw)
		return Enum(code), ""
	case KindBool:
		b, ok := toBool(raw)
		if !ok {
			return Value{}, s.Label + " must be true or false."
		}
		return Bool(b), ""
	}

	n, ok := toFloat(raw)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return Value{}, s.Label + " must be a number."
	}

	lo, hi, unit := s.Min, s.Max, ""
	if s.Param == ExposureTime {
		lo, hi, unit = s.Min/microsPerMilli, s.Max/microsPerMilli, exposureMsLabel
	}
	if n < lo || n > hi {
		return Value{}, rangeReason(s.Label, lo, hi, unit)
	}

	switch {
	case s.Param == ExposureTime:
		return Int(int64(math.Round(n * microsPerMilli))), ""
	case s.Kind == KindInt:
		if n != math.Trunc(n) {
			return Value{}, s.Label + " must be a whole number."
		}
		return Int(int64(n)), ""
	}
	return Float(n), ""
}

func rangeReason(label string, lo, hi float64, unit string) string {
	msg := fmt.Sprintf("%s must be between %s and %s", label, formatNum(lo), formatNum(hi))
	if unit != "" {
		msg += " " + unit
	}
	return msg + "."
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Helper functions for type conversion

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		if err == nil {
			return f, true
		}
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err == nil {
			return f, true
		}
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "on", "yes":
			return true, true
		case "false", "0", "off", "no":
			return false, true
		}
		return false, false
	}
	if f, ok := toFloat(v); ok && !math.IsNaN(f) {
		return f != 0, true
	}
	return false, false
}
