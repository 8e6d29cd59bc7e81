package camera

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Value is a typed parameter value. The zero Value is an int 0.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
}

// Int returns an integer Value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float returns a floating point Value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Enum returns an enum Value holding code.
func Enum(code int) Value { return Value{kind: KindEnum, i: int64(code)} }

// Kind returns the value's type tag.
func (v Value) Kind() Kind { return v.kind }

// Int returns the integer view. Floats are truncated; bools map to 0/1.
func (v Value) Int() int64 {
	switch v.kind {
	case KindFloat:
		return int64(v.f)
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	}
	return v.i
}

// Float returns the numeric view.
func (v Value) Float() float64 {
	if v.kind == KindFloat {
		return v.f
	}
	return float64(v.Int())
}

// Bool returns the boolean view. Numbers are true when non-zero.
func (v Value) Bool() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindFloat:
		return v.f != 0
	}
	return v.i != 0
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindFloat:
		return v.f == o.f
	case KindBool:
		return v.b == o.b
	}
	return v.i == o.i
}

func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return strconv.FormatInt(v.i, 10)
}

// Any returns the value as a plain Go value suitable for JSON encoding.
func (v Value) Any() any {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	}
	return v.i
}

// MarshalJSON encodes the payload without the kind tag.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindFloat && (math.IsNaN(v.f) || math.IsInf(v.f, 0)) {
		return nil, fmt.Errorf("camera: cannot encode %v", v.f)
	}
	return json.Marshal(v.Any())
}

// valueFor builds the Value of p's kind from a device-unit number.
func valueFor(p Param, n float64) Value {
	switch SpecOf(p).Kind {
	case KindFloat:
		return Float(n)
	case KindBool:
		return Bool(n != 0)
	case KindEnum:
		return Enum(int(n))
	}
	return Int(int64(n))
}
