package camera

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// ParameterSet is an ordered partial mapping from Param to Value.
// Iteration always follows Param order. The zero value is empty.
type ParameterSet struct {
	vals [numParams]Value
	has  [numParams]bool
}

// NewSet builds a set from pairs. It panics on an unknown Param, which is
// a programming error.
func NewSet(pairs ...Pair) ParameterSet {
	var s ParameterSet
	for _, kv := range pairs {
		if !kv.Param.Valid() {
			panic(fmt.Sprintf("camera: unknown param %d", kv.Param))
		}
		s.Set(kv.Param, kv.Value)
	}
	return s
}

// Pair is a single entry of a ParameterSet.
type Pair struct {
	Param Param
	Value Value
}

// Set stores v under p. Unknown params are ignored.
func (s *ParameterSet) Set(p Param, v Value) {
	if !p.Valid() {
		return
	}
	s.vals[p] = v
	s.has[p] = true
}

// Delete removes p.
func (s *ParameterSet) Delete(p Param) {
	if !p.Valid() {
		return
	}
	s.vals[p] = Value{}
	s.has[p] = false
}

// Get returns the value of p and whether it is present.
func (s ParameterSet) Get(p Param) (Value, bool) {
	if !p.Valid() || !s.has[p] {
		return Value{}, false
	}
	return s.vals[p], true
}

// Has reports whether p is present.
func (s ParameterSet) Has(p Param) bool {
	return p.Valid() && s.has[p]
}

// Len returns the number of present params.
func (s ParameterSet) Len() int {
	n := 0
	for _, ok := range s.has {
		if ok {
			n++
		}
	}
	return n
}

// Empty reports whether no param is present.
func (s ParameterSet) Empty() bool { return s.Len() == 0 }

// Complete reports whether every known param is present.
func (s ParameterSet) Complete() bool { return s.Len() == NumParams }

// Params returns the present params in order.
func (s ParameterSet) Params() []Param {
	out := make([]Param, 0, s.Len())
	for p := range numParams {
		if s.has[p] {
			out = append(out, p)
		}
	}
	return out
}

// All iterates present entries in Param order.
func (s ParameterSet) All() iter.Seq2[Param, Value] {
	return func(yield func(Param, Value) bool) {
		for p := range numParams {
			if !s.has[p] {
				continue
			}
			if !yield(p, s.vals[p]) {
				return
			}
		}
	}
}

// Merge returns s overlaid with o: entries of o win.
func (s ParameterSet) Merge(o ParameterSet) ParameterSet {
	out := s
	for p, v := range o.All() {
		out.Set(p, v)
	}
	return out
}

// Restrict returns the entries of s whose param is in params.
func (s ParameterSet) Restrict(params []Param) ParameterSet {
	var out ParameterSet
	for _, p := range params {
		if v, ok := s.Get(p); ok {
			out.Set(p, v)
		}
	}
	return out
}

// Equal reports whether both sets hold the same entries.
func (s ParameterSet) Equal(o ParameterSet) bool {
	for p := range numParams {
		if s.has[p] != o.has[p] {
			return false
		}
		if s.has[p] && !s.vals[p].Equal(o.vals[p]) {
			return false
		}
	}
	return true
}

// Clone returns a copy. ParameterSet is a value type, so this is a plain
// copy; it exists for readability at call sites that hand sets across
// goroutines.
func (s ParameterSet) Clone() ParameterSet { return s }

// Check verifies every present entry against the parameter table.
func (s ParameterSet) Check() error {
	var errs []error
	for p, v := range s.All() {
		if err := SpecOf(p).Check(v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s ParameterSet) String() string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for p, v := range s.All() {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(p.String())
		b.WriteByte('=')
		b.WriteString(v.String())
	}
	b.WriteByte('}')
	return b.String()
}

// MarshalJSON encodes the set as an object keyed by device name, in
// Param order.
func (s ParameterSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for p, v := range s.All() {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(p.String())
		buf.Write(k)
		buf.WriteByte(':')
		enc, err := v.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(enc)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keyed by device name. Values are
// coerced to each param's kind; the result is not range checked.
func (s *ParameterSet) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	var out ParameterSet
	for name, rv := range raw {
		p, ok := ParamByName(name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownParam, name)
		}
		var n float64
		if b, isBool := rv.(bool); isBool {
			if b {
				n = 1
			}
		} else if f, ok := toFloat(rv); ok {
			n = f
		} else {
			return fmt.Errorf("camera: %s: cannot decode %v", name, rv)
		}
		out.Set(p, valueFor(p, n))
	}
	*s = out
	return nil
}
