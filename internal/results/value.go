package results

import (
	"math"
	"slices"
	"strconv"
	"strings"
)

// Kind is the type of a result Value.
type Kind int

const (
	// KindMissing marks an output that could not be measured.
	KindMissing Kind = iota
	KindFloat
	KindInt
	KindBool
	KindString
	KindVector
)

// Value is one field of a result record. The zero Value is Missing.
type Value struct {
	kind Kind
	f    float64
	i    int
	b    bool
	s    string
	v    []float64
}

// Missing returns the explicit missing value.
func Missing() Value { return Value{} }

// Float returns a float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Int returns an integer value.
func Int(i int) Value { return Value{kind: KindInt, i: i} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String returns a text value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Vector returns a vector value holding a copy of v.
func Vector(v []float64) Value { return Value{kind: KindVector, v: slices.Clone(v)} }

// FloatOr returns Float(f) when ok and Missing otherwise.
func FloatOr(f float64, ok bool) Value {
	if !ok {
		return Missing()
	}
	return Float(f)
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Number returns the value as a float64 for numeric and boolean kinds.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Truth returns the boolean value. Anything but a true Bool is false.
func (v Value) Truth() bool { return v.kind == KindBool && v.b }

// Vec returns a copy of a vector value.
func (v Value) Vec() []float64 { return slices.Clone(v.v) }

// Text formats the value for tabular output. Missing is the empty string.
func (v Value) Text() string {
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindInt:
		return strconv.Itoa(v.i)
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindString:
		return v.s
	case KindVector:
		parts := make([]string, len(v.v))
		for i, x := range v.v {
			parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
		}
		return "[" + strings.Join(parts, " ") + "]"
	}
	return ""
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindInt:
		return v.i == o.i
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	case KindVector:
		return slices.Equal(v.v, o.v)
	}
	return true
}

// ParseText is the inverse of Text for values read back from a dataset
// file. Integers come back as floats.
func ParseText(s string) Value {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return Missing()
	case "True", "true":
		return Bool(true)
	case "False", "false":
		return Bool(false)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Float(f)
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		var vec []float64
		for _, p := range strings.Fields(s[1 : len(s)-1]) {
			f, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return String(s)
			}
			vec = append(vec, f)
		}
		return Vector(vec)
	}
	return String(s)
}
