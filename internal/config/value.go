package config

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Kind enumerates the types a parameter value can take.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindString
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindVector:
		return "vector"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a typed parameter value. The zero value is the integer 0.
type Value struct {
	kind Kind
	i    int
	f    float64
	b    bool
	s    string
	v    []float64
}

// Int returns an integer value.
func Int(i int) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String returns a text value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Vector returns a fixed-length numeric vector value.
func Vector(v ...float64) Value { return Value{kind: KindVector, v: slices.Clone(v)} }

func (v Value) Kind() Kind { return v.kind }

// Int returns the value as an integer. Floats are truncated, booleans map to
// 0 and 1, and strings are parsed.
func (v Value) Int() int {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return int(v.f)
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindString:
		i, _ := strconv.Atoi(strings.TrimSpace(v.s))
		return i
	case KindVector:
		if len(v.v) > 0 {
			return int(v.v[0])
		}
	}
	return 0
}

func (v Value) Float() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindFloat:
		return v.f
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindString:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		return f
	case KindVector:
		if len(v.v) > 0 {
			return v.v[0]
		}
	}
	return 0
}

// Bool reports whether the value is set. Integer flags are true when non-zero.
func (v Value) Bool() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindString:
		b, _ := strconv.ParseBool(strings.TrimSpace(v.s))
		return b
	default:
		return v.Float() != 0
	}
}

// Vector returns a copy of the vector components. Scalars yield a single
// component.
func (v Value) Vector() []float64 {
	if v.kind == KindVector {
		return slices.Clone(v.v)
	}
	if v.kind == KindString {
		out, err := ParseFloats(v.s)
		if err != nil {
			return nil
		}
		return out
	}
	return []float64{v.Float()}
}

// String renders the value the way it is substituted into engine scripts.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.Itoa(v.i)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.s
	case KindVector:
		parts := make([]string, len(v.v))
		for i, x := range v.v {
			parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	case KindVector:
		return slices.Equal(v.v, o.v)
	}
	return false
}

// Coerce converts a raw decoded value into the kind of like. Accepted raw
// types are Value, int, int64, float64, bool, string, []float64 and []any
// of numbers. Vectors of length one are broadcast to the length of like.
func Coerce(like Value, raw any) (Value, error) {
	if v, ok := raw.(Value); ok {
		raw = v.raw()
	}
	switch like.kind {
	case KindInt:
		switch r := raw.(type) {
		case int:
			return Int(r), nil
		case int64:
			return Int(int(r)), nil
		case float64:
			if r != math.Trunc(r) {
				return Value{}, fmt.Errorf("expected an integer, got %v", r)
			}
			return Int(int(r)), nil
		case bool:
			return Bool(r).asInt(), nil
		case string:
			s := strings.TrimSpace(r)
			if i, err := strconv.Atoi(s); err == nil {
				return Int(i), nil
			}
			if b, err := strconv.ParseBool(s); err == nil {
				return Bool(b).asInt(), nil
			}
			return Value{}, fmt.Errorf("expected an integer, got %q", r)
		}
	case KindFloat:
		switch r := raw.(type) {
		case int:
			return Float(float64(r)), nil
		case int64:
			return Float(float64(r)), nil
		case float64:
			return Float(r), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(r), 64)
			if err != nil {
				return Value{}, fmt.Errorf("expected a number, got %q", r)
			}
			return Float(f), nil
		}
	case KindBool:
		switch r := raw.(type) {
		case bool:
			return Bool(r), nil
		case int:
			return Bool(r != 0), nil
		case int64:
			return Bool(r != 0), nil
		case float64:
			return Bool(r != 0), nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(r))
			if err != nil {
				return Value{}, fmt.Errorf("expected a boolean, got %q", r)
			}
			return Bool(b), nil
		}
	case KindString:
		switch r := raw.(type) {
		case string:
			return String(r), nil
		case int, int64, float64, bool:
			return String(fmt.Sprint(r)), nil
		}
	case KindVector:
		comps, err := toFloats(raw)
		if err != nil {
			return Value{}, err
		}
		want := len(like.v)
		switch {
		case want == 0 || len(comps) == want:
			return Vector(comps...), nil
		case len(comps) == 1:
			out := make([]float64, want)
			for i := range out {
				out[i] = comps[0]
			}
			return Vector(out...), nil
		default:
			return Value{}, fmt.Errorf("expected 1 or %d components, got %d", want, len(comps))
		}
	}
	return Value{}, fmt.Errorf("cannot use %T as %s", raw, like.kind)
}

func (v Value) asInt() Value {
	if v.b {
		return Int(1)
	}
	return Int(0)
}

func toFloats(raw any) ([]float64, error) {
	switch r := raw.(type) {
	case int:
		return []float64{float64(r)}, nil
	case int64:
		return []float64{float64(r)}, nil
	case float64:
		return []float64{r}, nil
	case []float64:
		return slices.Clone(r), nil
	case string:
		return ParseFloats(r)
	case []any:
		out := make([]float64, 0, len(r))
		for _, item := range r {
			fs, err := toFloats(item)
			if err != nil {
				return nil, err
			}
			if len(fs) != 1 {
				return nil, fmt.Errorf("nested vectors are not supported")
			}
			out = append(out, fs[0])
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot use %T as a vector", raw)
}

// ParseFloats parses a whitespace separated list of numbers.
func ParseFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty numeric list")
	}
	out := make([]float64, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", f)
		}
		out[i] = x
	}
	return out, nil
}
