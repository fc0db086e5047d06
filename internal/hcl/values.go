package hcl

import (
	"fmt"

	"github.com/specialistvlad/pafigrid/internal/config"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// toRaw converts a cty value into the plain Go values config.Coerce accepts:
// float64, bool, string or []any of those.
func toRaw(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, fmt.Errorf("value is null")
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}

	ty := val.Type()
	switch {
	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(val, &f); err != nil {
			return nil, err
		}
		return f, nil
	case ty == cty.Bool:
		var b bool
		if err := gocty.FromCtyValue(val, &b); err != nil {
			return nil, err
		}
		return b, nil
	case ty == cty.String:
		var s string
		if err := gocty.FromCtyValue(val, &s); err != nil {
			return nil, err
		}
		return s, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			raw, err := toRaw(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, raw)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value of type %s", ty.FriendlyName())
}

// toFloats converts a list of numbers, or a string of whitespace separated
// numbers, into a float slice.
func toFloats(val cty.Value) ([]float64, error) {
	if val.Type() == cty.String || val.Type() == cty.Number {
		raw, err := toRaw(val)
		if err != nil {
			return nil, err
		}
		if f, ok := raw.(float64); ok {
			return []float64{f}, nil
		}
		return config.ParseFloats(raw.(string))
	}
	listVal, err := convert.Convert(val, cty.List(cty.Number))
	if err != nil {
		return nil, fmt.Errorf("expected a list of numbers: %w", err)
	}
	var out []float64
	if err := gocty.FromCtyValue(listVal, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// toStrings converts a list of strings, or a newline separated string, into
// a string slice.
func toStrings(val cty.Value) ([]string, error) {
	if val.Type() == cty.String {
		return config.SplitLines(val.AsString()), nil
	}
	listVal, err := convert.Convert(val, cty.List(cty.String))
	if err != nil {
		return nil, fmt.Errorf("expected a list of strings: %w", err)
	}
	var out []string
	if err := gocty.FromCtyValue(listVal, &out); err != nil {
		return nil, err
	}
	return out, nil
}
