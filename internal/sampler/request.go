package sampler

import (
	"errors"
	"slices"

	"github.com/specialistvlad/pafigrid/internal/config"
	"github.com/specialistvlad/pafigrid/internal/results"
)

// ErrIncompleteRequest is returned for a request without a reaction
// coordinate or a temperature.
var ErrIncompleteRequest = errors.New("sample request needs ReactionCoordinate and Temperature")

type param struct {
	name  string
	value config.Value
}

// Request is one point of the sweep grid plus per-request parameter
// overrides. Fields keep the order in which they were set, which is the
// order they appear in the result record. Overrides apply to the sample
// like fields but are not recorded.
type Request struct {
	fields    []param
	overrides []param
}

// NewRequest returns a request for one reaction coordinate and temperature.
func NewRequest(rc, temperature float64) Request {
	var r Request
	r.Set(config.AxisReactionCoordinate, config.Float(rc))
	r.Set(config.AxisTemperature, config.Float(temperature))
	return r
}

// Set replaces the value of name, or appends it.
func (r *Request) Set(name string, v config.Value) {
	r.fields = set(r.fields, name, v)
}

// Override sets a parameter for this request without recording it.
func (r *Request) Override(name string, v config.Value) {
	r.overrides = set(r.overrides, name, v)
}

func set(params []param, name string, v config.Value) []param {
	for i := range params {
		if params[i].name == name {
			params[i].value = v
			return params
		}
	}
	return append(params, param{name: name, value: v})
}

// Get returns the value of name. Recorded fields win over overrides.
func (r Request) Get(name string) (config.Value, bool) {
	for _, f := range r.fields {
		if f.name == name {
			return f.value, true
		}
	}
	for _, f := range r.overrides {
		if f.name == name {
			return f.value, true
		}
	}
	return config.Value{}, false
}

// Names returns the field names in order.
func (r Request) Names() []string {
	out := make([]string, len(r.fields))
	for i, f := range r.fields {
		out[i] = f.name
	}
	return out
}

// Clone returns an independent copy.
func (r Request) Clone() Request {
	return Request{fields: slices.Clone(r.fields), overrides: slices.Clone(r.overrides)}
}

// point returns the reaction coordinate and temperature.
func (r Request) point() (rc, temperature float64, err error) {
	rv, okR := r.Get(config.AxisReactionCoordinate)
	tv, okT := r.Get(config.AxisTemperature)
	if !okR || !okT {
		return 0, 0, ErrIncompleteRequest
	}
	return rv.Float(), tv.Float(), nil
}

// resultValue converts a parameter value into a record value.
func resultValue(v config.Value) results.Value {
	switch v.Kind() {
	case config.KindInt:
		return results.Int(v.Int())
	case config.KindFloat:
		return results.Float(v.Float())
	case config.KindBool:
		return results.Bool(v.Bool())
	case config.KindVector:
		return results.Vector(v.Vector())
	default:
		return results.String(v.String())
	}
}
