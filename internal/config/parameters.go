package config

import (
	"context"
	"slices"

	"github.com/specialistvlad/pafigrid/internal/ctxlog"
)

// Well-known parameter names.
const (
	CoresPerWorker                = "CoresPerWorker"
	WriteDev                      = "WriteDev"
	Verbosity                     = "Verbosity"
	SampleSteps                   = "SampleSteps"
	ThermSteps                    = "ThermSteps"
	ThermWindow                   = "ThermWindow"
	MinSteps                      = "MinSteps"
	NRepeats                      = "nRepeats"
	DumpFolder                    = "DumpFolder"
	OverDamped                    = "OverDamped"
	Friction                      = "Friction"
	LogLammps                     = "LogLammps"
	MaxJumpThresh                 = "MaxJumpThresh"
	ReSampleThresh                = "ReSampleThresh"
	MaxExtraRepeats               = "maxExtraRepeats"
	PostDump                      = "PostDump"
	PreMin                        = "PreMin"
	PostMin                       = "PostMin"
	SplinePath                    = "SplinePath"
	RealMEPDist                   = "RealMEPDist"
	GlobalSeed                    = "GlobalSeed"
	FreshSeed                     = "FreshSeed"
	ReDiscretize                  = "ReDiscretize"
	LinearThermalExpansion        = "LinearThermalExpansion"
	QuadraticThermalExpansion     = "QuadraticThermalExpansion"
	CubicSplineBoundaryConditions = "CubicSplineBoundaryConditions"
	SampleFixes                   = "SampleFixes"
	DatabaseFile                  = "DatabaseFile"
	MonitorURL                    = "MonitorURL"
)

type entry struct {
	name  string
	value Value
}

// defaultSchema lists every registered parameter with its default value, in
// the order they are written to snapshots.
func defaultSchema() []entry {
	return []entry{
		{CoresPerWorker, Int(1)},
		{WriteDev, Int(0)},
		{Verbosity, Int(0)},
		{SampleSteps, Int(2000)},
		{ThermSteps, Int(1000)},
		{ThermWindow, Int(100)},
		{MinSteps, Int(1000)},
		{NRepeats, Int(1)},
		{DumpFolder, String("./dumps")},
		{OverDamped, Int(0)},
		{Friction, Float(0.05)},
		{LogLammps, Int(0)},
		{MaxJumpThresh, Float(0.4)},
		{ReSampleThresh, Float(0.5)},
		{MaxExtraRepeats, Int(1)},
		{PostDump, Int(0)},
		{PreMin, Int(1)},
		{PostMin, Int(1)},
		{SplinePath, Int(1)},
		{RealMEPDist, Int(1)},
		{GlobalSeed, Int(137)},
		{FreshSeed, Int(1)},
		{ReDiscretize, Int(1)},
		{LinearThermalExpansion, Vector(0, 0, 0)},
		{QuadraticThermalExpansion, Vector(0, 0, 0)},
		{CubicSplineBoundaryConditions, String("not-a-knot")},
		{SampleFixes, String("")},
		{DatabaseFile, String("")},
		{MonitorURL, String("")},
	}
}

// Parameters is the typed, ordered parameter table of a run.
type Parameters struct {
	order  []string
	values map[string]Value
}

// DefaultParameters returns the registered schema populated with defaults.
func DefaultParameters() *Parameters {
	p := &Parameters{values: make(map[string]Value)}
	for _, e := range defaultSchema() {
		p.order = append(p.order, e.name)
		p.values[e.name] = e.value
	}
	return p
}

// Keys returns the parameter names in registration order.
func (p *Parameters) Keys() []string {
	return slices.Clone(p.order)
}

// Has reports whether key is part of the schema.
func (p *Parameters) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Get returns a registered parameter.
func (p *Parameters) Get(key string) (Value, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Lookup returns the parameter registered under key. An unregistered key is
// registered with def and a warning is logged, so later lookups agree.
func (p *Parameters) Lookup(ctx context.Context, key string, def Value) Value {
	if v, ok := p.values[key]; ok {
		return v
	}
	ctxlog.FromContext(ctx).Warn("Parameter not registered, using default.", "key", key, "default", def.String())
	p.register(key, def)
	return def
}

// Override replaces the value of a registered key, coercing raw to the kind
// of the registered value. Unregistered keys are rejected.
func (p *Parameters) Override(key string, raw any) error {
	cur, ok := p.values[key]
	if !ok {
		return Errorf("cannot override unregistered parameter %q", key)
	}
	v, err := Coerce(cur, raw)
	if err != nil {
		return Errorf("parameter %q: %v", key, err)
	}
	p.values[key] = v
	return nil
}

// Clone returns a deep copy.
func (p *Parameters) Clone() *Parameters {
	c := &Parameters{order: slices.Clone(p.order), values: make(map[string]Value, len(p.values))}
	for k, v := range p.values {
		if v.kind == KindVector {
			v.v = slices.Clone(v.v)
		}
		c.values[k] = v
	}
	return c
}

func (p *Parameters) register(key string, v Value) {
	if _, ok := p.values[key]; !ok {
		p.order = append(p.order, key)
	}
	p.values[key] = v
}

// raw unwraps a Value into the plain Go type Coerce accepts.
func (v Value) raw() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindString:
		return v.s
	default:
		return slices.Clone(v.v)
	}
}
