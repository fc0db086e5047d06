package config

import (
	"context"
	"maps"
	"path/filepath"
	"slices"
	"strings"
)

// Names of the scripts every configuration starts with.
const (
	ScriptInput    = "Input"
	ScriptPreRun   = "PreRun"
	ScriptPreTherm = "PreTherm"
	ScriptPostRun  = "PostRun"
)

const defaultInputScript = `units metal
atom_style atomic
atom_modify map array sort 0 0.0
read_data %FirstPathConfiguration%
pair_style eam/fs
pair_coeff * * %Potential% Fe
run 0
thermo 10
run 0`

func defaultScripts() map[string]string {
	return map[string]string{
		ScriptInput:    defaultInputScript,
		ScriptPreRun:   "",
		ScriptPreTherm: "",
		ScriptPostRun:  "",
	}
}

// Pathway locates the discrete configurations of the reaction path and the
// interatomic potential used by the engine.
type Pathway struct {
	Directory string
	Potential string
	Files     []string
}

// Paths returns the configuration files joined with the pathway directory.
func (p Pathway) Paths() []string {
	out := make([]string, len(p.Files))
	for i, f := range p.Files {
		if p.Directory == "" || filepath.IsAbs(f) {
			out[i] = f
			continue
		}
		out[i] = filepath.Join(p.Directory, f)
	}
	return out
}

// PotentialPath returns the potential joined with the pathway directory.
func (p Pathway) PotentialPath() string {
	if p.Directory == "" || p.Potential == "" || filepath.IsAbs(p.Potential) {
		return p.Potential
	}
	return filepath.Join(p.Directory, p.Potential)
}

// Config is the resolved configuration of a run.
type Config struct {
	// Source is the file the configuration was loaded from, if any.
	Source     string
	Parameters *Parameters
	Pathway    Pathway

	axes    []Axis
	scripts map[string]string
}

// Axes returns the sweep axes in declaration order.
func (c *Config) Axes() []Axis {
	out := make([]Axis, len(c.axes))
	for i, a := range c.axes {
		out[i] = Axis{Name: a.Name, Values: slices.Clone(a.Values)}
	}
	return out
}

// Axis returns the named axis.
func (c *Config) Axis(name string) (Axis, bool) {
	for _, a := range c.axes {
		if a.Name == name {
			return Axis{Name: a.Name, Values: slices.Clone(a.Values)}, true
		}
	}
	return Axis{}, false
}

// Script returns the template text of a named script.
func (c *Config) Script(name string) (string, bool) {
	s, ok := c.scripts[name]
	return s, ok
}

// ScriptNames returns the script names, sorted.
func (c *Config) ScriptNames() []string {
	return slices.Sorted(maps.Keys(c.scripts))
}

// Get is shorthand for looking up a parameter, registering def when absent.
func (c *Config) Get(ctx context.Context, key string, def Value) Value {
	return c.Parameters.Lookup(ctx, key, def)
}

// GroupSize returns the number of ranks per worker group.
func (c *Config) GroupSize() int {
	v, _ := c.Parameters.Get(CoresPerWorker)
	return v.Int()
}

// Expansion returns the per-axis cell scale factor at temperature T:
// 1 + lin*T + quad*T^2.
func (c *Config) Expansion(T float64) [3]float64 {
	lin, _ := c.Parameters.Get(LinearThermalExpansion)
	quad, _ := c.Parameters.Get(QuadraticThermalExpansion)
	l, q := broadcast3(lin.Vector()), broadcast3(quad.Vector())
	var out [3]float64
	for i := range out {
		out[i] = 1 + l[i]*T + q[i]*T*T
	}
	return out
}

// Clone returns a deep copy that can be handed to another rank.
func (c *Config) Clone() *Config {
	out := &Config{
		Source:     c.Source,
		Parameters: c.Parameters.Clone(),
		Pathway: Pathway{
			Directory: c.Pathway.Directory,
			Potential: c.Pathway.Potential,
			Files:     slices.Clone(c.Pathway.Files),
		},
		axes:    c.Axes(),
		scripts: maps.Clone(c.scripts),
	}
	return out
}

// Validate checks the structural invariants of the configuration.
func (c *Config) Validate() error {
	for _, name := range []string{AxisReactionCoordinate, AxisTemperature} {
		a, ok := c.Axis(name)
		if !ok {
			return Errorf("axis %q is required", name)
		}
		if len(a.Values) == 0 {
			return Errorf("axis %q has no values", name)
		}
	}
	if c.GroupSize() < 1 {
		return Errorf("%s must be at least 1, got %d", CoresPerWorker, c.GroupSize())
	}
	bc, _ := c.Parameters.Get(CubicSplineBoundaryConditions)
	switch strings.TrimSpace(bc.String()) {
	case "clamped", "natural", "not-a-knot":
	default:
		return Errorf("unknown %s %q", CubicSplineBoundaryConditions, bc.String())
	}
	for _, key := range []string{LinearThermalExpansion, QuadraticThermalExpansion} {
		v, _ := c.Parameters.Get(key)
		if n := len(v.Vector()); n != 1 && n != 3 {
			return Errorf("%s needs 1 or 3 components, got %d", key, n)
		}
	}
	return nil
}

func broadcast3(v []float64) [3]float64 {
	switch len(v) {
	case 0:
		return [3]float64{}
	case 1, 2:
		return [3]float64{v[0], v[0], v[0]}
	default:
		return [3]float64{v[0], v[1], v[2]}
	}
}

// SplitLines splits text into trimmed, non-empty lines.
func SplitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
