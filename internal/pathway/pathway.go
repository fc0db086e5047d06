// Package pathway reconstructs a continuous reaction path from a sequence of
// discrete atomic configurations and evaluates it, and its first two
// derivatives, at any reaction coordinate.
package pathway

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/specialistvlad/pafigrid/internal/config"
	"github.com/specialistvlad/pafigrid/internal/spline"
)

// Options controls how a Pathway is built.
type Options struct {
	Boundary spline.Boundary
	// RealDistance parametrizes the knots by the cumulative minimum image
	// distance between consecutive configurations instead of uniformly.
	RealDistance bool
	// Linear interpolates piecewise linearly instead of with a cubic spline.
	Linear bool
	Cell   Cell
}

// OptionsFromConfig reads the pathway options of a run configuration.
func OptionsFromConfig(cfg *config.Config, cell Cell) (Options, error) {
	bcVal, _ := cfg.Parameters.Get(config.CubicSplineBoundaryConditions)
	bc, err := spline.ParseBoundary(strings.TrimSpace(bcVal.String()))
	if err != nil {
		return Options{}, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	dist, _ := cfg.Parameters.Get(config.RealMEPDist)
	splined, _ := cfg.Parameters.Get(config.SplinePath)
	return Options{
		Boundary:     bc,
		RealDistance: dist.Bool(),
		Linear:       !splined.Bool(),
		Cell:         cell,
	}, nil
}

// Pathway is an interpolated reaction path. It is read-only after Build.
type Pathway struct {
	spline *spline.Spline
	atoms  int
}

// Build interpolates the configurations, each a flattened list of N atom
// positions ordered by atom id.
func Build(configs [][]float64, opts Options) (*Pathway, error) {
	if len(configs) < 2 {
		return nil, fmt.Errorf("a pathway needs at least 2 configurations, got %d", len(configs))
	}
	size := len(configs[0])
	if size == 0 || size%3 != 0 {
		return nil, fmt.Errorf("configuration 0 has %d coordinates, want a positive multiple of 3", size)
	}
	for i, c := range configs {
		if len(c) != size {
			return nil, fmt.Errorf("configuration %d has %d atoms, configuration 0 has %d", i, len(c)/3, size/3)
		}
	}

	knots, err := parametrize(configs, opts)
	if err != nil {
		return nil, err
	}

	var s *spline.Spline
	if opts.Linear {
		s, err = spline.NewLinear(knots, configs)
	} else {
		s, err = spline.New(knots, configs, opts.Boundary)
	}
	if err != nil {
		return nil, fmt.Errorf("interpolating pathway: %w", err)
	}
	return &Pathway{spline: s, atoms: size / 3}, nil
}

// parametrize returns the reaction coordinate of every configuration.
func parametrize(configs [][]float64, opts Options) ([]float64, error) {
	n := len(configs)
	if !opts.RealDistance {
		return config.Linspace(0, 1, n), nil
	}
	r := make([]float64, n)
	for i := 1; i < n; i++ {
		step := opts.Cell.Distance(configs[i-1], configs[i])
		if step == 0 {
			return nil, fmt.Errorf("configurations %d and %d are identical", i-1, i)
		}
		r[i] = r[i-1] + step
	}
	for i := range r {
		r[i] /= r[n-1]
	}
	r[n-1] = 1
	return r, nil
}

// Atoms returns the number of atoms per configuration.
func (p *Pathway) Atoms() int { return p.atoms }

// Knots returns the reaction coordinate of every input configuration.
func (p *Pathway) Knots() []float64 { return p.spline.Knots() }

// Domain returns the reaction coordinate range of the pathway.
func (p *Pathway) Domain() (lo, hi float64) { return p.spline.Domain() }

// Clamp maps r into the domain.
func (p *Pathway) Clamp(r float64) float64 {
	lo, hi := p.Domain()
	return math.Max(lo, math.Min(hi, r))
}

// Evaluate returns the order-th derivative of the path at r, with r clamped
// into the domain, as a flattened list of atom vectors whose x, y and z
// components are multiplied by scale. Order 0 is the position, 1 the
// unnormalized tangent and 2 the curvature.
func (p *Pathway) Evaluate(r float64, order int, scale [3]float64) []float64 {
	out := p.spline.Eval(p.Clamp(r), order, nil)
	for i := range out {
		out[i] *= scale[i%3]
	}
	return out
}

// ErrDegenerateTangent is returned when the path tangent vanishes, e.g. at
// the ends of a clamped spline.
var ErrDegenerateTangent = errors.New("pathway tangent has zero norm")

// Plane is the constraint hyperplane at one reaction coordinate.
type Plane struct {
	Position []float64
	// Tangent is the unit tangent with its per-axis mean removed.
	Tangent []float64
	// Curvature is the second derivative divided by Norm squared.
	Curvature []float64
	// Norm is the magnitude of the mean-free tangent before normalization.
	Norm float64
}

// Hyperplane evaluates position, tangent and curvature at r in the order
// the normalization requires.
func (p *Pathway) Hyperplane(r float64, scale [3]float64) (Plane, error) {
	pos := p.Evaluate(r, 0, scale)

	tangent := p.Evaluate(r, 1, scale)
	var mean [3]float64
	for i, v := range tangent {
		mean[i%3] += v
	}
	for k := range mean {
		mean[k] /= float64(p.atoms)
	}
	for i := range tangent {
		tangent[i] -= mean[i%3]
	}
	n := norm(tangent)
	if n == 0 || math.IsNaN(n) {
		return Plane{}, ErrDegenerateTangent
	}
	for i := range tangent {
		tangent[i] /= n
	}

	curvature := p.Evaluate(r, 2, scale)
	for i := range curvature {
		curvature[i] /= n * n
	}
	return Plane{Position: pos, Tangent: tangent, Curvature: curvature, Norm: n}, nil
}
