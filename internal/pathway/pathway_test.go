package pathway

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/specialistvlad/pafigrid/internal/config"
	"github.com/specialistvlad/pafigrid/internal/spline"
	"github.com/specialistvlad/pafigrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var identity = [3]float64{1, 1, 1}

func cubicCell(t *testing.T, l float64) Cell {
	t.Helper()
	c, err := NewCell(l, l, l, 0, 0, 0, [3]bool{true, true, true})
	require.NoError(t, err)
	return c
}

// hop moves the second of two atoms along a bent path.
func hop() [][]float64 {
	return [][]float64{
		{0, 0, 0, 1.0, 1.0, 1.0},
		{0, 0, 0, 1.4, 1.3, 1.0},
		{0, 0, 0, 1.9, 1.4, 1.0},
		{0, 0, 0, 2.5, 1.5, 1.0},
	}
}

func TestBuild_EndpointsReproduceConfigurations(t *testing.T) {
	cell := cubicCell(t, 10)
	configs := hop()

	for _, bc := range []spline.Boundary{spline.NotAKnot, spline.Natural, spline.Clamped} {
		for _, realDist := range []bool{false, true} {
			p, err := Build(configs, Options{Boundary: bc, RealDistance: realDist, Cell: cell})
			require.NoError(t, err)

			assert.InDeltaSlice(t, configs[0], p.Evaluate(0, 0, identity), 1e-9, "%s start", bc)
			assert.InDeltaSlice(t, configs[len(configs)-1], p.Evaluate(1, 0, identity), 1e-9, "%s end", bc)
		}
	}
}

func TestBuild_RealDistanceKnots(t *testing.T) {
	configs := [][]float64{
		{0, 0, 0},
		{1, 0, 0},
		{1, 3, 0},
	}
	p, err := Build(configs, Options{RealDistance: true, Cell: cubicCell(t, 100)})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0.25, 1}, p.Knots(), 1e-12)

	p, err = Build(configs, Options{Cell: cubicCell(t, 100)})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0.5, 1}, p.Knots(), 1e-12)
}

func TestBuild_MinimumImageDistance(t *testing.T) {
	// The atom crosses the periodic boundary: 9.9 -> 0.1 is a hop of 0.2.
	configs := [][]float64{
		{9.9, 5, 5, 1, 1, 1},
		{0.1, 5, 5, 1, 1, 1.1},
	}
	cell := cubicCell(t, 10)
	assert.InDelta(t, math.Sqrt(0.2*0.2+0.1*0.1), cell.Distance(configs[0], configs[1]), 1e-12)
	assert.InDelta(t, 0.2, cell.MaxAtomDisplacement(configs[0], configs[1]), 1e-12)

	open, err := NewCell(10, 10, 10, 0, 0, 0, [3]bool{false, true, true})
	require.NoError(t, err)
	assert.InDelta(t, 9.8, open.MaxAtomDisplacement(configs[0], configs[1]), 1e-12)
}

func TestCell_TriclinicMinImage(t *testing.T) {
	cell, err := CellFromBox([]float64{10, 10, 10, 2, 0, 0, 1, 1, 1})
	require.NoError(t, err)

	// One full cell vector b = (xy, ly, 0) away is the same point.
	d := []float64{2.05, 10, 0}
	cell.MinImage(d)
	assert.InDeltaSlice(t, []float64{0.05, 0, 0}, d, 1e-12)

	_, err = CellFromBox([]float64{1, 2, 3})
	assert.Error(t, err)
}

func TestBuild_Errors(t *testing.T) {
	cell := cubicCell(t, 10)

	_, err := Build([][]float64{{0, 0, 0}}, Options{Cell: cell})
	assert.ErrorContains(t, err, "at least 2")

	_, err = Build([][]float64{{0, 0, 0}, {0, 0, 0, 1, 1, 1}}, Options{Cell: cell})
	assert.ErrorContains(t, err, "atoms")

	_, err = Build([][]float64{{0, 0, 0}, {0, 0, 0}}, Options{RealDistance: true, Cell: cell})
	assert.ErrorContains(t, err, "identical")
}

func TestEvaluate_ClampsOutsideDomain(t *testing.T) {
	p, err := Build(hop(), Options{Boundary: spline.NotAKnot, RealDistance: true, Cell: cubicCell(t, 10)})
	require.NoError(t, err)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("evaluate(r) equals evaluate(clamp(r))", prop.ForAll(
		func(r float64, order int) bool {
			got := p.Evaluate(r, order, identity)
			want := p.Evaluate(math.Max(0, math.Min(1, r)), order, identity)
			for i := range got {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.Float64Range(-5, 6),
		gen.IntRange(0, 2),
	))

	properties.TestingRun(t)
}

func TestEvaluate_Scale(t *testing.T) {
	p, err := Build(hop(), Options{Boundary: spline.Natural, Cell: cubicCell(t, 10)})
	require.NoError(t, err)

	base := p.Evaluate(0.4, 0, identity)
	scaled := p.Evaluate(0.4, 0, [3]float64{2, 1, 0.5})
	for i := range base {
		assert.InDelta(t, base[i]*[3]float64{2, 1, 0.5}[i%3], scaled[i], 1e-12)
	}
}

func TestHyperplane(t *testing.T) {
	p, err := Build(hop(), Options{Boundary: spline.NotAKnot, RealDistance: true, Cell: cubicCell(t, 10)})
	require.NoError(t, err)

	plane, err := p.Hyperplane(0.3, identity)
	require.NoError(t, err)

	assert.InDelta(t, 1, norm(plane.Tangent), 1e-12)
	var mean [3]float64
	for i, v := range plane.Tangent {
		mean[i%3] += v
	}
	assert.InDeltaSlice(t, []float64{0, 0, 0}, mean[:], 1e-12)

	raw := p.Evaluate(0.3, 1, identity)
	curv := p.Evaluate(0.3, 2, identity)
	assert.Greater(t, plane.Norm, 0.0)
	assert.Less(t, plane.Norm, norm(raw)+1e-12)
	assert.InDelta(t, curv[3]/(plane.Norm*plane.Norm), plane.Curvature[3], 1e-12)
	assert.InDeltaSlice(t, p.Evaluate(0.3, 0, identity), plane.Position, 0)
}

func TestHyperplane_DegenerateTangent(t *testing.T) {
	p, err := Build(hop(), Options{Boundary: spline.Clamped, Cell: cubicCell(t, 10)})
	require.NoError(t, err)

	_, err = p.Hyperplane(0, identity)
	assert.ErrorIs(t, err, ErrDegenerateTangent)
}

func TestOptionsFromConfig(t *testing.T) {
	ctx, _ := testutil.Context(t)
	cfg, err := config.NewBuilder(ctx).DefaultAxes().Parameter(config.SplinePath, 0).Build()
	require.NoError(t, err)

	opts, err := OptionsFromConfig(cfg, Cell{})
	require.NoError(t, err)
	assert.Equal(t, spline.NotAKnot, opts.Boundary)
	assert.True(t, opts.RealDistance)
	assert.True(t, opts.Linear)

	require.NoError(t, cfg.Parameters.Override(config.CubicSplineBoundaryConditions, "periodic"))
	_, err = OptionsFromConfig(cfg, Cell{})
	assert.ErrorIs(t, err, config.ErrConfiguration)
}
