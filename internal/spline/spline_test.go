package spline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rows(x []float64, fns ...func(float64) float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, xi := range x {
		for _, fn := range fns {
			out[i] = append(out[i], fn(xi))
		}
	}
	return out
}

func TestSpline_PassesThroughKnots(t *testing.T) {
	x := []float64{0, 0.2, 0.5, 0.7, 1}
	y := rows(x, math.Sin, math.Exp, func(v float64) float64 { return v * v })

	for _, bc := range []Boundary{NotAKnot, Natural, Clamped} {
		t.Run(bc.String(), func(t *testing.T) {
			s, err := New(x, y, bc)
			require.NoError(t, err)
			assert.Equal(t, 3, s.Dim())
			for i, xi := range x {
				got := s.Eval(xi, 0, nil)
				for k := range got {
					assert.InDelta(t, y[i][k], got[k], 1e-12, "knot %d curve %d", i, k)
				}
			}
		})
	}
}

func TestSpline_BoundaryConditions(t *testing.T) {
	x := []float64{0, 0.3, 0.6, 1}
	y := rows(x, math.Cos)

	natural, err := New(x, y, Natural)
	require.NoError(t, err)
	assert.InDelta(t, 0, natural.Eval(0, 2, nil)[0], 1e-12)
	assert.InDelta(t, 0, natural.Eval(1, 2, nil)[0], 1e-12)

	clamped, err := New(x, y, Clamped)
	require.NoError(t, err)
	assert.InDelta(t, 0, clamped.Eval(0, 1, nil)[0], 1e-12)
	assert.InDelta(t, 0, clamped.Eval(1, 1, nil)[0], 1e-12)
}

func TestSpline_NotAKnotReproducesCubic(t *testing.T) {
	cube := func(v float64) float64 { return v*v*v - 2*v }
	x := []float64{0, 0.25, 0.4, 0.8, 1}
	s, err := New(x, rows(x, cube), NotAKnot)
	require.NoError(t, err)

	for _, t0 := range []float64{0.1, 0.33, 0.9} {
		assert.InDelta(t, cube(t0), s.Eval(t0, 0, nil)[0], 1e-12)
		assert.InDelta(t, 3*t0*t0-2, s.Eval(t0, 1, nil)[0], 1e-10)
		assert.InDelta(t, 6*t0, s.Eval(t0, 2, nil)[0], 1e-9)
		assert.InDelta(t, 6, s.Eval(t0, 3, nil)[0], 1e-8)
	}
}

func TestSpline_SmallKnotCounts(t *testing.T) {
	t.Run("three knots give a parabola", func(t *testing.T) {
		sq := func(v float64) float64 { return 2*v*v + 1 }
		x := []float64{0, 0.3, 1}
		s, err := New(x, rows(x, sq), NotAKnot)
		require.NoError(t, err)
		assert.InDelta(t, sq(0.75), s.Eval(0.75, 0, nil)[0], 1e-12)
		assert.InDelta(t, 4, s.Eval(0.1, 2, nil)[0], 1e-12)
	})

	t.Run("two knots give a line", func(t *testing.T) {
		x := []float64{0, 1}
		s, err := New(x, [][]float64{{1, 0}, {3, -1}}, NotAKnot)
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{2, -0.5}, s.Eval(0.5, 0, nil), 1e-12)
		assert.InDeltaSlice(t, []float64{2, -1}, s.Eval(0.5, 1, nil), 1e-12)
	})

	t.Run("two clamped knots", func(t *testing.T) {
		s, err := New([]float64{0, 1}, [][]float64{{0}, {1}}, Clamped)
		require.NoError(t, err)
		assert.InDelta(t, 0, s.Eval(0, 1, nil)[0], 1e-12)
		assert.InDelta(t, 0.5, s.Eval(0.5, 0, nil)[0], 1e-12)
	})
}

func TestNew_Errors(t *testing.T) {
	_, err := New([]float64{0}, [][]float64{{1}}, Natural)
	assert.Error(t, err)

	_, err = New([]float64{0, 0.5, 0.5}, [][]float64{{1}, {2}, {3}}, Natural)
	assert.ErrorContains(t, err, "strictly increasing")

	_, err = New([]float64{0, 1}, [][]float64{{1, 2}, {3}}, Natural)
	assert.Error(t, err)

	_, err = ParseBoundary("periodic")
	assert.ErrorIs(t, err, ErrBoundary)
}

func TestNewLinear(t *testing.T) {
	x := []float64{0, 0.5, 1}
	s, err := NewLinear(x, [][]float64{{0}, {1}, {0}})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, s.Eval(0.25, 0, nil)[0], 1e-12)
	assert.InDelta(t, -2, s.Eval(0.75, 1, nil)[0], 1e-12)
	assert.Equal(t, 0.0, s.Eval(0.75, 2, nil)[0])
}
