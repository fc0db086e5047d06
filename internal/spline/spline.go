// Package spline implements cubic spline interpolation of many curves that
// share one set of knots, with derivatives up to third order.
package spline

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Boundary selects the end conditions of the spline.
type Boundary int

const (
	// NotAKnot makes the third derivative continuous at the second and the
	// second-to-last knot.
	NotAKnot Boundary = iota
	// Natural sets the second derivative to zero at both ends.
	Natural
	// Clamped sets the first derivative to zero at both ends.
	Clamped
)

func (b Boundary) String() string {
	switch b {
	case NotAKnot:
		return "not-a-knot"
	case Natural:
		return "natural"
	case Clamped:
		return "clamped"
	}
	return fmt.Sprintf("Boundary(%d)", int(b))
}

// ErrBoundary is returned for an unknown boundary condition name.
var ErrBoundary = errors.New("unknown spline boundary condition")

// ParseBoundary maps a boundary condition name to a Boundary.
func ParseBoundary(name string) (Boundary, error) {
	switch name {
	case "not-a-knot":
		return NotAKnot, nil
	case "natural":
		return Natural, nil
	case "clamped":
		return Clamped, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrBoundary, name)
}

// Spline is a piecewise cubic interpolant of dim curves over n knots. It is
// immutable and safe for concurrent use.
type Spline struct {
	x   []float64
	dim int
	y   []float64 // n*dim, row i holds the values at knot i
	m   []float64 // n*dim second derivatives at the knots
}

// New fits a spline through the rows of y at the strictly increasing knots
// x. Every row must have the same length.
func New(x []float64, y [][]float64, bc Boundary) (*Spline, error) {
	n := len(x)
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 knots, got %d", n)
	}
	if len(y) != n {
		return nil, fmt.Errorf("got %d knots but %d rows", n, len(y))
	}
	for i := 1; i < n; i++ {
		if !(x[i] > x[i-1]) {
			return nil, fmt.Errorf("knots must be strictly increasing: x[%d]=%g, x[%d]=%g", i-1, x[i-1], i, x[i])
		}
	}
	dim := len(y[0])
	s := &Spline{
		x:   append([]float64(nil), x...),
		dim: dim,
		y:   make([]float64, n*dim),
	}
	for i, row := range y {
		if len(row) != dim {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), dim)
		}
		copy(s.y[i*dim:], row)
	}

	a, rhs := s.system(bc)
	if err := solve(a, rhs, n, dim); err != nil {
		return nil, err
	}
	s.m = rhs
	return s, nil
}

// NewLinear returns the piecewise linear interpolant through the rows of y.
// Its second and third derivatives are zero.
func NewLinear(x []float64, y [][]float64) (*Spline, error) {
	s, err := New(x, y, Natural)
	if err != nil {
		return nil, err
	}
	clear(s.m)
	return s, nil
}

// Dim returns the number of interpolated curves.
func (s *Spline) Dim() int { return s.dim }

// Domain returns the first and last knot.
func (s *Spline) Domain() (lo, hi float64) { return s.x[0], s.x[len(s.x)-1] }

// Knots returns a copy of the knot positions.
func (s *Spline) Knots() []float64 { return append([]float64(nil), s.x...) }

// Eval writes the order-th derivative of every curve at t into out and
// returns it. out is allocated when nil. Points outside the domain are
// extrapolated from the end segments.
func (s *Spline) Eval(t float64, order int, out []float64) []float64 {
	if out == nil {
		out = make([]float64, s.dim)
	}
	n := len(s.x)
	i := sort.SearchFloat64s(s.x, t) - 1
	i = max(0, min(i, n-2))

	x0, x1 := s.x[i], s.x[i+1]
	h := x1 - x0
	a, b := x1-t, t-x0
	y0, y1 := s.y[i*s.dim:(i+1)*s.dim], s.y[(i+1)*s.dim:(i+2)*s.dim]
	m0, m1 := s.m[i*s.dim:(i+1)*s.dim], s.m[(i+1)*s.dim:(i+2)*s.dim]

	switch order {
	case 0:
		for k := range out {
			out[k] = m0[k]*a*a*a/(6*h) + m1[k]*b*b*b/(6*h) +
				(y0[k]/h-m0[k]*h/6)*a + (y1[k]/h-m1[k]*h/6)*b
		}
	case 1:
		for k := range out {
			out[k] = -m0[k]*a*a/(2*h) + m1[k]*b*b/(2*h) -
				(y0[k]/h - m0[k]*h/6) + (y1[k]/h - m1[k]*h/6)
		}
	case 2:
		for k := range out {
			out[k] = (m0[k]*a + m1[k]*b) / h
		}
	case 3:
		for k := range out {
			out[k] = (m1[k] - m0[k]) / h
		}
	default:
		for k := range out {
			out[k] = 0
		}
	}
	return out
}

// system builds the n x n moment equations and their dim right-hand sides.
func (s *Spline) system(bc Boundary) (a []float64, rhs []float64) {
	n, dim := len(s.x), s.dim
	a = make([]float64, n*n)
	rhs = make([]float64, n*dim)
	h := make([]float64, n-1)
	for i := range h {
		h[i] = s.x[i+1] - s.x[i]
	}
	yAt := func(i, k int) float64 { return s.y[i*dim+k] }

	for i := 1; i < n-1; i++ {
		a[i*n+i-1] = h[i-1] / 6
		a[i*n+i] = (h[i-1] + h[i]) / 3
		a[i*n+i+1] = h[i] / 6
		for k := 0; k < dim; k++ {
			rhs[i*dim+k] = (yAt(i+1, k)-yAt(i, k))/h[i] - (yAt(i, k)-yAt(i-1, k))/h[i-1]
		}
	}

	last := n - 1
	switch {
	case bc == Clamped:
		a[0] = h[0] / 3
		a[1] = h[0] / 6
		a[last*n+last-1] = h[last-1] / 6
		a[last*n+last] = h[last-1] / 3
		for k := 0; k < dim; k++ {
			rhs[k] = (yAt(1, k) - yAt(0, k)) / h[0]
			rhs[last*dim+k] = -(yAt(last, k) - yAt(last-1, k)) / h[last-1]
		}
	case bc == NotAKnot && n == 3:
		// A single parabola through the three knots.
		a[0], a[1] = 1, -1
		a[last*n+last-1], a[last*n+last] = 1, -1
	case bc == NotAKnot && n > 3:
		a[0] = -1 / h[0]
		a[1] = 1/h[0] + 1/h[1]
		a[2] = -1 / h[1]
		a[last*n+last-2] = -1 / h[last-2]
		a[last*n+last-1] = 1/h[last-2] + 1/h[last-1]
		a[last*n+last] = -1 / h[last-1]
	default:
		// Natural, and not-a-knot with two knots, which is the straight line.
		a[0] = 1
		a[last*n+last] = 1
	}
	return a, rhs
}

// solve overwrites b (n rows of dim right-hand sides) with the solution of
// a x = b, using LU decomposition with partial pivoting. a is destroyed.
func solve(a, b []float64, n, dim int) error {
	row := make([]float64, dim)
	for col := 0; col < n; col++ {
		p := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r*n+col]) > math.Abs(a[p*n+col]) {
				p = r
			}
		}
		if a[p*n+col] == 0 {
			return errors.New("singular spline system")
		}
		if p != col {
			for c := 0; c < n; c++ {
				a[p*n+c], a[col*n+c] = a[col*n+c], a[p*n+c]
			}
			copy(row, b[p*dim:(p+1)*dim])
			copy(b[p*dim:(p+1)*dim], b[col*dim:(col+1)*dim])
			copy(b[col*dim:(col+1)*dim], row)
		}
		pivot := a[col*n+col]
		for r := col + 1; r < n; r++ {
			f := a[r*n+col] / pivot
			if f == 0 {
				continue
			}
			a[r*n+col] = 0
			for c := col + 1; c < n; c++ {
				a[r*n+c] -= f * a[col*n+c]
			}
			br, bc := b[r*dim:(r+1)*dim], b[col*dim:(col+1)*dim]
			for k := range br {
				br[k] -= f * bc[k]
			}
		}
	}
	for r := n - 1; r >= 0; r-- {
		br := b[r*dim : (r+1)*dim]
		for c := r + 1; c < n; c++ {
			f := a[r*n+c]
			if f == 0 {
				continue
			}
			bc := b[c*dim : (c+1)*dim]
			for k := range br {
				br[k] -= f * bc[k]
			}
		}
		pivot := a[r*n+r]
		for k := range br {
			br[k] /= pivot
		}
	}
	return nil
}
