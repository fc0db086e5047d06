package pathway

import (
	"fmt"
	"math"
)

// BoxSize is the length of the engine's box observable:
// lx, ly, lz, xy, xz, yz and the periodic flags px, py, pz.
const BoxSize = 9

// Cell is a triclinic simulation cell with upper triangular matrix
//
//	H = | lx xy xz |
//	    |  0 ly yz |
//	    |  0  0 lz |
type Cell struct {
	H        [3][3]float64
	Periodic [3]bool
	inv      [3][3]float64
}

// NewCell builds a cell from its edge lengths and tilt factors.
func NewCell(lx, ly, lz, xy, xz, yz float64, periodic [3]bool) (Cell, error) {
	if !(lx > 0 && ly > 0 && lz > 0) {
		return Cell{}, fmt.Errorf("cell lengths must be positive, got %g %g %g", lx, ly, lz)
	}
	c := Cell{
		H:        [3][3]float64{{lx, xy, xz}, {0, ly, yz}, {0, 0, lz}},
		Periodic: periodic,
	}
	c.inv = [3][3]float64{
		{1 / lx, -xy / (lx * ly), (xy*yz - xz*ly) / (lx * ly * lz)},
		{0, 1 / ly, -yz / (ly * lz)},
		{0, 0, 1 / lz},
	}
	return c, nil
}

// CellFromBox builds a cell from the box observable, see BoxSize.
func CellFromBox(box []float64) (Cell, error) {
	if len(box) != BoxSize {
		return Cell{}, fmt.Errorf("box observable has %d values, want %d", len(box), BoxSize)
	}
	return NewCell(box[0], box[1], box[2], box[3], box[4], box[5],
		[3]bool{box[6] != 0, box[7] != 0, box[8] != 0})
}

// Scaled returns the cell with its x, y and z rows multiplied by s, the
// cell of a configuration whose components were scaled the same way.
func (c Cell) Scaled(s [3]float64) Cell {
	h := c.H
	for i := range h {
		for j := range h[i] {
			h[i][j] *= s[i]
		}
	}
	out, err := NewCell(h[0][0], h[1][1], h[2][2], h[0][1], h[0][2], h[1][2], c.Periodic)
	if err != nil {
		return c
	}
	return out
}

// MinImage applies the minimum image convention in place to a flattened
// list of 3-vectors.
func (c Cell) MinImage(d []float64) {
	for a := 0; a+2 < len(d); a += 3 {
		var s [3]float64
		for i := 0; i < 3; i++ {
			s[i] = c.inv[i][0]*d[a] + c.inv[i][1]*d[a+1] + c.inv[i][2]*d[a+2]
			if c.Periodic[i] {
				s[i] -= math.Round(s[i])
			}
		}
		for i := 0; i < 3; i++ {
			d[a+i] = c.H[i][0]*s[0] + c.H[i][1]*s[1] + c.H[i][2]*s[2]
		}
	}
}

// Distance returns the norm of the minimum image of b-a over all atoms.
func (c Cell) Distance(a, b []float64) float64 {
	d := make([]float64, len(a))
	for i := range d {
		d[i] = b[i] - a[i]
	}
	c.MinImage(d)
	return norm(d)
}

// MaxAtomDisplacement returns the largest per-atom minimum image norm of
// b-a.
func (c Cell) MaxAtomDisplacement(a, b []float64) float64 {
	d := make([]float64, len(a))
	for i := range d {
		d[i] = b[i] - a[i]
	}
	c.MinImage(d)
	worst := 0.0
	for i := 0; i+2 < len(d); i += 3 {
		worst = max(worst, math.Sqrt(d[i]*d[i]+d[i+1]*d[i+1]+d[i+2]*d[i+2]))
	}
	return worst
}

func norm(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
