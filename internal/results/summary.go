package results

import (
	"cmp"
	"math"
	"slices"
	"strings"
)

// Stat is the ensemble mean and population standard deviation of one field.
type Stat struct {
	Mean float64
	Std  float64
	N    int
}

// SummaryRow aggregates every valid record sharing one parameter tuple.
type SummaryRow struct {
	Params []Field
	Stats  map[string]Stat
	// Samples is the number of valid records in the tuple.
	Samples int
}

// Param returns the value of a parameter of the row.
func (r SummaryRow) Param(name string) (Value, bool) {
	for _, f := range r.Params {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Summary is the ensemble average of a dataset.
type Summary struct {
	Params []string
	Fields []string
	Rows   []SummaryRow
}

// IsValid selects records whose Valid field is true.
func IsValid(r Record) bool {
	v, _ := r.Get(FieldValid)
	return v.Truth()
}

// notAveraged lists the outputs that are never averaged.
var notAveraged = []string{FieldWorkerID, FieldRank, FieldErrors, FieldValid, FieldDev}

// Summarize groups the records accepted by keep by their parameter tuple
// and averages every numeric output across each group. Groups keep the
// order in which their first record appears.
func Summarize(ds *Dataset, keep func(Record) bool) Summary {
	var s Summary
	for _, name := range ds.Schema() {
		switch {
		case !IsOutput(name):
			s.Params = append(s.Params, name)
		case !slices.Contains(notAveraged, name):
			s.Fields = append(s.Fields, name)
		}
	}

	type group struct {
		params []Field
		values map[string][]float64
		n      int
	}
	var (
		order  []string
		groups = make(map[string]*group)
	)
	for _, r := range ds.Rows() {
		if keep != nil && !keep(r) {
			continue
		}
		params := make([]Field, len(s.Params))
		keys := make([]string, len(s.Params))
		for i, name := range s.Params {
			v, _ := r.Get(name)
			params[i] = Field{Name: name, Value: v}
			keys[i] = v.Text()
		}
		key := strings.Join(keys, "\x00")
		g, ok := groups[key]
		if !ok {
			g = &group{params: params, values: make(map[string][]float64)}
			groups[key] = g
			order = append(order, key)
		}
		g.n++
		for _, name := range s.Fields {
			v, _ := r.Get(name)
			if x, ok := v.Number(); ok && !math.IsNaN(x) {
				g.values[name] = append(g.values[name], x)
			}
		}
	}

	for _, key := range order {
		g := groups[key]
		row := SummaryRow{Params: g.params, Stats: make(map[string]Stat), Samples: g.n}
		for name, xs := range g.values {
			row.Stats[name] = stat(xs)
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}

func stat(xs []float64) Stat {
	n := float64(len(xs))
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= n
	variance := 0.0
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	return Stat{Mean: mean, Std: math.Sqrt(variance / n), N: len(xs)}
}

// Integrate returns the cumulative trapezoidal integral of y over x,
// starting at 0.
func Integrate(x, y []float64) []float64 {
	out := make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		out[i] = out[i-1] + 0.5*(x[i]-x[i-1])*(y[i]+y[i-1])
	}
	return out
}

// ProfilePoint is one point of an integrated profile.
type ProfilePoint struct {
	Coordinate  float64
	Integral    float64
	IntegralStd float64
}

// Profile is the cumulative integral of a field along one coordinate for a
// fixed tuple of the other parameters.
type Profile struct {
	Params []Field
	Points []ProfilePoint
	// Barrier is the largest value of the integral.
	Barrier float64
}

// Profiles integrates the ensemble mean of target along coord for every
// tuple of the remaining parameters. The standard deviation is integrated
// the same way, which bounds the error of the integral.
func Profiles(s Summary, coord, target string) []Profile {
	type curve struct {
		params []Field
		rows   []SummaryRow
	}
	var (
		order  []string
		curves = make(map[string]*curve)
	)
	for _, row := range s.Rows {
		if _, ok := row.Param(coord); !ok {
			continue
		}
		if _, ok := row.Stats[target]; !ok {
			continue
		}
		var params []Field
		var keys []string
		for _, p := range row.Params {
			if p.Name == coord {
				continue
			}
			params = append(params, p)
			keys = append(keys, p.Value.Text())
		}
		key := strings.Join(keys, "\x00")
		c, ok := curves[key]
		if !ok {
			c = &curve{params: params}
			curves[key] = c
			order = append(order, key)
		}
		c.rows = append(c.rows, row)
	}

	var out []Profile
	for _, key := range order {
		c := curves[key]
		coordOf := func(r SummaryRow) float64 {
			v, _ := r.Param(coord)
			x, _ := v.Number()
			return x
		}
		slices.SortStableFunc(c.rows, func(a, b SummaryRow) int { return cmp.Compare(coordOf(a), coordOf(b)) })

		x := make([]float64, len(c.rows))
		mean := make([]float64, len(c.rows))
		std := make([]float64, len(c.rows))
		for i, r := range c.rows {
			x[i] = coordOf(r)
			mean[i] = r.Stats[target].Mean
			std[i] = r.Stats[target].Std
		}
		integral, integralStd := Integrate(x, mean), Integrate(x, std)

		p := Profile{Params: c.params, Barrier: math.Inf(-1)}
		for i := range x {
			p.Points = append(p.Points, ProfilePoint{Coordinate: x[i], Integral: integral[i], IntegralStd: integralStd[i]})
			p.Barrier = max(p.Barrier, integral[i])
		}
		out = append(out, p)
	}
	return out
}
