package driver

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/pafigrid/internal/config"
	"github.com/specialistvlad/pafigrid/internal/sampler"
)

// Below this temperature samples run short: there is nothing to thermalize.
const lowTemperature = 0.1

var lowTemperatureSteps = []struct {
	name  string
	steps int
}{
	{config.SampleSteps, 50},
	{config.ThermSteps, 10},
	{config.ThermWindow, 10},
}

// Coordinate is the value of one axis at a grid point.
type Coordinate struct {
	Axis  string
	Value float64
}

// Point is one element of the Cartesian product of the axes.
type Point []Coordinate

// Grid returns the Cartesian product of the axes in declaration order; the
// last axis varies fastest. An axis without values yields no points.
func Grid(axes []config.Axis) []Point {
	if len(axes) == 0 {
		return nil
	}
	points := []Point{{}}
	for _, a := range axes {
		next := make([]Point, 0, len(points)*len(a.Values))
		for _, p := range points {
			for _, v := range a.Values {
				q := make(Point, len(p), len(p)+1)
				copy(q, p)
				next = append(next, append(q, Coordinate{Axis: a.Name, Value: v}))
			}
		}
		points = next
	}
	return points
}

// Value returns the coordinate on the named axis.
func (p Point) Value(axis string) (float64, bool) {
	for _, c := range p {
		if c.Axis == axis {
			return c.Value, true
		}
	}
	return 0, false
}

// Request turns the point into a sample request. Near zero temperature the
// step counts are cut down for that request only.
func (p Point) Request() sampler.Request {
	var req sampler.Request
	for _, c := range p {
		req.Set(c.Axis, config.Float(c.Value))
	}
	if T, ok := p.Value(config.AxisTemperature); ok && T < lowTemperature {
		for _, o := range lowTemperatureSteps {
			req.Override(o.name, config.Int(o.steps))
		}
	}
	return req
}

func (p Point) String() string {
	parts := make([]string, len(p))
	for i, c := range p {
		parts[i] = fmt.Sprintf("%s=%v", c.Axis, c.Value)
	}
	return strings.Join(parts, " ")
}
