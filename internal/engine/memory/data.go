package memory

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// dataFile is the subset of an engine data file the memory engine reads:
// the box and the atoms of the Atoms section in atomic style.
type dataFile struct {
	box   [6]float64 // lx ly lz xy xz yz
	ids   []int
	types []int
	x     []float64
}

var sections = []string{
	"Atoms", "Velocities", "Masses", "Bonds", "Angles", "Dihedrals", "Impropers", "Pair Coeffs",
}

func sectionOf(line string) (string, bool) {
	for _, s := range sections {
		if line == s || strings.HasPrefix(line, s+" ") {
			return s, true
		}
	}
	return "", false
}

func parseData(r io.Reader) (*dataFile, error) {
	d := &dataFile{}
	sc := bufio.NewScanner(r)
	var (
		lineNo  int
		section string
		natoms  = -1
		lo, hi  [3]float64
	)
	for sc.Scan() {
		lineNo++
		if lineNo == 1 {
			continue
		}
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if s, ok := sectionOf(line); ok {
			section = s
			continue
		}
		f := strings.Fields(line)

		if section == "" {
			switch {
			case len(f) == 2 && f[1] == "atoms":
				n, err := strconv.Atoi(f[0])
				if err != nil {
					return nil, fmt.Errorf("line %d: atom count: %w", lineNo, err)
				}
				natoms = n
			case len(f) == 4 && strings.HasSuffix(f[2], "lo") && strings.HasSuffix(f[3], "hi"):
				k := strings.IndexByte("xyz", f[2][0])
				if k < 0 {
					return nil, fmt.Errorf("line %d: unknown bound %q", lineNo, f[2])
				}
				v, err := floats(f[:2])
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				lo[k], hi[k] = v[0], v[1]
			case len(f) == 6 && f[3] == "xy":
				v, err := floats(f[:3])
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				copy(d.box[3:], v)
			}
			continue
		}
		if section != "Atoms" {
			continue
		}
		if len(f) < 5 {
			return nil, fmt.Errorf("line %d: atom line needs id type x y z", lineNo)
		}
		id, err := strconv.Atoi(f[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: atom id: %w", lineNo, err)
		}
		typ, err := strconv.Atoi(f[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: atom type: %w", lineNo, err)
		}
		pos, err := floats(f[2:5])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		d.ids = append(d.ids, id)
		d.types = append(d.types, typ)
		d.x = append(d.x, pos...)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for k := range 3 {
		d.box[k] = hi[k] - lo[k]
	}
	if natoms >= 0 && natoms != len(d.ids) {
		return nil, fmt.Errorf("header declares %d atoms, Atoms section has %d", natoms, len(d.ids))
	}
	d.sortByID()
	return d, nil
}

func (d *dataFile) sortByID() {
	order := make([]int, len(d.ids))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int { return d.ids[a] - d.ids[b] })
	ids, types, x := make([]int, len(order)), make([]int, len(order)), make([]float64, len(d.x))
	for i, o := range order {
		ids[i], types[i] = d.ids[o], d.types[o]
		copy(x[3*i:3*i+3], d.x[3*o:3*o+3])
	}
	d.ids, d.types, d.x = ids, types, x
}

func floats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// DataFile renders an orthogonal box of the given lengths holding atoms of
// type 1 at the flattened positions x, numbered from 1.
func DataFile(box [3]float64, x []float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "generated configuration\n\n%d atoms\n1 atom types\n\n", len(x)/3)
	for k, dim := range []string{"x", "y", "z"} {
		fmt.Fprintf(&b, "0.0 %g %slo %shi\n", box[k], dim, dim)
	}
	b.WriteString("\nMasses\n\n1 55.845\n\nAtoms # atomic\n\n")
	for i := 0; i+2 < len(x); i += 3 {
		fmt.Fprintf(&b, "%d 1 %.12g %.12g %.12g\n", i/3+1, x[i], x[i+1], x[i+2])
	}
	return b.String()
}
