// Package memory is an in-process, deterministic engine. It keeps atoms,
// the box, per-atom properties, fixes and computes, and answers the
// observables the sampler reads from a simple model: constrained runs keep
// the atoms on the hyperplane, minimization returns them to it, and the
// energy and temperature reflect the temperature of the constraint fix.
//
// It does not integrate anything. It exists for tests and dry runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/specialistvlad/pafigrid/internal/engine"
)

// Boltzmann constant in eV/K.
const kB = 8.617e-5

// ErrClosed is returned by calls on a closed engine.
var ErrClosed = errors.New("engine closed")

// Options tunes the memory engine.
type Options struct {
	// Version and Packages are reported by Info. Zero values report a
	// recent release with EXTRA-FIX.
	Version  int
	Packages []string
	// Energy is the potential energy per atom of a relaxed configuration.
	Energy float64
	// Pafi is the time average of the constraint fix vector:
	// projected force, its root mean square, psi and tangent drift.
	Pafi []float64
	// Drift offsets every atom from the hyperplane during constrained runs.
	Drift [3]float64
	// Observables overrides any observable by name.
	Observables map[string][]float64
	// OnMinimize is called with the positions after every minimization and
	// may displace atoms in place.
	OnMinimize func(x []float64)
	// Fail makes matching commands fail.
	Fail func(cmd string) bool
}

type fix struct {
	style string
	args  []string
	// mean positions of an ave/atom fix
	atoms []float64
}

// Engine implements engine.Engine in memory.
type Engine struct {
	opts Options

	mu       sync.Mutex
	closed   bool
	box      [9]float64
	ids      []int
	types    []int
	x        []float64
	props    map[string][]float64
	fixes    map[string]*fix
	computes map[string]string
	step     int
	hot      bool
	history  []string
}

// New returns an empty engine.
func New(opts Options) *Engine {
	if opts.Version == 0 {
		opts.Version = 20230802
		if opts.Packages == nil {
			opts.Packages = []string{"EXTRA-FIX", "MANYBODY"}
		}
	}
	if opts.Energy == 0 {
		opts.Energy = -4.0
	}
	if opts.Pafi == nil {
		opts.Pafi = []float64{0.5, 0.6, 0.02, 0.001}
	}
	return &Engine{
		opts:     opts,
		box:      [9]float64{1, 1, 1, 0, 0, 0, 1, 1, 1},
		props:    make(map[string][]float64),
		fixes:    make(map[string]*fix),
		computes: make(map[string]string),
	}
}

// Factory returns an engine.Factory opening a fresh memory engine per rank.
// configure, when not nil, may adjust the options per placement.
func Factory(opts Options, configure func(engine.Placement, *Options)) engine.Factory {
	return func(_ context.Context, p engine.Placement) (engine.Engine, error) {
		o := opts
		if configure != nil {
			configure(p, &o)
		}
		return New(o), nil
	}
}

// History returns every command received so far.
func (e *Engine) History() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.history)
}

func (e *Engine) natoms() int { return len(e.ids) }

// Command implements engine.Engine.
func (e *Engine) Command(_ context.Context, cmd string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.history = append(e.history, cmd)
	if e.opts.Fail != nil && e.opts.Fail(cmd) {
		return fmt.Errorf("command failed: %s", cmd)
	}
	f := strings.Fields(cmd)
	if len(f) == 0 {
		return nil
	}
	switch f[0] {
	case "units", "atom_style", "atom_modify", "pair_style", "pair_coeff", "mass",
		"thermo", "thermo_style", "thermo_modify", "neighbor", "neigh_modify",
		"timestep", "velocity", "variable", "print", "log", "min_style", "min_modify":
		return nil
	case "boundary":
		return e.boundary(f[1:])
	case "read_data":
		return e.readData(f[1:])
	case "delete_atoms":
		e.ids, e.types, e.x = nil, nil, nil
		for k := range e.props {
			e.props[k] = nil
		}
		return nil
	case "change_box":
		return e.changeBox(f[1:])
	case "fix":
		return e.fix(f[1:])
	case "unfix":
		if len(f) != 2 {
			return errors.New("unfix needs a fix ID")
		}
		if _, ok := e.fixes[f[1]]; !ok {
			return fmt.Errorf("could not find fix ID %s to delete", f[1])
		}
		delete(e.fixes, f[1])
		return nil
	case "compute":
		if len(f) < 4 {
			return errors.New("compute needs ID group style")
		}
		if _, ok := e.computes[f[1]]; ok {
			return fmt.Errorf("reuse of compute ID %s", f[1])
		}
		e.computes[f[1]] = f[3]
		return nil
	case "uncompute":
		delete(e.computes, f[1])
		return nil
	case "run":
		n, err := steps(f)
		if err != nil {
			return err
		}
		e.run(n)
		return nil
	case "minimize":
		if len(f) != 5 {
			return errors.New("minimize needs etol ftol maxiter maxeval")
		}
		e.minimize()
		return nil
	case "reset_timestep":
		n, err := steps(f)
		if err != nil {
			return err
		}
		e.step = n
		return nil
	}
	return fmt.Errorf("unknown command: %s", f[0])
}

func steps(f []string) (int, error) {
	if len(f) < 2 {
		return 0, fmt.Errorf("%s needs a step count", f[0])
	}
	n, err := strconv.Atoi(f[1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: invalid step count %q", f[0], f[1])
	}
	return n, nil
}

func (e *Engine) boundary(f []string) error {
	if len(f) != 3 {
		return errors.New("boundary needs three styles")
	}
	for k, s := range f {
		e.box[6+k] = 0
		if s == "p" {
			e.box[6+k] = 1
		}
	}
	return nil
}

func (e *Engine) readData(f []string) error {
	if len(f) == 0 {
		return errors.New("read_data needs a file")
	}
	fh, err := os.Open(f[0])
	if err != nil {
		return fmt.Errorf("read_data: %w", err)
	}
	defer fh.Close()
	d, err := parseData(fh)
	if err != nil {
		return fmt.Errorf("read_data %s: %w", f[0], err)
	}

	add := slices.Contains(f[1:], "add")
	if !add {
		copy(e.box[:6], d.box[:])
		e.ids, e.types, e.x = nil, nil, nil
	}
	for i, id := range d.ids {
		if slices.Contains(e.ids, id) {
			return fmt.Errorf("read_data %s: duplicate atom id %d", f[0], id)
		}
		e.ids = append(e.ids, id)
		e.types = append(e.types, d.types[i])
		e.x = append(e.x, d.x[3*i:3*i+3]...)
	}
	for k := range e.props {
		e.props[k] = make([]float64, e.natoms())
	}
	return nil
}

func (e *Engine) changeBox(f []string) error {
	if len(f) < 1 {
		return errors.New("change_box needs a group")
	}
	for i := 1; i < len(f); i++ {
		k := strings.IndexByte("xyz", f[i][0])
		if len(f[i]) != 1 || k < 0 {
			continue
		}
		if i+2 >= len(f) || f[i+1] != "scale" {
			return fmt.Errorf("change_box: only scale is supported for %s", f[i])
		}
		s, err := strconv.ParseFloat(f[i+2], 64)
		if err != nil || s <= 0 {
			return fmt.Errorf("change_box: invalid scale %q", f[i+2])
		}
		e.box[k] *= s
		i += 2
	}
	return nil
}

func (e *Engine) fix(f []string) error {
	if len(f) < 3 {
		return errors.New("fix needs ID group style")
	}
	id, style, args := f[0], f[2], f[3:]
	switch style {
	case "property/atom":
		for _, a := range args {
			if !strings.HasPrefix(a, "d_") && !strings.HasPrefix(a, "i_") {
				return fmt.Errorf("fix property/atom: unsupported property %s", a)
			}
			e.props[a] = make([]float64, e.natoms())
		}
	case "pafi":
		if len(args) < 4 {
			return errors.New("fix pafi needs compute T gamma seed")
		}
		if _, ok := e.computes[args[0]]; !ok {
			return fmt.Errorf("fix pafi: could not find compute ID %s", args[0])
		}
		if _, err := strconv.ParseFloat(args[1], 64); err != nil {
			return fmt.Errorf("fix pafi: invalid temperature %q", args[1])
		}
	case "ave/time":
		if len(args) < 4 {
			return errors.New("fix ave/time needs Nevery Nrepeat Nfreq values")
		}
		for _, ref := range args[3:] {
			if _, err := e.observable(ref); err != nil {
				return fmt.Errorf("fix ave/time: %w", err)
			}
		}
	case "ave/atom":
		if len(args) < 4 {
			return errors.New("fix ave/atom needs Nevery Nrepeat Nfreq values")
		}
	}
	e.fixes[id] = &fix{style: style, args: args, atoms: slices.Clone(e.x)}
	return nil
}

// pafi returns the constraint fix, if any.
func (e *Engine) pafi() *fix {
	for _, f := range e.fixes {
		if f.style == "pafi" {
			return f
		}
	}
	return nil
}

func (e *Engine) temperature() float64 {
	p := e.pafi()
	if p == nil || !e.hot {
		return 0
	}
	t, _ := strconv.ParseFloat(p.args[1], 64)
	return t
}

// plane moves the atoms onto the hyperplane reference positions.
func (e *Engine) plane(offset [3]float64) {
	ux, uy, uz := e.props["d_ux"], e.props["d_uy"], e.props["d_uz"]
	if len(ux) != e.natoms() || len(uy) != e.natoms() || len(uz) != e.natoms() {
		return
	}
	for i := range e.natoms() {
		e.x[3*i] = ux[i] + offset[0]
		e.x[3*i+1] = uy[i] + offset[1]
		e.x[3*i+2] = uz[i] + offset[2]
	}
}

func (e *Engine) run(n int) {
	e.step += n
	if n == 0 || e.pafi() == nil {
		return
	}
	e.hot = true
	e.plane(e.opts.Drift)
	for _, f := range e.fixes {
		if f.style == "ave/atom" {
			f.atoms = slices.Clone(e.x)
		}
	}
}

func (e *Engine) minimize() {
	e.hot = false
	if e.pafi() != nil {
		e.plane([3]float64{})
	}
	if e.opts.OnMinimize != nil {
		e.opts.OnMinimize(e.x)
	}
}

func (e *Engine) energy() float64 {
	n := float64(e.natoms())
	return e.opts.Energy*n + 1.5*n*kB*e.temperature()
}

// observable resolves a c_ID, f_ID or f_ID[*] reference.
func (e *Engine) observable(ref string) ([]float64, error) {
	ref = strings.TrimSuffix(ref, "[*]")
	if v, ok := e.opts.Observables[ref]; ok {
		return slices.Clone(v), nil
	}
	switch ref {
	case "box":
		return slices.Clone(e.box[:]), nil
	case "c_thermo_pe", "c_pe":
		return []float64{e.energy()}, nil
	case "c_thermo_temp":
		return []float64{e.temperature()}, nil
	}
	id, isFix := strings.CutPrefix(ref, "f_")
	if !isFix {
		return nil, fmt.Errorf("unknown observable %s", ref)
	}
	f, ok := e.fixes[id]
	if !ok {
		return nil, fmt.Errorf("could not find fix ID %s", id)
	}
	switch f.style {
	case "pafi":
		return slices.Clone(e.opts.Pafi), nil
	case "ave/time":
		var out []float64
		for _, in := range f.args[3:] {
			v, err := e.observable(in)
			if err != nil {
				return nil, err
			}
			out = append(out, v...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("fix %s (%s) computes no global value", id, f.style)
}

// Gather implements engine.Engine.
func (e *Engine) Gather(_ context.Context, name string, _ engine.DataType, count int) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	var v []float64
	switch name {
	case "x":
		v = slices.Clone(e.x)
	case "id", "type":
		src := e.ids
		if name == "type" {
			src = e.types
		}
		for _, i := range src {
			v = append(v, float64(i))
		}
	default:
		if p, ok := e.props[name]; ok {
			v = slices.Clone(p)
			break
		}
		id, _ := strings.CutPrefix(name, "f_")
		f, ok := e.fixes[id]
		if !ok || f.style != "ave/atom" {
			return nil, fmt.Errorf("gather: unknown per-atom field %s", name)
		}
		v = slices.Clone(f.atoms)
	}
	if len(v) != count*e.natoms() {
		return nil, fmt.Errorf("gather %s: field has %d components per atom, asked for %d", name, len(v)/max(1, e.natoms()), count)
	}
	return v, nil
}

// Scatter implements engine.Engine.
func (e *Engine) Scatter(_ context.Context, name string, _ engine.DataType, count int, data []float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if len(data) != count*e.natoms() {
		return fmt.Errorf("scatter %s: got %d values for %d atoms x %d", name, len(data), e.natoms(), count)
	}
	switch {
	case name == "x" && count == 3:
		copy(e.x, data)
	case count == 1:
		if _, ok := e.props[name]; !ok {
			return fmt.Errorf("scatter: unknown per-atom property %s", name)
		}
		e.props[name] = slices.Clone(data)
	default:
		return fmt.Errorf("scatter: cannot write %s with %d components", name, count)
	}
	return nil
}

// Extract implements engine.Engine.
func (e *Engine) Extract(_ context.Context, name string, size int) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	v, err := e.observable(name)
	if err != nil {
		return nil, err
	}
	if len(v) < size {
		return nil, fmt.Errorf("extract %s: has %d values, asked for %d", name, len(v), size)
	}
	return v[:size], nil
}

// Info implements engine.Engine.
func (e *Engine) Info(context.Context) (engine.Info, error) {
	return engine.Info{Version: e.opts.Version, Packages: slices.Clone(e.opts.Packages)}, nil
}

// Close implements engine.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
