// Package sampler runs constrained samples on one worker group. A Sampler
// owns the engine session of one rank, the reaction pathway and the
// hyperplane state, and turns every Request into one result record.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/specialistvlad/pafigrid/internal/config"
	"github.com/specialistvlad/pafigrid/internal/ctxlog"
	"github.com/specialistvlad/pafigrid/internal/engine"
	"github.com/specialistvlad/pafigrid/internal/pathway"
	"github.com/specialistvlad/pafigrid/internal/results"
	"github.com/specialistvlad/pafigrid/internal/template"
	"github.com/specialistvlad/pafigrid/internal/topology"
)

// Boltzmann constant in eV/K.
const kB = 8.617e-5

// Engine identifiers owned by the sampler.
const (
	pathFix     = "__pafipath"
	pathProps   = "d_ux d_uy d_uz d_nx d_ny d_nz d_dnx d_dny d_dnz"
	constraint  = "pafi"
	average     = "avepafi"
	temperature = "__ae"
	meanAtoms   = "pafiax"
)

// Options configures a Sampler.
type Options struct {
	Config *config.Config
	Engine engine.Engine
	Seeder *topology.Seeder
	// WorkerID is the index of the worker group, Rank the world rank and
	// LocalRank the rank within the group.
	WorkerID  int
	Rank      int
	LocalRank int
	// Hooks are added after those built from the SampleFixes parameter.
	Hooks []AverageHook
}

// Sampler drives one rank's engine through the sampling stages.
type Sampler struct {
	cfg    *config.Config
	sess   *engine.Session
	seeder *topology.Seeder
	hooks  []AverageHook
	worker int
	rank   int

	path        *pathway.Pathway
	cell        pathway.Cell
	scale       [3]float64
	normT       float64
	madeFix     bool
	madeCompute bool

	// Whether records carry MaxDev and Dev. Fixed for the run so that
	// every record shares one schema.
	recordMaxDev bool
	recordDev    bool
}

// New initializes the engine with the Input script, reads the cell and
// builds the reaction pathway. Every error wraps engine.ErrInit or
// config.ErrConfiguration.
func New(ctx context.Context, opts Options) (*Sampler, error) {
	fixes, _ := opts.Config.Parameters.Get(config.SampleFixes)
	hooks, err := ParseSampleFixes(fixes.String())
	if err != nil {
		return nil, err
	}
	s := &Sampler{
		cfg:    opts.Config,
		sess:   engine.NewSession(opts.Engine, opts.LocalRank),
		seeder: opts.Seeder,
		hooks:  append(hooks, opts.Hooks...),
		worker: opts.WorkerID,
		rank:   opts.Rank,
		scale:  [3]float64{1, 1, 1},
	}
	s.recordMaxDev = s.enabled(ctx, config.PostDump)
	s.recordDev = s.recordMaxDev && s.enabled(ctx, config.WriteDev)

	input, _ := s.cfg.Script(config.ScriptInput)
	if err := engine.Initialize(ctx, s.sess, input, s.values(Request{})); err != nil {
		return nil, err
	}
	box, ok := s.sess.Extract(ctx, "box", pathway.BoxSize)
	if !ok {
		return nil, fmt.Errorf("%w: reading the cell failed", engine.ErrInit)
	}
	if s.cell, err = pathway.CellFromBox(box); err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrInit, err)
	}
	if err := s.makePath(ctx); err != nil {
		return nil, err
	}
	s.sess.Reset()
	return s, nil
}

// Pathway returns the reaction pathway of the sampler.
func (s *Sampler) Pathway() *pathway.Pathway { return s.path }

// Close releases the engine.
func (s *Sampler) Close() error { return s.sess.Engine().Close() }

// makePath loads every pathway configuration into the engine in turn and
// interpolates them.
func (s *Sampler) makePath(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	s.sess.Stage("pathway")

	var configs [][]float64
	for _, file := range s.cfg.Pathway.Paths() {
		if _, err := os.Stat(file); err != nil {
			logger.Warn("Pathway configuration not readable.", "file", file, "error", err)
		}
		ok := s.sess.Runf(ctx, "delete_atoms group all\nread_data %s add merge", file)
		x, gathered := s.sess.Gather(ctx, "x", engine.Double, 3)
		if !ok || !gathered {
			return fmt.Errorf("%w: loading pathway configuration %s: %w", engine.ErrInit, file, errors.Join(s.sess.Errors()...))
		}
		configs = append(configs, x)
	}

	opts, err := pathway.OptionsFromConfig(s.cfg, s.cell)
	if err != nil {
		return err
	}
	if s.path, err = pathway.Build(configs, opts); err != nil {
		return fmt.Errorf("%w: %w", engine.ErrInit, err)
	}
	logger.Debug("Pathway built.", "configurations", len(configs), "atoms", s.path.Atoms(), "knots", s.path.Knots())
	return nil
}

// values returns the placeholder values of a script: the built-ins, every
// parameter, then the request fields.
func (s *Sampler) values(req Request) template.Values {
	vals := template.Values{template.Potential: s.cfg.Pathway.PotentialPath()}
	if paths := s.cfg.Pathway.Paths(); len(paths) > 0 {
		vals[template.FirstPathConfiguration] = paths[0]
	}
	for _, key := range s.cfg.Parameters.Keys() {
		v, _ := s.cfg.Parameters.Get(key)
		vals[key] = v.String()
	}
	for _, f := range slices.Concat(req.overrides, req.fields) {
		vals[f.name] = f.value.String()
	}
	return vals
}

// enabled reports whether a flag parameter is set for some sample of the
// run, either by its configured value or by a non-zero value of a swept axis.
func (s *Sampler) enabled(ctx context.Context, key string) bool {
	if s.cfg.Get(ctx, key, config.Int(0)).Bool() {
		return true
	}
	axis, ok := s.cfg.Axis(key)
	return ok && slices.ContainsFunc(axis.Values, func(v float64) bool { return v != 0 })
}

// param returns a parameter with the request's value taking precedence.
func (s *Sampler) param(ctx context.Context, req Request, key string) config.Value {
	def := s.cfg.Get(ctx, key, config.Int(0))
	v, ok := req.Get(key)
	if !ok {
		return def
	}
	coerced, err := config.Coerce(def, v)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Request override ignored.", "key", key, "error", err)
		return def
	}
	return coerced
}

func (s *Sampler) script(name string) string {
	text, _ := s.cfg.Script(name)
	return text
}

// placeOnHyperplane rescales the cell for temperature T and writes the
// hyperplane at r into the engine: positions, the per-atom reference path,
// its unit tangent and the scaled curvature.
func (s *Sampler) placeOnHyperplane(ctx context.Context, r, T float64) {
	scale := s.cfg.Expansion(T)
	s.sess.Runf(ctx, "change_box all x scale %v y scale %v z scale %v\nrun 0",
		scale[0]/s.scale[0], scale[1]/s.scale[1], scale[2]/s.scale[2])
	s.scale = scale

	if !s.madeFix {
		s.sess.Runf(ctx, "fix %s all property/atom %s\nrun 0", pathFix, pathProps)
		s.madeFix = true
	}

	plane, err := s.path.Hyperplane(r, scale)
	if err != nil {
		s.sess.Fail(ctx, fmt.Sprintf("hyperplane at %v", r), err)
		return
	}
	s.normT = plane.Norm
	n := s.path.Atoms()
	s.sess.Scatter(ctx, "x", engine.Double, 3, plane.Position)
	for k, axis := range []string{"x", "y", "z"} {
		s.sess.Scatter(ctx, "d_u"+axis, engine.Double, 1, component(plane.Position, k, n))
		s.sess.Scatter(ctx, "d_n"+axis, engine.Double, 1, component(plane.Tangent, k, n))
		s.sess.Scatter(ctx, "d_dn"+axis, engine.Double, 1, component(plane.Curvature, k, n))
	}
	s.sess.Run(ctx, "run 0")

	if !s.madeCompute {
		s.sess.Runf(ctx, "compute %s all property/atom %s\nrun 0", pathFix, pathProps)
		s.madeCompute = true
	}
}

// component returns the k-th component of every atom vector.
func component(v []float64, k, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v[3*i+k]
	}
	return out
}

func (s *Sampler) minimize(ctx context.Context, steps int) {
	s.sess.Runf(ctx, "min_style fire\nminimize 0 0.0001 %d %d", steps, steps)
}

// newRecord lays out every field of the record so records of one run share
// a schema whichever stages fail.
func (s *Sampler) newRecord(ctx context.Context, req Request) results.Record {
	var rec results.Record
	for _, f := range req.fields {
		rec.Set(f.name, resultValue(f.value))
	}
	rec.Set(results.FieldWorkerID, results.Int(s.worker))
	rec.Set(results.FieldRank, results.Int(s.rank))
	for _, name := range []string{
		results.FieldMinEnergy, results.FieldPreT,
		results.FieldAveF, results.FieldVarF, results.FieldAvePsi, results.FieldDXTangent,
	} {
		rec.Set(name, results.Missing())
	}
	for _, h := range s.hooks {
		for _, name := range h.Fields() {
			rec.Set(name, results.Missing())
		}
	}
	rec.Set(results.FieldPostT, results.Missing())
	if s.recordMaxDev {
		rec.Set(results.FieldMaxDev, results.Missing())
	}
	if s.recordDev {
		rec.Set(results.FieldDev, results.Missing())
	}
	rec.Set(results.FieldMaxJump, results.Missing())
	rec.Set(results.FieldValid, results.Missing())
	rec.Set(results.FieldErrors, results.Int(0))
	return rec
}

// Sample runs one constrained sample. Stage failures never abort it: they
// are logged, counted in the Errors field and leave outputs missing. The
// error is only set for an incomplete request or a cancelled context.
func (s *Sampler) Sample(ctx context.Context, req Request) (results.Record, error) {
	rc, T, err := req.point()
	if err != nil {
		return results.Record{}, err
	}
	s.sess.Reset()
	rec := s.newRecord(ctx, req)
	param := func(key string) config.Value { return s.param(ctx, req, key) }
	vals := s.values(req)

	overdamped := param(config.OverDamped).Bool()
	natoms := float64(s.path.Atoms())

	s.sess.Stage("hyperplane")
	s.placeOnHyperplane(ctx, rc, 0)
	s.sess.Stage("prerun")
	s.sess.Script(ctx, config.ScriptPreRun, s.script(config.ScriptPreRun), vals)
	s.sess.Stage("hyperplane")
	s.placeOnHyperplane(ctx, rc, T)

	s.sess.Stage("constraint")
	s.sess.Runf(ctx, "fix %s all pafi %s %v %v %d overdamped %d com 1\nrun 0",
		constraint, pathFix, T, param(config.Friction).Float(), s.seeder.Next(), boolInt(overdamped))

	minSteps := param(config.MinSteps).Int()
	if param(config.PreMin).Bool() {
		s.sess.Stage("preminimize")
		s.minimize(ctx, minSteps)
	}
	ref, haveRef := s.sess.Gather(ctx, "x", engine.Double, 3)

	s.sess.Stage("pretherm")
	s.sess.Script(ctx, config.ScriptPreTherm, s.script(config.ScriptPreTherm), vals)
	minEnergy, haveMin := s.sess.Scalar(ctx, "c_thermo_pe")
	rec.Set(results.FieldMinEnergy, results.FloatOr(minEnergy, haveMin))

	// Overdamped dynamics has no kinetic temperature; it is recovered from
	// the potential energy above the minimum.
	observed := "c_thermo_temp"
	if overdamped {
		observed = "c_pe"
	}
	sampleT := func(v float64, ok bool) results.Value {
		if !ok || (overdamped && !haveMin) {
			return results.Missing()
		}
		if overdamped {
			v = (v - minEnergy) / 1.5 / natoms / kB
		}
		return results.Float(v)
	}

	s.sess.Stage("thermalize")
	thermSteps, window := param(config.ThermSteps).Int(), param(config.ThermWindow).Int()
	s.sess.Runf(ctx, "reset_timestep 0\nfix %s all ave/time 1 %d %d %s\nrun %d",
		temperature, window, thermSteps, observed, thermSteps)
	rec.Set(results.FieldPreT, sampleT(s.sess.Scalar(ctx, "f_"+temperature)))
	s.sess.Runf(ctx, "unfix %s\nrun 0", temperature)

	s.sess.Stage("sample")
	steps := param(config.SampleSteps).Int()
	postDump := param(config.PostDump).Bool()
	s.sess.Runf(ctx, "reset_timestep 0\nfix %s all ave/time 1 %d %d %s", temperature, steps, steps, observed)
	if postDump {
		s.sess.Runf(ctx, "fix %s all ave/atom 1 %d %d x y z", meanAtoms, steps, steps)
	}
	s.constrainedAverage(ctx, steps, &rec)
	rec.Set(results.FieldPostT, sampleT(s.sess.Scalar(ctx, "f_"+temperature)))
	s.sess.Runf(ctx, "unfix %s\nrun 0", temperature)

	if postDump {
		s.sess.Stage("deviation")
		s.deviation(ctx, &rec, param(config.WriteDev).Bool())
	}

	s.sess.Stage("validate")
	validateSteps := 1
	if param(config.PostMin).Bool() {
		validateSteps = minSteps
	}
	s.minimize(ctx, validateSteps)
	if x, ok := s.sess.Gather(ctx, "x", engine.Double, 3); ok && haveRef {
		jump := s.cell.Scaled(s.scale).MaxAtomDisplacement(ref, x)
		rec.Set(results.FieldMaxJump, results.Float(jump))
		rec.Set(results.FieldValid, results.Bool(jump < param(config.MaxJumpThresh).Float()))
	}

	s.sess.Stage("postrun")
	s.sess.Run(ctx, "unfix "+constraint)
	s.sess.Script(ctx, config.ScriptPostRun, s.script(config.ScriptPostRun), vals)
	s.sess.Stage("hyperplane")
	s.placeOnHyperplane(ctx, rc, 0)

	rec.Set(results.FieldErrors, results.Int(len(s.sess.Errors())))
	ctxlog.FromContext(ctx).Debug("Sample complete.",
		"reaction_coordinate", rc, "temperature", T, "errors", len(s.sess.Errors()))
	if err := ctx.Err(); err != nil {
		return rec, err
	}
	return rec, nil
}

// constrainedAverage time-averages the constraint fix, and whatever the
// hooks add, over one sampling run.
func (s *Sampler) constrainedAverage(ctx context.Context, steps int, rec *results.Record) {
	for _, h := range s.hooks {
		h.Before(ctx, s.sess, steps)
	}
	s.sess.Runf(ctx, "fix %s all ave/time 1 %d %d f_%s[*]\nrun %d", average, steps, steps, constraint, steps)

	if v, ok := s.sess.Extract(ctx, "f_"+average, 4); ok {
		aveF := -v[0] * s.normT
		rec.Set(results.FieldAveF, results.Float(aveF))
		rec.Set(results.FieldVarF, results.Float(v[1]*v[1]*s.normT*s.normT-aveF*aveF))
		rec.Set(results.FieldAvePsi, results.Float(v[2]))
		rec.Set(results.FieldDXTangent, results.Float(v[3]))
	}
	for _, h := range s.hooks {
		h.After(ctx, s.sess, rec)
	}
	s.sess.Run(ctx, "unfix "+average)
}

// deviation measures how far the time-averaged positions drifted from the
// hyperplane reference.
func (s *Sampler) deviation(ctx context.Context, rec *results.Record, keep bool) {
	defer s.sess.Run(ctx, "unfix "+meanAtoms)

	mean, ok := s.sess.Gather(ctx, "f_"+meanAtoms, engine.Double, 3)
	if !ok {
		return
	}
	for k, axis := range []string{"x", "y", "z"} {
		u, ok := s.sess.Gather(ctx, "d_u"+axis, engine.Double, 1)
		if !ok || 3*len(u) != len(mean) {
			return
		}
		for i, v := range u {
			mean[3*i+k] -= v
		}
	}
	s.cell.Scaled(s.scale).MinImage(mean)

	worst := 0.0
	for i := 0; i+2 < len(mean); i += 3 {
		worst = max(worst, math.Sqrt(mean[i]*mean[i]+mean[i+1]*mean[i+1]+mean[i+2]*mean[i+2]))
	}
	rec.Set(results.FieldMaxDev, results.Float(worst))
	if keep && s.recordDev {
		rec.Set(results.FieldDev, results.Vector(mean))
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
