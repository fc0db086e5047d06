// Package driver runs a sweep: it launches the ranks, partitions them into
// worker groups, samples every grid point on every group and collates each
// round onto the coordinating rank.
package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/pafigrid/internal/config"
	"github.com/specialistvlad/pafigrid/internal/ctxlog"
	"github.com/specialistvlad/pafigrid/internal/engine"
	"github.com/specialistvlad/pafigrid/internal/results"
	"github.com/specialistvlad/pafigrid/internal/sampler"
	"github.com/specialistvlad/pafigrid/internal/topology"
)

// Options configures a sweep.
type Options struct {
	Config  *config.Config
	Ranks   int
	Factory engine.Factory
	// Sinks receive the dataset after every round. They are written on the
	// coordinator only and are not closed by the driver.
	Sinks []results.Sink
	// OnRound, when set, is called on the coordinator with every collated
	// round after the sinks were written.
	OnRound func(ctx context.Context, round []results.Record)
	Hooks   []sampler.AverageHook
}

// Run executes the sweep and returns the ensemble dataset.
func Run(ctx context.Context, o Options) (*results.Dataset, error) {
	if err := o.Config.Validate(); err != nil {
		return nil, err
	}
	points := Grid(o.Config.Axes())
	ctxlog.FromContext(ctx).Info("Starting sweep.", "ranks", o.Ranks, "points", len(points))

	var dataset *results.Dataset
	err := topology.Launch(ctx, o.Ranks, func(ctx context.Context, world *topology.Comm) error {
		ds, err := runRank(ctx, o, world, points)
		if ds != nil {
			dataset = ds
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return dataset, nil
}

// worker is the state of one rank.
type worker struct {
	opts     Options
	cfg      *config.Config
	world    *topology.Comm
	topo     *topology.Topology
	sampler  *sampler.Sampler
	gatherer *results.Gatherer
}

func runRank(ctx context.Context, o Options, world *topology.Comm, points []Point) (*results.Dataset, error) {
	w := &worker{opts: o, cfg: o.Config.Clone(), world: world}

	var err error
	if w.topo, err = topology.New(ctx, world, w.cfg.GroupSize()); err != nil {
		return nil, err
	}
	ctx = ctxlog.With(ctx, "rank", world.Rank(), "group", w.topo.GroupIndex, "local_rank", w.topo.LocalRank)
	logger := ctxlog.FromContext(ctx)

	initErr := w.open(ctx)
	if initErr != nil {
		logger.Error("Engine initialization failed.", "error", initErr)
	}
	failed, err := w.topo.CheckInit(ctx, initErr != nil)
	if err != nil || failed {
		if w.sampler != nil {
			w.sampler.Close()
		}
		if err != nil {
			return nil, err
		}
		// The ranks that failed report why; the others stop quietly.
		return nil, initErr
	}
	defer w.sampler.Close()

	w.gatherer = results.NewGatherer(w.topo)
	for _, p := range points {
		if err := w.sweepPoint(ctx, p); err != nil {
			return nil, err
		}
	}
	if w.topo.IsCoordinator() {
		ds := w.gatherer.Dataset()
		logger.Info("Sweep complete.", "rounds", ds.Rounds(), "samples", ds.Len())
	}
	return w.gatherer.Dataset(), nil
}

// open starts the engine of the rank and initializes its sampler.
func (w *worker) open(ctx context.Context) error {
	eng, err := w.opts.Factory(ctx, engine.Placement{
		WorldRank: w.world.Rank(),
		Group:     w.topo.GroupIndex,
		LocalRank: w.topo.LocalRank,
		GroupSize: w.topo.Group.Size(),
	})
	if err != nil {
		if !errors.Is(err, engine.ErrInit) {
			err = fmt.Errorf("%w: %w", engine.ErrInit, err)
		}
		return err
	}
	seed := w.cfg.Get(ctx, config.GlobalSeed, config.Int(137)).Int()
	w.sampler, err = sampler.New(ctx, sampler.Options{
		Config:    w.cfg,
		Engine:    eng,
		Seeder:    topology.NewSeeder(seed, w.topo.GroupIndex, topology.SeedPolicyFromConfig(w.cfg)),
		WorkerID:  w.topo.GroupIndex,
		Rank:      w.world.Rank(),
		LocalRank: w.topo.LocalRank,
		Hooks:     w.opts.Hooks,
	})
	if err != nil {
		eng.Close()
		return err
	}
	return nil
}

// sweepPoint samples one grid point for nRepeats rounds, then for extra
// rounds while too few valid samples were collected. The coordinator
// decides on extra rounds and broadcasts the decision.
func (w *worker) sweepPoint(ctx context.Context, p Point) error {
	logger := ctxlog.FromContext(ctx)
	repeats := max(w.cfg.Get(ctx, config.NRepeats, config.Int(1)).Int(), 1)
	extra := max(w.cfg.Get(ctx, config.MaxExtraRepeats, config.Int(0)).Int(), 0)
	thresh := w.cfg.Get(ctx, config.ReSampleThresh, config.Float(0.5)).Float()
	need := int(thresh * float64(repeats*w.topo.Groups))

	req := p.Request()
	valid := 0
	for round := 1; ; round++ {
		n, err := w.round(ctx, req)
		if err != nil {
			return fmt.Errorf("sampling %s: %w", p, err)
		}
		valid += n
		if round < repeats {
			continue
		}
		more := w.topo.IsCoordinator() && valid < need && round < repeats+extra
		if more, err = topology.Bcast(ctx, w.world, more, 0); err != nil {
			return err
		}
		if !more {
			return nil
		}
		if w.topo.IsCoordinator() {
			logger.Info("Too few valid samples, resampling.", "point", p.String(), "valid", valid, "needed", need)
		}
	}
}

// round samples the request once on every group and collates the records.
// It returns the number of valid records on the coordinator and 0
// elsewhere.
func (w *worker) round(ctx context.Context, req sampler.Request) (int, error) {
	rec, err := w.sampler.Sample(ctx, req.Clone())
	if err != nil {
		return 0, err
	}
	if w.topo.IsRoot() {
		if err := w.gatherer.Gather(rec); err != nil {
			return 0, err
		}
	}
	if err := w.world.Barrier(ctx); err != nil {
		return 0, err
	}
	merged, err := w.gatherer.Collate(ctx)
	if err != nil {
		return 0, err
	}
	if !w.topo.IsCoordinator() {
		return 0, nil
	}

	valid := 0
	for _, r := range merged {
		if results.IsValid(r) {
			valid++
		}
	}
	ds := w.gatherer.Dataset()
	for _, s := range w.opts.Sinks {
		if err := s.Write(ctx, ds); err != nil {
			return 0, fmt.Errorf("writing results: %w", err)
		}
	}
	ctxlog.FromContext(ctx).Info("Round complete.", "round", ds.Rounds(), "records", len(merged), "valid", valid)
	if w.opts.OnRound != nil {
		w.opts.OnRound(ctx, merged)
	}
	return valid, nil
}
