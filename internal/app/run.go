package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/specialistvlad/pafigrid/internal/config"
	"github.com/specialistvlad/pafigrid/internal/ctxlog"
	"github.com/specialistvlad/pafigrid/internal/driver"
	"github.com/specialistvlad/pafigrid/internal/hcl"
	"github.com/specialistvlad/pafigrid/internal/monitor"
	"github.com/specialistvlad/pafigrid/internal/results"
	"github.com/specialistvlad/pafigrid/internal/socketio"
	"github.com/specialistvlad/pafigrid/internal/sqlitestore"
)

// Run loads the run configuration, claims the output location and sweeps
// the grid.
func (a *App) Run(ctx context.Context) (err error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")

	a.healthCheckServer()
	defer a.closeHealthCheckServer()

	cfg, err := loaderFor(a.config.ConfigPath).Load(ctx, a.config.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	out, err := config.ResolveOutput(ctx, cfg, hcl.NewEncoder())
	if err != nil {
		return fmt.Errorf("failed to prepare output: %w", err)
	}

	runID := uuid.NewString()
	ctx = ctxlog.With(ctx, "run_id", runID)
	sinks, err := a.openSinks(ctx, cfg, out, runID)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sinks {
			err = errors.Join(err, s.Close())
		}
	}()

	a.logger.Info("🚀 Starting sweep...", "ranks", a.config.Ranks, "data", out.Data)
	ds, err := driver.Run(ctx, driver.Options{
		Config:  cfg,
		Ranks:   a.config.Ranks,
		Factory: a.factory,
		Sinks:   sinks,
		OnRound: a.onRound,
	})
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	a.logger.Info("🏁 Sweep finished.", "rounds", ds.Rounds(), "samples", ds.Len())

	summary := results.Summarize(ds, results.IsValid)
	if len(summary.Rows) > 0 {
		fmt.Fprintln(a.outW, results.SummaryTable(summary, results.FieldAveF))
	}
	return nil
}

// openSinks returns the CSV sink plus the database and monitor sinks the
// run configuration asks for. The monitor is optional: failing to reach it
// only warns.
func (a *App) openSinks(ctx context.Context, cfg *config.Config, out *config.Output, runID string) ([]results.Sink, error) {
	logger := ctxlog.FromContext(ctx)
	sinks := []results.Sink{results.NewCSVSink(out.Data)}

	if db := cfg.Get(ctx, config.DatabaseFile, config.String("")).String(); db != "" {
		store, err := sqlitestore.Open(ctx, db, runID, out.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to open results database: %w", err)
		}
		logger.Info("Storing samples in database.", "path", db)
		sinks = append(sinks, store)
	}

	if url := cfg.Get(ctx, config.MonitorURL, config.String("")).String(); url != "" {
		pub, err := monitor.Dial(ctx, socketio.Options{URL: url}, runID)
		if err != nil {
			logger.Warn("Monitor not reachable, continuing without it.", "url", url, "error", err)
		} else {
			sinks = append(sinks, pub)
		}
	}
	return sinks, nil
}

// onRound prints the table of a collated round.
func (a *App) onRound(_ context.Context, round []results.Record) {
	a.rounds.Add(1)
	fmt.Fprintln(a.outW, results.RoundTable(round))
}
