package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/specialistvlad/pafigrid/internal/results"
	"github.com/specialistvlad/pafigrid/internal/sqlitestore"
)

type analyzeOptions struct {
	db         string
	run        string
	list       bool
	all        bool
	coordinate string
	target     string
}

func newAnalyzeCmd(out io.Writer) *cobra.Command {
	var o analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze [CSV...]",
		Short: "Average datasets over the ensemble and integrate the free energy profile",
		Long: `analyze reads one or more dataset CSV files, or one run of a results
database, keeps the valid samples and prints the ensemble mean and standard
deviation per parameter tuple followed by the cumulative integral of the
mean force along the reaction coordinate.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return analyze(cmd, out, o, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.db, "db", "", "Results database to read instead of CSV files.")
	f.StringVar(&o.run, "run", "", "Run id in the database. Defaults to the latest run.")
	f.BoolVar(&o.list, "list", false, "List the runs stored in the database.")
	f.BoolVar(&o.all, "all", false, "Keep invalid samples.")
	f.StringVar(&o.coordinate, "coordinate", "ReactionCoordinate", "Field to integrate along.")
	f.StringVar(&o.target, "field", results.FieldAveF, "Field to integrate.")
	return cmd
}

func analyze(cmd *cobra.Command, out io.Writer, o analyzeOptions, args []string) error {
	ctx := cmd.Context()
	if o.db == "" && (o.list || o.run != "") {
		return &ExitError{Code: ExitUsage, Message: "--list and --run need --db"}
	}
	if o.db != "" && len(args) > 0 {
		return &ExitError{Code: ExitUsage, Message: "give either CSV files or --db, not both"}
	}
	if o.db == "" && len(args) == 0 {
		return &ExitError{Code: ExitUsage, Message: "nothing to analyze: give CSV files or --db"}
	}

	var ds *results.Dataset
	if o.db != "" {
		runs, err := sqlitestore.Runs(ctx, o.db)
		if err != nil {
			return &ExitError{Code: 1, Message: err.Error()}
		}
		if o.list {
			for _, r := range runs {
				fmt.Fprintf(out, "%s\t%s\t%d\t%s\n", r.ID, r.StartedAt, r.Samples, r.Source)
			}
			return nil
		}
		id := o.run
		if id == "" {
			if len(runs) == 0 {
				return &ExitError{Code: 1, Message: "the database holds no runs"}
			}
			id = runs[len(runs)-1].ID
		}
		if ds, err = sqlitestore.Load(ctx, o.db, id); err != nil {
			return &ExitError{Code: 1, Message: err.Error()}
		}
	} else {
		var err error
		if ds, err = results.ReadCSV(args...); err != nil {
			return &ExitError{Code: 1, Message: err.Error()}
		}
	}

	keep := results.IsValid
	if o.all {
		keep = func(results.Record) bool { return true }
	}
	summary := results.Summarize(ds, keep)
	if len(summary.Rows) == 0 {
		return &ExitError{Code: 1, Message: fmt.Sprintf("no samples to analyze among %d records", ds.Len())}
	}
	fmt.Fprintln(out, results.SummaryTable(summary, o.target))

	for _, p := range results.Profiles(summary, o.coordinate, o.target) {
		var params []string
		for _, f := range p.Params {
			params = append(params, fmt.Sprintf("%s=%s", f.Name, f.Value.Text()))
		}
		fmt.Fprintf(out, "\n%s\n", strings.Join(params, " "))
		fmt.Fprintln(out, results.ProfileTable(p, o.coordinate, o.target))
		fmt.Fprintf(out, "barrier: %.5f\n", p.Barrier)
	}
	return nil
}
