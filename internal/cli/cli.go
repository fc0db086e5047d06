package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/specialistvlad/pafigrid/internal/app"
	"github.com/specialistvlad/pafigrid/internal/config"
	"github.com/specialistvlad/pafigrid/internal/engine"
	"github.com/specialistvlad/pafigrid/internal/topology"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Exit codes.
const (
	ExitUsage         = 2
	ExitConfiguration = 3
	ExitTopology      = 4
	ExitEngine        = 5
)

// Execute parses args and runs the selected command. Failures come back as
// an *ExitError.
func Execute(ctx context.Context, args []string, out io.Writer) error {
	root := NewRootCmd(out)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return toExitError(err)
}

// toExitError maps a fatal error onto the exit code of its class.
func toExitError(err error) *ExitError {
	code := 1
	switch {
	case errors.Is(err, config.ErrConfiguration):
		code = ExitConfiguration
	case errors.Is(err, topology.ErrTopology):
		code = ExitTopology
	case errors.Is(err, engine.ErrInit):
		code = ExitEngine
	}
	return &ExitError{Code: code, Message: err.Error()}
}

// NewRootCmd builds the command tree.
func NewRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "pafigrid",
		Short: "Projected average force integration over an ensemble of workers",
		Long: `pafigrid samples constrained dynamics on hyperplanes along a reaction
pathway, over a grid of temperatures and reaction coordinates, and writes
the ensemble averages of every round to a CSV dataset.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	})
	root.AddCommand(newRunCmd(out), newAnalyzeCmd(out))
	return root
}

// usageArgs reports argument errors with the usage exit code.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &ExitError{Code: ExitUsage, Message: err.Error()}
		}
		return nil
	}
}

func newRunCmd(out io.Writer) *cobra.Command {
	var cfg app.Config
	cmd := &cobra.Command{
		Use:   "run CONFIG",
		Short: "Run a sweep described by an .hcl or .yaml file",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Run command started.", "config", args[0])
			cfg.ConfigPath = args[0]
			cfg.LogFormat = strings.ToLower(cfg.LogFormat)
			if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
				return &ExitError{Code: ExitUsage, Message: "invalid log-format: must be 'text' or 'json'"}
			}
			cfg.LogLevel = strings.ToLower(cfg.LogLevel)
			switch cfg.LogLevel {
			case "debug", "info", "warn", "error":
			default:
				return &ExitError{Code: ExitUsage, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
			}
			validated, err := app.NewConfig(cfg)
			if err != nil {
				return &ExitError{Code: ExitUsage, Message: err.Error()}
			}
			if err := app.NewApp(out, validated).Run(cmd.Context()); err != nil {
				return toExitError(fmt.Errorf("run failed: %w", err))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&cfg.Ranks, "ranks", "n", 1, "Number of ranks to launch.")
	f.StringVar(&cfg.EngineURL, "engine-url", "", "socket.io URL of the engine server. Empty runs the in-memory engine.")
	f.StringVar(&cfg.EngineNamespace, "engine-namespace", "/", "socket.io namespace of the engine server.")
	f.BoolVar(&cfg.InsecureSkipVerify, "insecure", false, "Skip TLS certificate verification for the engine server.")
	f.IntVar(&cfg.HealthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	f.StringVar(&cfg.LogFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	f.StringVar(&cfg.LogLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	return cmd
}
