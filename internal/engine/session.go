package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/pafigrid/internal/ctxlog"
	"github.com/specialistvlad/pafigrid/internal/template"
)

// Session drives an Engine on behalf of the sampler. Failures are logged
// with the stage, command and group-local rank, recorded as StageErrors and
// never returned as fatal: callers check the ok results and leave the
// affected outputs missing.
type Session struct {
	eng       Engine
	localRank int
	stage     string
	errs      []error
}

// NewSession wraps eng for the rank with the given group-local rank.
func NewSession(eng Engine, localRank int) *Session {
	return &Session{eng: eng, localRank: localRank, stage: "init"}
}

// Engine returns the wrapped engine.
func (s *Session) Engine() Engine { return s.eng }

// Stage names the stage subsequent failures are attributed to.
func (s *Session) Stage(name string) { s.stage = name }

// Errors returns the failures recorded since the last Reset.
func (s *Session) Errors() []error { return s.errs }

// Reset clears the recorded failures.
func (s *Session) Reset() { s.errs = nil }

// Fail records a failure of the current stage that did not come from the
// engine itself, e.g. a degenerate hyperplane.
func (s *Session) Fail(ctx context.Context, cmd string, err error) {
	serr := &StageError{Stage: s.stage, Command: cmd, LocalRank: s.localRank, Err: err}
	s.errs = append(s.errs, serr)
	if s.localRank == 0 {
		ctxlog.FromContext(ctx).Warn("Engine call failed.",
			"stage", s.stage, "command", cmd, "local_rank", s.localRank, "error", err)
	}
}

// Run executes a block of commands line by line. A failing line does not
// stop the following ones. It reports whether every line succeeded.
func (s *Session) Run(ctx context.Context, block string) bool {
	ok := true
	logger := ctxlog.FromContext(ctx)
	for _, cmd := range template.Lines(block, nil) {
		logger.Debug("Engine command.", "stage", s.stage, "command", cmd)
		if err := s.eng.Command(ctx, cmd); err != nil {
			s.Fail(ctx, cmd, err)
			ok = false
		}
	}
	return ok
}

// Runf formats a block of commands and runs it.
func (s *Session) Runf(ctx context.Context, format string, args ...any) bool {
	return s.Run(ctx, fmt.Sprintf(format, args...))
}

// Script renders a script template with vals and runs it. An empty script
// is a no-op.
func (s *Session) Script(ctx context.Context, name, text string, vals template.Values) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	ctxlog.FromContext(ctx).Debug("Running script.", "script", name)
	return s.Run(ctx, template.Render(text, vals))
}

// Gather reads a per-atom field.
func (s *Session) Gather(ctx context.Context, name string, typ DataType, count int) ([]float64, bool) {
	v, err := s.eng.Gather(ctx, name, typ, count)
	if err != nil {
		s.Fail(ctx, "gather "+name, err)
		return nil, false
	}
	return v, true
}

// Scatter writes a per-atom field.
func (s *Session) Scatter(ctx context.Context, name string, typ DataType, count int, data []float64) bool {
	if err := s.eng.Scatter(ctx, name, typ, count, data); err != nil {
		s.Fail(ctx, "scatter "+name, err)
		return false
	}
	return true
}

// Extract reads a global observable and checks its size.
func (s *Session) Extract(ctx context.Context, name string, size int) ([]float64, bool) {
	v, err := s.eng.Extract(ctx, name, size)
	if err == nil && len(v) != size {
		err = fmt.Errorf("got %d values, want %d", len(v), size)
	}
	if err != nil {
		s.Fail(ctx, "extract "+name, err)
		return nil, false
	}
	return v, true
}

// Scalar reads a scalar observable.
func (s *Session) Scalar(ctx context.Context, name string) (float64, bool) {
	v, ok := s.Extract(ctx, name, 1)
	if !ok {
		return 0, false
	}
	return v[0], true
}

// Initialize runs the input script and checks the engine capabilities. Any
// failure is an ErrInit.
func Initialize(ctx context.Context, s *Session, input string, vals template.Values) error {
	s.Stage("init")
	info, err := s.eng.Info(ctx)
	if err != nil {
		return fmt.Errorf("%w: querying engine: %w", ErrInit, err)
	}
	if err := CheckCapabilities(info); err != nil {
		return err
	}
	if !s.Script(ctx, "Input", input, vals) {
		return fmt.Errorf("%w: input script failed: %w", ErrInit, errors.Join(s.Errors()...))
	}
	return nil
}
