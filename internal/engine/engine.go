package engine

import (
	"context"
	"errors"
	"fmt"
)

// DataType selects the element type of a per-atom field.
type DataType int

const (
	// Integer fields such as id or type.
	Integer DataType = 0
	// Double fields such as x, f or d_ux.
	Double DataType = 1
)

// Engine is one rank's handle on the external engine. Every rank of a
// worker group holds its own handle on the same engine replica and issues
// the same calls in the same order.
type Engine interface {
	// Command executes one engine command.
	Command(ctx context.Context, cmd string) error
	// Gather returns the named per-atom field with count components per
	// atom, ordered by atom id.
	Gather(ctx context.Context, name string, typ DataType, count int) ([]float64, error)
	// Scatter writes a per-atom field with the same addressing as Gather.
	Scatter(ctx context.Context, name string, typ DataType, count int, data []float64) error
	// Extract returns a global observable: a scalar when size is 1, a
	// vector of size values otherwise. Names use the f_ID and c_ID
	// conventions plus the reserved "box" observable.
	Extract(ctx context.Context, name string, size int) ([]float64, error)
	// Info reports the engine version and installed packages.
	Info(ctx context.Context) (Info, error)
	Close() error
}

// Info describes the capabilities of an engine.
type Info struct {
	// Version is the release date as yyyymmdd.
	Version  int      `json:"version"`
	Packages []string `json:"packages"`
}

// Placement tells an engine factory which rank it is opening for.
type Placement struct {
	WorldRank int
	Group     int
	LocalRank int
	GroupSize int
}

// Factory opens the engine handle of one rank.
type Factory func(ctx context.Context, p Placement) (Engine, error)

// ErrInit marks a failure to start the engine or a missing capability.
var ErrInit = errors.New("engine initialization error")

// StageError is a failed command or extraction during one sampling stage.
// It never aborts a request.
type StageError struct {
	Stage     string
	Command   string
	LocalRank int
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s, rank %d: %q: %v", e.Stage, e.LocalRank, e.Command, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Versions gating the constrained dynamics fix.
const (
	MinVersion      = 20201101
	ExtraFixVersion = 20210728
)

// CheckCapabilities verifies that the engine is recent enough and ships the
// package providing the constrained dynamics fix.
func CheckCapabilities(info Info) error {
	if info.Version < MinVersion {
		return fmt.Errorf("%w: engine version %d is older than %d", ErrInit, info.Version, MinVersion)
	}
	pkg := "USER-MISC"
	if info.Version >= ExtraFixVersion {
		pkg = "EXTRA-FIX"
	}
	for _, p := range info.Packages {
		if p == pkg {
			return nil
		}
	}
	return fmt.Errorf("%w: engine version %d lacks package %s", ErrInit, info.Version, pkg)
}
