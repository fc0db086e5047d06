package topology

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/specialistvlad/pafigrid/internal/ctxlog"
)

// ErrTopology is returned when the process pool cannot be partitioned.
var ErrTopology = errors.New("topology error")

// Topology is one rank's view of the worker groups.
type Topology struct {
	World *Comm
	// Group spans the ranks driving the same engine replica.
	Group *Comm
	// Ensemble spans the roots of all groups. It is nil on other ranks.
	Ensemble *Comm

	GroupIndex int
	Groups     int
	LocalRank  int
}

// New partitions world into contiguous groups of groupSize ranks. The check
// on the group size runs before any collective, so every rank fails the same
// way without waiting on the others.
func New(ctx context.Context, world *Comm, groupSize int) (*Topology, error) {
	size := world.Size()
	if groupSize < 1 {
		return nil, fmt.Errorf("%w: CoresPerWorker must be at least 1, got %d", ErrTopology, groupSize)
	}
	if size%groupSize != 0 {
		return nil, fmt.Errorf("%w: %d ranks cannot be split into groups of %d (CoresPerWorker must divide the rank count)",
			ErrTopology, size, groupSize)
	}

	t := &Topology{
		World:      world,
		GroupIndex: world.Rank() / groupSize,
		Groups:     size / groupSize,
	}
	var err error
	if t.Group, err = world.Split(ctx, t.GroupIndex, world.Rank()); err != nil {
		return nil, fmt.Errorf("creating worker group: %w", err)
	}
	t.LocalRank = t.Group.Rank()

	roots := make([]int, t.Groups)
	for i := range roots {
		roots[i] = i * groupSize
	}
	if t.Ensemble, err = world.Include(ctx, roots); err != nil {
		return nil, fmt.Errorf("creating ensemble group: %w", err)
	}

	if t.IsRoot() {
		ctxlog.FromContext(ctx).Debug("Worker group ready.",
			"group", t.GroupIndex, "members", t.Group.Ranks(), "groups", t.Groups)
	}
	return t, nil
}

// IsRoot reports whether the rank is the root of its group.
func (t *Topology) IsRoot() bool { return t.LocalRank == 0 }

// IsCoordinator reports whether the rank is the root of the ensemble group,
// the only rank that owns the dataset and writes output.
func (t *Topology) IsCoordinator() bool { return t.World.Rank() == 0 }

// CheckInit reduces the per-rank initialization failure flags of the whole
// pool and returns true on every rank if any flag is set. Flags are reduced
// on the group roots, exchanged between roots and broadcast back to each
// group.
func (t *Topology) CheckInit(ctx context.Context, failed bool) (bool, error) {
	flags, err := Gather(ctx, t.Group, failed, 0)
	if err != nil {
		return false, err
	}
	anyFailed := slices.Contains(flags, true)
	if t.Ensemble != nil {
		roots, err := AllGather(ctx, t.Ensemble, anyFailed)
		if err != nil {
			return false, err
		}
		anyFailed = slices.Contains(roots, true)
	}
	return Bcast(ctx, t.Group, anyFailed, 0)
}
