package results

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/pafigrid/internal/topology"
)

// ErrAlreadyGathered is returned when a group root gathers a second record
// before the round was collated.
var ErrAlreadyGathered = errors.New("record already gathered for this round")

// Gatherer buffers the record of the current round on each group root and
// reduces the round onto the coordinator.
type Gatherer struct {
	ensemble *topology.Comm
	dataset  *Dataset
	pending  *Record
}

// NewGatherer returns the gatherer of one rank. Ranks outside the ensemble
// group hold an inert gatherer.
func NewGatherer(t *topology.Topology) *Gatherer {
	g := &Gatherer{ensemble: t.Ensemble}
	if t.Ensemble != nil && t.Ensemble.Rank() == 0 {
		g.dataset = NewDataset()
	}
	return g
}

// Dataset returns the ensemble dataset on the coordinator and nil elsewhere.
func (g *Gatherer) Dataset() *Dataset { return g.dataset }

// Gather buffers the record of this round.
func (g *Gatherer) Gather(rec Record) error {
	if g.ensemble == nil {
		return nil
	}
	if g.pending != nil {
		return ErrAlreadyGathered
	}
	c := rec.Clone()
	g.pending = &c
	return nil
}

// Collate is collective over the ensemble group. It moves every buffered
// record to the coordinator, which appends the merged round to its dataset
// and returns it. Other ranks get nil.
func (g *Gatherer) Collate(ctx context.Context) ([]Record, error) {
	if g.ensemble == nil {
		return nil, nil
	}
	var mine Record
	if g.pending != nil {
		mine = *g.pending
	}
	g.pending = nil

	round, err := topology.Gather(ctx, g.ensemble, mine, 0)
	if err != nil {
		return nil, fmt.Errorf("collating round: %w", err)
	}
	if g.dataset == nil {
		return nil, nil
	}
	merged, err := Merge(round)
	if err != nil {
		return nil, err
	}
	if err := g.dataset.Append(merged); err != nil {
		return nil, err
	}
	return merged, nil
}
