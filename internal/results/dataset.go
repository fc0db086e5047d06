package results

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrSchemaMismatch is returned when records of one dataset disagree on
// their field names.
var ErrSchemaMismatch = errors.New("record schema mismatch")

// Dataset is the ordered ensemble of records of a run. It only grows.
type Dataset struct {
	mu     sync.RWMutex
	schema []string
	rows   []Record
	rounds int
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset { return &Dataset{} }

// Merge checks that the records of one round share a schema and orders
// them by WorkerID.
func Merge(round []Record) ([]Record, error) {
	if len(round) == 0 {
		return nil, nil
	}
	schema := round[0].Names()
	for _, r := range round[1:] {
		if !slices.Equal(schema, r.Names()) {
			return nil, fmt.Errorf("%w: %v vs %v", ErrSchemaMismatch, schema, r.Names())
		}
	}
	out := slices.Clone(round)
	slices.SortStableFunc(out, func(a, b Record) int { return cmp.Compare(a.workerID(), b.workerID()) })
	return out, nil
}

// Append adds one merged round. Its schema must match earlier rounds.
func (d *Dataset) Append(round []Record) error {
	merged, err := Merge(round)
	if err != nil {
		return err
	}
	if len(merged) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.schema == nil {
		d.schema = merged[0].Names()
	} else if names := merged[0].Names(); !slices.Equal(d.schema, names) {
		return fmt.Errorf("%w: round %d has %v, dataset has %v", ErrSchemaMismatch, d.rounds, names, d.schema)
	}
	for _, r := range merged {
		d.rows = append(d.rows, r.Clone())
	}
	d.rounds++
	return nil
}

// Schema returns the field names shared by every record.
func (d *Dataset) Schema() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.schema)
}

// Rows returns copies of all records.
func (d *Dataset) Rows() []Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Record, len(d.rows))
	for i, r := range d.rows {
		out[i] = r.Clone()
	}
	return out
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rows)
}

// Rounds returns the number of appended rounds.
func (d *Dataset) Rounds() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rounds
}
