package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/specialistvlad/pafigrid/internal/results"
)

// WriteRecord describes one call to RecordingSink.Write.
type WriteRecord struct {
	At     time.Time
	Rows   int
	Rounds int
	// Records is a copy of the rows at the time of the write.
	Records []results.Record
}

// RecordingSink is a results.Sink that remembers every write. Sends on
// Written, when set, report the round count of each write.
type RecordingSink struct {
	Written chan<- int

	mu     sync.Mutex
	writes []WriteRecord
	closed bool
}

// Write implements results.Sink.
func (s *RecordingSink) Write(_ context.Context, ds *results.Dataset) error {
	w := WriteRecord{At: time.Now(), Rows: ds.Len(), Rounds: ds.Rounds(), Records: ds.Rows()}
	s.mu.Lock()
	s.writes = append(s.writes, w)
	s.mu.Unlock()
	if s.Written != nil {
		s.Written <- w.Rounds
	}
	return nil
}

// Close implements results.Sink.
func (s *RecordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Writes returns the recorded writes in order.
func (s *RecordingSink) Writes() []WriteRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WriteRecord, len(s.writes))
	copy(out, s.writes)
	return out
}

// Closed reports whether Close was called.
func (s *RecordingSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
