// Package monitor publishes the records of every completed round to a
// socket.io endpoint, so a dashboard can follow a run live.
package monitor

import (
	"context"

	"github.com/specialistvlad/pafigrid/internal/ctxlog"
	"github.com/specialistvlad/pafigrid/internal/results"
	"github.com/specialistvlad/pafigrid/internal/socketio"
)

// Event names.
const (
	RoundEvent = "pafi:round"
	DoneEvent  = "pafi:done"
)

// Emitter sends one event. *socket.Socket implements it.
type Emitter interface {
	Emit(ev string, args ...any) error
}

// Round is the payload of a RoundEvent. Rows hold one value per field:
// null when missing, otherwise a number, boolean, string or list of
// numbers.
type Round struct {
	Run    string   `json:"run"`
	Round  int      `json:"round"`
	Fields []string `json:"fields"`
	Rows   [][]any  `json:"rows"`
	Valid  int      `json:"valid"`
}

// Done is the payload of a DoneEvent.
type Done struct {
	Run     string `json:"run"`
	Rounds  int    `json:"rounds"`
	Samples int    `json:"samples"`
}

// Publisher is a results.Sink emitting the rows added since its last Write.
// Emit failures are logged and never fail the run.
type Publisher struct {
	emitter    Emitter
	disconnect func()
	runID      string
	published  int
	rounds     int
	ctx        context.Context
}

// New returns a publisher emitting through e.
func New(e Emitter, runID string) *Publisher {
	return &Publisher{emitter: e, runID: runID, ctx: context.Background()}
}

// Dial connects to the monitor endpoint.
func Dial(ctx context.Context, o socketio.Options, runID string) (*Publisher, error) {
	io, err := socketio.Connect(ctx, o)
	if err != nil {
		return nil, err
	}
	p := New(io, runID)
	p.disconnect = func() { io.Disconnect() }
	return p, nil
}

// Write implements results.Sink.
func (p *Publisher) Write(ctx context.Context, ds *results.Dataset) error {
	p.ctx = ctx
	rows := ds.Rows()
	if len(rows) <= p.published {
		return nil
	}
	fields := ds.Schema()
	ev := Round{Run: p.runID, Round: ds.Rounds(), Fields: fields}
	for _, r := range rows[p.published:] {
		row := make([]any, len(fields))
		for i, name := range fields {
			v, _ := r.Get(name)
			row[i] = jsonValue(v)
		}
		if results.IsValid(r) {
			ev.Valid++
		}
		ev.Rows = append(ev.Rows, row)
	}
	p.published, p.rounds = len(rows), ds.Rounds()
	p.emit(ctx, RoundEvent, ev)
	return nil
}

// Close implements results.Sink. It announces the end of the run and
// disconnects.
func (p *Publisher) Close() error {
	p.emit(p.ctx, DoneEvent, Done{Run: p.runID, Rounds: p.rounds, Samples: p.published})
	if p.disconnect != nil {
		p.disconnect()
	}
	return nil
}

func (p *Publisher) emit(ctx context.Context, ev string, payload any) {
	logger := ctxlog.FromContext(ctx)
	var generic map[string]any
	if err := socketio.Decode(payload, &generic); err != nil {
		logger.Warn("Monitor payload not encodable.", "event", ev, "error", err)
		return
	}
	if err := p.emitter.Emit(ev, generic); err != nil {
		logger.Warn("Monitor emit failed.", "event", ev, "error", err)
	}
}

func jsonValue(v results.Value) any {
	switch v.Kind() {
	case results.KindMissing:
		return nil
	case results.KindFloat, results.KindInt:
		f, _ := v.Number()
		return f
	case results.KindBool:
		return v.Truth()
	case results.KindVector:
		return v.Vec()
	}
	return v.Text()
}
