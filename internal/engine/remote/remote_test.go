package remote

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/specialistvlad/pafigrid/internal/engine"
	"github.com/specialistvlad/pafigrid/internal/socketio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelation(t *testing.T) {
	e := newEngine(engine.Placement{WorldRank: 3, Group: 1, LocalRank: 1, GroupSize: 2})

	first := Request{Op: OpExtract, Name: "box", Size: 9}
	second := Request{Op: OpCommand, Command: "run 0"}
	ch1 := e.register(&first)
	ch2 := e.register(&second)

	_, err := uuid.Parse(first.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 3, first.Placement.WorldRank)

	// Responses may arrive out of order.
	assert.True(t, e.deliver(Response{ID: second.ID, Error: "unknown command"}))
	assert.True(t, e.deliver(Response{ID: first.ID, Values: []float64{1, 2, 3}}))
	assert.False(t, e.deliver(Response{ID: first.ID}), "a response is delivered once")

	resp, err := e.wait(context.Background(), first, ch1)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, resp.Values)

	_, err = e.wait(context.Background(), second, ch2)
	assert.ErrorContains(t, err, "unknown command")
}

func TestWait_CancelledAndDisconnected(t *testing.T) {
	e := newEngine(engine.Placement{})

	req := Request{Op: OpInfo}
	ch := e.register(&req)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.wait(ctx, req, ch)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, e.pending)

	req = Request{Op: OpGather, Name: "x"}
	ch = e.register(&req)
	e.failPending(ErrDisconnected)
	_, err = e.wait(context.Background(), req, ch)
	assert.ErrorContains(t, err, ErrDisconnected.Error())
}

func TestPayloadDecoding(t *testing.T) {
	// Events arrive as generic JSON values.
	payload := map[string]any{
		"id":     "abc",
		"values": []any{1.5, 2.0},
		"info":   map[string]any{"version": 20230802.0, "packages": []any{"EXTRA-FIX"}},
	}
	var resp Response
	require.NoError(t, socketio.Decode(payload, &resp))
	assert.Equal(t, "abc", resp.ID)
	assert.Equal(t, []float64{1.5, 2}, resp.Values)
	require.NotNil(t, resp.Info)
	assert.NoError(t, engine.CheckCapabilities(*resp.Info))

	var out map[string]any
	require.NoError(t, socketio.Decode(Request{ID: "x", Op: OpScatter, Name: "d_ux", Type: engine.Double, Count: 1, Data: []float64{0.5}}, &out))
	assert.Equal(t, "scatter", out["op"])
	assert.Equal(t, []any{0.5}, out["data"])
}
