// Package remote bridges engine.Engine to an engine server over socket.io.
//
// Every call is emitted as a RequestEvent carrying a fresh request id and
// the placement of the calling rank. The server answers each request with
// a ResponseEvent carrying the same id.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/specialistvlad/pafigrid/internal/ctxlog"
	"github.com/specialistvlad/pafigrid/internal/engine"
	"github.com/specialistvlad/pafigrid/internal/socketio"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Event names of the bridge protocol.
const (
	RequestEvent  = "engine:request"
	ResponseEvent = "engine:response"
)

// Operations carried in Request.Op.
const (
	OpCommand = "command"
	OpGather  = "gather"
	OpScatter = "scatter"
	OpExtract = "extract"
	OpInfo    = "info"
	OpClose   = "close"
)

// ErrDisconnected fails calls pending when the connection drops.
var ErrDisconnected = errors.New("engine server disconnected")

// Request is the payload of a RequestEvent.
type Request struct {
	ID        string           `json:"id"`
	Op        string           `json:"op"`
	Placement engine.Placement `json:"placement"`
	Command   string           `json:"command,omitempty"`
	Name      string           `json:"name,omitempty"`
	Type      engine.DataType  `json:"type,omitempty"`
	Count     int              `json:"count,omitempty"`
	Size      int              `json:"size,omitempty"`
	Data      []float64        `json:"data,omitempty"`
}

// Response is the payload of a ResponseEvent.
type Response struct {
	ID     string       `json:"id"`
	Values []float64    `json:"values,omitempty"`
	Info   *engine.Info `json:"info,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Engine implements engine.Engine over a socket.io connection.
type Engine struct {
	io        *socket.Socket
	placement engine.Placement

	mu      sync.Mutex
	pending map[string]chan Response
}

// Factory returns an engine.Factory dialing one connection per rank.
func Factory(o socketio.Options) engine.Factory {
	return func(ctx context.Context, p engine.Placement) (engine.Engine, error) {
		return Dial(ctx, o, p)
	}
}

// Dial connects to the engine server on behalf of the rank at p.
func Dial(ctx context.Context, o socketio.Options, p engine.Placement) (*Engine, error) {
	io, err := socketio.Connect(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrInit, err)
	}
	e := newEngine(p)
	e.io = io
	logger := ctxlog.FromContext(ctx)
	io.On(types.EventName(ResponseEvent), func(args ...any) {
		if len(args) == 0 {
			return
		}
		var resp Response
		if err := socketio.Decode(args[0], &resp); err != nil {
			logger.Warn("Dropping malformed engine response.", "error", err)
			return
		}
		if !e.deliver(resp) {
			logger.Warn("Dropping engine response for unknown request.", "id", resp.ID)
		}
	})
	io.On(types.EventName("disconnect"), func(...any) {
		e.failPending(ErrDisconnected)
	})
	return e, nil
}

func newEngine(p engine.Placement) *Engine {
	return &Engine{placement: p, pending: make(map[string]chan Response)}
}

// deliver hands resp to the call waiting for it.
func (e *Engine) deliver(resp Response) bool {
	e.mu.Lock()
	ch, ok := e.pending[resp.ID]
	delete(e.pending, resp.ID)
	e.mu.Unlock()
	if ok {
		ch <- resp
	}
	return ok
}

func (e *Engine) failPending(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.pending {
		ch <- Response{ID: id, Error: err.Error()}
		delete(e.pending, id)
	}
}

// register prepares req for sending and returns the channel its response
// arrives on.
func (e *Engine) register(req *Request) chan Response {
	req.ID = uuid.NewString()
	req.Placement = e.placement
	ch := make(chan Response, 1)
	e.mu.Lock()
	e.pending[req.ID] = ch
	e.mu.Unlock()
	return ch
}

func (e *Engine) call(ctx context.Context, req Request) (Response, error) {
	ch := e.register(&req)
	var payload map[string]any
	if err := socketio.Decode(req, &payload); err != nil {
		return Response{}, err
	}
	if err := e.io.Emit(RequestEvent, payload); err != nil {
		e.forget(req.ID)
		return Response{}, fmt.Errorf("emitting %s: %w", req.Op, err)
	}
	return e.wait(ctx, req, ch)
}

func (e *Engine) wait(ctx context.Context, req Request, ch chan Response) (Response, error) {
	select {
	case resp := <-ch:
		if resp.Error != "" {
			return resp, fmt.Errorf("%s %s: %s", req.Op, req.Command+req.Name, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		e.forget(req.ID)
		return Response{}, ctx.Err()
	}
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

// Command implements engine.Engine.
func (e *Engine) Command(ctx context.Context, cmd string) error {
	_, err := e.call(ctx, Request{Op: OpCommand, Command: cmd})
	return err
}

// Gather implements engine.Engine.
func (e *Engine) Gather(ctx context.Context, name string, typ engine.DataType, count int) ([]float64, error) {
	resp, err := e.call(ctx, Request{Op: OpGather, Name: name, Type: typ, Count: count})
	return resp.Values, err
}

// Scatter implements engine.Engine.
func (e *Engine) Scatter(ctx context.Context, name string, typ engine.DataType, count int, data []float64) error {
	_, err := e.call(ctx, Request{Op: OpScatter, Name: name, Type: typ, Count: count, Data: data})
	return err
}

// Extract implements engine.Engine.
func (e *Engine) Extract(ctx context.Context, name string, size int) ([]float64, error) {
	resp, err := e.call(ctx, Request{Op: OpExtract, Name: name, Size: size})
	return resp.Values, err
}

// Info implements engine.Engine.
func (e *Engine) Info(ctx context.Context) (engine.Info, error) {
	resp, err := e.call(ctx, Request{Op: OpInfo})
	if err != nil {
		return engine.Info{}, err
	}
	if resp.Info == nil {
		return engine.Info{}, errors.New("info response carries no info")
	}
	return *resp.Info, nil
}

// Close tells the server the rank is done and disconnects.
func (e *Engine) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), socketio.ConnectTimeout)
	defer cancel()
	_, err := e.call(ctx, Request{Op: OpClose})
	e.io.Disconnect()
	return err
}
