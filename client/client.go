// Package client is the entry point for controllers talking to a
// dedicated server.
//
// A Client owns one transport at a time and exposes the three call shapes
// controllers use: Query, AddCall + MultiQuery, and GetCallbacks. Every
// Query goes through the configured middleware chain. Typed wrappers over
// specific server methods belong to higher layers, not here.
package client

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gbxremote/loadbalance"
	"gbxremote/logx"
	"gbxremote/message"
	"gbxremote/middleware"
	"gbxremote/protocol"
	"gbxremote/registry"
	"gbxremote/transport"
)

// Options configures a Client.
type Options struct {
	Transport   transport.Options
	Middlewares []middleware.Middleware // First is outermost
	Logger      *zerolog.Logger
}

type Client struct {
	opts Options
	log  zerolog.Logger

	mu   sync.Mutex // Guards t and addr; the transport serializes exchanges itself
	t    *transport.ClientTransport
	addr string

	handler middleware.HandlerFunc
}

// NewClient creates a disconnected client.
func NewClient(opts Options) *Client {
	log := logx.Log
	if opts.Logger != nil {
		log = *opts.Logger
	}
	c := &Client{
		opts: opts,
		log:  log.With().Str("component", "client").Logger(),
	}
	c.handler = middleware.Chain(opts.Middlewares...)(c.query)
	return c
}

// Connect opens a connection to host:port, replacing any previous one.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	return c.ConnectAddr(ctx, net.JoinHostPort(host, strconv.Itoa(port)))
}

// ConnectAddr opens a connection to addr ("host:port").
func (c *Client) ConnectAddr(ctx context.Context, addr string) error {
	c.mu.Lock()
	opts := c.opts.Transport
	c.mu.Unlock()

	t, err := transport.Dial(ctx, addr, opts)
	if err != nil {
		return err
	}

	c.mu.Lock()
	old := c.t
	c.t, c.addr = t, addr
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	c.log.Info().Str("addr", addr).Msg("connected to dedicated server")
	return nil
}

// ConnectDiscovered looks up the servers registered under name, picks one
// with bal and connects to it.
func (c *Client) ConnectDiscovered(ctx context.Context, reg registry.Registry, bal loadbalance.Balancer, name string) error {
	instances, err := reg.Discover(ctx, name)
	if err != nil {
		return fmt.Errorf("gbxremote: discover %s: %w", name, err)
	}
	instance, err := bal.Pick(instances)
	if err != nil {
		return fmt.Errorf("gbxremote: pick %s: %w", name, err)
	}
	c.log.Debug().Str("name", name).Str("addr", instance.Addr).Str("strategy", bal.Name()).Msg("picked dedicated server")
	return c.ConnectAddr(ctx, instance.Addr)
}

// Addr returns the address of the current or last connection.
func (c *Client) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// Disconnect closes the connection. Queued calls are dropped.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	t := c.t
	c.t = nil
	c.mu.Unlock()

	if t == nil {
		return nil
	}
	return t.Close()
}

// Terminate closes the connection, ignoring any close error.
func (c *Client) Terminate() {
	_ = c.Disconnect()
}

// IsConnected reports whether a usable connection exists.
func (c *Client) IsConnected() bool {
	t := c.transport()
	return t != nil && t.IsConnected()
}

// IdleTime returns the time since the last successful I/O, or zero when
// disconnected.
func (c *Client) IdleTime() time.Duration {
	t := c.transport()
	if t == nil {
		return 0
	}
	return t.IdleTime()
}

// SetTimeouts changes the read and write timeouts of the current and future
// connections. Zero leaves a timeout unchanged.
func (c *Client) SetTimeouts(read, write time.Duration) {
	c.mu.Lock()
	if read > 0 {
		c.opts.Transport.ReadTimeout = read
	}
	if write > 0 {
		c.opts.Transport.WriteTimeout = write
	}
	t := c.t
	c.mu.Unlock()

	if t != nil {
		t.SetTimeouts(read, write)
	}
}

func (c *Client) transport() *transport.ClientTransport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Query calls method on the server and returns its single return value.
// Faults come back as *fault.Error.
func (c *Client) Query(ctx context.Context, method string, params ...any) (any, error) {
	if params == nil {
		params = []any{}
	}
	return c.handler(ctx, &message.Call{MethodName: method, Params: params})
}

func (c *Client) query(ctx context.Context, call *message.Call) (any, error) {
	t := c.transport()
	if t == nil {
		return nil, protocol.ErrNotConnected
	}
	if calls, ok := ctx.Value(batchKey{}).([]*message.Call); ok && call.MethodName == protocol.MulticallMethod {
		res, err := t.Multicall(ctx, calls)
		if err != nil {
			return nil, err
		}
		return res, nil
	}
	return t.Query(ctx, call.MethodName, call.Params)
}

// AddCall queues a call for the next MultiQuery.
func (c *Client) AddCall(method string, params ...any) error {
	t := c.transport()
	if t == nil {
		return protocol.ErrNotConnected
	}
	t.AddCall(method, params)
	return nil
}

// MultiQuery sends the queued calls. A call that faulted has a *fault.Error
// in its slot.
//
// The batch runs through the middleware chain once: a single queued call as
// itself, several as one system.multicall call.
func (c *Client) MultiQuery(ctx context.Context) ([]any, error) {
	t := c.transport()
	if t == nil {
		return nil, protocol.ErrNotConnected
	}

	calls := t.TakeCalls()
	switch len(calls) {
	case 0:
		return []any{}, nil
	case 1:
		v, err := c.handler(ctx, calls[0])
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	}

	call := &message.Call{MethodName: protocol.MulticallMethod, Params: []any{transport.Batch(calls)}}
	res, err := c.handler(context.WithValue(ctx, batchKey{}, calls), call)
	if err != nil {
		return nil, err
	}
	list, _ := res.([]any)
	return list, nil
}

// batchKey carries the queued calls of a MultiQuery down the chain, so the
// innermost handler can unpack per-call results.
type batchKey struct{}

// GetCallbacks returns the callbacks pushed since the last call.
func (c *Client) GetCallbacks(ctx context.Context) ([]*message.Call, error) {
	t := c.transport()
	if t == nil {
		return []*message.Call{}, protocol.ErrNotConnected
	}
	return t.GetCallbacks(ctx)
}
