// Package dispatch turns callbacks pushed by a dedicated server into
// handler calls.
//
// A Dispatcher polls GetCallbacks at a fixed interval and routes each
// callback by method name ("ManiaPlanet.PlayerConnect", ...) to the handlers
// registered with On, then to catch-all handlers and sinks.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gbxremote/logx"
	"gbxremote/message"
	"gbxremote/protocol"
)

// Source yields pushed callbacks. *client.Client and
// *transport.ClientTransport both satisfy it.
type Source interface {
	GetCallbacks(ctx context.Context) ([]*message.Call, error)
}

// Handler handles one callback. An error is logged and does not stop
// dispatching.
type Handler func(ctx context.Context, call *message.Call) error

// Event is a callback as handed to sinks.
type Event struct {
	Session  string    `json:"session"`
	Server   string    `json:"server,omitempty"`
	Method   string    `json:"method"`
	Params   []any     `json:"params"`
	Received time.Time `json:"received"`
}

// Sink receives every dispatched callback, e.g. to forward it elsewhere.
type Sink interface {
	Publish(ctx context.Context, ev *Event) error
}

// Options tunes a Dispatcher.
type Options struct {
	Interval time.Duration // Poll interval (default 100ms)
	Server   string        // Copied into Event.Server
	Logger   *zerolog.Logger
}

type Dispatcher struct {
	src      Source
	interval time.Duration
	server   string
	session  string
	log      zerolog.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	catchAll []Handler
	sinks    []Sink
}

// New creates a dispatcher reading from src. Each dispatcher gets a random
// session id so sink consumers can tell controller runs apart.
func New(src Source, opts Options) *Dispatcher {
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	log := logx.Log
	if opts.Logger != nil {
		log = *opts.Logger
	}
	session := uuid.NewString()
	return &Dispatcher{
		src:      src,
		interval: opts.Interval,
		server:   opts.Server,
		session:  session,
		log:      log.With().Str("component", "dispatch").Str("session", session).Logger(),
		handlers: make(map[string][]Handler),
	}
}

// Session returns the dispatcher's session id.
func (d *Dispatcher) Session() string {
	return d.session
}

// On registers h for callbacks named method.
func (d *Dispatcher) On(method string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[method] = append(d.handlers[method], h)
}

// OnAny registers h for every callback, after the method handlers.
func (d *Dispatcher) OnAny(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.catchAll = append(d.catchAll, h)
}

// AddSink forwards every callback to s.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Poll fetches pending callbacks once and dispatches them in arrival order.
// Callbacks returned together with an error are still dispatched.
func (d *Dispatcher) Poll(ctx context.Context) (int, error) {
	calls, err := d.src.GetCallbacks(ctx)
	for _, call := range calls {
		d.Dispatch(ctx, call)
	}
	return len(calls), err
}

// Dispatch routes one callback.
func (d *Dispatcher) Dispatch(ctx context.Context, call *message.Call) {
	d.mu.RLock()
	handlers := append(append([]Handler(nil), d.handlers[call.MethodName]...), d.catchAll...)
	sinks := append([]Sink(nil), d.sinks...)
	d.mu.RUnlock()

	if len(handlers) == 0 && len(sinks) == 0 {
		d.log.Trace().Str("method", call.MethodName).Msg("no handler for callback")
	}
	for _, h := range handlers {
		if err := h(ctx, call); err != nil {
			d.log.Warn().Err(err).Str("method", call.MethodName).Msg("callback handler failed")
		}
	}
	if len(sinks) == 0 {
		return
	}

	ev := &Event{
		Session:  d.session,
		Server:   d.server,
		Method:   call.MethodName,
		Params:   call.Params,
		Received: time.Now().UTC(),
	}
	for _, s := range sinks {
		if err := s.Publish(ctx, ev); err != nil {
			d.log.Warn().Err(err).Str("method", call.MethodName).Msg("callback sink failed")
		}
	}
}

// Run polls until ctx ends or the connection is lost. A lost connection is
// returned so the caller can reconnect and call Run again.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.Poll(ctx); err != nil {
			if protocol.IsFatal(err) {
				return err
			}
			d.log.Warn().Err(err).Msg("polling callbacks failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
