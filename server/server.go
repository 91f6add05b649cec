// Package server implements a mock GBXRemote dedicated server.
//
// It speaks the real wire protocol: the handshake banner, handle-correlated
// frames, system.multicall and pushed callbacks. Tests and the `gbxctl mock`
// command use it in place of a ManiaPlanet dedicated server.
//
// Request processing pipeline:
//
//	Accept conn → handshake → handleConn (single goroutine reads frames)
//	  → for each request: go handleRequest
//	    → Codec.Decode → method table → Codec.EncodeResponse/EncodeFault → write frame
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"gbxremote/codec"
	"gbxremote/logx"
	"gbxremote/message"
	"gbxremote/protocol"
)

// Options tunes a Server.
type Options struct {
	// MaxRequestSize rejects larger request frames with a fault (default 2 MiB).
	MaxRequestSize int
	// OnRequest observes every decoded request before it is handled.
	OnRequest func(method string, size int)
}

// Server is a mock dedicated server.
type Server struct {
	service  *service
	codec    codec.Codec
	opts     Options
	log      zerolog.Logger
	listener net.Listener
	wg       sync.WaitGroup // In-flight requests, awaited by Shutdown
	shutdown atomic.Bool

	mu    sync.Mutex
	conns map[*serverConn]struct{}

	callbackHandle atomic.Uint32
	requests       atomic.Int64
}

// serverConn is one client connection. Writes are serialized so response
// and callback frames never interleave.
type serverConn struct {
	conn    net.Conn
	writeMu sync.Mutex
}

func (c *serverConn) writeFrame(handle uint32, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.Encode(c.conn, &protocol.Header{Size: uint32(len(payload)), Handle: handle}, payload)
}

// NewServer creates a server answering system.listMethods and
// system.multicall; other methods are added with Handle or Register.
func NewServer(opts Options) *Server {
	if opts.MaxRequestSize <= 0 {
		opts.MaxRequestSize = protocol.DefaultMaxRequestSize
	}
	s := &Server{
		service: newService(),
		codec:   codec.Default,
		opts:    opts,
		log:     logx.Log.With().Str("component", "mock-server").Logger(),
		conns:   make(map[*serverConn]struct{}),
	}
	s.service.register("system.listMethods", func(context.Context, []any) (any, error) {
		names := s.service.names()
		out := make([]any, 0, len(names)+1)
		for _, n := range append(names, protocol.MulticallMethod) {
			out = append(out, n)
		}
		return out, nil
	})
	return s
}

// Handle registers fn under method.
func (s *Server) Handle(method string, fn HandlerFunc) {
	s.service.register(method, fn)
}

// Register registers every method of rcvr shaped like
// func(params []any) (any, error).
func (s *Server) Register(rcvr any) error {
	_, err := s.service.registerReceiver(rcvr)
	return err
}

// Listen opens the listening socket. Use "127.0.0.1:0" for an ephemeral port.
func (s *Server) Listen(network, address string) error {
	l, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve runs the accept loop until Shutdown.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Shutdown closes the listener; that Accept error is expected.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// RequestCount returns the number of request frames received so far.
func (s *Server) RequestCount() int64 {
	return s.requests.Load()
}

// Notify pushes a callback to every connected client.
func (s *Server) Notify(method string, params ...any) error {
	if params == nil {
		params = []any{}
	}
	payload, err := s.codec.EncodeCall(method, params)
	if err != nil {
		return err
	}
	handle := s.nextCallbackHandle()

	s.mu.Lock()
	conns := make([]*serverConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.writeFrame(handle, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// nextCallbackHandle issues handles in the server-pushed range 1..0x7FFFFFFF.
func (s *Server) nextCallbackHandle() uint32 {
	for {
		h := s.callbackHandle.Add(1)
		if protocol.IsCallbackHandle(h) && h != 0 {
			return h
		}
		s.callbackHandle.CompareAndSwap(h, 0)
	}
}

// handleConn reads frames sequentially and dispatches each request to its
// own goroutine.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	if err := protocol.WriteHandshake(conn); err != nil {
		return
	}

	sc := &serverConn{conn: conn}
	s.mu.Lock()
	s.conns[sc] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, sc)
		s.mu.Unlock()
	}()

	for {
		header, body, err := protocol.Decode(conn, 0)
		if err != nil {
			return
		}
		s.requests.Add(1)
		s.wg.Add(1)
		go s.handleRequest(sc, header, body)
	}
}

func (s *Server) handleRequest(sc *serverConn, header *protocol.Header, body []byte) {
	defer s.wg.Done()

	payload := s.answer(header, body)
	if err := sc.writeFrame(header.Handle, payload); err != nil {
		s.log.Debug().Err(err).Uint32("handle", header.Handle).Msg("cannot write response")
	}
}

// answer builds the response payload for one request frame.
func (s *Server) answer(header *protocol.Header, body []byte) []byte {
	if int(header.Size)+protocol.HeaderSize > s.opts.MaxRequestSize {
		return s.encodeFault(-32700, "Request too large.")
	}
	msg, err := s.codec.Decode(body)
	if err != nil || msg.Kind != message.KindCall {
		return s.encodeFault(-32700, "Parse error.")
	}
	if s.opts.OnRequest != nil {
		s.opts.OnRequest(msg.Call.MethodName, len(body))
	}

	ctx := context.Background()
	var result any
	if msg.Call.MethodName == protocol.MulticallMethod {
		result, err = s.multicall(ctx, msg.Call.Params)
	} else {
		result, err = s.invoke(ctx, msg.Call.MethodName, msg.Call.Params)
	}
	if err != nil {
		code, text := faultOf(err)
		return s.encodeFault(code, text)
	}

	payload, err := s.codec.EncodeResponse(result)
	if err != nil {
		return s.encodeFault(-32603, err.Error())
	}
	return payload
}

func (s *Server) invoke(ctx context.Context, method string, params []any) (any, error) {
	fn, ok := s.service.lookup(method)
	if !ok {
		return nil, &message.Fault{Code: -32601, Message: fmt.Sprintf("Method '%s' not found.", method)}
	}
	return fn(ctx, params)
}

// multicall runs each {methodName, params} entry. A failing entry becomes a
// fault struct in its slot; a successful one is wrapped in a one-element list.
func (s *Server) multicall(ctx context.Context, params []any) (any, error) {
	if len(params) != 1 {
		return nil, &message.Fault{Code: -32602, Message: "system.multicall expects one list."}
	}
	entries, ok := params[0].([]any)
	if !ok {
		return nil, &message.Fault{Code: -32602, Message: "system.multicall expects one list."}
	}

	results := make([]any, len(entries))
	for i, e := range entries {
		st, ok := e.(*message.Struct)
		if !ok {
			results[i] = codec.FaultValue(-32602, "Multicall entry is not a struct.")
			continue
		}
		name, _ := st.Get("methodName")
		method, _ := name.(string)
		if method == protocol.MulticallMethod {
			results[i] = codec.FaultValue(-32600, "Recursive system.multicall forbidden.")
			continue
		}
		var callParams []any
		if p, ok := st.Get("params"); ok {
			callParams, _ = p.([]any)
		}

		v, err := s.invoke(ctx, method, callParams)
		if err != nil {
			code, text := faultOf(err)
			results[i] = codec.FaultValue(code, text)
			continue
		}
		results[i] = []any{v}
	}
	return results, nil
}

func (s *Server) encodeFault(code int, msg string) []byte {
	payload, err := s.codec.EncodeFault(code, msg)
	if err != nil {
		// A fault struct of an int and a string always encodes.
		panic(err)
	}
	return payload
}

// Fault returns an error that the server reports as the given fault.
func Fault(code int, msg string) error {
	return &message.Fault{Code: code, Message: msg}
}

func faultOf(err error) (int, string) {
	var f *message.Fault
	if errors.As(err, &f) {
		return f.Code, f.Message
	}
	return -1000, err.Error()
}

// CloseClients drops every client connection without stopping the listener.
func (s *Server) CloseClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.conn.Close()
	}
}

// Shutdown stops accepting, closes client connections and waits for
// in-flight requests up to timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}
	s.CloseClients()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ongoing requests to finish")
	}
}
