// Package transport implements the client side of a GBXRemote connection.
//
// A ClientTransport owns one TCP connection to a dedicated server. Calls are
// synchronous: each request gets a fresh handle, and the caller reads frames
// until the frame carrying that handle arrives. The server may push callback
// frames at any time on the same connection; frames with a foreign handle met
// while waiting are buffered and handed out later by GetCallbacks.
//
//	Query(seq=0x80000005) ──► request frame ──► server
//	     ◄── callback (h=0x00000011)  → callbacks buffer
//	     ◄── callback (h=0x00000012)  → callbacks buffer
//	     ◄── response (h=0x80000005)  → returned to caller
//
// Only one exchange is in flight per connection. A mutex serializes callers;
// use a Pool of independent transports for parallel work.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gbxremote/codec"
	"gbxremote/message"
	"gbxremote/metrics"
	"gbxremote/protocol"
)

// ClientTransport manages a single GBXRemote connection.
type ClientTransport struct {
	mu      sync.Mutex // Serializes whole exchanges: one outstanding request per connection
	conn    net.Conn
	reader  *peekReader
	opts    Options
	log     zerolog.Logger
	handles *protocol.HandleCounter

	callbacks []*message.Call // FIFO of pushed callbacks, cleared by GetCallbacks
	multicall []*message.Call // Calls queued by AddCall, cleared by MultiQuery
	lastIO    time.Time
}

// Dial connects to a dedicated server at addr ("host:port") and performs the
// handshake within opts.ConnectTimeout.
func Dial(ctx context.Context, addr string, opts Options) (*ClientTransport, error) {
	opts = opts.withDefaults()
	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("gbxremote: connect to %s: %w", addr, err)
	}
	return NewClientTransport(conn, opts)
}

// NewClientTransport takes ownership of an open connection and performs the
// handshake. The connection is closed if the handshake fails.
func NewClientTransport(conn net.Conn, opts Options) (*ClientTransport, error) {
	opts = opts.withDefaults()
	if tcp, ok := conn.(*net.TCPConn); ok {
		// Frames must leave immediately; never coalesce small writes.
		_ = tcp.SetNoDelay(true)
	}

	t := &ClientTransport{
		conn:    conn,
		reader:  &peekReader{conn: conn},
		opts:    opts,
		log:     opts.Logger.With().Str("component", "transport").Str("addr", conn.RemoteAddr().String()).Logger(),
		handles: protocol.NewHandleCounter(),
	}

	_ = conn.SetReadDeadline(time.Now().Add(opts.ConnectTimeout))
	if err := protocol.ReadHandshake(conn); err != nil {
		conn.Close()
		return nil, err
	}
	t.lastIO = time.Now()
	metrics.ConnectionOpened()
	t.log.Debug().Msg("connected")
	return t, nil
}

// SetTimeouts changes the per-frame read and write timeouts. A zero value
// leaves the corresponding timeout unchanged.
func (t *ClientTransport) SetTimeouts(read, write time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if read > 0 {
		t.opts.ReadTimeout = read
	}
	if write > 0 {
		t.opts.WriteTimeout = write
	}
}

// Timeouts returns the current read and write timeouts.
func (t *ClientTransport) Timeouts() (read, write time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opts.ReadTimeout, t.opts.WriteTimeout
}

// IsConnected reports whether the connection is still usable.
func (t *ClientTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// IdleTime returns the time since the last successful read or write.
func (t *ClientTransport) IdleTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.lastIO)
}

// Close terminates the connection. Queued multicall entries are dropped.
func (t *ClientTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	t.multicall = nil
	return t.closeLocked()
}

func (t *ClientTransport) closeLocked() error {
	err := t.conn.Close()
	t.conn = nil
	t.reader = nil
	metrics.ConnectionClosed()
	t.log.Debug().Msg("disconnected")
	return err
}

// Query sends one request and waits for its response. Server faults come
// back as *fault.Error. An oversized system.multicall is bisected until
// every part fits; any other oversized request fails without being sent.
func (t *ClientTransport) Query(ctx context.Context, method string, params []any) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.query(ctx, method, params)
}

func (t *ClientTransport) query(ctx context.Context, method string, params []any) (any, error) {
	if t.conn == nil {
		return nil, protocol.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := t.opts.Codec.EncodeCall(method, params)
	if err != nil {
		return nil, fmt.Errorf("gbxremote: encode %s: %w", method, err)
	}

	if size := len(payload) + protocol.HeaderSize; size > t.opts.MaxRequestSize {
		if calls, ok := splittable(method, params); ok {
			return t.splitMulticall(ctx, calls)
		}
		return nil, &protocol.MessageError{Kind: protocol.RequestTooLarge, Size: size, Limit: t.opts.MaxRequestSize}
	}

	handle, err := t.send(ctx, payload)
	if err != nil {
		return nil, err
	}

	msg, err := t.await(ctx, handle, method)
	if err != nil {
		return nil, err
	}

	switch msg.Kind {
	case message.KindResponse:
		if len(msg.Values) == 0 {
			return nil, nil
		}
		return msg.Values[0], nil
	case message.KindFault:
		ferr := t.opts.Faults.Classify(msg.Fault.Message, msg.Fault.Code)
		metrics.ObserveFault(ferr.Kind.String())
		return nil, ferr
	default:
		err := &codec.DecodeError{Reason: "server answered with a " + msg.Kind.String()}
		t.log.Error().Str("method", method).Err(err).Msg("unexpected answer")
		return nil, err
	}
}

// send writes one request frame and returns its handle.
func (t *ClientTransport) send(ctx context.Context, payload []byte) (uint32, error) {
	handle := t.handles.Next()
	_ = t.conn.SetWriteDeadline(t.deadline(ctx, t.opts.WriteTimeout))

	h := &protocol.Header{Size: uint32(len(payload)), Handle: handle}
	if err := protocol.Encode(t.conn, h, payload); err != nil {
		t.log.Warn().Err(err).Uint32("handle", handle).Msg("write failed")
		t.closeLocked()
		return 0, err
	}
	t.lastIO = time.Now()
	metrics.FrameSent(len(payload))
	t.log.Trace().Uint32("handle", handle).Int("size", len(payload)).Msg("frame sent")
	return handle, nil
}

// await reads frames until the one carrying handle arrives. Frames carrying
// any other handle are treated as pushed callbacks.
func (t *ClientTransport) await(ctx context.Context, handle uint32, method string) (*message.Message, error) {
	for {
		h, body, err := t.receive(ctx, t.opts.ReadTimeout)
		if err != nil {
			return nil, err
		}

		msg, decodeErr := t.opts.Codec.Decode(body)
		if h.Handle != handle {
			t.buffer(h, msg, decodeErr)
			continue
		}
		if decodeErr != nil {
			t.log.Error().Str("method", method).Uint32("handle", handle).Err(decodeErr).Msg("cannot decode response")
			return nil, fmt.Errorf("gbxremote: %s: %w", method, decodeErr)
		}
		return msg, nil
	}
}

// receive reads one frame. Any failure here is fatal to the connection.
func (t *ClientTransport) receive(ctx context.Context, timeout time.Duration) (*protocol.Header, []byte, error) {
	_ = t.conn.SetReadDeadline(t.deadline(ctx, timeout))
	h, body, err := protocol.Decode(t.reader, uint32(t.opts.MaxResponseSize))
	if err != nil {
		t.log.Warn().Err(err).Msg("read failed")
		t.closeLocked()
		return nil, nil, err
	}
	t.lastIO = time.Now()
	metrics.FrameReceived(len(body))
	t.log.Trace().Uint32("handle", h.Handle).Int("size", len(body)).Msg("frame received")
	return h, body, nil
}

// buffer keeps a foreign-handle frame if it is a callback. Late answers to
// earlier requests have nobody waiting for them and are dropped.
func (t *ClientTransport) buffer(h *protocol.Header, msg *message.Message, err error) {
	if err != nil {
		t.log.Warn().Uint32("handle", h.Handle).Err(err).Msg("dropping undecodable frame")
		return
	}
	if msg.Kind != message.KindCall {
		t.log.Warn().Uint32("handle", h.Handle).Stringer("kind", msg.Kind).Msg("dropping stale frame")
		return
	}
	t.callbacks = append(t.callbacks, msg.Call)
	metrics.CallbackReceived(msg.Call.MethodName)
}

// GetCallbacks returns the buffered callbacks and clears the buffer. It first
// drains frames already waiting in the socket without blocking for new ones.
//
// When the connection is gone the callbacks buffered before the failure are
// still returned, together with the error.
func (t *ClientTransport) GetCallbacks(ctx context.Context) ([]*message.Call, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return t.takeCallbacks(), protocol.ErrNotConnected
	}

	for i := 0; i < t.opts.MaxDrainFrames; i++ {
		ready, err := t.readable()
		if err != nil {
			return t.takeCallbacks(), err
		}
		if !ready {
			break
		}
		h, body, err := t.receive(ctx, t.opts.ReadTimeout)
		if err != nil {
			return t.takeCallbacks(), err
		}
		msg, decodeErr := t.opts.Codec.Decode(body)
		t.buffer(h, msg, decodeErr)
	}
	return t.takeCallbacks(), nil
}

func (t *ClientTransport) takeCallbacks() []*message.Call {
	calls := t.callbacks
	t.callbacks = nil
	if calls == nil {
		calls = []*message.Call{}
	}
	return calls
}

// readable checks once whether a frame has started to arrive. The byte it
// may consume is kept by the peekReader for the following frame read.
func (t *ClientTransport) readable() (bool, error) {
	_ = t.conn.SetReadDeadline(time.Now().Add(t.opts.DrainWait))
	var one [1]byte
	n, err := t.conn.Read(one[:])
	if n == 1 {
		t.reader.unread(one[0])
		return true, nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return false, nil
	}
	if err == nil {
		return false, nil
	}
	err = &protocol.TransportError{Kind: protocol.Interrupted, Op: "read", Err: err}
	t.log.Warn().Err(err).Msg("connection lost while draining callbacks")
	t.closeLocked()
	return false, err
}

// deadline picks the earlier of now+timeout and the context deadline.
func (t *ClientTransport) deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

// peekReader replays bytes consumed by the readiness check before reading
// from the connection again.
type peekReader struct {
	conn   net.Conn
	peeked bytes.Buffer
}

func (r *peekReader) unread(b byte) {
	r.peeked.WriteByte(b)
}

func (r *peekReader) Read(p []byte) (int, error) {
	if r.peeked.Len() > 0 {
		return r.peeked.Read(p)
	}
	return r.conn.Read(p)
}
