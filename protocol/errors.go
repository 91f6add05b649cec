package protocol

import (
	"errors"
	"fmt"
)

// TransportErrorKind enumerates fatal connection-level failures.
type TransportErrorKind int

const (
	NotConnected TransportErrorKind = iota + 1
	ProtocolMismatch
	TimedOut
	Interrupted
	ShortWrite
)

func (k TransportErrorKind) String() string {
	switch k {
	case NotConnected:
		return "not connected"
	case ProtocolMismatch:
		return "protocol mismatch"
	case TimedOut:
		return "connection timed out"
	case Interrupted:
		return "connection interrupted"
	case ShortWrite:
		return "short write"
	default:
		return fmt.Sprintf("transport error %d", int(k))
	}
}

// TransportError terminates the logical session. The caller has to connect
// again; nothing is retried internally.
type TransportError struct {
	Kind TransportErrorKind
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	msg := "gbxremote: "
	if e.Op != "" {
		msg += e.Op + ": "
	}
	msg += e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is matches any TransportError of the same kind, so callers can write
// errors.Is(err, protocol.ErrTimedOut).
func (e *TransportError) Is(target error) bool {
	t, ok := target.(*TransportError)
	return ok && t.Kind == e.Kind
}

// MessageErrorKind enumerates per-call size failures.
type MessageErrorKind int

const (
	RequestTooLarge MessageErrorKind = iota + 1
	ResponseTooLarge
)

func (k MessageErrorKind) String() string {
	switch k {
	case RequestTooLarge:
		return "request too large"
	case ResponseTooLarge:
		return "response too large"
	default:
		return fmt.Sprintf("message error %d", int(k))
	}
}

// MessageError fails a single call because a frame exceeds its size limit.
type MessageError struct {
	Kind  MessageErrorKind
	Size  int
	Limit int
}

func (e *MessageError) Error() string {
	if e.Limit == 0 {
		return "gbxremote: " + e.Kind.String()
	}
	return fmt.Sprintf("gbxremote: %s (%d bytes, limit %d)", e.Kind, e.Size, e.Limit)
}

func (e *MessageError) Is(target error) bool {
	t, ok := target.(*MessageError)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotConnected     = &TransportError{Kind: NotConnected}
	ErrProtocolMismatch = &TransportError{Kind: ProtocolMismatch}
	ErrTimedOut         = &TransportError{Kind: TimedOut}
	ErrInterrupted      = &TransportError{Kind: Interrupted}
	ErrShortWrite       = &TransportError{Kind: ShortWrite}

	ErrRequestTooLarge  = &MessageError{Kind: RequestTooLarge}
	ErrResponseTooLarge = &MessageError{Kind: ResponseTooLarge}
)

// IsFatal reports whether err means the connection can no longer be used.
// An oversized response is fatal too: its payload was never read, so the
// stream position is lost.
func IsFatal(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, ErrResponseTooLarge)
}
