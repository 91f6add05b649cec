// Package codec converts between Go values and GBXRemote XML payloads.
//
// Every payload is an XML-RPC document: requests and server callbacks are
// methodCall documents, answers are methodResponse documents carrying either
// params or a fault.
package codec

import "gbxremote/message"

// Codec builds and parses frame payloads.
type Codec interface {
	// EncodeCall builds a methodCall document. Requests and server-pushed
	// callbacks share this shape.
	EncodeCall(method string, params []any) ([]byte, error)
	// EncodeResponse builds a successful methodResponse with one value.
	EncodeResponse(value any) ([]byte, error)
	// EncodeFault builds a methodResponse carrying a fault.
	EncodeFault(code int, msg string) ([]byte, error)
	// Decode parses a payload into a response, a fault or a call.
	Decode(data []byte) (*message.Message, error)
}

// Default is the codec used when none is configured.
var Default Codec = &XMLCodec{}

// DecodeError reports a payload that is not valid XML or lacks a required
// element. It is fatal to the call it belongs to and never retried.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "gbxremote: decode: " + e.Reason + ": " + e.Err.Error()
	}
	return "gbxremote: decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }
