// Package message defines the values and messages exchanged with a
// dedicated server.
//
// Values are plain Go values: bool, int, float64, string, []any, *Struct,
// DateTime and Base64. A decoded payload is a Message, a closed variant over
// the three shapes a GBXRemote payload can take:
//
//   - KindResponse: the ordered return values of a request
//   - KindFault:    a server-reported failure (code + message)
//   - KindCall:     a callback pushed by the server (method name + args)
package message

import "fmt"

// Kind tags the variant held by a Message.
type Kind int

const (
	KindResponse Kind = iota + 1
	KindFault
	KindCall
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindFault:
		return "fault"
	case KindCall:
		return "call"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is a decoded payload. Exactly one of Values, Fault or Call is
// meaningful, selected by Kind.
type Message struct {
	Kind   Kind
	Values []any  // KindResponse
	Fault  *Fault // KindFault
	Call   *Call  // KindCall
}

// Call is a method invocation: a queued multicall entry, an outgoing request
// or a callback pushed by the server.
type Call struct {
	MethodName string
	Params     []any
}

// Fault is a failure reported by the server.
type Fault struct {
	Code    int
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault %d: %s", f.Code, f.Message)
}
