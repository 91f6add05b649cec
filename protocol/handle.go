package protocol

const (
	// HandleStart is the lowest request handle. Everything below it is
	// reserved for callbacks pushed by the server.
	HandleStart uint32 = 0x80000000
	// HandleMax is the last handle issued before wrapping back to HandleStart.
	HandleMax uint32 = 0xFFFFFFFF
)

// HandleCounter issues request handles. The first handle is HandleStart+1;
// after HandleMax the counter wraps to HandleStart.
//
// Not safe for concurrent use; the transport owns one and serializes access.
type HandleCounter struct {
	last uint32
}

// NewHandleCounter returns a counter positioned at HandleStart.
func NewHandleCounter() *HandleCounter {
	return &HandleCounter{last: HandleStart}
}

// Next allocates the next handle.
func (c *HandleCounter) Next() uint32 {
	if c.last == HandleMax || c.last < HandleStart {
		c.last = HandleStart
	} else {
		c.last++
	}
	return c.last
}

// Last returns the most recently issued handle.
func (c *HandleCounter) Last() uint32 {
	return c.last
}

// IsCallbackHandle reports whether h lies in the server-pushed range.
func IsCallbackHandle(h uint32) bool {
	return h < HandleStart
}
