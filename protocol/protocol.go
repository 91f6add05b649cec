// Package protocol implements the GBXRemote 2 binary framing used by
// ManiaPlanet/TrackMania dedicated servers.
//
// Right after the TCP connection is opened the server announces itself with
// a 4-byte little-endian length (always 11) followed by the ASCII bytes
// "GBXRemote 2". Every message after that is a frame: a fixed 8-byte header
// followed by a variable-length XML body. The receiver reads the header first
// to learn the body length, then reads exactly that many bytes.
//
// Frame format:
//
//	0        4        8
//	┌────────┬────────┬──────────────────────┐
//	│  size  │ handle │     XML payload ...   │
//	│ uint32 │ uint32 │     size bytes        │
//	└────────┴────────┴──────────────────────┘
//
// Both integers are little-endian. There is no padding and no checksum.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HandshakeName is the protocol banner sent by the server.
	HandshakeName = "GBXRemote 2"
	// HeaderSize is the size of a frame header: 4 (size) + 4 (handle).
	HeaderSize = 8

	// DefaultMaxRequestSize caps a whole request frame, header included.
	DefaultMaxRequestSize = 2 << 20
	// DefaultMaxResponseSize caps the payload of an incoming frame.
	DefaultMaxResponseSize = 4 << 20

	// MulticallMethod is the batch method understood by every dedicated server.
	MulticallMethod = "system.multicall"
)

// Header is the fixed 8-byte frame header.
type Header struct {
	Size   uint32 // Payload length in bytes
	Handle uint32 // Correlates a response to its request; callbacks use handles below HandleStart
}

// WriteHandshake writes the server banner. Only the server side sends it.
func WriteHandshake(w io.Writer) error {
	buf := make([]byte, 4+len(HandshakeName))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(HandshakeName)))
	copy(buf[4:], HandshakeName)
	_, err := w.Write(buf)
	return err
}

// ReadHandshake reads and validates the server banner. Any length other than
// 11 or any banner other than "GBXRemote 2" is a protocol mismatch.
func ReadHandshake(r io.Reader) error {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return classifyIOError("handshake", err)
	}
	size := binary.LittleEndian.Uint32(lenBuf)
	if size != uint32(len(HandshakeName)) {
		return &TransportError{
			Kind: ProtocolMismatch,
			Op:   "handshake",
			Err:  fmt.Errorf("unexpected banner length %d", size),
		}
	}

	name := make([]byte, size)
	if _, err := io.ReadFull(r, name); err != nil {
		return classifyIOError("handshake", err)
	}
	if string(name) != HandshakeName {
		return &TransportError{
			Kind: ProtocolMismatch,
			Op:   "handshake",
			Err:  fmt.Errorf("unexpected banner %q", name),
		}
	}
	return nil
}

// Encode writes a complete frame (header + body) to w in a single Write call.
// A partial write is never resumed: the caller must treat it as a lost
// connection.
//
// The caller must serialize writers sharing the same connection, otherwise
// frames from different requests interleave and corrupt the stream.
func Encode(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], h.Size)
	binary.LittleEndian.PutUint32(buf[4:8], h.Handle)
	copy(buf[HeaderSize:], body)

	n, err := w.Write(buf)
	switch {
	case err != nil && n > 0 && n < len(buf) && !isTimeout(err):
		return &TransportError{Kind: ShortWrite, Op: "write", Err: fmt.Errorf("wrote %d of %d bytes: %w", n, len(buf), err)}
	case err != nil:
		return classifyIOError("write", err)
	case n < len(buf):
		return &TransportError{Kind: ShortWrite, Op: "write", Err: fmt.Errorf("wrote %d of %d bytes", n, len(buf))}
	}
	return nil
}

// Decode reads a complete frame from r. A payload larger than maxSize is
// rejected before any of it is read; maxSize 0 disables the check.
func Decode(r io.Reader, maxSize uint32) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, classifyIOError("read", err)
	}

	h := &Header{
		Size:   binary.LittleEndian.Uint32(headerBuf[0:4]),
		Handle: binary.LittleEndian.Uint32(headerBuf[4:8]),
	}
	if maxSize > 0 && h.Size > maxSize {
		return h, nil, &MessageError{Kind: ResponseTooLarge, Size: int(h.Size), Limit: int(maxSize)}
	}

	body := make([]byte, h.Size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, classifyIOError("read", err)
	}
	return h, body, nil
}

// classifyIOError splits I/O failures into the two fatal read sub-kinds:
// a deadline expiry is "timed out", anything else (EOF, reset, short read)
// is "interrupted".
func classifyIOError(op string, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	if isTimeout(err) {
		return &TransportError{Kind: TimedOut, Op: op, Err: err}
	}
	return &TransportError{Kind: Interrupted, Op: op, Err: err}
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
