package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	body := []byte("<methodCall/>")
	header := Header{
		Size:   uint32(len(body)),
		Handle: 0x80000001,
	}

	var buf bytes.Buffer
	if err := Encode(&buf, &header, body); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	raw := buf.Bytes()
	if got := binary.LittleEndian.Uint32(raw[0:4]); got != header.Size {
		t.Errorf("size field: got %d, want %d", got, header.Size)
	}
	if got := binary.LittleEndian.Uint32(raw[4:8]); got != header.Handle {
		t.Errorf("handle field: got %#x, want %#x", got, header.Handle)
	}

	decodedHeader, decodedBody, err := Decode(&buf, DefaultMaxResponseSize)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if *decodedHeader != header {
		t.Errorf("header mismatch: got %+v, want %+v", *decodedHeader, header)
	}
	if !bytes.Equal(decodedBody, body) {
		t.Errorf("body mismatch: got %s, want %s", decodedBody, body)
	}
}

func TestDecodeEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, &Header{Size: 0, Handle: 7}, nil); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	h, body, err := Decode(&buf, DefaultMaxResponseSize)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if h.Handle != 7 || len(body) != 0 {
		t.Errorf("got handle %d body %d bytes, want handle 7 and empty body", h.Handle, len(body))
	}
}

func TestDecodeLargeBody(t *testing.T) {
	largeBody := make([]byte, 1024*1024)
	for i := range largeBody {
		largeBody[i] = byte(i % 256)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, &Header{Size: uint32(len(largeBody)), Handle: 999}, largeBody); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	_, decodedBody, err := Decode(&buf, DefaultMaxResponseSize)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decodedBody, largeBody) {
		t.Errorf("large body mismatch")
	}
}

func TestDecodeTooLarge(t *testing.T) {
	raw := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(raw[0:4], 1024)
	binary.LittleEndian.PutUint32(raw[4:8], 1)

	// No payload follows: the decoder must not try to read it.
	_, _, err := Decode(bytes.NewReader(raw), 512)
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("expected response too large, got %v", err)
	}
	if !IsFatal(err) {
		t.Errorf("an unread oversized payload must be fatal")
	}
}

func TestDecodeShortRead(t *testing.T) {
	raw := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(raw[0:4], 100)
	raw = append(raw, []byte("truncated")...)

	_, _, err := Decode(bytes.NewReader(raw), 0)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected interrupted, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected wrapped io.ErrUnexpectedEOF, got %v", err)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type timeoutReader struct{}

func (timeoutReader) Read([]byte) (int, error) { return 0, timeoutErr{} }

func TestDecodeTimeout(t *testing.T) {
	_, _, err := Decode(timeoutReader{}, 0)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected timed out, got %v", err)
	}
	if errors.Is(err, ErrInterrupted) {
		t.Errorf("timed out must not match interrupted")
	}
}

type limitedWriter struct {
	n int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if len(p) > w.n {
		return w.n, io.ErrShortWrite
	}
	return len(p), nil
}

func TestEncodeShortWrite(t *testing.T) {
	err := Encode(&limitedWriter{n: 5}, &Header{Size: 4, Handle: 1}, []byte("abcd"))
	if !errors.Is(err, ErrShortWrite) {
		t.Fatalf("expected short write, got %v", err)
	}
}

func TestHandshake(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHandshake(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 15 {
		t.Fatalf("banner should be 15 bytes, got %d", buf.Len())
	}
	if err := ReadHandshake(&buf); err != nil {
		t.Fatalf("ReadHandshake failed: %v", err)
	}
}

func TestHandshakeMismatch(t *testing.T) {
	cases := []struct {
		name   string
		length uint32
		banner string
	}{
		{"wrong length", 12, "GBXRemote 22"},
		{"wrong banner", 11, "GBXRemote 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := make([]byte, 4)
			binary.LittleEndian.PutUint32(raw, tc.length)
			raw = append(raw, tc.banner...)

			err := ReadHandshake(bytes.NewReader(raw))
			if !errors.Is(err, ErrProtocolMismatch) {
				t.Fatalf("expected protocol mismatch, got %v", err)
			}
		})
	}
}

func TestHandleWraparound(t *testing.T) {
	c := NewHandleCounter()
	if h := c.Next(); h != 0x80000001 {
		t.Fatalf("first handle: got %#x, want 0x80000001", h)
	}

	c.last = 0xFFFFFFFE
	if h := c.Next(); h != 0xFFFFFFFF {
		t.Fatalf("got %#x, want 0xffffffff", h)
	}
	if h := c.Next(); h != 0x80000000 {
		t.Fatalf("after 0xffffffff: got %#x, want 0x80000000", h)
	}
	if h := c.Next(); h != 0x80000001 {
		t.Fatalf("got %#x, want 0x80000001", h)
	}
}

func TestIsCallbackHandle(t *testing.T) {
	if !IsCallbackHandle(0) || !IsCallbackHandle(0x7FFFFFFF) {
		t.Errorf("low handles are callback handles")
	}
	if IsCallbackHandle(HandleStart) || IsCallbackHandle(HandleMax) {
		t.Errorf("request handles are not callback handles")
	}
}
