package message

import (
	"bytes"
	"encoding/json"
	"time"
)

// Member is one named entry of a Struct.
type Member struct {
	Name  string
	Value any
}

// Struct is an XML-RPC struct. Members keep their insertion order, which is
// also their order on the wire.
type Struct struct {
	members []Member
}

// NewStruct builds a Struct from alternating name/value pairs:
//
//	NewStruct("methodName", "GetVersion", "params", []any{})
func NewStruct(pairs ...any) *Struct {
	s := &Struct{}
	for i := 0; i+1 < len(pairs); i += 2 {
		name, _ := pairs[i].(string)
		s.Set(name, pairs[i+1])
	}
	return s
}

// Set adds a member, or replaces the value of an existing one in place.
func (s *Struct) Set(name string, value any) {
	for i := range s.members {
		if s.members[i].Name == name {
			s.members[i].Value = value
			return
		}
	}
	s.members = append(s.members, Member{Name: name, Value: value})
}

// Get returns the value of a member.
func (s *Struct) Get(name string) (any, bool) {
	if s == nil {
		return nil, false
	}
	for _, m := range s.members {
		if m.Name == name {
			return m.Value, true
		}
	}
	return nil, false
}

// Len returns the number of members.
func (s *Struct) Len() int {
	if s == nil {
		return 0
	}
	return len(s.members)
}

// Members returns the members in wire order.
func (s *Struct) Members() []Member {
	if s == nil {
		return nil
	}
	return s.members
}

// MarshalJSON encodes the struct as a JSON object with members in wire order.
func (s *Struct) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range s.Members() {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(m.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(m.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DateTimeLayout is the dateTime.iso8601 layout used by dedicated servers.
const DateTimeLayout = "20060102T15:04:05"

// DateTime wraps a dateTime.iso8601 value.
type DateTime struct {
	time.Time
}

// Base64 wraps an opaque binary blob, sent base64-encoded.
type Base64 []byte
