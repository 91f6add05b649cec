package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gbxremote/message"
)

// node is one element of a parsed document.
type node struct {
	name     string
	text     strings.Builder
	children []*node
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// parseTree reads a whole XML document into an element tree.
func parseTree(data []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		root  *node
		stack []*node
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &DecodeError{Reason: "malformed XML", Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local}
			if len(stack) == 0 {
				if root != nil {
					return nil, &DecodeError{Reason: "multiple root elements"}
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, &DecodeError{Reason: "empty document"}
	}
	if len(stack) != 0 {
		return nil, &DecodeError{Reason: "unterminated element <" + stack[len(stack)-1].name + ">"}
	}
	return root, nil
}

// decodeValue decodes a <value> element.
func decodeValue(v *node) (any, error) {
	switch len(v.children) {
	case 0:
		// An untyped value is a string.
		return v.text.String(), nil
	case 1:
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("<value> has %d typed children", len(v.children))}
	}

	typed := v.children[0]
	text := typed.text.String()
	switch typed.name {
	case "int", "i4":
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return nil, &DecodeError{Reason: "bad <" + typed.name + ">", Err: err}
		}
		return int(n), nil
	case "boolean":
		switch strings.TrimSpace(text) {
		case "1", "true":
			return true, nil
		case "0", "false":
			return false, nil
		}
		return nil, &DecodeError{Reason: fmt.Sprintf("bad <boolean> %q", text)}
	case "string":
		return text, nil
	case "double":
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, &DecodeError{Reason: "bad <double>", Err: err}
		}
		return f, nil
	case "dateTime.iso8601":
		t, err := time.Parse(message.DateTimeLayout, strings.TrimSpace(text))
		if err != nil {
			return nil, &DecodeError{Reason: "bad <dateTime.iso8601>", Err: err}
		}
		return message.DateTime{Time: t}, nil
	case "base64":
		raw := strings.Join(strings.Fields(text), "")
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, &DecodeError{Reason: "bad <base64>", Err: err}
		}
		return message.Base64(b), nil
	case "struct":
		return decodeStruct(typed)
	case "array":
		return decodeArray(typed)
	case "nil":
		return nil, nil
	default:
		return nil, &DecodeError{Reason: "unknown value tag <" + typed.name + ">"}
	}
}

func decodeStruct(n *node) (*message.Struct, error) {
	s := message.NewStruct()
	for _, m := range n.children {
		if m.name != "member" {
			return nil, &DecodeError{Reason: "unexpected <" + m.name + "> in <struct>"}
		}
		name := m.child("name")
		value := m.child("value")
		if name == nil || value == nil {
			return nil, &DecodeError{Reason: "struct member without name or value"}
		}
		v, err := decodeValue(value)
		if err != nil {
			return nil, err
		}
		s.Set(name.text.String(), v)
	}
	return s, nil
}

func decodeArray(n *node) ([]any, error) {
	data := n.child("data")
	if data == nil {
		return nil, &DecodeError{Reason: "<array> without <data>"}
	}
	items := make([]any, 0, len(data.children))
	for _, c := range data.children {
		if c.name != "value" {
			return nil, &DecodeError{Reason: "unexpected <" + c.name + "> in <data>"}
		}
		v, err := decodeValue(c)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

// decodeParams decodes <params><param><value/></param>...</params>.
func decodeParams(params *node) ([]any, error) {
	values := make([]any, 0, len(params.children))
	for _, p := range params.children {
		if p.name != "param" {
			return nil, &DecodeError{Reason: "unexpected <" + p.name + "> in <params>"}
		}
		value := p.child("value")
		if value == nil {
			return nil, &DecodeError{Reason: "<param> without <value>"}
		}
		v, err := decodeValue(value)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// FaultFromValue recognizes the fault struct shape {faultCode, faultString}.
// Multicall results use the same shape for per-call failures.
func FaultFromValue(v any) (*message.Fault, bool) {
	s, ok := v.(*message.Struct)
	if !ok {
		return nil, false
	}
	code, ok := s.Get("faultCode")
	if !ok {
		return nil, false
	}
	f := &message.Fault{}
	switch c := code.(type) {
	case int:
		f.Code = c
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(c))
		if err != nil {
			return nil, false
		}
		f.Code = n
	default:
		return nil, false
	}
	if msg, ok := s.Get("faultString"); ok {
		f.Message, _ = msg.(string)
	}
	return f, true
}
