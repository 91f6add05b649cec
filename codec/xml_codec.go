package codec

import (
	"bytes"

	"gbxremote/message"
)

const xmlHeader = `<?xml version="1.0" encoding="utf-8"?>`

// XMLCodec is the XML-RPC dialect spoken by dedicated servers.
type XMLCodec struct{}

func (c *XMLCodec) EncodeCall(method string, params []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	buf.WriteString("<methodCall><methodName>")
	xmlEscaper.WriteString(&buf, method)
	buf.WriteString("</methodName><params>")
	for _, p := range params {
		buf.WriteString("<param>")
		if err := writeValue(&buf, p); err != nil {
			return nil, err
		}
		buf.WriteString("</param>")
	}
	buf.WriteString("</params></methodCall>")
	return buf.Bytes(), nil
}

func (c *XMLCodec) EncodeResponse(value any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	buf.WriteString("<methodResponse><params><param>")
	if err := writeValue(&buf, value); err != nil {
		return nil, err
	}
	buf.WriteString("</param></params></methodResponse>")
	return buf.Bytes(), nil
}

func (c *XMLCodec) EncodeFault(code int, msg string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	buf.WriteString("<methodResponse><fault>")
	if err := writeValue(&buf, FaultValue(code, msg)); err != nil {
		return nil, err
	}
	buf.WriteString("</fault></methodResponse>")
	return buf.Bytes(), nil
}

// Decode tells the three payload shapes apart by document structure alone:
// methodCall is a callback, methodResponse with <fault> is a fault, and
// methodResponse with <params> is a response.
func (c *XMLCodec) Decode(data []byte) (*message.Message, error) {
	root, err := parseTree(data)
	if err != nil {
		return nil, err
	}

	switch root.name {
	case "methodResponse":
		if f := root.child("fault"); f != nil {
			value := f.child("value")
			if value == nil {
				return nil, &DecodeError{Reason: "<fault> without <value>"}
			}
			v, err := decodeValue(value)
			if err != nil {
				return nil, err
			}
			fault, ok := FaultFromValue(v)
			if !ok {
				return nil, &DecodeError{Reason: "fault struct without faultCode"}
			}
			return &message.Message{Kind: message.KindFault, Fault: fault}, nil
		}
		params := root.child("params")
		if params == nil {
			return nil, &DecodeError{Reason: "<methodResponse> without <params> or <fault>"}
		}
		values, err := decodeParams(params)
		if err != nil {
			return nil, err
		}
		return &message.Message{Kind: message.KindResponse, Values: values}, nil

	case "methodCall":
		name := root.child("methodName")
		if name == nil || name.text.Len() == 0 {
			return nil, &DecodeError{Reason: "<methodCall> without <methodName>"}
		}
		call := &message.Call{MethodName: name.text.String(), Params: []any{}}
		if params := root.child("params"); params != nil {
			values, err := decodeParams(params)
			if err != nil {
				return nil, err
			}
			call.Params = values
		}
		return &message.Message{Kind: message.KindCall, Call: call}, nil

	default:
		return nil, &DecodeError{Reason: "unexpected root element <" + root.name + ">"}
	}
}

// FaultValue builds the {faultCode, faultString} struct.
func FaultValue(code int, msg string) *message.Struct {
	return message.NewStruct("faultCode", code, "faultString", msg)
}
