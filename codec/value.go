package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"gbxremote/message"
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
	"\r", "&#xD;",
)

// MarshalValue encodes v as a <value> fragment.
func MarshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalValue decodes a <value> fragment produced by MarshalValue.
func UnmarshalValue(data []byte) (any, error) {
	root, err := parseTree(data)
	if err != nil {
		return nil, err
	}
	if root.name != "value" {
		return nil, &DecodeError{Reason: fmt.Sprintf("expected <value>, got <%s>", root.name)}
	}
	return decodeValue(root)
}

func writeValue(buf *bytes.Buffer, v any) error {
	buf.WriteString("<value>")
	if err := writeTyped(buf, v); err != nil {
		return err
	}
	buf.WriteString("</value>")
	return nil
}

// writeTyped writes the type-tagged content of a <value> element.
func writeTyped(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("<string/>")
	case bool:
		if x {
			buf.WriteString("<boolean>1</boolean>")
		} else {
			buf.WriteString("<boolean>0</boolean>")
		}
	case string:
		writeString(buf, x)
	case float32:
		return writeDouble(buf, float64(x))
	case float64:
		return writeDouble(buf, x)
	case message.Base64:
		writeBase64(buf, x)
	case []byte:
		writeBase64(buf, x)
	case message.DateTime:
		writeDateTime(buf, x.Time)
	case *message.DateTime:
		writeDateTime(buf, x.Time)
	case time.Time:
		writeDateTime(buf, x)
	case *message.Struct:
		return writeStruct(buf, x.Members())
	case message.Struct:
		return writeStruct(buf, x.Members())
	case *message.Call:
		return writeStruct(buf, callMembers(x))
	case message.Call:
		return writeStruct(buf, callMembers(&x))
	case []any:
		return writeArray(buf, x)
	default:
		return writeReflect(buf, reflect.ValueOf(v))
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	if s == "" {
		buf.WriteString("<string/>")
		return
	}
	buf.WriteString("<string>")
	xmlEscaper.WriteString(buf, s)
	buf.WriteString("</string>")
}

func writeInt(buf *bytes.Buffer, n int64) error {
	if n < math.MinInt32 || n > math.MaxInt32 {
		return fmt.Errorf("gbxremote: integer %d overflows int32", n)
	}
	buf.WriteString("<int>")
	buf.WriteString(strconv.FormatInt(n, 10))
	buf.WriteString("</int>")
	return nil
}

func writeDouble(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("gbxremote: double %v has no XML-RPC representation", f)
	}
	buf.WriteString("<double>")
	buf.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	buf.WriteString("</double>")
	return nil
}

func writeBase64(buf *bytes.Buffer, b []byte) {
	if len(b) == 0 {
		buf.WriteString("<base64/>")
		return
	}
	buf.WriteString("<base64>")
	buf.WriteString(base64.StdEncoding.EncodeToString(b))
	buf.WriteString("</base64>")
}

func writeDateTime(buf *bytes.Buffer, t time.Time) {
	buf.WriteString("<dateTime.iso8601>")
	buf.WriteString(t.Format(message.DateTimeLayout))
	buf.WriteString("</dateTime.iso8601>")
}

func writeArray(buf *bytes.Buffer, items []any) error {
	if len(items) == 0 {
		buf.WriteString("<array><data/></array>")
		return nil
	}
	buf.WriteString("<array><data>")
	for _, item := range items {
		if err := writeValue(buf, item); err != nil {
			return err
		}
	}
	buf.WriteString("</data></array>")
	return nil
}

func writeStruct(buf *bytes.Buffer, members []message.Member) error {
	if len(members) == 0 {
		buf.WriteString("<struct/>")
		return nil
	}
	buf.WriteString("<struct>")
	for _, m := range members {
		buf.WriteString("<member><name>")
		xmlEscaper.WriteString(buf, m.Name)
		buf.WriteString("</name>")
		if err := writeValue(buf, m.Value); err != nil {
			return err
		}
		buf.WriteString("</member>")
	}
	buf.WriteString("</struct>")
	return nil
}

func callMembers(c *message.Call) []message.Member {
	params := c.Params
	if params == nil {
		params = []any{}
	}
	return []message.Member{
		{Name: "methodName", Value: c.MethodName},
		{Name: "params", Value: params},
	}
}

// writeReflect handles typed slices, maps, Go structs, pointers and the
// sized integer kinds.
func writeReflect(buf *bytes.Buffer, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return writeInt(buf, rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt32 {
			return fmt.Errorf("gbxremote: integer %d overflows int32", u)
		}
		return writeInt(buf, int64(u))
	case reflect.Bool:
		return writeTyped(buf, rv.Bool())
	case reflect.String:
		writeString(buf, rv.String())
		return nil
	case reflect.Float32, reflect.Float64:
		return writeDouble(buf, rv.Float())
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			buf.WriteString("<string/>")
			return nil
		}
		return writeTyped(buf, rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return writeArray(buf, items)
	case reflect.Map:
		return writeMap(buf, rv)
	case reflect.Struct:
		return writeStruct(buf, goStructMembers(rv))
	default:
		return fmt.Errorf("gbxremote: cannot encode value of type %s", rv.Type())
	}
}

// writeMap applies the list-or-struct rule: a map whose keys are exactly the
// integers 0..n-1 is a list, anything else is a struct. An empty map is an
// empty list.
func writeMap(buf *bytes.Buffer, rv reflect.Value) error {
	keys := rv.MapKeys()
	if len(keys) == 0 {
		return writeArray(buf, nil)
	}

	if ints, ok := intKeys(keys); ok {
		order := make([]int, len(keys))
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool { return ints[order[a]] < ints[order[b]] })

		contiguous := true
		for pos, idx := range order {
			if ints[idx] != int64(pos) {
				contiguous = false
				break
			}
		}
		if contiguous {
			items := make([]any, len(keys))
			for pos, idx := range order {
				items[pos] = rv.MapIndex(keys[idx]).Interface()
			}
			return writeArray(buf, items)
		}

		members := make([]message.Member, len(keys))
		for pos, idx := range order {
			members[pos] = message.Member{
				Name:  strconv.FormatInt(ints[idx], 10),
				Value: rv.MapIndex(keys[idx]).Interface(),
			}
		}
		return writeStruct(buf, members)
	}

	members := make([]message.Member, len(keys))
	for i, k := range keys {
		members[i] = message.Member{
			Name:  fmt.Sprint(k.Interface()),
			Value: rv.MapIndex(k).Interface(),
		}
	}
	sort.SliceStable(members, func(a, b int) bool { return members[a].Name < members[b].Name })
	return writeStruct(buf, members)
}

// intKeys reports the integer value of every key when all keys are integers.
func intKeys(keys []reflect.Value) ([]int64, bool) {
	out := make([]int64, len(keys))
	for i, k := range keys {
		if k.Kind() == reflect.Interface {
			k = k.Elem()
		}
		switch k.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out[i] = k.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if k.Uint() > math.MaxInt64 {
				return nil, false
			}
			out[i] = int64(k.Uint())
		default:
			return nil, false
		}
	}
	return out, true
}

// goStructMembers lists exported fields in declaration order. The `gbx` tag
// renames a member; `gbx:"-"` skips the field.
func goStructMembers(rv reflect.Value) []message.Member {
	rt := rv.Type()
	members := make([]message.Member, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("gbx"); ok {
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		members = append(members, message.Member{Name: name, Value: rv.Field(i).Interface()})
	}
	return members
}
