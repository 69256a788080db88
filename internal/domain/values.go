package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

type ValueKind string

const (
	KindNull   ValueKind = "null"
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
	KindBool   ValueKind = "bool"
	KindDate   ValueKind = "date"
)

const dateLayout = "2006-01-02"

// Value is a loosely typed backend value. String is the only place where a
// backend value becomes template text. Raw holds the source text of a value
// whose kind was inferred from text; it wins over the typed fields when the
// value is rendered or stored.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	Time time.Time
	Raw  string
}

func NullValue() Value            { return Value{Kind: KindNull} }
func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func DateValue(t time.Time) Value { return Value{Kind: KindDate, Time: t} }

func (v Value) IsNull() bool {
	return v.Kind == KindNull || v.Kind == ""
}

func (v Value) TypeName() string {
	if v.IsNull() {
		return string(KindNull)
	}
	return string(v.Kind)
}

func (v Value) String() string {
	if v.Raw != "" && !v.IsNull() {
		return v.Raw
	}
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindDate:
		t := v.Time.UTC()
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(dateLayout)
		}
		return t.Format(time.RFC3339)
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString, KindDate:
		return json.Marshal(v.String())
	case KindNumber:
		if v.Raw == "" {
			return json.Marshal(v.Num)
		}
		if isJSONNumber(v.Raw) {
			return []byte(v.Raw), nil
		}
		return json.Marshal(v.Raw)
	case KindBool:
		if v.Raw == "" || v.Raw == strconv.FormatBool(v.Bool) {
			return json.Marshal(v.Bool)
		}
		return json.Marshal(v.Raw)
	default:
		return []byte("null"), nil
	}
}

func isJSONNumber(s string) bool {
	if s == "" || (s[0] != '-' && (s[0] < '0' || s[0] > '9')) {
		return false
	}
	return json.Valid([]byte(s))
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ValueFromJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueFromJSON infers a Value from a raw JSON value. Strings holding an ISO
// date or RFC 3339 timestamp become dates that still render as the original
// string; numbers keep their literal; objects and arrays are kept as compact
// JSON text.
func ValueFromJSON(raw []byte) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Value{}, fmt.Errorf("empty json value")
	}
	switch trimmed[0] {
	case 'n':
		return NullValue(), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Value{}, err
		}
		return ParseScalar(s, false), nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return Value{}, err
		}
		return StringValue(buf.String()), nil
	default:
		n, err := strconv.ParseFloat(string(trimmed), 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid json number %q: %w", trimmed, err)
		}
		v := NumberValue(n)
		v.Raw = string(trimmed)
		return v, nil
	}
}

// ParseScalar infers a Value from text. Dates are always recognised; numbers
// and booleans only when inferNumbers is set. Inferred values keep s as their
// text, so the kind never changes what a document shows. Empty text is null.
func ParseScalar(s string, inferNumbers bool) Value {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return NullValue()
	}
	v := StringValue(s)
	if t, err := time.Parse(dateLayout, trimmed); err == nil {
		v = DateValue(t)
	} else if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		v = DateValue(t)
	} else if inferNumbers {
		if n, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
			v = NumberValue(n)
		} else if b, err := strconv.ParseBool(trimmed); err == nil && (strings.EqualFold(trimmed, "true") || strings.EqualFold(trimmed, "false")) {
			v = BoolValue(b)
		}
	}
	if v.Kind != KindString {
		v.Raw = s
	}
	return v
}

type FieldEntry struct {
	Name  string
	Value Value
}

// FieldSet is an ordered mapping of backend field name to value.
type FieldSet []FieldEntry

func (fs FieldSet) Names() []string {
	out := make([]string, 0, len(fs))
	for _, e := range fs {
		out = append(out, e.Name)
	}
	return out
}

func (fs FieldSet) Get(name string) (Value, bool) {
	for _, e := range fs {
		if e.Name == name {
			return e.Value, true
		}
	}
	return Value{}, false
}

func (fs *FieldSet) Set(name string, v Value) {
	for i := range *fs {
		if (*fs)[i].Name == name {
			(*fs)[i].Value = v
			return
		}
	}
	*fs = append(*fs, FieldEntry{Name: name, Value: v})
}

// Without returns a copy of the set lacking the named field.
func (fs FieldSet) Without(name string) FieldSet {
	out := make(FieldSet, 0, len(fs))
	for _, e := range fs {
		if e.Name != name {
			out = append(out, e)
		}
	}
	return out
}

func (fs FieldSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range fs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		v, err := e.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (fs *FieldSet) UnmarshalJSON(data []byte) error {
	members, err := decodeOrderedObject(data)
	if err != nil {
		return fmt.Errorf("field set: %w", err)
	}
	out := make(FieldSet, 0, len(members))
	for _, m := range members {
		v, err := ValueFromJSON(m.raw)
		if err != nil {
			return fmt.Errorf("field set: field %q: %w", m.key, err)
		}
		out.Set(m.key, v)
	}
	*fs = out
	return nil
}

type objectMember struct {
	key string
	raw json.RawMessage
}

func decodeOrderedObject(data []byte) ([]objectMember, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected json object")
	}

	out := make([]objectMember, 0)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, objectMember{key: key, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected trailing data")
	}
	return out, nil
}
