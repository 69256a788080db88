package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type FieldType string

const (
	FieldTypeString         FieldType = "string"
	FieldTypeDate           FieldType = "date"
	FieldTypeArrayOfObjects FieldType = "array of objects"
)

var fieldTypeAliases = map[string]FieldType{
	"string":           FieldTypeString,
	"date":             FieldTypeDate,
	"array of objects": FieldTypeArrayOfObjects,
	"array-of-objects": FieldTypeArrayOfObjects,
}

// AllowedFieldTypes lists the spellings a model response may use for a field type.
func AllowedFieldTypes() []string {
	return []string{"string", "date", "array of objects", "array-of-objects"}
}

// NormalizeFieldType maps an accepted spelling onto its canonical FieldType.
func NormalizeFieldType(raw string) (FieldType, bool) {
	t, ok := fieldTypeAliases[strings.ToLower(strings.TrimSpace(raw))]
	return t, ok
}

type TemplateField struct {
	ID         string          `json:"id"`
	Label      string          `json:"label"`
	Type       FieldType       `json:"type"`
	Generative *bool           `json:"generative,omitempty"`
	ItemSchema json.RawMessage `json:"itemSchema,omitempty"`
}

// DisplayLabel is the text used for matching: the label, or the id when the label is empty.
func (f TemplateField) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.ID
}

type TemplateSchema struct {
	Name           string          `json:"name"`
	Fields         []TemplateField `json:"fields"`
	TemplateString string          `json:"templateString"`
}

// FieldIDs returns the field ids in schema order.
func (s TemplateSchema) FieldIDs() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, f.ID)
	}
	return out
}

type MappedValue struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// MappedData is an ordered field id -> value mapping. Substitution walks it in order.
type MappedData []MappedValue

func (m MappedData) Get(id string) (string, bool) {
	for _, mv := range m {
		if mv.ID == id {
			return mv.Value, true
		}
	}
	return "", false
}

// Set replaces the value of an existing id or appends a new entry.
func (m *MappedData) Set(id, value string) {
	for i := range *m {
		if (*m)[i].ID == id {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, MappedValue{ID: id, Value: value})
}

func (m MappedData) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, mv := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(mv.ID)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(mv.Value)
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

// UnmarshalJSON decodes a JSON object keeping key order. Strings are taken
// verbatim; null becomes ""; numbers and booleans are rendered through Value.
func (m *MappedData) UnmarshalJSON(data []byte) error {
	members, err := decodeOrderedObject(data)
	if err != nil {
		return fmt.Errorf("mapped data: %w", err)
	}
	out := make(MappedData, 0, len(members))
	for _, mem := range members {
		var s string
		if err := json.Unmarshal(mem.raw, &s); err == nil {
			out.Set(mem.key, s)
			continue
		}
		v, err := ValueFromJSON(mem.raw)
		if err != nil {
			return fmt.Errorf("mapped data: field %q: %w", mem.key, err)
		}
		out.Set(mem.key, v.String())
	}
	*m = out
	return nil
}

type Paragraph struct {
	Text string `json:"text"`
	Bold bool   `json:"bold"`
}

type GeneratedDocument struct {
	Path       string      `json:"path"`
	Paragraphs []Paragraph `json:"paragraphs"`
	Unreplaced []string    `json:"unreplaced,omitempty"`
}

type Record struct {
	ID     string   `json:"id"`
	Fields FieldSet `json:"fields"`
}

type RecordPage struct {
	Total   int      `json:"total"`
	Skip    int      `json:"skip"`
	Limit   int      `json:"limit"`
	Records []Record `json:"records"`
}

type FieldSummary struct {
	Type        string  `json:"type"`
	SampleValue *string `json:"sampleValue"`
}

type TemplateIntake struct {
	TemplateID string       `json:"template_id"`
	Status     IntakeStatus `json:"status"`
	Name       string       `json:"name,omitempty"`
	FieldCount int          `json:"field_count"`
	Detail     string       `json:"detail,omitempty"`
}
