package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"template-docgen/internal/domain"
)

var codeFence = regexp.MustCompile("(?i)^```(?:json)?\\s*|\\s*```$")

const templateSchemaJSON = `{
  "type": "object",
  "required": ["name", "fields", "templateString"],
  "properties": {
    "name": {"type": "string"},
    "templateString": {"type": "string"},
    "fields": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "label": {"type": ["string", "null"]},
          "type": {"enum": ["string", "date", "array of objects", "array-of-objects"]},
          "generative": {"type": ["boolean", "null"]},
          "itemSchema": {}
        }
      }
    }
  }
}`

var templateShape = jsonschema.MustCompileString("template_schema.json", templateSchemaJSON)

// ParseError carries the model text that could not be turned into a schema.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StripCodeFence removes an optional leading ```json (or ```) fence and an
// optional trailing ``` fence.
func StripCodeFence(raw string) string {
	return strings.TrimSpace(codeFence.ReplaceAllString(strings.TrimSpace(raw), ""))
}

// SanitizeAndParse turns raw model output into a TemplateSchema. Any failure
// is a *ParseError; it never panics.
func SanitizeAndParse(raw string) (*domain.TemplateSchema, error) {
	cleaned := StripCodeFence(raw)
	if cleaned == "" {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("empty model output")}
	}

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("decode json: %w", err)}
	}
	if err := templateShape.Validate(doc); err != nil {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("json does not match template shape: %w", err)}
	}

	var schema domain.TemplateSchema
	if err := json.Unmarshal([]byte(cleaned), &schema); err != nil {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("decode template schema: %w", err)}
	}
	for i := range schema.Fields {
		t, ok := domain.NormalizeFieldType(string(schema.Fields[i].Type))
		if !ok {
			return nil, &ParseError{Raw: raw, Err: fmt.Errorf("field %q: unsupported type %q", schema.Fields[i].ID, schema.Fields[i].Type)}
		}
		schema.Fields[i].Type = t
	}
	if res := domain.ValidateSchema(schema); !domain.ValidationPassed(res) {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("template schema failed rules: %v", res.FailedRules)}
	}
	return &schema, nil
}
