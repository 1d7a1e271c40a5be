package jobs

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Validator checks a job object against a JSON Schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles schemaJSON.
func NewValidator(schemaJSON string) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

func mustValidator(schemaJSON string) *Validator {
	v, err := NewValidator(schemaJSON)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate returns nil when doc satisfies the schema, otherwise an error
// listing every violation.
func (v *Validator) Validate(doc []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var reasons []string
	for _, e := range result.Errors() {
		reasons = append(reasons, e.String())
	}
	return fmt.Errorf("%s", strings.Join(reasons, "; "))
}

// priorityProperty is shared by every engine; "" and null mean the default.
const priorityProperty = `{ "enum": ["low", "normal", "high", "", null] }`

const profitJobSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Profit Engine job",
  "type": "object",
  "properties": {
    "type":     { "type": ["string", "null"] },
    "preset":   { "type": ["string", "null"] },
    "inputs":   { "type": ["object", "null"] },
    "priority": ` + priorityProperty + `,
    "tags":     { "type": ["array", "null"], "items": { "type": "string" } }
  }
}`

const zalaraJobSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Zalara job",
  "type": "object",
  "required": ["template"],
  "properties": {
    "template":     { "type": "string", "minLength": 1 },
    "inputs":       { "type": ["object", "null"] },
    "priority":     ` + priorityProperty + `,
    "callback_url": { "type": ["string", "null"] },
    "tags":         { "type": ["array", "null"], "items": { "type": "string" } }
  }
}`

const signalForgeJobSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Signal Forge job",
  "type": "object",
  "required": ["source"],
  "properties": {
    "source":   { "type": "string", "minLength": 1 },
    "query":    { "type": ["string", "null"] },
    "inputs":   { "type": ["object", "null"] },
    "priority": ` + priorityProperty + `,
    "tags":     { "type": ["array", "null"], "items": { "type": "string" } }
  }
}`
