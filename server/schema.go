package server

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sheikhrachel/go-firesim/env"
)

const simulateSchemaURL = "firesim://simulate.schema.json"

// numeric fields may arrive as numbers or numeric strings; coercion happens in env
const simulateSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "rows":  {"type": "integer", "minimum": 1},
    "cols":  {"type": "integer", "minimum": 1},
    "steps": {"type": "integer", "minimum": 0},
    "stop_when_settled": {"type": "boolean"},
    "env_data": {
      "type": "object",
      "propertyNames": {"enum": ["month", "day", "FFMC", "DMC", "DC", "ISI", "temp", "RH", "wind", "rain"]},
      "additionalProperties": {"type": ["number", "string"]}
    }
  },
  "additionalProperties": false
}`

var simulateRequestSchema = jsonschema.MustCompileString(simulateSchemaURL, simulateSchema)

// validateSimulate checks the decoded request document against the schema and
// reports the first failing location as a ValidationError
func validateSimulate(doc any) error {
	err := simulateRequestSchema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return errors.Wrap(err, "[validateSimulate]")
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	return &env.ValidationError{
		Field:  fieldFromPointer(leaf.InstanceLocation),
		Reason: leaf.Message,
	}
}

// fieldFromPointer turns a JSON pointer into a dotted field name. Environment
// keys are reported bare, /env_data/FFMC as FFMC, matching env.Environment.With.
func fieldFromPointer(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	parts := strings.Split(ptr, "/")
	if len(parts) > 1 && parts[0] == "env_data" {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = strings.NewReplacer("~1", "/", "~0", "~").Replace(p)
	}
	return strings.Join(parts, ".")
}
