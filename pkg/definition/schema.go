package definition

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidDefinition is returned when a document does not satisfy the
// definitions schema.
var ErrInvalidDefinition = errors.New("invalid definition")

const schemaURL = "varmock://definitions.schema.json"

const schemaSource = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "routes": {"type": "array", "items": {"$ref": "#/$defs/route"}},
    "mocks": {"type": "array", "items": {"$ref": "#/$defs/mock"}}
  },
  "$defs": {
    "id": {"type": "string", "minLength": 1},
    "delay": {"type": "integer", "minimum": 0},
    "route": {
      "type": "object",
      "required": ["id", "url", "variants"],
      "properties": {
        "id": {"$ref": "#/$defs/id", "not": {"pattern": ":"}},
        "url": {"type": "string", "minLength": 1},
        "method": {
          "oneOf": [
            {"type": "string", "minLength": 1},
            {"type": "array", "items": {"type": "string", "minLength": 1}, "minItems": 1}
          ]
        },
        "delay": {"$ref": "#/$defs/delay"},
        "variants": {"type": "array", "items": {"$ref": "#/$defs/variant"}}
      }
    },
    "variant": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {"$ref": "#/$defs/id"},
        "handler": {"type": "string", "minLength": 1},
        "delay": {"$ref": "#/$defs/delay"}
      }
    },
    "mock": {
      "type": "object",
      "required": ["id"],
      "additionalProperties": false,
      "properties": {
        "id": {"$ref": "#/$defs/id"},
        "from": {"type": ["string", "null"]},
        "routes": {"type": "array", "items": {"type": "string", "minLength": 1}}
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(schemaURL, strings.NewReader(schemaSource)); err != nil {
			schemaErr = fmt.Errorf("add definitions schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Validate checks a decoded JSON document against the definitions schema.
// doc must use JSON types (as produced by encoding/json).
func Validate(doc any) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := s.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%w: %s", ErrInvalidDefinition, describe(verr))
		}
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return nil
}

// describe flattens the leaf causes of a validation error into one line.
func describe(err *jsonschema.ValidationError) string {
	var leaves []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			leaves = append(leaves, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(err)
	return strings.Join(leaves, "; ")
}
