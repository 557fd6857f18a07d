package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// leafTypes are accepted for every leaf value of a page fragment. Models
// drift between null, false and strings for "absent", so the shape check only
// rejects objects and arrays where a value belongs. Normalize does the rest.
var leafTypes = []string{"string", "boolean", "number", "null"}

// JSONSchema returns the JSON Schema a single page fragment must satisfy.
func (s *Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		if f.Kind == Nested {
			sub := make(map[string]any, len(f.SubKeys))
			for _, k := range f.SubKeys {
				sub[k] = map[string]any{"type": leafTypes}
			}
			props[f.Name] = map[string]any{
				"type":        []string{"object", "null"},
				"description": f.Description,
				"properties":  sub,
			}
			continue
		}
		props[f.Name] = map[string]any{
			"type":        leafTypes,
			"description": f.Description,
		}
	}
	return map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": props,
	}
}

// Validator checks decoded page fragments against the schema shape.
type Validator struct {
	compiled *jsonschema.Schema
}

// Validator compiles the fragment JSON Schema.
func (s *Schema) Validator() (*Validator, error) {
	raw, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fragment schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("fragment.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to load fragment schema: %w", err)
	}
	compiled, err := compiler.Compile("fragment.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile fragment schema: %w", err)
	}
	return &Validator{compiled: compiled}, nil
}

// Validate checks a value produced by json.Unmarshal into an any.
func (v *Validator) Validate(doc any) error {
	if rec, ok := doc.(Record); ok {
		doc = map[string]any(rec)
	}
	if err := v.compiled.Validate(doc); err != nil {
		return fmt.Errorf("fragment does not match schema: %w", err)
	}
	return nil
}
