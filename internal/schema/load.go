package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileField is the YAML form of a Field.
type fileField struct {
	Name        string   `yaml:"name"`
	Kind        string   `yaml:"kind"`
	Type        string   `yaml:"type"`
	Keys        []string `yaml:"keys,omitempty"`
	Description string   `yaml:"description"`
	Unambiguous bool     `yaml:"unambiguous,omitempty"`
	Evaluated   *bool    `yaml:"evaluated,omitempty"`
}

type fileSchema struct {
	Fields []fileField `yaml:"fields"`
}

// LoadFile reads a schema from a YAML file of the form
//
//	fields:
//	  - name: CadastralDesignation
//	    kind: scalar
//	    type: string
//	    unambiguous: true
//	  - name: RenovationNeeds
//	    kind: nested
//	    type: bool
//	    keys: [roof, garage]
//
// Fields are evaluated unless `evaluated: false` is set.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML schema document.
func Parse(data []byte) (*Schema, error) {
	var doc fileSchema
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	fields := make([]Field, 0, len(doc.Fields))
	for _, ff := range doc.Fields {
		kind, err := ParseKind(ff.Kind)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", ff.Name, err)
		}
		vt, err := ParseValueType(ff.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", ff.Name, err)
		}
		evaluated := true
		if ff.Evaluated != nil {
			evaluated = *ff.Evaluated
		}
		fields = append(fields, Field{
			Name:        ff.Name,
			Kind:        kind,
			Type:        vt,
			SubKeys:     ff.Keys,
			Description: ff.Description,
			Unambiguous: ff.Unambiguous,
			Evaluated:   evaluated,
		})
	}
	return New(fields...)
}

// Load returns the schema at path, or the built-in default when path is empty.
func Load(path string) (*Schema, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}
