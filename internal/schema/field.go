// Package schema declares the fields extracted from an inspection report.
//
// A Schema is the single source for prompt building, fragment validation,
// normalization, ground-truth seeding and evaluation. It is built once at
// startup and never mutated afterwards.
package schema

import (
	"fmt"
	"strings"
)

// Kind distinguishes scalar fields from nested objects.
type Kind int

const (
	// Scalar fields hold one value.
	Scalar Kind = iota
	// Nested fields hold an object with a fixed set of sub-keys.
	Nested
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Nested:
		return "nested"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses "scalar" or "nested".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "scalar":
		return Scalar, nil
	case "nested", "object":
		return Nested, nil
	default:
		return 0, fmt.Errorf("unknown field kind: %q", s)
	}
}

// ValueType is the JSON type of a scalar, or of every sub-key of a nested field.
type ValueType int

const (
	String ValueType = iota
	Bool
)

func (t ValueType) String() string {
	switch t {
	case String:
		return "string"
	case Bool:
		return "boolean"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ParseValueType parses "string" or "bool"/"boolean".
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "string":
		return String, nil
	case "bool", "boolean":
		return Bool, nil
	default:
		return 0, fmt.Errorf("unknown value type: %q", s)
	}
}

// Field is one recognized field.
type Field struct {
	Name        string
	Kind        Kind
	Type        ValueType
	SubKeys     []string
	Description string

	// Unambiguous marks string fields where a wrong answer is scored as a
	// false positive only, never also as a missing answer.
	Unambiguous bool

	// Evaluated is false for fields a custom schema excludes from scoring.
	Evaluated bool
}

// Path returns the evaluation key for a sub-key, e.g. "RenovationNeeds.roof".
func (f Field) Path(subKey string) string {
	return f.Name + "." + subKey
}

// HasSubKey reports whether key is declared on a nested field.
func (f Field) HasSubKey(key string) bool {
	for _, k := range f.SubKeys {
		if k == key {
			return true
		}
	}
	return false
}

func (f Field) clone() Field {
	f.SubKeys = append([]string(nil), f.SubKeys...)
	return f
}

func (f Field) validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("field name is empty")
	}
	if strings.Contains(f.Name, ".") {
		return fmt.Errorf("field %s: name must not contain '.'", f.Name)
	}
	switch f.Kind {
	case Scalar:
		if len(f.SubKeys) > 0 {
			return fmt.Errorf("field %s: scalar fields have no sub-keys", f.Name)
		}
	case Nested:
		if len(f.SubKeys) == 0 {
			return fmt.Errorf("field %s: nested fields need at least one sub-key", f.Name)
		}
		seen := make(map[string]bool, len(f.SubKeys))
		for _, k := range f.SubKeys {
			if strings.TrimSpace(k) == "" {
				return fmt.Errorf("field %s: empty sub-key", f.Name)
			}
			if seen[k] {
				return fmt.Errorf("field %s: duplicate sub-key %q", f.Name, k)
			}
			seen[k] = true
		}
	default:
		return fmt.Errorf("field %s: %s", f.Name, f.Kind)
	}
	if f.Unambiguous && (f.Kind != Scalar || f.Type != String) {
		return fmt.Errorf("field %s: only scalar string fields can be unambiguous", f.Name)
	}
	return nil
}
