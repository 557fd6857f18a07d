package schema

import (
	"fmt"
	"strings"
)

// SeedPolicy controls the placeholder values of a freshly seeded ground truth.
type SeedPolicy string

const (
	// SeedNull leaves every value null, so unannotated fields are skipped
	// during evaluation.
	SeedNull SeedPolicy = "null"
	// SeedBooleansFalse seeds boolean values with false and strings with null.
	SeedBooleansFalse SeedPolicy = "booleans_false"
)

// ParseSeedPolicy parses a policy name. Empty means SeedNull.
func ParseSeedPolicy(s string) (SeedPolicy, error) {
	switch SeedPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SeedNull:
		return SeedNull, nil
	case SeedBooleansFalse:
		return SeedBooleansFalse, nil
	default:
		return "", fmt.Errorf("unknown seed policy: %q", s)
	}
}

// Normalize reshapes raw into the canonical record shape: every field is
// present, nested fields carry exactly their declared sub-keys, and anything
// missing or unreadable becomes nil. It never fails and
// Normalize(Normalize(x)) == Normalize(x).
func (s *Schema) Normalize(raw any) Record {
	obj := asObject(raw)
	out := make(Record, len(s.fields))
	for _, f := range s.fields {
		v := obj[f.Name]
		if f.Kind == Nested {
			sub := asObject(v)
			nested := make(map[string]any, len(f.SubKeys))
			for _, k := range f.SubKeys {
				nested[k] = cleanValue(f.Type, sub[k])
			}
			out[f.Name] = nested
			continue
		}
		out[f.Name] = cleanValue(f.Type, v)
	}
	return out
}

// Seed returns a schema-shaped ground truth filled according to policy.
func (s *Schema) Seed(policy SeedPolicy) Record {
	out := make(Record, len(s.fields))
	for _, f := range s.fields {
		if f.Kind == Nested {
			nested := make(map[string]any, len(f.SubKeys))
			for _, k := range f.SubKeys {
				nested[k] = seedValue(f.Type, policy)
			}
			out[f.Name] = nested
			continue
		}
		out[f.Name] = seedValue(f.Type, policy)
	}
	return out
}

// FillBooleans returns a normalized copy of rec where null boolean values are
// replaced with false. String values are left alone.
func (s *Schema) FillBooleans(rec Record) Record {
	out := s.Normalize(rec)
	for _, f := range s.fields {
		if f.Type != Bool {
			continue
		}
		if f.Kind == Nested {
			nested := out[f.Name].(map[string]any)
			for k, v := range nested {
				if v == nil {
					nested[k] = false
				}
			}
			continue
		}
		if out[f.Name] == nil {
			out[f.Name] = false
		}
	}
	return out
}

func seedValue(t ValueType, policy SeedPolicy) any {
	if policy == SeedBooleansFalse && t == Bool {
		return false
	}
	return nil
}

func asObject(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case Record:
		return m
	default:
		return nil
	}
}

// cleanValue maps the assorted ways a model says "unknown" onto nil.
func cleanValue(t ValueType, v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		trimmed := strings.TrimSpace(x)
		if trimmed == "" || strings.EqualFold(trimmed, "null") {
			return nil
		}
		if t == Bool {
			switch strings.ToLower(trimmed) {
			case "true", "yes":
				return true
			case "false", "no":
				return false
			}
		}
		return trimmed
	case bool:
		// A string field answered with false means the value was not found.
		if t == String && !x {
			return nil
		}
		return x
	case map[string]any, []any:
		if t == Bool {
			return nil
		}
		return x
	default:
		return x
	}
}
