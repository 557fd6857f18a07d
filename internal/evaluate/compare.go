// Package evaluate scores model output against hand-labeled ground truth.
//
// Every (record, field) pair, and every nested sub-key, is classified as a
// true positive, false positive, false negative, both, or skipped. Counts
// are aggregated per field, per "Parent.sub" path and per nested parent,
// and turned into precision, recall, F1 and accuracy.
package evaluate

import (
	"reflect"
	"strings"
)

// Outcome is the classification of one comparison.
type Outcome int

const (
	// Skip means the ground truth is absent; nothing is counted.
	Skip Outcome = iota
	TruePositive
	FalsePositive
	FalseNegative
	// Both counts one false positive and one false negative.
	Both
)

func (o Outcome) String() string {
	switch o {
	case Skip:
		return "skip"
	case TruePositive:
		return "tp"
	case FalsePositive:
		return "fp"
	case FalseNegative:
		return "fn"
	case Both:
		return "fp+fn"
	default:
		return "unknown"
	}
}

// Policy holds the counting rules that vary per field.
type Policy struct {
	// Unambiguous lists string fields where a wrong answer is only a false
	// positive. Keys are field names or "Parent.sub" paths.
	Unambiguous map[string]bool
}

// NewPolicy builds a policy from a list of unambiguous field names.
func NewPolicy(unambiguous ...string) Policy {
	p := Policy{Unambiguous: make(map[string]bool, len(unambiguous))}
	for _, name := range unambiguous {
		if name = strings.TrimSpace(name); name != "" {
			p.Unambiguous[name] = true
		}
	}
	return p
}

func (p Policy) isUnambiguous(field string) bool {
	if p.Unambiguous[field] {
		return true
	}
	if parent, _, ok := strings.Cut(field, "."); ok {
		return p.Unambiguous[parent]
	}
	return false
}

// Compare classifies one prediction against its ground truth.
//
//   - absent ground truth: Skip
//   - absent prediction: FalseNegative
//   - equal after trimming and lower-casing strings: TruePositive
//   - boolean truth false, predicted true: FalsePositive
//   - boolean truth true, predicted false: FalseNegative
//   - wrong non-null answer to an unambiguous string field: FalsePositive
//   - any other mismatch: Both
func Compare(field string, pred, actual any, p Policy) Outcome {
	actual = normalize(actual)
	if actual == nil {
		return Skip
	}
	pred = normalize(pred)
	if pred == nil {
		return FalseNegative
	}
	if reflect.DeepEqual(pred, actual) {
		return TruePositive
	}

	if a, ok := actual.(bool); ok {
		if b, ok := pred.(bool); ok {
			if !a && b {
				return FalsePositive
			}
			return FalseNegative
		}
		return Both
	}
	if _, ok := actual.(string); ok && p.isUnambiguous(field) {
		return FalsePositive
	}
	return Both
}

// normalize trims and lower-cases strings. Empty strings and "null" are
// absent.
func normalize(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "null" {
		return nil
	}
	return s
}
