package schema

import (
	"fmt"
	"strings"
)

// Definitions renders one `- "Name": description` line per field, with the
// allowed sub-keys of nested fields listed underneath.
func (s *Schema) Definitions() string {
	var b strings.Builder
	for i, f := range s.fields {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %q: %s", f.Name, f.Description)
		if f.Kind == Nested {
			for _, k := range f.SubKeys {
				fmt.Fprintf(&b, "\n    - %q: %s", k, f.Type)
			}
		}
	}
	return b.String()
}

// Template renders the exact JSON shape the model must answer with.
func (s *Schema) Template() string {
	var b strings.Builder
	b.WriteString("{\n")
	for i, f := range s.fields {
		fmt.Fprintf(&b, "  %q: ", f.Name)
		if f.Kind == Nested {
			b.WriteString("{")
			for j, k := range f.SubKeys {
				if j > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%q: %s", k, placeholder(f.Type))
			}
			b.WriteString("}")
		} else {
			b.WriteString(placeholder(f.Type))
		}
		if i < len(s.fields)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("}")
	return b.String()
}

func placeholder(t ValueType) string {
	if t == Bool {
		return "false"
	}
	return "null"
}
