package prompts

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"text/template"
)

// fieldRef matches {{.Page}}, {{ .Definitions }} and {{.Doc.ID}}.
var fieldRef = regexp.MustCompile(`\{\{-?\s*\.([a-zA-Z_][a-zA-Z0-9_.]*)\s*-?\}\}`)

// ExtractVariables returns the sorted, de-duplicated field references of a
// prompt template. "Page {{.Page}} of {{.Doc.ID}}" yields [Doc.ID Page].
func ExtractVariables(text string) []string {
	seen := make(map[string]bool)
	var vars []string
	for _, m := range fieldRef.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			vars = append(vars, m[1])
		}
	}
	sort.Strings(vars)
	return vars
}

// HashText returns the hex SHA256 of a prompt text. Page logs store it so a
// record can be traced back to the wording that produced it.
func HashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// parse compiles a prompt. Unknown keys in map data are errors rather than
// "<no value>" silently reaching the model.
func parse(key, text string) (*template.Template, error) {
	tmpl, err := template.New(key).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt %s: %w", key, err)
	}
	return tmpl, nil
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// CheckOverride reports why an override cannot stand in for its embedded
// default: a template syntax error, or a variable the pipeline never
// supplies for that key.
func CheckOverride(o *Override, embedded EmbeddedPrompt) error {
	if _, err := parse(o.Key, o.Text); err != nil {
		return err
	}
	for _, v := range ExtractVariables(o.Text) {
		if !slices.Contains(embedded.Variables, v) {
			return fmt.Errorf("prompt %s uses {{.%s}}, available: %v", o.Key, v, embedded.Variables)
		}
	}
	return nil
}
