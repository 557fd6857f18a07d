// Package prompts provides prompt management with embedded defaults and
// on-disk overrides.
//
// Embedded .tmpl files in code are the source of truth for defaults. A file
// named <key>.tmpl in the override directory (usually <home>/prompts)
// replaces the default for that key, so prompt wording can be iterated on
// without rebuilding. Every resolved prompt carries the SHA256 of its text;
// page logs record it so results can be traced to the exact prompt version.
package prompts

// EmbeddedPrompt represents a prompt loaded from an embedded .tmpl file.
type EmbeddedPrompt struct {
	Key         string   // Hierarchical key: pipeline.extract.user
	Text        string   // The prompt text (Go template)
	Description string   // Human-readable description
	Variables   []string // Extracted template variables
	Hash        string   // SHA256 hash of the text for change detection
}

// Override is a prompt text found in the override directory.
type Override struct {
	Key  string `json:"key" yaml:"key"`
	Text string `json:"text" yaml:"text"`
	Path string `json:"path" yaml:"path"`
}

// ResolvedPrompt is the result of resolving a prompt key.
type ResolvedPrompt struct {
	Key        string   `json:"key" yaml:"key"`
	Text       string   `json:"text" yaml:"text"`
	Variables  []string `json:"variables,omitempty" yaml:"variables,omitempty"`
	IsOverride bool     `json:"is_override" yaml:"is_override"`
	Hash       string   `json:"hash" yaml:"hash"`
}
