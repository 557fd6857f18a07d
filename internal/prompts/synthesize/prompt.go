package synthesize

import (
	_ "embed"

	"github.com/MrPrayat/DA235X/internal/prompts"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed user.tmpl
var userPromptTmpl string

// Prompt keys
const (
	SystemPromptKey = "pipeline.synthesize.system"
	UserPromptKey   = "pipeline.synthesize.user"
)

// UserPromptData fills the user prompt template.
type UserPromptData struct {
	PageCount   int
	Definitions string
	Template    string
	Fragments   string // indented JSON array of page results
}

// RegisterPrompts registers the synthesis prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemPromptKey,
		Text:        systemPrompt,
		Description: "Synthesis system prompt",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         UserPromptKey,
		Text:        userPromptTmpl,
		Description: "Synthesis user prompt - merges page results into one record",
	})
}
