package extract

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
	SystemPromptKey = "pipeline.extract.system"
	UserPromptKey   = "pipeline.extract.user"
)

// UserPromptData fills the user prompt template.
type UserPromptData struct {
	Page        int    // 1-based page number
	Definitions string // schema.Definitions()
	Template    string // schema.Template()
}

// RegisterPrompts registers the page extraction prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemPromptKey,
		Text:        systemPrompt,
		Description: "Page extraction system prompt",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         UserPromptKey,
		Text:        userPromptTmpl,
		Description: "Page extraction user prompt - field definitions and the exact JSON template",
	})
}
