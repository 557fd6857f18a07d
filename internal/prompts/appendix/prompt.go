package appendix

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
	SystemPromptKey = "pipeline.appendix.system"
	UserPromptKey   = "pipeline.appendix.user"
)

// UserPromptData fills the user prompt template.
type UserPromptData struct {
	Page int
}

// RegisterPrompts registers the appendix classifier prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemPromptKey,
		Text:        systemPrompt,
		Description: "Appendix classifier system prompt - one-word yes/no answer",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         UserPromptKey,
		Text:        userPromptTmpl,
		Description: "Appendix classifier user prompt",
	})
}
