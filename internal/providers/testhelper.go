package providers

import (
	"os"
)

// TestConfig holds provider API keys loaded from environment variables.
// This allows live tests to use the same configuration pattern as production.
type TestConfig struct {
	OpenAIAPIKey     string
	GeminiAPIKey     string
	MistralAPIKey    string
	OpenRouterAPIKey string
}

// LoadTestConfig loads provider API keys from environment variables.
// Returns a TestConfig with whatever keys are available.
func LoadTestConfig() TestConfig {
	return TestConfig{
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		MistralAPIKey:    os.Getenv("MISTRAL_API_KEY"),
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
	}
}

func (c TestConfig) HasOpenAI() bool     { return c.OpenAIAPIKey != "" }
func (c TestConfig) HasGemini() bool     { return c.GeminiAPIKey != "" }
func (c TestConfig) HasMistral() bool    { return c.MistralAPIKey != "" }
func (c TestConfig) HasOpenRouter() bool { return c.OpenRouterAPIKey != "" }

// HasAnyLLM returns true if any provider is configured.
func (c TestConfig) HasAnyLLM() bool {
	return c.HasOpenAI() || c.HasGemini() || c.HasMistral() || c.HasOpenRouter()
}

// ToRegistryConfig converts test config to a RegistryConfig for the provider registry.
// Only includes providers that have API keys configured.
func (c TestConfig) ToRegistryConfig() RegistryConfig {
	cfg := RegistryConfig{
		LLMProviders: make(map[string]LLMProviderConfig),
	}
	add := func(name, typ, key string) {
		if key == "" {
			return
		}
		cfg.LLMProviders[name] = LLMProviderConfig{
			Type:      typ,
			APIKey:    key,
			RateLimit: 60,
			Enabled:   true,
		}
	}
	add("openai", OpenAIName, c.OpenAIAPIKey)
	add("gemini", GeminiName, c.GeminiAPIKey)
	add("mistral", "mistral", c.MistralAPIKey)
	add("openrouter", OpenRouterName, c.OpenRouterAPIKey)
	return cfg
}
