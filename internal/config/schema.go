package config

import (
	"time"

	"github.com/MrPrayat/DA235X/internal/usage"
)

// Config holds besiktning configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Providers  map[string]ProviderCfg `mapstructure:"providers" yaml:"providers"`
	Extraction ExtractionCfg          `mapstructure:"extraction" yaml:"extraction"`
	Retry      RetryCfg               `mapstructure:"retry" yaml:"retry"`
	Evaluation EvaluationCfg          `mapstructure:"evaluation" yaml:"evaluation"`
	// Pricing overrides or extends the built-in price table, USD per 1M tokens.
	Pricing    map[string]usage.Price `mapstructure:"pricing" yaml:"pricing,omitempty"`
	SchemaFile string                 `mapstructure:"schema_file" yaml:"schema_file,omitempty"`
	LogLevel   string                 `mapstructure:"log_level" yaml:"log_level"`
}

// ProviderCfg configures one vision/text model provider.
type ProviderCfg struct {
	Type           string `mapstructure:"type" yaml:"type"`                       // "openai", "mistral", "gemini", "openrouter", "mock"
	Model          string `mapstructure:"model" yaml:"model"`                     // Default model name
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`                 // Supports ${ENV_VAR} syntax
	BaseURL        string `mapstructure:"base_url" yaml:"base_url,omitempty"`     // Optional endpoint override
	RateLimit      int    `mapstructure:"rate_limit" yaml:"rate_limit"`           // Requests per minute
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"` // HTTP timeout
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
}

// ExtractionCfg controls the extraction pipeline.
type ExtractionCfg struct {
	// Provider runs page extraction. Empty ClassifierProvider and
	// SynthesisProvider fall back to it.
	Provider           string `mapstructure:"provider" yaml:"provider"`
	Model              string `mapstructure:"model" yaml:"model,omitempty"`
	ClassifierProvider string `mapstructure:"classifier_provider" yaml:"classifier_provider,omitempty"`
	ClassifierModel    string `mapstructure:"classifier_model" yaml:"classifier_model,omitempty"`
	// DisableClassifier extracts every page; no appendix cutoff.
	DisableClassifier bool   `mapstructure:"disable_classifier" yaml:"disable_classifier"`
	SynthesisProvider string `mapstructure:"synthesis_provider" yaml:"synthesis_provider,omitempty"`
	SynthesisModel    string `mapstructure:"synthesis_model" yaml:"synthesis_model,omitempty"`
	// Strategy is "first" (deterministic) or "llm".
	Strategy            string `mapstructure:"strategy" yaml:"strategy"`
	DPI                 int    `mapstructure:"dpi" yaml:"dpi"`
	MinPages            int    `mapstructure:"min_pages" yaml:"min_pages"`
	Workers             int    `mapstructure:"workers" yaml:"workers"`
	Lookahead           int    `mapstructure:"lookahead" yaml:"lookahead"`
	RenderConcurrency   int    `mapstructure:"render_concurrency" yaml:"render_concurrency"`
	SkipTextPDFs        bool   `mapstructure:"skip_text_pdfs" yaml:"skip_text_pdfs"`
	TextThreshold       int    `mapstructure:"text_threshold" yaml:"text_threshold"`
	FetchTimeoutSeconds int    `mapstructure:"fetch_timeout_seconds" yaml:"fetch_timeout_seconds"`
	// NoRepair disables the single re-ask after a malformed page answer.
	NoRepair bool `mapstructure:"no_repair" yaml:"no_repair"`
	// TraceCalls appends every model call to logs/llm_calls.jsonl.
	TraceCalls bool `mapstructure:"trace_calls" yaml:"trace_calls"`
}

// RetryCfg is the retry policy for model calls and fetches.
type RetryCfg struct {
	Attempts         int     `mapstructure:"attempts" yaml:"attempts"`
	BaseDelaySeconds float64 `mapstructure:"base_delay_seconds" yaml:"base_delay_seconds"`
	MaxDelaySeconds  float64 `mapstructure:"max_delay_seconds" yaml:"max_delay_seconds"`
	JitterSeconds    float64 `mapstructure:"jitter_seconds" yaml:"jitter_seconds"`
}

// EvaluationCfg controls scoring and ground-truth seeding.
type EvaluationCfg struct {
	// Unambiguous overrides the schema's unambiguous field list when set.
	Unambiguous []string `mapstructure:"unambiguous" yaml:"unambiguous,omitempty"`
	// SeedPolicy is "null" or "booleans_false".
	SeedPolicy string `mapstructure:"seed_policy" yaml:"seed_policy"`
	// RunLog is relative to the home directory unless absolute.
	RunLog string `mapstructure:"run_log" yaml:"run_log"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderCfg{
			"openai": {
				Type:           "openai",
				Model:          "gpt-4o",
				APIKey:         "${OPENAI_API_KEY}",
				RateLimit:      500,
				TimeoutSeconds: 120,
				Enabled:        true,
			},
			"gemini": {
				Type:    "gemini",
				Model:   "gemini-2.0-flash",
				APIKey:  "${GEMINI_API_KEY}",
				Enabled: true,
			},
			"mistral": {
				Type:           "mistral",
				Model:          "pixtral-large-latest",
				APIKey:         "${MISTRAL_API_KEY}",
				RateLimit:      60,
				TimeoutSeconds: 120,
				Enabled:        true,
			},
			"openrouter": {
				Type:           "openrouter",
				Model:          "openai/gpt-4o",
				APIKey:         "${OPENROUTER_API_KEY}",
				TimeoutSeconds: 120,
				Enabled:        false,
			},
		},
		Extraction: ExtractionCfg{
			Provider:            "openai",
			Strategy:            "first",
			DPI:                 200,
			MinPages:            5,
			Workers:             1,
			Lookahead:           1,
			RenderConcurrency:   4,
			SkipTextPDFs:        false,
			TextThreshold:       5000,
			FetchTimeoutSeconds: 60,
		},
		Retry: RetryCfg{
			Attempts:         5,
			BaseDelaySeconds: 2,
			MaxDelaySeconds:  60,
			JitterSeconds:    1,
		},
		Evaluation: EvaluationCfg{
			SeedPolicy: "null",
			RunLog:     "logs/evaluation_log.csv",
		},
		LogLevel: "info",
	}
}

// GetProvider returns a provider config by name.
func (c *Config) GetProvider(name string) (ProviderCfg, bool) {
	cfg, ok := c.Providers[name]
	return cfg, ok
}

// EnabledProviders returns all enabled providers.
func (c *Config) EnabledProviders() map[string]ProviderCfg {
	result := make(map[string]ProviderCfg)
	for name, cfg := range c.Providers {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// Seconds converts a fractional seconds setting to a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
