package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// descriptions documents config keys. Provider keys are described by their
// last segment.
var descriptions = map[string]string{
	"extraction.provider":              "Provider used for page extraction",
	"extraction.model":                 "Model override for page extraction (default: the provider's model)",
	"extraction.classifier_provider":   "Provider used for appendix classification (default: extraction.provider)",
	"extraction.classifier_model":      "Model override for appendix classification",
	"extraction.disable_classifier":    "Extract every page without looking for the appendix",
	"extraction.synthesis_provider":    "Provider used by the llm synthesis strategy (default: extraction.provider)",
	"extraction.synthesis_model":       "Model override for llm synthesis",
	"extraction.strategy":              "How page fragments are combined: first or llm",
	"extraction.dpi":                   "Page render resolution",
	"extraction.min_pages":             "Documents with fewer pages are skipped as too short",
	"extraction.workers":               "Documents processed concurrently",
	"extraction.lookahead":             "Pages rendered ahead of the page being processed",
	"extraction.render_concurrency":    "Maximum concurrent page renders per process",
	"extraction.skip_text_pdfs":        "Skip documents with an embedded text layer",
	"extraction.text_threshold":        "Characters of substantial text that mark a text PDF",
	"extraction.fetch_timeout_seconds": "HTTP timeout for PDF downloads",
	"extraction.no_repair":             "Do not re-ask the model after a malformed page answer",
	"extraction.trace_calls":           "Append every model call to logs/llm_calls.jsonl",
	"retry.attempts":                   "Total attempts per model call or fetch",
	"retry.base_delay_seconds":         "First retry delay, doubled on every retry",
	"retry.max_delay_seconds":          "Upper bound of a single retry delay",
	"retry.jitter_seconds":             "Random delay added to every retry",
	"evaluation.unambiguous":           "Fields where a wrong answer counts only as a false positive",
	"evaluation.seed_policy":           "Ground-truth placeholder values: null or booleans_false",
	"evaluation.run_log":               "Evaluation run log, relative to the home directory",
	"pricing":                          "Per-model price overrides in USD per 1M tokens",
	"schema_file":                      "YAML or JSON file replacing the built-in field schema",
	"log_level":                        "debug, info, warn or error",
}

var providerDescriptions = map[string]string{
	"type":            "Provider type: openai, mistral, gemini, openrouter or mock",
	"model":           "Default model for this provider",
	"api_key":         "API key (supports ${ENV_VAR})",
	"base_url":        "Endpoint override",
	"rate_limit":      "Requests per minute, 0 = unlimited",
	"timeout_seconds": "HTTP timeout in seconds",
	"enabled":         "Whether the provider is registered",
}

// Describe returns the documentation of a config key, or "".
func Describe(key string) string {
	if d, ok := descriptions[key]; ok {
		return d
	}
	if rest, ok := strings.CutPrefix(key, "providers."); ok {
		if _, field, ok := strings.Cut(rest, "."); ok {
			return providerDescriptions[field]
		}
	}
	if strings.HasPrefix(key, "pricing.") {
		return descriptions["pricing"]
	}
	return ""
}

// DefaultEntries returns the default configuration entries sorted by key.
func DefaultEntries() []Entry {
	flat, err := Flatten(DefaultConfig())
	if err != nil {
		panic(err) // DefaultConfig always marshals
	}
	entries := make([]Entry, 0, len(flat))
	for k, v := range flat {
		entries = append(entries, Entry{Key: k, Value: v, Description: Describe(k)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

// GetDefault returns the default value for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// ResetToDefault resets a config key to its default value.
// Returns ErrNoDefault if no default exists for the key.
func ResetToDefault(store Store, key string) error {
	def := GetDefault(key)
	if def == nil {
		return fmt.Errorf("%w for key %q", ErrNoDefault, key)
	}
	return store.Set(key, def.Value)
}
