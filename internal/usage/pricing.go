package usage

import (
	"log/slog"
	"sort"
	"strings"
)

// Price is USD per one million tokens.
type Price struct {
	Input       float64 `mapstructure:"input" yaml:"input" json:"input"`
	CachedInput float64 `mapstructure:"cached_input" yaml:"cached_input" json:"cached_input"`
	Output      float64 `mapstructure:"output" yaml:"output" json:"output"`
}

// Pricing maps model names to prices.
type Pricing map[string]Price

// DefaultPricing returns the built-in price table.
func DefaultPricing() Pricing {
	return Pricing{
		"gpt-4.1":                        {Input: 2.00, CachedInput: 0.50, Output: 8.00},
		"gpt-4o":                         {Input: 2.25, CachedInput: 1.25, Output: 10.00},
		"gpt-o3":                         {Input: 10.00, CachedInput: 2.50, Output: 40.00},
		"gemini-2.5-flash-preview-04-17": {Input: 0.15, CachedInput: 0, Output: 0.6},
		"gemini-2.0-flash":               {Input: 0.10, CachedInput: 0, Output: 0.4},
		"pixtral-large-latest":           {Input: 2, CachedInput: 0, Output: 6},
	}
}

// Merge returns a copy of p with overrides applied on top.
func (p Pricing) Merge(overrides Pricing) Pricing {
	out := make(Pricing, len(p)+len(overrides))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Lookup finds the price for model. An exact match wins; otherwise the
// longest known name that prefixes model is used, so dated snapshots such
// as "gpt-4o-2024-08-06" resolve to "gpt-4o".
func (p Pricing) Lookup(model string) (Price, bool) {
	if price, ok := p[model]; ok {
		return price, true
	}
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for _, name := range names {
		if strings.HasPrefix(model, name) {
			return p[name], true
		}
	}
	return Price{}, false
}

// Cost returns the USD cost of c under model's price. Cached tokens are
// billed at the cached rate and the remaining prompt tokens at the input
// rate. An unknown model costs 0 and logs a warning.
func (p Pricing) Cost(model string, c Counter) float64 {
	price, ok := p.Lookup(model)
	if !ok {
		if c.Total() > 0 {
			slog.Warn("no price for model, cost counted as 0", "model", model)
		}
		return 0
	}
	cached := min(c.CachedTokens, c.PromptTokens)
	uncached := c.PromptTokens - cached
	return (float64(uncached)*price.Input +
		float64(cached)*price.CachedInput +
		float64(c.CompletionTokens)*price.Output) / 1_000_000
}
