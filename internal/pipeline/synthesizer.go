package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrPrayat/DA235X/internal/schema"
	"github.com/MrPrayat/DA235X/internal/usage"
)

// Strategy names a synthesis strategy.
type Strategy string

const (
	StrategyFirstWins Strategy = "first"
	StrategyLLM       Strategy = "llm"
)

// ParseStrategy parses a strategy name. Empty means StrategyFirstWins.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyFirstWins, "first-wins", "deterministic":
		return StrategyFirstWins, nil
	case StrategyLLM:
		return StrategyLLM, nil
	default:
		return "", fmt.Errorf("unknown synthesis strategy: %q", s)
	}
}

// Synthesizer merges the ordered fragments of one document into a single
// record. The result is normalized by the caller.
type Synthesizer interface {
	Synthesize(ctx context.Context, frags []Fragment) (schema.Record, usage.Counter, error)
	Strategy() Strategy
}

// FirstWins is the deterministic merge. For every value it walks the
// fragments in page order and keeps the first one that says something:
// a non-empty string or true. A false is kept only when no page says true,
// so a page that does not mention the roof cannot hide a later page that
// does. Error fragments are ignored.
type FirstWins struct {
	Schema *schema.Schema
}

// NewFirstWins creates the deterministic synthesizer.
func NewFirstWins(s *schema.Schema) *FirstWins {
	if s == nil {
		s = schema.Default()
	}
	return &FirstWins{Schema: s}
}

func (*FirstWins) Strategy() Strategy { return StrategyFirstWins }

// Synthesize merges frags. It makes no calls and never fails.
func (m *FirstWins) Synthesize(_ context.Context, frags []Fragment) (schema.Record, usage.Counter, error) {
	out := make(schema.Record, m.Schema.Len())
	for _, f := range m.Schema.Fields() {
		if f.Kind == schema.Nested {
			nested := make(map[string]any, len(f.SubKeys))
			for _, k := range f.SubKeys {
				nested[k] = firstValue(frags, func(r schema.Record) any {
					sub, _ := r[f.Name].(map[string]any)
					return sub[k]
				})
			}
			out[f.Name] = nested
			continue
		}
		out[f.Name] = firstValue(frags, func(r schema.Record) any { return r[f.Name] })
	}
	return out, usage.Counter{}, nil
}

// firstValue returns the first non-empty value in page order. A page's false
// only says that page mentions nothing, so a later true wins over it.
func firstValue(frags []Fragment, get func(schema.Record) any) any {
	var fallback any
	for _, frag := range frags {
		if frag.IsError() || frag.Values == nil {
			continue
		}
		v := get(frag.Values)
		if isEmpty(v) {
			continue
		}
		if b, ok := v.(bool); ok && !b {
			if fallback == nil {
				fallback = v
			}
			continue
		}
		return v
	}
	return fallback
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(x)
		return s == "" || strings.EqualFold(s, "null")
	case map[string]any:
		return len(x) == 0
	case []any:
		return len(x) == 0
	}
	return false
}
