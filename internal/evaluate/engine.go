package evaluate

import (
	"github.com/MrPrayat/DA235X/internal/records"
	"github.com/MrPrayat/DA235X/internal/schema"
)

// Row is the score of one field, one nested sub-key, or one nested parent.
type Row struct {
	Field string `json:"field" yaml:"field"`
	// Rollup marks a nested parent row, which sums its sub-key rows.
	Rollup  bool    `json:"rollup,omitempty" yaml:"rollup,omitempty"`
	Counts  Counts  `json:"counts" yaml:"counts"`
	Metrics Metrics `json:"metrics" yaml:"metrics"`
}

// Report is the result of an evaluation pass.
type Report struct {
	Records int   `json:"records" yaml:"records"`
	Rows    []Row `json:"rows" yaml:"rows"`
	// Totals sums scalar and sub-key rows; rollup rows are left out so no
	// comparison is counted twice.
	Totals Counts  `json:"totals" yaml:"totals"`
	Micro  Metrics `json:"micro" yaml:"micro"`
	// Macro averages the metrics of scalar and sub-key rows that counted
	// anything.
	Macro Metrics `json:"macro" yaml:"macro"`
}

// Row returns the row for a field or "Parent.sub" path.
func (r *Report) Row(field string) (Row, bool) {
	for _, row := range r.Rows {
		if row.Field == field {
			return row, true
		}
	}
	return Row{}, false
}

// Engine evaluates records against a schema.
type Engine struct {
	schema *schema.Schema
	policy Policy
}

// NewEngine creates an engine. Every field of the default schema is scored;
// a custom schema may exclude fields with evaluated: false.
func NewEngine(s *schema.Schema, p Policy) *Engine {
	if s == nil {
		s = schema.Default()
	}
	if p.Unambiguous == nil {
		p = NewPolicy(s.Unambiguous()...)
	}
	return &Engine{schema: s, policy: p}
}

// Evaluate scores recs. Both halves of each record are normalized first, so
// hand-edited ground truth with missing keys is handled like null.
func (e *Engine) Evaluate(recs []records.ExtractionRecord) *Report {
	counts := make(map[string]*Counts)
	get := func(key string) *Counts {
		c, ok := counts[key]
		if !ok {
			c = &Counts{}
			counts[key] = c
		}
		return c
	}

	for _, rec := range recs {
		pred := e.schema.Normalize(rec.ModelOutput)
		truth := e.schema.Normalize(rec.GroundTruth)

		for _, f := range e.schema.Fields() {
			if !f.Evaluated {
				continue
			}
			if f.Kind == schema.Nested {
				p, _ := pred[f.Name].(map[string]any)
				a, _ := truth[f.Name].(map[string]any)
				for _, k := range f.SubKeys {
					path := f.Path(k)
					o := Compare(path, p[k], a[k], e.policy)
					get(path).Add(o)
					get(f.Name).Add(o)
				}
				continue
			}
			get(f.Name).Add(Compare(f.Name, pred[f.Name], truth[f.Name], e.policy))
		}
	}

	report := &Report{Records: len(recs)}
	var leaves []Metrics
	add := func(key string, rollup bool) {
		c := get(key)
		row := Row{Field: key, Rollup: rollup, Counts: *c, Metrics: Compute(*c)}
		report.Rows = append(report.Rows, row)
		if rollup {
			return
		}
		report.Totals.Merge(*c)
		if !c.IsZero() {
			leaves = append(leaves, row.Metrics)
		}
	}
	for _, f := range e.schema.Fields() {
		if !f.Evaluated {
			continue
		}
		if f.Kind == schema.Nested {
			add(f.Name, true)
			for _, k := range f.SubKeys {
				add(f.Path(k), false)
			}
			continue
		}
		add(f.Name, false)
	}
	report.Micro = Compute(report.Totals)
	report.Macro = mean(leaves)
	return report
}
