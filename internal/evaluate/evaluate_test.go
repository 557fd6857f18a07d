package evaluate

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/MrPrayat/DA235X/internal/records"
	"github.com/MrPrayat/DA235X/internal/schema"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCompare(t *testing.T) {
	p := NewPolicy("CadastralDesignation", "InspectionDate")

	tests := []struct {
		name   string
		field  string
		pred   any
		actual any
		want   Outcome
	}{
		{"absent truth skipped", "CadastralDesignation", "x", nil, Skip},
		{"empty truth skipped", "SummaryInsights", "x", "  ", Skip},
		{"absent truth skipped for bool", "RenovationNeeds.roof", true, nil, Skip},
		{"absent prediction", "CadastralDesignation", nil, "Stockholm Marevik 23", FalseNegative},
		{"null string prediction", "CadastralDesignation", "null", "Stockholm Marevik 23", FalseNegative},
		{"case and space insensitive", "CadastralDesignation", " stockholm marevik 23", "Stockholm Marevik 23", TruePositive},
		{"unambiguous wrong value", "CadastralDesignation", "Stockholm Marevik 24", "Stockholm Marevik 23", FalsePositive},
		{"ambiguous wrong value", "SummaryInsights", "Byt tak", "Dränera", Both},
		{"bool match", "RenovationNeeds.roof", false, false, TruePositive},
		{"bool false predicted true", "RenovationNeeds.roof", true, false, FalsePositive},
		{"bool true predicted false", "RenovationNeeds.roof", false, true, FalseNegative},
		{"bool truth string prediction", "RenovationNeeds.roof", "maybe", true, Both},
		{"number match", "Rooms", 4.0, 4.0, TruePositive},
		{"number mismatch", "Rooms", 3.0, 4.0, Both},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.field, tt.pred, tt.actual, p); got != tt.want {
				t.Errorf("Compare(%v, %v) = %v, want %v", tt.pred, tt.actual, got, tt.want)
			}
		})
	}
}

func TestCompare_UnambiguousSingleCount(t *testing.T) {
	p := NewPolicy("InspectionDate")
	var c Counts
	c.Add(Compare("InspectionDate", "2021-04", "2021-05", p))
	if c.FP != 1 || c.FN != 0 || c.TP != 0 {
		t.Errorf("counts = %+v, want exactly one fp", c)
	}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name string
		c    Counts
		want Metrics
	}{
		{"zero", Counts{}, Metrics{}},
		{"perfect", Counts{TP: 4}, Metrics{Precision: 1, Recall: 1, F1: 1, Accuracy: 1}},
		{"mixed", Counts{TP: 6, FP: 2, FN: 4}, Metrics{Precision: 0.75, Recall: 0.6, F1: 2 * 0.75 * 0.6 / 1.35, Accuracy: 0.5}},
		{"only misses", Counts{FN: 3}, Metrics{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.c)
			if !approx(got.Precision, tt.want.Precision) || !approx(got.Recall, tt.want.Recall) ||
				!approx(got.F1, tt.want.F1) || !approx(got.Accuracy, tt.want.Accuracy) {
				t.Errorf("Compute(%+v) = %+v, want %+v", tt.c, got, tt.want)
			}
		})
	}
}

func rec(id string, pred, truth schema.Record) records.ExtractionRecord {
	return records.ExtractionRecord{PDFID: id, ModelOutput: pred, GroundTruth: truth}
}

func TestEngine_ConcreteScenarios(t *testing.T) {
	e := NewEngine(schema.Default(), Policy{})

	t.Run("case-insensitive designation", func(t *testing.T) {
		r := e.Evaluate([]records.ExtractionRecord{rec("a",
			schema.Record{"CadastralDesignation": "stockholm marevik 23"},
			schema.Record{"CadastralDesignation": "Stockholm Marevik 23"},
		)})
		row, _ := r.Row("CadastralDesignation")
		if row.Counts != (Counts{TP: 1}) {
			t.Errorf("counts = %+v, want one tp", row.Counts)
		}
	})

	t.Run("nested rollup", func(t *testing.T) {
		r := e.Evaluate([]records.ExtractionRecord{rec("a",
			schema.Record{"RenovationNeeds": map[string]any{"roof": false, "garage": false}},
			schema.Record{"RenovationNeeds": map[string]any{"roof": true, "garage": false}},
		)})
		roof, _ := r.Row("RenovationNeeds.roof")
		garage, _ := r.Row("RenovationNeeds.garage")
		parent, _ := r.Row("RenovationNeeds")
		if roof.Counts != (Counts{FN: 1}) {
			t.Errorf("roof = %+v, want one fn", roof.Counts)
		}
		if garage.Counts != (Counts{TP: 1}) {
			t.Errorf("garage = %+v, want one tp", garage.Counts)
		}
		if parent.Counts != (Counts{TP: 1, FN: 1}) || !parent.Rollup {
			t.Errorf("parent = %+v, want rollup with 1 tp and 1 fn", parent)
		}
		if r.Totals != (Counts{TP: 1, FN: 1}) {
			t.Errorf("totals = %+v, rollup must not be double counted", r.Totals)
		}
	})
}

func TestEngine_SkipRule(t *testing.T) {
	e := NewEngine(schema.Default(), Policy{})
	r := e.Evaluate([]records.ExtractionRecord{rec("a",
		schema.Record{
			"CadastralDesignation": "Solna 1",
			"InspectionDate":       "2020-01",
			"MoistureDamage":       map[string]any{"mentions_roof": true},
		},
		schema.Default().Seed(schema.SeedNull),
	)})
	if !r.Totals.IsZero() {
		t.Errorf("totals = %+v, want nothing counted against an unannotated record", r.Totals)
	}
	if r.Micro != (Metrics{}) || r.Macro != (Metrics{}) {
		t.Errorf("metrics = %+v / %+v", r.Micro, r.Macro)
	}
}

func TestEngine_RoundTrip(t *testing.T) {
	s := schema.Default()
	truth := s.Normalize(schema.Record{
		"CadastralDesignation": "Stockholm Marevik 23",
		"InspectionDate":       "2021-05",
		"MoistureDamage":       map[string]any{"mentions_roof": true, "mentions_garage": false},
		"RenovationNeeds":      map[string]any{"roof": true, "facade": false},
		"AsbestosPresence":     map[string]any{"Measured": false, "presence": false},
		"SummaryInsights":      "Byt taket inom fem år.",
	})
	pred := s.Normalize(truth)
	pred["CadastralDesignation"] = "STOCKHOLM MAREVIK 23 "

	r := NewEngine(s, Policy{}).Evaluate([]records.ExtractionRecord{rec("a", pred, truth), rec("b", pred, truth)})
	if r.Totals.TP == 0 || r.Totals.FP != 0 || r.Totals.FN != 0 {
		t.Fatalf("totals = %+v", r.Totals)
	}
	for name, m := range map[string]Metrics{"micro": r.Micro, "macro": r.Macro} {
		if m.Precision != 1 || m.Recall != 1 || m.F1 != 1 {
			t.Errorf("%s = %+v, want all 1", name, m)
		}
	}
	if row, ok := r.Row("SummaryInsights"); !ok || row.Counts != (Counts{TP: 2}) {
		t.Errorf("SummaryInsights row = %+v, present = %v, want two tp", row, ok)
	}
}

func TestEngine_SummaryInsightsScored(t *testing.T) {
	e := NewEngine(schema.Default(), Policy{})

	r := e.Evaluate([]records.ExtractionRecord{rec("a",
		schema.Record{"SummaryInsights": "Byt tak"},
		schema.Record{"SummaryInsights": "Byt tak"},
	)})
	row, ok := r.Row("SummaryInsights")
	if !ok || row.Counts != (Counts{TP: 1}) || r.Totals != (Counts{TP: 1}) {
		t.Errorf("match: row = %+v (present %v), totals = %+v", row, ok, r.Totals)
	}

	r = e.Evaluate([]records.ExtractionRecord{rec("a",
		schema.Record{"SummaryInsights": "Byt tak"},
		schema.Record{"SummaryInsights": "Dränera grunden"},
	)})
	row, _ = r.Row("SummaryInsights")
	if row.Counts != (Counts{FP: 1, FN: 1}) {
		t.Errorf("mismatch: counts = %+v, want one fp and one fn", row.Counts)
	}
}

func TestEngine_MacroVersusMicro(t *testing.T) {
	e := NewEngine(schema.Default(), Policy{})
	recs := []records.ExtractionRecord{
		rec("a", schema.Record{"CadastralDesignation": "x 1"}, schema.Record{"CadastralDesignation": "x 1"}),
		rec("b", schema.Record{"CadastralDesignation": "x 2"}, schema.Record{"CadastralDesignation": "x 2"}),
		rec("c", schema.Record{"CadastralDesignation": "x 3"}, schema.Record{"CadastralDesignation": "x 3"}),
		rec("d", schema.Record{}, schema.Record{"InspectionDate": "2020-01"}),
	}
	r := e.Evaluate(recs)
	// Micro: 3 tp, 1 fn. Macro: mean of designation (P=R=1) and date (P=R=0).
	if !approx(r.Micro.Recall, 0.75) {
		t.Errorf("micro recall = %v, want 0.75", r.Micro.Recall)
	}
	if !approx(r.Macro.Recall, 0.5) || !approx(r.Macro.Precision, 0.5) {
		t.Errorf("macro = %+v, want P=R=0.5", r.Macro)
	}
}

func TestEngine_RowOrder(t *testing.T) {
	r := NewEngine(schema.Default(), Policy{}).Evaluate(nil)
	var got []string
	for _, row := range r.Rows {
		got = append(got, row.Field)
	}
	want := []string{
		"CadastralDesignation", "InspectionDate",
		"MoistureDamage", "MoistureDamage.mentions_garage",
	}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("rows = %v, want prefix %v", got, want)
		}
	}
}

func TestRunLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "evaluation_log.csv")
	l := NewRunLog(path)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	report := &Report{Totals: Counts{TP: 6, FP: 2, FN: 4}}
	report.Micro = Compute(report.Totals)

	if err := l.Append(NewRun("gpt-4o baseline", "first, with comma", report, base)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := l.Append(NewRun("second", "", &Report{Totals: Counts{TP: 1}, Micro: Compute(Counts{TP: 1})}, base.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("log has %d lines, want header plus 2", len(lines))
	}
	if lines[0] != strings.Join(RunLogHeader, ",") {
		t.Errorf("header = %q", lines[0])
	}

	runs, err := l.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs", len(runs))
	}
	if runs[0].Name != "gpt-4o baseline" || runs[0].Notes != "first, with comma" {
		t.Errorf("run = %+v", runs[0])
	}
	if runs[0].Counts != (Counts{TP: 6, FP: 2, FN: 4}) || !approx(runs[0].Metrics.Accuracy, 0.5) {
		t.Errorf("run counts = %+v metrics = %+v", runs[0].Counts, runs[0].Metrics)
	}
}

func TestReadRuns_LegacyColumns(t *testing.T) {
	csvData := "run_name,timestamp,true_positives,false_positives,false_negatives\n" +
		"old,2024-11-02 09:30:00,3,1,0\n"
	runs, err := ReadRuns(strings.NewReader(csvData))
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || !approx(runs[0].Metrics.Precision, 0.75) || runs[0].Metrics.Recall != 1 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestReadRuns_ByteOrderMark(t *testing.T) {
	csvData := "\uFEFFtimestamp,run_name,true_positives,false_positives,false_negatives\n" +
		"2025-01-02T10:00:00Z,excel-saved,4,0,4\n"
	runs, err := ReadRuns(strings.NewReader(csvData))
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Timestamp.IsZero() || !approx(runs[0].Metrics.Recall, 0.5) {
		t.Errorf("runs = %+v", runs)
	}
}

func TestSummarize(t *testing.T) {
	day := 24 * time.Hour
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	mk := func(name string, offset time.Duration, f1 float64) Run {
		return Run{Name: name, Timestamp: base.Add(offset), Metrics: Metrics{F1: f1, Precision: f1, Recall: f1}}
	}
	runs := []Run{
		mk("a", 0, 0.5),
		mk("b", 2*day, 0.8),
		mk("c", 8*day, 0.6),
		mk("d", 10*day, 0.7),
		mk("e", 11*day, 0.8),
	}

	s := Summarize(runs, 2, 5)
	if s.Runs != 5 || len(s.Recent) != 2 || s.Recent[0].Name != "d" {
		t.Errorf("recent = %+v", s.Recent)
	}
	if s.Best == nil || s.Best.Name != "b" {
		t.Errorf("best = %+v, want earliest of tied runs", s.Best)
	}
	if s.RollingRuns != 3 || !approx(s.Rolling.F1, 0.7) {
		t.Errorf("rolling = %+v over %d runs, want 0.7 over 3", s.Rolling, s.RollingRuns)
	}

	if empty := Summarize(nil, 10, 5); empty.Best != nil || empty.Runs != 0 {
		t.Errorf("empty summary = %+v", empty)
	}
}

func TestSanity(t *testing.T) {
	s := schema.Default()
	recs := []records.ExtractionRecord{
		rec("b", schema.Record{"CadastralDesignation": "Solna 2", "InspectionDate": "2020-01"},
			schema.Record{"CadastralDesignation": "solna 2", "InspectionDate": "2020-02"}),
		rec("a", schema.Record{"CadastralDesignation": "Täby 9"},
			schema.Record{"CadastralDesignation": "Täby 8", "InspectionDate": "2021-01"}),
		rec("c", schema.Record{"SummaryInsights": "x"}, schema.Record{"SummaryInsights": "y"}),
	}
	got := Sanity(s, NewPolicy(s.Unambiguous()...), recs)
	if len(got) != 2 {
		t.Fatalf("mismatches = %+v, want 2", got)
	}
	if got[0].DocumentID != "a" || got[0].Field != "CadastralDesignation" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].DocumentID != "b" || got[1].Field != "InspectionDate" {
		t.Errorf("second = %+v", got[1])
	}
}

func TestWriteXLSX(t *testing.T) {
	s := schema.Default()
	r := NewEngine(s, Policy{}).Evaluate([]records.ExtractionRecord{rec("a",
		schema.Record{"CadastralDesignation": "x"}, schema.Record{"CadastralDesignation": "x"})})
	run := NewRun("xlsx", "", r, time.Now())

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, r, &run); err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(fieldsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != len(r.Rows)+1 || rows[1][0] != "CadastralDesignation" {
		t.Errorf("fields sheet has %d rows, first = %v", len(rows), rows[1])
	}
	name, _ := f.GetCellValue(summarySheet, "B1")
	if name != "xlsx" {
		t.Errorf("summary run name = %q", name)
	}
}
