package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type tally struct {
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Failed    int `json:"failed" yaml:"failed"`
}

type fieldTable [][]string

func (fieldTable) Header() []string  { return []string{"FIELD", "F1"} }
func (t fieldTable) Rows() [][]string { return t }

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatYAML, false},
		{"JSON", FormatJSON, false},
		{"text", FormatText, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestTo(t *testing.T) {
	data := tally{Succeeded: 3, Failed: 1}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := To(&buf, FormatJSON, data); err != nil {
			t.Fatal(err)
		}
		var got tally
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil || got != data {
			t.Errorf("json output = %s", buf.String())
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := To(&buf, FormatYAML, data); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "succeeded: 3") {
			t.Errorf("yaml output = %s", buf.String())
		}
	})

	t.Run("text table", func(t *testing.T) {
		var buf bytes.Buffer
		table := fieldTable{{"CadastralDesignation", "1.0000"}, {"RenovationNeeds", "0.5000"}}
		if err := To(&buf, FormatText, table); err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 3 || !strings.HasPrefix(lines[0], "FIELD") {
			t.Fatalf("table output = %q", buf.String())
		}
		if strings.Index(lines[1], "1.0000") != strings.Index(lines[2], "0.5000") {
			t.Errorf("columns not aligned:\n%s", buf.String())
		}
	})

	t.Run("text falls back to yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := To(&buf, FormatText, data); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "failed: 1") {
			t.Errorf("output = %s", buf.String())
		}
	})
}
