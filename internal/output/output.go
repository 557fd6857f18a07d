// Package output prints command results as YAML, JSON or aligned text.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Format defines the output format for CLI commands.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	// FormatText prints Tables as aligned columns and everything else as YAML.
	FormatText Format = "text"
)

// DefaultFormat is the default output format.
var DefaultFormat = FormatYAML

// globalFormat is set by the root command's --output flag.
var globalFormat = DefaultFormat

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return DefaultFormat, nil
	case FormatYAML, FormatJSON, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q: want yaml, json or text", s)
	}
}

// SetFormat sets the global output format.
func SetFormat(format string) error {
	f, err := ParseFormat(format)
	if err != nil {
		return err
	}
	globalFormat = f
	return nil
}

// CurrentFormat returns the current global output format.
func CurrentFormat() Format {
	return globalFormat
}

// Table is implemented by results that have a tabular text rendering.
type Table interface {
	Header() []string
	Rows() [][]string
}

// Print writes data to stdout in the configured format.
func Print(data any) error {
	return To(os.Stdout, globalFormat, data)
}

// To writes data to the given writer in the specified format.
func To(w io.Writer, format Format, data any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	case FormatText:
		if t, ok := data.(Table); ok {
			return writeTable(w, t)
		}
		return To(w, FormatYAML, data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

func writeTable(w io.Writer, t Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Header(), "\t"))
	for _, row := range t.Rows() {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// IsText returns true when output is meant for humans rather than tools.
// Commands use it to decide whether to print progress messages to stdout.
func IsText() bool {
	return globalFormat == FormatText
}
