// Package output renders reports as JSON, text or an agent prompt, and
// builds the process logger.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

// Output formats.
const (
	FormatJSON   = "json"
	FormatText   = "text"
	FormatPrompt = "prompt"
)

// Formats lists the accepted --format values.
func Formats() []string {
	return []string{FormatJSON, FormatText, FormatPrompt}
}

// WriteJSON serializes the report as indented JSON.
// If path is "-" or empty, writes to stdout.
func WriteJSON(report *model.Report, path string) error {
	return WriteFile(report, path, FormatJSON)
}

// WriteFile renders the report in the given format to path.
// If path is "-" or empty, writes to stdout.
func WriteFile(report *model.Report, path, format string) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return Write(w, report, format)
}

// Write renders the report to w.
func Write(w io.Writer, report *model.Report, format string) error {
	switch format {
	case "", FormatJSON:
		return EncodeJSON(w, report)
	case FormatText:
		return WriteText(w, report)
	case FormatPrompt:
		_, err := io.WriteString(w, GeneratePrompt(report))
		return err
	default:
		return fmt.Errorf("unknown output format %q, want one of %v", format, Formats())
	}
}

// EncodeJSON writes v as indented JSON without HTML escaping, so SQL text
// with < and > stays readable.
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}
