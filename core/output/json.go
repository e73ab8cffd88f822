package output

import (
	"encoding/json"
	"io"
)

// JSONFormatter writes the report as JSON
type JSONFormatter struct {
	// Indent is the per-level indent; empty writes compact JSON
	Indent string
}

// Format returns the format type
func (f *JSONFormatter) Format() Format { return FormatJSON }

// Render writes the report
func (f *JSONFormatter) Render(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	if f.Indent != "" {
		enc.SetIndent("", f.Indent)
	}
	return enc.Encode(r)
}
