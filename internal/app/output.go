package app

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// Output formats accepted by the --format flag.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// CheckFormat rejects unknown output formats.
func CheckFormat(f string) error {
	switch f {
	case FormatTable, FormatJSON:
		return nil
	}
	return fmt.Errorf("unsupported output format %q, want %s or %s", f, FormatTable, FormatJSON)
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewTabWriter returns a writer for aligned tables.
func NewTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}
