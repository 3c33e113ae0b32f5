// Package output renders command results as tables, JSON, or YAML, and
// renders taxonomy errors in every format. The call subcommand bypasses
// this package: raw tool results go to stdout untouched.
package output

import (
	"os"
	"strings"

	"github.com/mcpq/mcpq/internal/clierr"
)

// Formatter renders structured data for one output format.
// Implementations are stateless and safe for concurrent use.
type Formatter interface {
	// Format renders an arbitrary value (structs, maps, slices).
	Format(data interface{}) (string, error)

	// FormatError renders a taxonomy error.
	FormatError(err *clierr.Error) (string, error)

	// FormatTable renders rows under the given column headers.
	FormatTable(headers []string, rows [][]string) (string, error)
}

// New returns the formatter for the named format. Supported formats are
// table, json, and yaml (case-insensitive); empty means table.
func New(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case "json":
		return &JSON{Indent: true}, nil
	case "yaml":
		return &YAML{}, nil
	case "table", "":
		return &Table{NoColor: os.Getenv("NO_COLOR") != ""}, nil
	default:
		return nil, clierr.New(clierr.UnknownOption, "unknown output format %q", format).
			WithSuggestion("valid formats: table, json, yaml")
	}
}

// Resolve picks the output format from flags and environment.
// Priority: --json alias, then -o/--output, then MCPQ_OUTPUT, then table.
func Resolve(outputFlag string, jsonFlag bool) string {
	if jsonFlag {
		return "json"
	}
	if outputFlag != "" {
		return outputFlag
	}
	if env := os.Getenv("MCPQ_OUTPUT"); env != "" {
		return env
	}
	return "table"
}

// errorPayload is the wire shape of a taxonomy error in json and yaml
// output. It mirrors the human-readable stderr shape field for field.
type errorPayload struct {
	Code       string `json:"code" yaml:"code"`
	Message    string `json:"message" yaml:"message"`
	Details    string `json:"details,omitempty" yaml:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
}

func payloadFrom(err *clierr.Error) errorPayload {
	return errorPayload{
		Code:       string(err.Type),
		Message:    err.Message,
		Details:    err.Details,
		Suggestion: err.Suggestion,
	}
}

// tableToObjects converts header/row data into the list-of-objects shape
// shared by the json and yaml formatters. Keys are lower-cased headers.
func tableToObjects(headers []string, rows [][]string) []map[string]string {
	objects := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		obj := make(map[string]string, len(headers))
		for i, header := range headers {
			key := strings.ToLower(header)
			if i < len(row) {
				obj[key] = row[i]
			} else {
				obj[key] = ""
			}
		}
		objects = append(objects, obj)
	}
	return objects
}
