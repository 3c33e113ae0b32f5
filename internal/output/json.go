package output

import (
	"encoding/json"

	"github.com/mcpq/mcpq/internal/clierr"
)

// JSON renders machine-readable JSON output.
type JSON struct {
	Indent bool
}

// Format marshals data to JSON.
func (f *JSON) Format(data interface{}) (string, error) {
	var out []byte
	var err error
	if f.Indent {
		out, err = json.MarshalIndent(data, "", "  ")
	} else {
		out, err = json.Marshal(data)
	}
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// FormatError marshals the error payload shape.
func (f *JSON) FormatError(err *clierr.Error) (string, error) {
	return f.Format(payloadFrom(err))
}

// FormatTable renders rows as an array of objects keyed by header.
func (f *JSON) FormatTable(headers []string, rows [][]string) (string, error) {
	return f.Format(tableToObjects(headers, rows))
}
