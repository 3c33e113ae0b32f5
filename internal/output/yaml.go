package output

import (
	"gopkg.in/yaml.v3"

	"github.com/mcpq/mcpq/internal/clierr"
)

// YAML renders YAML output.
type YAML struct{}

// Format marshals data to YAML.
func (f *YAML) Format(data interface{}) (string, error) {
	out, err := yaml.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// FormatError marshals the error payload shape.
func (f *YAML) FormatError(err *clierr.Error) (string, error) {
	return f.Format(payloadFrom(err))
}

// FormatTable renders rows as a list of mappings keyed by header.
func (f *YAML) FormatTable(headers []string, rows [][]string) (string, error) {
	return f.Format(tableToObjects(headers, rows))
}
