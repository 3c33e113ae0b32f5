package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpq/mcpq/internal/clierr"
)

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		name       string
		outputFlag string
		jsonFlag   bool
		env        string
		want       string
	}{
		{"default is table", "", false, "", "table"},
		{"output flag wins", "yaml", false, "", "yaml"},
		{"json flag wins over output flag", "table", true, "", "json"},
		{"env used when no flags", "", false, "yaml", "yaml"},
		{"output flag wins over env", "table", false, "json", "table"},
		{"json flag wins over env", "", true, "yaml", "json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MCPQ_OUTPUT", tt.env)
			assert.Equal(t, tt.want, Resolve(tt.outputFlag, tt.jsonFlag))
		})
	}
}

func TestNewFormatterTypes(t *testing.T) {
	f, err := New("json")
	require.NoError(t, err)
	assert.IsType(t, &JSON{}, f)

	f, err = New("YAML")
	require.NoError(t, err)
	assert.IsType(t, &YAML{}, f)

	f, err = New("table")
	require.NoError(t, err)
	assert.IsType(t, &Table{}, f)

	f, err = New("")
	require.NoError(t, err)
	assert.IsType(t, &Table{}, f)
}

func TestNewFormatterUnknown(t *testing.T) {
	_, err := New("csv")
	require.Error(t, err)
	assert.True(t, clierr.IsType(err, clierr.UnknownOption))
	assert.Contains(t, clierr.FromError(err, clierr.UnknownOption).Suggestion, "table, json, yaml")
}

func TestNewFormatterRespectsNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	f, err := New("table")
	require.NoError(t, err)
	assert.True(t, f.(*Table).NoColor)

	t.Setenv("NO_COLOR", "")
	f, err = New("table")
	require.NoError(t, err)
	assert.False(t, f.(*Table).NoColor)
}
