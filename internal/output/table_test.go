package output

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpq/mcpq/internal/clierr"
)

func sampleRows() ([]string, [][]string) {
	return []string{"SERVER", "TOOLS"}, [][]string{
		{"github", "12"},
		{"slack", "4"},
	}
}

func TestTablePlainOutput(t *testing.T) {
	f := &Table{tty: func() bool { return false }}
	headers, rows := sampleRows()

	out, err := f.FormatTable(headers, rows)
	require.NoError(t, err)
	assert.Equal(t, "SERVER  TOOLS\ngithub  12\nslack   4\n", out)
	assert.NotContains(t, out, "\x1b", "non-TTY output must be escape-free")
}

func TestTableEmptyRows(t *testing.T) {
	f := &Table{tty: func() bool { return false }}
	out, err := f.FormatTable([]string{"SERVER"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "No results found\n", out)
}

func TestTableTTYUnderlinesHeaders(t *testing.T) {
	f := &Table{NoColor: true, tty: func() bool { return true }}
	headers, rows := sampleRows()

	out, err := f.FormatTable(headers, rows)
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Contains(t, lines[1], "------")
	assert.Contains(t, lines[1], "-----")
	assert.NotContains(t, out, "\x1b", "NO_COLOR output must be escape-free")
}

func TestTableTTYBoldsHeaders(t *testing.T) {
	f := &Table{tty: func() bool { return true }}
	headers, rows := sampleRows()

	out, err := f.FormatTable(headers, rows)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, ansiBold+"SERVER"))
	assert.Contains(t, out, ansiReset+"\n")

	// Alignment is measured before the escape codes go in.
	plain := strings.ReplaceAll(strings.ReplaceAll(out, ansiBold, ""), ansiReset, "")
	assert.Equal(t, "SERVER  TOOLS\n------  -----\ngithub  12\nslack   4\n", plain)
}

func TestTableFormatErrorShape(t *testing.T) {
	f := &Table{tty: func() bool { return true }}
	cerr := clierr.New(clierr.ToolDisabled, "tool %q is disabled for server %q", "rm", "files").
		WithDetails("matched disabledTools pattern rm*").
		WithSuggestion("adjust allowedTools/disabledTools for this server to enable it")

	out, err := f.FormatError(cerr)
	require.NoError(t, err)
	assert.Equal(t,
		"Error [TOOL_DISABLED]: tool \"rm\" is disabled for server \"files\"\n"+
			"  Details: matched disabledTools pattern rm*\n"+
			"  Suggestion: adjust allowedTools/disabledTools for this server to enable it\n",
		out)
}

func TestTableFormatFallsBackToYAML(t *testing.T) {
	f := &Table{tty: func() bool { return false }}
	out, err := f.Format(map[string]string{"name": "github", "transport": "http"})
	require.NoError(t, err)
	assert.Contains(t, out, "name: github")
	assert.Contains(t, out, "transport: http")
}
