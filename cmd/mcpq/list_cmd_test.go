package main

import (
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/config"
	"github.com/mcpq/mcpq/internal/connect"
	"github.com/mcpq/mcpq/internal/fanout"
)

func testCatalogue() ([]fanout.Result[[]mcp.Tool], *config.Config) {
	results := []fanout.Result[[]mcp.Tool]{
		{
			Server: "fs",
			Value: []mcp.Tool{
				{Name: "read_file", Description: "Reads a file from disk."},
				{Name: "write_file", Description: "Writes a file.\nSecond line is dropped."},
			},
		},
		{
			Server: "gh",
			Err: clierr.New(clierr.AuthRequired,
				"server %q requires authentication", "gh"),
		},
	}
	cfg := &config.Config{
		Servers: map[string]*config.ServerConfig{
			"fs": {Name: "fs", Command: "mcp-fs"},
			"gh": {Name: "gh", URL: "https://example.com/mcp"},
		},
	}
	return results, cfg
}

func TestListRows(t *testing.T) {
	results, cfg := testCatalogue()
	headers, rows := listRows(results, cfg)

	assert.Equal(t, []string{"SERVER", "TRANSPORT", "TOOLS", "STATUS"}, headers)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"fs", "stdio", "2", "ok"}, rows[0])
	assert.Equal(t, []string{"gh", "http", "-", "AUTH_REQUIRED"}, rows[1])
}

func TestDescribeRows(t *testing.T) {
	results, _ := testCatalogue()
	headers, rows := describeRows(results)

	assert.Equal(t, []string{"SERVER", "TOOL", "DESCRIPTION"}, headers)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"fs", "read_file", "Reads a file from disk."}, rows[0])
	assert.Equal(t, []string{"fs", "write_file", "Writes a file."}, rows[1],
		"description must be clipped to its first line")
	assert.Equal(t, []string{"gh", "-", "unavailable: AUTH_REQUIRED"}, rows[2])
}

func TestGrepRows(t *testing.T) {
	results, _ := testCatalogue()

	t.Run("bare tool name", func(t *testing.T) {
		re, err := connect.CompileGlob("read_*")
		require.NoError(t, err)
		_, rows := grepRows(results, re.MatchString)
		require.Len(t, rows, 1)
		assert.Equal(t, "read_file", rows[0][1])
	})

	t.Run("server qualified", func(t *testing.T) {
		re, err := connect.CompileGlob("fs/*")
		require.NoError(t, err)
		_, rows := grepRows(results, re.MatchString)
		assert.Len(t, rows, 2, "fs/* must match every fs tool")
	})

	t.Run("failed servers are skipped", func(t *testing.T) {
		re, err := connect.CompileGlob("*")
		require.NoError(t, err)
		_, rows := grepRows(results, re.MatchString)
		for _, row := range rows {
			assert.Equal(t, "fs", row[0])
		}
	})

	t.Run("no matches", func(t *testing.T) {
		re, err := connect.CompileGlob("zz_*")
		require.NoError(t, err)
		_, rows := grepRows(results, re.MatchString)
		assert.Empty(t, rows)
	})
}

func TestOneLine(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"empty", "", 20, ""},
		{"short", "hello", 20, "hello"},
		{"exactly max", strings.Repeat("a", 20), 20, strings.Repeat("a", 20)},
		{"clipped", strings.Repeat("a", 25), 20, strings.Repeat("a", 17) + "..."},
		{"first line only", "line one\nline two", 40, "line one"},
		{"carriage return", "line one\r\nline two", 40, "line one"},
		{"surrounding space trimmed", "  padded  ", 20, "padded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, oneLine(tt.in, tt.max))
		})
	}
}
