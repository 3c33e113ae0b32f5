package main

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpq/mcpq/internal/clierr"
)

func TestSplitTarget(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantServer string
		wantTool   string
		wantJSON   string
		wantType   clierr.Type
	}{
		{"two words", []string{"fs", "read_file"}, "fs", "read_file", "", ""},
		{"two words with json", []string{"fs", "read_file", `{"path": "x"}`}, "fs", "read_file", `{"path": "x"}`, ""},
		{"slash form", []string{"fs/read_file"}, "fs", "read_file", "", ""},
		{"slash form with json", []string{"fs/read_file", "{}"}, "fs", "read_file", "{}", ""},
		{"tool name contains slash", []string{"api/v1/users", "{}"}, "api", "v1/users", "{}", ""},
		{"slash form extra arg", []string{"fs/read_file", "{}", "oops"}, "", "", "", clierr.TooManyArguments},
		{"server alone", []string{"fs"}, "", "", "", clierr.MissingArgument},
		{"empty tool after slash", []string{"fs/"}, "", "", "", clierr.InvalidTarget},
		{"empty server before slash", []string{"/read_file"}, "", "", "", clierr.InvalidTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, tool, jsonArg, err := splitTarget(tt.args)
			if tt.wantType != "" {
				asCLIError(t, err, tt.wantType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantServer, server)
			assert.Equal(t, tt.wantTool, tool)
			assert.Equal(t, tt.wantJSON, jsonArg)
		})
	}
}

func TestSplitTargetSuggestsBothSpellings(t *testing.T) {
	_, _, _, err := splitTarget([]string{"fs"})
	cerr := asCLIError(t, err, clierr.MissingArgument)
	assert.Contains(t, cerr.Suggestion, "mcpq call fs <tool>")
	assert.Contains(t, cerr.Suggestion, "mcpq call fs/<tool>")
}

func TestParseToolArgs(t *testing.T) {
	t.Run("object", func(t *testing.T) {
		args, err := parseToolArgs(`{"path": "/tmp", "n": 3}`)
		require.NoError(t, err)
		assert.Equal(t, "/tmp", args["path"])
		assert.Equal(t, float64(3), args["n"])
	})

	t.Run("empty means no arguments", func(t *testing.T) {
		for _, in := range []string{"", "   ", "\n\t"} {
			args, err := parseToolArgs(in)
			require.NoError(t, err)
			assert.Nil(t, args)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := parseToolArgs(`{"path": `)
		cerr := asCLIError(t, err, clierr.InvalidJSONArguments)
		assert.Contains(t, cerr.Details, `{"path":`)
		assert.Contains(t, cerr.Suggestion, "JSON object")
	})

	t.Run("array is not an object", func(t *testing.T) {
		_, err := parseToolArgs(`[1, 2]`)
		asCLIError(t, err, clierr.InvalidJSONArguments)
	})
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("pipe burst") }

func TestReadStdinArgs(t *testing.T) {
	resetCommandState(t)

	t.Run("piped json", func(t *testing.T) {
		callStdin = strings.NewReader(`{"text": "hi"}`)
		got, err := readStdinArgs()
		require.NoError(t, err)
		assert.Equal(t, `{"text": "hi"}`, got)
	})

	t.Run("empty pipe", func(t *testing.T) {
		callStdin = strings.NewReader("")
		got, err := readStdinArgs()
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("non-terminal file", func(t *testing.T) {
		f, err := os.Open(os.DevNull)
		require.NoError(t, err)
		defer f.Close()
		callStdin = f
		got, err := readStdinArgs()
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("read failure", func(t *testing.T) {
		callStdin = brokenReader{}
		_, err := readStdinArgs()
		asCLIError(t, err, clierr.InvalidJSONArguments)
	})
}

func TestDecorateToolError(t *testing.T) {
	t.Run("typed errors pass through", func(t *testing.T) {
		in := clierr.New(clierr.ToolDisabled, "tool %q is disabled", "rm")
		out := decorateToolError(in, "fs", "rm")
		assert.Same(t, in, out)
	})

	t.Run("unknown tool is retyped", func(t *testing.T) {
		err := decorateToolError(errors.New(`unknown tool "zap"`), "fs", "zap")
		cerr := asCLIError(t, err, clierr.ToolNotFound)
		assert.Equal(t, clierr.ExitClientError, cerr.ExitCode())
		assert.Contains(t, cerr.Message, `"zap"`)
		assert.Contains(t, cerr.Suggestion, "mcpq info fs")
	})

	t.Run("not found wording is retyped", func(t *testing.T) {
		err := decorateToolError(errors.New("tool not found: zap"), "fs", "zap")
		asCLIError(t, err, clierr.ToolNotFound)
	})

	t.Run("generic failure gains a hint", func(t *testing.T) {
		err := decorateToolError(errors.New("kaboom"), "fs", "read_file")
		cerr := asCLIError(t, err, clierr.ToolExecutionFailed)
		assert.Contains(t, cerr.Suggestion, "mcpq info fs read_file")
	})

	t.Run("existing suggestion is kept", func(t *testing.T) {
		in := clierr.New(clierr.ToolExecutionFailed, "boom").WithSuggestion("keep me")
		out := decorateToolError(in, "fs", "x")
		cerr := asCLIError(t, out, clierr.ToolExecutionFailed)
		assert.Equal(t, "keep me", cerr.Suggestion)
	})
}

func TestToolFailureHint(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"required field missing: path", "required argument is missing"},
		{"Invalid value for count", "failed validation"},
		{"validation error on title", "failed validation"},
		{"permission denied", "refused access"},
		{"access denied for /etc", "refused access"},
		{"403 Forbidden", "refused access"},
		{"file not found: /nope", "does not exist"},
		{"some opaque failure", "inspect the tool with: mcpq info fs read_file"},
	}
	for _, tt := range tests {
		hint := toolFailureHint(tt.message, "fs", "read_file")
		assert.Contains(t, hint, tt.want, "message %q", tt.message)
	}
}
