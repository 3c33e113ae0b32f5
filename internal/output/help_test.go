package output

import (
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func helpTestRoot() *cobra.Command {
	root := &cobra.Command{Use: "mcpq", Short: "Query MCP servers"}
	root.PersistentFlags().StringP("output", "o", "", "Output format (table, json, yaml)")
	root.PersistentFlags().StringP("config", "c", "", "Path to config file")

	call := &cobra.Command{Use: "call <server> <tool> [json]", Short: "Invoke a tool"}
	info := &cobra.Command{Use: "info <server> [tool]", Short: "Show server or tool detail"}
	daemon := &cobra.Command{Use: "daemon <server>", Short: "Run a daemon worker", Hidden: true}
	root.AddCommand(call, info, daemon)
	return root
}

func TestDescribeCommandTree(t *testing.T) {
	root := helpTestRoot()
	got := Describe(root)

	assert.Equal(t, "mcpq", got.Name)
	assert.Equal(t, "Query MCP servers", got.Description)

	names := make([]string, 0, len(got.Commands))
	for _, c := range got.Commands {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "call")
	assert.Contains(t, names, "info")
	assert.NotContains(t, names, "daemon", "hidden commands stay out of help")

	var outputFlag *FlagInfo
	for i := range got.Flags {
		if got.Flags[i].Name == "output" {
			outputFlag = &got.Flags[i]
		}
	}
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)
	assert.Equal(t, "string", outputFlag.Type)
}

func TestDescribeSubcommandInheritsFlags(t *testing.T) {
	root := helpTestRoot()
	var call *cobra.Command
	for _, c := range root.Commands() {
		if c.Name() == "call" {
			call = c
		}
	}
	require.NotNil(t, call)

	got := Describe(call)
	assert.Equal(t, "call", got.Name)
	assert.Empty(t, got.Commands)

	names := make([]string, 0, len(got.Flags))
	for _, f := range got.Flags {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "output", "persistent parent flags must be visible")
	assert.Contains(t, names, "config")
}

func TestHelpJSONIsValid(t *testing.T) {
	out, err := HelpJSON(helpTestRoot())
	require.NoError(t, err)

	var decoded HelpInfo
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "mcpq", decoded.Name)
	assert.NotEmpty(t, decoded.Commands)
}
