package main

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/connect"
	"github.com/mcpq/mcpq/internal/fanout"
)

var grepCmd = &cobra.Command{
	Use:   "grep <pattern>",
	Short: "Find tools across all servers by glob pattern",
	Long: `Match tool names across every configured server with a case-insensitive
glob: * matches any run of characters, ? exactly one. The pattern is tried
against both the bare tool name and the server/tool form, so 'read_*' and
'fs/*' both work.`,
	Example: `  mcpq grep 'read_*'
  mcpq grep 'github/*_issue'
  mcpq grep '?_file'`,
	Args: rangeArgs(1, 1, "mcpq grep <pattern>"),
	RunE: runGrep,
}

func runGrep(cmd *cobra.Command, args []string) error {
	match, err := connect.CompileGlob(args[0])
	if err != nil {
		return clierr.Wrap(clierr.InvalidTarget, err, "invalid glob pattern %q", args[0]).
			WithSuggestion("use * for any run of characters and ? for exactly one")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := a.deadline(cmd.Context())
	defer cancel()

	results := a.catalogue(ctx)
	warnFailures(results)

	headers, rows := grepRows(results, match.MatchString)

	f, err := formatter()
	if err != nil {
		return err
	}
	text, err := f.FormatTable(headers, rows)
	if err != nil {
		return err
	}
	emit(text)
	return nil
}

// grepRows keeps the tools whose bare or server-qualified name matches.
func grepRows(results []fanout.Result[[]mcp.Tool], match func(string) bool) ([]string, [][]string) {
	headers := []string{"SERVER", "TOOL", "DESCRIPTION"}
	var rows [][]string
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		for _, tool := range res.Value {
			if !match(tool.Name) && !match(res.Server+"/"+tool.Name) {
				continue
			}
			rows = append(rows, []string{res.Server, tool.Name, oneLine(tool.Description, 72)})
		}
	}
	return headers, rows
}
