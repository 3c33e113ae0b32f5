package main

import (
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/config"
	"github.com/mcpq/mcpq/internal/fanout"
)

// runList is the default command: one row per configured server with its
// transport and tool count. A server that cannot be reached keeps its row;
// the status column names what went wrong.
func runList(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := a.deadline(cmd.Context())
	defer cancel()

	results := a.catalogue(ctx)

	f, err := formatter()
	if err != nil {
		return err
	}
	var headers []string
	var rows [][]string
	if withDescriptions {
		headers, rows = describeRows(results)
	} else {
		headers, rows = listRows(results, a.cfg)
	}
	text, err := f.FormatTable(headers, rows)
	if err != nil {
		return err
	}
	emit(text)
	return nil
}

func listRows(results []fanout.Result[[]mcp.Tool], cfg *config.Config) ([]string, [][]string) {
	headers := []string{"SERVER", "TRANSPORT", "TOOLS", "STATUS"}
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		kind := "-"
		if rec, err := cfg.Get(res.Server); err == nil {
			kind = rec.Transport()
		}
		if res.Err != nil {
			cerr := clierr.FromError(res.Err, clierr.ServerConnectionFailed)
			rows = append(rows, []string{res.Server, kind, "-", string(cerr.Type)})
			continue
		}
		rows = append(rows, []string{res.Server, kind, strconv.Itoa(len(res.Value)), "ok"})
	}
	return headers, rows
}

// describeRows expands the listing to one row per tool (-d).
func describeRows(results []fanout.Result[[]mcp.Tool]) ([]string, [][]string) {
	headers := []string{"SERVER", "TOOL", "DESCRIPTION"}
	var rows [][]string
	for _, res := range results {
		if res.Err != nil {
			cerr := clierr.FromError(res.Err, clierr.ServerConnectionFailed)
			rows = append(rows, []string{res.Server, "-", "unavailable: " + string(cerr.Type)})
			continue
		}
		for _, tool := range res.Value {
			rows = append(rows, []string{res.Server, tool.Name, oneLine(tool.Description, 72)})
		}
	}
	return headers, rows
}
