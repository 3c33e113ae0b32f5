package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/search"
)

var (
	searchCmd = &cobra.Command{
		Use:   "search <query>",
		Short: "Find tools across all servers by relevance",
		Long: `Rank every tool across the configured servers against a free-text query.
Unlike grep this is full-text relevance matching over tool names and
descriptions, so "create pull request" finds merge_pull_request even
though no glob would.`,
		Example: `  mcpq search "read file"
  mcpq search issues -n 5`,
		Args: rangeArgs(1, -1, "mcpq search <query>"),
		RunE: runSearch,
	}

	searchLimit int
)

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", search.DefaultLimit, "maximum number of results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return clierr.New(clierr.MissingArgument, "search needs a query").
			WithSuggestion("usage: mcpq search <query>")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := a.deadline(cmd.Context())
	defer cancel()

	results := a.catalogue(ctx)
	warnFailures(results)

	idx, err := search.New()
	if err != nil {
		return err
	}
	defer idx.Close()

	var docs []search.Document
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		for _, tool := range res.Value {
			docs = append(docs, search.Document{
				Server:      res.Server,
				Name:        tool.Name,
				Description: tool.Description,
			})
		}
	}
	if err := idx.Add(docs); err != nil {
		return err
	}

	matches, err := idx.Search(query, searchLimit)
	if err != nil {
		return err
	}

	headers := []string{"SERVER", "TOOL", "SCORE", "DESCRIPTION"}
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, []string{
			m.Server,
			m.Name,
			strconv.FormatFloat(m.Score, 'f', 2, 64),
			oneLine(m.Description, 60),
		})
	}

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
