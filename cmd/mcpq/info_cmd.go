package main

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/connect"
)

var infoCmd = &cobra.Command{
	Use:   "info <server> [<tool>]",
	Short: "Show a server's details, or one tool's schema",
	Long: `Show details of one configured server: transport, instructions from the
server's initialize handshake, and its tool catalogue. With a tool name,
show that tool's description and input schema instead.`,
	Example: `  mcpq info github
  mcpq info github create_issue`,
	Args: rangeArgs(1, 2, "mcpq info <server> [<tool>]"),
	RunE: runInfo,
}

// serverDetail is the info output for a whole server.
type serverDetail struct {
	Server       string      `json:"server" yaml:"server"`
	Transport    string      `json:"transport" yaml:"transport"`
	Target       string      `json:"target" yaml:"target"`
	Instructions string      `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Tools        []toolEntry `json:"tools" yaml:"tools"`
}

type toolEntry struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// toolDetail is the info output for a single tool.
type toolDetail struct {
	Server      string      `json:"server" yaml:"server"`
	Tool        string      `json:"tool" yaml:"tool"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	InputSchema interface{} `json:"inputSchema,omitempty" yaml:"inputSchema,omitempty"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := a.deadline(cmd.Context())
	defer cancel()

	server := args[0]
	h, err := a.open(ctx, server, true)
	if err != nil {
		return err
	}
	defer h.Close()

	tools, err := h.ListTools(ctx)
	if err != nil {
		return err
	}

	f, err := formatter()
	if err != nil {
		return err
	}

	if len(args) == 2 {
		detail, err := describeTool(server, args[1], tools)
		if err != nil {
			return err
		}
		text, err := f.Format(detail)
		if err != nil {
			return err
		}
		emit(text)
		return nil
	}

	rec, err := a.cfg.Get(server)
	if err != nil {
		return err
	}
	instructions, err := h.Instructions(ctx)
	if err != nil {
		return err
	}
	detail := serverDetail{
		Server:       server,
		Transport:    rec.Transport(),
		Target:       rec.Command,
		Instructions: instructions,
		Tools:        make([]toolEntry, 0, len(tools)),
	}
	if !rec.IsStdio() {
		detail.Target = rec.URL
	}
	for _, t := range tools {
		detail.Tools = append(detail.Tools, toolEntry{Name: t.Name, Description: t.Description})
	}
	text, err := f.Format(detail)
	if err != nil {
		return err
	}
	emit(text)
	return nil
}

// describeTool finds one tool in the fetched catalogue and unpacks its
// schema. The schema is decoded rather than embedded raw so the yaml
// formatter renders it as a mapping instead of base64.
func describeTool(server, name string, tools []mcp.Tool) (toolDetail, error) {
	for _, t := range tools {
		if t.Name != name {
			continue
		}
		detail := toolDetail{Server: server, Tool: name, Description: t.Description}
		if raw := connect.ToolSchema(t); len(raw) > 0 {
			var schema interface{}
			if err := json.Unmarshal(raw, &schema); err == nil {
				detail.InputSchema = schema
			}
		}
		return detail, nil
	}
	return toolDetail{}, clierr.New(clierr.ToolNotFound,
		"server %q has no tool named %q", server, name).
		WithSuggestion("run mcpq info %s to list its tools", server)
}
