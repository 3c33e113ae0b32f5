package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/connect"
)

var (
	callCmd = &cobra.Command{
		Use:   "call <server> <tool> [<json>]",
		Short: "Invoke a tool and print its raw result",
		Long: `Invoke one tool on one server. The target may be given as two arguments
or as server/tool. Arguments are a JSON object; when the argument is
omitted it is read from standard input, and an empty input means no
arguments.

The MCP result is printed to standard output exactly as the server
produced it, whatever --output says, so the bytes stay pipeable. A result
the server marked as an error exits 2.`,
		Example: `  mcpq call github create_issue '{"title": "bug"}'
  mcpq call github/create_issue '{"title": "bug"}'
  echo '{"title": "bug"}' | mcpq call github create_issue
  mcpq call fs list_directory '{"path": "."}' | jq .content`,
		Args: rangeArgs(1, 3, "mcpq call <server> <tool> [<json>]"),
		RunE: runCall,
	}

	callTimeout time.Duration

	// callStdin supplies tool arguments when the json argument is omitted.
	// Swapped out in tests.
	callStdin io.Reader = os.Stdin
)

func init() {
	callCmd.Flags().DurationVarP(&callTimeout, "timeout", "t", 0, "per-call deadline (default MCPQ_TIMEOUT)")
}

func runCall(cmd *cobra.Command, args []string) error {
	server, tool, jsonArg, err := splitTarget(args)
	if err != nil {
		return err
	}
	if jsonArg == "" {
		jsonArg, err = readStdinArgs()
		if err != nil {
			return err
		}
	}
	toolArgs, err := parseToolArgs(jsonArg)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	if callTimeout > 0 {
		a.settings.Timeout = callTimeout
	}

	// A disabled tool is refused here, before any connection is opened,
	// so the server never sees traffic for it.
	rec, err := a.cfg.Get(server)
	if err != nil {
		return err
	}
	filter, err := connect.NewFilter(rec.AllowedTools, rec.DisabledTools)
	if err != nil {
		return clierr.Wrap(clierr.ConfigValidationFailed, err,
			"invalid tool filter for server %q", server)
	}
	if err := filter.Refuse(server, tool); err != nil {
		return err
	}

	ctx, cancel := a.deadline(cmd.Context())
	defer cancel()

	h, err := a.open(ctx, server, true)
	if err != nil {
		return err
	}
	defer h.Close()

	result, err := h.CallTool(ctx, tool, toolArgs)
	if err != nil {
		return decorateToolError(err, server, tool)
	}

	fmt.Fprintf(stdout, "%s\n", result.Raw)

	if result.IsError {
		return clierr.New(clierr.ToolExecutionFailed,
			"tool %q on server %q reported an error", tool, server).
			WithDetails("%s", oneLine(result.Text(), 200)).
			WithSuggestion("%s", toolFailureHint(result.Text(), server, tool))
	}
	return nil
}

// splitTarget resolves the two accepted target spellings into server, tool,
// and the optional inline JSON argument.
func splitTarget(args []string) (server, tool, jsonArg string, err error) {
	if strings.Contains(args[0], "/") {
		parts := strings.SplitN(args[0], "/", 2)
		server, tool = parts[0], parts[1]
		if len(args) > 2 {
			return "", "", "", clierr.New(clierr.TooManyArguments,
				"the server/tool form takes at most one more argument, got %d", len(args)-1).
				WithSuggestion("usage: mcpq call %s [<json>]", args[0])
		}
		if len(args) == 2 {
			jsonArg = args[1]
		}
	} else {
		if len(args) < 2 {
			return "", "", "", clierr.New(clierr.MissingArgument,
				"call needs a tool name for server %q", args[0]).
				WithSuggestion("usage: mcpq call %s <tool> [<json>] or mcpq call %s/<tool>", args[0], args[0])
		}
		server, tool = args[0], args[1]
		if len(args) == 3 {
			jsonArg = args[2]
		}
	}
	if server == "" || tool == "" {
		return "", "", "", clierr.New(clierr.InvalidTarget,
			"invalid tool target %q", strings.Join(args, " ")).
			WithSuggestion("usage: mcpq call <server> <tool> or mcpq call <server>/<tool>")
	}
	return server, tool, jsonArg, nil
}

// readStdinArgs drains stdin when the JSON argument was omitted. An
// interactive terminal is not read: blocking on a silent prompt would look
// like a hang, so a missing pipe simply means no arguments.
func readStdinArgs() (string, error) {
	if f, ok := callStdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", nil
	}
	data, err := io.ReadAll(callStdin)
	if err != nil {
		return "", clierr.Wrap(clierr.InvalidJSONArguments, err,
			"failed to read tool arguments from stdin")
	}
	return string(data), nil
}

// parseToolArgs decodes the tool argument object. Empty input is no
// arguments.
func parseToolArgs(jsonArg string) (map[string]interface{}, error) {
	jsonArg = strings.TrimSpace(jsonArg)
	if jsonArg == "" {
		return nil, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(jsonArg), &args); err != nil {
		return nil, clierr.Wrap(clierr.InvalidJSONArguments, err,
			"tool arguments are not a valid JSON object").
			WithDetails("input: %s", oneLine(jsonArg, 120)).
			WithSuggestion(`pass a JSON object, e.g. '{"path": "/tmp/file.txt"}'`)
	}
	return args, nil
}

// decorateToolError sharpens a failed call with a cause-specific hint. An
// unknown-tool failure is retyped so it exits as a client error rather than
// a server one.
func decorateToolError(err error, server, tool string) error {
	cerr := clierr.FromError(err, clierr.ToolExecutionFailed)
	if cerr.Type != clierr.ToolExecutionFailed {
		return cerr
	}
	msg := strings.ToLower(cerr.Message)
	if strings.Contains(msg, "not found") || strings.Contains(msg, "unknown tool") {
		return clierr.New(clierr.ToolNotFound,
			"server %q has no tool named %q", server, tool).
			WithDetails("%s", cerr.Message).
			WithSuggestion("run mcpq info %s to list its tools", server)
	}
	if cerr.Suggestion == "" {
		cerr = cerr.WithSuggestion("%s", toolFailureHint(cerr.Message, server, tool))
	}
	return cerr
}

// toolFailureHint picks the recovery suggestion for the common failure
// wordings: validation, missing required fields, permissions, lookup.
func toolFailureHint(message, server, tool string) string {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "required"):
		return fmt.Sprintf("a required argument is missing; check the schema with: mcpq info %s %s", server, tool)
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "validation"):
		return fmt.Sprintf("the arguments failed validation; check the schema with: mcpq info %s %s", server, tool)
	case strings.Contains(msg, "permission") || strings.Contains(msg, "access denied") || strings.Contains(msg, "forbidden"):
		return "the server refused access; check its credentials and allowed paths"
	case strings.Contains(msg, "not found"):
		return "the requested resource does not exist on the server"
	default:
		return fmt.Sprintf("inspect the tool with: mcpq info %s %s", server, tool)
	}
}
