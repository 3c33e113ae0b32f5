package daemon

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
)

// Request types understood by a daemon.
const (
	typePing            = "ping"
	typeListTools       = "listTools"
	typeCallTool        = "callTool"
	typeGetInstructions = "getInstructions"
	typeClose           = "close"
)

type request struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	ToolName string                 `json:"toolName,omitempty"`
	Args     map[string]interface{} `json:"args,omitempty"`
}

type response struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// wireTool is the flattened tool descriptor carried over the daemon socket.
// The schema rides as raw JSON so unknown schema keywords survive the hop.
type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

func toolsToWire(tools []mcp.Tool) []wireTool {
	out := make([]wireTool, 0, len(tools))
	for i := range tools {
		t := &tools[i]
		w := wireTool{Name: t.Name, Description: t.Description}
		if len(t.RawInputSchema) > 0 {
			w.InputSchema = append(json.RawMessage(nil), t.RawInputSchema...)
		} else if raw, err := json.Marshal(t.InputSchema); err == nil {
			w.InputSchema = raw
		}
		out = append(out, w)
	}
	return out
}

func wireToTools(in []wireTool) []mcp.Tool {
	out := make([]mcp.Tool, 0, len(in))
	for _, w := range in {
		out = append(out, mcp.Tool{
			Name:           w.Name,
			Description:    w.Description,
			RawInputSchema: w.InputSchema,
		})
	}
	return out
}

// writeFrame sends one JSON value terminated by a newline.
func writeFrame(w io.Writer, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	raw = append(raw, '\n')
	_, err = w.Write(raw)
	return err
}

func readRequest(r *bufio.Reader) (*request, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("malformed request: %w", err)
	}
	return &req, nil
}

func readResponse(r *bufio.Reader) (*response, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	return &resp, nil
}
