// Package connect presents one session handle per server regardless of how
// the session is reached. The daemon path is tried first so repeated CLI
// invocations reuse a warm connection; any daemon trouble falls back to a
// direct, retry-wrapped connect. Tool allow/deny filters are enforced here,
// before any request leaves the process.
package connect

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/config"
	"github.com/mcpq/mcpq/internal/daemon"
	"github.com/mcpq/mcpq/internal/retry"
	"github.com/mcpq/mcpq/internal/transport"
)

// DaemonProvider yields warm daemon handles. *daemon.Client satisfies it;
// tests substitute fakes.
type DaemonProvider interface {
	Get(ctx context.Context, rec *config.ServerConfig) (*daemon.Handle, error)
}

// Options configures how sessions are opened.
type Options struct {
	// Transport is forwarded to direct connects.
	Transport transport.Options
	// Daemons supplies warm daemons; nil disables the daemon path.
	Daemons DaemonProvider
	// NoDaemon forces a direct connection even when Daemons is set.
	NoDaemon bool
	// MaxRetries and RetryDelay shape the retry policy around direct
	// connects; zero values take the executor's defaults.
	MaxRetries int
	RetryDelay time.Duration
	// Logger receives fallback diagnostics; a no-op logger when nil.
	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

// CallResult is a tool invocation outcome. Raw holds the MCP result exactly
// as the server produced it; IsError mirrors the result's isError flag.
type CallResult struct {
	Raw     json.RawMessage
	IsError bool
}

// Text returns the concatenated text content of the result. Non-text
// content is skipped.
func (r *CallResult) Text() string {
	var body struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(r.Raw, &body); err != nil {
		return ""
	}
	parts := make([]string, 0, len(body.Content))
	for _, c := range body.Content {
		if c.Type == "text" && c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Handle is a filtered view of one server session.
type Handle struct {
	server string
	filter *Filter
	logger *zap.Logger

	daemon *daemon.Handle
	direct transport.Session

	closeOnce sync.Once
	closeErr  error
}

// Open returns a handle to the named server. The daemon path is preferred;
// daemon failures are logged and fall through to a direct connection
// wrapped in the retry executor.
func Open(ctx context.Context, rec *config.ServerConfig, opts Options) (*Handle, error) {
	logger := opts.logger()

	filter, err := NewFilter(rec.AllowedTools, rec.DisabledTools)
	if err != nil {
		return nil, clierr.Wrap(clierr.ConfigValidationFailed, err,
			"invalid tool filter for server %q", rec.Name)
	}

	if opts.Daemons != nil && !opts.NoDaemon {
		dh, derr := opts.Daemons.Get(ctx, rec)
		if derr == nil {
			logger.Debug("using daemon session", zap.String("server", rec.Name))
			return &Handle{server: rec.Name, filter: filter, logger: logger, daemon: dh}, nil
		}
		logger.Debug("daemon unavailable, connecting directly",
			zap.String("server", rec.Name), zap.Error(derr))
	}

	var sess transport.Session
	policy := retry.Policy{MaxAttempts: opts.MaxRetries, BaseDelay: opts.RetryDelay}
	err = retry.Do(ctx, policy, func() error {
		var cerr error
		sess, cerr = transport.Connect(ctx, rec, opts.Transport)
		return cerr
	})
	if err != nil {
		return nil, err
	}
	return &Handle{server: rec.Name, filter: filter, logger: logger, direct: sess}, nil
}

// Server returns the server name behind the handle.
func (h *Handle) Server() string { return h.server }

// IsDaemon reports whether requests ride through a daemon.
func (h *Handle) IsDaemon() bool { return h.daemon != nil }

// ListTools returns the server's tools with the allow/deny filter applied.
func (h *Handle) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var (
		tools []mcp.Tool
		err   error
	)
	if h.daemon != nil {
		tools, err = h.daemon.ListTools(ctx)
	} else {
		tools, err = h.direct.ListTools(ctx)
	}
	if err != nil {
		return nil, clierr.FromError(err, clierr.ServerConnectionFailed)
	}

	filtered := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		if h.filter.Permits(t.Name) {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// CallTool invokes a tool. Disabled tools are refused locally with
// TOOL_DISABLED before any request is sent.
func (h *Handle) CallTool(ctx context.Context, name string, args map[string]interface{}) (*CallResult, error) {
	if err := h.filter.Refuse(h.server, name); err != nil {
		return nil, err
	}

	if h.daemon != nil {
		raw, err := h.daemon.CallToolRaw(ctx, name, args)
		if err != nil {
			return nil, clierr.FromError(err, clierr.ToolExecutionFailed)
		}
		var probe struct {
			IsError bool `json:"isError"`
		}
		_ = json.Unmarshal(raw, &probe)
		return &CallResult{Raw: raw, IsError: probe.IsError}, nil
	}

	result, err := h.direct.CallTool(ctx, name, args)
	if err != nil {
		return nil, clierr.FromError(err, clierr.ToolExecutionFailed)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, clierr.Wrap(clierr.ToolExecutionFailed, err,
			"failed to encode result of tool %q", name)
	}
	return &CallResult{Raw: raw, IsError: result.IsError}, nil
}

// Instructions returns the server's usage instructions from the initialize
// handshake.
func (h *Handle) Instructions(ctx context.Context) (string, error) {
	if h.daemon != nil {
		text, err := h.daemon.Instructions(ctx)
		if err != nil {
			return "", clierr.FromError(err, clierr.ServerConnectionFailed)
		}
		return text, nil
	}
	return h.direct.Instructions(), nil
}

// Close releases the handle. Idempotent. Daemon-backed handles hold no
// persistent connection, so their close is a no-op and the daemon keeps the
// session warm for the next invocation.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		if h.direct != nil {
			h.closeErr = h.direct.Close()
		}
	})
	return h.closeErr
}

// ToolSchema returns a tool's input schema as JSON regardless of which
// field carries it. Daemon-delivered tools use the raw form, direct ones
// the typed form.
func ToolSchema(t mcp.Tool) json.RawMessage {
	if len(t.RawInputSchema) > 0 {
		return t.RawInputSchema
	}
	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil
	}
	return raw
}
