// Package transport opens live MCP sessions from server catalogue records.
// Stdio records spawn a child process and speak JSON-RPC over its pipes;
// HTTP records use the streamable HTTP transport, negotiating OAuth on
// demand through the provider in internal/oauth.
package transport

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/mcpq/mcpq/internal/config"
	"github.com/mcpq/mcpq/internal/creds"
)

// Client identity reported during the MCP initialize handshake.
const (
	clientName    = "mcpq"
	clientVersion = "1.0.0"
)

// Session is one live MCP connection. The underlying mcp-go client
// serialises requests, so a Session may be shared across goroutines.
type Session interface {
	// ListTools returns the server's tool catalogue.
	ListTools(ctx context.Context) ([]mcp.Tool, error)

	// CallTool invokes one tool with JSON-object arguments. Tool-level
	// failures come back inside the result with IsError set; the error
	// return is reserved for transport and protocol failures.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)

	// Instructions returns the usage instructions the server sent during
	// the initialize handshake, or "" if it sent none.
	Instructions() string

	// Close tears down the connection and any child process.
	Close() error
}

// Options carries the cross-cutting dependencies for opening sessions.
type Options struct {
	// Store persists OAuth tokens, client registrations, and verifiers.
	Store *creds.Store

	// Logger receives connection diagnostics. Nil disables logging.
	Logger *zap.Logger

	// NonInteractive suppresses the browser during OAuth flows; the
	// authorization URL is surfaced in an AUTH_REQUIRED error instead.
	NonInteractive bool

	// AuthTimeout bounds the wait for the OAuth callback.
	AuthTimeout time.Duration

	// Output is where authorization prompts are printed. Defaults to
	// stderr so stdout stays parseable.
	Output io.Writer

	// Stderr receives the tee of a stdio child's error stream.
	// Defaults to os.Stderr.
	Stderr io.Writer
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o Options) stderrSink() io.Writer {
	if o.Stderr != nil {
		return o.Stderr
	}
	return os.Stderr
}

// Connect opens a session for the given server record.
func Connect(ctx context.Context, rec *config.ServerConfig, opts Options) (Session, error) {
	if rec.IsStdio() {
		return connectStdio(ctx, rec, opts)
	}
	return connectHTTP(ctx, rec, opts)
}

// session adapts a started mcp-go client to the Session interface.
type session struct {
	server string
	client *client.Client
	info   *mcp.InitializeResult
	stderr *stderrTail
}

func (s *session) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	res, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	return res.Tools, nil
}

func (s *session) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return s.client.CallTool(ctx, req)
}

func (s *session) Instructions() string {
	if s.info == nil {
		return ""
	}
	return s.info.Instructions
}

func (s *session) Close() error {
	err := s.client.Close()
	if s.stderr != nil {
		s.stderr.Stop()
	}
	return err
}

// initialize runs the MCP handshake on a started client.
func initialize(ctx context.Context, cl *client.Client) (*mcp.InitializeResult, error) {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}
	req.Params.Capabilities = mcp.ClientCapabilities{}
	return cl.Initialize(ctx, req)
}

// oauthRequired reports whether err is the server telling us a token is
// missing, expired, or rejected.
func oauthRequired(err error) bool {
	if err == nil {
		return false
	}
	if client.IsOAuthAuthorizationRequiredError(err) {
		return true
	}
	return containsAny(err.Error(), []string{
		"401", "Unauthorized", "unauthorized", "invalid_token",
	})
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
