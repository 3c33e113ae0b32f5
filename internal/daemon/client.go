package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/mcpq/mcpq/internal/config"
	"github.com/mcpq/mcpq/internal/hash"
)

// Client locates, spawns, and replaces per-server daemons.
type Client struct {
	dir        string
	configPath string
	logger     *zap.Logger

	// command builds the spawn command for a server's daemon. Swapped out
	// in tests.
	command func(server string) (*exec.Cmd, error)

	readyWait time.Duration
	dialWait  time.Duration
}

// NewClient returns a daemon client rooted at dir, or at the per-user state
// directory when dir is empty. configPath is forwarded to spawned daemons so
// they load the same config the client did.
func NewClient(dir, configPath string, logger *zap.Logger) *Client {
	if dir == "" {
		dir = StateDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		dir:        dir,
		configPath: configPath,
		logger:     logger,
		readyWait:  5 * time.Second,
		dialWait:   5 * time.Second,
	}
	c.command = c.spawnCommand
	return c
}

func (c *Client) spawnCommand(server string) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("cannot locate own executable: %w", err)
	}
	args := []string{"daemon", "--server", server}
	if c.configPath != "" {
		args = append(args, "--config", c.configPath)
	}
	cmd := exec.Command(exe, args...)
	cmd.Env = os.Environ()
	return cmd, nil
}

// Get returns a handle to a daemon running the given config, reusing a
// fresh one or spawning a replacement. Errors are advisory: callers fall
// back to a direct connection rather than failing the operation.
func (c *Client) Get(ctx context.Context, rec *config.ServerConfig) (*Handle, error) {
	configHash, err := hash.Record(rec)
	if err != nil {
		return nil, fmt.Errorf("cannot hash server record: %w", err)
	}

	if h := c.existing(rec.Name, configHash); h != nil {
		return h, nil
	}
	return c.spawn(ctx, rec.Name, configHash)
}

// existing returns a handle when the descriptor, process, and socket all
// agree the running daemon matches the wanted config hash. Any mismatch
// tears the old daemon down so the caller can spawn a replacement.
func (c *Client) existing(server, configHash string) *Handle {
	desc, err := readDescriptor(c.dir, server)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Debug("unreadable daemon descriptor",
				zap.String("server", server), zap.Error(err))
			removeArtifacts(c.dir, server, c.logger)
		}
		return nil
	}

	alive := pidAlive(desc.PID)
	switch {
	case !alive:
		c.logger.Debug("daemon process is gone",
			zap.String("server", server), zap.Int("pid", desc.PID))
	case desc.ConfigHash != configHash:
		c.logger.Debug("daemon runs a stale config",
			zap.String("server", server),
			zap.String("have", desc.ConfigHash),
			zap.String("want", configHash))
	case !endpointExists(c.dir, server):
		c.logger.Debug("daemon socket is missing",
			zap.String("server", server), zap.Int("pid", desc.PID))
	default:
		return c.handle(server)
	}

	if alive {
		terminate(desc.PID)
	}
	removeArtifacts(c.dir, server, c.logger)
	return nil
}

func (c *Client) handle(server string) *Handle {
	return &Handle{server: server, dir: c.dir, dialWait: c.dialWait}
}

func (c *Client) spawn(ctx context.Context, server, configHash string) (*Handle, error) {
	cmd, err := c.command(server)
	if err != nil {
		return nil, err
	}
	cmd.SysProcAttr = detachAttr()
	cmd.Stdin = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("cannot pipe daemon stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("cannot start daemon for %q: %w", server, err)
	}
	pid := cmd.Process.Pid
	c.logger.Debug("spawned daemon",
		zap.String("server", server), zap.Int("pid", pid))

	readyCh := make(chan bool, 1)
	go func() {
		sc := bufio.NewScanner(stdout)
		for sc.Scan() {
			if strings.TrimSpace(sc.Text()) == readyLine {
				readyCh <- true
				return
			}
		}
		readyCh <- false
	}()

	readyTimer := time.NewTimer(c.readyWait)
	defer readyTimer.Stop()

	ready := false
	select {
	case ready = <-readyCh:
	case <-readyTimer.C:
	case <-ctx.Done():
	}
	_ = stdout.Close()
	_ = cmd.Process.Release()

	if !ready {
		// Leave nothing behind: the half-started daemon and its files
		// would otherwise shadow every later attempt.
		terminate(pid)
		removeArtifacts(c.dir, server, c.logger)
		return nil, fmt.Errorf("daemon for %q did not become ready within %s", server, c.readyWait)
	}

	h := c.handle(server)
	pctx, cancel := context.WithTimeout(ctx, c.dialWait)
	defer cancel()
	if err := h.Ping(pctx); err != nil {
		terminate(pid)
		removeArtifacts(c.dir, server, c.logger)
		return nil, fmt.Errorf("daemon for %q is not answering: %w", server, err)
	}

	c.logger.Debug("daemon ready",
		zap.String("server", server),
		zap.Int("pid", pid),
		zap.String("config_hash", configHash))
	return h, nil
}

// Sweep removes descriptors and sockets of daemons whose process is gone.
// Live daemons are left untouched.
func (c *Client) Sweep() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".pid") {
			continue
		}
		server := strings.TrimSuffix(name, ".pid")

		desc, err := readDescriptor(c.dir, server)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			c.logger.Debug("sweeping unreadable daemon descriptor",
				zap.String("file", name), zap.Error(err))
			removeArtifacts(c.dir, server, c.logger)
			continue
		}
		if pidAlive(desc.PID) {
			continue
		}
		c.logger.Debug("sweeping dead daemon",
			zap.String("server", server), zap.Int("pid", desc.PID))
		removeArtifacts(c.dir, server, c.logger)
	}
}

// Handle is a client-side view of one daemon. Each request opens a fresh
// socket connection; the daemon keeps the upstream session warm between
// them.
type Handle struct {
	server   string
	dir      string
	dialWait time.Duration
}

// NewHandle returns a handle for a daemon assumed to be live. Callers
// normally obtain handles through Client.Get, which verifies freshness
// first.
func NewHandle(dir, server string) *Handle {
	if dir == "" {
		dir = StateDir()
	}
	return &Handle{server: server, dir: dir, dialWait: 5 * time.Second}
}

// Server returns the server name this handle fronts.
func (h *Handle) Server() string { return h.server }

// Ping checks the daemon answers on its socket.
func (h *Handle) Ping(ctx context.Context) error {
	_, err := h.roundTrip(ctx, &request{Type: typePing})
	return err
}

// ListTools fetches the upstream tool catalogue through the daemon.
func (h *Handle) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	data, err := h.roundTrip(ctx, &request{Type: typeListTools})
	if err != nil {
		return nil, err
	}
	var wire []wireTool
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("malformed tool list from daemon: %w", err)
	}
	return wireToTools(wire), nil
}

// CallToolRaw invokes a tool and returns the MCP result exactly as the
// daemon serialised it.
func (h *Handle) CallToolRaw(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error) {
	return h.roundTrip(ctx, &request{Type: typeCallTool, ToolName: name, Args: args})
}

// Instructions fetches the server instructions captured at session start.
func (h *Handle) Instructions(ctx context.Context) (string, error) {
	data, err := h.roundTrip(ctx, &request{Type: typeGetInstructions})
	if err != nil {
		return "", err
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return "", fmt.Errorf("malformed instructions from daemon: %w", err)
	}
	return text, nil
}

// Shutdown asks the daemon to exit. The daemon acknowledges first and tears
// itself down right after.
func (h *Handle) Shutdown(ctx context.Context) error {
	_, err := h.roundTrip(ctx, &request{Type: typeClose})
	return err
}

func (h *Handle) roundTrip(ctx context.Context, req *request) (json.RawMessage, error) {
	req.ID = uuid.NewString()

	dctx, cancel := context.WithTimeout(ctx, h.dialWait)
	conn, err := dialEndpoint(dctx, h.dir, h.server)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("cannot reach daemon for %q: %w", h.server, err)
	}
	defer conn.Close()

	// The dial is bounded tightly, the response wait only by the caller's
	// context; tool calls may legitimately run for minutes.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := writeFrame(conn, req); err != nil {
		return nil, fmt.Errorf("cannot send daemon request: %w", err)
	}

	resp, err := readResponse(bufio.NewReader(conn))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("cannot read daemon response: %w", err)
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("daemon response id mismatch: got %q, want %q", resp.ID, req.ID)
	}
	if !resp.Success {
		if resp.Error == "" {
			return nil, errors.New("daemon reported an unspecified error")
		}
		return nil, errors.New(resp.Error)
	}
	return resp.Data, nil
}
