package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcpq/mcpq/internal/config"
	"github.com/mcpq/mcpq/internal/transport"
)

// ConnectFunc opens the upstream MCP session a daemon serves. Injected so
// tests can run a daemon against a fake session.
type ConnectFunc func(ctx context.Context) (transport.Session, error)

// RunOptions configures one daemon process.
type RunOptions struct {
	// Record is the server this daemon fronts.
	Record *config.ServerConfig
	// Hash is the config hash written into the descriptor. Clients compare
	// it against the hash of their freshly loaded config.
	Hash string
	// Dir is the state directory; StateDir() when empty.
	Dir string
	// Idle is how long the daemon lingers without requests before exiting.
	Idle time.Duration
	// RequestTimeout bounds each upstream call made on behalf of a client.
	RequestTimeout time.Duration
	// Ready receives the readiness line once the socket accepts
	// connections; os.Stdout when nil.
	Ready io.Writer
	// Logger receives daemon diagnostics; a no-op logger when nil.
	Logger *zap.Logger
	// Connect opens the upstream session.
	Connect ConnectFunc
}

// Run starts a daemon and serves until the context is cancelled, a close
// request arrives, or the idle timeout fires. A nil return means a clean
// shutdown with all daemon files removed; an error means startup failed and
// nothing was left behind.
func Run(ctx context.Context, opts RunOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := opts.Dir
	if dir == "" {
		dir = StateDir()
	}
	idle := opts.Idle
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Minute
	}
	ready := opts.Ready
	if ready == nil {
		ready = os.Stdout
	}
	server := opts.Record.Name

	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("cannot create daemon state directory: %w", err)
	}
	if err := cleanupStaleEndpoint(dir, server); err != nil {
		return fmt.Errorf("cannot take over socket for %q: %w", server, err)
	}

	desc := &Descriptor{
		PID:        os.Getpid(),
		ConfigHash: opts.Hash,
		StartedAt:  time.Now().UTC(),
	}
	if err := writeDescriptor(dir, server, desc); err != nil {
		return err
	}

	sess, err := opts.Connect(ctx)
	if err != nil {
		removeArtifacts(dir, server, logger)
		return fmt.Errorf("failed to establish session with %q: %w", server, err)
	}

	ln, err := listenEndpoint(dir, server)
	if err != nil {
		_ = sess.Close()
		removeArtifacts(dir, server, logger)
		return fmt.Errorf("failed to bind daemon socket for %q: %w", server, err)
	}

	w := &worker{
		server:   server,
		dir:      dir,
		idle:     idle,
		timeout:  requestTimeout,
		logger:   logger,
		session:  sess,
		activity: make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}

	fmt.Fprintln(ready, readyLine)
	logger.Info("daemon ready",
		zap.String("server", server),
		zap.Int("pid", desc.PID),
		zap.String("config_hash", opts.Hash))

	return w.serve(ctx, ln)
}

type worker struct {
	server  string
	dir     string
	idle    time.Duration
	timeout time.Duration
	logger  *zap.Logger

	session transport.Session
	// sessMu serialises upstream calls; MCP sessions are not safe for
	// concurrent use.
	sessMu sync.Mutex

	activity chan struct{}
	quit     chan struct{}
	quitOnce sync.Once

	conns sync.WaitGroup
}

func (w *worker) serve(ctx context.Context, ln net.Listener) error {
	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			w.conns.Add(1)
			go func() {
				defer w.conns.Done()
				w.handleConn(ctx, conn)
			}()
		}
	}()

	timer := time.NewTimer(w.idle)
	defer timer.Stop()

	var reason string
	for reason == "" {
		select {
		case <-ctx.Done():
			reason = "signal"
		case <-w.quit:
			reason = "close request"
		case <-timer.C:
			reason = "idle timeout"
		case <-w.activity:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.idle)
		}
	}

	w.logger.Info("daemon shutting down",
		zap.String("server", w.server),
		zap.String("reason", reason))
	w.stop()
	_ = ln.Close()

	// Give in-flight responses a moment to flush; the process is about to
	// exit either way.
	done := make(chan struct{})
	go func() {
		w.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		w.logger.Warn("connections still open at shutdown")
	}
	<-acceptDone

	if err := w.session.Close(); err != nil {
		w.logger.Debug("failed to close upstream session", zap.Error(err))
	}
	removeArtifacts(w.dir, w.server, w.logger)
	return nil
}

func (w *worker) stop() {
	w.quitOnce.Do(func() { close(w.quit) })
}

// touch rearms the idle timer.
func (w *worker) touch() {
	select {
	case w.activity <- struct{}{}:
	default:
	}
}

func (w *worker) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	for {
		select {
		case <-w.quit:
			return
		default:
		}

		req, err := readRequest(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				w.logger.Debug("dropping connection", zap.Error(err))
			}
			return
		}
		w.touch()

		resp := w.dispatch(ctx, req)
		if err := writeFrame(conn, resp); err != nil {
			w.logger.Debug("failed to write response", zap.Error(err))
			return
		}
		if req.Type == typeClose {
			return
		}
	}
}

func (w *worker) dispatch(ctx context.Context, req *request) *response {
	w.logger.Debug("request",
		zap.String("type", req.Type),
		zap.String("tool", req.ToolName))

	resp := &response{ID: req.ID}

	cctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	switch req.Type {
	case typePing:
		resp.Success = true

	case typeListTools:
		w.sessMu.Lock()
		tools, err := w.session.ListTools(cctx)
		w.sessMu.Unlock()
		if err != nil {
			resp.Error = err.Error()
			break
		}
		data, err := json.Marshal(toolsToWire(tools))
		if err != nil {
			resp.Error = fmt.Sprintf("failed to encode tool list: %v", err)
			break
		}
		resp.Success = true
		resp.Data = data

	case typeCallTool:
		if req.ToolName == "" {
			resp.Error = "missing tool name"
			break
		}
		w.sessMu.Lock()
		result, err := w.session.CallTool(cctx, req.ToolName, req.Args)
		w.sessMu.Unlock()
		if err != nil {
			resp.Error = err.Error()
			break
		}
		data, err := json.Marshal(result)
		if err != nil {
			resp.Error = fmt.Sprintf("failed to encode tool result: %v", err)
			break
		}
		resp.Success = true
		resp.Data = data

	case typeGetInstructions:
		data, err := json.Marshal(w.session.Instructions())
		if err != nil {
			resp.Error = fmt.Sprintf("failed to encode instructions: %v", err)
			break
		}
		resp.Success = true
		resp.Data = data

	case typeClose:
		resp.Success = true
		w.stop()

	default:
		resp.Error = fmt.Sprintf("unknown request type %q", req.Type)
	}

	return resp
}
