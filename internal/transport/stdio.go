package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	"go.uber.org/zap"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/config"
)

// stderrTailLines bounds how much child stderr is retained for connect
// error reports.
const stderrTailLines = 20

// connectStdio spawns the record's command and runs the MCP handshake over
// its stdio pipes. The child's stderr is tee'd to the host's error stream
// for live diagnostics, and a bounded tail is kept so connect failures can
// carry the child's own words.
func connectStdio(ctx context.Context, rec *config.ServerConfig, opts Options) (Session, error) {
	logger := opts.logger().Named("stdio").With(zap.String("server", rec.Name))

	stdio := mcptransport.NewStdioWithOptions(
		rec.Command,
		mergedEnv(rec.Env),
		rec.Args,
		mcptransport.WithCommandFunc(childCommandFunc(rec.Cwd)),
	)
	cl := client.NewClient(stdio)

	logger.Debug("starting stdio server",
		zap.String("command", rec.Command),
		zap.Strings("args", rec.Args),
		zap.String("cwd", rec.Cwd))

	// The child must outlive the connect call, so it starts under a
	// background context; ctx still bounds the handshake below.
	if err := cl.Start(context.Background()); err != nil {
		return nil, clierr.Wrap(clierr.ServerConnectionFailed, err,
			"failed to start server %q: %v", rec.Name, err).
			WithDetails("command: %s", commandLine(rec)).
			WithSuggestion("check that the command exists and is executable")
	}

	// Stderr is readable only once the process is started. Drain it right
	// away so startup diagnostics (missing API keys, login prompts) are
	// neither lost nor blocked on a full pipe.
	var tail *stderrTail
	if r := stdio.Stderr(); r != nil {
		tail = newStderrTail(r, opts.stderrSink(), logger)
	}

	info, err := initialize(ctx, cl)
	if err != nil {
		_ = cl.Close()
		cerr := clierr.Wrap(clierr.ServerConnectionFailed, err,
			"failed to connect to server %q: %v", rec.Name, err).
			WithSuggestion("check the server command and its environment")
		if tail != nil {
			tail.Stop()
			if lines := tail.Tail(); lines != "" {
				cerr = cerr.WithDetails("server stderr:\n%s", lines)
			}
		}
		return nil, cerr
	}

	logger.Debug("stdio server initialized",
		zap.String("server_name", info.ServerInfo.Name),
		zap.String("server_version", info.ServerInfo.Version))

	return &session{server: rec.Name, client: cl, info: info, stderr: tail}, nil
}

// mergedEnv combines the parent environment with the record's env block.
// Record entries are appended last so they win over inherited duplicates.
func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

func commandLine(rec *config.ServerConfig) string {
	if len(rec.Args) == 0 {
		return rec.Command
	}
	return rec.Command + " " + strings.Join(rec.Args, " ")
}

// stderrTail drains a child's stderr on a goroutine, retaining a bounded
// tail and teeing every line to the host's error stream.
type stderrTail struct {
	sink   io.Writer
	logger *zap.Logger

	mu    sync.Mutex
	lines []string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newStderrTail(r io.Reader, sink io.Writer, logger *zap.Logger) *stderrTail {
	ctx, cancel := context.WithCancel(context.Background())
	t := &stderrTail{sink: sink, logger: logger, cancel: cancel}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.drain(ctx, r)
	}()
	return t
}

func (t *stderrTail) drain(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := scanner.Text()
		// The tee is verbatim so interactive prompts from the child
		// render exactly as written.
		fmt.Fprintln(t.sink, line)
		if strings.TrimSpace(line) == "" {
			continue
		}
		t.mu.Lock()
		t.lines = append(t.lines, line)
		if len(t.lines) > stderrTailLines {
			t.lines = t.lines[len(t.lines)-stderrTailLines:]
		}
		t.mu.Unlock()
	}
	if err := scanner.Err(); err != nil {
		t.logger.Debug("stderr stream read error", zap.Error(err))
	}
}

// Tail returns the retained lines joined by newlines.
func (t *stderrTail) Tail() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

// Stop cancels draining and waits briefly for the goroutine. The scanner
// only unblocks when the child's pipe closes, so the wait is bounded.
func (t *stderrTail) Stop() {
	t.cancel()
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
	}
}
