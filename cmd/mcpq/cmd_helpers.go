package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/config"
	"github.com/mcpq/mcpq/internal/connect"
	"github.com/mcpq/mcpq/internal/creds"
	"github.com/mcpq/mcpq/internal/daemon"
	"github.com/mcpq/mcpq/internal/fanout"
	"github.com/mcpq/mcpq/internal/logs"
	"github.com/mcpq/mcpq/internal/output"
	"github.com/mcpq/mcpq/internal/settings"
	"github.com/mcpq/mcpq/internal/transport"
)

// oauthCallbackWait bounds the browser round-trip of an authorization flow.
const oauthCallbackWait = 5 * time.Minute

// app bundles everything a command invocation needs: resolved settings, the
// loaded catalogue, the credential store, and the daemon client.
type app struct {
	settings *settings.Settings
	logger   *zap.Logger
	cfg      *config.Config
	store    *creds.Store
	daemons  *daemon.Client
}

// newApp loads settings and the configuration and assembles the shared
// dependencies. Dead daemons left over from crashes are swept here so every
// invocation starts from a clean state directory.
func newApp() (*app, error) {
	s := settings.Load()
	logger := logs.Console(debugFlag || s.Debug)

	cfg, err := config.Load(config.LoadOptions{
		ExplicitPath: configFlag,
		EnvPath:      s.ConfigPath,
		StrictEnv:    s.StrictEnv,
		WarnWriter:   os.Stderr,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		settings: s,
		logger:   logger,
		cfg:      cfg,
		store:    creds.NewStore(s.Home),
	}
	if !noDaemonFlag && !s.NoDaemon {
		a.daemons = daemon.NewClient("", cfg.Path, logger)
		a.daemons.Sweep()
	}
	return a, nil
}

// deadline wraps ctx with the global operation deadline.
func (a *app) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.settings.Timeout)
}

func (a *app) transportOptions(interactive bool) transport.Options {
	return transport.Options{
		Store:          a.store,
		Logger:         a.logger,
		NonInteractive: !interactive,
		AuthTimeout:    oauthCallbackWait,
	}
}

// openOptions builds the session options for one command. Fan-out commands
// pass interactive=false so that N unauthenticated servers surface N
// AUTH_REQUIRED statuses instead of opening N browser tabs.
func (a *app) openOptions(interactive bool) connect.Options {
	opts := connect.Options{
		Transport:  a.transportOptions(interactive),
		MaxRetries: a.settings.MaxRetries,
		RetryDelay: a.settings.RetryDelay,
		Logger:     a.logger,
	}
	if a.daemons != nil {
		opts.Daemons = a.daemons
	}
	return opts
}

// open connects to one server by name.
func (a *app) open(ctx context.Context, server string, interactive bool) (*connect.Handle, error) {
	rec, err := a.cfg.Get(server)
	if err != nil {
		return nil, err
	}
	return connect.Open(ctx, rec, a.openOptions(interactive))
}

// catalogue fans out a ListTools over every configured server. Output order
// follows cfg.Names(); per-server failures ride in the result slots.
func (a *app) catalogue(ctx context.Context) []fanout.Result[[]mcp.Tool] {
	opts := a.openOptions(false)
	return fanout.Run(ctx, a.cfg.Names(), a.settings.Concurrency,
		func(ctx context.Context, server string) ([]mcp.Tool, error) {
			rec, err := a.cfg.Get(server)
			if err != nil {
				return nil, err
			}
			h, err := connect.Open(ctx, rec, opts)
			if err != nil {
				return nil, err
			}
			defer h.Close()
			return h.ListTools(ctx)
		})
}

// warnFailures reports failed catalogue slots on stderr so match listings
// stay clean while missing coverage remains visible.
func warnFailures(results []fanout.Result[[]mcp.Tool]) {
	for _, res := range results {
		if res.Err == nil {
			continue
		}
		cerr := clierr.FromError(res.Err, clierr.ServerConnectionFailed)
		fmt.Fprintf(os.Stderr, "warning: server %q skipped: %s\n", res.Server, cerr.Message)
	}
}

// formatter resolves the output format from flags and environment.
func formatter() (output.Formatter, error) {
	return output.New(output.Resolve(outputFlag, jsonFlag))
}

// emit writes rendered output with exactly one trailing newline.
func emit(text string) {
	fmt.Fprint(stdout, text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(stdout)
	}
}

// oneLine clips a description to a single table-friendly line.
func oneLine(s string, max int) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}
