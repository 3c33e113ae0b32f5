package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/config"
	"github.com/mcpq/mcpq/internal/creds"
	"github.com/mcpq/mcpq/internal/daemon"
	"github.com/mcpq/mcpq/internal/hash"
	"github.com/mcpq/mcpq/internal/logs"
	"github.com/mcpq/mcpq/internal/retry"
	"github.com/mcpq/mcpq/internal/settings"
	"github.com/mcpq/mcpq/internal/transport"
)

// daemonCmd is the per-server worker process. The CLI spawns it on demand
// with "mcpq daemon --server <name>"; it is hidden because nothing about it
// is useful to run by hand. It prints DAEMON_READY on stdout once its
// socket accepts connections, then serves until idle.
var (
	daemonCmd = &cobra.Command{
		Use:    "daemon",
		Short:  "Run the per-server connection daemon",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE:   runDaemon,
	}

	daemonServer string
	daemonConfig string
)

func init() {
	daemonCmd.Flags().StringVar(&daemonServer, "server", "", "server to hold a session for")
	daemonCmd.Flags().StringVar(&daemonConfig, "config", "", "configuration file to load")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	if daemonServer == "" {
		return clierr.New(clierr.MissingArgument, "daemon needs a server").
			WithSuggestion("usage: mcpq daemon --server <name>")
	}

	s := settings.Load()
	explicit := daemonConfig
	if explicit == "" {
		explicit = configFlag
	}
	cfg, err := config.Load(config.LoadOptions{
		ExplicitPath: explicit,
		EnvPath:      s.ConfigPath,
		StrictEnv:    s.StrictEnv,
	})
	if err != nil {
		return err
	}
	rec, err := cfg.Get(daemonServer)
	if err != nil {
		return err
	}
	configHash, err := hash.Record(rec)
	if err != nil {
		return err
	}

	level := "info"
	if debugFlag || s.Debug {
		level = "debug"
	}
	logger, err := logs.Daemon(logs.Dir(), rec.Name, level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// The daemon has no terminal, so OAuth must run non-interactively: with
	// no stored token the connect fails, the spawning CLI falls back to a
	// direct connection, and the user authenticates there.
	topts := transport.Options{
		Store:          creds.NewStore(s.Home),
		Logger:         logger,
		NonInteractive: true,
		AuthTimeout:    oauthCallbackWait,
	}
	policy := retry.Policy{MaxAttempts: s.MaxRetries, BaseDelay: s.RetryDelay}
	connectFn := func(ctx context.Context) (transport.Session, error) {
		var sess transport.Session
		err := retry.Do(ctx, policy, func() error {
			var cerr error
			sess, cerr = transport.Connect(ctx, rec, topts)
			return cerr
		})
		return sess, err
	}

	return daemon.Run(cmd.Context(), daemon.RunOptions{
		Record:         rec,
		Hash:           configHash,
		Idle:           s.DaemonIdle,
		RequestTimeout: s.Timeout,
		Logger:         logger,
		Connect:        connectFn,
	})
}
