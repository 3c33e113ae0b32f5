package main

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/config"
	"github.com/mcpq/mcpq/internal/creds"
	"github.com/mcpq/mcpq/internal/transport"
)

var (
	authCmd = &cobra.Command{
		Use:   "auth",
		Short: "Manage OAuth credentials for configured servers",
		Long: `Inspect and manage the OAuth credentials mcpq stores per server. Tokens
are normally obtained on demand when a server challenges a connection;
these commands exist for authenticating ahead of time, checking what is
stored, and starting over.`,
	}

	authLoginCmd = &cobra.Command{
		Use:   "login",
		Short: "Run the OAuth flow for one server now",
		Long: `Force a fresh OAuth flow for one server instead of waiting for the next
connection to be challenged. Stored tokens for the server are discarded
first, so this always re-authenticates. The browser opens for the
authorization-code grant; the client-credentials grant completes without
one.`,
		Example: `  mcpq auth login --server github
  mcpq auth login --server github --timeout 10m`,
		Args: cobra.NoArgs,
		RunE: runAuthLogin,
	}

	authStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the authentication state of each server",
		Long: `Report one of four states per server: authenticated (a usable token is
stored), expired (the stored token is past its expiry), required (OAuth
is configured but no token is stored), or not_required.

Expiry comes from the stored token record; a JWT access token without a
recorded expiry is inspected for its exp claim instead.`,
		Example: `  mcpq auth status
  mcpq auth status --server github`,
		Args: cobra.NoArgs,
		RunE: runAuthStatus,
	}

	authClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove stored credentials for one server",
		Long: `Remove the credential files stored for one server. The scope picks what
goes: tokens (access and refresh tokens), client (the dynamic client
registration), verifier (the pending PKCE verifier), or all.`,
		Example: `  mcpq auth clear --server github
  mcpq auth clear --server github --scope tokens`,
		Args: cobra.NoArgs,
		RunE: runAuthClear,
	}

	authServer  string
	authScope   string
	authTimeout time.Duration
)

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authClearCmd)

	authLoginCmd.Flags().StringVarP(&authServer, "server", "s", "", "server to authenticate with")
	authLoginCmd.Flags().DurationVar(&authTimeout, "timeout", oauthCallbackWait, "how long to wait for the browser round-trip")

	authStatusCmd.Flags().StringVarP(&authServer, "server", "s", "", "only report this server")

	authClearCmd.Flags().StringVarP(&authServer, "server", "s", "", "server whose credentials to remove")
	authClearCmd.Flags().StringVar(&authScope, "scope", "all", "what to remove (all, tokens, client, verifier)")
}

func runAuthLogin(cmd *cobra.Command, _ []string) error {
	if authServer == "" {
		return clierr.New(clierr.MissingArgument, "auth login needs a server").
			WithSuggestion("usage: mcpq auth login --server <name>")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	rec, err := a.cfg.Get(authServer)
	if err != nil {
		return err
	}
	if rec.IsStdio() || rec.OAuth == nil {
		return clierr.New(clierr.OAuthConfigError,
			"server %q has no oauth configuration", authServer).
			WithSuggestion("add an oauth block to this server in %s", a.cfg.Path)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), authTimeout)
	defer cancel()

	// Stored tokens are dropped first so the flow really runs; without this
	// a valid token would make the connect below a silent no-op.
	if err := a.store.Invalidate(authServer, creds.ScopeTokens); err != nil {
		return err
	}

	opts := a.transportOptions(true)
	opts.AuthTimeout = authTimeout
	sess, err := transport.Connect(ctx, rec, opts)
	if err != nil {
		return err
	}
	_ = sess.Close()

	info := authState(rec, a.store)
	return emitAuthRows([]authInfo{info})
}

func runAuthStatus(_ *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	servers := a.cfg.Names()
	if authServer != "" {
		if _, err := a.cfg.Get(authServer); err != nil {
			return err
		}
		servers = []string{authServer}
	}

	infos := make([]authInfo, 0, len(servers))
	for _, name := range servers {
		infos = append(infos, authState(a.cfg.Servers[name], a.store))
	}
	return emitAuthRows(infos)
}

func runAuthClear(_ *cobra.Command, _ []string) error {
	if authServer == "" {
		return clierr.New(clierr.MissingArgument, "auth clear needs a server").
			WithSuggestion("usage: mcpq auth clear --server <name> [--scope all|tokens|client|verifier]")
	}
	scope, err := creds.ParseScope(authScope)
	if err != nil {
		return clierr.Wrap(clierr.UnknownOption, err, "invalid credential scope %q", authScope).
			WithSuggestion("valid scopes: all, tokens, client, verifier")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.store.Invalidate(authServer, scope); err != nil {
		return err
	}

	f, err := formatter()
	if err != nil {
		return err
	}
	text, err := f.FormatTable(
		[]string{"SERVER", "CLEARED"},
		[][]string{{authServer, string(scope)}})
	if err != nil {
		return err
	}
	emit(text)
	return nil
}

// authInfo is one server's credential state.
type authInfo struct {
	Server  string
	Status  string
	Expires time.Time
}

// authState classifies one server against the credential store.
func authState(rec *config.ServerConfig, store *creds.Store) authInfo {
	info := authInfo{Server: rec.Name, Status: "not_required"}
	oauthConfigured := rec.OAuth != nil && !rec.IsStdio()

	tok, ok, err := store.Token(rec.Name)
	if err != nil || !ok {
		if oauthConfigured {
			info.Status = "required"
		}
		return info
	}

	info.Expires = tok.ExpiresAt
	if info.Expires.IsZero() {
		info.Expires = jwtExpiry(tok.AccessToken)
	}
	switch {
	case tok.Expired():
		info.Status = "expired"
	case tok.ExpiresAt.IsZero() && !info.Expires.IsZero() && !time.Now().Before(info.Expires):
		info.Status = "expired"
	default:
		info.Status = "authenticated"
	}
	return info
}

// jwtExpiry extracts the exp claim from a JWT-shaped access token without
// verifying the signature; no key is available, and only the timestamp is
// wanted. Opaque tokens yield the zero time.
func jwtExpiry(token string) time.Time {
	if strings.Count(token, ".") != 2 {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

func emitAuthRows(infos []authInfo) error {
	f, err := formatter()
	if err != nil {
		return err
	}
	headers := []string{"SERVER", "STATUS", "EXPIRES"}
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		expires := "-"
		if !info.Expires.IsZero() {
			expires = info.Expires.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{info.Server, info.Status, expires})
	}
	text, err := f.FormatTable(headers, rows)
	if err != nil {
		return err
	}
	emit(text)
	return nil
}
