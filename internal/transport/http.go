package transport

import (
	"context"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/config"
	"github.com/mcpq/mcpq/internal/logs"
	"github.com/mcpq/mcpq/internal/oauth"
)

// connectHTTP opens a streamable HTTP session, negotiating OAuth when the
// record carries an oauth block.
func connectHTTP(ctx context.Context, rec *config.ServerConfig, opts Options) (Session, error) {
	if rec.OAuth == nil {
		return connectPlainHTTP(ctx, rec, opts)
	}
	if rec.OAuth.Grant() == config.GrantClientCredentials {
		return connectClientCredentials(ctx, rec, opts)
	}
	return connectAuthorizationCode(ctx, rec, opts)
}

// httpOptions assembles the transport options from the record. Extra
// headers are applied last so they win over configured ones.
func httpOptions(rec *config.ServerConfig, extra map[string]string) []mcptransport.StreamableHTTPCOption {
	headers := make(map[string]string, len(rec.Headers)+len(extra))
	for k, v := range rec.Headers {
		headers[k] = v
	}
	for k, v := range extra {
		headers[k] = v
	}
	var options []mcptransport.StreamableHTTPCOption
	if len(headers) > 0 {
		options = append(options, mcptransport.WithHTTPHeaders(headers))
	}
	if rec.TimeoutSeconds > 0 {
		options = append(options, mcptransport.WithHTTPTimeout(time.Duration(rec.TimeoutSeconds)*time.Second))
	}
	return options
}

func connectPlainHTTP(ctx context.Context, rec *config.ServerConfig, opts Options) (Session, error) {
	opts.logger().Debug("connecting over streamable HTTP",
		zap.String("server", rec.Name),
		zap.String("url", rec.URL))

	httpTransport, err := mcptransport.NewStreamableHTTP(rec.URL, httpOptions(rec, nil)...)
	if err != nil {
		return nil, clierr.Wrap(clierr.ServerConnectionFailed, err,
			"failed to create HTTP transport for %q: %v", rec.Name, err)
	}
	cl := client.NewClient(httpTransport)
	info, err := startAndInit(ctx, cl)
	if err != nil {
		_ = cl.Close()
		return nil, httpConnectError(rec, err)
	}
	return &session{server: rec.Name, client: cl, info: info}, nil
}

// connectAuthorizationCode opens an OAuth-backed session. Stored tokens are
// tried first; when the server challenges, the provider runs the
// authorization-code flow and the session is reopened on a fresh transport,
// since a started transport cannot be reused after the challenge.
func connectAuthorizationCode(ctx context.Context, rec *config.ServerConfig, opts Options) (Session, error) {
	logger := opts.logger()
	provider := oauth.NewProvider(rec.Name, rec.OAuth, opts.Store, logger, oauth.Options{
		NonInteractive: opts.NonInteractive,
		Timeout:        opts.AuthTimeout,
		Output:         opts.Output,
	})
	defer provider.Cleanup()

	// The listener binds before any authorization URL is built so the
	// redirect URI always names a live port.
	if _, err := provider.EnsureListener(); err != nil {
		return nil, err
	}

	cl, err := oauthClient(rec, provider, opts)
	if err != nil {
		return nil, err
	}
	info, initErr := startAndInit(ctx, cl)
	if initErr == nil {
		return &session{server: rec.Name, client: cl, info: info}, nil
	}
	_ = cl.Close()
	if !oauthRequired(initErr) {
		return nil, httpConnectError(rec, initErr)
	}

	logger.Debug("server requires OAuth authorization", zap.String("server", rec.Name))

	ep, err := discoverEndpoints(ctx, rec, initErr)
	if err != nil {
		return nil, err
	}
	cli, err := provider.EnsureClient(ctx, ep.RegistrationEndpoint)
	if err != nil {
		return nil, err
	}
	flow, err := provider.BeginFlow()
	if err != nil {
		return nil, err
	}
	authURL, err := provider.AuthCodeURL(ep, cli, flow)
	if err != nil {
		return nil, err
	}
	if err := provider.Authorize(authURL); err != nil {
		return nil, err
	}
	if opts.NonInteractive {
		return nil, clierr.New(clierr.AuthRequired,
			"server %q requires OAuth authorization", rec.Name).
			WithDetails("authorization URL: %s", provider.CapturedAuthURL()).
			WithSuggestion("open the URL in a browser to authorize, then re-run the command")
	}
	code, err := provider.AwaitCode(ctx, flow.State)
	if err != nil {
		return nil, err
	}
	if _, err := provider.ExchangeCode(ctx, ep, cli, code); err != nil {
		return nil, err
	}

	// The challenged transport is spent; reopen with the stored tokens.
	fresh, err := oauthClient(rec, provider, opts)
	if err != nil {
		return nil, err
	}
	info, err = startAndInit(ctx, fresh)
	if err != nil {
		_ = fresh.Close()
		return nil, httpConnectError(rec, err)
	}
	return &session{server: rec.Name, client: fresh, info: info}, nil
}

// connectClientCredentials mints a service token when needed and connects
// with a bearer header. There is no browser or callback in this grant.
func connectClientCredentials(ctx context.Context, rec *config.ServerConfig, opts Options) (Session, error) {
	provider := oauth.NewProvider(rec.Name, rec.OAuth, opts.Store, opts.Logger, oauth.Options{
		NonInteractive: opts.NonInteractive,
		Timeout:        opts.AuthTimeout,
		Output:         opts.Output,
	})

	if tok, ok, err := opts.Store.Token(rec.Name); err == nil && ok && !tok.Expired() {
		sess, err := connectBearer(ctx, rec, tok.AccessToken, opts)
		if err == nil {
			return sess, nil
		}
		if !oauthRequired(err) {
			return nil, err
		}
		// Stored token rejected; fall through and mint a fresh one.
	}

	// Probe the server to learn where tokens are minted.
	probe, err := client.NewOAuthStreamableHttpClient(rec.URL, client.OAuthConfig{
		TokenStore: client.NewMemoryTokenStore(),
	})
	if err != nil {
		return nil, clierr.Wrap(clierr.ServerConnectionFailed, err,
			"failed to create HTTP transport for %q: %v", rec.Name, err)
	}
	info, initErr := startAndInit(ctx, probe)
	if initErr == nil {
		// The server never challenged, so it is effectively open.
		return &session{server: rec.Name, client: probe, info: info}, nil
	}
	_ = probe.Close()
	if !oauthRequired(initErr) {
		return nil, httpConnectError(rec, initErr)
	}
	ep, err := discoverEndpoints(ctx, rec, initErr)
	if err != nil {
		return nil, err
	}
	if ep.TokenEndpoint == "" {
		return nil, clierr.New(clierr.OAuthFlowError,
			"authorization server for %q advertises no token endpoint", rec.Name)
	}
	tok, err := provider.ClientCredentialsToken(ctx, ep.TokenEndpoint)
	if err != nil {
		return nil, err
	}
	return connectBearer(ctx, rec, tok.AccessToken, opts)
}

// connectBearer opens a plain transport that presents the given token.
func connectBearer(ctx context.Context, rec *config.ServerConfig, accessToken string, opts Options) (Session, error) {
	logs.RegisterSecret(accessToken)
	httpTransport, err := mcptransport.NewStreamableHTTP(rec.URL,
		httpOptions(rec, map[string]string{"Authorization": "Bearer " + accessToken})...)
	if err != nil {
		return nil, clierr.Wrap(clierr.ServerConnectionFailed, err,
			"failed to create HTTP transport for %q: %v", rec.Name, err)
	}
	cl := client.NewClient(httpTransport)
	info, err := startAndInit(ctx, cl)
	if err != nil {
		_ = cl.Close()
		return nil, httpConnectError(rec, err)
	}
	return &session{server: rec.Name, client: cl, info: info}, nil
}

// oauthClient builds a streamable HTTP client wired to the provider's
// redirect URI, any persisted client identity, and the shared token store.
func oauthClient(rec *config.ServerConfig, provider *oauth.Provider, opts Options) (*client.Client, error) {
	redirect, err := provider.RedirectURL()
	if err != nil {
		return nil, err
	}
	cfg := client.OAuthConfig{
		RedirectURI: redirect,
		TokenStore:  oauth.NewFileTokenStore(rec.Name, opts.Store),
		PKCEEnabled: true,
	}
	if cl, ok, err := provider.LocalClient(); err != nil {
		return nil, err
	} else if ok {
		cfg.ClientID = cl.ClientID
		cfg.ClientSecret = cl.ClientSecret
	}
	if rec.OAuth.Scope != "" {
		cfg.Scopes = strings.Fields(rec.OAuth.Scope)
	}
	return client.NewOAuthStreamableHttpClient(rec.URL, cfg)
}

// startAndInit starts the client and runs the handshake, returning the raw
// error for the caller to classify.
func startAndInit(ctx context.Context, cl *client.Client) (*mcp.InitializeResult, error) {
	if err := cl.Start(ctx); err != nil {
		return nil, err
	}
	return initialize(ctx, cl)
}

// discoverEndpoints extracts the authorization server endpoints from an
// OAuth challenge raised during connect.
func discoverEndpoints(ctx context.Context, rec *config.ServerConfig, challenge error) (oauth.Endpoints, error) {
	handler := client.GetOAuthHandler(challenge)
	if handler == nil {
		return oauth.Endpoints{}, clierr.Wrap(clierr.OAuthFlowError, challenge,
			"server %q rejected the connection with an authorization error", rec.Name).
			WithDetails("%v", challenge).
			WithSuggestion("check the oauth block for this server")
	}
	meta, err := handler.GetServerMetadata(ctx)
	if err != nil {
		return oauth.Endpoints{}, clierr.Wrap(clierr.OAuthFlowError, err,
			"failed to discover the authorization server for %q: %v", rec.Name, err)
	}
	return oauth.Endpoints{
		AuthorizationEndpoint: meta.AuthorizationEndpoint,
		TokenEndpoint:         meta.TokenEndpoint,
		RegistrationEndpoint:  meta.RegistrationEndpoint,
	}, nil
}

func httpConnectError(rec *config.ServerConfig, err error) error {
	return clierr.Wrap(clierr.ServerConnectionFailed, err,
		"failed to connect to server %q: %v", rec.Name, err).
		WithDetails("url: %s", rec.URL).
		WithSuggestion("check that the server URL is reachable")
}
