// Package oauth drives the authorization flows for remote MCP servers:
// authorization-code with PKCE through a provider-owned localhost callback
// listener, and client_credentials as a direct token request. Tokens,
// registered clients, and in-flight verifiers persist through the
// credential store so later invocations skip the browser entirely.
package oauth

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/config"
	"github.com/mcpq/mcpq/internal/creds"
)

// clientName is the name advertised during dynamic client registration.
const clientName = "mcpq"

// defaultPortOrder is the callback port search sequence when the
// configuration names no explicit list. It ends in 0 so the OS can always
// assign a free port and the search cannot run dry.
var defaultPortOrder = []int{8484, 8485, 8486, 8487, 0}

// Endpoints carries the authorization-server endpoints one flow needs.
// The transport layer fills it from the metadata discovered after a 401.
type Endpoints struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	RegistrationEndpoint  string
}

// Options adjust provider behaviour for one invocation.
type Options struct {
	// NonInteractive captures the authorization URL instead of opening a
	// browser, for callers that cannot present one.
	NonInteractive bool

	// Timeout bounds the callback wait. Zero selects DefaultCallbackTimeout.
	Timeout time.Duration

	// Output receives the printed authorization URL. Defaults to os.Stderr.
	Output io.Writer
}

// Provider owns the OAuth flow state for one server record: the callback
// listener, client information resolution, verifier persistence, and the
// token exchange. One provider serves one flow at a time.
type Provider struct {
	server string
	cfg    *config.OAuthConfig
	store  *creds.Store
	logger *zap.Logger
	opts   Options
	out    io.Writer

	mu          sync.Mutex
	callback    *CallbackServer
	capturedURL string
}

// NewProvider builds a provider for the named server record. cfg may be
// nil, in which case the defaults (authorization_code, dynamic
// registration, default ports) apply.
func NewProvider(server string, cfg *config.OAuthConfig, store *creds.Store, logger *zap.Logger, opts Options) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return &Provider{
		server: server,
		cfg:    cfg,
		store:  store,
		logger: logger.Named("oauth").With(zap.String("server", server)),
		opts:   opts,
		out:    out,
	}
}

func (p *Provider) grant() string {
	return p.cfg.Grant()
}

// portFallback computes the callback port order. An explicit callbackPorts
// list overrides the default order entirely; otherwise the preferred
// callbackPort is tried first, then the defaults, duplicates removed.
func (p *Provider) portFallback() []int {
	if p.cfg != nil && len(p.cfg.CallbackPorts) > 0 {
		return p.cfg.CallbackPorts
	}

	ports := make([]int, 0, len(defaultPortOrder)+1)
	seen := make(map[int]bool)
	add := func(port int) {
		if seen[port] {
			return
		}
		seen[port] = true
		ports = append(ports, port)
	}
	if p.cfg != nil && p.cfg.CallbackPort > 0 {
		add(p.cfg.CallbackPort)
	}
	for _, port := range defaultPortOrder {
		add(port)
	}
	return ports
}

// EnsureListener binds the callback listener if it is not already bound.
// Re-entry during one flow reuses the listener from pre-start.
func (p *Provider) EnsureListener() (*CallbackServer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.callback != nil {
		return p.callback, nil
	}
	srv, err := StartCallbackServer(p.portFallback(), p.logger)
	if err != nil {
		return nil, err
	}
	p.callback = srv
	return srv, nil
}

// Cleanup releases the callback listener. Safe when none was started and
// safe to call repeatedly.
func (p *Provider) Cleanup() {
	p.mu.Lock()
	srv := p.callback
	p.callback = nil
	p.mu.Unlock()
	if srv != nil {
		srv.Close()
	}
}

// RedirectURL returns the redirect URL for the effective port, binding the
// listener on first use. The client_credentials grant has no redirect and
// yields an empty string.
func (p *Provider) RedirectURL() (string, error) {
	if p.grant() == config.GrantClientCredentials {
		return "", nil
	}
	srv, err := p.EnsureListener()
	if err != nil {
		return "", err
	}
	return srv.RedirectURL(), nil
}

// LocalClient resolves client information without touching the network. A
// static clientId wins unconditionally; otherwise the persisted
// registration is used when its redirect URIs still cover the current
// redirect URL, and invalidated when they do not.
func (p *Provider) LocalClient() (creds.Client, bool, error) {
	if p.cfg != nil && p.cfg.ClientID != "" {
		return creds.Client{ClientID: p.cfg.ClientID, ClientSecret: p.cfg.ClientSecret}, true, nil
	}

	stored, ok, err := p.store.Client(p.server)
	if err != nil || !ok {
		return creds.Client{}, false, err
	}

	if p.grant() == config.GrantClientCredentials {
		return stored, true, nil
	}

	redirect, err := p.RedirectURL()
	if err != nil {
		return creds.Client{}, false, err
	}
	if !containsURI(stored.RedirectURIs, redirect) {
		p.logger.Debug("stored client registration does not cover the redirect URL, discarding",
			zap.Strings("stored_uris", stored.RedirectURIs),
			zap.String("redirect_url", redirect))
		if err := p.store.Invalidate(p.server, creds.ScopeClient); err != nil {
			return creds.Client{}, false, err
		}
		return creds.Client{}, false, nil
	}
	return stored, true, nil
}

// EnsureClient resolves client information, registering dynamically when
// nothing usable is configured or persisted. registrationEndpoint may be
// empty when the authorization server advertises none.
func (p *Provider) EnsureClient(ctx context.Context, registrationEndpoint string) (creds.Client, error) {
	cl, ok, err := p.LocalClient()
	if err != nil {
		return creds.Client{}, err
	}
	if ok {
		return cl, nil
	}

	if registrationEndpoint == "" {
		return creds.Client{}, clierr.New(clierr.OAuthConfigError, "server %q does not support dynamic client registration", p.server).
			WithDetails("the authorization server metadata has no registration_endpoint").
			WithSuggestion("set oauth.clientId (and oauth.clientSecret if one was issued) in the configuration")
	}

	redirect, err := p.RedirectURL()
	if err != nil {
		return creds.Client{}, err
	}

	registered, err := registerClient(ctx, registrationEndpoint, p.registrationMetadata(redirect), p.logger)
	if err != nil {
		return creds.Client{}, err
	}
	if err := p.store.SaveClient(p.server, registered); err != nil {
		return creds.Client{}, err
	}
	p.logger.Info("registered OAuth client",
		zap.String("client_id", registered.ClientID),
		zap.Bool("has_secret", registered.ClientSecret != ""))
	return registered, nil
}

// registrationMetadata builds the registration request advertising exactly
// the grant the record is configured for.
func (p *Provider) registrationMetadata(redirect string) registrationRequest {
	req := registrationRequest{
		ClientName:              clientName,
		TokenEndpointAuthMethod: "none",
	}
	if p.cfg != nil {
		req.Scope = p.cfg.Scope
		if p.cfg.ClientSecret != "" {
			req.TokenEndpointAuthMethod = "client_secret_post"
		}
	}

	switch p.grant() {
	case config.GrantClientCredentials:
		req.GrantTypes = []string{"client_credentials"}
	default:
		req.GrantTypes = []string{"authorization_code", "refresh_token"}
		req.ResponseTypes = []string{"code"}
		req.RedirectURIs = []string{redirect}
	}
	return req
}

// Flow carries the per-authorization secrets minted at redirect time.
type Flow struct {
	State    string
	Verifier string
}

// BeginFlow mints the state and PKCE verifier for one authorization and
// persists the verifier so the exchange can read it back, possibly from
// another process.
func (p *Provider) BeginFlow() (*Flow, error) {
	verifier, err := mcpclient.GenerateCodeVerifier()
	if err != nil {
		return nil, clierr.Wrap(clierr.OAuthFlowError, err, "failed to generate PKCE code verifier")
	}
	state, err := mcpclient.GenerateState()
	if err != nil {
		return nil, clierr.Wrap(clierr.OAuthFlowError, err, "failed to generate state parameter")
	}
	if err := p.SaveCodeVerifier(verifier); err != nil {
		return nil, err
	}
	return &Flow{State: state, Verifier: verifier}, nil
}

// SaveCodeVerifier persists the PKCE verifier for the in-flight flow.
func (p *Provider) SaveCodeVerifier(verifier string) error {
	return p.store.SaveVerifier(p.server, verifier)
}

// CodeVerifier reads the persisted PKCE verifier back. Absence at exchange
// time is fatal for the flow.
func (p *Provider) CodeVerifier() (string, error) {
	verifier, ok, err := p.store.Verifier(p.server)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", clierr.New(clierr.OAuthFlowError, "no PKCE code verifier stored for %q", p.server).
			WithDetails("the verifier is written when authorization starts and cleared after the token exchange").
			WithSuggestion("re-run the command to restart the authorization flow")
	}
	return verifier, nil
}

// AuthCodeURL builds the authorization URL for the flow with an S256
// challenge derived from the verifier.
func (p *Provider) AuthCodeURL(ep Endpoints, cl creds.Client, flow *Flow) (string, error) {
	redirect, err := p.RedirectURL()
	if err != nil {
		return "", err
	}
	cfg := p.oauth2Config(ep, cl, redirect)
	return cfg.AuthCodeURL(flow.State, oauth2.S256ChallengeOption(flow.Verifier)), nil
}

// Authorize presents the authorization URL to the user. The redirect_uri
// parameter is rewritten to the effective value first, since the port
// bound at runtime may differ from anything registered earlier. The URL is
// always printed; the browser launch is fire-and-forget. Non-interactive
// mode captures the URL for the caller and skips both.
func (p *Provider) Authorize(authURL string) error {
	rewritten, err := p.rewriteRedirect(authURL)
	if err != nil {
		return err
	}

	if p.opts.NonInteractive {
		p.mu.Lock()
		p.capturedURL = rewritten
		p.mu.Unlock()
		p.logger.Debug("captured authorization URL in non-interactive mode")
		return nil
	}

	fmt.Fprintf(p.out, "\nOpen this URL in your browser to authorize %q:\n\n  %s\n\n", p.server, rewritten)
	if err := openBrowser(rewritten); err != nil {
		p.logger.Debug("browser launch skipped", zap.Error(err))
	}
	return nil
}

// CapturedAuthURL returns the URL captured in non-interactive mode, empty
// until Authorize has run.
func (p *Provider) CapturedAuthURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capturedURL
}

// rewriteRedirect forces the URL's redirect_uri query parameter to the
// effective redirect URL.
func (p *Provider) rewriteRedirect(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", clierr.Wrap(clierr.OAuthFlowError, err, "authorization URL is not a valid URL")
	}
	redirect, err := p.RedirectURL()
	if err != nil {
		return "", err
	}
	if redirect == "" {
		return raw, nil
	}
	q := u.Query()
	q.Set("redirect_uri", redirect)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// AwaitCode blocks until the callback resolves, then verifies the state
// parameter matches the one minted for this flow.
func (p *Provider) AwaitCode(ctx context.Context, state string) (string, error) {
	srv, err := p.EnsureListener()
	if err != nil {
		return "", err
	}
	res, err := srv.Wait(ctx, p.opts.Timeout)
	if err != nil {
		return "", err
	}
	if res.State != state {
		return "", clierr.New(clierr.OAuthFlowError, "state parameter mismatch in OAuth callback").
			WithDetails("expected %q, got %q", state, res.State).
			WithSuggestion("retry the command; if this repeats, another process may be answering on the callback port")
	}
	return res.Code, nil
}

// ExchangeCode trades the authorization code for tokens, persists them,
// and clears the single-use verifier.
func (p *Provider) ExchangeCode(ctx context.Context, ep Endpoints, cl creds.Client, code string) (creds.Token, error) {
	verifier, err := p.CodeVerifier()
	if err != nil {
		return creds.Token{}, err
	}
	redirect, err := p.RedirectURL()
	if err != nil {
		return creds.Token{}, err
	}

	tok, err := p.oauth2Config(ep, cl, redirect).Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return creds.Token{}, clierr.Wrap(clierr.OAuthFlowError, err, "token exchange failed for %q", p.server).
			WithSuggestion("re-run the command to restart the authorization flow")
	}

	rec := tokenRecord(tok)
	if err := p.store.SaveToken(p.server, rec); err != nil {
		return creds.Token{}, err
	}
	if err := p.store.Invalidate(p.server, creds.ScopeVerifier); err != nil {
		p.logger.Debug("could not clear used code verifier", zap.Error(err))
	}
	p.logger.Info("OAuth tokens saved",
		zap.Time("expires_at", rec.ExpiresAt),
		zap.Bool("has_refresh_token", rec.RefreshToken != ""))
	return rec, nil
}

// TokenRequestParams returns the URL-encoded body for a client_credentials
// token request. An override replaces the configured scope for this call.
func (p *Provider) TokenRequestParams(scopeOverride ...string) url.Values {
	params := url.Values{}
	params.Set("grant_type", "client_credentials")

	scope := ""
	if p.cfg != nil {
		scope = p.cfg.Scope
	}
	if len(scopeOverride) > 0 {
		scope = scopeOverride[0]
	}
	if scope != "" {
		params.Set("scope", scope)
	}
	return params
}

// ClientCredentialsToken executes the client_credentials grant against the
// token endpoint and persists the result. No browser round-trip happens.
func (p *Provider) ClientCredentialsToken(ctx context.Context, tokenEndpoint string) (creds.Token, error) {
	if p.cfg == nil || p.cfg.ClientID == "" || p.cfg.ClientSecret == "" {
		return creds.Token{}, clierr.New(clierr.OAuthConfigError, "grant client_credentials requires oauth.clientId and oauth.clientSecret").
			WithSuggestion("add both to the oauth block for %q", p.server)
	}

	cc := &clientcredentials.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		TokenURL:     tokenEndpoint,
		// client_secret_post: credentials travel in the form body.
		AuthStyle: oauth2.AuthStyleInParams,
	}
	if p.cfg.Scope != "" {
		cc.Scopes = strings.Fields(p.cfg.Scope)
	}

	tok, err := cc.Token(ctx)
	if err != nil {
		return creds.Token{}, clierr.Wrap(clierr.OAuthFlowError, err, "client_credentials token request failed for %q", p.server).
			WithSuggestion("check oauth.clientId and oauth.clientSecret")
	}

	rec := tokenRecord(tok)
	if rec.Scope == "" {
		rec.Scope = p.cfg.Scope
	}
	if err := p.store.SaveToken(p.server, rec); err != nil {
		return creds.Token{}, err
	}
	p.logger.Info("client_credentials token saved", zap.Time("expires_at", rec.ExpiresAt))
	return rec, nil
}

// oauth2Config assembles the x/oauth2 configuration for one flow.
func (p *Provider) oauth2Config(ep Endpoints, cl creds.Client, redirect string) *oauth2.Config {
	cfg := &oauth2.Config{
		ClientID:     cl.ClientID,
		ClientSecret: cl.ClientSecret,
		RedirectURL:  redirect,
		Endpoint: oauth2.Endpoint{
			AuthURL:   ep.AuthorizationEndpoint,
			TokenURL:  ep.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if p.cfg != nil && p.cfg.Scope != "" {
		cfg.Scopes = strings.Fields(p.cfg.Scope)
	}
	return cfg
}

// tokenRecord converts an oauth2 token into the persisted record shape.
func tokenRecord(tok *oauth2.Token) creds.Token {
	rec := creds.Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		rec.Scope = scope
	}
	return rec
}

func containsURI(uris []string, target string) bool {
	for _, u := range uris {
		if u == target {
			return true
		}
	}
	return false
}
