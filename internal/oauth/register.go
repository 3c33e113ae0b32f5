package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/creds"
)

// registrationRequest is the RFC 7591 dynamic registration payload.
type registrationRequest struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris,omitempty"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

// registrationResponse is the subset of the registration response the CLI
// keeps.
type registrationResponse struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
}

// registerClient POSTs the registration request to the endpoint and
// returns the issued client record.
func registerClient(ctx context.Context, endpoint string, req registrationRequest, logger *zap.Logger) (creds.Client, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return creds.Client{}, fmt.Errorf("failed to marshal registration request: %w", err)
	}

	logger.Debug("registering OAuth client",
		zap.String("endpoint", endpoint),
		zap.Strings("redirect_uris", req.RedirectURIs),
		zap.Strings("grant_types", req.GrantTypes),
		zap.String("auth_method", req.TokenEndpointAuthMethod))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return creds.Client{}, fmt.Errorf("failed to create registration request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return creds.Client{}, clierr.Wrap(clierr.OAuthFlowError, err, "client registration request failed").
			WithSuggestion("check connectivity to %s", endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return creds.Client{}, clierr.New(clierr.OAuthFlowError, "client registration failed with status %d", resp.StatusCode).
			WithDetails("%s", strings.TrimSpace(string(respBody))).
			WithSuggestion("configure oauth.clientId manually if the server restricts registration")
	}

	var reg registrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		return creds.Client{}, clierr.Wrap(clierr.OAuthFlowError, err, "failed to parse registration response")
	}
	if reg.ClientID == "" {
		return creds.Client{}, clierr.New(clierr.OAuthFlowError, "registration response is missing client_id")
	}

	// Keep the server's echoed redirect URIs; later invocations compare
	// them against the effective redirect URL to decide on re-registration.
	uris := reg.RedirectURIs
	if len(uris) == 0 {
		uris = req.RedirectURIs
	}

	return creds.Client{
		ClientID:     reg.ClientID,
		ClientSecret: reg.ClientSecret,
		RedirectURIs: uris,
	}, nil
}
