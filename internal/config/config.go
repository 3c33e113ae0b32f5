// Package config loads, validates, and substitutes the mcpq server
// catalogue. The catalogue is read-only once loaded; records hand out
// everything the connection plane needs to reach one MCP server.
package config

import (
	"sort"
	"strings"

	"github.com/mcpq/mcpq/internal/clierr"
)

// Recognised OAuth grant types.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
)

// Transport kinds derived from a server record.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config is the validated server catalogue.
type Config struct {
	Servers map[string]*ServerConfig `json:"mcpServers"`

	// Path is the file the catalogue was loaded from.
	Path string `json:"-"`
}

// ServerConfig describes one MCP server. Exactly one of Command and URL is
// set; validation enforces it.
type ServerConfig struct {
	// Name is the mcpServers key; populated after parse, never serialised.
	Name string `json:"-"`

	// Stdio transport.
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`

	// HTTP transport.
	URL            string            `json:"url,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeout,omitempty"`
	OAuth          *OAuthConfig      `json:"oauth,omitempty"`

	// Tool filter patterns, glob-like, case-insensitive.
	AllowedTools  []string `json:"allowedTools,omitempty"`
	DisabledTools []string `json:"disabledTools,omitempty"`
}

// OAuthConfig is the per-server OAuth block.
type OAuthConfig struct {
	GrantType    string `json:"grantType,omitempty"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Scope        string `json:"scope,omitempty"`

	// CallbackPort is the single preferred callback port. CallbackPorts,
	// when present, fully overrides the default port search order.
	CallbackPort  int   `json:"callbackPort,omitempty"`
	CallbackPorts []int `json:"callbackPorts,omitempty"`
}

// IsStdio reports whether the record uses the stdio transport.
func (s *ServerConfig) IsStdio() bool {
	return s.Command != ""
}

// Transport returns the transport kind for the record.
func (s *ServerConfig) Transport() string {
	if s.IsStdio() {
		return TransportStdio
	}
	return TransportHTTP
}

// Grant returns the effective grant type, defaulting to authorization_code.
func (o *OAuthConfig) Grant() string {
	if o == nil || o.GrantType == "" {
		return GrantAuthorizationCode
	}
	return o.GrantType
}

// Get returns the record for name, or SERVER_NOT_FOUND naming the servers
// that do exist.
func (c *Config) Get(name string) (*ServerConfig, error) {
	s, ok := c.Servers[name]
	if !ok {
		return nil, clierr.New(clierr.ServerNotFound, "server %q is not defined in the configuration", name).
			WithDetails("known servers: %s", strings.Join(c.Names(), ", ")).
			WithSuggestion("run mcpq with no arguments to list configured servers")
	}
	return s, nil
}

// Names returns all server names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
