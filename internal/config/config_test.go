package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/mcpq/mcpq/internal/clierr"
)

type mapResolver map[string]string

func (m mapResolver) Get(name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", fmt.Errorf("secret %q not found", name)
	}
	return v, nil
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadExplicitPathWins(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "explicit.json")
	require.NoError(t, os.WriteFile(explicit, []byte(`{"mcpServers":{"a":{"command":"echo"}}}`), 0o600))
	envPath := writeConfig(t, dir, `{"mcpServers":{"b":{"command":"cat"}}}`)

	cfg, err := Load(LoadOptions{ExplicitPath: explicit, EnvPath: envPath, Secrets: mapResolver{}})
	require.NoError(t, err)
	assert.Equal(t, explicit, cfg.Path)
	assert.Contains(t, cfg.Servers, "a")
	assert.NotContains(t, cfg.Servers, "b")
}

func TestLoadEnvPathSecond(t *testing.T) {
	dir := t.TempDir()
	envPath := writeConfig(t, dir, `{"mcpServers":{"b":{"command":"cat"}}}`)

	cfg, err := Load(LoadOptions{EnvPath: envPath, Secrets: mapResolver{}})
	require.NoError(t, err)
	assert.Equal(t, envPath, cfg.Path)
	assert.Contains(t, cfg.Servers, "b")
}

func TestLoadNotFoundListsSearchedPaths(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.json")

	_, err := Load(LoadOptions{ExplicitPath: missing, Secrets: mapResolver{}})
	require.Error(t, err)

	var ce *clierr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, clierr.ConfigNotFound, ce.Type)
	assert.Contains(t, ce.Details, missing)
	assert.Contains(t, ce.Details, "./"+ConfigFileName)
}

func TestLoadFileInvalidJSON(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{"mcpServers": {`)

	_, err := LoadFile(path, LoadOptions{Secrets: mapResolver{}})
	require.Error(t, err)
	assert.True(t, clierr.IsType(err, clierr.ConfigInvalidJSON))

	var ce *clierr.Error
	require.ErrorAs(t, err, &ce)
	assert.NotEmpty(t, ce.Details, "parser message should be preserved")
}

func TestLoadFileMissingServersMapping(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{"servers":{}}`)

	_, err := LoadFile(path, LoadOptions{Secrets: mapResolver{}})
	require.Error(t, err)
	assert.True(t, clierr.IsType(err, clierr.ConfigValidationFailed))
}

func TestLoadFileSetsServerNames(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{"mcpServers":{"alpha":{"command":"echo"},"beta":{"url":"https://example.com/mcp"}}}`)

	cfg, err := LoadFile(path, LoadOptions{Secrets: mapResolver{}})
	require.NoError(t, err)
	assert.Equal(t, "alpha", cfg.Servers["alpha"].Name)
	assert.Equal(t, "beta", cfg.Servers["beta"].Name)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.Names())
}

func TestSearchPathOrder(t *testing.T) {
	paths := searchPaths("/tmp/a.json", "/tmp/b.json")
	require.GreaterOrEqual(t, len(paths), 4)
	assert.Equal(t, "/tmp/a.json", paths[0])
	assert.Equal(t, "/tmp/b.json", paths[1])
	assert.Equal(t, "./"+ConfigFileName, paths[2])

	// Duplicates collapse.
	paths = searchPaths("/tmp/a.json", "/tmp/a.json")
	assert.Equal(t, 1, countOf(paths, "/tmp/a.json"))
}

func countOf(paths []string, want string) int {
	n := 0
	for _, p := range paths {
		if p == want {
			n++
		}
	}
	return n
}

func TestValidateDetailed(t *testing.T) {
	tests := []struct {
		name        string
		server      *ServerConfig
		issueCount  int
		issueFields []string
	}{
		{
			name:       "valid stdio",
			server:     &ServerConfig{Command: "echo", Args: []string{"hi"}},
			issueCount: 0,
		},
		{
			name:       "valid http",
			server:     &ServerConfig{URL: "https://example.com/mcp"},
			issueCount: 0,
		},
		{
			name:        "both transports",
			server:      &ServerConfig{Command: "echo", URL: "https://example.com/mcp"},
			issueCount:  1,
			issueFields: []string{"mcpServers.test"},
		},
		{
			name:        "neither transport",
			server:      &ServerConfig{},
			issueCount:  1,
			issueFields: []string{"mcpServers.test"},
		},
		{
			name:        "oauth on stdio",
			server:      &ServerConfig{Command: "echo", OAuth: &OAuthConfig{}},
			issueCount:  1,
			issueFields: []string{"mcpServers.test.oauth"},
		},
		{
			name:        "unknown grant",
			server:      &ServerConfig{URL: "https://example.com/mcp", OAuth: &OAuthConfig{GrantType: "implicit"}},
			issueCount:  1,
			issueFields: []string{"mcpServers.test.oauth.grantType"},
		},
		{
			name:        "client credentials missing both",
			server:      &ServerConfig{URL: "https://example.com/mcp", OAuth: &OAuthConfig{GrantType: GrantClientCredentials}},
			issueCount:  2,
			issueFields: []string{"mcpServers.test.oauth.clientId", "mcpServers.test.oauth.clientSecret"},
		},
		{
			name: "client credentials complete",
			server: &ServerConfig{URL: "https://example.com/mcp", OAuth: &OAuthConfig{
				GrantType: GrantClientCredentials, ClientID: "id", ClientSecret: "secret",
			}},
			issueCount: 0,
		},
		{
			name:        "callback port out of range",
			server:      &ServerConfig{URL: "https://example.com/mcp", OAuth: &OAuthConfig{CallbackPort: 70000}},
			issueCount:  1,
			issueFields: []string{"mcpServers.test.oauth.callbackPort"},
		},
		{
			name:        "callback ports entry out of range",
			server:      &ServerConfig{URL: "https://example.com/mcp", OAuth: &OAuthConfig{CallbackPorts: []int{8484, -1}}},
			issueCount:  1,
			issueFields: []string{"mcpServers.test.oauth.callbackPorts[1]"},
		},
		{
			name:        "negative timeout",
			server:      &ServerConfig{Command: "echo", TimeoutSeconds: -5},
			issueCount:  1,
			issueFields: []string{"mcpServers.test.timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Servers: map[string]*ServerConfig{"test": tt.server}}
			tt.server.Name = "test"

			issues := validate(cfg)
			assert.Equal(t, tt.issueCount, len(issues), "issues: %v", issues)
			for _, field := range tt.issueFields {
				found := false
				for _, issue := range issues {
					if strings.HasPrefix(issue, field+":") || strings.HasPrefix(issue, field+" ") {
						found = true
					}
				}
				assert.True(t, found, "expected an issue rooted at %s in %v", field, issues)
			}
		})
	}
}

func TestExactlyOneTransportProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		hasCommand := rapid.Bool().Draw(t, "hasCommand")
		hasURL := rapid.Bool().Draw(t, "hasURL")

		server := &ServerConfig{Name: "gen"}
		if hasCommand {
			server.Command = rapid.StringMatching(`[a-z]{1,10}`).Draw(t, "command")
		}
		if hasURL {
			server.URL = "https://" + rapid.StringMatching(`[a-z]{1,10}`).Draw(t, "host") + ".example.com"
		}

		cfg := &Config{Servers: map[string]*ServerConfig{"gen": server}}
		issues := validate(cfg)

		if hasCommand != hasURL {
			assert.Empty(t, issues)
		} else {
			assert.NotEmpty(t, issues)
		}
	})
}

func TestSubstituteStrictListsAllMissing(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"mcpServers":{"a":{
		"command":"run",
		"args":["${MCPQ_TEST_MISSING_ONE}"],
		"env":{"KEY":"${MCPQ_TEST_MISSING_TWO}"}
	}}}`)

	_, err := LoadFile(path, LoadOptions{StrictEnv: true, Secrets: mapResolver{}})
	require.Error(t, err)

	var ce *clierr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, clierr.MissingEnvVar, ce.Type)
	assert.Contains(t, ce.Message, "MCPQ_TEST_MISSING_ONE")
	assert.Contains(t, ce.Message, "MCPQ_TEST_MISSING_TWO")
	// Sorted, deduplicated listing.
	one := strings.Index(ce.Message, "MCPQ_TEST_MISSING_ONE")
	two := strings.Index(ce.Message, "MCPQ_TEST_MISSING_TWO")
	assert.Less(t, one, two)
}

func TestSubstituteStrictResolvesSetVariables(t *testing.T) {
	t.Setenv("MCPQ_TEST_TOKEN", "s3cret")
	t.Setenv("MCPQ_TEST_HOST", "example.com")

	dir := t.TempDir()
	path := writeConfig(t, dir, `{"mcpServers":{"a":{
		"url":"https://${MCPQ_TEST_HOST}/mcp",
		"headers":{"Authorization":"Bearer ${MCPQ_TEST_TOKEN}"}
	}}}`)

	cfg, err := LoadFile(path, LoadOptions{StrictEnv: true, Secrets: mapResolver{}})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/mcp", cfg.Servers["a"].URL)
	assert.Equal(t, "Bearer s3cret", cfg.Servers["a"].Headers["Authorization"])
}

func TestSubstituteLaxWarnsAndEmpties(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"mcpServers":{"a":{"command":"run","args":["--token=${MCPQ_TEST_GONE}"]}}}`)

	var warnings bytes.Buffer
	cfg, err := LoadFile(path, LoadOptions{StrictEnv: false, Secrets: mapResolver{}, WarnWriter: &warnings})
	require.NoError(t, err)
	assert.Equal(t, "--token=", cfg.Servers["a"].Args[0])
	assert.Contains(t, warnings.String(), "MCPQ_TEST_GONE")
}

func TestSubstituteKeyringReferences(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"mcpServers":{"a":{
		"url":"https://example.com/mcp",
		"headers":{"X-Api-Key":"${keyring:prod-api-key}"}
	}}}`)

	cfg, err := LoadFile(path, LoadOptions{
		StrictEnv: true,
		Secrets:   mapResolver{"prod-api-key": "from-keyring"},
	})
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", cfg.Servers["a"].Headers["X-Api-Key"])
}

func TestSubstituteKeyringMissingStrict(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"mcpServers":{"a":{
		"url":"https://example.com/mcp",
		"headers":{"X-Api-Key":"${keyring:absent}"}
	}}}`)

	_, err := LoadFile(path, LoadOptions{StrictEnv: true, Secrets: mapResolver{}})
	require.Error(t, err)
	assert.True(t, clierr.IsType(err, clierr.MissingEnvVar))
	assert.Contains(t, err.Error(), "keyring:absent")
}

func TestServerConfigTransport(t *testing.T) {
	stdio := &ServerConfig{Command: "echo"}
	assert.True(t, stdio.IsStdio())
	assert.Equal(t, TransportStdio, stdio.Transport())

	http := &ServerConfig{URL: "https://example.com"}
	assert.False(t, http.IsStdio())
	assert.Equal(t, TransportHTTP, http.Transport())
}

func TestOAuthGrantDefault(t *testing.T) {
	var cfg *OAuthConfig
	assert.Equal(t, GrantAuthorizationCode, cfg.Grant())

	cfg = &OAuthConfig{}
	assert.Equal(t, GrantAuthorizationCode, cfg.Grant())

	cfg = &OAuthConfig{GrantType: GrantClientCredentials}
	assert.Equal(t, GrantClientCredentials, cfg.Grant())
}

func TestConfigGet(t *testing.T) {
	cfg := &Config{Servers: map[string]*ServerConfig{
		"github": {Name: "github", Command: "gh-mcp"},
	}}

	server, err := cfg.Get("github")
	require.NoError(t, err)
	assert.Equal(t, "gh-mcp", server.Command)

	_, err = cfg.Get("gitlab")
	require.Error(t, err)
	assert.True(t, clierr.IsType(err, clierr.ServerNotFound))
	assert.Contains(t, err.Error(), "gitlab")
}
