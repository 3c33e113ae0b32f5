package config

import (
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/secret"
)

// varPattern matches ${VAR} references; group 1 is the variable name.
var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// keyringPattern matches ${keyring:NAME} references; group 1 is the secret name.
var keyringPattern = regexp.MustCompile(`\$\{keyring:([^}]+)\}`)

// substitute expands ${VAR} and ${keyring:NAME} in every string leaf of
// every server record. Strict mode collects every unresolved reference and
// aborts; lax mode expands them to "" and warns.
func substitute(cfg *Config, opts LoadOptions) error {
	resolver := opts.Secrets
	if resolver == nil {
		resolver = secret.NewKeyring()
	}

	sub := &substituter{strict: opts.StrictEnv, secrets: resolver, opts: opts}
	for _, name := range cfg.Names() {
		sub.server(cfg.Servers[name])
	}

	if len(sub.missing) > 0 {
		names := sub.missingNames()
		return clierr.New(clierr.MissingEnvVar, "missing environment variables: %s", strings.Join(names, ", ")).
			WithDetails("referenced in %s", cfg.Path).
			WithSuggestion("export the listed variables or set MCPQ_STRICT_ENV=false to substitute empty strings")
	}
	return nil
}

type substituter struct {
	strict  bool
	secrets secret.Resolver
	opts    LoadOptions
	missing map[string]struct{}
}

func (s *substituter) server(server *ServerConfig) {
	server.Command = s.value(server.Command)
	for i, arg := range server.Args {
		server.Args[i] = s.value(arg)
	}
	for k, v := range server.Env {
		server.Env[k] = s.value(v)
	}
	server.Cwd = s.value(server.Cwd)
	server.URL = s.value(server.URL)
	for k, v := range server.Headers {
		server.Headers[k] = s.value(v)
	}
	if server.OAuth != nil {
		server.OAuth.ClientID = s.value(server.OAuth.ClientID)
		server.OAuth.ClientSecret = s.value(server.OAuth.ClientSecret)
		server.OAuth.Scope = s.value(server.OAuth.Scope)
	}
}

func (s *substituter) value(in string) string {
	out := keyringPattern.ReplaceAllStringFunc(in, func(match string) string {
		name := keyringPattern.FindStringSubmatch(match)[1]
		val, err := s.secrets.Get(name)
		if err != nil {
			s.note("keyring:"+name, match)
			return ""
		}
		return val
	})
	return varPattern.ReplaceAllStringFunc(out, func(match string) string {
		name := varPattern.FindStringSubmatch(match)[1]
		val, ok := os.LookupEnv(name)
		if !ok {
			s.note(name, match)
			return ""
		}
		return val
	})
}

func (s *substituter) note(name, ref string) {
	if s.strict {
		if s.missing == nil {
			s.missing = map[string]struct{}{}
		}
		s.missing[name] = struct{}{}
		return
	}
	warnf(s.opts, "warning: %s is not set, substituting empty string\n", ref)
}

func (s *substituter) missingNames() []string {
	names := make([]string, 0, len(s.missing))
	for name := range s.missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
