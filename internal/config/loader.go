package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/secret"
)

// ConfigFileName is the catalogue file name looked up in every search location.
const ConfigFileName = "mcpq.json"

// appDirName is the per-app directory under the XDG config home.
const appDirName = "mcpq"

// LoadOptions control catalogue loading.
type LoadOptions struct {
	// ExplicitPath is the --config flag value; searched first.
	ExplicitPath string
	// EnvPath is MCPQ_CONFIG_PATH; searched second.
	EnvPath string
	// StrictEnv aborts the load when a ${VAR} reference is unset.
	StrictEnv bool
	// Secrets resolves ${keyring:NAME} references. Nil resolves from the
	// OS keyring.
	Secrets secret.Resolver
	// WarnWriter receives lax-mode substitution diagnostics. Nil means
	// os.Stderr.
	WarnWriter io.Writer
}

// Load finds and loads the server catalogue: first existing search path
// wins, then structural validation, then environment substitution.
func Load(opts LoadOptions) (*Config, error) {
	searched := searchPaths(opts.ExplicitPath, opts.EnvPath)

	path := ""
	for _, candidate := range searched {
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
			break
		}
	}
	if path == "" {
		return nil, clierr.New(clierr.ConfigNotFound, "no configuration file found").
			WithDetails("searched: %s", strings.Join(searched, ", ")).
			WithSuggestion("create %s or pass --config <path>", ConfigFileName)
	}

	return LoadFile(path, opts)
}

// LoadFile loads the catalogue from a known path.
func LoadFile(path string, opts LoadOptions) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, clierr.Wrap(clierr.ConfigNotFound, err, "failed to read configuration file %s", path).
			WithDetails("%v", err)
	}

	var raw struct {
		Servers map[string]*ServerConfig `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, clierr.Wrap(clierr.ConfigInvalidJSON, err, "configuration file %s is not valid JSON", path).
			WithDetails("%v", err).
			WithSuggestion("check the file for trailing commas or unquoted keys")
	}

	cfg := &Config{Servers: raw.Servers, Path: path}
	if cfg.Servers == nil {
		return nil, clierr.New(clierr.ConfigValidationFailed, "configuration file %s is invalid", path).
			WithDetails(`mcpServers: required mapping is missing`).
			WithSuggestion(`wrap your servers in {"mcpServers": {...}}`)
	}

	for name, server := range cfg.Servers {
		if server == nil {
			server = &ServerConfig{}
			cfg.Servers[name] = server
		}
		server.Name = name
	}

	if issues := validate(cfg); len(issues) > 0 {
		return nil, clierr.New(clierr.ConfigValidationFailed, "configuration file %s is invalid", path).
			WithDetails("%s", strings.Join(issues, "; ")).
			WithSuggestion("fix the listed fields and retry")
	}

	if err := substitute(cfg, opts); err != nil {
		return nil, err
	}

	return cfg, nil
}

// searchPaths returns the candidate config locations in priority order,
// skipping empty entries and duplicates.
func searchPaths(explicit, envPath string) []string {
	var candidates []string
	add := func(p string) {
		if p == "" {
			return
		}
		for _, existing := range candidates {
			if existing == p {
				return
			}
		}
		candidates = append(candidates, p)
	}

	add(explicit)
	add(envPath)
	add("./" + ConfigFileName)
	if home, err := os.UserHomeDir(); err == nil {
		add(filepath.Join(home, "."+ConfigFileName))
	}
	add(filepath.Join(xdg.ConfigHome, appDirName, ConfigFileName))

	return candidates
}

// warnWriter returns the effective lax-mode diagnostic sink.
func warnWriter(opts LoadOptions) io.Writer {
	if opts.WarnWriter != nil {
		return opts.WarnWriter
	}
	return os.Stderr
}

func warnf(opts LoadOptions, format string, args ...interface{}) {
	fmt.Fprintf(warnWriter(opts), format, args...)
}
