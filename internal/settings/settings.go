// Package settings reads the runtime knobs mcpq accepts from the
// environment. Everything here has a sane default; the env only overrides.
package settings

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "MCPQ"

// Settings holds the resolved runtime configuration knobs.
type Settings struct {
	// ConfigPath is an explicit config file location (MCPQ_CONFIG_PATH).
	ConfigPath string
	// Debug enables diagnostic logging on stderr (MCPQ_DEBUG).
	Debug bool
	// Timeout is the global per-operation deadline (MCPQ_TIMEOUT, seconds).
	Timeout time.Duration
	// Concurrency is the fan-out worker pool size (MCPQ_CONCURRENCY).
	Concurrency int
	// MaxRetries caps connection attempts (MCPQ_MAX_RETRIES).
	MaxRetries int
	// RetryDelay is the backoff base delay (MCPQ_RETRY_DELAY, milliseconds).
	RetryDelay time.Duration
	// StrictEnv aborts config load on unset ${VAR} references (MCPQ_STRICT_ENV).
	StrictEnv bool
	// NoDaemon disables the daemon path entirely (MCPQ_NO_DAEMON).
	NoDaemon bool
	// DaemonIdle is the daemon self-termination timeout (MCPQ_DAEMON_TIMEOUT, seconds).
	DaemonIdle time.Duration
	// Home overrides the credential root directory (MCPQ_HOME).
	Home string
	// Output is the default output format (MCPQ_OUTPUT).
	Output string
}

// Load resolves settings from the environment over defaults.
func Load() *Settings {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("config-path", "")
	v.SetDefault("debug", false)
	v.SetDefault("timeout", 1800)
	v.SetDefault("concurrency", 5)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-delay", 1000)
	v.SetDefault("strict-env", true)
	v.SetDefault("no-daemon", false)
	v.SetDefault("daemon-timeout", 300)
	v.SetDefault("home", "")
	v.SetDefault("output", "")

	s := &Settings{
		ConfigPath:  v.GetString("config-path"),
		Debug:       v.GetBool("debug"),
		Timeout:     time.Duration(v.GetInt("timeout")) * time.Second,
		Concurrency: v.GetInt("concurrency"),
		MaxRetries:  v.GetInt("max-retries"),
		RetryDelay:  time.Duration(v.GetInt("retry-delay")) * time.Millisecond,
		StrictEnv:   v.GetBool("strict-env"),
		NoDaemon:    v.GetBool("no-daemon"),
		DaemonIdle:  time.Duration(v.GetInt("daemon-timeout")) * time.Second,
		Home:        v.GetString("home"),
		Output:      v.GetString("output"),
	}

	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	if s.MaxRetries < 1 {
		s.MaxRetries = 1
	}
	if s.Timeout <= 0 {
		s.Timeout = 1800 * time.Second
	}
	if s.DaemonIdle <= 0 {
		s.DaemonIdle = 300 * time.Second
	}

	return s
}
