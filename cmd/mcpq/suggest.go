package main

import (
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/config"
	"github.com/mcpq/mcpq/internal/settings"
)

// aliases maps subcommand spellings carried over from other tools to what
// this one calls them. An empty target means the default listing.
var aliases = map[string]string{
	"run":      "call",
	"exec":     "call",
	"invoke":   "call",
	"ls":       "",
	"list":     "",
	"find":     "grep",
	"query":    "grep",
	"show":     "info",
	"describe": "info",
}

// takesValue lists the flags that consume the next argv element when given
// in separated form, so the argv walk does not mistake a value for a
// subcommand.
var takesValue = map[string]bool{
	"-c": true, "--config": true,
	"-o": true, "--output": true,
	"-n": true, "--limit": true,
	"-s": true, "--server": true,
	"-t": true, "--timeout": true,
	"--scope": true,
}

// preDispatch turns an unrecognised first word into a taxonomy error before
// cobra gets to report it its own way. Known subcommands fall through to
// normal execution; a word naming a configured server is ambiguous between
// call and info and says so.
func preDispatch(root *cobra.Command, argv []string) error {
	word, rest, cfgPath := firstPositional(argv)
	if word == "" || knownCommand(root, word) {
		return nil
	}

	if alias, ok := aliases[word]; ok {
		err := clierr.New(clierr.UnknownSubcommand, "unknown subcommand %q", word)
		if alias == "" {
			return err.WithSuggestion("run mcpq with no arguments to list all servers")
		}
		return err.WithSuggestion("did you mean %q?", alias)
	}

	if configuredServer(word, cfgPath) {
		return ambiguousCommand(word, rest)
	}

	return clierr.New(clierr.UnknownSubcommand, "unknown subcommand %q", word).
		WithSuggestion("expected one of: info, grep, search, call, auth")
}

// firstPositional walks argv past leading flags to the first positional
// word, capturing any --config value on the way.
func firstPositional(argv []string) (word string, rest []string, cfgPath string) {
	i := 0
	for i < len(argv) {
		arg := argv[i]
		if arg == "--" {
			i++
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			break
		}
		if eq := strings.IndexByte(arg, '='); eq >= 0 {
			if name := arg[:eq]; name == "-c" || name == "--config" {
				cfgPath = arg[eq+1:]
			}
			i++
			continue
		}
		if takesValue[arg] {
			if (arg == "-c" || arg == "--config") && i+1 < len(argv) {
				cfgPath = argv[i+1]
			}
			i += 2
			continue
		}
		i++
	}
	if i >= len(argv) {
		return "", nil, cfgPath
	}
	return argv[i], argv[i+1:], cfgPath
}

// knownCommand reports whether word is a registered subcommand, one of its
// aliases, or a cobra built-in. The built-ins are named explicitly because
// cobra only registers help and completion during Execute, after this runs.
func knownCommand(root *cobra.Command, word string) bool {
	switch word {
	case "help", "completion", "__complete", "__completeNoDesc":
		return true
	}
	for _, c := range root.Commands() {
		if c.Name() == word || c.HasAlias(word) {
			return true
		}
	}
	return false
}

// configuredServer probes the catalogue for the word. The probe is
// deliberately lax: a broken config must surface as a config error on a
// real command, not turn every subcommand typo into a load failure.
func configuredServer(name, cfgPath string) bool {
	s := settings.Load()
	cfg, err := config.Load(config.LoadOptions{
		ExplicitPath: cfgPath,
		EnvPath:      s.ConfigPath,
		StrictEnv:    false,
		Secrets:      noSecrets{},
		WarnWriter:   io.Discard,
	})
	if err != nil {
		return false
	}
	_, err = cfg.Get(name)
	return err == nil
}

// noSecrets fails every keyring lookup. The pre-dispatch probe only needs
// server names and must not touch the OS keychain.
type noSecrets struct{}

func (noSecrets) Get(string) (string, error) {
	return "", errors.New("keyring not consulted before dispatch")
}

func ambiguousCommand(server string, rest []string) error {
	// Trailing flags belong to neither suggested form.
	args := rest
	for i, arg := range rest {
		if strings.HasPrefix(arg, "-") {
			args = rest[:i]
			break
		}
	}

	callForm := append([]string{"call", server}, quoteAll(args)...)
	infoArgs := args
	if len(infoArgs) > 1 {
		infoArgs = infoArgs[:1]
	}
	infoForm := append([]string{"info", server}, infoArgs...)

	return clierr.New(clierr.AmbiguousCommand,
		"%q is a configured server, not a subcommand", server).
		WithSuggestion("did you mean \"mcpq %s\" or \"mcpq %s\"?",
			strings.Join(callForm, " "), strings.Join(infoForm, " "))
}

func quoteAll(args []string) []string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = shellQuote(arg)
	}
	return quoted
}

// shellQuote wraps an argument in single quotes when pasting it back into a
// shell would need them.
func shellQuote(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t'\"{}[]$") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// rangeArgs validates positional arity with taxonomy errors instead of
// cobra's defaults. max < 0 means unbounded.
func rangeArgs(min, max int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < min {
			return clierr.New(clierr.MissingArgument,
				"%s is missing a required argument", cmd.Name()).
				WithSuggestion("usage: %s", usage)
		}
		if max >= 0 && len(args) > max {
			return clierr.New(clierr.TooManyArguments,
				"%s takes at most %d argument(s), got %d", cmd.Name(), max, len(args)).
				WithSuggestion("usage: %s", usage)
		}
		return nil
	}
}
