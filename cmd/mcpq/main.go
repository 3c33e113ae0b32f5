// Command mcpq lists, inspects, searches, and calls tools on the MCP
// servers configured in mcpq.json. Repeat invocations reuse warm per-server
// daemons so agent loops stay fast.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcpq/mcpq/internal/clierr"
	"github.com/mcpq/mcpq/internal/output"
)

// version is injected by -ldflags during release builds.
var version = "dev"

// stdout is where command results are written. Swapped out in tests.
var stdout io.Writer = os.Stdout

var (
	rootCmd = &cobra.Command{
		Use:   "mcpq",
		Short: "Query and call tools on configured MCP servers",
		Long: `mcpq is a command-line MCP client. With no arguments it lists every
configured server and its tool count; subcommands inspect single servers,
search tool catalogues, and invoke tools.

Servers are read from mcpq.json (see --config for the search order).`,
		Example: `  # List all configured servers
  mcpq

  # Show one server, then one of its tools
  mcpq info github
  mcpq info github create_issue

  # Find tools by glob, or by relevance
  mcpq grep 'read_*'
  mcpq search "create pull request"

  # Call a tool
  mcpq call github create_issue '{"title": "bug"}'
  echo '{"title": "bug"}' | mcpq call github/create_issue`,
		Args:          cobra.NoArgs,
		RunE:          runList,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags, shared by every subcommand.
	configFlag       string
	outputFlag       string
	jsonFlag         bool
	withDescriptions bool
	noDaemonFlag     bool
	debugFlag        bool
	helpJSONFlag     bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFlag, "config", "c", "", "path to the mcpq.json configuration file")
	pf.StringVarP(&outputFlag, "output", "o", "", "output format (table, json, yaml)")
	pf.BoolVar(&jsonFlag, "json", false, "shorthand for --output json")
	pf.BoolVarP(&withDescriptions, "with-descriptions", "d", false, "include tool descriptions in listings")
	pf.BoolVar(&noDaemonFlag, "no-daemon", false, "connect directly instead of through per-server daemons")
	pf.BoolVar(&debugFlag, "debug", false, "enable debug logging on stderr")
	pf.BoolVar(&helpJSONFlag, "help-json", false, "print help as JSON and exit")

	// Registering the flag ourselves gives --version the -v shorthand;
	// cobra only adds the long form on its own.
	rootCmd.Flags().BoolP("version", "v", false, "print the mcpq version")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if helpJSONFlag {
			text, err := output.HelpJSON(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, text)
			os.Exit(0)
		}
		return nil
	}

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(grepCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(daemonCmd)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The signal's exit code is decided before cancel so the post-Execute
	// check below never races the command's own error return.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sigExit := make(chan int, 1)
	go func() {
		sig := <-sigCh
		if sig == syscall.SIGTERM {
			sigExit <- clierr.ExitTerminated
		} else {
			sigExit <- clierr.ExitInterrupted
		}
		cancel()
	}()

	if err := preDispatch(rootCmd, os.Args[1:]); err != nil {
		exitWithError(err)
	}

	err := rootCmd.ExecuteContext(ctx)

	select {
	case code := <-sigExit:
		os.Exit(code)
	default:
	}
	if err != nil {
		exitWithError(err)
	}
}

// exitWithError renders a taxonomy error in the selected output format and
// exits with its mapped code. Errors from outside the taxonomy keep a bare
// Error: prefix and exit 1.
func exitWithError(err error) {
	var cerr *clierr.Error
	if !errors.As(err, &cerr) {
		switch {
		case isFlagError(err):
			cerr = clierr.New(clierr.UnknownOption, "%s", err.Error()).
				WithSuggestion("run mcpq --help to see available flags")
		case errors.Is(err, context.DeadlineExceeded):
			cerr = clierr.New(clierr.ToolExecutionFailed, "operation timed out").
				WithSuggestion("raise MCPQ_TIMEOUT or check that the server is responsive")
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(clierr.ExitClientError)
		}
	}

	f, ferr := output.New(output.Resolve(outputFlag, jsonFlag))
	if ferr != nil {
		f = &output.Table{}
	}
	text, merr := f.FormatError(cerr)
	if merr != nil {
		text = cerr.Format()
	}
	fmt.Fprint(os.Stderr, text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(os.Stderr)
	}
	os.Exit(cerr.ExitCode())
}

// isFlagError recognises pflag parse failures surfaced through cobra.
func isFlagError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{
		"unknown flag",
		"unknown shorthand flag",
		"flag needs an argument",
		"invalid argument",
	} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}
