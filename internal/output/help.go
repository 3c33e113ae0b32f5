package output

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// HelpInfo is the machine-readable description of one command, for
// agents that discover the CLI surface programmatically.
type HelpInfo struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Usage       string        `json:"usage"`
	Flags       []FlagInfo    `json:"flags,omitempty"`
	Commands    []CommandInfo `json:"commands,omitempty"`
}

// CommandInfo describes one visible subcommand.
type CommandInfo struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Usage          string `json:"usage"`
	HasSubcommands bool   `json:"has_subcommands,omitempty"`
}

// FlagInfo describes one visible flag.
type FlagInfo struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
}

// Describe builds the HelpInfo for a command, its visible flags, and
// its visible subcommands.
func Describe(cmd *cobra.Command) HelpInfo {
	info := HelpInfo{
		Name:        cmd.Name(),
		Description: cmd.Short,
		Usage:       cmd.UseLine(),
		Flags:       describeFlags(cmd),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || !sub.IsAvailableCommand() {
			continue
		}
		info.Commands = append(info.Commands, CommandInfo{
			Name:           sub.Name(),
			Description:    sub.Short,
			Usage:          sub.UseLine(),
			HasSubcommands: len(sub.Commands()) > 0,
		})
	}
	return info
}

func describeFlags(cmd *cobra.Command) []FlagInfo {
	var flags []FlagInfo
	collect := func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		flags = append(flags, FlagInfo{
			Name:        f.Name,
			Shorthand:   f.Shorthand,
			Description: f.Usage,
			Type:        f.Value.Type(),
			Default:     f.DefValue,
		})
	}
	cmd.LocalFlags().VisitAll(collect)
	cmd.InheritedFlags().VisitAll(collect)
	return flags
}

// HelpJSON renders the structured help for a command.
func HelpJSON(cmd *cobra.Command) (string, error) {
	out, err := json.MarshalIndent(Describe(cmd), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal help info: %w", err)
	}
	return string(out), nil
}
