//go:build windows

package transport

import (
	"context"
	"os/exec"
)

// childCommandFunc builds the child process command. Windows has no Unix
// process groups, so only the working directory is applied.
func childCommandFunc(workingDir string) func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
	return func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		if workingDir != "" {
			cmd.Dir = workingDir
		}
		return cmd, nil
	}
}
