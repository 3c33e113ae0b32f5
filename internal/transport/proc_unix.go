//go:build !windows

package transport

import (
	"context"
	"os/exec"
	"syscall"
)

// childCommandFunc builds the child process command. The child gets its own
// process group so signals aimed at mcpq do not tear it down mid-handshake.
func childCommandFunc(workingDir string) func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
	return func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		if workingDir != "" {
			cmd.Dir = workingDir
		}
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Setpgid: true,
			Pgid:    0,
		}
		return cmd, nil
	}
}
