//go:build !windows

package daemon

import (
	"errors"
	"syscall"
	"time"
)

// pidAlive reports whether the OS still runs the given process. EPERM means
// the process exists but belongs to another user, which still counts.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return !errors.Is(err, syscall.ESRCH)
}

// terminate asks the process to exit and escalates to SIGKILL when it does
// not go away quickly.
func terminate(pid int) {
	if pid <= 0 {
		return
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if !pidAlive(pid) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	_ = syscall.Kill(pid, syscall.SIGKILL)
}

// detachAttr starts daemon children in their own session so they survive
// the spawning CLI process and its terminal.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
