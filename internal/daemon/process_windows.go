//go:build windows

package daemon

import (
	"os"
	"syscall"
	"unsafe"
)

const (
	processQueryInformation = 0x0400
	stillActive             = 259

	// DETACHED_PROCESS; not exposed by the syscall package.
	detachedProcess = 0x00000008
)

var (
	kernel32           = syscall.NewLazyDLL("kernel32.dll")
	openProcess        = kernel32.NewProc("OpenProcess")
	getExitCodeProcess = kernel32.NewProc("GetExitCodeProcess")
	closeHandle        = kernel32.NewProc("CloseHandle")
)

// pidAlive reports whether the process is still running. Windows has no
// signal 0, so the exit code is queried through the process handle.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	handle, _, _ := openProcess.Call(
		uintptr(processQueryInformation),
		uintptr(0),
		uintptr(pid),
	)
	if handle == 0 {
		return false
	}
	defer closeHandle.Call(handle)

	var exitCode uint32
	ret, _, _ := getExitCodeProcess.Call(handle, uintptr(unsafe.Pointer(&exitCode)))
	if ret == 0 {
		return false
	}
	return exitCode == stillActive
}

// terminate kills the process. os.Process.Kill calls TerminateProcess, which
// is as graceful as Windows gets without a console.
func terminate(pid int) {
	if pid <= 0 {
		return
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	_ = proc.Kill()
}

// detachAttr starts daemon children detached from the spawning console.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | detachedProcess,
	}
}
