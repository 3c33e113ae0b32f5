// Package daemon keeps warm MCP sessions alive between mcpq invocations.
//
// Each configured server gets at most one daemon: a detached mcpq process
// that owns a live upstream session and serves it over a per-user local
// socket (a Unix domain socket, or a named pipe on Windows). A daemon
// advertises itself through a descriptor file holding its pid and the hash
// of the config it was started from; clients use the descriptor to decide
// whether a running daemon is still usable or must be replaced.
//
// The wire protocol is line-delimited JSON: one request object per line in,
// one response object per line out.
package daemon

import (
	"os"
	"path/filepath"
)

// readyLine is printed to the daemon's stdout once it accepts connections.
// The spawning client waits for this line before using the socket.
const readyLine = "DAEMON_READY"

// StateDir returns the per-user directory holding daemon sockets and
// descriptors.
func StateDir() string {
	return filepath.Join(os.TempDir(), "mcpq-"+userID())
}
