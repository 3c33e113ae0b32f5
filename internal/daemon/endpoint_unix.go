//go:build !windows

package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/mcpq/mcpq/internal/names"
)

func socketPath(dir, server string) string {
	return filepath.Join(dir, names.File(server)+".sock")
}

// cleanupStaleEndpoint removes a socket file left behind by a crashed
// daemon. A socket that still accepts connections belongs to a live daemon
// and is an error to take over.
func cleanupStaleEndpoint(dir, server string) error {
	path := socketPath(dir, server)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	conn, err := net.DialTimeout("unix", path, time.Second)
	if err == nil {
		conn.Close()
		return fmt.Errorf("socket %s is in use by another process", path)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("cannot remove stale socket: %w", err)
	}
	return nil
}

func listenEndpoint(dir, server string) (net.Listener, error) {
	path := socketPath(dir, server)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("cannot create unix socket: %w", err)
	}

	// User read/write only; the directory is already per-user.
	if err := os.Chmod(path, 0600); err != nil {
		ln.Close()
		os.Remove(path)
		return nil, fmt.Errorf("cannot set socket permissions: %w", err)
	}
	return ln, nil
}

func dialEndpoint(ctx context.Context, dir, server string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", socketPath(dir, server))
}

func endpointExists(dir, server string) bool {
	_, err := os.Stat(socketPath(dir, server))
	return err == nil
}

func removeEndpoint(dir, server string, logger *zap.Logger) {
	path := socketPath(dir, server)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Debug("failed to remove daemon socket",
			zap.String("path", path), zap.Error(err))
	}
}
