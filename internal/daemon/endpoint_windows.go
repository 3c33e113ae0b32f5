//go:build windows

package daemon

import (
	"context"
	"fmt"
	"net"

	winio "github.com/Microsoft/go-winio"
	"go.uber.org/zap"

	"github.com/mcpq/mcpq/internal/names"
)

func pipeName(server string) string {
	return `\\.\pipe\mcpq-` + userID() + `-` + names.File(server)
}

// cleanupStaleEndpoint is a no-op on Windows: named pipes vanish with their
// owning process, so there is nothing stale to remove.
func cleanupStaleEndpoint(dir, server string) error {
	return nil
}

func listenEndpoint(dir, server string) (net.Listener, error) {
	cfg := &winio.PipeConfig{
		SecurityDescriptor: "",
		MessageMode:        false,
		InputBufferSize:    65536,
		OutputBufferSize:   65536,
	}
	ln, err := winio.ListenPipe(pipeName(server), cfg)
	if err != nil {
		return nil, fmt.Errorf("cannot create named pipe: %w", err)
	}
	return ln, nil
}

func dialEndpoint(ctx context.Context, dir, server string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, pipeName(server))
}

// endpointExists always reports true on Windows; the descriptor arbitrates
// freshness because a dead owner takes its pipe with it.
func endpointExists(dir, server string) bool {
	return true
}

func removeEndpoint(dir, server string, logger *zap.Logger) {}
