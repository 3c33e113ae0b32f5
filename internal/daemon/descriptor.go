package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/mcpq/mcpq/internal/names"
)

// Descriptor is the on-disk record of a running daemon. It lives next to
// the socket and lets clients judge freshness without connecting.
type Descriptor struct {
	PID        int       `json:"pid"`
	ConfigHash string    `json:"configHash"`
	StartedAt  time.Time `json:"startedAt"`
}

func descriptorPath(dir, server string) string {
	return filepath.Join(dir, names.File(server)+".pid")
}

func writeDescriptor(dir, server string, d *Descriptor) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode daemon descriptor: %w", err)
	}
	if err := os.WriteFile(descriptorPath(dir, server), raw, 0600); err != nil {
		return fmt.Errorf("failed to write daemon descriptor: %w", err)
	}
	return nil
}

func readDescriptor(dir, server string) (*Descriptor, error) {
	raw, err := os.ReadFile(descriptorPath(dir, server))
	if err != nil {
		return nil, err
	}
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("corrupt daemon descriptor: %w", err)
	}
	return &d, nil
}

// removeArtifacts deletes the descriptor and socket for a server. Safe to
// call when either is already gone.
func removeArtifacts(dir, server string, logger *zap.Logger) {
	path := descriptorPath(dir, server)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Debug("failed to remove daemon descriptor",
			zap.String("path", path), zap.Error(err))
	}
	removeEndpoint(dir, server, logger)
}
