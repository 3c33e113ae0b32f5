//go:build windows

package daemon

import (
	"os"

	"github.com/mcpq/mcpq/internal/names"
)

func userID() string {
	if u := os.Getenv("USERNAME"); u != "" {
		return names.File(u)
	}
	return "default"
}
