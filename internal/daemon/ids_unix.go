//go:build !windows

package daemon

import (
	"os"
	"strconv"
)

func userID() string {
	return strconv.Itoa(os.Getuid())
}
