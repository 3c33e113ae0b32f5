package oauth

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// openBrowser launches the platform's URL opener without waiting on it.
// The caller has already printed the URL, so failure here only costs the
// user a copy-paste.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		if !hasGUISession() {
			return fmt.Errorf("no graphical session detected")
		}
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// hasGUISession reports whether a graphical session is reachable on
// Linux-like hosts. SSH sessions and containers usually have none.
func hasGUISession() bool {
	if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		if t := os.Getenv("XDG_SESSION_TYPE"); t != "x11" && t != "wayland" {
			return false
		}
	}
	_, err := exec.LookPath("xdg-open")
	return err == nil
}
