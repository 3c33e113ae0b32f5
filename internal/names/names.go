// Package names derives filesystem-safe names from server names. Credential
// files, daemon sockets, and daemon log files all share the same mapping so
// one server always resolves to the same artefacts.
package names

import "regexp"

var unsafe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// File replaces every character outside [A-Za-z0-9_-] with an underscore.
func File(server string) string {
	return unsafe.ReplaceAllString(server, "_")
}
