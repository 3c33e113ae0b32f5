package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// recordHashLen is the number of hex characters kept from the SHA-256 sum.
// Short enough for file names and log lines, long enough that collisions
// between a handful of per-user server records are not a concern.
const recordHashLen = 16

// Record computes a stable content hash of a server record. The value is
// canonicalised through a map round-trip so JSON object key order never
// affects the result; only field values do.
func Record(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	var canonical interface{}
	if err := json.Unmarshal(raw, &canonical); err != nil {
		return "", fmt.Errorf("failed to canonicalise record: %w", err)
	}

	stable, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to marshal canonical record: %w", err)
	}

	sum := sha256.Sum256(stable)
	return hex.EncodeToString(sum[:])[:recordHashLen], nil
}

// StringHash computes the SHA-256 hash of a string.
func StringHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
