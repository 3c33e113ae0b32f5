// Package creds persists per-server OAuth credential material as plain
// files under a per-user root. Reads are forgiving, writes are atomic
// renames, so concurrent CLI invocations never observe half-written files.
package creds

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/mcpq/mcpq/internal/names"
)

const (
	dirTokens    = "tokens"
	dirClients   = "clients"
	dirVerifiers = "verifiers"

	appDir = "mcpq"
)

// Scope selects which credential files Invalidate removes.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeClient   Scope = "client"
	ScopeTokens   Scope = "tokens"
	ScopeVerifier Scope = "verifier"
)

// ParseScope validates a scope name from the command line.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeAll, ScopeClient, ScopeTokens, ScopeVerifier:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("unknown credential scope %q (want all, client, tokens, or verifier)", s)
	}
}

// Token is the persisted OAuth token record for one server.
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// expiryBuffer covers clock skew and the time a long call may hold a token.
const expiryBuffer = 60 * time.Second

// Expired reports whether the access token is past, or within a minute of,
// its expiry. Tokens without a recorded expiry never expire locally.
func (t *Token) Expired() bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !time.Now().Add(expiryBuffer).Before(t.ExpiresAt)
}

// Client is the persisted dynamic-registration record for one server.
type Client struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
}

// Store is the file-backed credential store rooted at <root>/mcpq.
type Store struct {
	root string
}

// DefaultRoot returns the credential root: MCPQ_HOME when set, otherwise
// the XDG config home.
func DefaultRoot() string {
	if home := os.Getenv("MCPQ_HOME"); home != "" {
		return home
	}
	return xdg.ConfigHome
}

// NewStore returns a store under root. An empty root selects DefaultRoot.
func NewStore(root string) *Store {
	if root == "" {
		root = DefaultRoot()
	}
	return &Store{root: filepath.Join(root, appDir)}
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) tokenPath(server string) string {
	return filepath.Join(s.root, dirTokens, names.File(server)+".json")
}

func (s *Store) clientPath(server string) string {
	return filepath.Join(s.root, dirClients, names.File(server)+".json")
}

func (s *Store) verifierPath(server string) string {
	return filepath.Join(s.root, dirVerifiers, names.File(server)+".txt")
}

// Token reads the persisted token for server. Missing or malformed files
// report absence, not failure.
func (s *Store) Token(server string) (Token, bool, error) {
	var tok Token
	ok, err := readJSON(s.tokenPath(server), &tok)
	return tok, ok, err
}

// SaveToken persists the token for server.
func (s *Store) SaveToken(server string, tok Token) error {
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now()
	}
	return writeJSON(s.tokenPath(server), tok)
}

// Client reads the persisted registration record for server.
func (s *Store) Client(server string) (Client, bool, error) {
	var c Client
	ok, err := readJSON(s.clientPath(server), &c)
	if ok && c.ClientID == "" {
		return Client{}, false, nil
	}
	return c, ok, err
}

// SaveClient persists the registration record for server.
func (s *Store) SaveClient(server string, c Client) error {
	return writeJSON(s.clientPath(server), c)
}

// Verifier reads the in-flight PKCE verifier for server.
func (s *Store) Verifier(server string) (string, bool, error) {
	data, err := os.ReadFile(s.verifierPath(server))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read verifier for %s: %w", server, err)
	}
	verifier := strings.TrimSpace(string(data))
	if verifier == "" {
		return "", false, nil
	}
	return verifier, true, nil
}

// SaveVerifier persists the in-flight PKCE verifier for server.
func (s *Store) SaveVerifier(server, verifier string) error {
	return writeFile(s.verifierPath(server), []byte(verifier))
}

// Invalidate removes exactly the credential files in scope for server.
func (s *Store) Invalidate(server string, scope Scope) error {
	var paths []string
	switch scope {
	case ScopeAll:
		paths = []string{s.tokenPath(server), s.clientPath(server), s.verifierPath(server)}
	case ScopeTokens:
		paths = []string{s.tokenPath(server)}
	case ScopeClient:
		paths = []string{s.clientPath(server)}
	case ScopeVerifier:
		paths = []string{s.verifierPath(server)}
	default:
		return fmt.Errorf("unknown credential scope %q", scope)
	}

	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

// readJSON loads path into v. Missing and malformed files both count as
// absent.
func readJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, nil
	}
	return true, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	return writeFile(path, data)
}

// writeFile writes data to path via a same-directory temp file and rename.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".write-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions on %s: %w", tmpName, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to persist %s: %w", path, err)
	}
	return nil
}
