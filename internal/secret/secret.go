// Package secret resolves ${keyring:NAME} references in configuration
// values from the operating system keyring (Keychain, Secret Service,
// Windows Credential Manager).
package secret

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

// ServiceName is the keyring service entries are stored under.
const ServiceName = "mcpq"

// Resolver retrieves named secrets. The config loader consults it for
// ${keyring:NAME} references; tests substitute a fake.
type Resolver interface {
	Get(name string) (string, error)
}

// Keyring resolves secrets from the OS keyring.
type Keyring struct {
	service string
}

// NewKeyring returns a Resolver backed by the OS keyring.
func NewKeyring() *Keyring {
	return &Keyring{service: ServiceName}
}

// Get returns the secret stored under name.
func (k *Keyring) Get(name string) (string, error) {
	value, err := keyring.Get(k.service, name)
	if err != nil {
		return "", fmt.Errorf("failed to get secret %q from keyring: %w", name, err)
	}
	return value, nil
}
