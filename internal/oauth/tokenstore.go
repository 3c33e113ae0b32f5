package oauth

import (
	"context"

	"github.com/mark3labs/mcp-go/client/transport"

	"github.com/mcpq/mcpq/internal/creds"
	"github.com/mcpq/mcpq/internal/logs"
)

// FileTokenStore adapts the credential store to mcp-go's token store so
// the HTTP transport injects and refreshes bearer tokens straight from
// disk. One store is bound to one server record.
type FileTokenStore struct {
	server string
	store  *creds.Store
}

// NewFileTokenStore returns a token store bound to the named server.
func NewFileTokenStore(server string, store *creds.Store) *FileTokenStore {
	return &FileTokenStore{server: server, store: store}
}

// GetToken loads the persisted token. Absence maps to transport.ErrNoToken
// so the client starts an authorization flow instead of failing outright.
func (f *FileTokenStore) GetToken(ctx context.Context) (*transport.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec, ok, err := f.store.Token(f.server)
	if err != nil {
		return nil, err
	}
	if !ok || rec.AccessToken == "" {
		return nil, transport.ErrNoToken
	}

	logs.RegisterSecret(rec.AccessToken)
	logs.RegisterSecret(rec.RefreshToken)

	return &transport.Token{
		AccessToken:  rec.AccessToken,
		TokenType:    rec.TokenType,
		RefreshToken: rec.RefreshToken,
		Scope:        rec.Scope,
		ExpiresAt:    rec.ExpiresAt,
	}, nil
}

// SaveToken persists a token minted or refreshed by the transport.
func (f *FileTokenStore) SaveToken(ctx context.Context, token *transport.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	logs.RegisterSecret(token.AccessToken)
	logs.RegisterSecret(token.RefreshToken)

	return f.store.SaveToken(f.server, creds.Token{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		Scope:        token.Scope,
		ExpiresAt:    token.ExpiresAt,
	})
}

var _ transport.TokenStore = (*FileTokenStore)(nil)
