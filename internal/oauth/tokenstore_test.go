package oauth

import (
	"context"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpq/mcpq/internal/creds"
)

func TestFileTokenStoreAbsent(t *testing.T) {
	store := NewFileTokenStore("github", creds.NewStore(t.TempDir()))

	_, err := store.GetToken(context.Background())
	assert.ErrorIs(t, err, transport.ErrNoToken)
}

func TestFileTokenStoreRoundTrip(t *testing.T) {
	store := NewFileTokenStore("github", creds.NewStore(t.TempDir()))

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, store.SaveToken(context.Background(), &transport.Token{
		AccessToken:  "at-1",
		TokenType:    "Bearer",
		RefreshToken: "rt-1",
		Scope:        "mcp.read",
		ExpiresAt:    expires,
	}))

	tok, err := store.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, "rt-1", tok.RefreshToken)
	assert.Equal(t, "mcp.read", tok.Scope)
	assert.True(t, expires.Equal(tok.ExpiresAt))
}

func TestFileTokenStoreSharesCredentialFiles(t *testing.T) {
	root := t.TempDir()
	creds1 := creds.NewStore(root)
	store := NewFileTokenStore("github", creds1)

	// A token written by the provider flow is visible to the transport.
	require.NoError(t, creds1.SaveToken("github", creds.Token{AccessToken: "from-flow"}))

	tok, err := store.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-flow", tok.AccessToken)

	// And the other way around.
	require.NoError(t, store.SaveToken(context.Background(), &transport.Token{AccessToken: "from-transport"}))
	rec, ok, err := creds1.Token("github")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from-transport", rec.AccessToken)
}

func TestFileTokenStoreHonoursContext(t *testing.T) {
	store := NewFileTokenStore("github", creds.NewStore(t.TempDir()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.GetToken(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	err = store.SaveToken(ctx, &transport.Token{AccessToken: "at"})
	assert.ErrorIs(t, err, context.Canceled)
}
