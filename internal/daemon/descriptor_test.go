//go:build !windows

package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDescriptorRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := &Descriptor{
		PID:        4242,
		ConfigHash: "deadbeefcafe0123",
		StartedAt:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, writeDescriptor(dir, "alpha", want))

	got, err := readDescriptor(dir, "alpha")
	require.NoError(t, err)
	assert.Equal(t, want.PID, got.PID)
	assert.Equal(t, want.ConfigHash, got.ConfigHash)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
}

func TestDescriptorPermissions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeDescriptor(dir, "alpha", &Descriptor{PID: 1}))

	info, err := os.Stat(descriptorPath(dir, "alpha"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestDescriptorNameSanitised(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeDescriptor(dir, "my server/v2", &Descriptor{PID: 1}))

	_, err := os.Stat(filepath.Join(dir, "my_server_v2.pid"))
	assert.NoError(t, err)

	got, err := readDescriptor(dir, "my server/v2")
	require.NoError(t, err)
	assert.Equal(t, 1, got.PID)
}

func TestReadDescriptorCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(descriptorPath(dir, "alpha"), []byte("{oops"), 0600))

	_, err := readDescriptor(dir, "alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt")
}

func TestRemoveArtifactsIdempotent(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop()

	require.NoError(t, writeDescriptor(dir, "alpha", &Descriptor{PID: 1}))
	require.NoError(t, os.WriteFile(socketPath(dir, "alpha"), nil, 0600))

	removeArtifacts(dir, "alpha", logger)
	_, err := os.Stat(descriptorPath(dir, "alpha"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(socketPath(dir, "alpha"))
	assert.True(t, os.IsNotExist(err))

	// A second pass over missing files is quiet.
	removeArtifacts(dir, "alpha", logger)
}
