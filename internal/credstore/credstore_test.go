package credstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWipeRemovesEverything(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "whatsmeow.db"), []byte("creds"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "whatsmeow.db-wal"), []byte("wal"), 0o600))

	store := New(dir, zerolog.Nop())
	require.NoError(t, store.Wipe())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "wipe must leave an empty directory")
}

func TestWipeOnMissingDirIsFine(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never-created")
	store := New(dir, zerolog.Nop())
	require.NoError(t, store.Wipe())

	// The directory exists afterwards, ready for the next pairing.
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDir(t *testing.T) {
	store := New("/tmp/zapgate-session", zerolog.Nop())
	assert.Equal(t, "/tmp/zapgate-session", store.Dir())
}
