package backoffice

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTokenStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	fs := FileTokenStore{Dir: dir}

	tok, err := fs.Load()
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, fs.Save("first"))
	require.NoError(t, fs.Save("second"))

	tok, err = fs.Load()
	require.NoError(t, err)
	assert.Equal(t, "second", tok)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(fs.Path())
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
	assert.Equal(t, TokenFileName, entries[0].Name())

	require.NoError(t, fs.Clear())
	require.NoError(t, fs.Clear())
	tok, err = fs.Load()
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestFileTokenStore_TrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, TokenFileName), []byte("tok\n"), 0o600))
	tok, err := FileTokenStore{Dir: dir}.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
}
