package blobs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAndCache(t *testing.T) {
	c, err := NewCache()
	require.NoError(t, err)
	defer c.Close()

	path := filepath.Join(t.TempDir(), "frag.bin")
	require.NoError(t, os.WriteFile(path, []byte{0xDE, 0xAD, 0xBE, 0xEF}, 0o644))

	data, err := c.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, data)
	assert.Equal(t, 1, c.Len())

	again, err := c.Load(path)
	require.NoError(t, err)
	assert.Equal(t, data, again)
	assert.Equal(t, 1, c.Len())
}

func TestLoadMissingFile(t *testing.T) {
	c, err := NewCache()
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Load(filepath.Join(t.TempDir(), "nope.bin"))
	assert.Error(t, err)
}

func TestExplicitInvalidate(t *testing.T) {
	c, err := NewCache()
	require.NoError(t, err)
	defer c.Close()

	path := filepath.Join(t.TempDir(), "vert.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	_, err = c.Load(path)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	c.Invalidate(path)
	assert.Equal(t, 0, c.Len())

	// Reload picks up new bytes.
	require.NoError(t, os.WriteFile(path, []byte{9, 9}, 0o644))
	data, err := c.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9}, data)
}
