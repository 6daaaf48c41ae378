package translator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prism.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
frame_slots = 2
max_textures = 64
client_bytes_per_slot = 1048576
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.FrameSlots)
	assert.Equal(t, 64, cfg.MaxTextures)
	assert.Equal(t, uint64(1<<20), cfg.ClientBytesPerSlot)
	// Keys the file does not mention keep their defaults.
	assert.Equal(t, DefaultConfig().MaxBuffers, cfg.MaxBuffers)
	assert.Equal(t, DefaultConfig().MaxShaderBlobSize, cfg.MaxShaderBlobSize)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prism.toml")
	require.NoError(t, os.WriteFile(path, []byte("frame_slots = 99\n"), 0o644))
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestValidateBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameSlots = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxPrograms = 1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.UniformBytesPerSlot = 0
	assert.Error(t, cfg.Validate())
}
