package translator

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config makes every capacity that used to be a baked-in constant of the
// original runtime explicit. All sizes are bytes.
type Config struct {
	// FrameSlots is the number of frames that may be in flight.
	FrameSlots int `toml:"frame_slots"`

	MaxBuffers       int `toml:"max_buffers"`
	MaxTextures      int `toml:"max_textures"`
	MaxShaders       int `toml:"max_shaders"`
	MaxPrograms      int `toml:"max_programs"`
	MaxRenderbuffers int `toml:"max_renderbuffers"`

	// ClientBytesPerSlot is the per-frame-slot sub-range of the data region
	// reserved for staged client-side vertex and index arrays.
	ClientBytesPerSlot uint64 `toml:"client_bytes_per_slot"`
	// UniformBytesPerSlot is the per-frame-slot sub-range holding record-time
	// uniform copies.
	UniformBytesPerSlot uint64 `toml:"uniform_bytes_per_slot"`

	// MaxShaderBlobSize bounds a precompiled shader binary; the only
	// validation performed on blob contents.
	MaxShaderBlobSize uint64 `toml:"max_shader_blob_size"`
}

func DefaultConfig() *Config {
	return &Config{
		FrameSlots:          3,
		MaxBuffers:          1024,
		MaxTextures:         1024,
		MaxShaders:          384,
		MaxPrograms:         128,
		MaxRenderbuffers:    64,
		ClientBytesPerSlot:  2 << 20,
		UniformBytesPerSlot: 512 << 10,
		MaxShaderBlobSize:   1 << 20,
	}
}

// LoadConfig reads a TOML runtime configuration. Missing keys keep their
// defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse '%s': %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.FrameSlots < 1 || c.FrameSlots > 8 {
		return fmt.Errorf("config: frame_slots must be in [1,8], got %d", c.FrameSlots)
	}
	if c.MaxBuffers < 2 || c.MaxTextures < 2 || c.MaxShaders < 2 || c.MaxPrograms < 2 || c.MaxRenderbuffers < 2 {
		return fmt.Errorf("config: handle tables need at least 2 entries (slot 0 is reserved)")
	}
	if c.ClientBytesPerSlot == 0 || c.UniformBytesPerSlot == 0 {
		return fmt.Errorf("config: per-slot sub-ranges must be non-zero")
	}
	if c.MaxShaderBlobSize == 0 {
		return fmt.Errorf("config: max_shader_blob_size must be non-zero")
	}
	return nil
}
