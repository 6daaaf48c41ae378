package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlign(t *testing.T) {
	assert.Equal(t, uint64(0), Align(uint64(0), uint64(256)))
	assert.Equal(t, uint64(256), Align(uint64(1), uint64(256)))
	assert.Equal(t, uint64(256), Align(uint64(256), uint64(256)))
	assert.Equal(t, uint64(512), Align(uint64(257), uint64(256)))
	assert.Equal(t, uint64(64), Align(uint64(33), uint64(64)))
}

func TestArenaMonotonicNonOverlapping(t *testing.T) {
	a := NewArena("data", 0, 4096)

	type span struct{ off, size uint64 }
	var spans []span
	sizes := []uint64{16, 100, 1, 256, 33, 512}
	for _, sz := range sizes {
		off, err := a.Allocate(sz, 256)
		require.NoError(t, err)
		spans = append(spans, span{off, sz})
	}

	for i := 1; i < len(spans); i++ {
		assert.GreaterOrEqual(t, spans[i].off, spans[i-1].off+spans[i-1].size,
			"allocation %d overlaps its predecessor", i)
	}
}

func TestArenaRespectsBase(t *testing.T) {
	a := NewArena("slot", 1024, 1024)
	off, err := a.Allocate(8, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), off)
	assert.Equal(t, uint64(8), a.Used())
}

func TestArenaOverflowIsRecoverable(t *testing.T) {
	a := NewArena("tiny", 0, 128)
	_, err := a.Allocate(100, 1)
	require.NoError(t, err)

	before := a.Used()
	_, err = a.Allocate(64, 1)
	require.Error(t, err)
	// A failed allocation must not move the cursor.
	assert.Equal(t, before, a.Used())

	// Smaller requests still succeed afterward.
	_, err = a.Allocate(16, 1)
	assert.NoError(t, err)
}

func TestArenaRejectsWrappingSize(t *testing.T) {
	a := NewArena("data", 256, 4096)
	_, err := a.Allocate(64, 1)
	require.NoError(t, err)

	before := a.Used()
	// A size near the uint64 ceiling wraps an additive offset+size check.
	_, err = a.Allocate(^uint64(0)-16, 1)
	require.Error(t, err)
	assert.Equal(t, before, a.Used())
}

func TestArenaReset(t *testing.T) {
	a := NewArena("frame", 512, 512)
	_, err := a.Allocate(300, 1)
	require.NoError(t, err)
	a.Reset()
	assert.Equal(t, uint64(0), a.Used())
	off, err := a.Allocate(300, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(512), off)
}

func TestArenaPartition(t *testing.T) {
	a := NewArena("client", 0, 3000)
	slots := a.Partition(3)
	require.Len(t, slots, 3)
	for i, s := range slots {
		assert.Equal(t, uint64(i)*1000, s.Base())
		assert.Equal(t, uint64(1000), s.Size())
	}
}
