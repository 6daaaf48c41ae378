package memory

import (
	"fmt"

	"golang.org/x/exp/constraints"

	"github.com/spaghettifunk/prism/engine/core"
)

// Align rounds value up to the next multiple of alignment.
// Alignment must be a power of two.
func Align[T constraints.Unsigned](value, alignment T) T {
	return (value + alignment - 1) &^ (alignment - 1)
}

// Arena is a monotonic bump allocator over a byte range of a GPU-visible
// memory region. Offsets only grow; there is no per-allocation free. Callers
// that need reuse hold their own Arena over a sub-range and Reset it when the
// covering fence has signaled.
type Arena struct {
	name   string
	base   uint64
	size   uint64
	cursor uint64
}

func NewArena(name string, base, size uint64) *Arena {
	return &Arena{
		name:   name,
		base:   base,
		size:   size,
		cursor: base,
	}
}

// Allocate reserves size bytes at the next aligned cursor position and
// returns the absolute offset of the reservation. Exhaustion is recoverable:
// the call logs, returns core.ErrRegionFull and leaves the cursor untouched
// so the caller can skip the operation.
func (a *Arena) Allocate(size, alignment uint64) (uint64, error) {
	offset := a.cursor
	if alignment > 1 {
		offset = Align(offset, alignment)
	}
	// Subtraction form: offset+size can wrap for sizes near the uint64
	// ceiling and slip past an additive comparison.
	limit := a.base + a.size
	if offset > limit || size > limit-offset {
		err := fmt.Errorf("%w: arena '%s' cannot fit %d bytes (used %d of %d)", core.ErrRegionFull, a.name, size, a.cursor-a.base, a.size)
		core.LogWarn(err.Error())
		return 0, err
	}
	a.cursor = offset + size
	return offset, nil
}

// Reset rewinds the cursor to the start of the range. Only valid once no
// in-flight submission references bytes inside the range.
func (a *Arena) Reset() {
	a.cursor = a.base
}

func (a *Arena) Name() string { return a.name }

func (a *Arena) Base() uint64 { return a.base }

func (a *Arena) Size() uint64 { return a.size }

// Used reports the bytes consumed so far, alignment padding included.
func (a *Arena) Used() uint64 { return a.cursor - a.base }

func (a *Arena) Remaining() uint64 { return a.base + a.size - a.cursor }

// Partition splits the arena's range into count equal sub-arenas, one per
// frame slot. The parent arena must be unused.
func (a *Arena) Partition(count int) []*Arena {
	slot := a.size / uint64(count)
	out := make([]*Arena, count)
	for i := 0; i < count; i++ {
		out[i] = NewArena(fmt.Sprintf("%s[%d]", a.name, i), a.base+uint64(i)*slot, slot)
	}
	return out
}
