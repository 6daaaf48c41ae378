package translator

import (
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/gles"
	"github.com/spaghettifunk/prism/engine/native"
)

func (r *Runtime) BufferCreate(handle gles.BufferHandle) {
	rec := r.buffer(handle)
	if rec == nil {
		core.LogWarn("buffer create with invalid handle %d", handle)
		return
	}
	*rec = bufferRecord{inUse: true}
}

// BufferDelete releases the handle slot. The byte range stays allocated: the
// data region never reclaims individual ranges within a process lifetime.
func (r *Runtime) BufferDelete(handle gles.BufferHandle) {
	rec := r.buffer(handle)
	if rec == nil {
		return
	}
	*rec = bufferRecord{}
}

// BufferUpload places the data at a fresh range of the static sub-range of
// the data region. Re-uploading a handle abandons its previous range.
func (r *Runtime) BufferUpload(handle gles.BufferHandle, data []byte) {
	rec := r.buffer(handle)
	if rec == nil || !rec.inUse {
		core.LogWarn("buffer upload to unknown handle %d", handle)
		return
	}
	offset, err := r.staticArena.Allocate(uint64(len(data)), r.limits.BufferAlign)
	if err != nil {
		r.stats.SkippedOps++
		return
	}
	copy(r.device.MapRegion(native.RegionData)[offset:], data)
	rec.offset = offset
	rec.size = uint64(len(data))
	r.stats.BytesStaged += uint64(len(data))
}

func (r *Runtime) BufferSubUpload(handle gles.BufferHandle, offset uint32, data []byte) {
	rec := r.buffer(handle)
	if rec == nil || !rec.inUse || rec.size == 0 {
		core.LogWarn("buffer sub-upload to unknown handle %d", handle)
		return
	}
	if uint64(offset)+uint64(len(data)) > rec.size {
		core.LogWarn("buffer sub-upload out of range on handle %d (%d+%d > %d)", handle, offset, len(data), rec.size)
		r.stats.SkippedOps++
		return
	}
	copy(r.device.MapRegion(native.RegionData)[rec.offset+uint64(offset):], data)
}
