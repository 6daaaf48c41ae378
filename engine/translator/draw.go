package translator

import (
	"encoding/binary"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/gles"
	"github.com/spaghettifunk/prism/engine/native"
)

// clientCursorAlign is the fixed boundary the per-frame staging cursor
// advances on.
const clientCursorAlign = 4

func translatePrimitive(p gles.Primitive) native.Primitive {
	switch p {
	case gles.PrimitivePoints:
		return native.PrimPoints
	case gles.PrimitiveLines:
		return native.PrimLines
	case gles.PrimitiveLineLoop:
		return native.PrimLineLoop
	case gles.PrimitiveLineStrip:
		return native.PrimLineStrip
	case gles.PrimitiveTriangleStrip:
		return native.PrimTriangleStrip
	case gles.PrimitiveTriangleFan:
		return native.PrimTriangleFan
	}
	return native.PrimTriangles
}

func translateAttribType(t gles.ComponentType) native.AttribType {
	switch t {
	case gles.ComponentTypeByte:
		return native.AttribInt8
	case gles.ComponentTypeUnsignedByte:
		return native.AttribUint8
	case gles.ComponentTypeShort:
		return native.AttribInt16
	case gles.ComponentTypeUnsignedShort:
		return native.AttribUint16
	}
	return native.AttribFloat
}

// VertexAttribBind stores the consolidated specification for one attribute
// location; the grouping into native buffer slots happens per draw.
func (r *Runtime) VertexAttribBind(index uint32, attrib gles.VertexAttrib) {
	if int(index) >= len(r.vertexAttribs) {
		core.LogWarn("vertex attribute %d beyond device limit", index)
		return
	}
	r.vertexAttribs[index] = attrib
}

// slotKey is the structural identity a buffer-binding slot is matched on:
// either a buffer handle or a client-array identity plus the base offset the
// slot was staged from, and the shared stride.
type slotKey struct {
	buffer    gles.BufferHandle
	client    uint64
	srcOffset uint32
	stride    uint32
}

// assembleVertexState groups the enabled attributes into native
// buffer-binding slots with a greedy same-source-same-stride match, staging
// client arrays into the frame slot's sub-range. Returns false if the draw
// must be aborted (staging exhausted).
func (r *Runtime) assembleVertexState(cb native.CommandBuffer) bool {
	var bindings []native.VertexBufferBinding
	var keys []slotKey
	descs := make([]native.VertexAttribDesc, 0, len(r.vertexAttribs))

	data := r.device.MapRegion(native.RegionData)
	arena := r.clientArenas[r.current]

	for i := range r.vertexAttribs {
		a := &r.vertexAttribs[i]
		desc := native.VertexAttribDesc{Location: uint32(i), Binding: -1, Constant: a.Constant}
		if !a.Enabled {
			descs = append(descs, desc)
			continue
		}
		stride := a.EffectiveStride()
		desc.Format = native.AttribFormat{Components: a.Size, Type: translateAttribType(a.Type), Normalized: a.Normalized}

		switch {
		case a.Buffer != gles.NoHandle:
			rec := r.buffer(a.Buffer)
			if rec == nil || !rec.inUse || rec.size == 0 {
				core.LogWarn("attribute %d reads empty buffer %d; bound as constant", i, a.Buffer)
				desc.Binding = -1
				descs = append(descs, desc)
				continue
			}
			slot := -1
			for j, k := range keys {
				if k.buffer == a.Buffer && k.stride == stride {
					slot = j
					break
				}
			}
			if slot < 0 {
				slot = len(bindings)
				bindings = append(bindings, native.VertexBufferBinding{Offset: rec.offset, Stride: stride})
				keys = append(keys, slotKey{buffer: a.Buffer, stride: stride})
			}
			desc.Binding = int32(slot)
			desc.Offset = a.Offset

		case a.Source.Valid():
			if uint64(a.Offset) >= uint64(len(a.Source.Data)) {
				core.LogWarn("attribute %d offset past end of client data; bound as constant", i)
				descs = append(descs, desc)
				continue
			}
			// Interleave detection is structural: same array identity, same
			// stride, and a source offset within one stride of the slot's
			// base offset means the attribute shares the slot.
			slot := -1
			for j, k := range keys {
				if k.client == a.Source.ID && k.stride == stride &&
					a.Offset >= k.srcOffset && a.Offset-k.srcOffset < stride {
					slot = j
					break
				}
			}
			if slot >= 0 {
				desc.Binding = int32(slot)
				desc.Offset = a.Offset - keys[slot].srcOffset
			} else {
				n := uint64(len(a.Source.Data)) - uint64(a.Offset)
				offset, err := arena.Allocate(n, clientCursorAlign)
				if err != nil {
					// Not enough frame staging left: abort only this draw.
					r.stats.SkippedOps++
					return false
				}
				copy(data[offset:], a.Source.Data[a.Offset:])
				r.stats.BytesStaged += n
				desc.Binding = int32(len(bindings))
				desc.Offset = 0
				bindings = append(bindings, native.VertexBufferBinding{Offset: offset, Stride: stride})
				keys = append(keys, slotKey{client: a.Source.ID, srcOffset: a.Offset, stride: stride})
			}

		default:
			desc.Binding = -1
		}
		descs = append(descs, desc)
	}

	cb.BindVertexBuffers(bindings)
	cb.BindVertexAttribs(descs)
	return true
}

// bindTextures pushes the descriptor offset of every bound, complete texture
// to its sampling unit. Pushes happen only while the dirty flag is set (a bind
// changed, or the command buffer was re-primed and dropped its state); the
// native bindings stay latched across draws otherwise. A texture whose
// copy-engine writes have not yet been made visible to the 3D engine gets its
// one-time full barrier here, immediately before the bind.
func (r *Runtime) bindTextures(cb native.CommandBuffer) {
	for unit, handle := range r.boundTextures {
		if handle == gles.NoHandle {
			continue
		}
		rec := r.texture(handle)
		if rec == nil || !rec.inUse || !rec.complete || !rec.hasDesc {
			// Incomplete cubemaps and half-built textures never reach a
			// sampling unit.
			continue
		}
		if rec.needsBarrier {
			cb.Barrier(native.BarrierFull)
			rec.needsBarrier = false
		}
		if r.texturesDirty {
			cb.BindTexture(uint32(unit), rec.descOffset)
		}
	}
	r.texturesDirty = false
}

// prepareDraw assembles all per-draw state: program + uniform snapshots,
// vertex slots, texture descriptors. Reports false when the draw is skipped.
func (r *Runtime) prepareDraw() (native.CommandBuffer, bool) {
	if r.device.Faulted() {
		r.stats.SkippedOps++
		return nil, false
	}
	cb := r.currentCB()
	if !r.pushProgramState(cb) {
		r.stats.SkippedOps++
		return nil, false
	}
	if !r.assembleVertexState(cb) {
		return nil, false
	}
	r.bindTextures(cb)
	return cb, true
}

// afterDraw keeps a rendered-into texture safe to sample: draws into a
// non-default target are followed by a full visibility barrier.
func (r *Runtime) afterDraw(cb native.CommandBuffer) {
	if r.offscreenTarget() {
		cb.Barrier(native.BarrierRenderTarget | native.BarrierImage)
	}
}

func (r *Runtime) DrawArrays(mode gles.Primitive, first, count int32) {
	if count <= 0 {
		return
	}
	cb, ok := r.prepareDraw()
	if !ok {
		return
	}
	cb.Draw(translatePrimitive(mode), uint32(first), uint32(count))
	r.stats.Draws++
	r.afterDraw(cb)
}

func (r *Runtime) DrawElements(mode gles.Primitive, count int32, indexType gles.IndexType, indices gles.IndexSource) {
	if count <= 0 {
		return
	}
	cb, ok := r.prepareDraw()
	if !ok {
		return
	}
	if !r.bindIndices(cb, count, indexType, indices) {
		return
	}
	cb.DrawIndexed(translatePrimitive(mode), uint32(count))
	r.stats.Draws++
	r.afterDraw(cb)
}

// bindIndices resolves the element source and binds it. 8-bit indices are
// widened to 16-bit while staging because the fixed-function index fetch has
// no 8-bit mode; 16- and 32-bit client indices are staged verbatim and
// buffer-backed ones bind in place.
func (r *Runtime) bindIndices(cb native.CommandBuffer, count int32, indexType gles.IndexType, indices gles.IndexSource) bool {
	data := r.device.MapRegion(native.RegionData)
	arena := r.clientArenas[r.current]

	var src []byte
	if indices.Buffer != gles.NoHandle {
		rec := r.buffer(indices.Buffer)
		if rec == nil || !rec.inUse || rec.size == 0 {
			core.LogWarn("indexed draw from empty buffer %d skipped", indices.Buffer)
			r.stats.SkippedOps++
			return false
		}
		if uint64(indices.Offset) >= rec.size {
			core.LogWarn("indexed draw with offset past end of buffer %d skipped", indices.Buffer)
			r.stats.SkippedOps++
			return false
		}
		if indexType == gles.IndexTypeU16 || indexType == gles.IndexTypeU32 {
			if rec.size-uint64(indices.Offset) < uint64(count)*uint64(indexType.ByteSize()) {
				core.LogWarn("indexed draw with short index data skipped")
				r.stats.SkippedOps++
				return false
			}
			fmtIdx := native.IndexU16
			if indexType == gles.IndexTypeU32 {
				fmtIdx = native.IndexU32
			}
			cb.BindIndexBuffer(rec.offset+uint64(indices.Offset), fmtIdx)
			return true
		}
		src = data[rec.offset+uint64(indices.Offset) : rec.offset+rec.size]
	} else {
		src = indices.Data
	}
	if len(src) < int(count)*indexType.ByteSize() {
		core.LogWarn("indexed draw with short index data skipped")
		r.stats.SkippedOps++
		return false
	}

	switch indexType {
	case gles.IndexTypeU8:
		offset, err := arena.Allocate(uint64(count)*2, clientCursorAlign)
		if err != nil {
			r.stats.SkippedOps++
			return false
		}
		for i := int32(0); i < count; i++ {
			binary.LittleEndian.PutUint16(data[offset+uint64(i)*2:], uint16(src[i]))
		}
		r.stats.BytesStaged += uint64(count) * 2
		cb.BindIndexBuffer(offset, native.IndexU16)
	case gles.IndexTypeU16, gles.IndexTypeU32:
		n := uint64(count) * uint64(indexType.ByteSize())
		offset, err := arena.Allocate(n, clientCursorAlign)
		if err != nil {
			r.stats.SkippedOps++
			return false
		}
		copy(data[offset:], src[:n])
		r.stats.BytesStaged += n
		fmtIdx := native.IndexU16
		if indexType == gles.IndexTypeU32 {
			fmtIdx = native.IndexU32
		}
		cb.BindIndexBuffer(offset, fmtIdx)
	}
	return true
}
