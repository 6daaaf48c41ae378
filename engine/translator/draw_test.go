package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/gles"
)

func TestIndexWideningU8(t *testing.T) {
	r, dev := newTestRuntime(t)
	linkTestProgram(t, r)

	r.DrawElements(gles.PrimitiveTriangles, 4, gles.IndexTypeU8, gles.IndexSource{Data: []byte{0, 1, 2, 255}})

	u16 := []byte{0, 0, 1, 0, 2, 0, 255, 0} // little endian
	r.DrawElements(gles.PrimitiveTriangles, 4, gles.IndexTypeU16, gles.IndexSource{Data: u16})
	flushFrame(t, r)

	trace := dev.Trace()
	require.Len(t, trace, 2)
	assert.Equal(t, []uint32{0, 1, 2, 255}, trace[0].Indices)
	// Same element-fetch sequence as native 16-bit indices.
	assert.Equal(t, trace[1].Indices, trace[0].Indices)
}

func TestIndexedDrawFromBuffer(t *testing.T) {
	r, dev := newTestRuntime(t)
	linkTestProgram(t, r)

	r.BufferCreate(3)
	r.BufferUpload(3, []byte{5, 0, 6, 0, 7, 0}) // three u16 indices
	r.DrawElements(gles.PrimitiveTriangles, 3, gles.IndexTypeU16, gles.IndexSource{Buffer: 3})
	flushFrame(t, r)

	trace := dev.Trace()
	require.Len(t, trace, 1)
	assert.Equal(t, []uint32{5, 6, 7}, trace[0].Indices)
}

func TestIndexOffsetPastBufferEndSkipsDraw(t *testing.T) {
	r, dev := newTestRuntime(t)
	linkTestProgram(t, r)

	r.BufferCreate(1)
	r.BufferUpload(1, []byte{0, 1, 2, 0, 2, 3}) // six u8 indices
	r.DrawElements(gles.PrimitiveTriangles, 3, gles.IndexTypeU8, gles.IndexSource{Buffer: 1, Offset: 10})
	r.DrawElements(gles.PrimitiveTriangles, 3, gles.IndexTypeU16, gles.IndexSource{Buffer: 1, Offset: 6})
	flushFrame(t, r)

	assert.Empty(t, dev.Trace())
	assert.Equal(t, uint64(2), r.Statistics().SkippedOps)
}

func TestShortBufferBackedIndexDataSkipsDraw(t *testing.T) {
	r, dev := newTestRuntime(t)
	linkTestProgram(t, r)

	r.BufferCreate(1)
	r.BufferUpload(1, []byte{5, 0, 6, 0, 7, 0}) // three u16 indices
	// Offset 2 leaves only two whole indices for a three-element draw.
	r.DrawElements(gles.PrimitiveTriangles, 3, gles.IndexTypeU16, gles.IndexSource{Buffer: 1, Offset: 2})
	flushFrame(t, r)

	assert.Empty(t, dev.Trace())
	assert.NotZero(t, r.Statistics().SkippedOps)
}

func TestAttributeOffsetPastClientDataBindsConstant(t *testing.T) {
	r, dev := newTestRuntime(t)
	linkTestProgram(t, r)

	r.VertexAttribBind(0, gles.VertexAttrib{
		Enabled: true,
		Source:  gles.ClientArray{ID: 7, Data: make([]byte, 16)},
		Offset:  64,
		Size:    4, Type: gles.ComponentTypeFloat,
	})
	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
	flushFrame(t, r)

	trace := dev.Trace()
	require.Len(t, trace, 1)
	for _, d := range trace[0].Attribs {
		if d.Location == 0 {
			assert.Equal(t, int32(-1), d.Binding)
			return
		}
	}
	t.Fatal("attribute 0 missing from draw state")
}

func TestInterleavedAttributesShareOneSlot(t *testing.T) {
	r, dev := newTestRuntime(t)
	linkTestProgram(t, r)

	// Position(3f) + texcoord(2f) interleaved at stride 32, offsets 0 and 12.
	verts := make([]byte, 32*3)
	src := gles.ClientArray{ID: 42, Data: verts}
	r.VertexAttribBind(0, gles.VertexAttrib{
		Enabled: true, Source: src, Offset: 0, Stride: 32,
		Size: 3, Type: gles.ComponentTypeFloat,
	})
	r.VertexAttribBind(1, gles.VertexAttrib{
		Enabled: true, Source: src, Offset: 12, Stride: 32,
		Size: 2, Type: gles.ComponentTypeFloat,
	})
	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
	flushFrame(t, r)

	trace := dev.Trace()
	require.Len(t, trace, 1)
	require.Len(t, trace[0].Bindings, 1, "interleaved attributes must share one buffer slot")
	assert.Equal(t, uint32(32), trace[0].Bindings[0].Stride)

	var a0, a1 *struct {
		binding int32
		offset  uint32
	}
	for _, d := range trace[0].Attribs {
		d := d
		if d.Location == 0 {
			a0 = &struct {
				binding int32
				offset  uint32
			}{d.Binding, d.Offset}
		}
		if d.Location == 1 {
			a1 = &struct {
				binding int32
				offset  uint32
			}{d.Binding, d.Offset}
		}
	}
	require.NotNil(t, a0)
	require.NotNil(t, a1)
	assert.Equal(t, a0.binding, a1.binding)
	assert.Equal(t, uint32(0), a0.offset)
	assert.Equal(t, uint32(12), a1.offset)
}

func TestSeparateClientArraysGetSeparateSlots(t *testing.T) {
	r, dev := newTestRuntime(t)
	linkTestProgram(t, r)

	r.VertexAttribBind(0, gles.VertexAttrib{
		Enabled: true, Source: gles.ClientArray{ID: 1, Data: make([]byte, 36)},
		Size: 3, Type: gles.ComponentTypeFloat,
	})
	r.VertexAttribBind(1, gles.VertexAttrib{
		Enabled: true, Source: gles.ClientArray{ID: 2, Data: make([]byte, 24)},
		Size: 2, Type: gles.ComponentTypeFloat,
	})
	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
	flushFrame(t, r)

	trace := dev.Trace()
	require.Len(t, trace, 1)
	assert.Len(t, trace[0].Bindings, 2)
}

func TestBufferBackedAttributesGroupByStride(t *testing.T) {
	r, dev := newTestRuntime(t)
	linkTestProgram(t, r)

	r.BufferCreate(1)
	r.BufferUpload(1, make([]byte, 32*3))
	shared := gles.VertexAttrib{Enabled: true, Buffer: 1, Stride: 32, Size: 3, Type: gles.ComponentTypeFloat}
	r.VertexAttribBind(0, shared)
	shared.Offset = 16
	shared.Size = 2
	r.VertexAttribBind(1, shared)
	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
	flushFrame(t, r)

	trace := dev.Trace()
	require.Len(t, trace, 1)
	assert.Len(t, trace[0].Bindings, 1)
}

func TestDisabledAttributeBindsConstant(t *testing.T) {
	r, dev := newTestRuntime(t)
	linkTestProgram(t, r)

	r.VertexAttribBind(2, gles.VertexAttrib{Constant: [4]float32{0.5, 0.25, 1, 1}})
	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
	flushFrame(t, r)

	trace := dev.Trace()
	require.Len(t, trace, 1)
	for _, d := range trace[0].Attribs {
		if d.Location == 2 {
			assert.Equal(t, int32(-1), d.Binding)
			assert.Equal(t, [4]float32{0.5, 0.25, 1, 1}, d.Constant)
			return
		}
	}
	t.Fatal("attribute 2 missing from draw state")
}

func TestClientStagingExhaustionAbortsOnlyThatDraw(t *testing.T) {
	r, dev := newTestRuntime(t)
	linkTestProgram(t, r)

	huge := gles.VertexAttrib{
		Enabled: true,
		Source:  gles.ClientArray{ID: 9, Data: make([]byte, int(r.cfg.ClientBytesPerSlot)+1024)},
		Size:    4, Type: gles.ComponentTypeFloat,
	}
	r.VertexAttribBind(0, huge)
	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)

	// A modest draw right after still goes through.
	r.VertexAttribBind(0, gles.VertexAttrib{
		Enabled: true, Source: gles.ClientArray{ID: 10, Data: make([]byte, 48)},
		Size: 4, Type: gles.ComponentTypeFloat,
	})
	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
	flushFrame(t, r)

	require.Len(t, dev.Trace(), 1)
	assert.NotZero(t, r.Statistics().SkippedOps)
}

func TestTextureBindingLatchedAcrossDraws(t *testing.T) {
	r, dev := newTestRuntime(t)
	linkTestProgram(t, r)

	r.TextureUpload2D(1, 2, 2, gles.PixelFormatRGBA8, make([]byte, 16))
	r.TextureBind(0, 1)

	// The descriptor push happens on the first draw after the bind; the
	// second draw must still sample through the latched binding.
	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
	flushFrame(t, r)

	trace := dev.Trace()
	require.Len(t, trace, 2)
	want := r.texture(1).descOffset
	require.Contains(t, trace[0].Textures, uint32(0))
	assert.Equal(t, want, trace[0].Textures[0])
	require.Contains(t, trace[1].Textures, uint32(0))
	assert.Equal(t, want, trace[1].Textures[0])
}

func TestDrawSkippedOnFaultedQueue(t *testing.T) {
	r, dev := newTestRuntime(t)
	linkTestProgram(t, r)

	dev.InjectFault()
	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
	require.Empty(t, dev.Trace())
	assert.NotZero(t, r.Statistics().SkippedOps)
}
