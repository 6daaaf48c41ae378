package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/gles"
)

func TestTextureUploadKeepsRowOrder(t *testing.T) {
	r, dev := newTestRuntime(t)

	// Two distinct rows: upload must not flip them.
	pixels := []byte{
		255, 0, 0, 255, 0, 255, 0, 255, // row 0: red, green
		0, 0, 255, 255, 255, 255, 255, 255, // row 1: blue, white
	}
	r.TextureUpload2D(1, 2, 2, gles.PixelFormatRGBA8, pixels)

	rec := r.texture(1)
	require.True(t, rec.inUse)
	stored := dev.ImagePixels(rec.image, 0, 0)
	require.GreaterOrEqual(t, len(stored), len(pixels))
	assert.Equal(t, pixels, stored[:len(pixels)])
}

func TestTextureFormatWidening(t *testing.T) {
	r, dev := newTestRuntime(t)

	r.TextureUpload2D(1, 1, 1, gles.PixelFormatRGB8, []byte{10, 20, 30})
	assert.Equal(t, []byte{10, 20, 30, 255}, dev.ImagePixels(r.texture(1).image, 0, 0)[:4])

	r.TextureUpload2D(2, 1, 1, gles.PixelFormatLuminance8, []byte{0x80})
	assert.Equal(t, []byte{0x80, 0x80, 0x80, 255}, dev.ImagePixels(r.texture(2).image, 0, 0)[:4])

	r.TextureUpload2D(3, 1, 1, gles.PixelFormatAlpha8, []byte{0x40})
	assert.Equal(t, []byte{0, 0, 0, 0x40}, dev.ImagePixels(r.texture(3).image, 0, 0)[:4])

	r.TextureUpload2D(4, 1, 1, gles.PixelFormatLuminanceAlpha8, []byte{0x11, 0x22})
	assert.Equal(t, []byte{0x11, 0x11, 0x11, 0x22}, dev.ImagePixels(r.texture(4).image, 0, 0)[:4])
}

func TestTextureSubUpload(t *testing.T) {
	r, dev := newTestRuntime(t)

	r.TextureUpload2D(1, 2, 2, gles.PixelFormatRGBA8, make([]byte, 16))
	r.TextureSubUpload(1, 1, 1, 1, 1, gles.PixelFormatRGBA8, []byte{9, 8, 7, 6})

	stored := dev.ImagePixels(r.texture(1).image, 0, 0)
	assert.Equal(t, []byte{9, 8, 7, 6}, stored[12:16], "pixel (1,1) replaced")
	assert.Equal(t, make([]byte, 12), stored[:12], "other pixels untouched")

	skipped := r.Statistics().SkippedOps
	r.TextureSubUpload(1, 2, 0, 1, 1, gles.PixelFormatRGBA8, []byte{1, 2, 3, 4})
	assert.Equal(t, skipped+1, r.Statistics().SkippedOps, "out-of-bounds rect rejected")
}

func TestCubemapIncompleteFacesNeverBind(t *testing.T) {
	r, dev := newTestRuntime(t)
	linkTestProgram(t, r)

	face := []byte{1, 2, 3, 4}
	for f := gles.CubeFacePositiveX; f < gles.CubeFaceNegativeZ; f++ {
		r.TextureUploadCube(1, f, 1, gles.PixelFormatRGBA8, face)
	}
	rec := r.texture(1)
	require.False(t, rec.complete, "five faces are not a complete cubemap")
	require.False(t, rec.hasDesc, "no descriptor before completion")

	r.TextureBind(0, 1)
	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
	flushFrame(t, r)

	trace := dev.Trace()
	require.Len(t, trace, 1)
	_, bound := trace[0].Textures[0]
	assert.False(t, bound, "incomplete cubemap must stay unbound")

	// The sixth face flips the texture to complete exactly once.
	r.TextureUploadCube(1, gles.CubeFaceNegativeZ, 1, gles.PixelFormatRGBA8, face)
	require.True(t, rec.complete)
	require.True(t, rec.hasDesc)
	require.True(t, rec.needsBarrier, "coherency barrier pending for first sample bind")

	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
	flushFrame(t, r)

	trace = dev.Trace()
	require.Len(t, trace, 2)
	off, bound := trace[1].Textures[0]
	require.True(t, bound)
	assert.Equal(t, rec.descOffset, off)
	assert.False(t, rec.needsBarrier, "barrier consumed at first bind")
}

func TestCubemapFaceRowsLandPerLayer(t *testing.T) {
	r, dev := newTestRuntime(t)

	for f := gles.CubeFacePositiveX; f < gles.CubeFaceCount; f++ {
		r.TextureUploadCube(1, f, 1, gles.PixelFormatRGBA8, []byte{byte(f), byte(f), byte(f), 255})
	}
	rec := r.texture(1)
	for f := uint32(0); f < 6; f++ {
		assert.Equal(t, []byte{byte(f), byte(f), byte(f), 255}, dev.ImagePixels(rec.image, f, 0)[:4])
	}
}

func TestGenerateMipmapsFillsChain(t *testing.T) {
	r, dev := newTestRuntime(t)

	solid := make([]byte, 4*4*4)
	for i := 0; i < len(solid); i += 4 {
		solid[i+0], solid[i+1], solid[i+2], solid[i+3] = 40, 80, 120, 255
	}
	r.TextureUpload2D(1, 4, 4, gles.PixelFormatRGBA8, solid)
	rec := r.texture(1)
	require.Equal(t, uint32(3), rec.levels)

	r.GenerateMipmaps(1)

	level1 := dev.ImagePixels(rec.image, 0, 1)
	require.GreaterOrEqual(t, len(level1), 2*2*4)
	for i := 0; i < 2*2*4; i += 4 {
		assert.Equal(t, []byte{40, 80, 120, 255}, level1[i:i+4])
	}
	desc, ok := dev.Descriptor(rec.descOffset)
	require.True(t, ok)
	assert.True(t, desc.Mipmapped)
}

func TestCompressedUploadIsFlatCopy(t *testing.T) {
	r, dev := newTestRuntime(t)

	blocks := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04}
	r.TextureUploadCompressed(1, 4, 4, gles.CompressedFormatDXT1, blocks)

	rec := r.texture(1)
	require.True(t, rec.complete)
	assert.Equal(t, blocks, dev.ImagePixels(rec.image, 0, 0)[:len(blocks)])
}

func TestReadbackRoundTripPreservesRowOrder(t *testing.T) {
	r, _ := newTestRuntime(t)

	pixels := []byte{
		255, 0, 0, 255, 0, 255, 0, 255,
		0, 0, 255, 255, 255, 255, 255, 255,
	}
	r.TextureUpload2D(1, 2, 2, gles.PixelFormatRGBA8, pixels)
	r.TextureUpload2D(2, 2, 2, gles.PixelFormatRGBA8, make([]byte, 16))

	// Render-target copy flips once, readback flips again: the application
	// sees its original rows back.
	r.FramebufferBind(1, gles.NoHandle)
	r.CopyFramebufferToTexture(2, 0, 0, 2, 2)
	r.FramebufferBind(2, gles.NoHandle)

	out := make([]byte, 16)
	require.NoError(t, r.ReadPixels(0, 0, 2, 2, out))
	assert.Equal(t, pixels, out)
}

func TestReadPixelsSingleRowNeedsNoFlip(t *testing.T) {
	r, _ := newTestRuntime(t)

	row := []byte{1, 1, 1, 255, 2, 2, 2, 255}
	r.TextureUpload2D(1, 2, 1, gles.PixelFormatRGBA8, row)
	r.FramebufferBind(1, gles.NoHandle)

	out := make([]byte, 8)
	require.NoError(t, r.ReadPixels(0, 0, 2, 1, out))
	assert.Equal(t, row, out)
}

func TestDegradedReadbackReturnsZeros(t *testing.T) {
	r, dev := newTestRuntime(t)

	r.TextureUpload2D(1, 2, 2, gles.PixelFormatRGBA8, []byte{
		9, 9, 9, 9, 9, 9, 9, 9,
		9, 9, 9, 9, 9, 9, 9, 9,
	})
	r.FramebufferBind(1, gles.NoHandle)
	dev.InjectFault()

	out := make([]byte, 16)
	for i := range out {
		out[i] = 0xAA
	}
	require.NoError(t, r.ReadPixels(0, 0, 2, 2, out), "degraded readback must not fault")
	assert.Equal(t, make([]byte, 16), out)

	assert.Error(t, r.ReadPixels(0, 0, 2, 2, make([]byte, 15)), "short destination is still an error")
}

func TestReupload2DAbandonsOldStorageButKeepsDescriptorSlot(t *testing.T) {
	r, _ := newTestRuntime(t)

	r.TextureUpload2D(1, 2, 2, gles.PixelFormatRGBA8, make([]byte, 16))
	rec := r.texture(1)
	firstImage := rec.image
	firstDesc := rec.descOffset

	r.TextureUpload2D(1, 4, 4, gles.PixelFormatRGBA8, make([]byte, 64))
	assert.NotEqual(t, firstImage, rec.image, "re-specification gets fresh storage")
	assert.Equal(t, firstDesc, rec.descOffset, "descriptor slot is reused")
}

func TestTextureSetParamsRefreshesDescriptor(t *testing.T) {
	r, dev := newTestRuntime(t)

	r.TextureUpload2D(1, 2, 2, gles.PixelFormatRGBA8, make([]byte, 16))
	rec := r.texture(1)

	r.TextureSetParams(1, gles.SamplerParams{
		MinFilter: gles.TextureFilterNearest,
		MagFilter: gles.TextureFilterNearest,
		WrapS:     gles.TextureWrapClampToEdge,
		WrapT:     gles.TextureWrapMirroredRepeat,
	})
	desc, ok := dev.Descriptor(rec.descOffset)
	require.True(t, ok)
	assert.False(t, desc.MinLinear)
	assert.False(t, desc.MagLinear)
}
