package translator

import (
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/gles"
	"github.com/spaghettifunk/prism/engine/memory"
	"github.com/spaghettifunk/prism/engine/native"
)

// mipLevelCount halves the larger dimension down to 1.
func mipLevelCount(width, height uint32) uint32 {
	max := width
	if height > max {
		max = height
	}
	levels := uint32(1)
	for max > 1 {
		max >>= 1
		levels++
	}
	return levels
}

// translatePixelFormat picks the native layout for emulated pixel data. The
// native API has no 3-channel packed format, so 24-bit and luminance layouts
// widen to RGBA8 during staging.
func translatePixelFormat(f gles.PixelFormat) native.Format {
	if f == gles.PixelFormatRGB565 {
		return native.FormatRGB565
	}
	return native.FormatRGBA8
}

func translateCompressedFormat(f gles.CompressedFormat) native.Format {
	switch f {
	case gles.CompressedFormatDXT1:
		return native.FormatDXT1
	case gles.CompressedFormatDXT3:
		return native.FormatDXT3
	}
	return native.FormatDXT5
}

// imageStorageBytes sizes the image-region allocation for a full mip chain,
// row-aligned per level.
func (r *Runtime) imageStorageBytes(width, height, levels, layers uint32, f native.Format) uint64 {
	var total uint64
	bpp := uint64(f.BytesPerPixel())
	w, h := width, height
	for l := uint32(0); l < levels; l++ {
		row := memory.Align(uint64(w)*bpp, r.limits.RowAlign)
		total += row * uint64(h)
		if w > 1 {
			w >>= 1
		}
		if h > 1 {
			h >>= 1
		}
	}
	return total * uint64(layers)
}

// stagePixels converts one image's pixel rows into the staging region with
// device row alignment, widening 3-channel and luminance data to RGBA8. Rows
// are staged in source order: row 0 lands at native row 0, the upload path
// performs no vertical flip.
func (r *Runtime) stagePixels(format gles.PixelFormat, pixels []byte, width, height uint32) (uint64, uint32, error) {
	nfmt := translatePixelFormat(format)
	dstBpp := nfmt.BytesPerPixel()
	rowStride := uint32(memory.Align(uint64(width)*uint64(dstBpp), r.limits.RowAlign))

	offset, err := r.stagingArena.Allocate(uint64(rowStride)*uint64(height), r.limits.BufferAlign)
	if err != nil {
		return 0, 0, err
	}
	staging := r.device.MapRegion(native.RegionStaging)
	srcBpp := format.BytesPerPixel()

	for y := uint32(0); y < height; y++ {
		src := pixels[int(y)*int(width)*srcBpp:]
		dst := staging[offset+uint64(y)*uint64(rowStride):]
		switch format {
		case gles.PixelFormatRGBA8, gles.PixelFormatRGB565:
			copy(dst[:int(width)*dstBpp], src[:int(width)*srcBpp])
		case gles.PixelFormatRGB8:
			for x := 0; x < int(width); x++ {
				dst[x*4+0] = src[x*3+0]
				dst[x*4+1] = src[x*3+1]
				dst[x*4+2] = src[x*3+2]
				dst[x*4+3] = 0xFF
			}
		case gles.PixelFormatLuminance8:
			for x := 0; x < int(width); x++ {
				l := src[x]
				dst[x*4+0], dst[x*4+1], dst[x*4+2], dst[x*4+3] = l, l, l, 0xFF
			}
		case gles.PixelFormatLuminanceAlpha8:
			for x := 0; x < int(width); x++ {
				l, a := src[x*2], src[x*2+1]
				dst[x*4+0], dst[x*4+1], dst[x*4+2], dst[x*4+3] = l, l, l, a
			}
		case gles.PixelFormatAlpha8:
			for x := 0; x < int(width); x++ {
				dst[x*4+0], dst[x*4+1], dst[x*4+2], dst[x*4+3] = 0, 0, 0, src[x]
			}
		}
	}
	r.stats.BytesStaged += uint64(rowStride) * uint64(height)
	return offset, rowStride, nil
}

// writeDescriptor creates (once) and refreshes a texture's sampling
// descriptor. Only called once the texture is fully populated: pushing a
// descriptor for a partially uploaded image is what the cubemap face mask
// exists to prevent.
func (r *Runtime) writeDescriptor(rec *textureRecord, mipmapped bool) {
	if !rec.hasDesc {
		offset, err := r.descArena.Allocate(r.limits.DescriptorSize, r.limits.DescriptorSize)
		if err != nil {
			r.stats.SkippedOps++
			return
		}
		rec.descOffset = offset
		rec.hasDesc = true
	}
	desc := native.SamplerDescriptor{
		Image:     rec.image,
		MinLinear: rec.params.MinFilter != gles.TextureFilterNearest && rec.params.MinFilter != gles.TextureFilterNearestMipmapNearest,
		MagLinear: rec.params.MagFilter == gles.TextureFilterLinear,
		Mipmapped: mipmapped,
		WrapS:     translateWrap(rec.params.WrapS),
		WrapT:     translateWrap(rec.params.WrapT),
	}
	if err := r.device.WriteSamplerDescriptor(rec.descOffset, desc); err != nil {
		core.LogError("descriptor write failed: %v", err)
	}
}

func translateWrap(w gles.TextureWrap) native.WrapMode {
	switch w {
	case gles.TextureWrapClampToEdge:
		return native.WrapClampToEdge
	case gles.TextureWrapMirroredRepeat:
		return native.WrapMirror
	}
	return native.WrapRepeat
}

// TextureUpload2D creates (or re-creates) a 2D texture and uploads its base
// level through the staging region. The mip chain is sized up front from the
// larger dimension; levels above 0 stay empty until GenerateMipmaps runs.
func (r *Runtime) TextureUpload2D(handle gles.TextureHandle, width, height uint32, format gles.PixelFormat, pixels []byte) {
	rec := r.texture(handle)
	if rec == nil {
		core.LogWarn("2d upload with invalid texture handle %d", handle)
		return
	}
	nfmt := translatePixelFormat(format)
	levels := mipLevelCount(width, height)

	offset, err := r.imageArena.Allocate(r.imageStorageBytes(width, height, levels, 1, nfmt), r.limits.ImageAlign)
	if err != nil {
		r.stats.SkippedOps++
		return
	}
	img, err := r.device.CreateImage(native.ImageInfo{
		Width: width, Height: height, Levels: levels, Layers: 1,
		Format: nfmt, Offset: offset,
	})
	if err != nil {
		core.LogError("image create failed: %v", err)
		r.stats.SkippedOps++
		return
	}

	params := rec.params
	if !rec.inUse {
		params = gles.SamplerParams{MinFilter: gles.TextureFilterLinear, MagFilter: gles.TextureFilterLinear}
	}
	*rec = textureRecord{
		inUse: true, width: width, height: height, levels: levels,
		format: nfmt, image: img, complete: true, params: params,
		hasDesc: rec.hasDesc, descOffset: rec.descOffset,
	}

	if err := r.uploadLevel(rec, 0, 0, native.ImageRect{Width: width, Height: height}, format, pixels); err != nil {
		return
	}
	r.writeDescriptor(rec, false)
	// The copy engine bypassed the 3D engine's sampling cache; flush it
	// before this texture is first bound.
	rec.needsBarrier = true
}

// uploadLevel stages pixels and records+flushes one buffer-to-image copy.
// The synchronous wait is what lets the single staging range be reused per
// operation.
func (r *Runtime) uploadLevel(rec *textureRecord, layer, level uint32, rect native.ImageRect, format gles.PixelFormat, pixels []byte) error {
	r.stagingArena.Reset()
	offset, rowStride, err := r.stagePixels(format, pixels, rect.Width, rect.Height)
	if err != nil {
		r.stats.SkippedOps++
		return err
	}
	cb := r.currentCB()
	cb.CopyBufferToImage(offset, rowStride, rec.image, layer, level, rect)
	cb.Barrier(native.BarrierTransfer)
	return r.submitAndWait()
}

// TextureUploadCube runs the per-face state machine: the native cubemap image
// is created on the first face, each face sets its bit, and the sampling
// descriptor appears only at the transition to all six bits set.
func (r *Runtime) TextureUploadCube(handle gles.TextureHandle, face gles.CubeFace, size uint32, format gles.PixelFormat, pixels []byte) {
	rec := r.texture(handle)
	if rec == nil || face < 0 || face >= gles.CubeFaceCount {
		core.LogWarn("cube upload with invalid handle %d / face %d", handle, face)
		return
	}
	nfmt := translatePixelFormat(format)
	if !rec.inUse || !rec.cube || rec.width != size || rec.format != nfmt {
		levels := mipLevelCount(size, size)
		offset, err := r.imageArena.Allocate(r.imageStorageBytes(size, size, levels, 6, nfmt), r.limits.ImageAlign)
		if err != nil {
			r.stats.SkippedOps++
			return
		}
		img, err := r.device.CreateImage(native.ImageInfo{
			Width: size, Height: size, Levels: levels, Layers: 6,
			Format: nfmt, Offset: offset,
		})
		if err != nil {
			core.LogError("cubemap image create failed: %v", err)
			r.stats.SkippedOps++
			return
		}
		params := rec.params
		if !rec.inUse {
			params = gles.SamplerParams{MinFilter: gles.TextureFilterLinear, MagFilter: gles.TextureFilterLinear}
		}
		*rec = textureRecord{
			inUse: true, cube: true, width: size, height: size, levels: levels,
			format: nfmt, image: img, params: params,
			hasDesc: rec.hasDesc, descOffset: rec.descOffset,
		}
	}

	if err := r.uploadLevel(rec, uint32(face), 0, native.ImageRect{Width: size, Height: size}, format, pixels); err != nil {
		return
	}
	rec.faceMask |= 1 << uint(face)

	const allFaces = 0x3F
	if rec.faceMask == allFaces && !rec.complete {
		rec.complete = true
		r.writeDescriptor(rec, false)
		rec.needsBarrier = true
	}
}

// TextureUploadCompressed copies opaque block data in one staged copy, sized
// purely by the caller-declared byte count. No CPU-side reformatting.
func (r *Runtime) TextureUploadCompressed(handle gles.TextureHandle, width, height uint32, format gles.CompressedFormat, data []byte) {
	rec := r.texture(handle)
	if rec == nil {
		core.LogWarn("compressed upload with invalid texture handle %d", handle)
		return
	}
	nfmt := translateCompressedFormat(format)
	offset, err := r.imageArena.Allocate(memory.Align(uint64(len(data)), r.limits.RowAlign), r.limits.ImageAlign)
	if err != nil {
		r.stats.SkippedOps++
		return
	}
	img, err := r.device.CreateImage(native.ImageInfo{
		Width: width, Height: height, Levels: 1, Layers: 1,
		Format: nfmt, Offset: offset,
	})
	if err != nil {
		core.LogError("compressed image create failed: %v", err)
		r.stats.SkippedOps++
		return
	}
	params := rec.params
	if !rec.inUse {
		params = gles.SamplerParams{MinFilter: gles.TextureFilterLinear, MagFilter: gles.TextureFilterLinear}
	}
	*rec = textureRecord{
		inUse: true, width: width, height: height, levels: 1,
		format: nfmt, image: img, complete: true, compressed: true, params: params,
		hasDesc: rec.hasDesc, descOffset: rec.descOffset,
	}

	r.stagingArena.Reset()
	stagingOffset, err := r.stagingArena.Allocate(uint64(len(data)), r.limits.BufferAlign)
	if err != nil {
		r.stats.SkippedOps++
		return
	}
	copy(r.device.MapRegion(native.RegionStaging)[stagingOffset:], data)
	r.stats.BytesStaged += uint64(len(data))

	cb := r.currentCB()
	// One flat transfer: the block layout is the GPU's business.
	cb.CopyBufferToImage(stagingOffset, uint32(len(data)), img, 0, 0, native.ImageRect{Width: width, Height: 1})
	cb.Barrier(native.BarrierTransfer)
	if err := r.submitAndWait(); err != nil {
		return
	}
	r.writeDescriptor(rec, false)
	rec.needsBarrier = true
}

// TextureSubUpload replaces a sub-rectangle of level 0. The texture keeps its
// storage; rows land at their source position with no vertical flip.
func (r *Runtime) TextureSubUpload(handle gles.TextureHandle, x, y, width, height uint32, format gles.PixelFormat, pixels []byte) {
	rec := r.texture(handle)
	if rec == nil || !rec.inUse || rec.compressed {
		core.LogWarn("sub-upload to unusable texture handle %d", handle)
		return
	}
	if x+width > rec.width || y+height > rec.height {
		core.LogWarn("sub-upload out of bounds on texture %d", handle)
		r.stats.SkippedOps++
		return
	}
	rect := native.ImageRect{X: int32(x), Y: int32(y), Width: width, Height: height}
	if err := r.uploadLevel(rec, 0, 0, rect, format, pixels); err != nil {
		return
	}
	rec.needsBarrier = true
}

func (r *Runtime) TextureSetParams(handle gles.TextureHandle, params gles.SamplerParams) {
	rec := r.texture(handle)
	if rec == nil || !rec.inUse {
		return
	}
	rec.params = params
	if rec.complete && rec.hasDesc {
		r.writeDescriptor(rec, rec.levels > 1)
	}
}

// TextureBind selects the texture for a sampling unit. The descriptor push
// (and any pending coherency barrier) happens when the next draw assembles
// its bindings.
func (r *Runtime) TextureBind(unit uint32, handle gles.TextureHandle) {
	if int(unit) >= len(r.boundTextures) {
		core.LogWarn("texture bind to unit %d beyond device limit", unit)
		return
	}
	r.boundTextures[unit] = handle
	r.texturesDirty = true
}

// GenerateMipmaps blits each level from the one above it with linear
// filtering, a coherency barrier between every step and a final barrier
// before the chain is sample-ready.
func (r *Runtime) GenerateMipmaps(handle gles.TextureHandle) {
	rec := r.texture(handle)
	if rec == nil || !rec.inUse || !rec.complete || rec.compressed || rec.levels < 2 {
		return
	}
	layers := uint32(1)
	if rec.cube {
		layers = 6
	}
	cb := r.currentCB()
	for layer := uint32(0); layer < layers; layer++ {
		srcW, srcH := rec.width, rec.height
		for level := uint32(1); level < rec.levels; level++ {
			dstW, dstH := srcW>>1, srcH>>1
			if dstW == 0 {
				dstW = 1
			}
			if dstH == 0 {
				dstH = 1
			}
			cb.BlitImage(rec.image, layer, level-1, level, srcW, srcH, dstW, dstH)
			cb.Barrier(native.BarrierImage)
			srcW, srcH = dstW, dstH
		}
	}
	cb.Barrier(native.BarrierFull)
	if err := r.submitAndWait(); err != nil {
		return
	}
	r.writeDescriptor(rec, true)
	rec.needsBarrier = true
}

// CopyFramebufferToTexture re-creates the texture from the current render
// target via the GPU→CPU→GPU roundtrip. Direct image-to-image device copies
// proved unreliable on this target; the two-hop path reuses the proven
// readback and upload primitives. The CPU leg flips row order to reconcile
// the native top-origin storage with the emulated API's bottom-origin
// sampling convention.
func (r *Runtime) CopyFramebufferToTexture(handle gles.TextureHandle, srcX, srcY int32, width, height uint32) {
	rec := r.texture(handle)
	if rec == nil {
		core.LogWarn("framebuffer copy to invalid texture handle %d", handle)
		return
	}
	pixels := r.readbackRows(srcX, srcY, width, height, true)
	r.TextureUpload2D(handle, width, height, gles.PixelFormatRGBA8, pixels)
}

// CopyFramebufferToTextureSub is the sub-rectangle variant: the destination
// texture keeps its storage and only the target rect is replaced.
func (r *Runtime) CopyFramebufferToTextureSub(handle gles.TextureHandle, dstX, dstY uint32, srcX, srcY int32, width, height uint32) {
	rec := r.texture(handle)
	if rec == nil || !rec.inUse {
		core.LogWarn("framebuffer sub-copy to unusable texture handle %d", handle)
		return
	}
	pixels := r.readbackRows(srcX, srcY, width, height, true)
	r.TextureSubUpload(handle, dstX, dstY, width, height, gles.PixelFormatRGBA8, pixels)
}
