package translator

import (
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/gles"
	"github.com/spaghettifunk/prism/engine/memory"
	"github.com/spaghettifunk/prism/engine/native"
)

// FramebufferBind switches the active render target. Handle 0 for the color
// attachment selects the current swapchain image. Binding a texture that was
// never uploaded is a silent no-op back to the default target, matching the
// permissive semantics of the emulated API.
func (r *Runtime) FramebufferBind(color gles.TextureHandle, depthStencil gles.RenderbufferHandle) {
	if color != gles.NoHandle {
		rec := r.texture(color)
		if rec == nil || !rec.inUse || rec.image == 0 {
			core.LogWarn("framebuffer bind to missing texture %d falls back to default target", color)
			color = gles.NoHandle
		} else {
			// Rendering happens outside the sampling cache's view of the
			// image; force the visibility barrier on its next sample bind.
			rec.needsBarrier = true
		}
	}
	r.boundColor = color
	r.boundDepth = depthStencil
	r.currentCB().BindRenderTarget(r.resolveRenderTarget())
	r.texturesDirty = true
}

// RenderbufferStorage creates depth/stencil storage for a renderbuffer
// handle. Storage is never reclaimed before shutdown; re-specifying a handle
// abandons the previous image's range.
func (r *Runtime) RenderbufferStorage(handle gles.RenderbufferHandle, width, height uint32) {
	if handle == gles.NoHandle || int(handle) >= len(r.renderbuffers) {
		core.LogWarn("renderbuffer storage with invalid handle %d", handle)
		return
	}
	size := memory.Align(uint64(width)*uint64(height)*4, r.limits.RowAlign)
	offset, err := r.imageArena.Allocate(size, r.limits.ImageAlign)
	if err != nil {
		r.stats.SkippedOps++
		return
	}
	img, err := r.device.CreateImage(native.ImageInfo{
		Width: width, Height: height, Levels: 1, Layers: 1,
		Format: native.FormatDepth24Stencil8, Offset: offset, RenderTarget: true,
	})
	if err != nil {
		core.LogError("renderbuffer image create failed: %v", err)
		r.stats.SkippedOps++
		return
	}
	r.renderbuffers[handle] = renderbufferRecord{inUse: true, width: width, height: height, image: img}
}

func (r *Runtime) RenderbufferDelete(handle gles.RenderbufferHandle) {
	if handle == gles.NoHandle || int(handle) >= len(r.renderbuffers) {
		return
	}
	if r.boundDepth == handle {
		r.boundDepth = gles.NoHandle
	}
	r.renderbuffers[handle] = renderbufferRecord{}
}
