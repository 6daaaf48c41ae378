// Package native defines the boundary to the console's explicit,
// command-buffer-oriented GPU interface. One implementation exists per
// hardware target; the translation core only ever speaks through these
// interfaces.
package native

// Device owns the five fixed memory regions, the submission queue and the
// swapchain. All methods are single-threaded: the translation core records
// and submits from one goroutine.
type Device interface {
	// Limits reports alignments and table capacities for memory layout.
	Limits() Limits

	// RegionSize returns the byte capacity of a region.
	RegionSize(r Region) uint64

	// MapRegion returns a CPU view of a host-visible region. RegionImage is
	// device-local and returns nil.
	MapRegion(r Region) []byte

	// CreateImage creates an image backed by RegionImage at info.Offset. The
	// offset must already satisfy Limits().ImageAlign.
	CreateImage(info ImageInfo) (ImageID, error)

	// WriteSamplerDescriptor writes one descriptor-table entry at the given
	// offset inside RegionDescriptor.
	WriteSamplerDescriptor(offset uint64, desc SamplerDescriptor) error

	NewCommandBuffer() (CommandBuffer, error)
	NewFence(signaled bool) (Fence, error)

	// Submit hands a finalized command buffer to the queue, arming fence (if
	// non-nil) to signal on completion. A faulted queue rejects submission.
	Submit(cb CommandBuffer, fence Fence) error

	// WaitIdle blocks until the queue has drained.
	WaitIdle() error

	// Faulted reports the queue's sticky error state. Once set it stays set
	// for the lifetime of the device.
	Faulted() bool

	SwapchainImageCount() uint32
	SwapchainExtent() (width, height uint32)
	SwapchainImage(index uint32) ImageID
	AcquireImage() (uint32, error)
	Present(index uint32) error

	Shutdown() error
}

// CommandBuffer records native commands. Commands that take CPU data
// (PushUniforms) snapshot the bytes at record time; everything else
// references region offsets resolved at execution time.
type CommandBuffer interface {
	Begin() error
	End() error
	// Reset discards all recorded commands and bound state. The caller must
	// not reset a buffer whose submission fence is still unsignaled.
	Reset()

	CopyBufferToImage(stagingOffset uint64, rowStride uint32, img ImageID, layer, level uint32, r ImageRect)
	CopyImageToBuffer(img ImageID, level uint32, r ImageRect, stagingOffset uint64, rowStride uint32)
	// BlitImage scales level srcLevel of one layer of img into level dstLevel
	// with linear filtering.
	BlitImage(img ImageID, layer, srcLevel, dstLevel uint32, srcW, srcH, dstW, dstH uint32)
	Barrier(flags BarrierFlags)

	SetBlend(info BlendInfo)
	SetDepthStencil(info DepthStencilInfo)
	SetRaster(info RasterInfo)
	SetViewport(x, y int32, width, height uint32, minDepth, maxDepth float32)
	SetScissor(x, y int32, width, height uint32)
	SetBlendColor(color [4]float32)
	SetStencilRef(ref, compareMask, writeMask uint32)
	SetDepthBias(factor, units float32)
	SetColorMask(r, g, b, a bool)

	// BindRenderTarget selects the images subsequent draws render into.
	// depth may be 0 for color-only rendering.
	BindRenderTarget(color, depth ImageID)
	BindShaders(vertex, fragment ShaderRef)
	// PushUniforms copies data into the command stream for the given stage
	// slot; the GPU never dereferences the caller's memory.
	PushUniforms(stage int, data []byte)
	BindVertexBuffers(bindings []VertexBufferBinding)
	BindVertexAttribs(attribs []VertexAttribDesc)
	BindIndexBuffer(offset uint64, format IndexFormat)
	// BindTexture points a sampling unit at a descriptor-table entry.
	BindTexture(unit uint32, descriptorOffset uint64)

	Clear(mask ClearMask, color [4]float32, depth float32, stencil uint32)
	Draw(prim Primitive, first, count uint32)
	DrawIndexed(prim Primitive, count uint32)
}

// Fence is a GPU-to-CPU completion signal for one submission.
type Fence interface {
	// Wait blocks until the fence signals or timeoutNs elapses; it reports
	// whether the fence is signaled. Waiting on an already-signaled fence
	// returns immediately.
	Wait(timeoutNs uint64) bool
	Reset()
	Signaled() bool
}
