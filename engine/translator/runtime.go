// Package translator implements the emulated-API backend on top of the
// native device interface: it owns GPU memory layout, builds command buffers,
// sequences multi-frame-in-flight synchronization and maps API-level objects
// onto native resources and descriptors.
package translator

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/prism/engine/blobs"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/gles"
	"github.com/spaghettifunk/prism/engine/memory"
	"github.com/spaghettifunk/prism/engine/native"
)

type bufferRecord struct {
	inUse  bool
	offset uint64
	size   uint64
}

type textureRecord struct {
	inUse      bool
	width      uint32
	height     uint32
	levels     uint32
	format     native.Format
	image      native.ImageID
	cube       bool
	faceMask   uint8
	complete   bool
	descOffset uint64
	hasDesc    bool
	params     gles.SamplerParams
	// needsBarrier is set when the copy engine wrote the image outside the 3D
	// engine's sampling cache; a full barrier is inserted on the next sample
	// bind and the flag cleared.
	needsBarrier bool
	compressed   bool
}

type shaderRecord struct {
	loaded bool
	stage  gles.ShaderStage
	ref    native.ShaderRef
}

type programRecord struct {
	linked bool
	// stages holds per-program copies of the shader binaries, made at link
	// time. The program stays bindable after its source shader handles are
	// deleted.
	stages     [gles.ShaderStageCount]native.ShaderRef
	stageValid [gles.ShaderStageCount]bool
	// uniforms is the CPU-side value block per stage; its bytes are copied
	// into the command stream when the program is used by a draw.
	uniforms [gles.ShaderStageCount][]byte
}

type renderbufferRecord struct {
	inUse  bool
	width  uint32
	height uint32
	image  native.ImageID
}

type frameSlot struct {
	cb        native.CommandBuffer
	fence     native.Fence
	submitted bool
}

// Stats are frame-loop counters reported at shutdown.
type Stats struct {
	Draws       uint64
	Submissions uint64
	BytesStaged uint64
	SkippedOps  uint64
}

// Runtime is the backend for one native device. It is not reentrant: all
// calls happen on one goroutine, the same discipline the emulated API imposes
// on its contexts.
type Runtime struct {
	id     uuid.UUID
	device native.Device
	cfg    *Config
	limits native.Limits
	blobs  *blobs.Cache

	codeArena     *memory.Arena
	imageArena    *memory.Arena
	descArena     *memory.Arena
	stagingArena  *memory.Arena
	staticArena   *memory.Arena
	clientArenas  []*memory.Arena
	uniformArenas []*memory.Arena

	frames     []*frameSlot
	current    int
	imageIndex uint32
	acquired   bool

	buffers       []bufferRecord
	textures      []textureRecord
	shaders       []shaderRecord
	programs      []programRecord
	renderbuffers []renderbufferRecord

	boundProgram  gles.ProgramHandle
	vertexAttribs []gles.VertexAttrib
	boundTextures []gles.TextureHandle
	texturesDirty bool
	boundColor    gles.TextureHandle
	boundDepth    gles.RenderbufferHandle

	viewport gles.Viewport
	scissor  gles.Rect

	initialized bool
	stats       Stats
}

// New builds a Runtime over an already-created native device. Initialize must
// be called before any other operation.
func New(device native.Device, cfg *Config) *Runtime {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Runtime{
		id:     uuid.New(),
		device: device,
		cfg:    cfg,
	}
}

var _ gles.Backend = (*Runtime)(nil)

func (r *Runtime) Initialize(appName string, width, height uint32) error {
	if r.initialized {
		return fmt.Errorf("runtime %s already initialized", r.id)
	}
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	r.limits = r.device.Limits()

	// Carve the five regions. The data region is sub-partitioned into the
	// static buffer range plus per-frame-slot client and uniform ranges.
	perFrame := (r.cfg.ClientBytesPerSlot + r.cfg.UniformBytesPerSlot) * uint64(r.cfg.FrameSlots)
	dataSize := r.device.RegionSize(native.RegionData)
	if perFrame >= dataSize {
		return fmt.Errorf("data region (%d bytes) too small for %d frame slots", dataSize, r.cfg.FrameSlots)
	}
	r.codeArena = memory.NewArena("code", 0, r.device.RegionSize(native.RegionCode))
	r.imageArena = memory.NewArena("image", 0, r.device.RegionSize(native.RegionImage))
	r.descArena = memory.NewArena("descriptor", 0, r.device.RegionSize(native.RegionDescriptor))
	r.stagingArena = memory.NewArena("staging", 0, r.device.RegionSize(native.RegionStaging))
	r.staticArena = memory.NewArena("static", 0, dataSize-perFrame)
	clientBase := dataSize - perFrame
	r.clientArenas = memory.NewArena("client", clientBase, r.cfg.ClientBytesPerSlot*uint64(r.cfg.FrameSlots)).Partition(r.cfg.FrameSlots)
	uniformBase := clientBase + r.cfg.ClientBytesPerSlot*uint64(r.cfg.FrameSlots)
	r.uniformArenas = memory.NewArena("uniform", uniformBase, r.cfg.UniformBytesPerSlot*uint64(r.cfg.FrameSlots)).Partition(r.cfg.FrameSlots)

	// Descriptor offset 0 stays unused so 0 can mean "no descriptor".
	if _, err := r.descArena.Allocate(r.limits.DescriptorSize, r.limits.DescriptorSize); err != nil {
		return err
	}

	r.buffers = make([]bufferRecord, r.cfg.MaxBuffers)
	r.textures = make([]textureRecord, r.cfg.MaxTextures)
	r.shaders = make([]shaderRecord, r.cfg.MaxShaders)
	r.programs = make([]programRecord, r.cfg.MaxPrograms)
	r.renderbuffers = make([]renderbufferRecord, r.cfg.MaxRenderbuffers)
	r.boundTextures = make([]gles.TextureHandle, r.limits.MaxTextureUnits)
	r.vertexAttribs = make([]gles.VertexAttrib, r.limits.MaxVertexAttrib)

	bc, err := blobs.NewCache()
	if err != nil {
		return err
	}
	r.blobs = bc

	// One frame slot per swapchain image, each with its own command buffer
	// and a fence created signaled so the first wait falls through.
	r.frames = make([]*frameSlot, r.cfg.FrameSlots)
	for i := range r.frames {
		cb, err := r.device.NewCommandBuffer()
		if err != nil {
			return err
		}
		fence, err := r.device.NewFence(true)
		if err != nil {
			return err
		}
		r.frames[i] = &frameSlot{cb: cb, fence: fence}
	}

	w, h := r.device.SwapchainExtent()
	r.viewport = gles.Viewport{Width: w, Height: h, Near: 0, Far: 1}

	// Start recording immediately so resource uploads that arrive before the
	// first explicit frame have a live command buffer.
	if err := r.beginRecording(); err != nil {
		return err
	}

	r.initialized = true
	core.LogInfo("%s: translator runtime %s initialized (%dx%d, %d frame slots)", appName, r.id, width, height, r.cfg.FrameSlots)
	return nil
}

func (r *Runtime) Shutdown() error {
	if !r.initialized {
		return nil
	}
	if err := r.device.WaitIdle(); err != nil {
		core.LogWarn("shutdown with faulted queue: %v", err)
	}
	if r.blobs != nil {
		r.blobs.Close()
	}
	core.LogInfo("runtime %s stats: draws=%d submissions=%d staged=%dB skipped=%d",
		r.id, r.stats.Draws, r.stats.Submissions, r.stats.BytesStaged, r.stats.SkippedOps)
	r.initialized = false
	return r.device.Shutdown()
}

// Statistics returns a copy of the runtime counters.
func (r *Runtime) Statistics() Stats { return r.stats }

func (r *Runtime) slot() *frameSlot { return r.frames[r.current] }

// currentCB is the command buffer every component records into.
func (r *Runtime) currentCB() native.CommandBuffer { return r.slot().cb }

// beginRecording acquires a swapchain image if none is held, begins the
// current slot's command buffer and applies the persistent dynamic state.
func (r *Runtime) beginRecording() error {
	if !r.acquired {
		idx, err := r.device.AcquireImage()
		if err != nil {
			core.LogError("image acquire failed: %v", err)
			return err
		}
		r.imageIndex = idx
		r.acquired = true
	}
	cb := r.currentCB()
	if err := cb.Begin(); err != nil {
		return err
	}
	r.restoreRecordingState(cb)
	return nil
}

// restoreRecordingState re-applies everything a cleared command buffer drops:
// the render-target binding and the sticky dynamic state. Descriptor binds
// are invalidated so the next draw re-pushes them.
func (r *Runtime) restoreRecordingState(cb native.CommandBuffer) {
	cb.BindRenderTarget(r.resolveRenderTarget())
	cb.SetViewport(r.viewport.X, r.viewport.Y, r.viewport.Width, r.viewport.Height, r.viewport.Near, r.viewport.Far)
	if r.scissor.Width > 0 && r.scissor.Height > 0 {
		cb.SetScissor(r.scissor.X, r.scissor.Y, r.scissor.Width, r.scissor.Height)
	}
	r.texturesDirty = true
}

// reprimeRecording is the single mid-frame reset path: clear the current
// command buffer and begin it again with state restored. Every operation that
// submits and waits inside a frame funnels through here afterward.
func (r *Runtime) reprimeRecording() {
	cb := r.currentCB()
	cb.Reset()
	if err := cb.Begin(); err != nil {
		core.LogError("failed to re-begin command buffer: %v", err)
		return
	}
	r.restoreRecordingState(cb)
}

// submitAndWait finalizes the current command buffer, submits it, blocks for
// completion and re-primes recording. Used by the synchronous upload and
// readback paths. On a faulted queue the submission is skipped but the
// command buffer is still reset so recording stays consistent.
func (r *Runtime) submitAndWait() error {
	slot := r.slot()
	if err := slot.cb.End(); err != nil {
		core.LogError("failed to end command buffer: %v", err)
	}
	if r.device.Faulted() {
		r.stats.SkippedOps++
		r.reprimeRecording()
		return core.ErrDeviceFaulted
	}
	slot.fence.Reset()
	if err := r.device.Submit(slot.cb, slot.fence); err != nil {
		core.LogError("mid-frame submit failed: %v", err)
		r.reprimeRecording()
		return err
	}
	r.stats.Submissions++
	if !slot.fence.Wait(fenceTimeoutNs) {
		core.LogError("mid-frame fence wait timed out")
	}
	r.reprimeRecording()
	return nil
}

// resolveRenderTarget maps the bound framebuffer to native images. The
// default binding (handle 0) is the currently acquired swapchain image. A
// color handle that names a missing texture resolves to the default target
// rather than faulting.
func (r *Runtime) resolveRenderTarget() (color, depth native.ImageID) {
	color = r.device.SwapchainImage(r.imageIndex)
	if r.boundColor != gles.NoHandle {
		if rec := r.texture(r.boundColor); rec != nil && rec.image != 0 {
			color = rec.image
		}
	}
	if r.boundDepth != gles.NoHandle {
		if rb := r.renderbuffer(r.boundDepth); rb != nil {
			depth = rb.image
		}
	}
	return color, depth
}

// offscreenTarget reports whether draws currently land in a texture instead
// of the swapchain image.
func (r *Runtime) offscreenTarget() bool {
	if r.boundColor == gles.NoHandle {
		return false
	}
	rec := r.texture(r.boundColor)
	return rec != nil && rec.image != 0
}

func (r *Runtime) buffer(h gles.BufferHandle) *bufferRecord {
	if h == gles.NoHandle || int(h) >= len(r.buffers) {
		return nil
	}
	return &r.buffers[h]
}

func (r *Runtime) texture(h gles.TextureHandle) *textureRecord {
	if h == gles.NoHandle || int(h) >= len(r.textures) {
		return nil
	}
	return &r.textures[h]
}

func (r *Runtime) shader(h gles.ShaderHandle) *shaderRecord {
	if h == gles.NoHandle || int(h) >= len(r.shaders) {
		return nil
	}
	return &r.shaders[h]
}

func (r *Runtime) program(h gles.ProgramHandle) *programRecord {
	if h == gles.NoHandle || int(h) >= len(r.programs) {
		return nil
	}
	return &r.programs[h]
}

func (r *Runtime) renderbuffer(h gles.RenderbufferHandle) *renderbufferRecord {
	if h == gles.NoHandle || int(h) >= len(r.renderbuffers) || !r.renderbuffers[h].inUse {
		return nil
	}
	return &r.renderbuffers[h]
}

const fenceTimeoutNs = ^uint64(0)
