package gles

// Backend is the fixed operation table the front end drives the translation
// core through. The front end validates arguments and owns handle allocation;
// every call that reaches a Backend is semantically checked. Implementations
// degrade locally on recoverable failures (exhausted regions, faulted queue)
// instead of propagating errors for conditions the emulated API treats as
// silent.
type Backend interface {
	Initialize(appName string, width, height uint32) error
	Shutdown() error

	BeginFrame() error
	EndFrame() error
	AcquireImage() error
	Present() error
	WaitFence(slot uint32) error

	SetViewport(v Viewport)
	SetScissor(enabled bool, r Rect)
	ApplyBlend(state BlendState)
	ApplyDepthStencil(state DepthStencilState)
	ApplyRaster(state RasterState)
	SetColorMask(mask ColorMask)
	SetDepthBias(bias DepthBias)
	Clear(mask ClearMask, color [4]float32, depth float32, stencil uint32)

	BufferCreate(handle BufferHandle)
	BufferDelete(handle BufferHandle)
	BufferUpload(handle BufferHandle, data []byte)
	BufferSubUpload(handle BufferHandle, offset uint32, data []byte)

	TextureUpload2D(handle TextureHandle, width, height uint32, format PixelFormat, pixels []byte)
	TextureUploadCube(handle TextureHandle, face CubeFace, size uint32, format PixelFormat, pixels []byte)
	TextureUploadCompressed(handle TextureHandle, width, height uint32, format CompressedFormat, data []byte)
	TextureSubUpload(handle TextureHandle, x, y, width, height uint32, format PixelFormat, pixels []byte)
	TextureSetParams(handle TextureHandle, params SamplerParams)
	TextureBind(unit uint32, handle TextureHandle)
	GenerateMipmaps(handle TextureHandle)
	CopyFramebufferToTexture(handle TextureHandle, srcX, srcY int32, width, height uint32)
	CopyFramebufferToTextureSub(handle TextureHandle, dstX, dstY uint32, srcX, srcY int32, width, height uint32)

	ShaderLoad(handle ShaderHandle, stage ShaderStage, path string) error
	ProgramLink(handle ProgramHandle, vertex, fragment ShaderHandle) error
	ProgramBind(handle ProgramHandle)

	UniformAllocate(program ProgramHandle, stage ShaderStage, size uint32) error
	UniformWrite(program ProgramHandle, stage ShaderStage, offset uint32, data []byte)

	VertexAttribBind(index uint32, attrib VertexAttrib)
	DrawArrays(mode Primitive, first, count int32)
	DrawElements(mode Primitive, count int32, indexType IndexType, indices IndexSource)

	FramebufferBind(color TextureHandle, depthStencil RenderbufferHandle)
	RenderbufferStorage(handle RenderbufferHandle, width, height uint32)
	RenderbufferDelete(handle RenderbufferHandle)

	ReadPixels(x, y int32, width, height uint32, dst []byte) error

	Flush()
	Finish()
	MemoryBarrier()
}
