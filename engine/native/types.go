package native

// Region names one of the five fixed GPU-visible memory partitions a device
// owns. Regions are carved once at device init and never resized.
type Region int

const (
	// RegionCode holds precompiled shader binaries.
	RegionCode Region = iota
	// RegionData holds vertex, index and uniform bytes (static buffer uploads
	// plus the per-frame client-array and uniform sub-ranges).
	RegionData
	// RegionImage holds texture and render-target storage.
	RegionImage
	// RegionDescriptor holds sampler descriptor tables.
	RegionDescriptor
	// RegionStaging is CPU-visible transfer memory for uploads and readback.
	RegionStaging
	RegionCount
)

func (r Region) String() string {
	switch r {
	case RegionCode:
		return "code"
	case RegionData:
		return "data"
	case RegionImage:
		return "image"
	case RegionDescriptor:
		return "descriptor"
	case RegionStaging:
		return "staging"
	}
	return "unknown"
}

// Format is a native image format. There is deliberately no 3-channel packed
// layout; 24-bit source data is expanded during staging.
type Format int

const (
	FormatInvalid Format = iota
	FormatRGBA8
	FormatBGRA8
	FormatR8
	FormatRG8
	FormatRGB565
	FormatDepth24Stencil8
	FormatDXT1
	FormatDXT3
	FormatDXT5
)

func (f Format) BytesPerPixel() int {
	switch f {
	case FormatRGBA8, FormatBGRA8, FormatDepth24Stencil8:
		return 4
	case FormatRG8, FormatRGB565:
		return 2
	case FormatR8:
		return 1
	}
	return 0
}

// Compressed reports whether the format is a block-compressed layout whose
// data is copied opaquely.
func (f Format) Compressed() bool {
	return f == FormatDXT1 || f == FormatDXT3 || f == FormatDXT5
}

type BlendFactor int

const (
	BlendZero BlendFactor = iota
	BlendOne
	BlendSrcColor
	BlendOneMinusSrcColor
	BlendSrcAlpha
	BlendOneMinusSrcAlpha
	BlendDstAlpha
	BlendOneMinusDstAlpha
	BlendDstColor
	BlendOneMinusDstColor
	BlendSrcAlphaSaturate
	BlendConstantColor
	BlendOneMinusConstantColor
	BlendConstantAlpha
	BlendOneMinusConstantAlpha
)

type BlendOp int

const (
	BlendOpAdd BlendOp = iota
	BlendOpSubtract
	BlendOpReverseSubtract
)

type CompareOp int

const (
	CompareNever CompareOp = iota
	CompareLess
	CompareEqual
	CompareLessEqual
	CompareGreater
	CompareNotEqual
	CompareGreaterEqual
	CompareAlways
)

type StencilOp int

const (
	StencilKeep StencilOp = iota
	StencilZero
	StencilReplace
	StencilIncrClamp
	StencilIncrWrap
	StencilDecrClamp
	StencilDecrWrap
	StencilInvert
)

type CullMode int

const (
	CullNone CullMode = iota
	CullFront
	CullBack
	CullFrontAndBack
)

type FrontFace int

const (
	FrontFaceCCW FrontFace = iota
	FrontFaceCW
)

type Primitive int

const (
	PrimPoints Primitive = iota
	PrimLines
	PrimLineLoop
	PrimLineStrip
	PrimTriangles
	PrimTriangleStrip
	PrimTriangleFan
)

// IndexFormat is the set of index widths the fixed-function fetch unit
// accepts. There is no 8-bit entry; narrower indices are widened before they
// reach the device.
type IndexFormat int

const (
	IndexU16 IndexFormat = iota
	IndexU32
)

type ClearMask uint8

const (
	ClearColor ClearMask = 1 << iota
	ClearDepth
	ClearStencil
)

// BarrierFlags selects which caches and engines a barrier command
// synchronizes.
type BarrierFlags uint8

const (
	// BarrierTransfer orders copy-engine writes before later reads.
	BarrierTransfer BarrierFlags = 1 << iota
	// BarrierImage invalidates the 3D engine's sampling cache for images
	// written outside it.
	BarrierImage
	// BarrierDescriptors flushes descriptor-table writes.
	BarrierDescriptors
	// BarrierRenderTarget orders render-target writes before sampling.
	BarrierRenderTarget

	BarrierFull = BarrierTransfer | BarrierImage | BarrierDescriptors | BarrierRenderTarget
)

// ImageID identifies a native image. 0 is never a valid image.
type ImageID uint32

// ImageInfo describes an image to be created at an explicit, caller-aligned
// offset inside RegionImage.
type ImageInfo struct {
	Width        uint32
	Height       uint32
	Levels       uint32
	Layers       uint32 // 1 for 2D, 6 for cubemaps
	Format       Format
	Offset       uint64
	RenderTarget bool
}

type ImageRect struct {
	X, Y          int32
	Width, Height uint32
}

type WrapMode int

const (
	WrapRepeat WrapMode = iota
	WrapClampToEdge
	WrapMirror
)

// SamplerDescriptor is the descriptor-table entry for one sampled image.
type SamplerDescriptor struct {
	Image     ImageID
	MinLinear bool
	MagLinear bool
	Mipmapped bool
	WrapS     WrapMode
	WrapT     WrapMode
}

type BlendInfo struct {
	Enabled  bool
	SrcColor BlendFactor
	DstColor BlendFactor
	SrcAlpha BlendFactor
	DstAlpha BlendFactor
	ColorOp  BlendOp
	AlphaOp  BlendOp
}

type StencilFaceInfo struct {
	Compare   CompareOp
	Fail      StencilOp
	DepthFail StencilOp
	Pass      StencilOp
}

// DepthStencilInfo is one merged pipeline-state object. Depth and stencil
// share fields in the native pipeline block, so they are always programmed
// together.
type DepthStencilInfo struct {
	DepthTest    bool
	DepthWrite   bool
	DepthCompare CompareOp
	StencilTest  bool
	Front        StencilFaceInfo
	Back         StencilFaceInfo
}

type RasterInfo struct {
	Cull  CullMode
	Front FrontFace
}

// ShaderRef locates a loaded shader binary inside RegionCode.
type ShaderRef struct {
	Offset uint64
	Size   uint64
}

func (s ShaderRef) Valid() bool { return s.Size != 0 }

// VertexBufferBinding is one hardware vertex-stream slot: a base offset into
// RegionData plus the per-element stride shared by every attribute reading
// from the slot.
type VertexBufferBinding struct {
	Offset uint64
	Stride uint32
}

type AttribFormat struct {
	Components uint8
	Type       AttribType
	Normalized bool
}

type AttribType int

const (
	AttribFloat AttribType = iota
	AttribInt8
	AttribUint8
	AttribInt16
	AttribUint16
)

// VertexAttribDesc maps one shader input location onto a buffer-binding slot.
// Binding < 0 means the attribute is non-varying and reads Constant instead.
type VertexAttribDesc struct {
	Location uint32
	Binding  int32
	Offset   uint32
	Format   AttribFormat
	Constant [4]float32
}

// Limits reports device-imposed alignments and capacities the translation
// layer must honor when laying out memory.
type Limits struct {
	BufferAlign     uint64
	UniformAlign    uint64
	ImageAlign      uint64
	RowAlign        uint64
	DescriptorSize  uint64
	MaxVertexAttrib int
	MaxTextureUnits int
}
