package gles

// Handles are plain indices into the backend's fixed-capacity tables. The
// front end allocates them; handle 0 is reserved and always means "none".
type (
	TextureHandle      uint32
	BufferHandle       uint32
	ShaderHandle       uint32
	ProgramHandle      uint32
	RenderbufferHandle uint32
)

// NoHandle is the reserved invalid value for every handle type.
const NoHandle = 0

type PixelFormat int

const (
	PixelFormatRGBA8 PixelFormat = iota
	PixelFormatRGB8
	PixelFormatRGB565
	PixelFormatLuminance8
	PixelFormatLuminanceAlpha8
	PixelFormatAlpha8
)

// BytesPerPixel returns the source-data byte width of one pixel.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case PixelFormatRGBA8:
		return 4
	case PixelFormatRGB8:
		return 3
	case PixelFormatRGB565, PixelFormatLuminanceAlpha8:
		return 2
	default:
		return 1
	}
}

type CompressedFormat int

const (
	CompressedFormatDXT1 CompressedFormat = iota
	CompressedFormatDXT3
	CompressedFormatDXT5
)

type CubeFace int

const (
	CubeFacePositiveX CubeFace = iota
	CubeFaceNegativeX
	CubeFacePositiveY
	CubeFaceNegativeY
	CubeFacePositiveZ
	CubeFaceNegativeZ
	CubeFaceCount
)

type ShaderStage int

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageFragment
	ShaderStageCount
)

type Primitive int

const (
	PrimitivePoints Primitive = iota
	PrimitiveLines
	PrimitiveLineLoop
	PrimitiveLineStrip
	PrimitiveTriangles
	PrimitiveTriangleStrip
	PrimitiveTriangleFan
)

type IndexType int

const (
	IndexTypeU8 IndexType = iota
	IndexTypeU16
	IndexTypeU32
)

func (t IndexType) ByteSize() int {
	switch t {
	case IndexTypeU8:
		return 1
	case IndexTypeU16:
		return 2
	default:
		return 4
	}
}

type ComponentType int

const (
	ComponentTypeFloat ComponentType = iota
	ComponentTypeByte
	ComponentTypeUnsignedByte
	ComponentTypeShort
	ComponentTypeUnsignedShort
	ComponentTypeFixed
)

func (t ComponentType) ByteSize() int {
	switch t {
	case ComponentTypeFloat, ComponentTypeFixed:
		return 4
	case ComponentTypeShort, ComponentTypeUnsignedShort:
		return 2
	default:
		return 1
	}
}

type ClearMask uint8

const (
	ClearColor ClearMask = 1 << iota
	ClearDepth
	ClearStencil
)

type TextureFilter int

const (
	TextureFilterNearest TextureFilter = iota
	TextureFilterLinear
	TextureFilterNearestMipmapNearest
	TextureFilterLinearMipmapNearest
	TextureFilterNearestMipmapLinear
	TextureFilterLinearMipmapLinear
)

type TextureWrap int

const (
	TextureWrapRepeat TextureWrap = iota
	TextureWrapClampToEdge
	TextureWrapMirroredRepeat
)

// SamplerParams carries the per-texture sampling parameters the emulated API
// sets lazily through parameter calls.
type SamplerParams struct {
	MinFilter TextureFilter
	MagFilter TextureFilter
	WrapS     TextureWrap
	WrapT     TextureWrap
}

// ClientArray identifies a client-memory vertex or index array. ID is a
// structural identity token assigned by the front end: two attributes whose
// bytes come from the same application array share one ID, which is what the
// draw assembler uses to detect interleaving instead of comparing raw
// pointers.
type ClientArray struct {
	ID   uint64
	Data []byte
}

func (c ClientArray) Valid() bool { return c.ID != 0 && len(c.Data) > 0 }

// VertexAttrib is the consolidated per-attribute specification handed to the
// draw assembler. Exactly one of Buffer or Source backs an enabled attribute;
// a disabled attribute contributes Constant as a non-varying value.
type VertexAttrib struct {
	Enabled    bool
	Constant   [4]float32
	Buffer     BufferHandle
	Source     ClientArray
	Offset     uint32
	Stride     uint32
	Size       uint8
	Type       ComponentType
	Normalized bool
}

// EffectiveStride resolves the tightly-packed case: a declared stride of 0
// means consecutive elements of Size components.
func (a VertexAttrib) EffectiveStride() uint32 {
	if a.Stride != 0 {
		return a.Stride
	}
	return uint32(a.Size) * uint32(a.Type.ByteSize())
}

// IndexSource names where element indices come from for an indexed draw:
// either a range of a previously uploaded buffer or a client-memory array.
type IndexSource struct {
	Buffer BufferHandle
	Offset uint32
	Data   []byte
}
