package gles

type BlendFactor int

const (
	BlendFactorZero BlendFactor = iota
	BlendFactorOne
	BlendFactorSrcColor
	BlendFactorOneMinusSrcColor
	BlendFactorSrcAlpha
	BlendFactorOneMinusSrcAlpha
	BlendFactorDstAlpha
	BlendFactorOneMinusDstAlpha
	BlendFactorDstColor
	BlendFactorOneMinusDstColor
	BlendFactorSrcAlphaSaturate
	BlendFactorConstantColor
	BlendFactorOneMinusConstantColor
	BlendFactorConstantAlpha
	BlendFactorOneMinusConstantAlpha
)

type BlendEquation int

const (
	BlendEquationAdd BlendEquation = iota
	BlendEquationSubtract
	BlendEquationReverseSubtract
)

type CompareFunc int

const (
	CompareFuncNever CompareFunc = iota
	CompareFuncLess
	CompareFuncEqual
	CompareFuncLessEqual
	CompareFuncGreater
	CompareFuncNotEqual
	CompareFuncGreaterEqual
	CompareFuncAlways
)

type StencilOp int

const (
	StencilOpKeep StencilOp = iota
	StencilOpZero
	StencilOpReplace
	StencilOpIncr
	StencilOpIncrWrap
	StencilOpDecr
	StencilOpDecrWrap
	StencilOpInvert
)

type CullFace int

const (
	CullFaceBack CullFace = iota
	CullFaceFront
	CullFaceFrontAndBack
)

type Winding int

const (
	WindingCounterClockwise Winding = iota
	WindingClockwise
)

type BlendState struct {
	Enabled       bool
	SrcColor      BlendFactor
	DstColor      BlendFactor
	SrcAlpha      BlendFactor
	DstAlpha      BlendFactor
	ColorEq       BlendEquation
	AlphaEq       BlendEquation
	ConstantColor [4]float32
}

type StencilFaceState struct {
	Func      CompareFunc
	FailOp    StencilOp
	DepthFail StencilOp
	PassOp    StencilOp
}

// DepthStencilState is the combined depth+stencil block. The two are applied
// through one object because the native API overwrites shared fields when
// they are bound separately; there is deliberately no depth-only or
// stencil-only apply path.
type DepthStencilState struct {
	DepthTest        bool
	DepthWrite       bool
	DepthFunc        CompareFunc
	StencilTest      bool
	Front            StencilFaceState
	Back             StencilFaceState
	StencilRef       uint32
	StencilReadMask  uint32
	StencilWriteMask uint32
}

type RasterState struct {
	CullEnabled bool
	CullFace    CullFace
	FrontFace   Winding
}

type Viewport struct {
	X, Y          int32
	Width, Height uint32
	Near, Far     float32
}

type Rect struct {
	X, Y          int32
	Width, Height uint32
}

type ColorMask struct {
	R, G, B, A bool
}

type DepthBias struct {
	Factor float32
	Units  float32
}
