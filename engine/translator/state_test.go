package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/gles"
	"github.com/spaghettifunk/prism/engine/native"
)

func TestTranslateBlendFactor(t *testing.T) {
	cases := map[gles.BlendFactor]native.BlendFactor{
		gles.BlendFactorZero:                  native.BlendZero,
		gles.BlendFactorOne:                   native.BlendOne,
		gles.BlendFactorSrcAlpha:              native.BlendSrcAlpha,
		gles.BlendFactorOneMinusSrcAlpha:      native.BlendOneMinusSrcAlpha,
		gles.BlendFactorDstColor:              native.BlendDstColor,
		gles.BlendFactorSrcAlphaSaturate:      native.BlendSrcAlphaSaturate,
		gles.BlendFactorConstantColor:         native.BlendConstantColor,
		gles.BlendFactorOneMinusConstantAlpha: native.BlendOneMinusConstantAlpha,
	}
	for in, want := range cases {
		assert.Equal(t, want, translateBlendFactor(in))
	}
}

func TestTranslateCompare(t *testing.T) {
	cases := map[gles.CompareFunc]native.CompareOp{
		gles.CompareFuncNever:        native.CompareNever,
		gles.CompareFuncLess:         native.CompareLess,
		gles.CompareFuncLessEqual:    native.CompareLessEqual,
		gles.CompareFuncGreaterEqual: native.CompareGreaterEqual,
		gles.CompareFuncAlways:       native.CompareAlways,
	}
	for in, want := range cases {
		assert.Equal(t, want, translateCompare(in))
	}
}

func TestTranslateStencilOp(t *testing.T) {
	cases := map[gles.StencilOp]native.StencilOp{
		gles.StencilOpKeep:     native.StencilKeep,
		gles.StencilOpZero:     native.StencilZero,
		gles.StencilOpReplace:  native.StencilReplace,
		gles.StencilOpIncr:     native.StencilIncrClamp,
		gles.StencilOpIncrWrap: native.StencilIncrWrap,
		gles.StencilOpDecr:     native.StencilDecrClamp,
		gles.StencilOpDecrWrap: native.StencilDecrWrap,
		gles.StencilOpInvert:   native.StencilInvert,
	}
	for in, want := range cases {
		assert.Equal(t, want, translateStencilOp(in))
	}
}

func TestTranslatePrimitive(t *testing.T) {
	cases := map[gles.Primitive]native.Primitive{
		gles.PrimitivePoints:        native.PrimPoints,
		gles.PrimitiveLines:         native.PrimLines,
		gles.PrimitiveLineLoop:      native.PrimLineLoop,
		gles.PrimitiveLineStrip:     native.PrimLineStrip,
		gles.PrimitiveTriangles:     native.PrimTriangles,
		gles.PrimitiveTriangleStrip: native.PrimTriangleStrip,
		gles.PrimitiveTriangleFan:   native.PrimTriangleFan,
	}
	for in, want := range cases {
		assert.Equal(t, want, translatePrimitive(in))
	}
}

func TestStateApplicationIsFaultTolerant(t *testing.T) {
	// State applies record commands only; none of them may panic or fault
	// even when the queue is already broken.
	r, dev := newTestRuntime(t)
	dev.InjectFault()

	r.SetViewport(gles.Viewport{Width: 960, Height: 544, Far: 1})
	r.SetScissor(true, gles.Rect{Width: 100, Height: 100})
	r.SetScissor(false, gles.Rect{})
	r.ApplyBlend(gles.BlendState{Enabled: true, SrcColor: gles.BlendFactorSrcAlpha})
	r.ApplyDepthStencil(gles.DepthStencilState{DepthTest: true, DepthFunc: gles.CompareFuncLessEqual})
	r.ApplyRaster(gles.RasterState{CullEnabled: true, CullFace: gles.CullFaceBack})
	r.SetColorMask(gles.ColorMask{R: true, G: true, B: true, A: true})
	r.SetDepthBias(gles.DepthBias{Factor: 1, Units: 2})
}

func TestClearColorReachesRenderTarget(t *testing.T) {
	r, dev := newTestRuntime(t)

	r.TextureUpload2D(1, 2, 2, gles.PixelFormatRGBA8, make([]byte, 16))
	r.FramebufferBind(1, gles.NoHandle)
	r.Clear(gles.ClearColor, [4]float32{1, 0, 0, 1}, 1, 0)
	flushFrame(t, r)

	stored := dev.ImagePixels(r.texture(1).image, 0, 0)
	require.Len(t, stored, 16)
	for i := 0; i < 16; i += 4 {
		assert.Equal(t, []byte{255, 0, 0, 255}, stored[i:i+4])
	}
}
