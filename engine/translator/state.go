package translator

import (
	"github.com/spaghettifunk/prism/engine/gles"
	"github.com/spaghettifunk/prism/engine/native"
)

// Each apply_X call is stateless: it builds one native pipeline-state object
// from the emulated fixed-function block and binds it to the current command
// buffer. Values that the native API programs as dynamic commands (blend
// constant, stencil reference and masks) are emitted right after the state
// bind.

func translateBlendFactor(f gles.BlendFactor) native.BlendFactor {
	switch f {
	case gles.BlendFactorZero:
		return native.BlendZero
	case gles.BlendFactorOne:
		return native.BlendOne
	case gles.BlendFactorSrcColor:
		return native.BlendSrcColor
	case gles.BlendFactorOneMinusSrcColor:
		return native.BlendOneMinusSrcColor
	case gles.BlendFactorSrcAlpha:
		return native.BlendSrcAlpha
	case gles.BlendFactorOneMinusSrcAlpha:
		return native.BlendOneMinusSrcAlpha
	case gles.BlendFactorDstAlpha:
		return native.BlendDstAlpha
	case gles.BlendFactorOneMinusDstAlpha:
		return native.BlendOneMinusDstAlpha
	case gles.BlendFactorDstColor:
		return native.BlendDstColor
	case gles.BlendFactorOneMinusDstColor:
		return native.BlendOneMinusDstColor
	case gles.BlendFactorSrcAlphaSaturate:
		return native.BlendSrcAlphaSaturate
	case gles.BlendFactorConstantColor:
		return native.BlendConstantColor
	case gles.BlendFactorOneMinusConstantColor:
		return native.BlendOneMinusConstantColor
	case gles.BlendFactorConstantAlpha:
		return native.BlendConstantAlpha
	case gles.BlendFactorOneMinusConstantAlpha:
		return native.BlendOneMinusConstantAlpha
	}
	return native.BlendOne
}

func translateBlendEq(e gles.BlendEquation) native.BlendOp {
	switch e {
	case gles.BlendEquationSubtract:
		return native.BlendOpSubtract
	case gles.BlendEquationReverseSubtract:
		return native.BlendOpReverseSubtract
	}
	return native.BlendOpAdd
}

func translateCompare(f gles.CompareFunc) native.CompareOp {
	switch f {
	case gles.CompareFuncNever:
		return native.CompareNever
	case gles.CompareFuncLess:
		return native.CompareLess
	case gles.CompareFuncEqual:
		return native.CompareEqual
	case gles.CompareFuncLessEqual:
		return native.CompareLessEqual
	case gles.CompareFuncGreater:
		return native.CompareGreater
	case gles.CompareFuncNotEqual:
		return native.CompareNotEqual
	case gles.CompareFuncGreaterEqual:
		return native.CompareGreaterEqual
	}
	return native.CompareAlways
}

func translateStencilOp(op gles.StencilOp) native.StencilOp {
	switch op {
	case gles.StencilOpZero:
		return native.StencilZero
	case gles.StencilOpReplace:
		return native.StencilReplace
	case gles.StencilOpIncr:
		return native.StencilIncrClamp
	case gles.StencilOpIncrWrap:
		return native.StencilIncrWrap
	case gles.StencilOpDecr:
		return native.StencilDecrClamp
	case gles.StencilOpDecrWrap:
		return native.StencilDecrWrap
	case gles.StencilOpInvert:
		return native.StencilInvert
	}
	return native.StencilKeep
}

func translateStencilFace(f gles.StencilFaceState) native.StencilFaceInfo {
	return native.StencilFaceInfo{
		Compare:   translateCompare(f.Func),
		Fail:      translateStencilOp(f.FailOp),
		DepthFail: translateStencilOp(f.DepthFail),
		Pass:      translateStencilOp(f.PassOp),
	}
}

func (r *Runtime) SetViewport(v gles.Viewport) {
	r.viewport = v
	r.currentCB().SetViewport(v.X, v.Y, v.Width, v.Height, v.Near, v.Far)
}

func (r *Runtime) SetScissor(enabled bool, rect gles.Rect) {
	if !enabled {
		// Disabled scissor covers the full render target.
		w, h := r.device.SwapchainExtent()
		rect = gles.Rect{X: 0, Y: 0, Width: w, Height: h}
	}
	r.scissor = rect
	r.currentCB().SetScissor(rect.X, rect.Y, rect.Width, rect.Height)
}

func (r *Runtime) ApplyBlend(state gles.BlendState) {
	cb := r.currentCB()
	cb.SetBlend(native.BlendInfo{
		Enabled:  state.Enabled,
		SrcColor: translateBlendFactor(state.SrcColor),
		DstColor: translateBlendFactor(state.DstColor),
		SrcAlpha: translateBlendFactor(state.SrcAlpha),
		DstAlpha: translateBlendFactor(state.DstAlpha),
		ColorOp:  translateBlendEq(state.ColorEq),
		AlphaOp:  translateBlendEq(state.AlphaEq),
	})
	cb.SetBlendColor(state.ConstantColor)
}

// ApplyDepthStencil programs depth and stencil through one merged object.
// Binding them as two separate native objects makes the second bind clobber
// fields the first one set, so there is no split path.
func (r *Runtime) ApplyDepthStencil(state gles.DepthStencilState) {
	cb := r.currentCB()
	cb.SetDepthStencil(native.DepthStencilInfo{
		DepthTest:    state.DepthTest,
		DepthWrite:   state.DepthWrite,
		DepthCompare: translateCompare(state.DepthFunc),
		StencilTest:  state.StencilTest,
		Front:        translateStencilFace(state.Front),
		Back:         translateStencilFace(state.Back),
	})
	cb.SetStencilRef(state.StencilRef, state.StencilReadMask, state.StencilWriteMask)
}

// ApplyRaster maps cull mode and winding directly; the native device's
// default coordinate convention already matches the emulated API, so there is
// no Y inversion here.
func (r *Runtime) ApplyRaster(state gles.RasterState) {
	cull := native.CullNone
	if state.CullEnabled {
		switch state.CullFace {
		case gles.CullFaceFront:
			cull = native.CullFront
		case gles.CullFaceFrontAndBack:
			cull = native.CullFrontAndBack
		default:
			cull = native.CullBack
		}
	}
	front := native.FrontFaceCCW
	if state.FrontFace == gles.WindingClockwise {
		front = native.FrontFaceCW
	}
	r.currentCB().SetRaster(native.RasterInfo{Cull: cull, Front: front})
}

func (r *Runtime) SetColorMask(mask gles.ColorMask) {
	r.currentCB().SetColorMask(mask.R, mask.G, mask.B, mask.A)
}

func (r *Runtime) SetDepthBias(bias gles.DepthBias) {
	r.currentCB().SetDepthBias(bias.Factor, bias.Units)
}

func (r *Runtime) Clear(mask gles.ClearMask, color [4]float32, depth float32, stencil uint32) {
	var nm native.ClearMask
	if mask&gles.ClearColor != 0 {
		nm |= native.ClearColor
	}
	if mask&gles.ClearDepth != 0 {
		nm |= native.ClearDepth
	}
	if mask&gles.ClearStencil != 0 {
		nm |= native.ClearStencil
	}
	r.currentCB().Clear(nm, color, depth, stencil)
}
