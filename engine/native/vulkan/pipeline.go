package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/native"
)

const (
	maxVertexAttribs = 8
	maxTextureUnits  = 8
)

// pipelineKey is the full fixed-function state a graphics pipeline bakes in.
// Everything the native API treats as dynamic (viewport, scissor, blend
// constant, stencil reference, depth bias) is declared dynamic here, so state
// churn stays out of the key.
type pipelineKey struct {
	vertex   native.ShaderRef
	fragment native.ShaderRef

	blend        native.BlendInfo
	depthStencil native.DepthStencilInfo
	raster       native.RasterInfo
	colorMask    [4]bool
	prim         native.Primitive

	// Constant attributes add stride-0 bindings past the real ones, so the
	// binding tables are twice the attribute limit.
	bindingCount uint8
	strides      [2 * maxVertexAttribs]uint32
	attribCount  uint8
	attribs      [maxVertexAttribs]native.VertexAttribDesc

	renderPass renderPassKey
}

type pipelineEntry struct {
	handle vk.Pipeline
}

// renderPassKey distinguishes the attachment combinations a pass can have.
type renderPassKey struct {
	colorFormat vk.Format
	hasDepth    bool
}

type framebufferKey struct {
	color vk.ImageView
	depth vk.ImageView
}

// createSharedLayout builds the one pipeline layout every draw uses: set 0
// holds the two per-stage dynamic uniform windows into the data region, set 1
// the sampling units.
func (d *Device) createSharedLayout() error {
	uniformBindings := []vk.DescriptorSetLayoutBinding{
		{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeUniformBufferDynamic,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		},
		{
			Binding:         1,
			DescriptorType:  vk.DescriptorTypeUniformBufferDynamic,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		},
	}
	samplerBindings := make([]vk.DescriptorSetLayoutBinding, maxTextureUnits)
	for i := range samplerBindings {
		samplerBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		}
	}

	d.setLayouts = make([]vk.DescriptorSetLayout, 2)
	for i, bindings := range [][]vk.DescriptorSetLayoutBinding{uniformBindings, samplerBindings} {
		layoutInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}
		if res := vk.CreateDescriptorSetLayout(d.ctx.LogicalDevice, &layoutInfo, d.ctx.Allocator, &d.setLayouts[i]); res != vk.Success {
			err := fmt.Errorf("failed to create descriptor set layout %d", i)
			core.LogError(err.Error())
			return err
		}
	}

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(d.setLayouts)),
		PSetLayouts:    d.setLayouts,
	}
	if res := vk.CreatePipelineLayout(d.ctx.LogicalDevice, &layoutInfo, d.ctx.Allocator, &d.layout); res != vk.Success {
		err := fmt.Errorf("failed to create pipeline layout")
		core.LogError(err.Error())
		return err
	}
	return nil
}

// shaderModule returns (creating on first use) the module for a code-region
// reference. The binaries were already size-validated upstream.
func (d *Device) shaderModule(ref native.ShaderRef) (vk.ShaderModule, error) {
	if module, ok := d.shaderModules[ref]; ok {
		return module, nil
	}
	code := d.regions[native.RegionCode].mapped[ref.Offset : ref.Offset+ref.Size]
	moduleInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(d.ctx.LogicalDevice, &moduleInfo, d.ctx.Allocator, &module); res != vk.Success {
		err := fmt.Errorf("failed to create shader module at offset %d", ref.Offset)
		core.LogError(err.Error())
		return nil, err
	}
	d.shaderModules[ref] = module
	return module, nil
}

func (d *Device) renderPassFor(key renderPassKey) (vk.RenderPass, error) {
	if pass, ok := d.renderPasses[key]; ok {
		return pass, nil
	}

	// Load+store everything: the pass never clears, Clear is its own command.
	attachments := []vk.AttachmentDescription{{
		Format:         key.colorFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpLoad,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutGeneral,
		FinalLayout:    vk.ImageLayoutGeneral,
	}}
	colorReference := vk.AttachmentReference{Attachment: 0, Layout: vk.ImageLayoutGeneral}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vk.AttachmentReference{colorReference},
	}
	if key.hasDepth {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vk.FormatD24UnormS8Uint,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpLoad,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpLoad,
			StencilStoreOp: vk.AttachmentStoreOpStore,
			InitialLayout:  vk.ImageLayoutGeneral,
			FinalLayout:    vk.ImageLayoutGeneral,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{Attachment: 1, Layout: vk.ImageLayoutGeneral}
	}

	passInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
	var pass vk.RenderPass
	if res := vk.CreateRenderPass(d.ctx.LogicalDevice, &passInfo, d.ctx.Allocator, &pass); res != vk.Success {
		err := fmt.Errorf("failed to create render pass")
		core.LogError(err.Error())
		return nil, err
	}
	d.renderPasses[key] = pass
	return pass, nil
}

func (d *Device) framebufferFor(pass vk.RenderPass, color, depth *deviceImage) (vk.Framebuffer, error) {
	key := framebufferKey{color: color.view}
	if depth != nil {
		key.depth = depth.view
	}
	if fb, ok := d.framebuffers[key]; ok {
		return fb, nil
	}

	attachments := []vk.ImageView{color.view}
	if depth != nil {
		attachments = append(attachments, depth.view)
	}
	fbInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           color.info.Width,
		Height:          color.info.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if res := vk.CreateFramebuffer(d.ctx.LogicalDevice, &fbInfo, d.ctx.Allocator, &fb); res != vk.Success {
		err := fmt.Errorf("failed to create framebuffer")
		core.LogError(err.Error())
		return nil, err
	}
	d.framebuffers[key] = fb
	return fb, nil
}

func translateBlendFactorVk(f native.BlendFactor) vk.BlendFactor {
	switch f {
	case native.BlendZero:
		return vk.BlendFactorZero
	case native.BlendSrcColor:
		return vk.BlendFactorSrcColor
	case native.BlendOneMinusSrcColor:
		return vk.BlendFactorOneMinusSrcColor
	case native.BlendSrcAlpha:
		return vk.BlendFactorSrcAlpha
	case native.BlendOneMinusSrcAlpha:
		return vk.BlendFactorOneMinusSrcAlpha
	case native.BlendDstAlpha:
		return vk.BlendFactorDstAlpha
	case native.BlendOneMinusDstAlpha:
		return vk.BlendFactorOneMinusDstAlpha
	case native.BlendDstColor:
		return vk.BlendFactorDstColor
	case native.BlendOneMinusDstColor:
		return vk.BlendFactorOneMinusDstColor
	case native.BlendSrcAlphaSaturate:
		return vk.BlendFactorSrcAlphaSaturate
	case native.BlendConstantColor:
		return vk.BlendFactorConstantColor
	case native.BlendOneMinusConstantColor:
		return vk.BlendFactorOneMinusConstantColor
	case native.BlendConstantAlpha:
		return vk.BlendFactorConstantAlpha
	case native.BlendOneMinusConstantAlpha:
		return vk.BlendFactorOneMinusConstantAlpha
	}
	return vk.BlendFactorOne
}

func translateBlendOpVk(op native.BlendOp) vk.BlendOp {
	switch op {
	case native.BlendOpSubtract:
		return vk.BlendOpSubtract
	case native.BlendOpReverseSubtract:
		return vk.BlendOpReverseSubtract
	}
	return vk.BlendOpAdd
}

func translateCompareVk(op native.CompareOp) vk.CompareOp {
	switch op {
	case native.CompareNever:
		return vk.CompareOpNever
	case native.CompareLess:
		return vk.CompareOpLess
	case native.CompareEqual:
		return vk.CompareOpEqual
	case native.CompareLessEqual:
		return vk.CompareOpLessOrEqual
	case native.CompareGreater:
		return vk.CompareOpGreater
	case native.CompareNotEqual:
		return vk.CompareOpNotEqual
	case native.CompareGreaterEqual:
		return vk.CompareOpGreaterOrEqual
	}
	return vk.CompareOpAlways
}

func translateStencilOpVk(op native.StencilOp) vk.StencilOp {
	switch op {
	case native.StencilZero:
		return vk.StencilOpZero
	case native.StencilReplace:
		return vk.StencilOpReplace
	case native.StencilIncrClamp:
		return vk.StencilOpIncrementAndClamp
	case native.StencilIncrWrap:
		return vk.StencilOpIncrementAndWrap
	case native.StencilDecrClamp:
		return vk.StencilOpDecrementAndClamp
	case native.StencilDecrWrap:
		return vk.StencilOpDecrementAndWrap
	case native.StencilInvert:
		return vk.StencilOpInvert
	}
	return vk.StencilOpKeep
}

func translatePrimitiveVk(p native.Primitive) vk.PrimitiveTopology {
	switch p {
	case native.PrimPoints:
		return vk.PrimitiveTopologyPointList
	case native.PrimLines:
		return vk.PrimitiveTopologyLineList
	case native.PrimLineLoop, native.PrimLineStrip:
		return vk.PrimitiveTopologyLineStrip
	case native.PrimTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case native.PrimTriangleFan:
		return vk.PrimitiveTopologyTriangleFan
	}
	return vk.PrimitiveTopologyTriangleList
}

func translateAttribFormatVk(f native.AttribFormat) vk.Format {
	switch f.Type {
	case native.AttribFloat:
		switch f.Components {
		case 1:
			return vk.FormatR32Sfloat
		case 2:
			return vk.FormatR32g32Sfloat
		case 3:
			return vk.FormatR32g32b32Sfloat
		}
		return vk.FormatR32g32b32a32Sfloat
	case native.AttribInt8:
		if f.Normalized {
			return vk.FormatR8g8b8a8Snorm
		}
		return vk.FormatR8g8b8a8Sint
	case native.AttribUint8:
		if f.Normalized {
			return vk.FormatR8g8b8a8Unorm
		}
		return vk.FormatR8g8b8a8Uint
	case native.AttribInt16:
		if f.Normalized {
			return vk.FormatR16g16b16a16Snorm
		}
		return vk.FormatR16g16b16a16Sint
	case native.AttribUint16:
		if f.Normalized {
			return vk.FormatR16g16b16a16Unorm
		}
		return vk.FormatR16g16b16a16Uint
	}
	return vk.FormatR32g32b32a32Sfloat
}

// pipelineFor resolves (building and caching on miss) the graphics pipeline
// for one draw's baked state.
func (d *Device) pipelineFor(key pipelineKey) (*pipelineEntry, error) {
	if entry, ok := d.pipelines[key]; ok {
		return entry, nil
	}

	vertModule, err := d.shaderModule(key.vertex)
	if err != nil {
		return nil, err
	}
	fragModule, err := d.shaderModule(key.fragment)
	if err != nil {
		return nil, err
	}
	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vertModule,
			PName:  VulkanSafeString("main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fragModule,
			PName:  VulkanSafeString("main"),
		},
	}

	bindings := make([]vk.VertexInputBindingDescription, key.bindingCount)
	for i := range bindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   uint32(i),
			Stride:    key.strides[i],
			InputRate: vk.VertexInputRateVertex,
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, 0, key.attribCount)
	for i := uint8(0); i < key.attribCount; i++ {
		a := key.attribs[i]
		if a.Binding < 0 {
			continue
		}
		attributes = append(attributes, vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  uint32(a.Binding),
			Format:   translateAttribFormatVk(a.Format),
			Offset:   a.Offset,
		})
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: translatePrimitiveVk(key.prim),
	}

	// Dynamic viewport and scissor; counts still have to be declared.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	cullMode := vk.CullModeFlags(vk.CullModeNone)
	switch key.raster.Cull {
	case native.CullFront:
		cullMode = vk.CullModeFlags(vk.CullModeFrontBit)
	case native.CullBack:
		cullMode = vk.CullModeFlags(vk.CullModeBackBit)
	case native.CullFrontAndBack:
		cullMode = vk.CullModeFlags(vk.CullModeFrontAndBack)
	}
	frontFace := vk.FrontFaceCounterClockwise
	if key.raster.Front == native.FrontFaceCW {
		frontFace = vk.FrontFaceClockwise
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:           vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode:     vk.PolygonModeFill,
		LineWidth:       1.0,
		CullMode:        cullMode,
		FrontFace:       frontFace,
		DepthBiasEnable: vk.True,
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	ds := key.depthStencil
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vkBool(ds.DepthTest),
		DepthWriteEnable:  vkBool(ds.DepthWrite),
		DepthCompareOp:    translateCompareVk(ds.DepthCompare),
		StencilTestEnable: vkBool(ds.StencilTest),
		Front: vk.StencilOpState{
			FailOp:      translateStencilOpVk(ds.Front.Fail),
			PassOp:      translateStencilOpVk(ds.Front.Pass),
			DepthFailOp: translateStencilOpVk(ds.Front.DepthFail),
			CompareOp:   translateCompareVk(ds.Front.Compare),
		},
		Back: vk.StencilOpState{
			FailOp:      translateStencilOpVk(ds.Back.Fail),
			PassOp:      translateStencilOpVk(ds.Back.Pass),
			DepthFailOp: translateStencilOpVk(ds.Back.DepthFail),
			CompareOp:   translateCompareVk(ds.Back.Compare),
		},
	}

	var writeMask vk.ColorComponentFlags
	if key.colorMask[0] {
		writeMask |= vk.ColorComponentFlags(vk.ColorComponentRBit)
	}
	if key.colorMask[1] {
		writeMask |= vk.ColorComponentFlags(vk.ColorComponentGBit)
	}
	if key.colorMask[2] {
		writeMask |= vk.ColorComponentFlags(vk.ColorComponentBBit)
	}
	if key.colorMask[3] {
		writeMask |= vk.ColorComponentFlags(vk.ColorComponentABit)
	}
	blendAttachment := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vkBool(key.blend.Enabled),
		SrcColorBlendFactor: translateBlendFactorVk(key.blend.SrcColor),
		DstColorBlendFactor: translateBlendFactorVk(key.blend.DstColor),
		ColorBlendOp:        translateBlendOpVk(key.blend.ColorOp),
		SrcAlphaBlendFactor: translateBlendFactorVk(key.blend.SrcAlpha),
		DstAlphaBlendFactor: translateBlendFactorVk(key.blend.DstAlpha),
		AlphaBlendOp:        translateBlendOpVk(key.blend.AlphaOp),
		ColorWriteMask:      writeMask,
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{blendAttachment},
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
		vk.DynamicStateBlendConstants,
		vk.DynamicStateStencilReference,
		vk.DynamicStateStencilCompareMask,
		vk.DynamicStateStencilWriteMask,
		vk.DynamicStateDepthBias,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	pass, err := d.renderPassFor(key.renderPass)
	if err != nil {
		return nil, err
	}

	pipelineInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              d.layout,
		RenderPass:          pass,
	}

	handles := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(d.ctx.LogicalDevice, vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{pipelineInfo}, d.ctx.Allocator, handles); res != vk.Success {
		err := fmt.Errorf("failed to create graphics pipeline")
		core.LogError(err.Error())
		return nil, err
	}

	entry := &pipelineEntry{handle: handles[0]}
	d.pipelines[key] = entry
	core.LogDebug("pipeline cache now holds %d pipelines", len(d.pipelines))
	return entry, nil
}

func (d *Device) destroyPipelineObjects() {
	for _, entry := range d.pipelines {
		vk.DestroyPipeline(d.ctx.LogicalDevice, entry.handle, d.ctx.Allocator)
	}
	d.pipelines = nil
	for _, module := range d.shaderModules {
		vk.DestroyShaderModule(d.ctx.LogicalDevice, module, d.ctx.Allocator)
	}
	d.shaderModules = nil
	for _, fb := range d.framebuffers {
		vk.DestroyFramebuffer(d.ctx.LogicalDevice, fb, d.ctx.Allocator)
	}
	d.framebuffers = nil
	for _, pass := range d.renderPasses {
		vk.DestroyRenderPass(d.ctx.LogicalDevice, pass, d.ctx.Allocator)
	}
	d.renderPasses = nil
	if d.layout != nil {
		vk.DestroyPipelineLayout(d.ctx.LogicalDevice, d.layout, d.ctx.Allocator)
		d.layout = nil
	}
	for _, layout := range d.setLayouts {
		vk.DestroyDescriptorSetLayout(d.ctx.LogicalDevice, layout, d.ctx.Allocator)
	}
	d.setLayouts = nil
}

// sliceUint32 reinterprets SPIR-V bytes as the word slice the loader wants.
func sliceUint32(data []byte) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}
