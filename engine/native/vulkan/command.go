package vulkan

import (
	"encoding/binary"
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/native"
)

const (
	// scratchSize holds one recording's uniform pushes and constant-attribute
	// values. The tail stays unused so a dynamic window near the end never
	// reaches past the buffer.
	scratchSize   = 1 << 20
	uniformWindow = 16384

	samplerSetBudget = 1024
)

// CommandBuffer records the queue's command stream directly into a
// vk.CommandBuffer. State setters only latch pending values; everything is
// resolved into a concrete pipeline and descriptor bindings at the next draw.
var _ native.CommandBuffer = (*CommandBuffer)(nil)

type CommandBuffer struct {
	dev    *Device
	handle vk.CommandBuffer

	scratch       *regionBuffer
	scratchOffset uint64

	descriptorPool vk.DescriptorPool
	uniformSet     vk.DescriptorSet

	blend        native.BlendInfo
	depthStencil native.DepthStencilInfo
	raster       native.RasterInfo
	colorMask    [4]bool

	viewport    vk.Viewport
	hasViewport bool
	scissor     vk.Rect2D
	hasScissor  bool
	blendColor  [4]float32
	stencilRef  uint32
	stencilCmp  uint32
	stencilWr   uint32
	biasUnits   float32
	biasFactor  float32

	vertexShader   native.ShaderRef
	fragmentShader native.ShaderRef
	bindings       []native.VertexBufferBinding
	attribs        []native.VertexAttribDesc
	indexOffset    uint64
	indexFormat    native.IndexFormat

	uniformOffsets [2]uint32

	textures      [maxTextureUnits]uint64
	texturesBound [maxTextureUnits]bool
	texturesDirty bool

	colorTarget native.ImageID
	depthTarget native.ImageID
	passActive  bool
	passKey     renderPassKey

	err error
}

func newCommandBuffer(d *Device) (*CommandBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.ctx.CommandPool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(d.ctx.LogicalDevice, &allocateInfo, handles); res != vk.Success {
		err := fmt.Errorf("failed to allocate command buffer")
		core.LogError(err.Error())
		return nil, err
	}

	scratch, err := newRegionBuffer(d.ctx, scratchSize,
		vk.BufferUsageUniformBufferBit|vk.BufferUsageVertexBufferBit)
	if err != nil {
		return nil, err
	}

	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBufferDynamic, DescriptorCount: 2},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: samplerSetBudget * maxTextureUnits},
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       samplerSetBudget + 1,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(d.ctx.LogicalDevice, &poolInfo, d.ctx.Allocator, &pool); res != vk.Success {
		scratch.destroy(d.ctx)
		err := fmt.Errorf("failed to create descriptor pool")
		core.LogError(err.Error())
		return nil, err
	}

	return &CommandBuffer{
		dev:            d,
		handle:         handles[0],
		scratch:        scratch,
		descriptorPool: pool,
	}, nil
}

func (cb *CommandBuffer) destroy() {
	vk.DestroyDescriptorPool(cb.dev.ctx.LogicalDevice, cb.descriptorPool, cb.dev.ctx.Allocator)
	cb.scratch.destroy(cb.dev.ctx)
	vk.FreeCommandBuffers(cb.dev.ctx.LogicalDevice, cb.dev.ctx.CommandPool, 1, []vk.CommandBuffer{cb.handle})
}

func (cb *CommandBuffer) Begin() error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if res := vk.BeginCommandBuffer(cb.handle, &beginInfo); res != vk.Success {
		err := fmt.Errorf("failed to begin command buffer")
		core.LogError(err.Error())
		return err
	}
	if err := cb.allocateUniformSet(); err != nil {
		return err
	}
	return nil
}

func (cb *CommandBuffer) End() error {
	cb.endPass()
	if res := vk.EndCommandBuffer(cb.handle); res != vk.Success {
		err := fmt.Errorf("failed to end command buffer")
		core.LogError(err.Error())
		return err
	}
	return cb.err
}

func (cb *CommandBuffer) Reset() {
	vk.ResetCommandBuffer(cb.handle, 0)
	vk.ResetDescriptorPool(cb.dev.ctx.LogicalDevice, cb.descriptorPool, 0)
	cb.uniformSet = nil

	cb.scratchOffset = 0
	cb.blend = native.BlendInfo{}
	cb.depthStencil = native.DepthStencilInfo{}
	cb.raster = native.RasterInfo{}
	cb.colorMask = [4]bool{true, true, true, true}
	cb.hasViewport = false
	cb.hasScissor = false
	cb.blendColor = [4]float32{}
	cb.stencilRef, cb.stencilCmp, cb.stencilWr = 0, 0xff, 0xff
	cb.biasUnits, cb.biasFactor = 0, 0
	cb.vertexShader = native.ShaderRef{}
	cb.fragmentShader = native.ShaderRef{}
	cb.bindings = cb.bindings[:0]
	cb.attribs = cb.attribs[:0]
	cb.uniformOffsets = [2]uint32{}
	cb.textures = [maxTextureUnits]uint64{}
	cb.texturesBound = [maxTextureUnits]bool{}
	cb.texturesDirty = false
	cb.colorTarget, cb.depthTarget = 0, 0
	cb.passActive = false
	cb.err = nil
}

// allocateUniformSet carves this recording's dynamic-UBO set. The pool was
// reset, so the previous set is gone.
func (cb *CommandBuffer) allocateUniformSet() error {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     cb.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{cb.dev.setLayouts[0]},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(cb.dev.ctx.LogicalDevice, &allocInfo, &set); res != vk.Success {
		err := fmt.Errorf("failed to allocate uniform descriptor set")
		core.LogError(err.Error())
		return err
	}
	cb.uniformSet = set

	writes := make([]vk.WriteDescriptorSet, 2)
	for i := range writes {
		writes[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      uint32(i),
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBufferDynamic,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: cb.scratch.handle,
				Offset: 0,
				Range:  uniformWindow,
			}},
		}
	}
	vk.UpdateDescriptorSets(cb.dev.ctx.LogicalDevice, 2, writes, 0, nil)
	return nil
}

// pushScratch appends data to the scratch buffer at the given alignment and
// returns its offset.
func (cb *CommandBuffer) pushScratch(data []byte, align uint64) (uint64, bool) {
	offset := (cb.scratchOffset + align - 1) &^ (align - 1)
	if offset+uint64(len(data))+uniformWindow > cb.scratch.size {
		cb.fail(fmt.Errorf("command scratch exhausted at %d bytes", offset))
		return 0, false
	}
	copy(cb.scratch.mapped[offset:], data)
	cb.scratchOffset = offset + uint64(len(data))
	return offset, true
}

func (cb *CommandBuffer) fail(err error) {
	if cb.err == nil {
		cb.err = err
		core.LogError(err.Error())
	}
}

func (cb *CommandBuffer) endPass() {
	if cb.passActive {
		vk.CmdEndRenderPass(cb.handle)
		cb.passActive = false
	}
}

// ensurePass begins the render pass covering the bound target if none is
// active. Passes load existing contents; nothing is cleared implicitly.
func (cb *CommandBuffer) ensurePass() bool {
	if cb.passActive {
		return true
	}
	color := cb.dev.image(cb.colorTarget)
	if color == nil {
		cb.fail(fmt.Errorf("no render target bound"))
		return false
	}
	var depth *deviceImage
	if cb.depthTarget != 0 {
		depth = cb.dev.image(cb.depthTarget)
	}

	cb.passKey = renderPassKey{colorFormat: color.format, hasDepth: depth != nil}
	pass, err := cb.dev.renderPassFor(cb.passKey)
	if err != nil {
		cb.fail(err)
		return false
	}
	fb, err := cb.dev.framebufferFor(pass, color, depth)
	if err != nil {
		cb.fail(err)
		return false
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: color.info.Width, Height: color.info.Height},
		},
	}
	vk.CmdBeginRenderPass(cb.handle, &beginInfo, vk.SubpassContentsInline)
	cb.passActive = true
	return true
}

func (cb *CommandBuffer) CopyBufferToImage(stagingOffset uint64, rowStride uint32, img native.ImageID, layer, level uint32, r native.ImageRect) {
	im := cb.dev.image(img)
	if im == nil {
		cb.fail(fmt.Errorf("copy to unknown image %d", img))
		return
	}
	cb.endPass()
	region := vk.BufferImageCopy{
		BufferOffset:    vk.DeviceSize(stagingOffset),
		BufferRowLength: texelRowLength(im.info.Format, rowStride),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(im.aspect),
			MipLevel:       level,
			BaseArrayLayer: layer,
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{X: r.X, Y: r.Y},
		ImageExtent: vk.Extent3D{Width: r.Width, Height: r.Height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(cb.handle, cb.dev.regions[native.RegionStaging].handle,
		im.handle, vk.ImageLayoutGeneral, 1, []vk.BufferImageCopy{region})
}

func (cb *CommandBuffer) CopyImageToBuffer(img native.ImageID, level uint32, r native.ImageRect, stagingOffset uint64, rowStride uint32) {
	im := cb.dev.image(img)
	if im == nil {
		cb.fail(fmt.Errorf("copy from unknown image %d", img))
		return
	}
	cb.endPass()
	region := vk.BufferImageCopy{
		BufferOffset:    vk.DeviceSize(stagingOffset),
		BufferRowLength: texelRowLength(im.info.Format, rowStride),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(im.aspect),
			MipLevel:   level,
			LayerCount: 1,
		},
		ImageOffset: vk.Offset3D{X: r.X, Y: r.Y},
		ImageExtent: vk.Extent3D{Width: r.Width, Height: r.Height, Depth: 1},
	}
	vk.CmdCopyImageToBuffer(cb.handle, im.handle, vk.ImageLayoutGeneral,
		cb.dev.regions[native.RegionStaging].handle, 1, []vk.BufferImageCopy{region})
}

func (cb *CommandBuffer) BlitImage(img native.ImageID, layer, srcLevel, dstLevel, srcW, srcH, dstW, dstH uint32) {
	im := cb.dev.image(img)
	if im == nil {
		cb.fail(fmt.Errorf("blit on unknown image %d", img))
		return
	}
	cb.endPass()
	blit := vk.ImageBlit{
		SrcSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(im.aspect),
			MipLevel:       srcLevel,
			BaseArrayLayer: layer,
			LayerCount:     1,
		},
		SrcOffsets: [2]vk.Offset3D{{}, {X: int32(srcW), Y: int32(srcH), Z: 1}},
		DstSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(im.aspect),
			MipLevel:       dstLevel,
			BaseArrayLayer: layer,
			LayerCount:     1,
		},
		DstOffsets: [2]vk.Offset3D{{}, {X: int32(dstW), Y: int32(dstH), Z: 1}},
	}
	vk.CmdBlitImage(cb.handle, im.handle, vk.ImageLayoutGeneral,
		im.handle, vk.ImageLayoutGeneral, 1, []vk.ImageBlit{blit}, vk.FilterLinear)
}

func (cb *CommandBuffer) Barrier(flags native.BarrierFlags) {
	cb.endPass()
	// Every flag combination collapses to one global barrier: with a single
	// queue and images pinned in the general layout, ordering all prior
	// writes against all later reads covers each of the narrower cases.
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(vk.AccessMemoryWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
	}
	vk.CmdPipelineBarrier(cb.handle,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.DependencyFlags(0), 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
}

func (cb *CommandBuffer) SetBlend(info native.BlendInfo)               { cb.blend = info }
func (cb *CommandBuffer) SetDepthStencil(info native.DepthStencilInfo) { cb.depthStencil = info }
func (cb *CommandBuffer) SetRaster(info native.RasterInfo)             { cb.raster = info }

func (cb *CommandBuffer) SetViewport(x, y int32, width, height uint32, minDepth, maxDepth float32) {
	cb.viewport = vk.Viewport{
		X:        float32(x),
		Y:        float32(y),
		Width:    float32(width),
		Height:   float32(height),
		MinDepth: minDepth,
		MaxDepth: maxDepth,
	}
	cb.hasViewport = true
}

func (cb *CommandBuffer) SetScissor(x, y int32, width, height uint32) {
	cb.scissor = vk.Rect2D{
		Offset: vk.Offset2D{X: x, Y: y},
		Extent: vk.Extent2D{Width: width, Height: height},
	}
	cb.hasScissor = true
}

func (cb *CommandBuffer) SetBlendColor(color [4]float32) { cb.blendColor = color }

func (cb *CommandBuffer) SetStencilRef(ref, compareMask, writeMask uint32) {
	cb.stencilRef = ref
	cb.stencilCmp = compareMask
	cb.stencilWr = writeMask
}

func (cb *CommandBuffer) SetDepthBias(factor, units float32) {
	cb.biasFactor = factor
	cb.biasUnits = units
}

func (cb *CommandBuffer) SetColorMask(r, g, b, a bool) {
	cb.colorMask = [4]bool{r, g, b, a}
}

func (cb *CommandBuffer) BindRenderTarget(color, depth native.ImageID) {
	if color == cb.colorTarget && depth == cb.depthTarget {
		return
	}
	cb.endPass()
	cb.colorTarget = color
	cb.depthTarget = depth
}

func (cb *CommandBuffer) BindShaders(vertex, fragment native.ShaderRef) {
	cb.vertexShader = vertex
	cb.fragmentShader = fragment
}

func (cb *CommandBuffer) PushUniforms(stage int, data []byte) {
	if stage < 0 || stage > 1 {
		cb.fail(fmt.Errorf("uniform push for unknown stage %d", stage))
		return
	}
	offset, ok := cb.pushScratch(data, cb.dev.Limits().UniformAlign)
	if !ok {
		return
	}
	cb.uniformOffsets[stage] = uint32(offset)
}

func (cb *CommandBuffer) BindVertexBuffers(bindings []native.VertexBufferBinding) {
	cb.bindings = append(cb.bindings[:0], bindings...)
}

func (cb *CommandBuffer) BindVertexAttribs(attribs []native.VertexAttribDesc) {
	cb.attribs = append(cb.attribs[:0], attribs...)
}

func (cb *CommandBuffer) BindIndexBuffer(offset uint64, format native.IndexFormat) {
	cb.indexOffset = offset
	cb.indexFormat = format
}

func (cb *CommandBuffer) BindTexture(unit uint32, descriptorOffset uint64) {
	if unit >= maxTextureUnits {
		cb.fail(fmt.Errorf("texture bind on unit %d exceeds hardware units", unit))
		return
	}
	if cb.texturesBound[unit] && cb.textures[unit] == descriptorOffset {
		return
	}
	cb.textures[unit] = descriptorOffset
	cb.texturesBound[unit] = true
	cb.texturesDirty = true
}

func (cb *CommandBuffer) Clear(mask native.ClearMask, color [4]float32, depth float32, stencil uint32) {
	if !cb.ensurePass() {
		return
	}
	var attachments []vk.ClearAttachment
	if mask&native.ClearColor != 0 {
		var att vk.ClearAttachment
		att.AspectMask = vk.ImageAspectFlags(vk.ImageAspectColorBit)
		att.ColorAttachment = 0
		att.ClearValue.SetColor(color[:])
		attachments = append(attachments, att)
	}
	if mask&(native.ClearDepth|native.ClearStencil) != 0 && cb.passKey.hasDepth {
		var aspect vk.ImageAspectFlagBits
		if mask&native.ClearDepth != 0 {
			aspect |= vk.ImageAspectDepthBit
		}
		if mask&native.ClearStencil != 0 {
			aspect |= vk.ImageAspectStencilBit
		}
		var att vk.ClearAttachment
		att.AspectMask = vk.ImageAspectFlags(aspect)
		att.ClearValue.SetDepthStencil(depth, stencil)
		attachments = append(attachments, att)
	}
	if len(attachments) == 0 {
		return
	}

	target := cb.dev.image(cb.colorTarget)
	rect := vk.ClearRect{
		Rect: vk.Rect2D{
			Extent: vk.Extent2D{Width: target.info.Width, Height: target.info.Height},
		},
		LayerCount: 1,
	}
	vk.CmdClearAttachments(cb.handle, uint32(len(attachments)), attachments, 1, []vk.ClearRect{rect})
}

func (cb *CommandBuffer) Draw(prim native.Primitive, first, count uint32) {
	if !cb.prepareDraw(prim) {
		return
	}
	vk.CmdDraw(cb.handle, count, 1, first, 0)
}

func (cb *CommandBuffer) DrawIndexed(prim native.Primitive, count uint32) {
	if !cb.prepareDraw(prim) {
		return
	}
	indexType := vk.IndexTypeUint16
	if cb.indexFormat == native.IndexU32 {
		indexType = vk.IndexTypeUint32
	}
	vk.CmdBindIndexBuffer(cb.handle, cb.dev.regions[native.RegionData].handle,
		vk.DeviceSize(cb.indexOffset), indexType)
	vk.CmdDrawIndexed(cb.handle, count, 1, 0, 0, 0)
}

// prepareDraw resolves all latched state: pipeline, dynamic state, vertex
// streams and descriptor sets. Reports whether the draw may be recorded.
func (cb *CommandBuffer) prepareDraw(prim native.Primitive) bool {
	if cb.err != nil {
		return false
	}
	if !cb.vertexShader.Valid() || !cb.fragmentShader.Valid() {
		cb.fail(fmt.Errorf("draw without bound shaders"))
		return false
	}
	if !cb.ensurePass() {
		return false
	}

	buffers, offsets, key, ok := cb.resolveVertexLayout(prim)
	if !ok {
		return false
	}

	entry, err := cb.dev.pipelineFor(key)
	if err != nil {
		cb.fail(err)
		return false
	}
	vk.CmdBindPipeline(cb.handle, vk.PipelineBindPointGraphics, entry.handle)
	cb.applyDynamicState()

	vk.CmdBindDescriptorSets(cb.handle, vk.PipelineBindPointGraphics, cb.dev.layout,
		0, 1, []vk.DescriptorSet{cb.uniformSet},
		2, []uint32{cb.uniformOffsets[0], cb.uniformOffsets[1]})
	if !cb.bindSamplerSet() {
		return false
	}

	if len(buffers) > 0 {
		vk.CmdBindVertexBuffers(cb.handle, 0, uint32(len(buffers)), buffers, offsets)
	}
	return true
}

// resolveVertexLayout turns the latched bindings and attributes into the
// concrete per-slot buffer list and the pipeline key. Attributes reading a
// constant get a stride-0 slot pointing at the value in scratch.
func (cb *CommandBuffer) resolveVertexLayout(prim native.Primitive) ([]vk.Buffer, []vk.DeviceSize, pipelineKey, bool) {
	key := pipelineKey{
		vertex:       cb.vertexShader,
		fragment:     cb.fragmentShader,
		blend:        cb.blend,
		depthStencil: cb.depthStencil,
		raster:       cb.raster,
		colorMask:    cb.colorMask,
		prim:         prim,
		renderPass:   cb.passKey,
	}

	if len(cb.bindings) > maxVertexAttribs || len(cb.attribs) > maxVertexAttribs {
		cb.fail(fmt.Errorf("vertex layout exceeds %d slots", maxVertexAttribs))
		return nil, nil, key, false
	}

	dataBuffer := cb.dev.regions[native.RegionData].handle
	buffers := make([]vk.Buffer, 0, len(cb.bindings))
	offsets := make([]vk.DeviceSize, 0, len(cb.bindings))
	for i, b := range cb.bindings {
		buffers = append(buffers, dataBuffer)
		offsets = append(offsets, vk.DeviceSize(b.Offset))
		key.strides[i] = b.Stride
	}

	for i, a := range cb.attribs {
		if a.Binding >= 0 {
			a.Constant = [4]float32{}
			key.attribs[i] = a
			continue
		}
		offset, ok := cb.pushScratch(floatBytes(a.Constant), 16)
		if !ok {
			return nil, nil, key, false
		}
		slot := len(buffers)
		buffers = append(buffers, cb.scratch.handle)
		offsets = append(offsets, vk.DeviceSize(offset))
		key.strides[slot] = 0
		key.attribs[i] = native.VertexAttribDesc{
			Location: a.Location,
			Binding:  int32(slot),
			Format:   native.AttribFormat{Components: 4, Type: native.AttribFloat},
		}
	}
	key.bindingCount = uint8(len(buffers))
	key.attribCount = uint8(len(cb.attribs))
	return buffers, offsets, key, true
}

func (cb *CommandBuffer) applyDynamicState() {
	viewport := cb.viewport
	scissor := cb.scissor
	if target := cb.dev.image(cb.colorTarget); target != nil {
		if !cb.hasViewport {
			viewport = vk.Viewport{
				Width:    float32(target.info.Width),
				Height:   float32(target.info.Height),
				MaxDepth: 1,
			}
		}
		if !cb.hasScissor {
			scissor = vk.Rect2D{
				Extent: vk.Extent2D{Width: target.info.Width, Height: target.info.Height},
			}
		}
	}
	vk.CmdSetViewport(cb.handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(cb.handle, 0, 1, []vk.Rect2D{scissor})
	vk.CmdSetBlendConstants(cb.handle, cb.blendColor)
	faces := vk.StencilFaceFlags(vk.StencilFrontAndBack)
	vk.CmdSetStencilReference(cb.handle, faces, cb.stencilRef)
	vk.CmdSetStencilCompareMask(cb.handle, faces, cb.stencilCmp)
	vk.CmdSetStencilWriteMask(cb.handle, faces, cb.stencilWr)
	vk.CmdSetDepthBias(cb.handle, cb.biasUnits, 0, cb.biasFactor)
}

// bindSamplerSet allocates and binds a fresh sampling set when the unit
// assignments changed since the last draw.
func (cb *CommandBuffer) bindSamplerSet() bool {
	if !cb.texturesDirty {
		return true
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     cb.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{cb.dev.setLayouts[1]},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(cb.dev.ctx.LogicalDevice, &allocInfo, &set); res != vk.Success {
		cb.fail(fmt.Errorf("sampler descriptor budget exhausted"))
		return false
	}

	writes := make([]vk.WriteDescriptorSet, maxTextureUnits)
	for unit := range writes {
		view := cb.dev.defaultImage.view
		sampler := cb.dev.defaultSampler
		if cb.texturesBound[unit] {
			if entry, ok := cb.dev.samplers[cb.textures[unit]]; ok {
				if im := cb.dev.image(entry.desc.Image); im != nil {
					view = im.view
					sampler = entry.sampler
				}
			}
		}
		writes[unit] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      uint32(unit),
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			PImageInfo: []vk.DescriptorImageInfo{{
				Sampler:     sampler,
				ImageView:   view,
				ImageLayout: vk.ImageLayoutGeneral,
			}},
		}
	}
	vk.UpdateDescriptorSets(cb.dev.ctx.LogicalDevice, uint32(len(writes)), writes, 0, nil)

	vk.CmdBindDescriptorSets(cb.handle, vk.PipelineBindPointGraphics, cb.dev.layout,
		1, 1, []vk.DescriptorSet{set}, 0, nil)
	cb.texturesDirty = false
	return true
}

// texelRowLength converts a byte row stride into the texel pitch image copies
// take. Block-compressed strides describe one block row.
func texelRowLength(f native.Format, rowStride uint32) uint32 {
	if f.Compressed() {
		blockBytes := uint32(16)
		if f == native.FormatDXT1 {
			blockBytes = 8
		}
		return rowStride / blockBytes * 4
	}
	if bpp := uint32(f.BytesPerPixel()); bpp > 0 {
		return rowStride / bpp
	}
	return 0
}

func floatBytes(v [4]float32) []byte {
	out := make([]byte, 16)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}
