package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/native"
)

// deviceImage is one allocated texture or render target. Every image lives in
// ImageLayoutGeneral for its whole life: the translation layer issues its own
// coherency barriers and a single layout sidesteps per-use transitions.
type deviceImage struct {
	handle vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	info   native.ImageInfo
	format vk.Format
	aspect vk.ImageAspectFlags
}

func translateFormat(f native.Format) vk.Format {
	switch f {
	case native.FormatRGBA8:
		return vk.FormatR8g8b8a8Unorm
	case native.FormatBGRA8:
		return vk.FormatB8g8r8a8Unorm
	case native.FormatR8:
		return vk.FormatR8Unorm
	case native.FormatRG8:
		return vk.FormatR8g8Unorm
	case native.FormatRGB565:
		return vk.FormatR5g6b5UnormPack16
	case native.FormatDepth24Stencil8:
		return vk.FormatD24UnormS8Uint
	case native.FormatDXT1:
		return vk.FormatBc1RgbaUnormBlock
	case native.FormatDXT3:
		return vk.FormatBc2UnormBlock
	case native.FormatDXT5:
		return vk.FormatBc3UnormBlock
	}
	return vk.FormatUndefined
}

func (d *Device) createImage(info native.ImageInfo) (*deviceImage, error) {
	format := translateFormat(info.Format)
	if format == vk.FormatUndefined {
		return nil, fmt.Errorf("image with invalid format %d", info.Format)
	}
	if info.Layers == 0 {
		info.Layers = 1
	}
	if info.Levels == 0 {
		info.Levels = 1
	}

	usage := vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit)
	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	if info.Format == native.FormatDepth24Stencil8 {
		usage = vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	} else if info.RenderTarget {
		usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}

	var flags vk.ImageCreateFlags
	viewType := vk.ImageViewType2d
	if info.Layers == 6 {
		flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
		viewType = vk.ImageViewTypeCube
	}

	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     flags,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  info.Width,
			Height: info.Height,
			Depth:  1,
		},
		MipLevels:     info.Levels,
		ArrayLayers:   info.Layers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var handle vk.Image
	if res := vk.CreateImage(d.ctx.LogicalDevice, &imageInfo, d.ctx.Allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create %dx%d image", info.Width, info.Height)
		core.LogError(err.Error())
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.ctx.LogicalDevice, handle, &requirements)
	requirements.Deref()

	memoryType := d.ctx.FindMemoryIndex(requirements.MemoryTypeBits, uint32(vk.MemoryPropertyDeviceLocalBit))
	if memoryType < 0 {
		return nil, fmt.Errorf("no device-local memory type for image")
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.ctx.LogicalDevice, &allocateInfo, d.ctx.Allocator, &memory); res != vk.Success {
		err := fmt.Errorf("failed to allocate image memory")
		core.LogError(err.Error())
		return nil, err
	}
	if res := vk.BindImageMemory(d.ctx.LogicalDevice, handle, memory, 0); res != vk.Success {
		err := fmt.Errorf("failed to bind image memory")
		core.LogError(err.Error())
		return nil, err
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    handle,
		ViewType: viewType,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: info.Levels,
			LayerCount: info.Layers,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.ctx.LogicalDevice, &viewInfo, d.ctx.Allocator, &view); res != vk.Success {
		err := fmt.Errorf("failed to create image view")
		core.LogError(err.Error())
		return nil, err
	}

	im := &deviceImage{
		handle: handle,
		memory: memory,
		view:   view,
		info:   info,
		format: format,
		aspect: aspect,
	}
	if err := d.transitionToGeneral(im); err != nil {
		return nil, err
	}
	return im, nil
}

// transitionToGeneral moves a freshly created image out of the undefined
// layout once, with a single-use command buffer.
func (d *Device) transitionToGeneral(im *deviceImage) error {
	return d.transitionLayout(im, vk.ImageLayoutUndefined, vk.ImageLayoutGeneral)
}

func (d *Device) transitionLayout(im *deviceImage, oldLayout, newLayout vk.ImageLayout) error {
	cb, err := d.beginSingleUse()
	if err != nil {
		return err
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               im.handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: im.aspect,
			LevelCount: im.info.Levels,
			LayerCount: im.info.Layers,
		},
		DstAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
	}
	vk.CmdPipelineBarrier(cb,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	return d.endSingleUse(cb)
}

func (im *deviceImage) destroy(ctx *Context) {
	if im.view != nil {
		vk.DestroyImageView(ctx.LogicalDevice, im.view, ctx.Allocator)
		im.view = nil
	}
	if im.handle != nil {
		vk.DestroyImage(ctx.LogicalDevice, im.handle, ctx.Allocator)
		im.handle = nil
	}
	if im.memory != nil {
		vk.FreeMemory(ctx.LogicalDevice, im.memory, ctx.Allocator)
		im.memory = nil
	}
}
