package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/native"
)

// Swapchain owns the presentable images. The scheduler above is fence
// synchronous, so acquisition blocks on a dedicated fence instead of juggling
// per-frame semaphores.
type Swapchain struct {
	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	Extent      vk.Extent2D
	ImageCount  uint32
	Images      []vk.Image
	Views       []vk.ImageView

	acquireFence *Fence
}

type swapchainSupportInfo struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

func querySwapchainSupport(ctx *Context) (*swapchainSupportInfo, error) {
	support := &swapchainSupportInfo{}

	if res := vk.GetPhysicalDeviceSurfaceCapabilities(ctx.PhysicalDevice, ctx.Surface, &support.capabilities); res != vk.Success {
		return nil, fmt.Errorf("failed to query surface capabilities")
	}
	support.capabilities.Deref()

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(ctx.PhysicalDevice, ctx.Surface, &formatCount, nil); res != vk.Success || formatCount == 0 {
		return nil, fmt.Errorf("surface reports no formats")
	}
	support.formats = make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(ctx.PhysicalDevice, ctx.Surface, &formatCount, support.formats)
	for i := range support.formats {
		support.formats[i].Deref()
	}

	var presentModeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(ctx.PhysicalDevice, ctx.Surface, &presentModeCount, nil); res != vk.Success || presentModeCount == 0 {
		return nil, fmt.Errorf("surface reports no present modes")
	}
	support.presentModes = make([]vk.PresentMode, presentModeCount)
	vk.GetPhysicalDeviceSurfacePresentModes(ctx.PhysicalDevice, ctx.Surface, &presentModeCount, support.presentModes)

	return support, nil
}

func createSwapchain(ctx *Context, width, height, requestedImages uint32) (*Swapchain, error) {
	support, err := querySwapchainSupport(ctx)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	swapchain := &Swapchain{}

	// Choose a swap surface format.
	found := false
	for _, format := range support.formats {
		// Preferred format
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			swapchain.ImageFormat = format
			found = true
			break
		}
	}
	if !found {
		swapchain.ImageFormat = support.formats[0]
	}

	presentMode := vk.PresentModeFifo
	for _, mode := range support.presentModes {
		if mode == vk.PresentModeMailbox {
			presentMode = mode
			break
		}
	}

	extent := vk.Extent2D{Width: width, Height: height}
	if support.capabilities.CurrentExtent.Width != ^uint32(0) {
		extent = support.capabilities.CurrentExtent
	}
	swapchain.Extent = extent

	imageCount := requestedImages
	if imageCount < support.capabilities.MinImageCount {
		imageCount = support.capabilities.MinImageCount
	}
	if support.capabilities.MaxImageCount > 0 && imageCount > support.capabilities.MaxImageCount {
		imageCount = support.capabilities.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          ctx.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		// Readback copies straight out of the presentable image.
		ImageUsage: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit |
			vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     support.capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}

	if ctx.GraphicsQueueIndex != ctx.PresentQueueIndex {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{
			uint32(ctx.GraphicsQueueIndex),
			uint32(ctx.PresentQueueIndex),
		}
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(ctx.LogicalDevice, &createInfo, ctx.Allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create swapchain")
		core.LogError(err.Error())
		return nil, err
	}
	swapchain.Handle = handle

	var actualCount uint32
	if res := vk.GetSwapchainImages(ctx.LogicalDevice, handle, &actualCount, nil); res != vk.Success {
		return nil, fmt.Errorf("failed to count swapchain images")
	}
	swapchain.ImageCount = actualCount
	swapchain.Images = make([]vk.Image, actualCount)
	vk.GetSwapchainImages(ctx.LogicalDevice, handle, &actualCount, swapchain.Images)

	swapchain.Views = make([]vk.ImageView, actualCount)
	for i := uint32(0); i < actualCount; i++ {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    swapchain.Images[i],
			ViewType: vk.ImageViewType2d,
			Format:   swapchain.ImageFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		if res := vk.CreateImageView(ctx.LogicalDevice, &viewInfo, ctx.Allocator, &swapchain.Views[i]); res != vk.Success {
			return nil, fmt.Errorf("failed to create swapchain image view %d", i)
		}
	}

	swapchain.acquireFence, err = newFence(ctx, false)
	if err != nil {
		return nil, err
	}

	core.LogInfo("swapchain created: %dx%d, %d images", extent.Width, extent.Height, actualCount)
	return swapchain, nil
}

// acquire blocks until the presentation engine hands back an image index.
func (s *Swapchain) acquire(ctx *Context, timeoutNs uint64) (uint32, error) {
	s.acquireFence.Reset()
	var imageIndex uint32
	result := vk.AcquireNextImage(ctx.LogicalDevice, s.Handle, timeoutNs, vk.NullSemaphore, s.acquireFence.Handle, &imageIndex)
	if result != vk.Success && result != vk.Suboptimal {
		return 0, fmt.Errorf("failed to acquire swapchain image: %d", result)
	}
	if !s.acquireFence.Wait(timeoutNs) {
		return 0, fmt.Errorf("timed out waiting for swapchain image")
	}
	return imageIndex, nil
}

func (s *Swapchain) present(ctx *Context, imageIndex uint32) error {
	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{s.Handle},
		PImageIndices:  []uint32{imageIndex},
	}
	result := vk.QueuePresent(ctx.PresentQueue, &presentInfo)
	if result != vk.Success && result != vk.Suboptimal {
		return fmt.Errorf("failed to present swapchain image: %d", result)
	}
	return nil
}

func (s *Swapchain) destroy(ctx *Context) {
	if s.acquireFence != nil {
		s.acquireFence.destroy()
	}
	for _, view := range s.Views {
		vk.DestroyImageView(ctx.LogicalDevice, view, ctx.Allocator)
	}
	if s.Handle != nil {
		vk.DestroySwapchain(ctx.LogicalDevice, s.Handle, ctx.Allocator)
		s.Handle = nil
	}
}

// registerSwapchainImages wraps the presentable images as device images so
// the translation layer can address them by ImageID like any other target.
func (d *Device) registerSwapchainImages() {
	d.swapchainIDs = d.swapchainIDs[:0]
	for i := range d.swapchain.Images {
		id := d.nextImageID
		d.nextImageID++
		im := &deviceImage{
			handle: d.swapchain.Images[i],
			view:   d.swapchain.Views[i],
			format: d.swapchain.ImageFormat.Format,
			aspect: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			info: native.ImageInfo{
				Width:        d.swapchain.Extent.Width,
				Height:       d.swapchain.Extent.Height,
				Levels:       1,
				Layers:       1,
				Format:       native.FormatBGRA8,
				RenderTarget: true,
			},
		}
		// Presentables start Undefined like everything else; park them in
		// the general layout the rest of the device assumes.
		if err := d.transitionToGeneral(im); err != nil {
			core.LogError("swapchain image %d: %s", i, err)
		}
		d.images[id] = im
		d.swapchainIDs = append(d.swapchainIDs, id)
	}
}
