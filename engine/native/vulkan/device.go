package vulkan

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/native"
	"github.com/spaghettifunk/prism/engine/platform"
)

// Config sizes the fixed memory regions and the swapchain.
type Config struct {
	CodeSize       uint64
	DataSize       uint64
	ImageSize      uint64
	DescriptorSize uint64
	StagingSize    uint64

	SwapchainImages uint32
	Width           uint32
	Height          uint32

	Debug bool
}

func DefaultConfig() Config {
	return Config{
		CodeSize:        4 << 20,
		DataSize:        32 << 20,
		ImageSize:       64 << 20,
		DescriptorSize:  1 << 20,
		StagingSize:     16 << 20,
		SwapchainImages: 3,
		Width:           960,
		Height:          544,
	}
}

// samplerEntry is one realized descriptor-table slot: the descriptor the
// translation layer wrote plus the vk.Sampler built from it.
type samplerEntry struct {
	desc    native.SamplerDescriptor
	sampler vk.Sampler
}

// Device is the hardware implementation of native.Device on Vulkan.
var (
	_ native.Device = (*Device)(nil)
	_ native.Fence  = (*Fence)(nil)
)

type Device struct {
	ctx      *Context
	cfg      Config
	platform *platform.Platform

	regions [native.RegionCount]*regionBuffer

	images      map[native.ImageID]*deviceImage
	nextImageID native.ImageID

	samplers map[uint64]*samplerEntry

	swapchain    *Swapchain
	swapchainIDs []native.ImageID

	shaderModules map[native.ShaderRef]vk.ShaderModule
	pipelines     map[pipelineKey]*pipelineEntry
	renderPasses  map[renderPassKey]vk.RenderPass
	framebuffers  map[framebufferKey]vk.Framebuffer
	layout        vk.PipelineLayout
	setLayouts    []vk.DescriptorSetLayout

	// Fallbacks for sampling units the frame never bound; every declared
	// descriptor must still reference something valid.
	defaultImage   *deviceImage
	defaultSampler vk.Sampler

	commandBuffers []*CommandBuffer

	faulted bool
}

// NewDevice creates the Vulkan instance, picks a GPU, carves the memory
// regions and builds the swapchain for the platform window.
func NewDevice(p *platform.Platform, cfg Config) (*Device, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("vulkan loader not available")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vulkan: %s", err)
		return nil, err
	}

	d := &Device{
		cfg:           cfg,
		platform:      p,
		ctx:           &Context{Allocator: nil},
		images:        make(map[native.ImageID]*deviceImage),
		nextImageID:   1,
		samplers:      make(map[uint64]*samplerEntry),
		shaderModules: make(map[native.ShaderRef]vk.ShaderModule),
		pipelines:     make(map[pipelineKey]*pipelineEntry),
		renderPasses:  make(map[renderPassKey]vk.RenderPass),
		framebuffers:  make(map[framebufferKey]vk.Framebuffer),
	}

	if err := d.createInstance(); err != nil {
		return nil, err
	}
	surface, err := p.Window.CreateWindowSurface(d.ctx.Instance, nil)
	if err != nil {
		core.LogError("vulkan surface creation failed: %s", err)
		return nil, err
	}
	d.ctx.Surface = vk.SurfaceFromPointer(surface)

	if err := d.selectPhysicalDevice(); err != nil {
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		return nil, err
	}
	if err := d.createCommandPool(); err != nil {
		return nil, err
	}
	if err := d.createRegions(); err != nil {
		return nil, err
	}
	d.swapchain, err = createSwapchain(d.ctx, cfg.Width, cfg.Height, cfg.SwapchainImages)
	if err != nil {
		return nil, err
	}
	d.registerSwapchainImages()
	if err := d.createSharedLayout(); err != nil {
		return nil, err
	}
	if err := d.createDefaults(); err != nil {
		return nil, err
	}

	core.LogInfo("vulkan device ready")
	return d, nil
}

func (d *Device) createInstance() error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString("prism"),
		PEngineName:        VulkanSafeString("Prism"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{"VK_KHR_surface"}
	requiredExtensions = append(requiredExtensions, d.platform.RequiredVulkanExtensions()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}
	if d.cfg.Debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		createInfo.EnabledLayerCount = 1
		createInfo.PpEnabledLayerNames = VulkanSafeStrings([]string{"VK_LAYER_KHRONOS_validation"})
	}
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, d.ctx.Allocator, &instance); res != vk.Success {
		err := fmt.Errorf("failed to create vulkan instance")
		core.LogError(err.Error())
		return err
	}
	d.ctx.Instance = instance
	vk.InitInstance(instance)
	return nil
}

func (d *Device) selectPhysicalDevice() error {
	var deviceCount uint32
	if res := vk.EnumeratePhysicalDevices(d.ctx.Instance, &deviceCount, nil); res != vk.Success || deviceCount == 0 {
		err := fmt.Errorf("no vulkan-capable devices found")
		core.LogError(err.Error())
		return err
	}
	physicalDevices := make([]vk.PhysicalDevice, deviceCount)
	vk.EnumeratePhysicalDevices(d.ctx.Instance, &deviceCount, physicalDevices)

	for _, pd := range physicalDevices {
		graphicsIndex, presentIndex := int32(-1), int32(-1)

		var familyCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
		families := make([]vk.QueueFamilyProperties, familyCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)

		for i := uint32(0); i < familyCount; i++ {
			families[i].Deref()
			if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 && graphicsIndex < 0 {
				graphicsIndex = int32(i)
			}
			var supportsPresent vk.Bool32
			vk.GetPhysicalDeviceSurfaceSupport(pd, i, d.ctx.Surface, &supportsPresent)
			if supportsPresent == vk.True && presentIndex < 0 {
				presentIndex = int32(i)
			}
		}
		if graphicsIndex < 0 || presentIndex < 0 {
			continue
		}

		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &properties)
		properties.Deref()
		properties.Limits.Deref()

		d.ctx.PhysicalDevice = pd
		d.ctx.GraphicsQueueIndex = graphicsIndex
		d.ctx.PresentQueueIndex = presentIndex
		d.ctx.Properties = properties
		vk.GetPhysicalDeviceMemoryProperties(pd, &d.ctx.Memory)
		d.ctx.Memory.Deref()

		core.LogInfo("selected GPU: %s", vk.ToString(properties.DeviceName[:]))
		return nil
	}
	return fmt.Errorf("no device exposes both graphics and present queues")
}

func (d *Device) createLogicalDevice() error {
	// NOTE: Do not create additional queues for shared indices.
	indices := []uint32{uint32(d.ctx.GraphicsQueueIndex)}
	if d.ctx.PresentQueueIndex != d.ctx.GraphicsQueueIndex {
		indices = append(indices, uint32(d.ctx.PresentQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: indices[i],
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	if runtime.GOOS == "darwin" {
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}

	var device vk.Device
	if res := vk.CreateDevice(d.ctx.PhysicalDevice, &deviceCreateInfo, d.ctx.Allocator, &device); res != vk.Success {
		err := fmt.Errorf("failed to create logical device")
		core.LogError(err.Error())
		return err
	}
	d.ctx.LogicalDevice = device

	var graphicsQueue vk.Queue
	vk.GetDeviceQueue(device, uint32(d.ctx.GraphicsQueueIndex), 0, &graphicsQueue)
	d.ctx.GraphicsQueue = graphicsQueue

	var presentQueue vk.Queue
	vk.GetDeviceQueue(device, uint32(d.ctx.PresentQueueIndex), 0, &presentQueue)
	d.ctx.PresentQueue = presentQueue

	return nil
}

func (d *Device) createCommandPool() error {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(d.ctx.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(d.ctx.LogicalDevice, &poolCreateInfo, d.ctx.Allocator, &pool); res != vk.Success {
		err := fmt.Errorf("failed to create command pool")
		core.LogError(err.Error())
		return err
	}
	d.ctx.CommandPool = pool
	return nil
}

func (d *Device) createRegions() error {
	type regionSpec struct {
		region native.Region
		size   uint64
		usage  vk.BufferUsageFlagBits
	}
	specs := []regionSpec{
		{native.RegionCode, d.cfg.CodeSize, vk.BufferUsageTransferSrcBit},
		{native.RegionData, d.cfg.DataSize,
			vk.BufferUsageVertexBufferBit | vk.BufferUsageIndexBufferBit |
				vk.BufferUsageUniformBufferBit | vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit},
		{native.RegionDescriptor, d.cfg.DescriptorSize, vk.BufferUsageTransferSrcBit},
		{native.RegionStaging, d.cfg.StagingSize, vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit},
	}
	for _, spec := range specs {
		rb, err := newRegionBuffer(d.ctx, spec.size, spec.usage)
		if err != nil {
			return fmt.Errorf("region %s: %w", spec.region, err)
		}
		d.regions[spec.region] = rb
	}
	// RegionImage is device-local; images allocate against its budget but
	// there is no host-visible buffer behind it.
	return nil
}

func (d *Device) Limits() native.Limits {
	limits := d.ctx.Properties.Limits
	bufferAlign := uint64(limits.OptimalBufferCopyOffsetAlignment)
	if bufferAlign < 256 {
		bufferAlign = 256
	}
	uniformAlign := uint64(limits.MinUniformBufferOffsetAlignment)
	if uniformAlign < 256 {
		uniformAlign = 256
	}
	rowAlign := uint64(limits.OptimalBufferCopyRowPitchAlignment)
	if rowAlign < 64 {
		rowAlign = 64
	}
	return native.Limits{
		BufferAlign:     bufferAlign,
		UniformAlign:    uniformAlign,
		ImageAlign:      4096,
		RowAlign:        rowAlign,
		DescriptorSize:  32,
		MaxVertexAttrib: maxVertexAttribs,
		MaxTextureUnits: maxTextureUnits,
	}
}

func (d *Device) RegionSize(r native.Region) uint64 {
	if r == native.RegionImage {
		return d.cfg.ImageSize
	}
	if rb := d.regions[r]; rb != nil {
		return rb.size
	}
	return 0
}

func (d *Device) MapRegion(r native.Region) []byte {
	if rb := d.regions[r]; rb != nil {
		return rb.mapped
	}
	return nil
}

func (d *Device) CreateImage(info native.ImageInfo) (native.ImageID, error) {
	im, err := d.createImage(info)
	if err != nil {
		return 0, err
	}
	id := d.nextImageID
	d.nextImageID++
	d.images[id] = im
	return id, nil
}

func (d *Device) image(id native.ImageID) *deviceImage {
	return d.images[id]
}

func (d *Device) WriteSamplerDescriptor(offset uint64, desc native.SamplerDescriptor) error {
	if offset+32 > d.cfg.DescriptorSize {
		return fmt.Errorf("%w: descriptor offset %d", core.ErrRegionFull, offset)
	}
	entry, ok := d.samplers[offset]
	if ok && entry.desc == desc {
		return nil
	}
	if ok && entry.sampler != nil {
		// Synchronous scheduler: nothing in flight still references it.
		vk.DeviceWaitIdle(d.ctx.LogicalDevice)
		vk.DestroySampler(d.ctx.LogicalDevice, entry.sampler, d.ctx.Allocator)
	}

	sampler, err := d.createSampler(desc)
	if err != nil {
		return err
	}
	d.samplers[offset] = &samplerEntry{desc: desc, sampler: sampler}
	return nil
}

func translateWrapMode(w native.WrapMode) vk.SamplerAddressMode {
	switch w {
	case native.WrapClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case native.WrapMirror:
		return vk.SamplerAddressModeMirroredRepeat
	}
	return vk.SamplerAddressModeRepeat
}

func (d *Device) createSampler(desc native.SamplerDescriptor) (vk.Sampler, error) {
	minFilter := vk.FilterNearest
	if desc.MinLinear {
		minFilter = vk.FilterLinear
	}
	magFilter := vk.FilterNearest
	if desc.MagLinear {
		magFilter = vk.FilterLinear
	}
	maxLod := float32(0)
	if desc.Mipmapped {
		maxLod = vk.LodClampNone
	}
	samplerInfo := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MinFilter:    minFilter,
		MagFilter:    magFilter,
		MipmapMode:   vk.SamplerMipmapModeLinear,
		AddressModeU: translateWrapMode(desc.WrapS),
		AddressModeV: translateWrapMode(desc.WrapT),
		AddressModeW: vk.SamplerAddressModeRepeat,
		MaxLod:       maxLod,
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(d.ctx.LogicalDevice, &samplerInfo, d.ctx.Allocator, &sampler); res != vk.Success {
		err := fmt.Errorf("failed to create sampler")
		core.LogError(err.Error())
		return nil, err
	}
	return sampler, nil
}

// createDefaults builds the 1x1 image and nearest sampler that back sampling
// units no draw ever pointed at a real descriptor.
func (d *Device) createDefaults() error {
	im, err := d.createImage(native.ImageInfo{
		Width:  1,
		Height: 1,
		Levels: 1,
		Layers: 1,
		Format: native.FormatRGBA8,
	})
	if err != nil {
		return err
	}
	d.defaultImage = im

	sampler, err := d.createSampler(native.SamplerDescriptor{})
	if err != nil {
		return err
	}
	d.defaultSampler = sampler
	return nil
}

func (d *Device) NewCommandBuffer() (native.CommandBuffer, error) {
	cb, err := newCommandBuffer(d)
	if err != nil {
		return nil, err
	}
	d.commandBuffers = append(d.commandBuffers, cb)
	return cb, nil
}

func (d *Device) NewFence(signaled bool) (native.Fence, error) {
	return newFence(d.ctx, signaled)
}

func (d *Device) Submit(cb native.CommandBuffer, fence native.Fence) error {
	vcb, ok := cb.(*CommandBuffer)
	if !ok {
		return fmt.Errorf("foreign command buffer submitted to vulkan device")
	}
	if d.faulted {
		return core.ErrDeviceFaulted
	}

	var vkFence vk.Fence
	if fence != nil {
		vkFence = fence.(*Fence).Handle
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{vcb.handle},
	}
	res := vk.QueueSubmit(d.ctx.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vkFence)
	if res == vk.ErrorDeviceLost {
		core.LogError("queue submit: device lost")
		d.faulted = true
		return core.ErrDeviceFaulted
	}
	if res != vk.Success {
		return fmt.Errorf("queue submit failed: %d", res)
	}
	return nil
}

func (d *Device) WaitIdle() error {
	if d.faulted {
		return core.ErrDeviceFaulted
	}
	res := vk.DeviceWaitIdle(d.ctx.LogicalDevice)
	if res == vk.ErrorDeviceLost {
		d.faulted = true
		return core.ErrDeviceFaulted
	}
	if res != vk.Success {
		return fmt.Errorf("device wait idle failed: %d", res)
	}
	return nil
}

func (d *Device) Faulted() bool { return d.faulted }

func (d *Device) SwapchainImageCount() uint32 { return d.swapchain.ImageCount }

func (d *Device) SwapchainExtent() (uint32, uint32) {
	return d.swapchain.Extent.Width, d.swapchain.Extent.Height
}

func (d *Device) SwapchainImage(index uint32) native.ImageID {
	if int(index) >= len(d.swapchainIDs) {
		return 0
	}
	return d.swapchainIDs[index]
}

func (d *Device) AcquireImage() (uint32, error) {
	if d.faulted {
		return 0, core.ErrDeviceFaulted
	}
	index, err := d.swapchain.acquire(d.ctx, ^uint64(0))
	if err != nil {
		return 0, err
	}
	// The presentation engine returned the image in present-source layout;
	// bring it back to general. The frame clears it before any read.
	if im := d.image(d.SwapchainImage(index)); im != nil {
		if err := d.transitionToGeneral(im); err != nil {
			return 0, err
		}
	}
	return index, nil
}

func (d *Device) Present(index uint32) error {
	if d.faulted {
		return core.ErrDeviceFaulted
	}
	if im := d.image(d.SwapchainImage(index)); im != nil {
		if err := d.transitionLayout(im, vk.ImageLayoutGeneral, vk.ImageLayoutPresentSrc); err != nil {
			return err
		}
	}
	return d.swapchain.present(d.ctx, index)
}

// beginSingleUse allocates and begins a throwaway command buffer for
// device-internal work (layout transitions).
func (d *Device) beginSingleUse() (vk.CommandBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.ctx.CommandPool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(d.ctx.LogicalDevice, &allocateInfo, handles); res != vk.Success {
		return nil, fmt.Errorf("failed to allocate single-use command buffer")
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(handles[0], &beginInfo); res != vk.Success {
		return nil, fmt.Errorf("failed to begin single-use command buffer")
	}
	return handles[0], nil
}

func (d *Device) endSingleUse(cb vk.CommandBuffer) error {
	if res := vk.EndCommandBuffer(cb); res != vk.Success {
		return fmt.Errorf("failed to end single-use command buffer")
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb},
	}
	if res := vk.QueueSubmit(d.ctx.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
		return fmt.Errorf("failed to submit single-use command buffer")
	}
	if res := vk.QueueWaitIdle(d.ctx.GraphicsQueue); res != vk.Success {
		return fmt.Errorf("queue failed to drain single-use work")
	}
	vk.FreeCommandBuffers(d.ctx.LogicalDevice, d.ctx.CommandPool, 1, []vk.CommandBuffer{cb})
	return nil
}

func (d *Device) Shutdown() error {
	if d.ctx.LogicalDevice != nil {
		vk.DeviceWaitIdle(d.ctx.LogicalDevice)
	}

	for _, cb := range d.commandBuffers {
		cb.destroy()
	}
	d.commandBuffers = nil

	d.destroyPipelineObjects()
	if d.defaultSampler != nil {
		vk.DestroySampler(d.ctx.LogicalDevice, d.defaultSampler, d.ctx.Allocator)
		d.defaultSampler = nil
	}
	if d.defaultImage != nil {
		d.defaultImage.destroy(d.ctx)
		d.defaultImage = nil
	}
	for _, entry := range d.samplers {
		if entry.sampler != nil {
			vk.DestroySampler(d.ctx.LogicalDevice, entry.sampler, d.ctx.Allocator)
		}
	}
	d.samplers = nil

	swapchainImages := make(map[native.ImageID]bool, len(d.swapchainIDs))
	for _, id := range d.swapchainIDs {
		swapchainImages[id] = true
	}
	for id, im := range d.images {
		if swapchainImages[id] {
			// View and image belong to the swapchain.
			continue
		}
		im.destroy(d.ctx)
	}
	d.images = nil

	if d.swapchain != nil {
		d.swapchain.destroy(d.ctx)
		d.swapchain = nil
	}
	for _, rb := range d.regions {
		if rb != nil {
			rb.destroy(d.ctx)
		}
	}
	if d.ctx.CommandPool != nil {
		vk.DestroyCommandPool(d.ctx.LogicalDevice, d.ctx.CommandPool, d.ctx.Allocator)
		d.ctx.CommandPool = nil
	}
	if d.ctx.LogicalDevice != nil {
		vk.DestroyDevice(d.ctx.LogicalDevice, d.ctx.Allocator)
		d.ctx.LogicalDevice = nil
	}
	if d.ctx.Surface != vk.NullSurface {
		vk.DestroySurface(d.ctx.Instance, d.ctx.Surface, d.ctx.Allocator)
	}
	if d.ctx.Instance != nil {
		vk.DestroyInstance(d.ctx.Instance, d.ctx.Allocator)
		d.ctx.Instance = nil
	}
	core.LogInfo("vulkan device shut down")
	return nil
}
