package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
)

// regionBuffer is one of the fixed memory regions backed by a vk.Buffer with
// a persistent host mapping. The translation core allocates ranges inside it;
// the device only hands out the mapped bytes.
type regionBuffer struct {
	handle vk.Buffer
	memory vk.DeviceMemory
	size   uint64
	mapped []byte
}

func newRegionBuffer(ctx *Context, size uint64, usage vk.BufferUsageFlagBits) (*regionBuffer, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}

	var handle vk.Buffer
	if res := vk.CreateBuffer(ctx.LogicalDevice, &bufferInfo, ctx.Allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create region buffer of %d bytes", size)
		core.LogError(err.Error())
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(ctx.LogicalDevice, handle, &requirements)
	requirements.Deref()

	memoryType := ctx.FindMemoryIndex(requirements.MemoryTypeBits,
		uint32(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if memoryType < 0 {
		return nil, fmt.Errorf("no host-visible memory type for region buffer")
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(ctx.LogicalDevice, &allocateInfo, ctx.Allocator, &memory); res != vk.Success {
		err := fmt.Errorf("failed to allocate %d bytes of region memory", size)
		core.LogError(err.Error())
		return nil, err
	}
	if res := vk.BindBufferMemory(ctx.LogicalDevice, handle, memory, 0); res != vk.Success {
		err := fmt.Errorf("failed to bind region buffer memory")
		core.LogError(err.Error())
		return nil, err
	}

	var data unsafe.Pointer
	if res := vk.MapMemory(ctx.LogicalDevice, memory, 0, vk.DeviceSize(size), 0, &data); res != vk.Success {
		err := fmt.Errorf("failed to map region buffer")
		core.LogError(err.Error())
		return nil, err
	}

	return &regionBuffer{
		handle: handle,
		memory: memory,
		size:   size,
		mapped: unsafe.Slice((*byte)(data), size),
	}, nil
}

func (rb *regionBuffer) destroy(ctx *Context) {
	if rb == nil {
		return
	}
	if rb.mapped != nil {
		vk.UnmapMemory(ctx.LogicalDevice, rb.memory)
		rb.mapped = nil
	}
	if rb.handle != nil {
		vk.DestroyBuffer(ctx.LogicalDevice, rb.handle, ctx.Allocator)
		rb.handle = nil
	}
	if rb.memory != nil {
		vk.FreeMemory(ctx.LogicalDevice, rb.memory, ctx.Allocator)
		rb.memory = nil
	}
}
