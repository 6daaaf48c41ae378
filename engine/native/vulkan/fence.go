package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
)

// Fence wraps a vk.Fence behind the scheduler's CPU-side view of it.
type Fence struct {
	ctx        *Context
	Handle     vk.Fence
	IsSignaled bool
}

func newFence(ctx *Context, createSignaled bool) (*Fence, error) {
	fence := &Fence{
		ctx: ctx,
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(ctx.LogicalDevice, &fenceCreateInfo, ctx.Allocator, &pFence); res != vk.Success {
		err := fmt.Errorf("failed to create fence")
		core.LogError(err.Error())
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (f *Fence) Wait(timeoutNs uint64) bool {
	if f.IsSignaled {
		return true
	}
	result := vk.WaitForFences(f.ctx.LogicalDevice, 1, []vk.Fence{f.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		f.IsSignaled = true
		return true
	case vk.Timeout:
		core.LogWarn("fence wait timed out")
	case vk.ErrorDeviceLost:
		core.LogError("fence wait: VK_ERROR_DEVICE_LOST")
	case vk.ErrorOutOfHostMemory:
		core.LogError("fence wait: VK_ERROR_OUT_OF_HOST_MEMORY")
	case vk.ErrorOutOfDeviceMemory:
		core.LogError("fence wait: VK_ERROR_OUT_OF_DEVICE_MEMORY")
	default:
		core.LogError("fence wait: unexpected result %d", result)
	}
	return false
}

func (f *Fence) Reset() {
	if res := vk.ResetFences(f.ctx.LogicalDevice, 1, []vk.Fence{f.Handle}); res != vk.Success {
		core.LogError("failed to reset fence")
	}
	f.IsSignaled = false
}

func (f *Fence) Signaled() bool {
	if f.IsSignaled {
		return true
	}
	if vk.GetFenceStatus(f.ctx.LogicalDevice, f.Handle) == vk.Success {
		f.IsSignaled = true
	}
	return f.IsSignaled
}

func (f *Fence) destroy() {
	if f.Handle != nil {
		vk.DestroyFence(f.ctx.LogicalDevice, f.Handle, f.ctx.Allocator)
		f.Handle = nil
	}
	f.IsSignaled = false
}
