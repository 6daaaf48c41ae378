package translator

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/native"
)

// BeginFrame advances to the next frame slot, waits out that slot's previous
// submission, resets the slot's client-array sub-range and starts recording.
// The per-slot wait is what guarantees a later frame never overwrites client
// bytes a prior submission still reads.
func (r *Runtime) BeginFrame() error {
	if r.slot().submitted {
		r.current = (r.current + 1) % r.cfg.FrameSlots
	} else {
		// The slot is still open (the implicit recording started at init, or
		// a frame that never reached EndFrame). Discard and reuse it.
		r.slot().cb.Reset()
	}
	if err := r.WaitFence(uint32(r.current)); err != nil {
		return err
	}
	r.clientArenas[r.current].Reset()
	return r.beginRecording()
}

// EndFrame finalizes the slot's command list and submits it. A faulted queue
// skips the submission but the slot is still marked submitted so the next
// flush does not submit the same list twice.
func (r *Runtime) EndFrame() error {
	slot := r.slot()
	if err := slot.cb.End(); err != nil {
		core.LogError("failed to end frame command buffer: %v", err)
	}
	if r.device.Faulted() {
		core.LogWarn("queue faulted; frame submission skipped")
		r.stats.SkippedOps++
		slot.submitted = true
		return core.ErrDeviceFaulted
	}
	slot.fence.Reset()
	if err := r.device.Submit(slot.cb, slot.fence); err != nil {
		core.LogError("frame submit failed: %v", err)
		slot.submitted = true
		return err
	}
	slot.submitted = true
	r.stats.Submissions++
	return nil
}

// AcquireImage fetches the next swapchain image if none is held. BeginFrame
// acquires implicitly; the explicit operation exists for front ends that
// pipeline acquisition separately.
func (r *Runtime) AcquireImage() error {
	if r.acquired {
		return nil
	}
	idx, err := r.device.AcquireImage()
	if err != nil {
		return err
	}
	r.imageIndex = idx
	r.acquired = true
	return nil
}

func (r *Runtime) Present() error {
	if !r.acquired {
		return fmt.Errorf("present without an acquired image")
	}
	err := r.device.Present(r.imageIndex)
	r.acquired = false
	return err
}

// WaitFence blocks until the given slot's submission completes, then clears
// the slot's command buffer and resets the slot's uniform sub-range. The
// uniform range is safe to reset here because uniform bytes were snapshotted
// into the command stream at record time, never read live by the GPU.
func (r *Runtime) WaitFence(slot uint32) error {
	if int(slot) >= len(r.frames) {
		return fmt.Errorf("wait on invalid frame slot %d", slot)
	}
	fs := r.frames[slot]
	if !fs.submitted {
		return nil
	}
	if !fs.fence.Wait(fenceTimeoutNs) {
		if !r.device.Faulted() {
			core.LogError("fence wait failed for slot %d", slot)
		}
	}
	fs.submitted = false
	fs.cb.Reset()
	r.uniformArenas[slot].Reset()
	return nil
}

// Flush waits on the already-submitted list for the current slot, or
// submits-and-waits the one being recorded, leaving a freshly primed command
// buffer with the render target rebound either way.
func (r *Runtime) Flush() {
	slot := r.slot()
	if slot.submitted {
		if err := r.WaitFence(uint32(r.current)); err != nil {
			core.LogError("flush: %v", err)
		}
		r.reprimeRecording()
		return
	}
	_ = r.submitAndWait()
}

// Finish is Flush plus a full queue drain.
func (r *Runtime) Finish() {
	r.Flush()
	if err := r.device.WaitIdle(); err != nil {
		core.LogWarn("finish on faulted queue: %v", err)
	}
}

// MemoryBarrier records a full barrier covering the copy engine, the 3D
// engine's image caches and the descriptor tables.
func (r *Runtime) MemoryBarrier() {
	r.currentCB().Barrier(native.BarrierFull)
}
