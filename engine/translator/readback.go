package translator

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/memory"
	"github.com/spaghettifunk/prism/engine/native"
)

// readbackRows copies a rect of the current render target into CPU memory as
// tightly packed RGBA rows. When flip is set, rows are reversed during the
// CPU copy: native storage is top-origin while the emulated API hands rows
// bottom-origin to the caller. A one-row image needs no flip. On any
// degradation (queue fault before or after submission, staging exhaustion)
// the result is zero-filled and recording state is left consistent.
func (r *Runtime) readbackRows(srcX, srcY int32, width, height uint32, flip bool) []byte {
	out := make([]byte, int(width)*int(height)*4)

	// Source rendering must be fully complete before the copy engine reads
	// the image.
	r.Finish()

	if r.device.Faulted() {
		core.LogWarn("readback on faulted queue: returning zero-filled rows")
		r.stats.SkippedOps++
		return out
	}

	src, _ := r.resolveRenderTarget()
	rowStride := uint32(memory.Align(uint64(width)*4, r.limits.RowAlign))
	r.stagingArena.Reset()
	offset, err := r.stagingArena.Allocate(uint64(rowStride)*uint64(height), r.limits.BufferAlign)
	if err != nil {
		r.stats.SkippedOps++
		return out
	}

	cb := r.currentCB()
	cb.Barrier(native.BarrierRenderTarget | native.BarrierTransfer)
	cb.CopyImageToBuffer(src, 0, native.ImageRect{X: srcX, Y: srcY, Width: width, Height: height}, offset, rowStride)
	if err := r.submitAndWait(); err != nil {
		// Fault detected at/after submission: keep the zero fill.
		return out
	}

	staging := r.device.MapRegion(native.RegionStaging)
	rowBytes := int(width) * 4
	for y := 0; y < int(height); y++ {
		dstRow := y
		if flip && height > 1 {
			dstRow = int(height) - 1 - y
		}
		copy(out[dstRow*rowBytes:(dstRow+1)*rowBytes], staging[offset+uint64(y)*uint64(rowStride):])
	}
	return out
}

// ReadPixels fills dst with bottom-origin RGBA rows from the bound render
// target (or the acquired swapchain image for the default binding). Degraded
// readback never faults: a broken queue yields zeros and the recording
// context is re-primed either way.
func (r *Runtime) ReadPixels(x, y int32, width, height uint32, dst []byte) error {
	need := int(width) * int(height) * 4
	if len(dst) < need {
		return fmt.Errorf("read_pixels destination too small: %d < %d", len(dst), need)
	}
	rows := r.readbackRows(x, y, width, height, true)
	copy(dst, rows)
	return nil
}
