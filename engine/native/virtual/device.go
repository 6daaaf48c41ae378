// Package virtual is a software implementation of the native device. It
// backs every region with plain byte slices and executes submissions on the
// CPU, so the translation core can run headless and its behavior can be
// observed byte-for-byte. Submissions complete synchronously: a fence armed
// by Submit is signaled before Submit returns.
package virtual

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/native"
)

type Config struct {
	CodeSize       uint64
	DataSize       uint64
	ImageSize      uint64
	DescriptorSize uint64
	StagingSize    uint64

	SwapchainWidth  uint32
	SwapchainHeight uint32
	SwapchainImages uint32
}

func DefaultConfig() Config {
	return Config{
		CodeSize:        4 << 20,
		DataSize:        32 << 20,
		ImageSize:       64 << 20,
		DescriptorSize:  1 << 20,
		StagingSize:     16 << 20,
		SwapchainWidth:  960,
		SwapchainHeight: 544,
		SwapchainImages: 3,
	}
}

type image struct {
	info native.ImageInfo
	// level storage indexed by [layer][level], tightly packed rows
	levels [][][]byte
}

func (im *image) levelExtent(level uint32) (uint32, uint32) {
	w := im.info.Width >> level
	h := im.info.Height >> level
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}
	return w, h
}

// Device is the virtual native device.
var (
	_ native.Device = (*Device)(nil)
	_ native.Fence  = (*Fence)(nil)
)

type Device struct {
	cfg     Config
	regions [native.RegionCount][]byte

	images      map[native.ImageID]*image
	nextImageID native.ImageID

	descriptors map[uint64]native.SamplerDescriptor

	swapchain  []native.ImageID
	frameIndex uint32

	faulted   bool
	submitted uint64
	barriers  uint64

	trace []DrawEvent
}

func NewDevice(cfg Config) (*Device, error) {
	if cfg.SwapchainImages == 0 || cfg.SwapchainWidth == 0 || cfg.SwapchainHeight == 0 {
		return nil, fmt.Errorf("virtual device: invalid swapchain configuration")
	}
	d := &Device{
		cfg:         cfg,
		images:      make(map[native.ImageID]*image),
		nextImageID: 1,
		descriptors: make(map[uint64]native.SamplerDescriptor),
	}
	d.regions[native.RegionCode] = make([]byte, cfg.CodeSize)
	d.regions[native.RegionData] = make([]byte, cfg.DataSize)
	d.regions[native.RegionDescriptor] = make([]byte, cfg.DescriptorSize)
	d.regions[native.RegionStaging] = make([]byte, cfg.StagingSize)
	// RegionImage is device-local; images carry their own storage.

	for i := uint32(0); i < cfg.SwapchainImages; i++ {
		id, err := d.createImageStorage(native.ImageInfo{
			Width:        cfg.SwapchainWidth,
			Height:       cfg.SwapchainHeight,
			Levels:       1,
			Layers:       1,
			Format:       native.FormatRGBA8,
			RenderTarget: true,
		})
		if err != nil {
			return nil, err
		}
		d.swapchain = append(d.swapchain, id)
	}
	core.LogDebug("virtual device ready: %dx%d, %d swapchain images", cfg.SwapchainWidth, cfg.SwapchainHeight, cfg.SwapchainImages)
	return d, nil
}

func (d *Device) Limits() native.Limits {
	return native.Limits{
		BufferAlign:     256,
		UniformAlign:    256,
		ImageAlign:      4096,
		RowAlign:        64,
		DescriptorSize:  32,
		MaxVertexAttrib: 8,
		MaxTextureUnits: 8,
	}
}

func (d *Device) RegionSize(r native.Region) uint64 {
	switch r {
	case native.RegionImage:
		return d.cfg.ImageSize
	default:
		return uint64(len(d.regions[r]))
	}
}

func (d *Device) MapRegion(r native.Region) []byte {
	if r == native.RegionImage {
		return nil
	}
	return d.regions[r]
}

func (d *Device) createImageStorage(info native.ImageInfo) (native.ImageID, error) {
	if info.Layers == 0 {
		info.Layers = 1
	}
	if info.Levels == 0 {
		info.Levels = 1
	}
	im := &image{info: info}
	bpp := info.Format.BytesPerPixel()
	if info.Format.Compressed() {
		// Block data is stored opaquely at 1 byte per texel for bookkeeping.
		bpp = 1
	}
	for layer := uint32(0); layer < info.Layers; layer++ {
		var lvls [][]byte
		for level := uint32(0); level < info.Levels; level++ {
			w, h := im.levelExtent(level)
			lvls = append(lvls, make([]byte, int(w)*int(h)*bpp))
		}
		im.levels = append(im.levels, lvls)
	}
	id := d.nextImageID
	d.nextImageID++
	d.images[id] = im
	return id, nil
}

func (d *Device) CreateImage(info native.ImageInfo) (native.ImageID, error) {
	if info.Format == native.FormatInvalid {
		return 0, fmt.Errorf("virtual device: image with invalid format")
	}
	return d.createImageStorage(info)
}

func (d *Device) WriteSamplerDescriptor(offset uint64, desc native.SamplerDescriptor) error {
	if offset+d.Limits().DescriptorSize > d.RegionSize(native.RegionDescriptor) {
		return fmt.Errorf("%w: descriptor offset %d", core.ErrRegionFull, offset)
	}
	d.descriptors[offset] = desc
	return nil
}

func (d *Device) NewCommandBuffer() (native.CommandBuffer, error) {
	return &CommandBuffer{dev: d}, nil
}

func (d *Device) NewFence(signaled bool) (native.Fence, error) {
	return &Fence{signaled: signaled}, nil
}

func (d *Device) Submit(cb native.CommandBuffer, fence native.Fence) error {
	vcb, ok := cb.(*CommandBuffer)
	if !ok {
		return fmt.Errorf("virtual device: foreign command buffer")
	}
	if d.faulted {
		return core.ErrDeviceFaulted
	}
	vcb.execute()
	d.submitted++
	if fence != nil {
		fence.(*Fence).signaled = true
	}
	return nil
}

func (d *Device) WaitIdle() error {
	if d.faulted {
		return core.ErrDeviceFaulted
	}
	return nil
}

func (d *Device) Faulted() bool { return d.faulted }

// InjectFault flips the queue into its sticky error state. Test-only entry
// point; the interface has no way back out.
func (d *Device) InjectFault() { d.faulted = true }

func (d *Device) SwapchainImageCount() uint32 { return d.cfg.SwapchainImages }

func (d *Device) SwapchainExtent() (uint32, uint32) {
	return d.cfg.SwapchainWidth, d.cfg.SwapchainHeight
}

func (d *Device) SwapchainImage(index uint32) native.ImageID {
	return d.swapchain[index]
}

func (d *Device) AcquireImage() (uint32, error) {
	if d.faulted {
		return 0, core.ErrDeviceFaulted
	}
	idx := d.frameIndex
	d.frameIndex = (d.frameIndex + 1) % d.cfg.SwapchainImages
	return idx, nil
}

func (d *Device) Present(index uint32) error {
	if d.faulted {
		return core.ErrDeviceFaulted
	}
	_ = index
	return nil
}

func (d *Device) Shutdown() error {
	d.images = nil
	d.descriptors = nil
	return nil
}

// ImagePixels exposes one mip level of one layer for inspection. The slice
// aliases device storage.
func (d *Device) ImagePixels(id native.ImageID, layer, level uint32) []byte {
	im, ok := d.images[id]
	if !ok || layer >= uint32(len(im.levels)) || level >= uint32(len(im.levels[layer])) {
		return nil
	}
	return im.levels[layer][level]
}

// ImageInfo returns the creation info of an image.
func (d *Device) ImageInfo(id native.ImageID) (native.ImageInfo, bool) {
	im, ok := d.images[id]
	if !ok {
		return native.ImageInfo{}, false
	}
	return im.info, true
}

// Descriptor returns the descriptor-table entry at offset, if one was written.
func (d *Device) Descriptor(offset uint64) (native.SamplerDescriptor, bool) {
	desc, ok := d.descriptors[offset]
	return desc, ok
}

// Submissions counts completed queue submissions.
func (d *Device) Submissions() uint64 { return d.submitted }

// Trace returns the draw events executed so far, in submission order.
func (d *Device) Trace() []DrawEvent { return d.trace }

// ResetTrace clears the recorded draw events.
func (d *Device) ResetTrace() { d.trace = nil }

// Fence is a CPU-side completion flag; the virtual queue signals it inside
// Submit.
type Fence struct {
	signaled bool
}

func (f *Fence) Wait(timeoutNs uint64) bool {
	_ = timeoutNs
	return f.signaled
}

func (f *Fence) Reset() { f.signaled = false }

func (f *Fence) Signaled() bool { return f.signaled }
