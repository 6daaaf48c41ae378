package virtual

import (
	"encoding/binary"
	goimage "image"

	xdraw "golang.org/x/image/draw"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/native"
)

// DrawEvent is the observable record of one executed draw: the element-fetch
// sequence, the uniform snapshots that were live in the command stream, and
// the bound resources at that point.
type DrawEvent struct {
	Prim         native.Primitive
	First        uint32
	Count        uint32
	Indexed      bool
	Indices      []uint32
	Uniforms     [2][]byte
	Bindings     []native.VertexBufferBinding
	Attribs      []native.VertexAttribDesc
	Textures     map[uint32]uint64
	RenderTarget native.ImageID
}

type cmdKind int

const (
	cmdCopyToImage cmdKind = iota
	cmdCopyFromImage
	cmdBlit
	cmdBarrier
	cmdClear
	cmdDraw
)

type command struct {
	kind cmdKind

	stagingOffset uint64
	rowStride     uint32
	img           native.ImageID
	layer, level  uint32
	dstLevel      uint32
	rect          native.ImageRect
	srcW, srcH    uint32
	dstW, dstH    uint32

	barrier native.BarrierFlags

	clearMask    native.ClearMask
	clearColor   [4]float32
	clearDepth   float32
	clearStencil uint32

	draw DrawEvent

	indexOffset uint64
	indexFormat native.IndexFormat
}

var _ native.CommandBuffer = (*CommandBuffer)(nil)

// CommandBuffer records commands for the virtual queue. Recording-time state
// (bindings, uniform snapshots, render target) is folded into each draw
// command so execution needs no back-references.
type CommandBuffer struct {
	dev  *Device
	cmds []command

	recording bool

	target   native.ImageID
	depth    native.ImageID
	uniforms [2][]byte
	bindings []native.VertexBufferBinding
	attribs  []native.VertexAttribDesc
	textures map[uint32]uint64

	indexOffset uint64
	indexFormat native.IndexFormat
}

func (cb *CommandBuffer) Begin() error {
	cb.recording = true
	return nil
}

func (cb *CommandBuffer) End() error {
	cb.recording = false
	return nil
}

func (cb *CommandBuffer) Reset() {
	cb.cmds = nil
	cb.recording = false
	cb.target = 0
	cb.depth = 0
	cb.uniforms = [2][]byte{}
	cb.bindings = nil
	cb.attribs = nil
	cb.textures = nil
}

func (cb *CommandBuffer) CopyBufferToImage(stagingOffset uint64, rowStride uint32, img native.ImageID, layer, level uint32, r native.ImageRect) {
	cb.cmds = append(cb.cmds, command{
		kind:          cmdCopyToImage,
		stagingOffset: stagingOffset,
		rowStride:     rowStride,
		img:           img,
		layer:         layer,
		level:         level,
		rect:          r,
	})
}

func (cb *CommandBuffer) CopyImageToBuffer(img native.ImageID, level uint32, r native.ImageRect, stagingOffset uint64, rowStride uint32) {
	cb.cmds = append(cb.cmds, command{
		kind:          cmdCopyFromImage,
		stagingOffset: stagingOffset,
		rowStride:     rowStride,
		img:           img,
		level:         level,
		rect:          r,
	})
}

func (cb *CommandBuffer) BlitImage(img native.ImageID, layer, srcLevel, dstLevel uint32, srcW, srcH, dstW, dstH uint32) {
	cb.cmds = append(cb.cmds, command{
		kind:     cmdBlit,
		img:      img,
		layer:    layer,
		level:    srcLevel,
		dstLevel: dstLevel,
		srcW:     srcW,
		srcH:     srcH,
		dstW:     dstW,
		dstH:     dstH,
	})
}

func (cb *CommandBuffer) Barrier(flags native.BarrierFlags) {
	cb.cmds = append(cb.cmds, command{kind: cmdBarrier, barrier: flags})
}

func (cb *CommandBuffer) SetBlend(info native.BlendInfo)               {}
func (cb *CommandBuffer) SetDepthStencil(info native.DepthStencilInfo) {}
func (cb *CommandBuffer) SetRaster(info native.RasterInfo)             {}
func (cb *CommandBuffer) SetViewport(x, y int32, width, height uint32, minDepth, maxDepth float32) {
}
func (cb *CommandBuffer) SetScissor(x, y int32, width, height uint32) {}
func (cb *CommandBuffer) SetBlendColor(color [4]float32)              {}
func (cb *CommandBuffer) SetStencilRef(ref, compareMask, writeMask uint32) {
}
func (cb *CommandBuffer) SetDepthBias(factor, units float32) {}
func (cb *CommandBuffer) SetColorMask(r, g, b, a bool)       {}

func (cb *CommandBuffer) BindRenderTarget(color, depth native.ImageID) {
	cb.target = color
	cb.depth = depth
}

func (cb *CommandBuffer) BindShaders(vertex, fragment native.ShaderRef) {}

func (cb *CommandBuffer) PushUniforms(stage int, data []byte) {
	if stage < 0 || stage > 1 {
		return
	}
	// Snapshot at record time: later writes to data must not be observed.
	snap := make([]byte, len(data))
	copy(snap, data)
	cb.uniforms[stage] = snap
}

func (cb *CommandBuffer) BindVertexBuffers(bindings []native.VertexBufferBinding) {
	cb.bindings = append([]native.VertexBufferBinding(nil), bindings...)
}

func (cb *CommandBuffer) BindVertexAttribs(attribs []native.VertexAttribDesc) {
	cb.attribs = append([]native.VertexAttribDesc(nil), attribs...)
}

func (cb *CommandBuffer) BindIndexBuffer(offset uint64, format native.IndexFormat) {
	cb.indexOffset = offset
	cb.indexFormat = format
}

func (cb *CommandBuffer) BindTexture(unit uint32, descriptorOffset uint64) {
	if cb.textures == nil {
		cb.textures = make(map[uint32]uint64)
	}
	cb.textures[unit] = descriptorOffset
}

func (cb *CommandBuffer) Clear(mask native.ClearMask, color [4]float32, depth float32, stencil uint32) {
	cb.cmds = append(cb.cmds, command{
		kind:         cmdClear,
		img:          cb.target,
		clearMask:    mask,
		clearColor:   color,
		clearDepth:   depth,
		clearStencil: stencil,
	})
}

func (cb *CommandBuffer) snapshotDraw(ev DrawEvent) DrawEvent {
	ev.Uniforms = cb.uniforms
	ev.Bindings = cb.bindings
	ev.Attribs = cb.attribs
	ev.RenderTarget = cb.target
	if cb.textures != nil {
		tex := make(map[uint32]uint64, len(cb.textures))
		for k, v := range cb.textures {
			tex[k] = v
		}
		ev.Textures = tex
	}
	return ev
}

func (cb *CommandBuffer) Draw(prim native.Primitive, first, count uint32) {
	cb.cmds = append(cb.cmds, command{
		kind: cmdDraw,
		draw: cb.snapshotDraw(DrawEvent{Prim: prim, First: first, Count: count}),
	})
}

func (cb *CommandBuffer) DrawIndexed(prim native.Primitive, count uint32) {
	cb.cmds = append(cb.cmds, command{
		kind:        cmdDraw,
		draw:        cb.snapshotDraw(DrawEvent{Prim: prim, Count: count, Indexed: true}),
		indexOffset: cb.indexOffset,
		indexFormat: cb.indexFormat,
	})
}

func (cb *CommandBuffer) execute() {
	for i := range cb.cmds {
		c := &cb.cmds[i]
		switch c.kind {
		case cmdCopyToImage:
			cb.dev.execCopyToImage(c)
		case cmdCopyFromImage:
			cb.dev.execCopyFromImage(c)
		case cmdBlit:
			cb.dev.execBlit(c)
		case cmdBarrier:
			cb.dev.barriers++
		case cmdClear:
			cb.dev.execClear(c)
		case cmdDraw:
			cb.dev.execDraw(c)
		}
	}
}

// Barriers counts executed barrier commands.
func (d *Device) Barriers() uint64 { return d.barriers }

func (d *Device) execCopyToImage(c *command) {
	im, ok := d.images[c.img]
	if !ok || c.layer >= uint32(len(im.levels)) || c.level >= uint32(len(im.levels[c.layer])) {
		core.LogWarn("virtual: copy to unknown image %d", c.img)
		return
	}
	staging := d.regions[native.RegionStaging]
	dst := im.levels[c.layer][c.level]
	if im.info.Format.Compressed() {
		// Opaque block data: flat copy sized by the recorded row stride.
		n := int(c.rowStride) * int(c.rect.Height)
		if need := n; need > len(dst) {
			dst = make([]byte, need)
			im.levels[c.layer][c.level] = dst
		}
		copy(dst[:n], staging[c.stagingOffset:])
		return
	}
	bpp := im.info.Format.BytesPerPixel()
	w, _ := im.levelExtent(c.level)
	rowBytes := int(c.rect.Width) * bpp
	for row := 0; row < int(c.rect.Height); row++ {
		srcOff := int(c.stagingOffset) + row*int(c.rowStride)
		dstOff := ((int(c.rect.Y)+row)*int(w) + int(c.rect.X)) * bpp
		copy(dst[dstOff:dstOff+rowBytes], staging[srcOff:srcOff+rowBytes])
	}
}

func (d *Device) execCopyFromImage(c *command) {
	im, ok := d.images[c.img]
	if !ok {
		core.LogWarn("virtual: copy from unknown image %d", c.img)
		return
	}
	staging := d.regions[native.RegionStaging]
	src := im.levels[0][c.level]
	bpp := im.info.Format.BytesPerPixel()
	w, _ := im.levelExtent(c.level)
	rowBytes := int(c.rect.Width) * bpp
	for row := 0; row < int(c.rect.Height); row++ {
		srcOff := ((int(c.rect.Y)+row)*int(w) + int(c.rect.X)) * bpp
		dstOff := int(c.stagingOffset) + row*int(c.rowStride)
		copy(staging[dstOff:dstOff+rowBytes], src[srcOff:srcOff+rowBytes])
	}
}

func (d *Device) execBlit(c *command) {
	im, ok := d.images[c.img]
	if !ok || c.layer >= uint32(len(im.levels)) || c.dstLevel >= uint32(len(im.levels[c.layer])) {
		return
	}
	src := im.levels[c.layer][c.level]
	dst := im.levels[c.layer][c.dstLevel]
	if im.info.Format.BytesPerPixel() == 4 {
		srcImg := &goimage.RGBA{Pix: src, Stride: int(c.srcW) * 4, Rect: goimage.Rect(0, 0, int(c.srcW), int(c.srcH))}
		dstImg := &goimage.RGBA{Pix: dst, Stride: int(c.dstW) * 4, Rect: goimage.Rect(0, 0, int(c.dstW), int(c.dstH))}
		xdraw.ApproxBiLinear.Scale(dstImg, dstImg.Rect, srcImg, srcImg.Rect, xdraw.Src, nil)
		return
	}
	// Narrow formats fall back to nearest sampling.
	bpp := im.info.Format.BytesPerPixel()
	if bpp == 0 {
		return
	}
	for y := 0; y < int(c.dstH); y++ {
		sy := y * int(c.srcH) / int(c.dstH)
		for x := 0; x < int(c.dstW); x++ {
			sx := x * int(c.srcW) / int(c.dstW)
			copy(dst[(y*int(c.dstW)+x)*bpp:(y*int(c.dstW)+x+1)*bpp], src[(sy*int(c.srcW)+sx)*bpp:])
		}
	}
}

func (d *Device) execClear(c *command) {
	im, ok := d.images[c.img]
	if !ok || c.clearMask&native.ClearColor == 0 {
		return
	}
	if im.info.Format.BytesPerPixel() != 4 {
		return
	}
	px := [4]byte{
		floatToByte(c.clearColor[0]),
		floatToByte(c.clearColor[1]),
		floatToByte(c.clearColor[2]),
		floatToByte(c.clearColor[3]),
	}
	dst := im.levels[0][0]
	for i := 0; i+4 <= len(dst); i += 4 {
		copy(dst[i:i+4], px[:])
	}
}

func (d *Device) execDraw(c *command) {
	ev := c.draw
	if ev.Indexed {
		data := d.regions[native.RegionData]
		ev.Indices = make([]uint32, 0, ev.Count)
		for i := uint32(0); i < ev.Count; i++ {
			switch c.indexFormat {
			case native.IndexU16:
				off := c.indexOffset + uint64(i)*2
				ev.Indices = append(ev.Indices, uint32(binary.LittleEndian.Uint16(data[off:])))
			case native.IndexU32:
				off := c.indexOffset + uint64(i)*4
				ev.Indices = append(ev.Indices, binary.LittleEndian.Uint32(data[off:]))
			}
		}
	}
	d.trace = append(d.trace, ev)
}

func floatToByte(f float32) byte {
	if f <= 0 {
		return 0
	}
	if f >= 1 {
		return 255
	}
	return byte(f*255 + 0.5)
}
