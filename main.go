/*
Headless demo: drives the translation backend on the virtual device with a
small textured-quad workload, then reads the result back and logs a digest.
*/
package main

import (
	"crypto/sha256"
	"encoding/binary"
	"flag"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/gles"
	"github.com/spaghettifunk/prism/engine/native/virtual"
	"github.com/spaghettifunk/prism/engine/translator"
)

const (
	demoWidth  = 256
	demoHeight = 256
	demoFrames = 30
)

func main() {
	configPath := flag.String("config", "", "path to a TOML runtime configuration")
	flag.Parse()

	cfg := translator.DefaultConfig()
	if *configPath != "" {
		loaded, err := translator.LoadConfig(*configPath)
		if err != nil {
			core.LogFatal("config %s: %s", *configPath, err)
		}
		cfg = loaded
	}

	devCfg := virtual.DefaultConfig()
	devCfg.SwapchainWidth = demoWidth
	devCfg.SwapchainHeight = demoHeight
	dev, err := virtual.NewDevice(devCfg)
	if err != nil {
		core.LogFatal("virtual device: %s", err)
	}

	r := translator.New(dev, cfg)
	if err := r.Initialize("prism-demo", demoWidth, demoHeight); err != nil {
		core.LogFatal("initialize: %s", err)
	}
	defer func() {
		stats := r.Statistics()
		core.LogInfo("demo stats: %d draws, %d submissions, %d bytes staged, %d skipped ops",
			stats.Draws, stats.Submissions, stats.BytesStaged, stats.SkippedOps)
		if err := r.Shutdown(); err != nil {
			core.LogError("shutdown: %s", err)
		}
	}()

	if err := setupProgram(r); err != nil {
		core.LogFatal("program setup: %s", err)
	}
	r.TextureUpload2D(1, 64, 64, gles.PixelFormatRGBA8, checkerboard(64, 64))
	r.TextureSetParams(1, gles.SamplerParams{
		MinFilter: gles.TextureFilterNearest,
		MagFilter: gles.TextureFilterNearest,
		WrapS:     gles.TextureWrapRepeat,
		WrapT:     gles.TextureWrapRepeat,
	})

	clock := core.NewClock()
	clock.Start()
	metrics := core.NewMetrics()

	var last time.Duration
	for frame := 0; frame < demoFrames; frame++ {
		if err := r.BeginFrame(); err != nil {
			core.LogError("frame %d: %s", frame, err)
			break
		}
		drawQuad(r, frame)
		if err := r.EndFrame(); err != nil {
			core.LogError("frame %d: %s", frame, err)
			break
		}
		if err := r.Present(); err != nil {
			core.LogError("frame %d: %s", frame, err)
			break
		}

		clock.Update()
		now := clock.Elapsed()
		metrics.Update((now - last).Seconds())
		last = now
	}
	core.LogInfo("rendered %d frames (virtual device, %.2fms avg)", demoFrames, metrics.FrameTime())

	dst := make([]byte, demoWidth*demoHeight*4)
	if err := r.ReadPixels(0, 0, demoWidth, demoHeight, dst); err != nil {
		core.LogError("readback: %s", err)
		return
	}
	digest := sha256.Sum256(dst)
	core.LogInfo("framebuffer digest: %x", digest[:8])
}

// setupProgram writes stand-in shader binaries to a scratch directory, loads
// them and links program 1. The virtual device treats shader code as opaque
// bytes, so the content only has to be non-empty.
func setupProgram(r *translator.Runtime) error {
	dir, err := os.MkdirTemp("", "prism-demo-")
	if err != nil {
		return err
	}
	vert := filepath.Join(dir, "quad.vert.bin")
	frag := filepath.Join(dir, "quad.frag.bin")
	if err := os.WriteFile(vert, []byte("demo-vertex-stage"), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(frag, []byte("demo-fragment-stage"), 0o644); err != nil {
		return err
	}

	if err := r.ShaderLoad(1, gles.ShaderStageVertex, vert); err != nil {
		return err
	}
	if err := r.ShaderLoad(2, gles.ShaderStageFragment, frag); err != nil {
		return err
	}
	if err := r.ProgramLink(1, 1, 2); err != nil {
		return err
	}
	r.ProgramBind(1)

	return r.UniformAllocate(1, gles.ShaderStageVertex, 16)
}

// drawQuad clears and draws one interleaved textured quad whose tint pulses
// over the frame counter.
func drawQuad(r *translator.Runtime, frame int) {
	r.Clear(gles.ClearColor, [4]float32{0.1, 0.1, 0.15, 1}, 1, 0)

	tint := float32(0.5 + 0.5*math.Sin(float64(frame)*0.2))
	r.UniformWrite(1, gles.ShaderStageVertex, 0, floatSlice(tint, tint, 1, 1))

	// x, y, u, v interleaved; both attributes share the client array.
	verts := floatSlice(
		-0.8, -0.8, 0, 0,
		0.8, -0.8, 1, 0,
		0.8, 0.8, 1, 1,
		-0.8, 0.8, 0, 1,
	)
	quad := gles.ClientArray{ID: 1, Data: verts}
	r.VertexAttribBind(0, gles.VertexAttrib{
		Enabled: true,
		Source:  quad,
		Offset:  0,
		Stride:  16,
		Size:    2,
		Type:    gles.ComponentTypeFloat,
	})
	r.VertexAttribBind(1, gles.VertexAttrib{
		Enabled: true,
		Source:  quad,
		Offset:  8,
		Stride:  16,
		Size:    2,
		Type:    gles.ComponentTypeFloat,
	})
	r.TextureBind(0, 1)

	indices := []byte{0, 1, 2, 0, 2, 3}
	r.DrawElements(gles.PrimitiveTriangles, 6, gles.IndexTypeU8, gles.IndexSource{Data: indices})
}

func checkerboard(width, height int) []byte {
	pixels := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 4
			if (x/8+y/8)%2 == 0 {
				pixels[i], pixels[i+1], pixels[i+2] = 230, 230, 230
			} else {
				pixels[i], pixels[i+1], pixels[i+2] = 40, 40, 40
			}
			pixels[i+3] = 255
		}
	}
	return pixels
}

func floatSlice(vals ...float32) []byte {
	out := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}
