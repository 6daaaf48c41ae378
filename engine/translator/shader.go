package translator

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/gles"
	"github.com/spaghettifunk/prism/engine/native"
)

// ShaderLoad copies a precompiled shader binary into aligned code memory and
// records its offset. Nothing is parsed here: the blob's structure is an
// external contract and only its size is checked.
func (r *Runtime) ShaderLoad(handle gles.ShaderHandle, stage gles.ShaderStage, path string) error {
	rec := r.shader(handle)
	if rec == nil {
		return fmt.Errorf("%w: shader %d", core.ErrNoHandle, handle)
	}
	data, err := r.blobs.Load(path)
	if err != nil {
		core.LogError("shader blob '%s': %v", path, err)
		return err
	}
	if uint64(len(data)) == 0 || uint64(len(data)) > r.cfg.MaxShaderBlobSize {
		err := fmt.Errorf("shader blob '%s' has unusable size %d", path, len(data))
		core.LogError(err.Error())
		return err
	}
	ref, err := r.placeCode(data)
	if err != nil {
		return err
	}
	*rec = shaderRecord{loaded: true, stage: stage, ref: ref}
	core.LogDebug("shader %d loaded from '%s' (%d bytes at code offset %d)", handle, path, len(data), ref.Offset)
	return nil
}

// placeCode bump-allocates a range of the code region and copies data there.
func (r *Runtime) placeCode(data []byte) (native.ShaderRef, error) {
	offset, err := r.codeArena.Allocate(uint64(len(data)), r.limits.BufferAlign)
	if err != nil {
		return native.ShaderRef{}, err
	}
	copy(r.device.MapRegion(native.RegionCode)[offset:], data)
	return native.ShaderRef{Offset: offset, Size: uint64(len(data))}, nil
}

// ProgramLink copies each stage's shader bytes into fresh per-program code
// storage. The program never references the source shader handles again, so
// deleting them at the API layer leaves the program bindable.
func (r *Runtime) ProgramLink(handle gles.ProgramHandle, vertex, fragment gles.ShaderHandle) error {
	prog := r.program(handle)
	if prog == nil {
		return fmt.Errorf("%w: program %d", core.ErrNoHandle, handle)
	}
	stages := [gles.ShaderStageCount]gles.ShaderHandle{vertex, fragment}
	linked := programRecord{}
	code := r.device.MapRegion(native.RegionCode)
	for i, sh := range stages {
		src := r.shader(sh)
		if src == nil || !src.loaded {
			core.LogWarn("program %d links unloaded shader %d for stage %d", handle, sh, i)
			continue
		}
		ref, err := r.codeArenaCopy(code, src.ref)
		if err != nil {
			return err
		}
		linked.stages[i] = ref
		linked.stageValid[i] = true
	}
	linked.linked = linked.stageValid[gles.ShaderStageVertex] && linked.stageValid[gles.ShaderStageFragment]
	linked.uniforms = prog.uniforms
	*prog = linked
	if !prog.linked {
		return fmt.Errorf("program %d incomplete after link", handle)
	}
	return nil
}

func (r *Runtime) codeArenaCopy(code []byte, src native.ShaderRef) (native.ShaderRef, error) {
	offset, err := r.codeArena.Allocate(src.Size, r.limits.BufferAlign)
	if err != nil {
		return native.ShaderRef{}, err
	}
	copy(code[offset:], code[src.Offset:src.Offset+src.Size])
	return native.ShaderRef{Offset: offset, Size: src.Size}, nil
}

// ProgramBind selects the program whose shader set and uniform snapshots the
// next draws use. Binding an unlinked program is a silent no-op.
func (r *Runtime) ProgramBind(handle gles.ProgramHandle) {
	prog := r.program(handle)
	if prog == nil || !prog.linked {
		if handle != gles.NoHandle {
			core.LogWarn("bind of unlinked program %d ignored", handle)
		}
		r.boundProgram = gles.NoHandle
		return
	}
	r.boundProgram = handle
}

// UniformAllocate reserves the CPU-side value block for one stage of a
// program. The block's bytes travel into the command stream at draw-record
// time, never as a live pointer.
func (r *Runtime) UniformAllocate(program gles.ProgramHandle, stage gles.ShaderStage, size uint32) error {
	prog := r.program(program)
	if prog == nil {
		return fmt.Errorf("%w: program %d", core.ErrNoHandle, program)
	}
	if stage < 0 || stage >= gles.ShaderStageCount {
		return fmt.Errorf("uniform allocate for invalid stage %d", stage)
	}
	prog.uniforms[stage] = make([]byte, size)
	return nil
}

func (r *Runtime) UniformWrite(program gles.ProgramHandle, stage gles.ShaderStage, offset uint32, data []byte) {
	prog := r.program(program)
	if prog == nil || stage < 0 || stage >= gles.ShaderStageCount {
		return
	}
	block := prog.uniforms[stage]
	if int(offset)+len(data) > len(block) {
		core.LogWarn("uniform write out of range on program %d stage %d", program, stage)
		r.stats.SkippedOps++
		return
	}
	copy(block[offset:], data)
}

// pushProgramState records the bound program's shaders and snapshots its
// uniform blocks into the command stream. The bytes are also parked in the
// current slot's uniform sub-range, which is why that range only resets after
// the slot's fence: the snapshots must outlive recording, not execution.
func (r *Runtime) pushProgramState(cb native.CommandBuffer) bool {
	prog := r.program(r.boundProgram)
	if prog == nil || !prog.linked {
		return false
	}
	cb.BindShaders(prog.stages[gles.ShaderStageVertex], prog.stages[gles.ShaderStageFragment])
	data := r.device.MapRegion(native.RegionData)
	for stage := 0; stage < int(gles.ShaderStageCount); stage++ {
		block := prog.uniforms[stage]
		if len(block) == 0 {
			continue
		}
		offset, err := r.uniformArenas[r.current].Allocate(uint64(len(block)), r.limits.UniformAlign)
		if err != nil {
			r.stats.SkippedOps++
			return false
		}
		copy(data[offset:], block)
		cb.PushUniforms(stage, data[offset:offset+uint64(len(block))])
	}
	return true
}
