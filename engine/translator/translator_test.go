package translator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/prism/engine/gles"
	"github.com/spaghettifunk/prism/engine/native/virtual"
)

func newTestRuntime(t *testing.T) (*Runtime, *virtual.Device) {
	t.Helper()
	dev, err := virtual.NewDevice(virtual.DefaultConfig())
	require.NoError(t, err)
	r := New(dev, DefaultConfig())
	require.NoError(t, r.Initialize("test", 960, 544))
	t.Cleanup(func() { _ = r.Shutdown() })
	return r, dev
}

// linkTestProgram loads two dummy shader blobs and links them into program 1,
// which it leaves bound.
func linkTestProgram(t *testing.T, r *Runtime) gles.ProgramHandle {
	t.Helper()
	dir := t.TempDir()
	vert := filepath.Join(dir, "vert.bin")
	frag := filepath.Join(dir, "frag.bin")
	require.NoError(t, os.WriteFile(vert, []byte("vertex-shader-binary-blob"), 0o644))
	require.NoError(t, os.WriteFile(frag, []byte("fragment-shader-binary-blob"), 0o644))

	require.NoError(t, r.ShaderLoad(1, gles.ShaderStageVertex, vert))
	require.NoError(t, r.ShaderLoad(2, gles.ShaderStageFragment, frag))
	require.NoError(t, r.ProgramLink(1, 1, 2))
	r.ProgramBind(1)
	return 1
}

// flushFrame submits whatever the current slot recorded so the virtual
// device executes it.
func flushFrame(t *testing.T, r *Runtime) {
	t.Helper()
	r.Flush()
}

func TestInitializeAndShutdown(t *testing.T) {
	dev, err := virtual.NewDevice(virtual.DefaultConfig())
	require.NoError(t, err)
	r := New(dev, nil)
	require.NoError(t, r.Initialize("test", 960, 544))
	require.Error(t, r.Initialize("test", 960, 544), "double init must fail")
	require.NoError(t, r.Shutdown())
	require.NoError(t, r.Shutdown(), "shutdown is idempotent")
}

func TestFrameLoopCyclesSlots(t *testing.T) {
	r, dev := newTestRuntime(t)

	for i := 0; i < 9; i++ {
		require.NoError(t, r.BeginFrame())
		r.Clear(gles.ClearColor, [4]float32{0, 0, 0, 1}, 1, 0)
		require.NoError(t, r.EndFrame())
		require.NoError(t, r.Present())
	}
	require.GreaterOrEqual(t, dev.Submissions(), uint64(9))
}

func TestWaitFenceWithoutSubmissionIsNoop(t *testing.T) {
	r, _ := newTestRuntime(t)
	require.NoError(t, r.WaitFence(0))
	require.Error(t, r.WaitFence(99))
}

func TestEndFrameOnFaultedQueueMarksSubmitted(t *testing.T) {
	r, dev := newTestRuntime(t)
	require.NoError(t, r.BeginFrame())
	dev.InjectFault()

	before := dev.Submissions()
	require.Error(t, r.EndFrame())
	require.Equal(t, before, dev.Submissions(), "no submission on a faulted queue")
	require.True(t, r.slot().submitted, "slot still marked submitted to avoid a double submit")

	// The scheduler stays consistent for the next frame boundary.
	require.Error(t, r.BeginFrame())
}

func TestFlushKeepsRecordingConsistent(t *testing.T) {
	r, dev := newTestRuntime(t)
	linkTestProgram(t, r)

	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
	r.Flush()
	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
	r.Flush()
	r.Finish()

	require.Len(t, dev.Trace(), 2)
}

func TestUniformSnapshotIsolation(t *testing.T) {
	r, dev := newTestRuntime(t)
	prog := linkTestProgram(t, r)

	require.NoError(t, r.UniformAllocate(prog, gles.ShaderStageVertex, 4))

	r.UniformWrite(prog, gles.ShaderStageVertex, 0, []byte{1, 1, 1, 1})
	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
	r.UniformWrite(prog, gles.ShaderStageVertex, 0, []byte{2, 2, 2, 2})
	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
	flushFrame(t, r)

	trace := dev.Trace()
	require.Len(t, trace, 2)
	// Each draw observes the value live at record time, not the last write.
	require.Equal(t, []byte{1, 1, 1, 1}, trace[0].Uniforms[0])
	require.Equal(t, []byte{2, 2, 2, 2}, trace[1].Uniforms[0])
}

func TestDrawWithoutProgramIsSkipped(t *testing.T) {
	r, dev := newTestRuntime(t)
	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
	flushFrame(t, r)
	require.Empty(t, dev.Trace())
	require.NotZero(t, r.Statistics().SkippedOps)
}

func TestProgramOutlivesDeletedShaders(t *testing.T) {
	r, dev := newTestRuntime(t)
	prog := linkTestProgram(t, r)

	// Simulate API-level shader deletion: wipe the shader records. The
	// program holds its own copies of the binaries.
	r.shaders[1] = shaderRecord{}
	r.shaders[2] = shaderRecord{}

	r.ProgramBind(prog)
	r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
	flushFrame(t, r)
	require.Len(t, dev.Trace(), 1)
}

func TestFrameIsolationOfClientRanges(t *testing.T) {
	r, dev := newTestRuntime(t)
	linkTestProgram(t, r)

	verts := make([]byte, 36)
	attrib := gles.VertexAttrib{
		Enabled: true,
		Source:  gles.ClientArray{ID: 7, Data: verts},
		Size:    3, Type: gles.ComponentTypeFloat,
	}

	offsets := make([]uint64, 0, 4)
	for frame := 0; frame < 4; frame++ {
		require.NoError(t, r.BeginFrame())
		r.VertexAttribBind(0, attrib)
		r.DrawArrays(gles.PrimitiveTriangles, 0, 3)
		require.NoError(t, r.EndFrame())
		require.NoError(t, r.Present())
	}

	for _, ev := range dev.Trace() {
		require.Len(t, ev.Bindings, 1)
		offsets = append(offsets, ev.Bindings[0].Offset)
	}
	require.Len(t, offsets, 4)
	// Three frames in flight get three disjoint sub-ranges...
	require.NotEqual(t, offsets[0], offsets[1])
	require.NotEqual(t, offsets[1], offsets[2])
	require.NotEqual(t, offsets[0], offsets[2])
	// ...and the fourth frame reuses the first slot only because its fence
	// has signaled and its cursor was reset.
	require.Equal(t, offsets[0], offsets[3])
}
