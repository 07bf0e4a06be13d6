package headless

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/Faultbox/midgard-mesh/internal/engine/gpu"
)

func TestUploadRecordsRange(t *testing.T) {
	dev := New()
	buf, err := dev.CreateBuffer(gpu.BufferDescriptor{Label: "vb", Size: 16})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}

	if err := buf.Upload(4, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	ups := dev.UploadsTo("vb")
	if len(ups) != 1 || ups[0] != (Upload{Buffer: "vb", Offset: 4, Length: 3}) {
		t.Errorf("uploads: got %+v", ups)
	}
	got := buf.(*Buffer).Contents()[4:7]
	if got[0] != 1 || got[2] != 3 {
		t.Errorf("contents: got %v, want [1 2 3]", got)
	}
}

func TestUploadOutOfRange(t *testing.T) {
	dev := New()
	buf, _ := dev.CreateBuffer(gpu.BufferDescriptor{Label: "vb", Size: 4})

	err := buf.Upload(2, []byte{1, 2, 3})
	if !errors.Is(err, gpu.ErrBufferRange) {
		t.Errorf("got %v, want ErrBufferRange", err)
	}
	if len(dev.Uploads()) != 0 {
		t.Error("failed upload should not be recorded")
	}
}

func TestLiveBuffers(t *testing.T) {
	dev := New()
	a, _ := dev.CreateBuffer(gpu.BufferDescriptor{Size: 1})
	b, _ := dev.CreateBuffer(gpu.BufferDescriptor{Size: 1})
	a.Destroy()
	a.Destroy()
	if dev.LiveBuffers() != 1 {
		t.Errorf("live buffers: got %d, want 1", dev.LiveBuffers())
	}
	b.Destroy()
	if dev.LiveBuffers() != 0 {
		t.Errorf("live buffers: got %d, want 0", dev.LiveBuffers())
	}
}

func TestBufferStateCalls(t *testing.T) {
	dev := New()
	vb, _ := dev.CreateBuffer(gpu.BufferDescriptor{Label: "vb", Size: 12})
	ib, _ := dev.CreateBuffer(gpu.BufferDescriptor{Label: "ib", Size: 6})
	st := dev.NewBufferState()

	st.Bind()
	st.ApplyVertexBuffer(vb, gputypes.VertexBufferLayout{ArrayStride: 12})
	st.ApplyIndexBuffer(ib, gputypes.IndexFormatUint16)
	st.UnBind()

	name := st.(*BufferState).Name()
	want := []string{
		name + ".Bind()",
		name + ".ApplyVertexBuffer(vb,stride=12)",
		name + ".ApplyIndexBuffer(ib,Uint16)",
		name + ".UnBind()",
	}
	calls := dev.Calls()
	if len(calls) != len(want) {
		t.Fatalf("calls: got %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d: got %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestInstanceBatch(t *testing.T) {
	dev := New()
	batch, err := gpu.NewInstanceBatch(dev, 8)
	if err != nil {
		t.Fatalf("NewInstanceBatch: %v", err)
	}
	if batch.WorldMatrix.Size() != 8*64 || batch.MVPMatrix.Size() != 8*64 {
		t.Errorf("matrix buffer sizes: got %d and %d, want 512", batch.WorldMatrix.Size(), batch.MVPMatrix.Size())
	}

	l := gpu.Mat4Layout(gpu.WorldMatrixLocation)
	if l.StepMode != gputypes.VertexStepModeInstance || len(l.Attributes) != 4 {
		t.Fatalf("Mat4Layout: got %+v", l)
	}
	if l.Attributes[3].Offset != 48 || l.Attributes[3].ShaderLocation != gpu.WorldMatrixLocation+3 {
		t.Errorf("last column: got %+v", l.Attributes[3])
	}

	batch.Destroy()
	if dev.LiveBuffers() != 0 {
		t.Errorf("live buffers after Destroy: got %d", dev.LiveBuffers())
	}

	if _, err := gpu.NewInstanceBatch(dev, 0); err == nil {
		t.Error("expected error for zero instances")
	}
}
