package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// mat4Size is the byte size of one float32 4x4 matrix.
const mat4Size = 64

// Shader locations of the per-instance matrices; they follow the vertex
// attribute locations.
const (
	WorldMatrixLocation = 8
	MVPMatrixLocation   = 12
)

// InstanceBatch holds the per-instance matrix buffers shared by every
// instanced mesh binding.
type InstanceBatch struct {
	MaxInstances int
	WorldMatrix  Buffer
	MVPMatrix    Buffer
}

// NewInstanceBatch allocates world and MVP matrix buffers for maxInstances.
func NewInstanceBatch(dev Device, maxInstances int) (*InstanceBatch, error) {
	if maxInstances <= 0 {
		return nil, fmt.Errorf("instance batch: max instances must be > 0, got %d", maxInstances)
	}
	usage := gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst

	world, err := dev.CreateBuffer(BufferDescriptor{
		Label: "instance.world",
		Usage: usage,
		Size:  maxInstances * mat4Size,
	})
	if err != nil {
		return nil, fmt.Errorf("instance world buffer: %w", err)
	}
	mvp, err := dev.CreateBuffer(BufferDescriptor{
		Label: "instance.mvp",
		Usage: usage,
		Size:  maxInstances * mat4Size,
	})
	if err != nil {
		world.Destroy()
		return nil, fmt.Errorf("instance mvp buffer: %w", err)
	}

	return &InstanceBatch{
		MaxInstances: maxInstances,
		WorldMatrix:  world,
		MVPMatrix:    mvp,
	}, nil
}

// Mat4Layout describes one per-instance matrix as four Float32x4 columns at
// consecutive shader locations.
func Mat4Layout(firstLocation uint32) gputypes.VertexBufferLayout {
	attrs := make([]gputypes.VertexAttribute, 4)
	for col := range attrs {
		attrs[col] = gputypes.VertexAttribute{
			Format:         gputypes.VertexFormatFloat32x4,
			Offset:         uint64(col * 16),
			ShaderLocation: firstLocation + uint32(col),
		}
	}
	return gputypes.VertexBufferLayout{
		ArrayStride: mat4Size,
		StepMode:    gputypes.VertexStepModeInstance,
		Attributes:  attrs,
	}
}

// Destroy releases both matrix buffers.
func (b *InstanceBatch) Destroy() {
	b.WorldMatrix.Destroy()
	b.MVPMatrix.Destroy()
}
