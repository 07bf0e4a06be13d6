// Package glgpu implements gpu.Device on OpenGL 4.1 core buffer objects and
// vertex array objects.
// IMPORTANT: every call must happen on the thread owning the GL context.
package glgpu

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/gogpu/gputypes"

	"github.com/Faultbox/midgard-mesh/internal/engine/gpu"
)

// Device allocates GL buffer objects. gl.Init must have been called.
type Device struct {
	allocated int
}

var _ gpu.Device = (*Device)(nil)

// New returns a device bound to the current GL context.
func New() *Device {
	return &Device{}
}

// Allocated returns the bytes currently held in GL buffers created here.
func (d *Device) Allocated() int {
	return d.allocated
}

// CreateBuffer creates a buffer object with undefined contents.
// Buffers are allocated through the copy-write target so index buffers can be
// created without a bound vertex array.
func (d *Device) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	var id uint32
	gl.GenBuffers(1, &id)
	if id == 0 {
		return nil, fmt.Errorf("glGenBuffers failed for %s", desc.Label)
	}
	hint := uint32(gl.STATIC_DRAW)
	if desc.Usage&gputypes.BufferUsageCopyDst != 0 {
		hint = gl.DYNAMIC_DRAW
	}

	gl.BindBuffer(gl.COPY_WRITE_BUFFER, id)
	gl.BufferData(gl.COPY_WRITE_BUFFER, desc.Size, nil, hint)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)

	if errCode := gl.GetError(); errCode != gl.NO_ERROR {
		gl.DeleteBuffers(1, &id)
		return nil, fmt.Errorf("glBufferData %s (%d bytes): error 0x%x", desc.Label, desc.Size, errCode)
	}

	d.allocated += desc.Size
	return &Buffer{dev: d, id: id, size: desc.Size, label: desc.Label}, nil
}

// NewBufferState creates a vertex array object.
func (d *Device) NewBufferState() gpu.BufferState {
	var vao uint32
	gl.GenVertexArrays(1, &vao)
	return &BufferState{vao: vao}
}

// Buffer is a GL buffer object.
type Buffer struct {
	dev   *Device
	id    uint32
	size  int
	label string
}

// ID returns the GL buffer name.
func (b *Buffer) ID() uint32 { return b.id }

// Size returns the allocated size in bytes.
func (b *Buffer) Size() int { return b.size }

// Label returns the debug label.
func (b *Buffer) Label() string { return b.label }

// Upload replaces [offset, offset+len(data)) with glBufferSubData.
func (b *Buffer) Upload(offset int, data []byte) error {
	if b.id == 0 {
		return fmt.Errorf("upload to destroyed buffer %s", b.label)
	}
	if err := gpu.CheckRange(b.size, offset, len(data)); err != nil {
		return fmt.Errorf("%s: %w", b.label, err)
	}
	if len(data) == 0 {
		return nil
	}
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, b.id)
	gl.BufferSubData(gl.COPY_WRITE_BUFFER, offset, len(data), gl.Ptr(&data[0]))
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	return nil
}

// Destroy deletes the buffer object.
func (b *Buffer) Destroy() {
	if b.id == 0 {
		return
	}
	gl.DeleteBuffers(1, &b.id)
	b.id = 0
	b.dev.allocated -= b.size
}

// BufferState is a vertex array object.
type BufferState struct {
	vao uint32
}

// Bind binds the vertex array.
func (s *BufferState) Bind() {
	gl.BindVertexArray(s.vao)
}

// ApplyVertexBuffer points every attribute of layout at buf.
func (s *BufferState) ApplyVertexBuffer(buf gpu.Buffer, layout gputypes.VertexBufferLayout) {
	s.applyAttributes(buf, layout, 0)
}

// ApplyInstanceVertexBuffer is ApplyVertexBuffer with a divisor of one.
func (s *BufferState) ApplyInstanceVertexBuffer(buf gpu.Buffer, layout gputypes.VertexBufferLayout) {
	s.applyAttributes(buf, layout, 1)
}

func (s *BufferState) applyAttributes(buf gpu.Buffer, layout gputypes.VertexBufferLayout, divisor uint32) {
	gl.BindBuffer(gl.ARRAY_BUFFER, buf.(*Buffer).id)
	stride := int32(layout.ArrayStride)
	for _, attr := range layout.Attributes {
		size, xtype, normalized, integer := attribFormat(attr.Format)
		gl.EnableVertexAttribArray(attr.ShaderLocation)
		if integer {
			gl.VertexAttribIPointerWithOffset(attr.ShaderLocation, size, xtype, stride, uintptr(attr.Offset))
		} else {
			gl.VertexAttribPointerWithOffset(attr.ShaderLocation, size, xtype, normalized, stride, uintptr(attr.Offset))
		}
		gl.VertexAttribDivisor(attr.ShaderLocation, divisor)
	}
}

// ApplyIndexBuffer binds buf as the element array of the vertex array.
func (s *BufferState) ApplyIndexBuffer(buf gpu.Buffer, format gputypes.IndexFormat) {
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, buf.(*Buffer).id)
}

// UnBind unbinds the vertex array.
func (s *BufferState) UnBind() {
	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
}

// Destroy deletes the vertex array.
func (s *BufferState) Destroy() {
	if s.vao != 0 {
		gl.DeleteVertexArrays(1, &s.vao)
		s.vao = 0
	}
}

// attribFormat maps a vertex format to glVertexAttrib*Pointer arguments.
func attribFormat(f gputypes.VertexFormat) (size int32, xtype uint32, normalized, integer bool) {
	switch f {
	case gputypes.VertexFormatFloat32:
		return 1, gl.FLOAT, false, false
	case gputypes.VertexFormatFloat32x2:
		return 2, gl.FLOAT, false, false
	case gputypes.VertexFormatFloat32x3:
		return 3, gl.FLOAT, false, false
	case gputypes.VertexFormatFloat32x4:
		return 4, gl.FLOAT, false, false
	case gputypes.VertexFormatUint8x4:
		return 4, gl.UNSIGNED_BYTE, false, true
	case gputypes.VertexFormatUnorm8x4:
		return 4, gl.UNSIGNED_BYTE, true, false
	case gputypes.VertexFormatUint16x4:
		return 4, gl.UNSIGNED_SHORT, false, true
	case gputypes.VertexFormatUint32x4:
		return 4, gl.UNSIGNED_INT, false, true
	default:
		panic(fmt.Sprintf("glgpu: unsupported vertex format %v", f))
	}
}
