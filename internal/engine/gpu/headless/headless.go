// Package headless implements gpu.Device in memory, recording every upload
// and binding call. It backs tests and GPU-less tooling.
package headless

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/Faultbox/midgard-mesh/internal/engine/gpu"
)

// Upload is one recorded transfer into a buffer.
type Upload struct {
	Buffer string
	Offset int
	Length int
}

// Device records buffer traffic. The zero value is ready to use.
type Device struct {
	uploads []Upload
	calls   []string
	live    int
	next    int
}

var _ gpu.Device = (*Device)(nil)

// New returns an empty recording device.
func New() *Device {
	return &Device{}
}

// CreateBuffer allocates an in-memory buffer.
func (d *Device) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	if desc.Size < 0 {
		return nil, fmt.Errorf("headless: negative buffer size %d", desc.Size)
	}
	d.next++
	d.live++
	label := desc.Label
	if label == "" {
		label = fmt.Sprintf("buffer#%d", d.next)
	}
	return &Buffer{dev: d, label: label, usage: desc.Usage, data: make([]byte, desc.Size)}, nil
}

// NewBufferState returns a state that logs its calls on the device.
func (d *Device) NewBufferState() gpu.BufferState {
	d.next++
	return &BufferState{dev: d, name: fmt.Sprintf("state#%d", d.next)}
}

// Uploads returns the uploads recorded so far.
func (d *Device) Uploads() []Upload {
	return append([]Upload(nil), d.uploads...)
}

// UploadsTo returns the uploads recorded for the named buffer.
func (d *Device) UploadsTo(label string) []Upload {
	var out []Upload
	for _, u := range d.uploads {
		if u.Buffer == label {
			out = append(out, u)
		}
	}
	return out
}

// Calls returns the binding-state calls recorded so far, e.g.
// "state#3.ApplyIndexBuffer(mesh.ib)".
func (d *Device) Calls() []string {
	return append([]string(nil), d.calls...)
}

// LiveBuffers is the number of buffers created and not yet destroyed.
func (d *Device) LiveBuffers() int {
	return d.live
}

// Reset forgets recorded uploads and calls.
func (d *Device) Reset() {
	d.uploads = nil
	d.calls = nil
}

// Buffer is an in-memory gpu.Buffer.
type Buffer struct {
	dev       *Device
	label     string
	usage     gputypes.BufferUsage
	data      []byte
	destroyed bool
}

// Upload copies data at offset and records the transfer.
func (b *Buffer) Upload(offset int, data []byte) error {
	if b.destroyed {
		return fmt.Errorf("headless: upload to destroyed buffer %s", b.label)
	}
	if err := gpu.CheckRange(len(b.data), offset, len(data)); err != nil {
		return fmt.Errorf("%s [%d,%d) of %d: %w", b.label, offset, offset+len(data), len(b.data), err)
	}
	copy(b.data[offset:], data)
	b.dev.uploads = append(b.dev.uploads, Upload{Buffer: b.label, Offset: offset, Length: len(data)})
	return nil
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() int { return len(b.data) }

// Label returns the buffer label.
func (b *Buffer) Label() string { return b.label }

// Usage returns the usage flags the buffer was created with.
func (b *Buffer) Usage() gputypes.BufferUsage { return b.usage }

// Contents returns a copy of the device-side bytes.
func (b *Buffer) Contents() []byte {
	return append([]byte(nil), b.data...)
}

// Destroy releases the buffer.
func (b *Buffer) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.data = nil
	b.dev.live--
}

// BufferState records its calls on the owning device.
type BufferState struct {
	dev       *Device
	name      string
	bound     bool
	destroyed bool
}

func (s *BufferState) record(call string) {
	s.dev.calls = append(s.dev.calls, s.name+"."+call)
}

// Bind starts a binding sequence.
func (s *BufferState) Bind() {
	s.bound = true
	s.record("Bind()")
}

// ApplyVertexBuffer records a per-vertex buffer.
func (s *BufferState) ApplyVertexBuffer(buf gpu.Buffer, layout gputypes.VertexBufferLayout) {
	s.record(fmt.Sprintf("ApplyVertexBuffer(%s,stride=%d)", buf.Label(), layout.ArrayStride))
}

// ApplyInstanceVertexBuffer records a per-instance buffer.
func (s *BufferState) ApplyInstanceVertexBuffer(buf gpu.Buffer, layout gputypes.VertexBufferLayout) {
	s.record(fmt.Sprintf("ApplyInstanceVertexBuffer(%s,stride=%d)", buf.Label(), layout.ArrayStride))
}

// ApplyIndexBuffer records the index buffer.
func (s *BufferState) ApplyIndexBuffer(buf gpu.Buffer, format gputypes.IndexFormat) {
	s.record(fmt.Sprintf("ApplyIndexBuffer(%s,%v)", buf.Label(), format))
}

// UnBind ends a binding sequence.
func (s *BufferState) UnBind() {
	s.bound = false
	s.record("UnBind()")
}

// Destroy releases the state.
func (s *BufferState) Destroy() {
	s.destroyed = true
	s.record("Destroy()")
}

// Destroyed reports whether Destroy was called.
func (s *BufferState) Destroyed() bool { return s.destroyed }

// Name returns the state's recording prefix.
func (s *BufferState) Name() string { return s.name }
