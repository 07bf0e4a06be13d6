// Package buffer owns raw vertex and index storage, its GPU mirror and the
// readable/unreadable lifecycle.
package buffer

import (
	"encoding/binary"
	"errors"
	"fmt"
	gomath "math"

	"github.com/gogpu/gputypes"

	"github.com/Faultbox/midgard-mesh/internal/engine/gpu"
	"github.com/Faultbox/midgard-mesh/internal/engine/vertex"
)

// Buffer errors.
var (
	ErrNotReadable  = errors.New("buffer: CPU copy released (not readable)")
	ErrSizeMismatch = errors.New("buffer: byte length is not a multiple of the stride")
	ErrOutOfRange   = errors.New("buffer: range outside storage")
	ErrDestroyed    = errors.New("buffer: destroyed")
)

// VertexBuffer holds interleaved vertex records described by a layout.
//
// The CPU copy is a single byte arena. Float32At/SetFloat32At and
// Uint8At/SetUint8At are two typed views over the same bytes: a write
// through either is visible through the other at the same offset.
type VertexBuffer struct {
	layout     *vertex.Layout
	data       []byte
	byteLength int
	readable   bool
	dirty      DirtyRange
	gpu        gpu.Buffer
	dev        gpu.Device
	label      string
}

// NewVertexBuffer copies data into a new buffer and uploads it in full.
func NewVertexBuffer(dev gpu.Device, label string, layout *vertex.Layout, data []byte, readable bool) (*VertexBuffer, error) {
	stride := int(layout.Stride())
	if stride == 0 || len(data)%stride != 0 {
		return nil, fmt.Errorf("%w: %d bytes, stride %d", ErrSizeMismatch, len(data), stride)
	}

	vb := &VertexBuffer{
		layout:     layout,
		byteLength: len(data),
		readable:   readable,
		dev:        dev,
		label:      label,
	}
	if err := vb.allocate(len(data)); err != nil {
		return nil, err
	}
	if err := vb.gpu.Upload(0, data); err != nil {
		vb.gpu.Destroy()
		return nil, fmt.Errorf("initial vertex upload: %w", err)
	}
	if readable {
		vb.data = append([]byte(nil), data...)
	}
	return vb, nil
}

func (vb *VertexBuffer) allocate(size int) error {
	buf, err := vb.dev.CreateBuffer(gpu.BufferDescriptor{
		Label: vb.label,
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
		Size:  size,
	})
	if err != nil {
		return fmt.Errorf("create vertex buffer: %w", err)
	}
	vb.gpu = buf
	return nil
}

// Layout returns the record layout.
func (vb *VertexBuffer) Layout() *vertex.Layout { return vb.layout }

// Count returns the number of vertex records.
func (vb *VertexBuffer) Count() int { return vb.byteLength / int(vb.layout.Stride()) }

// ByteLength returns the size of the vertex data in bytes.
func (vb *VertexBuffer) ByteLength() int { return vb.byteLength }

// Readable reports whether the CPU copy is retained.
func (vb *VertexBuffer) Readable() bool { return vb.readable }

// GPU returns the device-side buffer.
func (vb *VertexBuffer) GPU() gpu.Buffer { return vb.gpu }

// Bytes returns the CPU byte arena. The slice aliases the buffer storage.
func (vb *VertexBuffer) Bytes() ([]byte, error) {
	if err := vb.check(); err != nil {
		return nil, err
	}
	return vb.data, nil
}

func (vb *VertexBuffer) check() error {
	if vb.gpu == nil {
		return ErrDestroyed
	}
	if !vb.readable {
		return ErrNotReadable
	}
	return nil
}

func (vb *VertexBuffer) span(offset, size int) error {
	if offset < 0 || offset+size > vb.byteLength {
		return fmt.Errorf("%w: [%d,%d) of %d", ErrOutOfRange, offset, offset+size, vb.byteLength)
	}
	return nil
}

// Float32At reads a little-endian float at byte offset.
func (vb *VertexBuffer) Float32At(offset int) (float32, error) {
	if err := vb.check(); err != nil {
		return 0, err
	}
	if err := vb.span(offset, 4); err != nil {
		return 0, err
	}
	return gomath.Float32frombits(binary.LittleEndian.Uint32(vb.data[offset:])), nil
}

// SetFloat32At writes a little-endian float at byte offset. It does not
// touch the dirty range.
func (vb *VertexBuffer) SetFloat32At(offset int, v float32) error {
	if err := vb.check(); err != nil {
		return err
	}
	if err := vb.span(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(vb.data[offset:], gomath.Float32bits(v))
	return nil
}

// Uint8At reads the byte at offset.
func (vb *VertexBuffer) Uint8At(offset int) (uint8, error) {
	if err := vb.check(); err != nil {
		return 0, err
	}
	if err := vb.span(offset, 1); err != nil {
		return 0, err
	}
	return vb.data[offset], nil
}

// SetUint8At writes the byte at offset. It does not touch the dirty range.
func (vb *VertexBuffer) SetUint8At(offset int, v uint8) error {
	if err := vb.check(); err != nil {
		return err
	}
	if err := vb.span(offset, 1); err != nil {
		return err
	}
	vb.data[offset] = v
	return nil
}

// Touch records [start, end) as modified since the last flush. It is
// ignored once the CPU copy is gone.
func (vb *VertexBuffer) Touch(start, end int) {
	if !vb.readable {
		return
	}
	vb.dirty.Touch(start, end)
}

// Dirty returns the pending modified range.
func (vb *VertexBuffer) Dirty() DirtyRange {
	return vb.dirty
}

// Flush uploads the pending dirty range in one transfer and clears it.
// It is a no-op when nothing is pending.
func (vb *VertexBuffer) Flush() error {
	if vb.dirty.Empty() {
		return nil
	}
	if err := vb.check(); err != nil {
		vb.dirty.Reset()
		return err
	}
	start, end := vb.dirty.Span()
	if err := vb.gpu.Upload(start, vb.data[start:end]); err != nil {
		return fmt.Errorf("flush vertex range [%d,%d): %w", start, end, err)
	}
	vb.dirty.Reset()
	return nil
}

// SetData copies length bytes of src starting at srcOffset into the buffer at
// dstOffset and uploads exactly that range. The dirty range is left alone.
// On an unreadable buffer only the upload happens.
func (vb *VertexBuffer) SetData(src []byte, dstOffset, srcOffset, length int) error {
	if vb.gpu == nil {
		return ErrDestroyed
	}
	if srcOffset < 0 || length < 0 || srcOffset+length > len(src) {
		return fmt.Errorf("%w: source [%d,%d) of %d", ErrOutOfRange, srcOffset, srcOffset+length, len(src))
	}
	if err := vb.span(dstOffset, length); err != nil {
		return err
	}
	chunk := src[srcOffset : srcOffset+length]
	if vb.readable {
		copy(vb.data[dstOffset:], chunk)
	}
	if err := vb.gpu.Upload(dstOffset, chunk); err != nil {
		return fmt.Errorf("upload vertex range [%d,%d): %w", dstOffset, dstOffset+length, err)
	}
	return nil
}

// ReplaceAll reloads the whole buffer from src. The vertex count follows
// len(src); the GPU buffer is reallocated when the size changes.
func (vb *VertexBuffer) ReplaceAll(src []byte) error {
	if vb.gpu == nil {
		return ErrDestroyed
	}
	stride := int(vb.layout.Stride())
	if len(src)%stride != 0 {
		return fmt.Errorf("%w: %d bytes, stride %d", ErrSizeMismatch, len(src), stride)
	}
	if len(src) != vb.byteLength {
		old := vb.gpu
		if err := vb.allocate(len(src)); err != nil {
			return err
		}
		old.Destroy()
		vb.byteLength = len(src)
	}
	if err := vb.gpu.Upload(0, src); err != nil {
		return fmt.Errorf("reload vertex buffer: %w", err)
	}
	if vb.readable {
		vb.data = append(vb.data[:0], src...)
	}
	vb.dirty.Reset()
	return nil
}

// MarkUnreadable flushes pending writes and releases the CPU copy. It cannot
// be undone.
func (vb *VertexBuffer) MarkUnreadable() error {
	if !vb.readable {
		return nil
	}
	if err := vb.Flush(); err != nil {
		return err
	}
	vb.data = nil
	vb.readable = false
	return nil
}

// Clone deep-copies the buffer onto dev. The source must be readable.
func (vb *VertexBuffer) Clone(dev gpu.Device, label string) (*VertexBuffer, error) {
	data, err := vb.Bytes()
	if err != nil {
		return nil, err
	}
	return NewVertexBuffer(dev, label, vb.layout, data, vb.readable)
}

// Destroy releases the GPU buffer and the CPU copy.
func (vb *VertexBuffer) Destroy() {
	if vb.gpu != nil {
		vb.gpu.Destroy()
		vb.gpu = nil
	}
	vb.data = nil
	vb.dirty.Reset()
}
