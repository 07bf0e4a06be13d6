package buffer

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/Faultbox/midgard-mesh/internal/engine/gpu"
)

// IndexFormat is the element format of every index buffer.
const IndexFormat = gputypes.IndexFormatUint16

// IndexBuffer holds 16-bit triangle-list indices.
type IndexBuffer struct {
	indices  []uint16
	count    int
	readable bool
	gpu      gpu.Buffer
	dev      gpu.Device
	label    string
}

// NewIndexBuffer copies indices into a new buffer and uploads them.
func NewIndexBuffer(dev gpu.Device, label string, indices []uint16, readable bool) (*IndexBuffer, error) {
	buf, err := dev.CreateBuffer(gpu.BufferDescriptor{
		Label: label,
		Usage: gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst,
		Size:  len(indices) * 2,
	})
	if err != nil {
		return nil, fmt.Errorf("create index buffer: %w", err)
	}
	if err := buf.Upload(0, encodeIndices(indices)); err != nil {
		buf.Destroy()
		return nil, fmt.Errorf("initial index upload: %w", err)
	}

	ib := &IndexBuffer{
		count:    len(indices),
		readable: readable,
		gpu:      buf,
		dev:      dev,
		label:    label,
	}
	if readable {
		ib.indices = append([]uint16(nil), indices...)
	}
	return ib, nil
}

func encodeIndices(indices []uint16) []byte {
	out := make([]byte, len(indices)*2)
	for i, v := range indices {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}

// Count returns the number of indices.
func (ib *IndexBuffer) Count() int { return ib.count }

// ByteLength returns the index data size in bytes.
func (ib *IndexBuffer) ByteLength() int { return ib.count * 2 }

// Readable reports whether the CPU copy is retained.
func (ib *IndexBuffer) Readable() bool { return ib.readable }

// GPU returns the device-side buffer.
func (ib *IndexBuffer) GPU() gpu.Buffer { return ib.gpu }

func (ib *IndexBuffer) check() error {
	if ib.gpu == nil {
		return ErrDestroyed
	}
	if !ib.readable {
		return ErrNotReadable
	}
	return nil
}

// Indices returns a copy of all indices.
func (ib *IndexBuffer) Indices() ([]uint16, error) {
	if err := ib.check(); err != nil {
		return nil, err
	}
	return append([]uint16(nil), ib.indices...), nil
}

// Slice returns count indices starting at start. The slice aliases the
// buffer storage; writes to it are not uploaded.
func (ib *IndexBuffer) Slice(start, count int) ([]uint16, error) {
	if err := ib.check(); err != nil {
		return nil, err
	}
	if start < 0 || count < 0 || start+count > ib.count {
		return nil, fmt.Errorf("%w: indices [%d,%d) of %d", ErrOutOfRange, start, start+count, ib.count)
	}
	return ib.indices[start : start+count : start+count], nil
}

// SetData overwrites indices starting at offset and uploads that range.
func (ib *IndexBuffer) SetData(indices []uint16, offset int) error {
	if ib.gpu == nil {
		return ErrDestroyed
	}
	if offset < 0 || offset+len(indices) > ib.count {
		return fmt.Errorf("%w: indices [%d,%d) of %d", ErrOutOfRange, offset, offset+len(indices), ib.count)
	}
	if ib.readable {
		copy(ib.indices[offset:], indices)
	}
	if err := ib.gpu.Upload(offset*2, encodeIndices(indices)); err != nil {
		return fmt.Errorf("upload index range: %w", err)
	}
	return nil
}

// Clone deep-copies the buffer onto dev. The source must be readable.
func (ib *IndexBuffer) Clone(dev gpu.Device, label string) (*IndexBuffer, error) {
	if err := ib.check(); err != nil {
		return nil, err
	}
	return NewIndexBuffer(dev, label, ib.indices, ib.readable)
}

// Destroy releases the GPU buffer and the CPU copy.
func (ib *IndexBuffer) Destroy() {
	if ib.gpu != nil {
		ib.gpu.Destroy()
		ib.gpu = nil
	}
	ib.indices = nil
}
