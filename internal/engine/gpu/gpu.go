// Package gpu defines the buffer and binding-state contract mesh resources
// use to reach the graphics device.
package gpu

import (
	"errors"

	"github.com/gogpu/gputypes"
)

// ErrBufferRange is returned when an upload falls outside the buffer.
var ErrBufferRange = errors.New("gpu: upload out of buffer range")

// BufferDescriptor describes a buffer to allocate.
type BufferDescriptor struct {
	Label string
	Usage gputypes.BufferUsage
	Size  int
}

// Buffer is a device-side byte buffer.
type Buffer interface {
	// Upload copies data into the buffer starting at offset.
	Upload(offset int, data []byte) error
	Size() int
	Label() string
	Destroy()
}

// BufferState captures which buffers feed a draw and how their bytes are
// interpreted. Calls are always made in the order
// Bind, Apply*, UnBind.
type BufferState interface {
	Bind()
	ApplyVertexBuffer(buf Buffer, layout gputypes.VertexBufferLayout)
	ApplyInstanceVertexBuffer(buf Buffer, layout gputypes.VertexBufferLayout)
	ApplyIndexBuffer(buf Buffer, format gputypes.IndexFormat)
	UnBind()
	Destroy()
}

// Device creates buffers and binding states.
type Device interface {
	CreateBuffer(desc BufferDescriptor) (Buffer, error)
	NewBufferState() BufferState
}

// CheckRange validates an upload of length bytes at offset into a buffer of size bytes.
func CheckRange(size, offset, length int) error {
	if offset < 0 || length < 0 || offset+length > size {
		return ErrBufferRange
	}
	return nil
}
