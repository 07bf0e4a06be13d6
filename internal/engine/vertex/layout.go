// Package vertex describes interleaved vertex records: which semantic fields a
// record carries, their component formats and byte offsets.
package vertex

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gogpu/gputypes"
)

// Layout validation errors.
var (
	ErrUnknownUsage    = errors.New("vertex: unknown usage")
	ErrDuplicateUsage  = errors.New("vertex: duplicate usage")
	ErrFormatMismatch  = errors.New("vertex: format does not match usage")
	ErrFieldOverlap    = errors.New("vertex: fields overlap")
	ErrStrideTooSmall  = errors.New("vertex: stride smaller than record")
	ErrUnalignedOffset = errors.New("vertex: float field not 4-byte aligned")
)

// Usage tags what a vertex field represents.
type Usage int

// Semantic usages. The set is closed; codecs switch over it exhaustively.
const (
	UsageUnknown Usage = iota
	UsagePosition
	UsageNormal
	UsageColor
	UsageUV0
	UsageUV1
	UsageTangent
	UsageBoneWeight
	UsageBoneIndices
)

var usageNames = [...]string{
	UsageUnknown:     "UNKNOWN",
	UsagePosition:    "POSITION",
	UsageNormal:      "NORMAL",
	UsageColor:       "COLOR",
	UsageUV0:         "UV0",
	UsageUV1:         "UV1",
	UsageTangent:     "TANGENT",
	UsageBoneWeight:  "BLENDWEIGHT",
	UsageBoneIndices: "BLENDINDICES",
}

func (u Usage) String() string {
	if u < 0 || int(u) >= len(usageNames) {
		return fmt.Sprintf("Usage(%d)", int(u))
	}
	return usageNames[u]
}

// Valid reports whether u is one of the known semantic usages.
func (u Usage) Valid() bool {
	return u > UsageUnknown && u <= UsageBoneIndices
}

// Location is the fixed shader input location of the usage.
func (u Usage) Location() uint32 {
	return uint32(u - 1)
}

// CanonicalFormat returns the component format every field of usage u must have.
func CanonicalFormat(u Usage) gputypes.VertexFormat {
	switch u {
	case UsagePosition, UsageNormal:
		return gputypes.VertexFormatFloat32x3
	case UsageUV0, UsageUV1:
		return gputypes.VertexFormatFloat32x2
	case UsageColor, UsageTangent, UsageBoneWeight:
		return gputypes.VertexFormatFloat32x4
	case UsageBoneIndices:
		return gputypes.VertexFormatUint8x4
	default:
		return gputypes.VertexFormatUndefined
	}
}

// ByteQuad is four unsigned bytes, the value type of bone indices.
type ByteQuad [4]uint8

// Element is one field of a vertex record.
type Element struct {
	Usage  Usage
	Format gputypes.VertexFormat
	Offset uint32
}

// Size returns the field size in bytes.
func (e Element) Size() uint32 {
	return uint32(e.Format.Size())
}

// End returns the first byte past the field.
func (e Element) End() uint32 {
	return e.Offset + e.Size()
}

// Layout is an ordered, immutable description of a vertex record.
type Layout struct {
	elements []Element
	stride   uint32
}

// NewLayout validates the elements against stride and builds a layout.
// Element order is preserved.
func NewLayout(stride uint32, elements ...Element) (*Layout, error) {
	seen := make(map[Usage]bool, len(elements))
	for _, e := range elements {
		if !e.Usage.Valid() {
			return nil, fmt.Errorf("%w: %v", ErrUnknownUsage, e.Usage)
		}
		if seen[e.Usage] {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateUsage, e.Usage)
		}
		seen[e.Usage] = true

		if e.Format != CanonicalFormat(e.Usage) {
			return nil, fmt.Errorf("%w: %v has %v, want %v", ErrFormatMismatch, e.Usage, e.Format, CanonicalFormat(e.Usage))
		}
		if e.Format != gputypes.VertexFormatUint8x4 && e.Offset%4 != 0 {
			return nil, fmt.Errorf("%w: %v at %d", ErrUnalignedOffset, e.Usage, e.Offset)
		}
		if e.End() > stride {
			return nil, fmt.Errorf("%w: %v ends at %d, stride %d", ErrStrideTooSmall, e.Usage, e.End(), stride)
		}
	}

	// Sort a copy by offset; neighbours must not intersect.
	byOffset := append([]Element(nil), elements...)
	sort.Slice(byOffset, func(i, j int) bool { return byOffset[i].Offset < byOffset[j].Offset })
	for i := 1; i < len(byOffset); i++ {
		prev, cur := byOffset[i-1], byOffset[i]
		if cur.Offset < prev.End() {
			return nil, fmt.Errorf("%w: %v and %v", ErrFieldOverlap, prev.Usage, cur.Usage)
		}
	}

	return &Layout{
		elements: append([]Element(nil), elements...),
		stride:   stride,
	}, nil
}

// Pack builds a tightly packed layout with canonical formats, fields in the
// given order.
func Pack(usages ...Usage) (*Layout, error) {
	elements := make([]Element, 0, len(usages))
	var offset uint32
	for _, u := range usages {
		e := Element{Usage: u, Format: CanonicalFormat(u), Offset: offset}
		elements = append(elements, e)
		offset += e.Size()
	}
	return NewLayout(offset, elements...)
}

// MustPack is Pack for static layouts; it panics on an invalid usage list.
func MustPack(usages ...Usage) *Layout {
	l, err := Pack(usages...)
	if err != nil {
		panic(err)
	}
	return l
}

// Stride returns the record size in bytes.
func (l *Layout) Stride() uint32 {
	return l.stride
}

// Elements returns a copy of the fields in declaration order.
func (l *Layout) Elements() []Element {
	return append([]Element(nil), l.elements...)
}

// Element looks up the field for usage u.
func (l *Layout) Element(u Usage) (Element, bool) {
	for _, e := range l.elements {
		if e.Usage == u {
			return e, true
		}
	}
	return Element{}, false
}

// Has reports whether the layout carries usage u.
func (l *Layout) Has(u Usage) bool {
	_, ok := l.Element(u)
	return ok
}

// BufferLayout converts the layout into a GPU vertex buffer layout.
func (l *Layout) BufferLayout(step gputypes.VertexStepMode) gputypes.VertexBufferLayout {
	attrs := make([]gputypes.VertexAttribute, len(l.elements))
	for i, e := range l.elements {
		attrs[i] = gputypes.VertexAttribute{
			Format:         e.Format,
			Offset:         uint64(e.Offset),
			ShaderLocation: e.Usage.Location(),
		}
	}
	return gputypes.VertexBufferLayout{
		ArrayStride: uint64(l.stride),
		StepMode:    step,
		Attributes:  attrs,
	}
}

// Equal reports whether two layouts describe the same record.
func (l *Layout) Equal(other *Layout) bool {
	if l == other {
		return true
	}
	if l == nil || other == nil || l.stride != other.stride || len(l.elements) != len(other.elements) {
		return false
	}
	for i := range l.elements {
		if l.elements[i] != other.elements[i] {
			return false
		}
	}
	return true
}

// String renders the layout as "USAGE:Format@offset,..." followed by the stride.
func (l *Layout) String() string {
	var b strings.Builder
	for i, e := range l.elements {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%v:%v@%d", e.Usage, e.Format, e.Offset)
	}
	fmt.Fprintf(&b, " stride=%d", l.stride)
	return b.String()
}
