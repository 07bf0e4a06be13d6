package mesh

import (
	"fmt"

	"github.com/Faultbox/midgard-mesh/internal/engine/buffer"
	"github.com/Faultbox/midgard-mesh/internal/engine/vertex"
	"github.com/Faultbox/midgard-mesh/pkg/math"
)

// attribute is the set of value types a vertex field decodes to.
type attribute interface {
	math.Vec2 | math.Vec3 | math.Vec4 | math.Color | vertex.ByteQuad
}

// accepts reports whether values of type T are the canonical type of usage u.
func accepts[T attribute](u vertex.Usage) bool {
	var zero T
	switch any(zero).(type) {
	case math.Vec3:
		return u == vertex.UsagePosition || u == vertex.UsageNormal
	case math.Vec2:
		return u == vertex.UsageUV0 || u == vertex.UsageUV1
	case math.Vec4:
		return u == vertex.UsageTangent || u == vertex.UsageBoneWeight
	case math.Color:
		return u == vertex.UsageColor
	case vertex.ByteQuad:
		return u == vertex.UsageBoneIndices
	}
	return false
}

// lookup resolves the field for u. A missing field is reported as ok=false
// with a nil error.
func lookup[T attribute](vb *buffer.VertexBuffer, u vertex.Usage) (vertex.Element, bool, error) {
	if !u.Valid() || !accepts[T](u) {
		return vertex.Element{}, false, fmt.Errorf("%w: %v as %T", ErrUnsupportedAttribute, u, *new(T))
	}
	if !vb.Readable() {
		return vertex.Element{}, false, ErrNotReadable
	}
	e, ok := vb.Layout().Element(u)
	return e, ok, nil
}

// readAttribute decodes field u of every record. It returns nil when the
// layout has no such field.
func readAttribute[T attribute](vb *buffer.VertexBuffer, u vertex.Usage) ([]T, error) {
	e, ok, err := lookup[T](vb, u)
	if err != nil || !ok {
		return nil, err
	}

	stride := int(vb.Layout().Stride())
	out := make([]T, vb.Count())
	for i := range out {
		if err := decode(vb, i*stride+int(e.Offset), &out[i]); err != nil {
			return nil, fmt.Errorf("read %v of vertex %d: %w", u, i, err)
		}
	}
	return out, nil
}

// writeAttribute encodes values into field u of records
// first..first+len(values)-1 and touches each written field. A missing field
// fails with ErrAttributeMissing and changes nothing.
func writeAttribute[T attribute](vb *buffer.VertexBuffer, u vertex.Usage, first int, values []T) error {
	e, ok, err := lookup[T](vb, u)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %v", ErrAttributeMissing, u)
	}
	if first < 0 || first+len(values) > vb.Count() {
		return fmt.Errorf("%w: %d values from vertex %d of %d", ErrTooManyValues, len(values), first, vb.Count())
	}

	stride := int(vb.Layout().Stride())
	size := int(e.Size())
	for i, v := range values {
		base := (first+i)*stride + int(e.Offset)
		if err := encode(vb, base, v); err != nil {
			return fmt.Errorf("write %v of vertex %d: %w", u, first+i, err)
		}
		vb.Touch(base, base+size)
	}
	return nil
}

func decode[T attribute](vb *buffer.VertexBuffer, base int, dst *T) error {
	switch p := any(dst).(type) {
	case *math.Vec2:
		f, err := floats(vb, base, 2)
		*p = math.Vec2{X: f[0], Y: f[1]}
		return err
	case *math.Vec3:
		f, err := floats(vb, base, 3)
		*p = math.Vec3{X: f[0], Y: f[1], Z: f[2]}
		return err
	case *math.Vec4:
		f, err := floats(vb, base, 4)
		*p = math.Vec4{X: f[0], Y: f[1], Z: f[2], W: f[3]}
		return err
	case *math.Color:
		f, err := floats(vb, base, 4)
		*p = math.Color{R: f[0], G: f[1], B: f[2], A: f[3]}
		return err
	case *vertex.ByteQuad:
		for k := range p {
			b, err := vb.Uint8At(base + k)
			if err != nil {
				return err
			}
			p[k] = b
		}
	}
	return nil
}

func floats(vb *buffer.VertexBuffer, base, n int) ([4]float32, error) {
	var f [4]float32
	for k := 0; k < n; k++ {
		v, err := vb.Float32At(base + 4*k)
		if err != nil {
			return f, err
		}
		f[k] = v
	}
	return f, nil
}

func encode[T attribute](vb *buffer.VertexBuffer, base int, v T) error {
	switch x := any(v).(type) {
	case math.Vec2:
		return putFloats(vb, base, x.X, x.Y)
	case math.Vec3:
		return putFloats(vb, base, x.X, x.Y, x.Z)
	case math.Vec4:
		return putFloats(vb, base, x.X, x.Y, x.Z, x.W)
	case math.Color:
		return putFloats(vb, base, x.R, x.G, x.B, x.A)
	case vertex.ByteQuad:
		for k, b := range x {
			if err := vb.SetUint8At(base+k, b); err != nil {
				return err
			}
		}
	}
	return nil
}

func putFloats(vb *buffer.VertexBuffer, base int, vs ...float32) error {
	for k, v := range vs {
		if err := vb.SetFloat32At(base+4*k, v); err != nil {
			return err
		}
	}
	return nil
}
