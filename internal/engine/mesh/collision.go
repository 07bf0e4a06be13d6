package mesh

import (
	"encoding/binary"
	"fmt"
	gomath "math"

	"github.com/Faultbox/midgard-mesh/internal/engine/physics"
	"github.com/Faultbox/midgard-mesh/internal/engine/vertex"
	"github.com/Faultbox/midgard-mesh/pkg/math"
)

// CollisionOptions adjusts how positions are handed to the physics backend.
type CollisionOptions struct {
	// MirrorX negates X, for backends with the opposite handedness.
	MirrorX bool
}

// BuildCollisionMesh feeds every index triple of indices to tm as a triangle,
// resolving each index to its position in vertexBytes. Degenerate triangles
// are passed through; trailing indices that do not form a triangle are
// ignored.
func BuildCollisionMesh(layout *vertex.Layout, vertexBytes []byte, indices []uint16, tm physics.TriangleMesh, opts CollisionOptions) error {
	pos, ok := layout.Element(vertex.UsagePosition)
	if !ok {
		return ErrMissingPositionAttribute
	}
	stride := int(layout.Stride())
	count := len(vertexBytes) / stride

	position := func(idx uint16) (math.Vec3, error) {
		if int(idx) >= count {
			return math.Vec3{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, idx, count)
		}
		base := int(idx)*stride + int(pos.Offset)
		p := math.Vec3{
			X: f32(vertexBytes[base:]),
			Y: f32(vertexBytes[base+4:]),
			Z: f32(vertexBytes[base+8:]),
		}
		if opts.MirrorX {
			p.X = -p.X
		}
		return p, nil
	}

	for i := 0; i+2 < len(indices); i += 3 {
		p0, err := position(indices[i])
		if err != nil {
			return err
		}
		p1, err := position(indices[i+1])
		if err != nil {
			return err
		}
		p2, err := position(indices[i+2])
		if err != nil {
			return err
		}
		tm.AddTriangle(p0, p1, p2, true)
	}
	return nil
}

func f32(b []byte) float32 {
	return gomath.Float32frombits(binary.LittleEndian.Uint32(b))
}
