// Package importer turns glTF meshes into mesh.Data.
package importer

import (
	"encoding/binary"
	"errors"
	"fmt"
	gomath "math"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-mesh/internal/engine/mesh"
	"github.com/Faultbox/midgard-mesh/internal/engine/vertex"
	"github.com/Faultbox/midgard-mesh/internal/logger"
	"github.com/Faultbox/midgard-mesh/pkg/math"
)

// Import errors.
var (
	ErrNoMesh           = errors.New("importer: mesh index out of range")
	ErrNoTriangles      = errors.New("importer: mesh has no triangle primitives")
	ErrTooManyVertices  = errors.New("importer: more vertices than 16-bit indices can address")
	ErrJointRange       = errors.New("importer: joint index does not fit in a byte")
	ErrAttributeLength  = errors.New("importer: attribute count differs from position count")
	ErrIndexOutOfBounds = errors.New("importer: index past primitive vertex count")
)

const maxVertices = 1 << 16

// Options controls decoding.
type Options struct {
	MeshIndex int
	FlipV     bool
	Readable  bool
	Logger    *zap.Logger
}

// attributeOrder is the record order of every imported layout.
var attributeOrder = []vertex.Usage{
	vertex.UsagePosition,
	vertex.UsageNormal,
	vertex.UsageColor,
	vertex.UsageUV0,
	vertex.UsageUV1,
	vertex.UsageTangent,
	vertex.UsageBoneWeight,
	vertex.UsageBoneIndices,
}

// primitive is one triangle list read out of the document.
type primitive struct {
	positions [][3]float32
	normals   [][3]float32
	colors    [][4]uint8
	uv0       [][2]float32
	uv1       [][2]float32
	tangents  [][4]float32
	weights   [][4]float32
	joints    [][4]uint16
	indices   []uint32
}

func (p *primitive) has(u vertex.Usage) bool {
	switch u {
	case vertex.UsagePosition:
		return p.positions != nil
	case vertex.UsageNormal:
		return p.normals != nil
	case vertex.UsageColor:
		return p.colors != nil
	case vertex.UsageUV0:
		return p.uv0 != nil
	case vertex.UsageUV1:
		return p.uv1 != nil
	case vertex.UsageTangent:
		return p.tangents != nil
	case vertex.UsageBoneWeight:
		return p.weights != nil
	case vertex.UsageBoneIndices:
		return p.joints != nil
	}
	return false
}

// skin holds the skin tables of the node that instantiates the mesh.
type skin struct {
	boneNames        []string
	inverseBindPoses []math.Mat4
}

// LoadGLTF opens a .gltf or .glb file and decodes one of its meshes.
func LoadGLTF(path string, opts Options) (*mesh.Data, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	data, err := DecodeGLTF(doc, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

// DecodeGLTF reads mesh opts.MeshIndex of doc. Every triangle primitive
// becomes one submesh; their vertices are appended into one interleaved
// buffer whose layout is the union of the primitives' attributes.
func DecodeGLTF(doc *gltf.Document, opts Options) (*mesh.Data, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Named("importer")
	}
	if opts.MeshIndex < 0 || opts.MeshIndex >= len(doc.Meshes) {
		return nil, fmt.Errorf("%w: %d of %d", ErrNoMesh, opts.MeshIndex, len(doc.Meshes))
	}
	gm := doc.Meshes[opts.MeshIndex]

	var prims []*primitive
	for i, gp := range gm.Primitives {
		if gp.Mode != gltf.PrimitiveTriangles {
			log.Warn("skipping non-triangle primitive", zap.Int("primitive", i), zap.Int("mode", int(gp.Mode)))
			continue
		}
		p, err := readPrimitive(doc, gp)
		if err != nil {
			return nil, fmt.Errorf("mesh %q primitive %d: %w", gm.Name, i, err)
		}
		prims = append(prims, p)
	}
	if len(prims) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoTriangles, gm.Name)
	}

	sk, err := readSkin(doc, opts.MeshIndex)
	if err != nil {
		return nil, err
	}

	data, err := assemble(gm.Name, prims, sk, opts)
	if err != nil {
		return nil, fmt.Errorf("mesh %q: %w", gm.Name, err)
	}
	log.Debug("gltf mesh decoded",
		zap.String("mesh", gm.Name),
		zap.Int("primitives", len(prims)),
		zap.Int("bones", len(data.BoneNames)),
		zap.Stringer("layout", data.Layout))
	return data, nil
}

func readPrimitive(doc *gltf.Document, gp *gltf.Primitive) (*primitive, error) {
	p := &primitive{}
	var err error

	posIdx, ok := gp.Attributes[gltf.POSITION]
	if !ok {
		return nil, mesh.ErrMissingPositionAttribute
	}
	if p.positions, err = modeler.ReadPosition(doc, doc.Accessors[posIdx], nil); err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	n := len(p.positions)

	if idx, ok := gp.Attributes[gltf.NORMAL]; ok {
		if p.normals, err = modeler.ReadNormal(doc, doc.Accessors[idx], nil); err != nil {
			return nil, fmt.Errorf("read normals: %w", err)
		}
	}
	if idx, ok := gp.Attributes[gltf.COLOR_0]; ok {
		if p.colors, err = modeler.ReadColor(doc, doc.Accessors[idx], nil); err != nil {
			return nil, fmt.Errorf("read colors: %w", err)
		}
	}
	if idx, ok := gp.Attributes[gltf.TEXCOORD_0]; ok {
		if p.uv0, err = modeler.ReadTextureCoord(doc, doc.Accessors[idx], nil); err != nil {
			return nil, fmt.Errorf("read uv0: %w", err)
		}
	}
	if idx, ok := gp.Attributes[gltf.TEXCOORD_1]; ok {
		if p.uv1, err = modeler.ReadTextureCoord(doc, doc.Accessors[idx], nil); err != nil {
			return nil, fmt.Errorf("read uv1: %w", err)
		}
	}
	if idx, ok := gp.Attributes[gltf.TANGENT]; ok {
		if p.tangents, err = modeler.ReadTangent(doc, doc.Accessors[idx], nil); err != nil {
			return nil, fmt.Errorf("read tangents: %w", err)
		}
	}
	if idx, ok := gp.Attributes[gltf.WEIGHTS_0]; ok {
		if p.weights, err = modeler.ReadWeights(doc, doc.Accessors[idx], nil); err != nil {
			return nil, fmt.Errorf("read weights: %w", err)
		}
	}
	if idx, ok := gp.Attributes[gltf.JOINTS_0]; ok {
		if p.joints, err = modeler.ReadJoints(doc, doc.Accessors[idx], nil); err != nil {
			return nil, fmt.Errorf("read joints: %w", err)
		}
	}

	if gp.Indices != nil {
		if p.indices, err = modeler.ReadIndices(doc, doc.Accessors[*gp.Indices], nil); err != nil {
			return nil, fmt.Errorf("read indices: %w", err)
		}
	} else {
		p.indices = make([]uint32, n)
		for i := range p.indices {
			p.indices[i] = uint32(i)
		}
	}
	return p, nil
}

// readSkin returns the skin of the first node that instantiates the mesh,
// or nil when no such node is skinned.
func readSkin(doc *gltf.Document, meshIndex int) (*skin, error) {
	for _, node := range doc.Nodes {
		if node.Mesh == nil || int(*node.Mesh) != meshIndex || node.Skin == nil {
			continue
		}
		gs := doc.Skins[*node.Skin]
		sk := &skin{
			boneNames:        make([]string, len(gs.Joints)),
			inverseBindPoses: make([]math.Mat4, len(gs.Joints)),
		}
		for i, j := range gs.Joints {
			sk.boneNames[i] = doc.Nodes[j].Name
			sk.inverseBindPoses[i] = math.Identity()
		}
		if gs.InverseBindMatrices != nil {
			raw, err := modeler.ReadAccessor(doc, doc.Accessors[*gs.InverseBindMatrices], nil)
			if err != nil {
				return nil, fmt.Errorf("read inverse bind matrices: %w", err)
			}
			mats, ok := raw.([][4][4]float32)
			if !ok {
				return nil, fmt.Errorf("inverse bind matrices: unexpected accessor data %T", raw)
			}
			for i := range min(len(mats), len(sk.inverseBindPoses)) {
				sk.inverseBindPoses[i] = math.Mat4FromRows(mats[i])
			}
		}
		return sk, nil
	}
	return nil, nil
}

// assemble interleaves the primitives into one vertex buffer and one 16-bit
// index buffer.
func assemble(name string, prims []*primitive, sk *skin, opts Options) (*mesh.Data, error) {
	var usages []vertex.Usage
	for _, u := range attributeOrder {
		for _, p := range prims {
			if p.has(u) {
				usages = append(usages, u)
				break
			}
		}
	}
	layout, err := vertex.Pack(usages...)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, p := range prims {
		total += len(p.positions)
	}
	if total > maxVertices {
		return nil, fmt.Errorf("%w: %d", ErrTooManyVertices, total)
	}

	stride := int(layout.Stride())
	out := &mesh.Data{
		Name:     name,
		Layout:   layout,
		Vertices: make([]byte, total*stride),
		Readable: opts.Readable,
	}

	base := 0
	for pi, p := range prims {
		if err := writePrimitive(out.Vertices[base*stride:], layout, p, opts.FlipV); err != nil {
			return nil, fmt.Errorf("primitive %d: %w", pi, err)
		}

		start := len(out.Indices)
		for _, idx := range p.indices {
			if int(idx) >= len(p.positions) {
				return nil, fmt.Errorf("primitive %d: %w: %d of %d", pi, ErrIndexOutOfBounds, idx, len(p.positions))
			}
			out.Indices = append(out.Indices, uint16(base+int(idx)))
		}

		var palettes [][]uint16
		if sk != nil {
			palettes = [][]uint16{identityPalette(len(sk.boneNames))}
		}
		out.SubMeshes = append(out.SubMeshes, mesh.NewSubMesh(start, len(p.indices), nil, palettes))
		base += len(p.positions)
	}

	if sk != nil {
		out.BoneNames = sk.boneNames
		out.InverseBindPoses = sk.inverseBindPoses
		out.BindPoseIndices = identityPalette(len(sk.boneNames))
		for i := range sk.boneNames {
			out.SkinPathMarks = append(out.SkinPathMarks, mesh.SkinPathMark{SubMesh: 0, List: 0, Slot: i})
		}
	}
	return out, nil
}

func identityPalette(n int) []uint16 {
	p := make([]uint16, n)
	for i := range p {
		p[i] = uint16(i)
	}
	return p
}

// writePrimitive encodes p's vertices into dst. Attributes the layout has but
// p lacks stay zero.
func writePrimitive(dst []byte, layout *vertex.Layout, p *primitive, flipV bool) error {
	stride := int(layout.Stride())
	n := len(p.positions)

	for _, e := range layout.Elements() {
		if !p.has(e.Usage) {
			continue
		}
		if l := attributeLen(p, e.Usage); l != n {
			return fmt.Errorf("%w: %v has %d, positions %d", ErrAttributeLength, e.Usage, l, n)
		}
		for i := 0; i < n; i++ {
			rec := dst[i*stride+int(e.Offset):]
			switch e.Usage {
			case vertex.UsagePosition:
				putFloats(rec, p.positions[i][:]...)
			case vertex.UsageNormal:
				putFloats(rec, p.normals[i][:]...)
			case vertex.UsageColor:
				c := math.ColorFromBytes(p.colors[i])
				putFloats(rec, c.R, c.G, c.B, c.A)
			case vertex.UsageUV0:
				putFloats(rec, uv(p.uv0[i], flipV)...)
			case vertex.UsageUV1:
				putFloats(rec, uv(p.uv1[i], flipV)...)
			case vertex.UsageTangent:
				putFloats(rec, p.tangents[i][:]...)
			case vertex.UsageBoneWeight:
				putFloats(rec, p.weights[i][:]...)
			case vertex.UsageBoneIndices:
				for k, j := range p.joints[i] {
					if j > 255 {
						return fmt.Errorf("%w: vertex %d joint %d", ErrJointRange, i, j)
					}
					rec[k] = uint8(j)
				}
			}
		}
	}
	return nil
}

func attributeLen(p *primitive, u vertex.Usage) int {
	switch u {
	case vertex.UsagePosition:
		return len(p.positions)
	case vertex.UsageNormal:
		return len(p.normals)
	case vertex.UsageColor:
		return len(p.colors)
	case vertex.UsageUV0:
		return len(p.uv0)
	case vertex.UsageUV1:
		return len(p.uv1)
	case vertex.UsageTangent:
		return len(p.tangents)
	case vertex.UsageBoneWeight:
		return len(p.weights)
	case vertex.UsageBoneIndices:
		return len(p.joints)
	}
	return 0
}

func uv(v [2]float32, flipV bool) []float32 {
	if flipV {
		return []float32{v[0], 1 - v[1]}
	}
	return []float32{v[0], v[1]}
}

func putFloats(dst []byte, vs ...float32) {
	for k, v := range vs {
		binary.LittleEndian.PutUint32(dst[4*k:], gomath.Float32bits(v))
	}
}
