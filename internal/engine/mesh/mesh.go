// Package mesh implements the GPU mesh resource: interleaved vertex storage
// interpreted through a vertex layout, a shared 16-bit index buffer split
// into submeshes, skinning tables, bounds and a lazily built collision mesh.
//
// A Mesh is not safe for concurrent use. Callers serialize access or work on
// a Clone.
package mesh

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-mesh/internal/engine/buffer"
	"github.com/Faultbox/midgard-mesh/internal/engine/gpu"
	"github.com/Faultbox/midgard-mesh/internal/engine/physics"
	"github.com/Faultbox/midgard-mesh/internal/engine/resource"
	"github.com/Faultbox/midgard-mesh/internal/engine/vertex"
	"github.com/Faultbox/midgard-mesh/internal/logger"
	"github.com/Faultbox/midgard-mesh/pkg/math"
)

// Data is what a parser hands over to build a mesh.
type Data struct {
	Name             string
	Layout           *vertex.Layout
	Vertices         []byte
	Indices          []uint16
	SubMeshes        []*SubMesh
	BoneNames        []string
	InverseBindPoses []math.Mat4
	BindPoseIndices  []uint16
	SkinPathMarks    []SkinPathMark
	Readable         bool
}

// Env carries the collaborators a mesh talks to.
type Env struct {
	Device gpu.Device
	// Instances, when set, gets an instanced binding state per mesh.
	Instances *gpu.InstanceBatch
	// Physics defaults to a physics.IndexedBackend.
	Physics   physics.Backend
	Collision CollisionOptions
	// Logger defaults to logger.Named("mesh").
	Logger *zap.Logger
}

func (e Env) withDefaults() Env {
	if e.Physics == nil {
		e.Physics = &physics.IndexedBackend{}
	}
	if e.Logger == nil {
		e.Logger = logger.Named("mesh")
	}
	return e
}

// Mesh is a GPU mesh resource.
type Mesh struct {
	resource.Base

	env Env
	log *zap.Logger

	vb *buffer.VertexBuffer
	ib *buffer.IndexBuffer

	subMeshes        []*SubMesh
	boneNames        []string
	inverseBindPoses []math.Mat4
	bindPoseIndices  []uint16
	skinPathMarks    []SkinPathMark

	bounds      Bounds
	physicsMesh physics.TriangleMesh

	state         gpu.BufferState
	instanceState gpu.BufferState
}

// NewEmpty returns a mesh with no buffers. It is only useful as a CloneTo
// target.
func NewEmpty(env Env, name string) *Mesh {
	env = env.withDefaults()
	return &Mesh{
		Base:   resource.NewBase(name),
		env:    env,
		log:    env.Logger.With(zap.String("mesh", name)),
		bounds: ComputeBounds(nil),
	}
}

// New builds a mesh from parsed data, uploads its buffers and binds them.
func New(env Env, data Data) (*Mesh, error) {
	if env.Device == nil {
		return nil, ErrNoDevice
	}
	if data.Layout == nil || !data.Layout.Has(vertex.UsagePosition) {
		return nil, ErrMissingPositionAttribute
	}
	if len(data.BoneNames) != len(data.InverseBindPoses) {
		return nil, fmt.Errorf("%w: %d bone names, %d inverse bind poses",
			ErrSkinTables, len(data.BoneNames), len(data.InverseBindPoses))
	}
	for _, mark := range data.SkinPathMarks {
		if !validMark(mark, data.SubMeshes) {
			return nil, fmt.Errorf("%w: skin path mark %+v", ErrSkinTables, mark)
		}
	}

	m := NewEmpty(env, data.Name)
	// Bounds need the CPU copy, so the vertex buffer starts readable and is
	// released after submesh assignment.
	vb, err := buffer.NewVertexBuffer(env.Device, data.Name+".vb", data.Layout, data.Vertices, true)
	if err != nil {
		return nil, fmt.Errorf("mesh %s: %w", data.Name, err)
	}
	ib, err := buffer.NewIndexBuffer(env.Device, data.Name+".ib", data.Indices, true)
	if err != nil {
		vb.Destroy()
		return nil, fmt.Errorf("mesh %s: %w", data.Name, err)
	}
	m.vb, m.ib = vb, ib
	m.setBuffer()

	m.boneNames = slices.Clone(data.BoneNames)
	m.inverseBindPoses = slices.Clone(data.InverseBindPoses)
	m.bindPoseIndices = slices.Clone(data.BindPoseIndices)
	m.skinPathMarks = slices.Clone(data.SkinPathMarks)

	if err := m.AssignSubMeshes(data.SubMeshes); err != nil {
		m.Destroy()
		return nil, err
	}
	m.updateMemory()

	if !data.Readable {
		if err := m.MarkAsUnreadable(); err != nil {
			m.Destroy()
			return nil, err
		}
	}

	m.log.Debug("mesh created",
		zap.Int("vertices", vb.Count()),
		zap.Int("indices", ib.Count()),
		zap.Int("submeshes", len(m.subMeshes)),
		zap.Stringer("layout", data.Layout))
	return m, nil
}

func validMark(mark SkinPathMark, subs []*SubMesh) bool {
	if mark.SubMesh < 0 || mark.SubMesh >= len(subs) {
		return false
	}
	lists := subs[mark.SubMesh].boneIndexLists
	if mark.List < 0 || mark.List >= len(lists) {
		return false
	}
	return mark.Slot >= 0 && mark.Slot < len(lists[mark.List])
}

// setBuffer describes the current buffers to fresh binding states in the
// order bind, vertex, index, unbind.
func (m *Mesh) setBuffer() {
	if m.state != nil {
		m.state.Destroy()
	}
	if m.instanceState != nil {
		m.instanceState.Destroy()
		m.instanceState = nil
	}

	vbLayout := m.vb.Layout().BufferLayout(gputypes.VertexStepModeVertex)

	m.state = m.env.Device.NewBufferState()
	m.state.Bind()
	m.state.ApplyVertexBuffer(m.vb.GPU(), vbLayout)
	m.state.ApplyIndexBuffer(m.ib.GPU(), buffer.IndexFormat)
	m.state.UnBind()

	inst := m.env.Instances
	if inst == nil {
		return
	}
	m.instanceState = m.env.Device.NewBufferState()
	m.instanceState.Bind()
	m.instanceState.ApplyVertexBuffer(m.vb.GPU(), vbLayout)
	m.instanceState.ApplyInstanceVertexBuffer(inst.WorldMatrix, gpu.Mat4Layout(gpu.WorldMatrixLocation))
	m.instanceState.ApplyInstanceVertexBuffer(inst.MVPMatrix, gpu.Mat4Layout(gpu.MVPMatrixLocation))
	m.instanceState.ApplyIndexBuffer(m.ib.GPU(), buffer.IndexFormat)
	m.instanceState.UnBind()
}

// updateMemory reports the owned buffer sizes. The CPU share drops the
// vertex bytes once the mesh is unreadable.
func (m *Mesh) updateMemory() {
	total := int64(m.vb.ByteLength() + m.ib.ByteLength())
	cpu := total
	if !m.vb.Readable() {
		cpu -= int64(m.vb.ByteLength())
	}
	m.SetGPUMemory(total)
	m.SetCPUMemory(cpu)
}

func (m *Mesh) alive() error {
	if m.Destroyed() || m.vb == nil {
		return ErrDestroyed
	}
	return nil
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	if m.vb == nil {
		return 0
	}
	return m.vb.Count()
}

// IndexCount returns the number of indices in the shared index buffer.
func (m *Mesh) IndexCount() int {
	if m.ib == nil {
		return 0
	}
	return m.ib.Count()
}

// SubMeshCount returns the number of submeshes.
func (m *Mesh) SubMeshCount() int { return len(m.subMeshes) }

// SubMesh returns submesh i.
func (m *Mesh) SubMesh(i int) *SubMesh {
	if i < 0 || i >= len(m.subMeshes) {
		return nil
	}
	return m.subMeshes[i]
}

// SubMeshes returns the submeshes in order. The slice is a copy; the
// submeshes are not.
func (m *Mesh) SubMeshes() []*SubMesh { return slices.Clone(m.subMeshes) }

// Bounds returns the box computed at the last submesh assignment or
// RefreshBounds. Position edits do not update it.
func (m *Mesh) Bounds() Bounds { return m.bounds }

// Readable reports whether vertex attributes can still be accessed.
func (m *Mesh) Readable() bool { return m.vb != nil && m.vb.Readable() }

// VertexDeclaration returns the vertex layout.
func (m *Mesh) VertexDeclaration() *vertex.Layout {
	if m.vb == nil {
		return nil
	}
	return m.vb.Layout()
}

// BoneNames returns a copy of the bone names.
func (m *Mesh) BoneNames() []string { return slices.Clone(m.boneNames) }

// InverseAbsoluteBindPoses returns a copy of the inverse bind poses,
// parallel to BoneNames.
func (m *Mesh) InverseAbsoluteBindPoses() []math.Mat4 { return slices.Clone(m.inverseBindPoses) }

// BindPoseIndices returns a copy of the bind pose indices.
func (m *Mesh) BindPoseIndices() []uint16 { return slices.Clone(m.bindPoseIndices) }

// SkinPathMarks returns a copy of the skin path marks.
func (m *Mesh) SkinPathMarks() []SkinPathMark { return slices.Clone(m.skinPathMarks) }

// BufferState returns the plain binding state.
func (m *Mesh) BufferState() gpu.BufferState { return m.state }

// InstanceBufferState returns the instanced binding state, or nil when the
// mesh was built without an instance batch.
func (m *Mesh) InstanceBufferState() gpu.BufferState { return m.instanceState }

// Positions returns every vertex position.
func (m *Mesh) Positions() ([]math.Vec3, error) {
	return get[math.Vec3](m, vertex.UsagePosition)
}

// SetPositions writes positions to the first len(positions) vertices.
// Bounds and the collision mesh are left as they are.
func (m *Mesh) SetPositions(positions []math.Vec3) error {
	return set(m, vertex.UsagePosition, 0, positions)
}

// SetPositionsAt writes positions to vertices first..first+len(positions)-1.
func (m *Mesh) SetPositionsAt(first int, positions []math.Vec3) error {
	return set(m, vertex.UsagePosition, first, positions)
}

// Normals returns every vertex normal.
func (m *Mesh) Normals() ([]math.Vec3, error) {
	return get[math.Vec3](m, vertex.UsageNormal)
}

// SetNormals writes normals to the first len(normals) vertices.
func (m *Mesh) SetNormals(normals []math.Vec3) error {
	return set(m, vertex.UsageNormal, 0, normals)
}

// Tangents returns every vertex tangent.
func (m *Mesh) Tangents() ([]math.Vec4, error) {
	return get[math.Vec4](m, vertex.UsageTangent)
}

// SetTangents writes tangents to the first len(tangents) vertices.
func (m *Mesh) SetTangents(tangents []math.Vec4) error {
	return set(m, vertex.UsageTangent, 0, tangents)
}

// Colors returns every vertex color.
func (m *Mesh) Colors() ([]math.Color, error) {
	return get[math.Color](m, vertex.UsageColor)
}

// SetColors writes colors to the first len(colors) vertices.
func (m *Mesh) SetColors(colors []math.Color) error {
	return set(m, vertex.UsageColor, 0, colors)
}

// SetColorsAt writes colors to vertices first..first+len(colors)-1.
func (m *Mesh) SetColorsAt(first int, colors []math.Color) error {
	return set(m, vertex.UsageColor, first, colors)
}

// UVs returns the texture coordinates of channel 0 or 1.
func (m *Mesh) UVs(channel int) ([]math.Vec2, error) {
	u, err := uvUsage(channel)
	if err != nil {
		return nil, err
	}
	return get[math.Vec2](m, u)
}

// SetUVs writes texture coordinates of channel 0 or 1.
func (m *Mesh) SetUVs(uvs []math.Vec2, channel int) error {
	u, err := uvUsage(channel)
	if err != nil {
		return err
	}
	return set(m, u, 0, uvs)
}

func uvUsage(channel int) (vertex.Usage, error) {
	switch channel {
	case 0:
		return vertex.UsageUV0, nil
	case 1:
		return vertex.UsageUV1, nil
	default:
		return vertex.UsageUnknown, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
}

// BoneWeights returns every vertex's bone weights.
func (m *Mesh) BoneWeights() ([]math.Vec4, error) {
	return get[math.Vec4](m, vertex.UsageBoneWeight)
}

// SetBoneWeights writes bone weights to the first len(weights) vertices.
func (m *Mesh) SetBoneWeights(weights []math.Vec4) error {
	return set(m, vertex.UsageBoneWeight, 0, weights)
}

// BoneIndices returns every vertex's bone indices.
func (m *Mesh) BoneIndices() ([]vertex.ByteQuad, error) {
	return get[vertex.ByteQuad](m, vertex.UsageBoneIndices)
}

// SetBoneIndices writes bone indices to the first len(indices) vertices.
func (m *Mesh) SetBoneIndices(indices []vertex.ByteQuad) error {
	return set(m, vertex.UsageBoneIndices, 0, indices)
}

func get[T attribute](m *Mesh, u vertex.Usage) ([]T, error) {
	if err := m.alive(); err != nil {
		return nil, err
	}
	return readAttribute[T](m.vb, u)
}

// set writes through the codec. A field missing from the layout is logged
// and skipped.
func set[T attribute](m *Mesh, u vertex.Usage, first int, values []T) error {
	if err := m.alive(); err != nil {
		return err
	}
	err := writeAttribute(m.vb, u, first, values)
	if errors.Is(err, ErrAttributeMissing) {
		m.log.Warn("attribute write skipped", zap.Stringer("usage", u), zap.Error(err))
		return nil
	}
	return err
}

// Vertices returns a copy of the raw vertex bytes.
func (m *Mesh) Vertices() ([]byte, error) {
	if err := m.alive(); err != nil {
		return nil, err
	}
	data, err := m.vb.Bytes()
	if err != nil {
		return nil, err
	}
	return slices.Clone(data), nil
}

// SetVertices replaces the raw vertex bytes and uploads them at once. It
// works on unreadable meshes. A different length changes the vertex count
// and rebinds the buffer states; bounds are not recomputed.
func (m *Mesh) SetVertices(data []byte) error {
	if err := m.alive(); err != nil {
		return err
	}
	if len(data) == m.vb.ByteLength() {
		return m.vb.SetData(data, 0, 0, len(data))
	}

	old := m.vb.GPU()
	if err := m.vb.ReplaceAll(data); err != nil {
		return err
	}
	if m.vb.GPU() != old {
		m.setBuffer()
	}
	m.updateMemory()
	return nil
}

// Indices returns a copy of the shared index buffer.
func (m *Mesh) Indices() ([]uint16, error) {
	if err := m.alive(); err != nil {
		return nil, err
	}
	return m.ib.Indices()
}

// SetIndices overwrites the shared index buffer from first on and uploads
// that range. Every index must address an existing vertex. The collision
// mesh is not rebuilt.
func (m *Mesh) SetIndices(first int, indices []uint16) error {
	if err := m.alive(); err != nil {
		return err
	}
	count := m.VertexCount()
	for _, idx := range indices {
		if int(idx) >= count {
			return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, idx, count)
		}
	}
	return m.ib.SetData(indices, first)
}

// Flush uploads every attribute write since the last flush in one transfer.
func (m *Mesh) Flush() error {
	if err := m.alive(); err != nil {
		return err
	}
	return m.vb.Flush()
}

// MarkAsUnreadable flushes pending writes and releases the CPU vertex copy.
// Attribute getters and setters fail with ErrNotReadable afterwards.
func (m *Mesh) MarkAsUnreadable() error {
	if err := m.alive(); err != nil {
		return err
	}
	if err := m.vb.MarkUnreadable(); err != nil {
		return err
	}
	m.updateMemory()
	return nil
}

// AssignSubMeshes replaces the submeshes, numbers them in order and
// recomputes bounds. Index ranges are not checked against the index buffer.
// Submeshes dropped from the list are detached.
func (m *Mesh) AssignSubMeshes(subMeshes []*SubMesh) error {
	if err := m.alive(); err != nil {
		return err
	}
	for i, s := range subMeshes {
		if s == nil {
			return fmt.Errorf("%w: index %d", ErrNilSubMesh, i)
		}
		if s.mesh != nil && s.mesh != m {
			return fmt.Errorf("%w: %s", ErrSubMeshOwned, s.mesh.Name())
		}
	}
	for _, s := range m.subMeshes {
		if !slices.Contains(subMeshes, s) {
			s.mesh = nil
		}
	}

	m.subMeshes = slices.Clone(subMeshes)
	for i, s := range m.subMeshes {
		s.mesh = m
		s.indexInMesh = i
	}

	err := m.RefreshBounds()
	if errors.Is(err, ErrNotReadable) {
		m.log.Debug("bounds kept, vertex data not readable")
		return nil
	}
	return err
}

// RefreshBounds recomputes bounds over every stored position.
func (m *Mesh) RefreshBounds() error {
	positions, err := m.Positions()
	if err != nil {
		return err
	}
	m.bounds = ComputeBounds(positions)
	return nil
}

// PhysicsMesh returns the collision mesh, building it on first use. Later
// position edits leave it stale until InvalidatePhysicsMesh.
func (m *Mesh) PhysicsMesh() (physics.TriangleMesh, error) {
	if err := m.alive(); err != nil {
		return nil, err
	}
	if m.physicsMesh != nil {
		return m.physicsMesh, nil
	}

	data, err := m.vb.Bytes()
	if err != nil {
		return nil, err
	}
	indices, err := m.ib.Indices()
	if err != nil {
		return nil, err
	}

	tm := m.env.Physics.NewTriangleMesh()
	if err := BuildCollisionMesh(m.vb.Layout(), data, indices, tm, m.env.Collision); err != nil {
		m.env.Physics.DestroyTriangleMesh(tm)
		return nil, fmt.Errorf("mesh %s collision: %w", m.Name(), err)
	}
	m.physicsMesh = tm
	m.log.Debug("collision mesh built", zap.Int("triangles", tm.TriangleCount()))
	return tm, nil
}

// InvalidatePhysicsMesh releases the cached collision mesh.
func (m *Mesh) InvalidatePhysicsMesh() {
	if m.physicsMesh != nil {
		m.env.Physics.DestroyTriangleMesh(m.physicsMesh)
		m.physicsMesh = nil
	}
}

// Destroy releases buffers, binding states, submeshes and the collision
// mesh, and zeroes memory accounting. It is safe to call twice.
func (m *Mesh) Destroy() {
	if m.Destroyed() {
		return
	}
	for _, s := range m.subMeshes {
		s.destroy()
	}
	m.InvalidatePhysicsMesh()
	if m.vb != nil {
		m.vb.Destroy()
	}
	if m.ib != nil {
		m.ib.Destroy()
	}
	if m.state != nil {
		m.state.Destroy()
	}
	if m.instanceState != nil {
		m.instanceState.Destroy()
	}
	m.MarkDestroyed()

	m.vb, m.ib = nil, nil
	m.state, m.instanceState = nil, nil
	m.subMeshes = nil
	m.boneNames = nil
	m.inverseBindPoses = nil
	m.bindPoseIndices = nil
	m.skinPathMarks = nil
}
