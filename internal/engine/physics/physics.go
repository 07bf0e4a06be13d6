// Package physics defines the triangle-mesh ingest contract of a physics
// backend and a built-in indexed implementation.
package physics

import (
	"github.com/Faultbox/midgard-mesh/pkg/math"
)

// TriangleMesh collects collision triangles.
type TriangleMesh interface {
	// AddTriangle appends one triangle. With removeDuplicateVertices the
	// mesh reuses an existing vertex equal to a corner instead of adding it.
	AddTriangle(p0, p1, p2 math.Vec3, removeDuplicateVertices bool)
	TriangleCount() int
}

// Backend creates and releases triangle meshes.
type Backend interface {
	NewTriangleMesh() TriangleMesh
	DestroyTriangleMesh(tm TriangleMesh)
}

// IndexedMesh is a shared-vertex triangle soup.
type IndexedMesh struct {
	vertices  []math.Vec3
	indices   []uint32
	lookup    map[math.Vec3]uint32
	destroyed bool
}

var _ TriangleMesh = (*IndexedMesh)(nil)

// NewIndexedMesh returns an empty mesh.
func NewIndexedMesh() *IndexedMesh {
	return &IndexedMesh{lookup: make(map[math.Vec3]uint32)}
}

// AddTriangle appends one triangle. Degenerate triangles are kept.
func (m *IndexedMesh) AddTriangle(p0, p1, p2 math.Vec3, removeDuplicateVertices bool) {
	m.indices = append(m.indices,
		m.vertex(p0, removeDuplicateVertices),
		m.vertex(p1, removeDuplicateVertices),
		m.vertex(p2, removeDuplicateVertices),
	)
}

func (m *IndexedMesh) vertex(p math.Vec3, weld bool) uint32 {
	if weld {
		if idx, ok := m.lookup[p]; ok {
			return idx
		}
	}
	idx := uint32(len(m.vertices))
	m.vertices = append(m.vertices, p)
	if _, ok := m.lookup[p]; !ok {
		m.lookup[p] = idx
	}
	return idx
}

// TriangleCount returns the number of triangles added.
func (m *IndexedMesh) TriangleCount() int {
	return len(m.indices) / 3
}

// VertexCount returns the number of stored vertices.
func (m *IndexedMesh) VertexCount() int {
	return len(m.vertices)
}

// Vertices returns the stored vertices.
func (m *IndexedMesh) Vertices() []math.Vec3 {
	return m.vertices
}

// Triangle returns the corners of triangle i.
func (m *IndexedMesh) Triangle(i int) [3]math.Vec3 {
	return [3]math.Vec3{
		m.vertices[m.indices[3*i]],
		m.vertices[m.indices[3*i+1]],
		m.vertices[m.indices[3*i+2]],
	}
}

// Triangles returns every triangle's corners in insertion order.
func (m *IndexedMesh) Triangles() [][3]math.Vec3 {
	out := make([][3]math.Vec3, m.TriangleCount())
	for i := range out {
		out[i] = m.Triangle(i)
	}
	return out
}

// Destroyed reports whether the owning backend released the mesh.
func (m *IndexedMesh) Destroyed() bool {
	return m.destroyed
}

// IndexedBackend hands out IndexedMesh values.
type IndexedBackend struct {
	live int
}

var _ Backend = (*IndexedBackend)(nil)

// NewTriangleMesh returns a new IndexedMesh.
func (b *IndexedBackend) NewTriangleMesh() TriangleMesh {
	b.live++
	return NewIndexedMesh()
}

// DestroyTriangleMesh releases tm.
func (b *IndexedBackend) DestroyTriangleMesh(tm TriangleMesh) {
	if m, ok := tm.(*IndexedMesh); ok && !m.destroyed {
		m.destroyed = true
		m.vertices, m.indices, m.lookup = nil, nil, nil
		b.live--
	}
}

// Live returns the number of meshes not yet destroyed.
func (b *IndexedBackend) Live() int {
	return b.live
}
