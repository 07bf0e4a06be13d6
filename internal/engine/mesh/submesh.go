package mesh

import "slices"

// IndexRange is a run of indices drawn with one bone palette.
type IndexRange struct {
	Start int
	Count int
}

// SkinPathMark locates one skin path in the submesh bone lists:
// SubMeshes[SubMesh].BoneIndexLists()[List][Slot].
type SkinPathMark struct {
	SubMesh int
	List    int
	Slot    int
}

// SubMesh is a contiguous slice of its mesh's shared index buffer. Ranges and
// bone index lists run in parallel: Ranges()[k] is drawn with palette
// BoneIndexLists()[k].
type SubMesh struct {
	mesh        *Mesh
	indexInMesh int

	indexStart     int
	indexCount     int
	ranges         []IndexRange
	boneIndexLists [][]uint16
}

// NewSubMesh deep-copies ranges and boneIndexLists. With no ranges the
// submesh draws its whole slice as one range.
func NewSubMesh(indexStart, indexCount int, ranges []IndexRange, boneIndexLists [][]uint16) *SubMesh {
	if len(ranges) == 0 {
		ranges = []IndexRange{{Start: indexStart, Count: indexCount}}
	}
	return &SubMesh{
		indexStart:     indexStart,
		indexCount:     indexCount,
		ranges:         slices.Clone(ranges),
		boneIndexLists: cloneLists(boneIndexLists),
	}
}

func cloneLists(lists [][]uint16) [][]uint16 {
	if lists == nil {
		return nil
	}
	out := make([][]uint16, len(lists))
	for i, l := range lists {
		out[i] = slices.Clone(l)
	}
	return out
}

// Mesh returns the owning mesh, or nil before assignment.
func (s *SubMesh) Mesh() *Mesh { return s.mesh }

// IndexInMesh returns the position among the owner's submeshes.
func (s *SubMesh) IndexInMesh() int { return s.indexInMesh }

// IndexStart returns the first index of the slice.
func (s *SubMesh) IndexStart() int { return s.indexStart }

// IndexCount returns the number of indices in the slice.
func (s *SubMesh) IndexCount() int { return s.indexCount }

// Ranges returns a copy of the draw ranges.
func (s *SubMesh) Ranges() []IndexRange { return slices.Clone(s.ranges) }

// BoneIndexLists returns a deep copy of the bone palettes.
func (s *SubMesh) BoneIndexLists() [][]uint16 { return cloneLists(s.boneIndexLists) }

// Indices returns the submesh slice of the owner's index buffer. The slice
// aliases the owner's storage.
func (s *SubMesh) Indices() ([]uint16, error) {
	if s.mesh == nil || s.mesh.ib == nil {
		return nil, ErrDestroyed
	}
	return s.mesh.ib.Slice(s.indexStart, s.indexCount)
}

// clone returns an unowned deep copy.
func (s *SubMesh) clone() *SubMesh {
	return &SubMesh{
		indexStart:     s.indexStart,
		indexCount:     s.indexCount,
		ranges:         slices.Clone(s.ranges),
		boneIndexLists: cloneLists(s.boneIndexLists),
	}
}

func (s *SubMesh) destroy() {
	s.mesh = nil
	s.ranges = nil
	s.boneIndexLists = nil
}
