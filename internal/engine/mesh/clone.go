package mesh

import (
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// Clone returns an independent copy of the mesh on the same collaborators.
// The source must be readable.
func (m *Mesh) Clone() (*Mesh, error) {
	dest := NewEmpty(m.env, m.Name())
	if err := m.CloneTo(dest); err != nil {
		return nil, err
	}
	return dest, nil
}

// CloneTo deep-copies the mesh into dest, which must come from NewEmpty and
// not be filled yet. Vertex bytes, indices, submeshes and their bone lists
// are copied; dest gets its own binding states and recomputed bounds.
func (m *Mesh) CloneTo(dest *Mesh) error {
	if err := m.alive(); err != nil {
		return err
	}
	if dest == nil || dest == m || dest.vb != nil || dest.Destroyed() {
		return ErrCloneTarget
	}

	dev := dest.env.Device
	if dev == nil {
		return ErrNoDevice
	}
	vb, err := m.vb.Clone(dev, dest.Name()+".vb")
	if err != nil {
		return fmt.Errorf("clone %s: %w", m.Name(), err)
	}
	ib, err := m.ib.Clone(dev, dest.Name()+".ib")
	if err != nil {
		vb.Destroy()
		return fmt.Errorf("clone %s: %w", m.Name(), err)
	}
	dest.vb, dest.ib = vb, ib
	dest.setBuffer()
	dest.SetCPUMemory(m.CPUMemory())
	dest.SetGPUMemory(m.GPUMemory())

	dest.boneNames = slices.Clone(m.boneNames)
	dest.inverseBindPoses = slices.Clone(m.inverseBindPoses)
	dest.bindPoseIndices = slices.Clone(m.bindPoseIndices)
	dest.skinPathMarks = slices.Clone(m.skinPathMarks)

	subs := make([]*SubMesh, len(m.subMeshes))
	for i, s := range m.subMeshes {
		subs[i] = s.clone()
	}
	if err := dest.AssignSubMeshes(subs); err != nil {
		return err
	}

	dest.log.Debug("mesh cloned", zap.Stringer("source", m.ID()))
	return nil
}
