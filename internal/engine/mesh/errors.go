package mesh

import (
	"errors"

	"github.com/Faultbox/midgard-mesh/internal/engine/buffer"
)

// Mesh errors.
var (
	// ErrNotReadable is buffer.ErrNotReadable so either can be matched.
	ErrNotReadable = buffer.ErrNotReadable

	ErrAttributeMissing         = errors.New("mesh: attribute not in vertex layout")
	ErrUnsupportedAttribute     = errors.New("mesh: unsupported attribute")
	ErrInvalidChannel           = errors.New("mesh: UV channel must be 0 or 1")
	ErrMissingPositionAttribute = errors.New("mesh: vertex layout has no position")
	ErrTooManyValues            = errors.New("mesh: more values than vertices")
	ErrIndexOutOfRange          = errors.New("mesh: index past vertex count")
	ErrSubMeshOwned             = errors.New("mesh: submesh belongs to another mesh")
	ErrNilSubMesh               = errors.New("mesh: nil submesh")
	ErrSkinTables               = errors.New("mesh: skin tables out of step")
	ErrCloneTarget              = errors.New("mesh: clone target is not an empty mesh")
	ErrNoDevice                 = errors.New("mesh: no GPU device")
	ErrDestroyed                = errors.New("mesh: destroyed")
)
