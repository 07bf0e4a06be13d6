package mesh

import "github.com/Faultbox/midgard-mesh/pkg/math"

// Bounds is an axis-aligned box.
type Bounds struct {
	Min math.Vec3
	Max math.Vec3
}

// ComputeBounds returns the box enclosing positions. The scan is seeded at
// +Inf/-Inf, so no positions yield an inverted box (see Empty).
func ComputeBounds(positions []math.Vec3) Bounds {
	b := Bounds{Min: math.Vec3Inf(1), Max: math.Vec3Inf(-1)}
	for _, p := range positions {
		b.Min = b.Min.Min(p)
		b.Max = b.Max.Max(p)
	}
	return b
}

// Empty reports whether the box encloses no volume, i.e. min > max on some axis.
func (b Bounds) Empty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Center returns the box center.
func (b Bounds) Center() math.Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the box extent along each axis.
func (b Bounds) Size() math.Vec3 {
	return b.Max.Sub(b.Min)
}
