package math

// Vec4 is a 4-component vector (tangents, bone weights).
type Vec4 struct {
	X, Y, Z, W float32
}

// XYZ drops the W component.
func (v Vec4) XYZ() Vec3 {
	return Vec3{v.X, v.Y, v.Z}
}

// Array returns the components in storage order.
func (v Vec4) Array() [4]float32 {
	return [4]float32{v.X, v.Y, v.Z, v.W}
}

// Color is a linear RGBA color with float channels.
type Color struct {
	R, G, B, A float32
}

// White is opaque white.
var White = Color{1, 1, 1, 1}

// ColorFromBytes converts 8-bit channels to the [0, 1] range.
func ColorFromBytes(c [4]uint8) Color {
	return Color{
		R: float32(c[0]) / 255,
		G: float32(c[1]) / 255,
		B: float32(c[2]) / 255,
		A: float32(c[3]) / 255,
	}
}

// Array returns the channels in storage order.
func (c Color) Array() [4]float32 {
	return [4]float32{c.R, c.G, c.B, c.A}
}
