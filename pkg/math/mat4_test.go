package math

import (
	"testing"
)

func TestIdentity(t *testing.T) {
	m := Identity()
	// Diagonal should be 1
	if m[0] != 1 || m[5] != 1 || m[10] != 1 || m[15] != 1 {
		t.Error("Identity diagonal should be 1")
	}
	// Off-diagonal should be 0
	if m[1] != 0 || m[4] != 0 {
		t.Error("Identity off-diagonal should be 0")
	}
}

func TestMulIdentity(t *testing.T) {
	m := Translate(1, 2, 3)
	result := m.Mul(Identity())

	for i := 0; i < 16; i++ {
		if result[i] != m[i] {
			t.Errorf("M * I should equal M, element %d: got %f, want %f", i, result[i], m[i])
		}
	}
}

func TestTransformPoint(t *testing.T) {
	m := Translate(10, 20, 30).Mul(Scale(2, 2, 2))
	got := m.TransformPoint(Vec3{1, 2, 3})

	want := Vec3{12, 24, 36}
	if got != want {
		t.Errorf("TransformPoint: got %v, want %v", got, want)
	}
}

func TestMat4FromRows(t *testing.T) {
	rows := [4][4]float32{
		{1, 0, 0, 5},
		{0, 1, 0, 6},
		{0, 0, 1, 7},
		{0, 0, 0, 1},
	}
	m := Mat4FromRows(rows)
	if m != Translate(5, 6, 7) {
		t.Errorf("Mat4FromRows: got %v, want translation (5, 6, 7)", m)
	}
	if m[12] != 5 || m[3] != 0 {
		t.Errorf("translation slots: got m[12]=%v m[3]=%v, want 5 and 0", m[12], m[3])
	}
	if c := m.Column(3); c != (Vec4{5, 6, 7, 1}) {
		t.Errorf("Column(3): got %v, want {5 6 7 1}", c)
	}
}
