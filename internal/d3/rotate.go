package d3

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// RotationAbout returns the rotation matrix for a right-handed rotation
// of angle radians about the given axis (not required to be unit length).
// Uses Rodrigues' rotation formula. Grounded on vec3.go's rotateToVec,
// generalized from aligning one vector onto another to an arbitrary
// axis/angle pair, which is what rigid-motion invariance tests need.
func RotationAbout(axis r3.Vec, angle float64) r3.Mat {
	u := r3.Unit(axis)
	k := r3.Skew(u)

	k2 := r3.NewMat(nil)
	k2.Mul(k, k)
	k2.Scale(1-math.Cos(angle), k2)

	k.Scale(math.Sin(angle), k)

	m := r3.Eye()
	m.Add(m, k)
	m.Add(m, k2)
	return *m
}

// ApplyRotation rotates every vector in vs in place by m.
func ApplyRotation(m r3.Mat, vs []r3.Vec) {
	for i, v := range vs {
		vs[i] = r3.Vec{
			X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
			Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
			Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
		}
	}
}
