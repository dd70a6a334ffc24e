package tpe

import "gonum.org/v1/gonum/spatial/r3"

// Triangle is a face reduced to its three vertex positions, in winding
// order. It supplies the geometric quantities (area, barycenter, normal)
// and their derivatives that Kernel needs to differentiate a pair
// contribution with respect to a single vertex.
type Triangle [3]r3.Vec

func (t Triangle) edges() (u, w r3.Vec) {
	return r3.Sub(t[1], t[0]), r3.Sub(t[2], t[0])
}

func (t Triangle) normalUnnorm() r3.Vec {
	u, w := t.edges()
	return r3.Cross(u, w)
}

// Area returns the triangle's area, zero for a degenerate (collinear)
// triangle.
func (t Triangle) Area() float64 {
	return 0.5 * r3.Norm(t.normalUnnorm())
}

// Normal returns the unit face normal, or the zero vector if the
// triangle is degenerate.
func (t Triangle) Normal() r3.Vec {
	nu := t.normalUnnorm()
	norm := r3.Norm(nu)
	if norm < 1e-300 {
		return r3.Vec{}
	}
	return r3.Scale(1/norm, nu)
}

// Barycenter returns the mean of the three vertices.
func (t Triangle) Barycenter() r3.Vec {
	return r3.Scale(1.0/3.0, r3.Add(t[0], r3.Add(t[1], t[2])))
}

// dNormalUnnorm returns the 3x3 Jacobian of the unnormalized face normal
// n_unnorm = (v1-v0) x (v2-v0) with respect to vertex slot (0, 1, or 2),
// derived from the bilinearity of the cross product:
//
//	d(n_unnorm)/dv0 = [w]_x - [u]_x
//	d(n_unnorm)/dv1 = -[w]_x
//	d(n_unnorm)/dv2 =  [u]_x
//
// where u = v1-v0, w = v2-v0 and [x]_x denotes the skew-symmetric cross
// product matrix of x.
func (t Triangle) dNormalUnnorm(slot int) r3.Mat {
	u, w := t.edges()
	switch slot {
	case 0:
		m := r3.NewMat(nil)
		m.Scale(-1, r3.Skew(u))
		m.Add(m, r3.Skew(w))
		return *m
	case 1:
		m := r3.NewMat(nil)
		m.Scale(-1, r3.Skew(w))
		return *m
	case 2:
		return *r3.Skew(u)
	default:
		panic("tpeflow/tpe: vertex slot out of range [0,3)")
	}
}

// mulMatTransposeVec returns m^T * v, using only the .At accessor
// evidenced on r3.Mat.
func mulMatTransposeVec(m r3.Mat, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m.At(0, 0)*v.X + m.At(1, 0)*v.Y + m.At(2, 0)*v.Z,
		Y: m.At(0, 1)*v.X + m.At(1, 1)*v.Y + m.At(2, 1)*v.Z,
		Z: m.At(0, 2)*v.X + m.At(1, 2)*v.Y + m.At(2, 2)*v.Z,
	}
}
