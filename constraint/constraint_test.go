package constraint_test

import (
	"math"
	"testing"

	"github.com/soypat/tpeflow/constraint"
	"github.com/soypat/tpeflow/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

const eps = 1e-6

// numericalScalarGradient perturbs one vertex coordinate by central
// differences and returns the derivative of value with respect to it, the
// reference the Jacobian tests below compare analytic gradients against
// (the same central-difference validation convention spec.md §8 uses for
// the kernel gradient).
func numericalScalarGradient(mesh *mesh.Mesh, v int, axis int, value func() float64) float64 {
	pos := mesh.VertexPosition(v)
	perturb := func(d float64) r3.Vec {
		p := pos
		switch axis {
		case 0:
			p.X += d
		case 1:
			p.Y += d
		case 2:
			p.Z += d
		}
		return p
	}
	mesh.SetVertexPosition(v, perturb(eps))
	plus := value()
	mesh.SetVertexPosition(v, perturb(-eps))
	minus := value()
	mesh.SetVertexPosition(v, pos)
	return (plus - minus) / (2 * eps)
}

func component(v r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func TestAreaJacobianMatchesNumerical(t *testing.T) {
	m := mesh.Icosphere(1, 1.0, r3.Vec{})
	a := constraint.Area{Target: 0}
	jac := a.Gradient(m)
	for v := 0; v < m.NumVertices(); v++ {
		for axis := 0; axis < 3; axis++ {
			want := numericalScalarGradient(m, v, axis, m.TotalArea)
			got := component(jac[v], axis)
			if math.Abs(got-want) > 1e-4*math.Max(1, math.Abs(want)) {
				t.Fatalf("vertex %d axis %d: got %g, want %g", v, axis, got, want)
			}
		}
	}
}

func TestVolumeJacobianMatchesNumerical(t *testing.T) {
	m := mesh.Icosphere(1, 1.0, r3.Vec{})
	v := constraint.Volume{Target: 0}
	jac := v.Gradient(m)
	for vid := 0; vid < m.NumVertices(); vid++ {
		for axis := 0; axis < 3; axis++ {
			want := numericalScalarGradient(m, vid, axis, m.TotalVolume)
			got := component(jac[vid], axis)
			if math.Abs(got-want) > 1e-4*math.Max(1, math.Abs(want)) {
				t.Fatalf("vertex %d axis %d: got %g, want %g", vid, axis, got, want)
			}
		}
	}
}

func TestSetRowsAndValue(t *testing.T) {
	m := mesh.Icosphere(1, 1.0, r3.Vec{})
	a0 := m.TotalArea()
	v0 := m.TotalVolume()
	set := &constraint.Set{Constraints: []constraint.Constraint{
		constraint.Area{Target: a0},
		constraint.Volume{Target: v0},
		constraint.VertexPin{Vertex: 0, Target: m.VertexPosition(0)},
	}}
	if got := set.Rows(); got != 5 {
		t.Fatalf("Rows() = %d, want 5", got)
	}
	violation := set.Value(m)
	for i, v := range violation {
		if math.Abs(v) > 1e-9 {
			t.Fatalf("row %d: violation %g, want ~0 at the reference configuration", i, v)
		}
	}
}

func TestJacobianTransposeTimesIsAdjointOfJacobianTimes(t *testing.T) {
	m := mesh.Icosphere(1, 1.0, r3.Vec{})
	set := &constraint.Set{Constraints: []constraint.Constraint{
		constraint.Area{Target: 0},
		constraint.BoundaryLength{Target: 0},
		constraint.VertexPin{Vertex: 2, Target: m.VertexPosition(2)},
	}}
	x := make([]r3.Vec, m.NumVertices())
	for i := range x {
		x[i] = r3.Vec{X: float64(i%3) - 1, Y: float64((i+1)%3) - 1, Z: float64((i+2)%5) - 2}
	}
	lambda := make([]float64, set.Rows())
	for i := range lambda {
		lambda[i] = float64(i) + 1
	}

	jx := set.JacobianTimes(m, x)
	jtl := set.JacobianTransposeTimes(m, lambda)

	var lhs, rhs float64
	for i, li := range lambda {
		lhs += li * jx[i]
	}
	for v, xv := range x {
		rhs += r3.Dot(jtl[v], xv)
	}
	if math.Abs(lhs-rhs) > 1e-9*math.Max(1, math.Abs(rhs)) {
		t.Fatalf("<lambda,Jx>=%g != <J^T lambda,x>=%g", lhs, rhs)
	}
}
