package constraint

import (
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/spatial/r3"
)

// Area constrains total mesh surface area to Target. spec.md §4.7.
type Area struct {
	Target float64
}

func (a Area) Rows() int { return 1 }

func (a Area) AddValue(mesh MeshView, out []float64, offset int) {
	var total float64
	for f := 0; f < mesh.NumFaces(); f++ {
		total += mesh.FaceArea(f)
	}
	out[offset] += total - a.Target
}

// Gradient returns, for every vertex, d(totalArea)/d(vertex position).
func (a Area) Gradient(mesh MeshView) []r3.Vec {
	grad := make([]r3.Vec, mesh.NumVertices())
	for f := 0; f < mesh.NumFaces(); f++ {
		ids := mesh.VerticesOfFace(f)
		pa, pb, pc := mesh.VertexPosition(ids[0]), mesh.VertexPosition(ids[1]), mesh.VertexPosition(ids[2])
		ga, gb, gc := triangleAreaGradient(pa, pb, pc)
		grad[ids[0]] = r3.Add(grad[ids[0]], ga)
		grad[ids[1]] = r3.Add(grad[ids[1]], gb)
		grad[ids[2]] = r3.Add(grad[ids[2]], gc)
	}
	return grad
}

func (a Area) AddJacobianRow(mesh MeshView, dok *sparse.DOK, rowOffset int) {
	g := a.Gradient(mesh)
	for v, gv := range g {
		dok.Set(rowOffset, col(v, 0), gv.X)
		dok.Set(rowOffset, col(v, 1), gv.Y)
		dok.Set(rowOffset, col(v, 2), gv.Z)
	}
}

func (a Area) AddJacobianTimes(mesh MeshView, x []r3.Vec, out []float64, offset int) {
	g := a.Gradient(mesh)
	var s float64
	for v, gv := range g {
		s += r3.Dot(gv, x[v])
	}
	out[offset] += s
}

func (a Area) AddJacobianTransposeTimes(mesh MeshView, lambda []float64, out []r3.Vec, offset int) {
	g := a.Gradient(mesh)
	lv := lambda[offset]
	for v, gv := range g {
		out[v] = r3.Add(out[v], r3.Scale(lv, gv))
	}
}

// triangleAreaGradient returns the gradient of a triangle's area with
// respect to each of its three vertices: grad_a Area = (1/2) n×(c-b), and
// cyclic, where n is the unit face normal. The three gradients sum to
// zero (translating the whole triangle doesn't change its area).
func triangleAreaGradient(a, b, c r3.Vec) (ga, gb, gc r3.Vec) {
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	norm := r3.Norm(n)
	if norm < 1e-300 {
		return r3.Vec{}, r3.Vec{}, r3.Vec{}
	}
	u := r3.Scale(1/norm, n)
	ga = r3.Scale(0.5, r3.Cross(u, r3.Sub(c, b)))
	gb = r3.Scale(0.5, r3.Cross(u, r3.Sub(a, c)))
	gc = r3.Scale(0.5, r3.Cross(u, r3.Sub(b, a)))
	return ga, gb, gc
}
