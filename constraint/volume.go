package constraint

import (
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/spatial/r3"
)

// Volume constrains the mesh's signed enclosed volume (divergence
// theorem over the origin-anchored tetrahedra of each face) to Target.
// spec.md §4.7; requires a closed, consistently wound mesh.
type Volume struct {
	Target float64
}

func (vc Volume) Rows() int { return 1 }

func (vc Volume) AddValue(mesh MeshView, out []float64, offset int) {
	var total float64
	for f := 0; f < mesh.NumFaces(); f++ {
		ids := mesh.VerticesOfFace(f)
		a, b, c := mesh.VertexPosition(ids[0]), mesh.VertexPosition(ids[1]), mesh.VertexPosition(ids[2])
		total += r3.Dot(a, r3.Cross(b, c))
	}
	out[offset] += total/6 - vc.Target
}

func (vc Volume) Gradient(mesh MeshView) []r3.Vec {
	grad := make([]r3.Vec, mesh.NumVertices())
	for f := 0; f < mesh.NumFaces(); f++ {
		ids := mesh.VerticesOfFace(f)
		a, b, c := mesh.VertexPosition(ids[0]), mesh.VertexPosition(ids[1]), mesh.VertexPosition(ids[2])
		grad[ids[0]] = r3.Add(grad[ids[0]], r3.Scale(1.0/6, r3.Cross(b, c)))
		grad[ids[1]] = r3.Add(grad[ids[1]], r3.Scale(1.0/6, r3.Cross(c, a)))
		grad[ids[2]] = r3.Add(grad[ids[2]], r3.Scale(1.0/6, r3.Cross(a, b)))
	}
	return grad
}

func (vc Volume) AddJacobianRow(mesh MeshView, dok *sparse.DOK, rowOffset int) {
	g := vc.Gradient(mesh)
	for v, gv := range g {
		dok.Set(rowOffset, col(v, 0), gv.X)
		dok.Set(rowOffset, col(v, 1), gv.Y)
		dok.Set(rowOffset, col(v, 2), gv.Z)
	}
}

func (vc Volume) AddJacobianTimes(mesh MeshView, x []r3.Vec, out []float64, offset int) {
	g := vc.Gradient(mesh)
	var s float64
	for v, gv := range g {
		s += r3.Dot(gv, x[v])
	}
	out[offset] += s
}

func (vc Volume) AddJacobianTransposeTimes(mesh MeshView, lambda []float64, out []r3.Vec, offset int) {
	g := vc.Gradient(mesh)
	lv := lambda[offset]
	for v, gv := range g {
		out[v] = r3.Add(out[v], r3.Scale(lv, gv))
	}
}
