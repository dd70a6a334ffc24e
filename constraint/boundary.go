package constraint

import (
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/spatial/r3"
)

// boundaryMesh is the narrow capability BoundaryLength needs beyond
// MeshView: enumerating undirected edges belonging to exactly one
// face. tpeflow/mesh.Mesh implements it (see mesh.Mesh.BoundaryEdges,
// grounded on original_source's boundary_length.h convention per
// SPEC_FULL.md §4.11).
type boundaryMesh interface {
	MeshView
	BoundaryEdges() [][2]int
}

// BoundaryLength constrains the total length of boundary edges (edges
// belonging to exactly one face) to Target. spec.md §4.7.
type BoundaryLength struct {
	Target float64
}

func (b BoundaryLength) Rows() int { return 1 }

func (b BoundaryLength) edges(mesh MeshView) [][2]int {
	bm, ok := mesh.(boundaryMesh)
	if !ok {
		panic("tpeflow/constraint: BoundaryLength requires a mesh implementing BoundaryEdges() [][2]int")
	}
	return bm.BoundaryEdges()
}

func (b BoundaryLength) AddValue(mesh MeshView, out []float64, offset int) {
	var total float64
	for _, e := range b.edges(mesh) {
		total += r3.Norm(r3.Sub(mesh.VertexPosition(e[1]), mesh.VertexPosition(e[0])))
	}
	out[offset] += total - b.Target
}

func (b BoundaryLength) gradient(mesh MeshView) []r3.Vec {
	grad := make([]r3.Vec, mesh.NumVertices())
	for _, e := range b.edges(mesh) {
		pa, pb := mesh.VertexPosition(e[0]), mesh.VertexPosition(e[1])
		d := r3.Sub(pb, pa)
		length := r3.Norm(d)
		if length < 1e-300 {
			continue
		}
		dir := r3.Scale(1/length, d)
		grad[e[0]] = r3.Add(grad[e[0]], r3.Scale(-1, dir))
		grad[e[1]] = r3.Add(grad[e[1]], dir)
	}
	return grad
}

func (b BoundaryLength) AddJacobianRow(mesh MeshView, dok *sparse.DOK, rowOffset int) {
	g := b.gradient(mesh)
	for v, gv := range g {
		dok.Set(rowOffset, col(v, 0), gv.X)
		dok.Set(rowOffset, col(v, 1), gv.Y)
		dok.Set(rowOffset, col(v, 2), gv.Z)
	}
}

func (b BoundaryLength) AddJacobianTimes(mesh MeshView, x []r3.Vec, out []float64, offset int) {
	g := b.gradient(mesh)
	var s float64
	for v, gv := range g {
		s += r3.Dot(gv, x[v])
	}
	out[offset] += s
}

func (b BoundaryLength) AddJacobianTransposeTimes(mesh MeshView, lambda []float64, out []r3.Vec, offset int) {
	g := b.gradient(mesh)
	lv := lambda[offset]
	for v, gv := range g {
		out[v] = r3.Add(out[v], r3.Scale(lv, gv))
	}
}
