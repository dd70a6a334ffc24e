package constraint

import (
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/spatial/r3"
)

// VertexPin constrains a single vertex's position to Target exactly,
// contributing three rows (x, y, z equality). spec.md §4.7.
type VertexPin struct {
	Vertex int
	Target r3.Vec
}

func (p VertexPin) Rows() int { return 3 }

func (p VertexPin) AddValue(mesh MeshView, out []float64, offset int) {
	pos := mesh.VertexPosition(p.Vertex)
	out[offset+0] += pos.X - p.Target.X
	out[offset+1] += pos.Y - p.Target.Y
	out[offset+2] += pos.Z - p.Target.Z
}

func (p VertexPin) AddJacobianRow(mesh MeshView, dok *sparse.DOK, rowOffset int) {
	dok.Set(rowOffset+0, col(p.Vertex, 0), 1)
	dok.Set(rowOffset+1, col(p.Vertex, 1), 1)
	dok.Set(rowOffset+2, col(p.Vertex, 2), 1)
}

func (p VertexPin) AddJacobianTimes(mesh MeshView, x []r3.Vec, out []float64, offset int) {
	v := x[p.Vertex]
	out[offset+0] += v.X
	out[offset+1] += v.Y
	out[offset+2] += v.Z
}

func (p VertexPin) AddJacobianTransposeTimes(mesh MeshView, lambda []float64, out []r3.Vec, offset int) {
	out[p.Vertex] = r3.Add(out[p.Vertex], r3.Vec{X: lambda[offset+0], Y: lambda[offset+1], Z: lambda[offset+2]})
}
