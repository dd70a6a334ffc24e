package sobolev

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// MeshView is the read-only face/vertex query surface this package
// needs. Declared locally (rather than importing the root
// tpeflow.MeshView) because the root package's SurfaceFlow needs to
// import this package, and Go forbids the reverse import; any type
// satisfying tpeflow.MeshView satisfies this interface too.
type MeshView interface {
	NumFaces() int
	NumVertices() int
	FaceArea(f int) float64
	FaceNormal(f int) r3.Vec
	VertexPosition(v int) r3.Vec
	VerticesOfFace(f int) [3]int
}

// VertexSetter is a MeshView that also allows writing vertex positions,
// needed by Backproject's constraint-restoration step.
type VertexSetter interface {
	MeshView
	SetVertexPosition(v int, p r3.Vec)
}

// GradientBasis precomputes, for every face, the three hat-function
// gradients ∇φ_{v_k}|_f of its local vertices — the standard P1
// finite-element basis gradient used to reconstruct a per-face vector
// gradient from per-vertex scalar nodal values, and its adjoint used to
// scatter a per-face vector back onto vertices.
type GradientBasis struct {
	mesh  MeshView
	basis [][3]r3.Vec
}

// NewGradientBasis builds a GradientBasis over every face of mesh.
func NewGradientBasis(mesh MeshView) *GradientBasis {
	gb := &GradientBasis{mesh: mesh, basis: make([][3]r3.Vec, mesh.NumFaces())}
	for f := 0; f < mesh.NumFaces(); f++ {
		gb.basis[f] = faceGradientBasis(mesh, f)
	}
	return gb
}

// faceGradientBasis returns ∇φ_{v0}, ∇φ_{v1}, ∇φ_{v2} on face f, via the
// standard in-plane rotate-the-opposite-edge construction: ∇φ_k =
// (n × opposite_edge) / (2*area).
func faceGradientBasis(mesh MeshView, f int) [3]r3.Vec {
	ids := mesh.VerticesOfFace(f)
	v0, v1, v2 := mesh.VertexPosition(ids[0]), mesh.VertexPosition(ids[1]), mesh.VertexPosition(ids[2])
	n := mesh.FaceNormal(f)
	area := mesh.FaceArea(f)
	if area < 1e-300 {
		return [3]r3.Vec{}
	}
	inv2A := 1 / (2 * area)
	return [3]r3.Vec{
		r3.Scale(inv2A, r3.Cross(n, r3.Sub(v2, v1))),
		r3.Scale(inv2A, r3.Cross(n, r3.Sub(v0, v2))),
		r3.Scale(inv2A, r3.Cross(n, r3.Sub(v1, v0))),
	}
}

// FaceGradient reconstructs the gradient, on face f, of the P1 function
// with per-vertex nodal values g.
func (gb *GradientBasis) FaceGradient(f int, g []float64) r3.Vec {
	ids := gb.mesh.VerticesOfFace(f)
	b := gb.basis[f]
	return r3.Add(r3.Scale(g[ids[0]], b[0]),
		r3.Add(r3.Scale(g[ids[1]], b[1]), r3.Scale(g[ids[2]], b[2])))
}

// MeanGradient returns the mean of face f's three hat-function gradient
// vectors, a single representative vector used by the dense high-order
// operator's gradient-mismatch term (see dense.go).
func (gb *GradientBasis) MeanGradient(f int) r3.Vec {
	b := gb.basis[f]
	return r3.Scale(1.0/3.0, r3.Add(b[0], r3.Add(b[1], b[2])))
}

// Scatter accumulates the adjoint of FaceGradient into out: for each of
// face f's three vertices v, out[v] += ∇φ_v|_f · h.
func (gb *GradientBasis) Scatter(f int, h r3.Vec, out []float64) {
	ids := gb.mesh.VerticesOfFace(f)
	b := gb.basis[f]
	out[ids[0]] += r3.Dot(b[0], h)
	out[ids[1]] += r3.Dot(b[1], h)
	out[ids[2]] += r3.Dot(b[2], h)
}
