// Package constraint implements spec.md §4.7's ConstraintSet: linear (or
// shape-linearized) constraints on vertex positions — total area, total
// volume, boundary length, vertex pins — exposing both a matrix-free
// product API (used by HsProjector's Schur-complement solve) and a
// sparse COO Jacobian builder (used for dense verification and any
// caller that wants the assembled Jacobian directly).
package constraint

import (
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/spatial/r3"
)

// MeshView is the read-only face/vertex query surface the constraints in
// this package need. Declared locally (rather than importing the root
// tpeflow.MeshView) because the root package's SurfaceFlow needs to
// import this package, and Go forbids the reverse import; any type
// satisfying tpeflow.MeshView satisfies this interface too, since its
// method set is a superset of the one below.
type MeshView interface {
	NumFaces() int
	NumVertices() int
	FaceArea(f int) float64
	VertexPosition(v int) r3.Vec
	VerticesOfFace(f int) [3]int
}

// Constraint is one row (or block of rows) of a linear equality
// constraint on the current mesh's vertex positions. Identity is
// structural: two Constraint values of the same concrete type and
// fields are interchangeable, per spec.md §3's "identity is structural"
// note.
type Constraint interface {
	// Rows returns the number of scalar equality rows this constraint
	// contributes (1 for area/volume/boundary length, 3 for a vertex pin).
	Rows() int
	// AddValue writes the current violation (actual - target) for each of
	// this constraint's rows into out[offset:offset+Rows()].
	AddValue(mesh MeshView, out []float64, offset int)
	// AddJacobianRow appends this constraint's Jacobian entries, row-major
	// over (row, 3*vertex+axis), into dok starting at row rowOffset.
	AddJacobianRow(mesh MeshView, dok *sparse.DOK, rowOffset int)
	// AddJacobianTimes adds J*x (a Rows()-length vector, J the Jacobian
	// w.r.t. vertex positions) into out[offset:offset+Rows()]. x is
	// indexed by vertex id, one r3.Vec per vertex.
	AddJacobianTimes(mesh MeshView, x []r3.Vec, out []float64, offset int)
	// AddJacobianTransposeTimes adds J^T*lambda (a per-vertex r3.Vec field)
	// into out, reading lambda[offset:offset+Rows()].
	AddJacobianTransposeTimes(mesh MeshView, lambda []float64, out []r3.Vec, offset int)
}

// Set is an ordered collection of constraints, concatenated row-wise.
type Set struct {
	Constraints []Constraint
}

// Rows returns the total number of scalar equality rows across every
// constraint in the set.
func (s *Set) Rows() int {
	n := 0
	for _, c := range s.Constraints {
		n += c.Rows()
	}
	return n
}

// Value returns the current violation vector, length Rows().
func (s *Set) Value(mesh MeshView) []float64 {
	out := make([]float64, s.Rows())
	offset := 0
	for _, c := range s.Constraints {
		c.AddValue(mesh, out, offset)
		offset += c.Rows()
	}
	return out
}

// JacobianTimes returns J*x for the whole set's stacked Jacobian.
func (s *Set) JacobianTimes(mesh MeshView, x []r3.Vec) []float64 {
	out := make([]float64, s.Rows())
	offset := 0
	for _, c := range s.Constraints {
		c.AddJacobianTimes(mesh, x, out, offset)
		offset += c.Rows()
	}
	return out
}

// JacobianTransposeTimes returns J^T*lambda as a per-vertex r3.Vec field.
func (s *Set) JacobianTransposeTimes(mesh MeshView, lambda []float64) []r3.Vec {
	out := make([]r3.Vec, mesh.NumVertices())
	offset := 0
	for _, c := range s.Constraints {
		c.AddJacobianTransposeTimes(mesh, lambda, out, offset)
		offset += c.Rows()
	}
	return out
}

// JacobianCOO assembles the full sparse Jacobian (Rows() x 3*NumVertices,
// columns ordered [v0.x,v0.y,v0.z,v1.x,...]) via github.com/james-bowman/sparse's
// DOK builder. Used by tests and any caller that wants the dense/sparse
// matrix directly rather than the matrix-free product API HsProjector uses.
func (s *Set) JacobianCOO(mesh MeshView) *sparse.DOK {
	dok := sparse.NewDOK(s.Rows(), 3*mesh.NumVertices())
	offset := 0
	for _, c := range s.Constraints {
		c.AddJacobianRow(mesh, dok, offset)
		offset += c.Rows()
	}
	return dok
}

// col returns the flattened column index for vertex v's axis-th
// coordinate (0=x, 1=y, 2=z), matching JacobianCOO's column ordering.
func col(v, axis int) int { return 3*v + axis }
