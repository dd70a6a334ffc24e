// Package remesh implements the C9 Remesher interface (spec.md §4.9/§6):
// an external collaborator whose only specified contract is its effect
// on connectivity and the area/normal invariants it must preserve.
// NoOp satisfies the interface trivially; EdgeLength supplies the one
// concrete, tested implementation the expanded spec calls for so the
// interface's effect is exercisable end to end.
package remesh

import "gonum.org/v1/gonum/spatial/r3"

// Mesh is the read/rebuild surface a Remesher needs. Declared locally
// (rather than importing the root tpeflow package or tpeflow/mesh)
// because the root package's SurfaceFlow needs to import this package,
// and Go forbids the reverse import; *mesh.Mesh satisfies this
// interface structurally.
type Mesh interface {
	NumFaces() int
	NumVertices() int
	VerticesOfFace(f int) [3]int
	VertexPosition(v int) r3.Vec
	Positions() []r3.Vec
	Faces() [][3]int
	Rebuild(verts []r3.Vec, faces [][3]int)
}

// Remesher is the external collaborator spec.md §1 places out of scope
// beyond this interface: SurfaceFlow calls it once per iteration (after
// the line search commits) and, when it reports changed, invalidates
// its BVH6D and BlockClusterTree before the next iteration since face
// and vertex ids may have been reassigned by Rebuild.
type Remesher interface {
	// Remesh inspects and may rewrite m's connectivity in place (via
	// m.Rebuild). changed reports whether ids were reassigned.
	Remesh(m Mesh) (changed bool, err error)
}

// NoOp never modifies the mesh. The zero value is ready to use; it is
// the default when SurfaceFlow.Remesher is left nil.
type NoOp struct{}

// Remesh implements Remesher by doing nothing.
func (NoOp) Remesh(m Mesh) (changed bool, err error) { return false, nil }
