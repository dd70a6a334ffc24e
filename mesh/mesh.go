// Package mesh provides a concrete, mutable triangle mesh implementing
// tpeflow.MeshView, plus a handful of closed-surface fixture builders used
// by tests and the benchmark command.
//
// The type is grounded on the teacher's helpers/sdfexp.Mesh (an index
// buffer plus a vertex buffer and an edge-adjacency map built once at
// import time) but is mutable: SurfaceFlow commits new vertex positions
// into it every iteration, and the Remesher interface rebuilds its face
// and vertex buffers wholesale when connectivity changes.
package mesh

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is a triangulated closed (or open, with boundary) surface.
// The zero value is not usable; construct with New.
type Mesh struct {
	verts []r3.Vec
	faces [][3]int // vertex ids per face, winding order

	vertFaces [][]int // vertex id -> incident face ids, built by New and Rebuild
	dirty     bool    // vertFaces needs rebuilding
}

// New builds a Mesh from a vertex buffer and a triangle index buffer.
// verts and faces are copied; the caller's slices are not aliased.
func New(verts []r3.Vec, faces [][3]int) *Mesh {
	m := &Mesh{
		verts: append([]r3.Vec(nil), verts...),
		faces: append([][3]int(nil), faces...),
	}
	m.rebuildAdjacency()
	return m
}

func (m *Mesh) rebuildAdjacency() {
	m.vertFaces = make([][]int, len(m.verts))
	for f, tri := range m.faces {
		for _, v := range tri {
			m.vertFaces[v] = append(m.vertFaces[v], f)
		}
	}
	m.dirty = false
}

// NumFaces implements tpeflow.MeshView.
func (m *Mesh) NumFaces() int { return len(m.faces) }

// NumVertices implements tpeflow.MeshView.
func (m *Mesh) NumVertices() int { return len(m.verts) }

// VerticesOfFace implements tpeflow.MeshView.
func (m *Mesh) VerticesOfFace(f int) [3]int { return m.faces[f] }

// FaceIndex implements tpeflow.MeshView. Mesh never reassigns ids except
// on a full Rebuild, so this is the identity map.
func (m *Mesh) FaceIndex(f int) int { return f }

// VertexIndex implements tpeflow.MeshView.
func (m *Mesh) VertexIndex(v int) int { return v }

// VertexPosition implements tpeflow.MeshView.
func (m *Mesh) VertexPosition(v int) r3.Vec { return m.verts[v] }

// SetVertexPosition implements tpeflow.VertexSetter.
func (m *Mesh) SetVertexPosition(v int, p r3.Vec) { m.verts[v] = p }

// FacesContainingVertex implements tpeflow.MeshView.
func (m *Mesh) FacesContainingVertex(v int) []int {
	if m.dirty {
		m.rebuildAdjacency()
	}
	return m.vertFaces[v]
}

func (m *Mesh) faceVerts(f int) (a, b, c r3.Vec) {
	tri := m.faces[f]
	return m.verts[tri[0]], m.verts[tri[1]], m.verts[tri[2]]
}

// FaceNormal implements tpeflow.MeshView. Returns the unit normal, or the
// zero vector for a degenerate (zero-area) face.
func (m *Mesh) FaceNormal(f int) r3.Vec {
	a, b, c := m.faceVerts(f)
	cr := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	n2 := r3.Norm2(cr)
	if n2 < 1e-300 {
		return r3.Vec{}
	}
	return r3.Scale(1/r3.Norm(cr), cr)
}

// FaceArea implements tpeflow.MeshView.
func (m *Mesh) FaceArea(f int) float64 {
	a, b, c := m.faceVerts(f)
	cr := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	return 0.5 * r3.Norm(cr)
}

// FaceBarycenter implements tpeflow.MeshView.
func (m *Mesh) FaceBarycenter(f int) r3.Vec {
	a, b, c := m.faceVerts(f)
	return r3.Scale(1.0/3.0, r3.Add(a, r3.Add(b, c)))
}

// Positions returns a copy of the current vertex positions, in vertex id
// order. Used by a Remesher to read the current vertex buffer and by
// tests to snapshot state.
func (m *Mesh) Positions() []r3.Vec {
	return append([]r3.Vec(nil), m.verts...)
}

// Faces returns a copy of the face index buffer (vertex ids per face, in
// winding order). Used by a Remesher to read current connectivity before
// calling Rebuild with the new buffers.
func (m *Mesh) Faces() [][3]int {
	return append([][3]int(nil), m.faces...)
}

// SetPositions overwrites every vertex position from p, which must have
// length NumVertices(). Restores a snapshot taken with Positions.
func (m *Mesh) SetPositions(p []r3.Vec) {
	if len(p) != len(m.verts) {
		panic(fmt.Sprintf("tpeflow/mesh: SetPositions: got %d positions, mesh has %d vertices", len(p), len(m.verts)))
	}
	copy(m.verts, p)
}

// Rebuild replaces the face and vertex buffers wholesale (e.g. after
// remeshing) and reassigns ids from zero. Any BVH6D/BlockClusterTree built
// against the previous ids is invalidated.
func (m *Mesh) Rebuild(verts []r3.Vec, faces [][3]int) {
	m.verts = append([]r3.Vec(nil), verts...)
	m.faces = append([][3]int(nil), faces...)
	m.rebuildAdjacency()
}

// edgeKey returns a canonical (order-independent) key for the undirected
// edge (a,b).
func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// BoundaryEdges returns the undirected edges that belong to exactly one
// face. Supplements spec.md §4.7's "boundary length" constraint, which
// names boundary length as a supplied constraint but does not specify how
// boundary edges are identified; grounded on original_source's
// boundary_length.h convention (an edge is a boundary edge iff it is
// adjacent to exactly one triangle).
func (m *Mesh) BoundaryEdges() [][2]int {
	counts := make(map[[2]int]int, 3*len(m.faces))
	for _, tri := range m.faces {
		counts[edgeKey(tri[0], tri[1])]++
		counts[edgeKey(tri[1], tri[2])]++
		counts[edgeKey(tri[2], tri[0])]++
	}
	var out [][2]int
	for e, c := range counts {
		if c == 1 {
			out = append(out, e)
		}
	}
	return out
}

// TotalArea returns the sum of face areas.
func (m *Mesh) TotalArea() float64 {
	var a float64
	for f := range m.faces {
		a += m.FaceArea(f)
	}
	return a
}

// TotalVolume returns the signed volume enclosed by the (assumed closed,
// consistently wound) mesh via the divergence theorem applied to the
// tetrahedra formed by each face and the origin.
func (m *Mesh) TotalVolume() float64 {
	var v float64
	for _, tri := range m.faces {
		a, b, c := m.verts[tri[0]], m.verts[tri[1]], m.verts[tri[2]]
		v += r3.Dot(a, r3.Cross(b, c))
	}
	return v / 6.0
}
