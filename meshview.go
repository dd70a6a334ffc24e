package tpeflow

import "gonum.org/v1/gonum/spatial/r3"

// MeshView is a read-only adapter over a triangulated surface. It is the
// capability set every energy, spatial, and projection component in this
// module is written against; SurfaceFlow is the only component allowed to
// mutate vertex positions, and it does so through a separate, narrower
// interface (see VertexSetter).
//
// Face and vertex ids are stable across the lifetime of one MeshView value.
// After remeshing, a new MeshView must be obtained: ids may be reassigned
// and every BVH6D/BlockClusterTree built against the old ids is invalid.
type MeshView interface {
	// NumFaces returns the number of faces, F.
	NumFaces() int
	// NumVertices returns the number of vertices, V.
	NumVertices() int
	// FaceArea returns the area of face f.
	FaceArea(f int) float64
	// FaceNormal returns the unit outward normal of face f.
	FaceNormal(f int) r3.Vec
	// FaceBarycenter returns the barycenter (area centroid) of face f.
	FaceBarycenter(f int) r3.Vec
	// VertexPosition returns the current position of vertex v.
	VertexPosition(v int) r3.Vec
	// FacesContainingVertex returns the ids of every face incident to v.
	FacesContainingVertex(v int) []int
	// VerticesOfFace returns the three vertex ids of face f, in winding order.
	VerticesOfFace(f int) [3]int
	// FaceIndex returns a dense 0..NumFaces()-1 index for face id f.
	// For meshes that never reassign ids this is the identity.
	FaceIndex(f int) int
	// VertexIndex returns a dense 0..NumVertices()-1 index for vertex id v.
	VertexIndex(v int) int
}

// VertexSetter is implemented by mutable meshes. SurfaceFlow is the only
// component in this module that calls SetVertexPosition, and only from its
// commit phase, outside of any parallel region (see spec §5).
type VertexSetter interface {
	MeshView
	SetVertexPosition(v int, p r3.Vec)
}

// unionOfFaceVertices writes the (at most 6, usually 4) distinct vertex ids
// incident to either face f or f2 into dst and returns the slice used.
// Implementations may use a small on-stack array since no face pair shares
// more than a handful of vertices in a manifold triangle mesh.
func unionOfFaceVertices(m MeshView, f, f2 int, dst *[6]int) []int {
	n := 0
	va := m.VerticesOfFace(f)
	for _, v := range va {
		dst[n] = v
		n++
	}
	if f2 == f {
		return dst[:n]
	}
	vb := m.VerticesOfFace(f2)
outer:
	for _, v := range vb {
		for i := 0; i < n; i++ {
			if dst[i] == v {
				continue outer
			}
		}
		dst[n] = v
		n++
	}
	return dst[:n]
}
