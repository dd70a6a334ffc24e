package remesh

import (
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/soypat/tpeflow/internal/d3"
)

// kdFace is a k-d tree element over a face's three vertex positions,
// grounded on the teacher's render/kdrender.go kdTriangle: comparisons
// and distances are computed against the face's centroid rather than
// materializing it as a field, and Bounds reuses the same
// min/max-over-vertices construction.
type kdFace struct {
	V      [3]r3.Vec
	FaceID int
}

func (a kdFace) centroid() r3.Vec {
	return r3.Scale(1.0/3.0, r3.Add(a.V[0], r3.Add(a.V[1], a.V[2])))
}

// Compare returns the signed distance along dimension d between a and
// b's centroids.
func (a kdFace) Compare(b kdtree.Comparable, d kdtree.Dim) float64 {
	return compCentroid(a, b.(kdFace), int(d))
}

// Dims reports the 3 spatial dimensions over which faces are indexed.
func (a kdFace) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between centroids.
func (a kdFace) Distance(b kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(a.centroid(), b.(kdFace).centroid()))
}

func (a kdFace) Bounds() *kdtree.Bounding {
	min := d3.MinElem(a.V[2], d3.MinElem(a.V[0], a.V[1]))
	max := d3.MaxElem(a.V[2], d3.MaxElem(a.V[0], a.V[1]))
	return &kdtree.Bounding{
		Min: kdFace{V: [3]r3.Vec{min, min, min}},
		Max: kdFace{V: [3]r3.Vec{max, max, max}},
	}
}

// kdFaces implements kdtree.Interface and kdtree.Bounder, the slice
// side of the kdFace/kdtree pairing above (mirroring kdrender.go's
// kdTriangles).
type kdFaces []kdFace

func (k kdFaces) Index(i int) kdtree.Comparable { return k[i] }
func (k kdFaces) Len() int                      { return len(k) }

func (k kdFaces) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(kdFacePlane{dim: int(d), faces: k}, kdtree.MedianOfMedians(kdFacePlane{dim: int(d), faces: k}))
}

func (k kdFaces) Slice(start, end int) kdtree.Interface {
	return k[start:end]
}

func (k kdFaces) Bounds() *kdtree.Bounding {
	if len(k) == 0 {
		return nil
	}
	bb := k[0].Bounds()
	min, max := bb.Min.(kdFace).V[0], bb.Max.(kdFace).V[0]
	for _, f := range k[1:] {
		b := f.Bounds()
		min = d3.MinElem(min, b.Min.(kdFace).V[0])
		max = d3.MaxElem(max, b.Max.(kdFace).V[0])
	}
	return &kdtree.Bounding{
		Min: kdFace{V: [3]r3.Vec{min, min, min}},
		Max: kdFace{V: [3]r3.Vec{max, max, max}},
	}
}

// kdFacePlane sorts a dimension's projected centroid coordinates,
// mirroring kdrender.go's kdPlane.
type kdFacePlane struct {
	dim   int
	faces kdFaces
}

func (p kdFacePlane) Less(i, j int) bool {
	return compCentroid(p.faces[i], p.faces[j], p.dim) < 0
}

func compCentroid(a, b kdFace, dim int) float64 {
	ac, bc := a.centroid(), b.centroid()
	switch dim {
	case 0:
		return ac.X - bc.X
	case 1:
		return ac.Y - bc.Y
	default:
		return ac.Z - bc.Z
	}
}

func (p kdFacePlane) Swap(i, j int) {
	p.faces[i], p.faces[j] = p.faces[j], p.faces[i]
}
func (p kdFacePlane) Len() int { return len(p.faces) }
func (p kdFacePlane) Slice(start, end int) kdtree.SortSlicer {
	p.faces = p.faces[start:end]
	return p
}
