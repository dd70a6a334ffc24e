package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Tetrahedron returns a unit regular tetrahedron centered at the origin,
// used by the tetrahedron-invariance end-to-end scenario (spec.md §8.1).
func Tetrahedron() *Mesh {
	// Vertices of a regular tetrahedron inscribed in a unit-radius sphere.
	a := 1.0 / math.Sqrt(3)
	verts := []r3.Vec{
		{X: a, Y: a, Z: a},
		{X: a, Y: -a, Z: -a},
		{X: -a, Y: a, Z: -a},
		{X: -a, Y: -a, Z: a},
	}
	faces := [][3]int{
		{0, 1, 2},
		{0, 3, 1},
		{0, 2, 3},
		{1, 3, 2},
	}
	return New(verts, faces)
}

// Icosphere returns a closed, genus-0 triangulated sphere of the given
// radius centered at center, obtained by subdividing a regular icosahedron
// `subdivisions` times and re-projecting every vertex onto the sphere.
// Used as the bunny-mesh substitute named by spec.md §8.4 ("Bunny mesh (or
// substitute closed genus-0)") and for the two-spheres scenario (§8.2).
func Icosphere(subdivisions int, radius float64, center r3.Vec) *Mesh {
	verts, faces := icosahedron()
	for i := 0; i < subdivisions; i++ {
		verts, faces = subdivide(verts, faces)
	}
	for i, v := range verts {
		verts[i] = r3.Add(center, r3.Scale(radius/r3.Norm(v), v))
	}
	return New(verts, faces)
}

func icosahedron() ([]r3.Vec, [][3]int) {
	t := (1.0 + math.Sqrt(5.0)) / 2.0
	verts := []r3.Vec{
		{X: -1, Y: t, Z: 0}, {X: 1, Y: t, Z: 0}, {X: -1, Y: -t, Z: 0}, {X: 1, Y: -t, Z: 0},
		{X: 0, Y: -1, Z: t}, {X: 0, Y: 1, Z: t}, {X: 0, Y: -1, Z: -t}, {X: 0, Y: 1, Z: -t},
		{X: t, Y: 0, Z: -1}, {X: t, Y: 0, Z: 1}, {X: -t, Y: 0, Z: -1}, {X: -t, Y: 0, Z: 1},
	}
	faces := [][3]int{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}
	return verts, faces
}

// subdivide splits every triangle into four by adding a vertex at each
// edge midpoint, deduplicating shared midpoints via an edge cache.
func subdivide(verts []r3.Vec, faces [][3]int) ([]r3.Vec, [][3]int) {
	midCache := make(map[[2]int]int)
	midpoint := func(a, b int) int {
		k := edgeKey(a, b)
		if idx, ok := midCache[k]; ok {
			return idx
		}
		mid := r3.Scale(0.5, r3.Add(verts[a], verts[b]))
		idx := len(verts)
		verts = append(verts, mid)
		midCache[k] = idx
		return idx
	}
	newFaces := make([][3]int, 0, 4*len(faces))
	for _, tri := range faces {
		a, b, c := tri[0], tri[1], tri[2]
		ab := midpoint(a, b)
		bc := midpoint(b, c)
		ca := midpoint(c, a)
		newFaces = append(newFaces,
			[3]int{a, ab, ca},
			[3]int{b, bc, ab},
			[3]int{c, ca, bc},
			[3]int{ab, bc, ca},
		)
	}
	return verts, newFaces
}

// TwoSpheres returns a single mesh made of two disjoint icospheres of the
// given radius, centered at -offset and +offset along X. Used by the
// two-spheres-repel end-to-end scenario (spec.md §8.2).
func TwoSpheres(subdivisions int, radius, offset float64) *Mesh {
	left := Icosphere(subdivisions, radius, r3.Vec{X: -offset})
	right := Icosphere(subdivisions, radius, r3.Vec{X: offset})
	nv := left.NumVertices()
	verts := append(left.Positions(), right.Positions()...)
	faces := make([][3]int, 0, left.NumFaces()+right.NumFaces())
	for _, tri := range left.faces {
		faces = append(faces, tri)
	}
	for _, tri := range right.faces {
		faces = append(faces, [3]int{tri[0] + nv, tri[1] + nv, tri[2] + nv})
	}
	return New(verts, faces)
}
