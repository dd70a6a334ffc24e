package remesh_test

import (
	"testing"

	"github.com/soypat/tpeflow/mesh"
	"github.com/soypat/tpeflow/remesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// meanEdge recomputes the mean edge length straight from a mesh's face
// buffer, independent of the package's own (unexported) bookkeeping.
func meanEdge(m *mesh.Mesh) float64 {
	seen := make(map[[2]int]bool)
	key := func(a, b int) [2]int {
		if a > b {
			a, b = b, a
		}
		return [2]int{a, b}
	}
	var sum float64
	var n int
	for f := 0; f < m.NumFaces(); f++ {
		tri := m.VerticesOfFace(f)
		edges := [3][2]int{{tri[0], tri[1]}, {tri[1], tri[2]}, {tri[2], tri[0]}}
		for _, e := range edges {
			k := key(e[0], e[1])
			if seen[k] {
				continue
			}
			seen[k] = true
			sum += r3.Norm(r3.Sub(m.VertexPosition(e[0]), m.VertexPosition(e[1])))
			n++
		}
	}
	return sum / float64(n)
}

func TestNoOpNeverChanges(t *testing.T) {
	m := mesh.Icosphere(1, 1.0, r3.Vec{})
	nf, nv := m.NumFaces(), m.NumVertices()
	changed, err := remesh.NoOp{}.Remesh(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatalf("NoOp reported changed=true")
	}
	if m.NumFaces() != nf || m.NumVertices() != nv {
		t.Fatalf("NoOp mutated the mesh: faces %d->%d, verts %d->%d", nf, m.NumFaces(), nv, m.NumVertices())
	}
}

func TestEdgeLengthSplitsLongEdges(t *testing.T) {
	m := mesh.Icosphere(0, 1.0, r3.Vec{}) // coarse, edge-uniform icosahedron
	// target half the actual edge length, so every original edge
	// qualifies as "too long" and at least one split pass is forced.
	target := meanEdge(m) / 2
	er := remesh.EdgeLength{TargetLength: target, MinRatio: 1e-6, MaxRatio: 1.2}

	nf0 := m.NumFaces()
	changedAny := false
	for i := 0; i < 10; i++ {
		changed, err := er.Remesh(m)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		changedAny = changedAny || changed
		if !changed {
			break
		}
	}
	if !changedAny {
		t.Fatalf("expected the coarse icosahedron's long edges to trigger a split")
	}
	if m.NumFaces() <= nf0 {
		t.Fatalf("expected more than the original %d faces after splitting, got %d", nf0, m.NumFaces())
	}

	// after repeated passes every edge should respect the max-length
	// bound: each pass that finds a remaining over-long edge keeps
	// halving it, so a handful of iterations suffices to converge.
	newMax := er.MaxRatio * target * 1.2
	for f := 0; f < m.NumFaces(); f++ {
		tri := m.VerticesOfFace(f)
		for i := 0; i < 3; i++ {
			a, b := tri[i], tri[(i+1)%3]
			l := r3.Norm(r3.Sub(m.VertexPosition(a), m.VertexPosition(b)))
			if l > newMax {
				t.Fatalf("face %d edge (%d,%d) has length %g, want <= %g", f, a, b, l, newMax)
			}
		}
	}
}

func TestEdgeLengthCollapsesShortEdges(t *testing.T) {
	// A unit icosphere subdivided once, then perturbed so one edge is far
	// shorter than the mesh's mean edge length.
	m := mesh.Icosphere(1, 1.0, r3.Vec{})
	target := meanEdge(m)
	// pick an actual edge of the mesh (two vertices of the same face)
	// rather than assuming any two vertex ids are connected.
	tri := m.VerticesOfFace(0)
	v0, v1 := tri[0], tri[1]
	p0 := m.VertexPosition(v0)
	p1 := m.VertexPosition(v1)
	// drag v1 almost onto v0, leaving the connectivity unchanged.
	m.SetVertexPosition(v1, r3.Add(p0, r3.Scale(0.01, r3.Sub(p1, p0))))

	nvBefore := m.NumVertices()
	er := remesh.EdgeLength{TargetLength: target, MinRatio: 0.2, MaxRatio: 1e6}
	changed, err := er.Remesh(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatalf("expected the collapsed near-duplicate vertex to trigger a collapse")
	}
	if m.NumVertices() >= nvBefore {
		t.Fatalf("expected fewer vertices after collapsing, got %d (was %d)", m.NumVertices(), nvBefore)
	}
	for f := 0; f < m.NumFaces(); f++ {
		tri := m.VerticesOfFace(f)
		if tri[0] == tri[1] || tri[1] == tri[2] || tri[2] == tri[0] {
			t.Fatalf("face %d is degenerate after compaction: %v", f, tri)
		}
	}
}

func TestEdgeLengthNoOpOnUniformMesh(t *testing.T) {
	// A fine, near-uniform icosphere: with a wide [Min,Max] band around
	// its own mean edge length, nothing should qualify for split or
	// collapse.
	m := mesh.Icosphere(2, 1.0, r3.Vec{})
	target := meanEdge(m)
	er := remesh.EdgeLength{TargetLength: target, MinRatio: 0.3, MaxRatio: 3.0}
	nf, nv := m.NumFaces(), m.NumVertices()
	changed, err := er.Remesh(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatalf("did not expect a uniform mesh with a wide ratio band to change")
	}
	if m.NumFaces() != nf || m.NumVertices() != nv {
		t.Fatalf("mesh size changed despite changed=false: faces %d->%d, verts %d->%d", nf, m.NumFaces(), nv, m.NumVertices())
	}
}

// zero-value EdgeLength should fall back to the package's default ratios
// and target length (mean edge length) rather than a no-op or a panic.
func TestEdgeLengthZeroValueUsesDefaults(t *testing.T) {
	m := mesh.Icosphere(0, 1.0, r3.Vec{})
	// the base icosahedron is perfectly edge-uniform, so push one vertex
	// out to create edges well past the default 1.5x-mean split ratio.
	m.SetVertexPosition(0, r3.Scale(4, m.VertexPosition(0)))
	nf := m.NumFaces()
	er := remesh.EdgeLength{}
	changed, err := er.Remesh(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatalf("expected zero-value EdgeLength (defaults 0.5/1.5 around mean edge length) to still act on a coarse mesh")
	}
	if m.NumFaces() <= nf {
		t.Fatalf("expected splitting to grow the face count, got %d from %d", m.NumFaces(), nf)
	}
}
