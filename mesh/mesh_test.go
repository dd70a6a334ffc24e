package mesh_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/soypat/tpeflow/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestTetrahedronClosed(t *testing.T) {
	m := mesh.Tetrahedron()
	edges := m.BoundaryEdges()
	if len(edges) != 0 {
		t.Fatalf("tetrahedron should be closed, got %d boundary edges", len(edges))
	}
	if m.NumFaces() != 4 || m.NumVertices() != 4 {
		t.Fatalf("unexpected tetrahedron size: %d faces, %d verts", m.NumFaces(), m.NumVertices())
	}
}

func TestIcosphereClosedAndAreaPositive(t *testing.T) {
	m := mesh.Icosphere(2, 1.0, r3.Vec{})
	if len(m.BoundaryEdges()) != 0 {
		t.Fatalf("icosphere should be closed")
	}
	area := m.TotalArea()
	// surface area of unit sphere is 4*pi; faceted approximation should be close.
	want := 4 * math.Pi
	if math.Abs(area-want)/want > 0.05 {
		t.Fatalf("icosphere area %g too far from sphere area %g", area, want)
	}
	vol := m.TotalVolume()
	wantVol := 4.0 / 3.0 * math.Pi
	if math.Abs(vol-wantVol)/wantVol > 0.05 {
		t.Fatalf("icosphere volume %g too far from sphere volume %g", vol, wantVol)
	}
}

func TestFacesContainingVertex(t *testing.T) {
	m := mesh.Tetrahedron()
	for v := 0; v < m.NumVertices(); v++ {
		faces := m.FacesContainingVertex(v)
		if len(faces) != 3 {
			t.Fatalf("vertex %d: want 3 incident faces on a tetrahedron, got %d", v, len(faces))
		}
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	m := mesh.Icosphere(1, 1.0, r3.Vec{})
	snap := m.Positions()
	for v := 0; v < m.NumVertices(); v++ {
		m.SetVertexPosition(v, r3.Add(m.VertexPosition(v), r3.Vec{X: 1, Y: 2, Z: 3}))
	}
	m.SetPositions(snap)
	got := m.Positions()
	for i := range got {
		if got[i] != snap[i] {
			t.Fatalf("restore mismatch at vertex %d: got %v want %v", i, got[i], snap[i])
		}
	}
}

func TestSTLRoundTrip(t *testing.T) {
	m := mesh.Tetrahedron()
	var buf bytes.Buffer
	if err := mesh.WriteSTL(&buf, m); err != nil {
		t.Fatal(err)
	}
	got, err := mesh.ReadSTL(&buf, 1e-6)
	if err != nil {
		t.Fatal(err)
	}
	if got.NumFaces() != m.NumFaces() {
		t.Fatalf("face count mismatch: got %d want %d", got.NumFaces(), m.NumFaces())
	}
	if got.NumVertices() != m.NumVertices() {
		t.Fatalf("vertex count mismatch after welding: got %d want %d", got.NumVertices(), m.NumVertices())
	}
}

func TestTwoSpheresDisjoint(t *testing.T) {
	m := mesh.TwoSpheres(1, 0.5, 1.5)
	if len(m.BoundaryEdges()) != 0 {
		t.Fatalf("two spheres mesh should have no boundary")
	}
	if m.NumFaces() == 0 {
		t.Fatal("expected nonzero faces")
	}
}
