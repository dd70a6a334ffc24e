package bct_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/soypat/tpeflow/bct"
	"github.com/soypat/tpeflow/mesh"
	"github.com/soypat/tpeflow/spatial"
	"gonum.org/v1/gonum/spatial/r3"
)

func bodiesOf(m *mesh.Mesh) []spatial.Body6 {
	bodies := make([]spatial.Body6, m.NumFaces())
	for f := 0; f < m.NumFaces(); f++ {
		bodies[f] = spatial.Body6{
			Mass:   m.FaceArea(f),
			Pos:    m.FaceBarycenter(f),
			Normal: m.FaceNormal(f),
			FaceID: f,
		}
	}
	return bodies
}

func buildTree(m *mesh.Mesh, theta, s float64) *bct.Tree {
	bvh := spatial.Build(bodiesOf(m), theta)
	return bct.Build(bvh, theta, s, 8)
}

func ks(x, y r3.Vec, s float64) float64 {
	d2 := r3.Norm2(r3.Sub(x, y))
	return 1 / math.Pow(d2, 1+s)
}

// denseMultiply computes A*v directly from the mesh's face bodies with
// no hierarchical approximation, the reference implementation for the
// BCT-vs-dense property.
func denseMultiply(bodies []spatial.Body6, s float64, v []float64) []float64 {
	n := len(bodies)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		var acc float64
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			w := 2 * bodies[i].Mass * bodies[j].Mass * ks(bodies[i].Pos, bodies[j].Pos, s)
			acc += w * (v[i] - v[j])
		}
		y[i] = acc
	}
	return y
}

func randomVec(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	return v
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func TestOperatorSymmetry(t *testing.T) {
	m := mesh.Icosphere(1, 1.0, r3.Vec{})
	tree := buildTree(m, 0.25, 4.0/3.0)
	u := randomVec(m.NumFaces(), 1)
	v := randomVec(m.NumFaces(), 2)

	uAv := dot(u, tree.Multiply(v))
	Auv := dot(tree.Multiply(u), v)
	rel := math.Abs(uAv-Auv) / math.Max(math.Abs(uAv), 1e-12)
	if rel > 1e-6 {
		t.Fatalf("operator not symmetric: <u,Av>=%g, <Au,v>=%g, relative error %g", uAv, Auv, rel)
	}
}

func TestOperatorPSD(t *testing.T) {
	m := mesh.Icosphere(1, 1.0, r3.Vec{})
	tree := buildTree(m, 0.25, 4.0/3.0)
	for seed := int64(0); seed < 5; seed++ {
		v := randomVec(m.NumFaces(), seed)
		q := dot(v, tree.Multiply(v))
		if q < -1e-6*math.Abs(q+1) {
			t.Fatalf("seed %d: <v,Av>=%g, want >= 0", seed, q)
		}
	}
}

func TestBCTVsDense(t *testing.T) {
	m := mesh.Icosphere(1, 1.0, r3.Vec{})
	bodies := bodiesOf(m)
	const s = 4.0 / 3.0
	v := randomVec(m.NumFaces(), 7)
	dense := denseMultiply(bodies, s, v)

	for _, tc := range []struct {
		theta, tol float64
	}{
		{0.25, 1e-3},
		{0.05, 1e-5},
	} {
		tree := buildTree(m, tc.theta, s)
		got := tree.Multiply(v)
		var num, den float64
		for i := range dense {
			diff := got[i] - dense[i]
			num += diff * diff
			den += dense[i] * dense[i]
		}
		rel := math.Sqrt(num / den)
		if rel > tc.tol {
			t.Fatalf("theta=%g: relative error %g exceeds tolerance %g", tc.theta, rel, tc.tol)
		}
	}
}

func TestPairPartitionExcludesSelfPairs(t *testing.T) {
	m := mesh.Tetrahedron()
	tree := buildTree(m, 0.25, 4.0/3.0)
	for _, p := range tree.Inadmissible {
		if p.I == p.J {
			ni := tree.BVH.Nodes[p.I]
			if ni.NodeType == spatial.Leaf {
				t.Fatalf("found a leaf self-pair in Inadmissible: node %d", p.I)
			}
		}
	}
	for _, p := range tree.Admissible {
		if p.I == p.J {
			t.Fatalf("found a self-pair (%d,%d) in Admissible; AdmissiblePair should reject equal ids", p.I, p.J)
		}
	}
}

func TestAf1MatchesRowSums(t *testing.T) {
	m := mesh.Tetrahedron()
	const s = 4.0 / 3.0
	tree := buildTree(m, 0.25, s)
	bodies := bodiesOf(m)
	for i := 0; i < m.NumFaces(); i++ {
		var want float64
		for j := 0; j < m.NumFaces(); j++ {
			if i == j {
				continue
			}
			want += bodies[j].Mass * ks(bodies[i].Pos, bodies[j].Pos, s)
		}
		want *= bodies[i].Mass
		if math.Abs(tree.Af1[i]-want) > 1e-9*math.Max(1, math.Abs(want)) {
			t.Fatalf("face %d: Af1=%g, want %g", i, tree.Af1[i], want)
		}
	}
}
