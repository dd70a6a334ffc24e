package remesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// EdgeLength is an edge-length-driven Remesher: it splits edges longer
// than MaxRatio*target and collapses edges shorter than MinRatio*target,
// where target is TargetLength if positive, otherwise the mesh's mean
// edge length at the time Remesh is called. Grounded on
// original_source/src/remeshing/remeshing.cpp's high-level algorithm
// (split long edges, collapse short edges) but re-expressed without its
// Delaunay-flip pass, which needs half-edge valence queries this
// module's Mesh contract doesn't expose.
type EdgeLength struct {
	TargetLength     float64
	MinRatio         float64 // default 0.5
	MaxRatio         float64 // default 1.5
	FoldoverGuardEps float64 // default 0.1 * target
}

func (e EdgeLength) minRatio() float64 {
	if e.MinRatio > 0 {
		return e.MinRatio
	}
	return 0.5
}

func (e EdgeLength) maxRatio() float64 {
	if e.MaxRatio > 0 {
		return e.MaxRatio
	}
	return 1.5
}

// edgeKey returns a canonical (order-independent) key for edge (a,b).
func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// builder holds the mutable vertex/face buffers an EdgeLength pass
// edits in place before a final compaction pass produces the new
// buffers handed to Mesh.Rebuild.
type builder struct {
	verts []r3.Vec
	faces [][3]int
	alive []bool
}

func newBuilder(m Mesh) *builder {
	b := &builder{
		verts: m.Positions(),
		faces: m.Faces(),
	}
	b.alive = make([]bool, len(b.faces))
	for i := range b.alive {
		b.alive[i] = true
	}
	return b
}

func (b *builder) addVertex(p r3.Vec) int {
	b.verts = append(b.verts, p)
	return len(b.verts) - 1
}

func (b *builder) addFace(tri [3]int) {
	b.faces = append(b.faces, tri)
	b.alive = append(b.alive, true)
}

// edgeFaces returns, for every edge present among live faces, the ids
// of the (at most two, for a manifold mesh) live faces containing it.
func (b *builder) edgeFaces() map[[2]int][]int {
	out := make(map[[2]int][]int, 3*len(b.faces))
	for f, tri := range b.faces {
		if !b.alive[f] {
			continue
		}
		out[edgeKey(tri[0], tri[1])] = append(out[edgeKey(tri[0], tri[1])], f)
		out[edgeKey(tri[1], tri[2])] = append(out[edgeKey(tri[1], tri[2])], f)
		out[edgeKey(tri[2], tri[0])] = append(out[edgeKey(tri[2], tri[0])], f)
	}
	return out
}

func (b *builder) edgeLength(e [2]int) float64 {
	return r3.Norm(r3.Sub(b.verts[e[0]], b.verts[e[1]]))
}

func (b *builder) meanEdgeLength() float64 {
	ef := b.edgeFaces()
	if len(ef) == 0 {
		return 0
	}
	var sum float64
	for e := range ef {
		sum += b.edgeLength(e)
	}
	return sum / float64(len(ef))
}

// splitEdgeOfFace replaces face tri's edge (u0,u1) — given in tri's own
// winding order, u2 the opposite vertex — with the two faces (u0,m,u2)
// and (m,u1,u2), preserving winding.
func splitEdgeOfFace(tri [3]int, a, b, mid int) (faceA, faceB [3]int, ok bool) {
	for i := 0; i < 3; i++ {
		u0, u1, u2 := tri[i], tri[(i+1)%3], tri[(i+2)%3]
		if u0 == a && u1 == b {
			return [3]int{u0, mid, u2}, [3]int{mid, u1, u2}, true
		}
		if u0 == b && u1 == a {
			return [3]int{u0, mid, u2}, [3]int{mid, u1, u2}, true
		}
	}
	return [3]int{}, [3]int{}, false
}

// splitLongEdges inserts a midpoint vertex on every edge longer than
// maxLen and retriangulates its incident faces around that midpoint.
// Edges are collected once up front so that a face split while
// processing one edge is never revisited for another of its original
// (now-replaced) edges in the same pass.
func (b *builder) splitLongEdges(maxLen float64) bool {
	ef := b.edgeFaces()
	changed := false
	for e, fs := range ef {
		if b.edgeLength(e) <= maxLen {
			continue
		}
		mid := b.addVertex(r3.Scale(0.5, r3.Add(b.verts[e[0]], b.verts[e[1]])))
		for _, f := range fs {
			if !b.alive[f] {
				continue // already consumed by a prior edge split this pass
			}
			faceA, faceB, ok := splitEdgeOfFace(b.faces[f], e[0], e[1], mid)
			if !ok {
				continue
			}
			b.alive[f] = false
			b.addFace(faceA)
			b.addFace(faceB)
			changed = true
		}
	}
	return changed
}

// collapseShortEdges merges, for every edge shorter than minLen, its
// second endpoint into its first at their midpoint, dropping the faces
// that degenerate as a result. guard, when non-nil, is consulted before
// each collapse and may veto it.
func (b *builder) collapseShortEdges(minLen float64, guard func(b *builder, a, v int, mid r3.Vec) bool) bool {
	changed := false
	for {
		ef := b.edgeFaces()
		did := false
		for e, fs := range ef {
			if len(fs) != 2 {
				continue // boundary or non-manifold edge: leave it alone
			}
			if b.edgeLength(e) >= minLen {
				continue
			}
			a, v := e[0], e[1]
			mid := r3.Scale(0.5, r3.Add(b.verts[a], b.verts[v]))
			if guard != nil && !guard(b, a, v, mid) {
				continue
			}
			b.verts[a] = mid
			for f, tri := range b.faces {
				if !b.alive[f] {
					continue
				}
				for i, id := range tri {
					if id == v {
						tri[i] = a
					}
				}
				b.faces[f] = tri
				if tri[0] == tri[1] || tri[1] == tri[2] || tri[2] == tri[0] {
					b.alive[f] = false
				}
			}
			changed, did = true, true
			break // restart: edgeFaces() is now stale
		}
		if !did {
			break
		}
	}
	return changed
}

// compact drops dead faces and any vertex no longer referenced by a
// live face, renumbering both from zero.
func (b *builder) compact() ([]r3.Vec, [][3]int) {
	faces := make([][3]int, 0, len(b.faces))
	for f, tri := range b.faces {
		if b.alive[f] {
			faces = append(faces, tri)
		}
	}
	remap := make([]int, len(b.verts))
	for i := range remap {
		remap[i] = -1
	}
	verts := make([]r3.Vec, 0, len(b.verts))
	for fi, tri := range faces {
		for vi, id := range tri {
			if remap[id] == -1 {
				remap[id] = len(verts)
				verts = append(verts, b.verts[id])
			}
			faces[fi][vi] = remap[id]
		}
	}
	return verts, faces
}

// foldoverGuard builds a snapshot k-d tree of the mesh's faces (after the
// split pass, before any collapse) and vetoes a candidate collapse when the
// proposed merged position lands unexpectedly close to the plane of a
// face far from the collapsing edge — the same nearest-triangle lookup
// render/kdrender.go's kdSDF.Evaluate uses to compute a signed distance,
// applied here as a crude self-intersection guard instead.
type foldoverGuard struct {
	tree kdtree.Tree
	eps  float64
}

func newFoldoverGuard(b *builder, eps float64) *foldoverGuard {
	faces := make(kdFaces, 0, len(b.faces))
	for f, tri := range b.faces {
		if !b.alive[f] {
			continue
		}
		faces = append(faces, kdFace{
			V:      [3]r3.Vec{b.verts[tri[0]], b.verts[tri[1]], b.verts[tri[2]]},
			FaceID: f,
		})
	}
	if len(faces) == 0 {
		return nil
	}
	tree := kdtree.New(faces, true)
	return &foldoverGuard{tree: *tree, eps: eps}
}

// allow reports whether collapsing a,v to mid should proceed. It vetoes
// the collapse only when mid sits closer to the plane of the nearest
// face NOT already incident to a or v than eps allows — the local
// patch around a collapsing edge is always close to its own surface,
// so only a nearby *unrelated* face is evidence the collapse would
// fold the surface into another sheet.
func (g *foldoverGuard) allow(b *builder, a, v int, mid r3.Vec) bool {
	if g == nil {
		return true
	}
	got, _ := g.tree.Nearest(kdFace{V: [3]r3.Vec{mid, mid, mid}})
	nearest, ok := got.(kdFace)
	if !ok || !b.alive[nearest.FaceID] {
		return true
	}
	tri := b.faces[nearest.FaceID]
	if tri[0] == a || tri[1] == a || tri[2] == a || tri[0] == v || tri[1] == v || tri[2] == v {
		return true // local to the collapsing edge itself, not a foldover signal
	}
	n := triangleNormal(nearest.V)
	if n == (r3.Vec{}) {
		return true
	}
	dist := math.Abs(r3.Dot(r3.Sub(mid, nearest.V[0]), n))
	return dist > g.eps
}

func triangleNormal(v [3]r3.Vec) r3.Vec {
	cr := r3.Cross(r3.Sub(v[1], v[0]), r3.Sub(v[2], v[0]))
	n2 := r3.Norm2(cr)
	if n2 < 1e-300 {
		return r3.Vec{}
	}
	return r3.Scale(1/math.Sqrt(n2), cr)
}

// Remesh implements Remesher.
func (e EdgeLength) Remesh(m Mesh) (changed bool, err error) {
	b := newBuilder(m)
	target := e.TargetLength
	if target <= 0 {
		target = b.meanEdgeLength()
	}
	if target <= 0 {
		return false, nil
	}

	splitChanged := b.splitLongEdges(e.maxRatio() * target)

	eps := e.FoldoverGuardEps
	if eps <= 0 {
		eps = 0.1 * target
	}
	guard := newFoldoverGuard(b, eps)
	collapseChanged := b.collapseShortEdges(e.minRatio()*target, func(bb *builder, a, v int, mid r3.Vec) bool {
		return guard.allow(bb, a, v, mid)
	})

	if !splitChanged && !collapseChanged {
		return false, nil
	}
	verts, faces := b.compact()
	m.Rebuild(verts, faces)
	return true, nil
}
