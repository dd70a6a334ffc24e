package tpe

import (
	"runtime"
	"sync"

	"github.com/soypat/tpeflow/spatial"
	"gonum.org/v1/gonum/spatial/r3"
)

// MeshView is the read-only face/vertex query surface BarnesHutTPE needs.
// Declared locally (rather than importing the root tpeflow.MeshView)
// because the root package's SurfaceFlow needs to import this package,
// and Go forbids the reverse import; any type satisfying
// tpeflow.MeshView — which has every method below plus a few this
// package never calls — satisfies this interface too.
type MeshView interface {
	NumFaces() int
	NumVertices() int
	FaceArea(f int) float64
	FaceNormal(f int) r3.Vec
	FaceBarycenter(f int) r3.Vec
	VertexPosition(v int) r3.Vec
	VerticesOfFace(f int) [3]int
}

// BarnesHutTPE evaluates the tangent-point energy and its per-vertex
// differential against a MeshView by traversing a prebuilt spatial.BVH6D,
// falling back to the exact kernel at the leaves. It owns no state of its
// own beyond the parameters below; callers rebuild or refit the BVH
// between calls as the mesh changes.
type BarnesHutTPE struct {
	Mesh   MeshView
	BVH    *spatial.BVH6D
	Kernel Kernel
	// Theta is the admissibility separation parameter used during
	// traversal; it may differ from BVH.Theta used at build time (a
	// tighter traversal theta than the build theta only ever recurses
	// further, it never violates correctness).
	Theta float64
	// Workers caps the number of goroutines used by Differential.
	// Zero means runtime.NumCPU().
	Workers int
}

func (bh *BarnesHutTPE) workers() int {
	if bh.Workers > 0 {
		return bh.Workers
	}
	return runtime.NumCPU()
}

func (bh *BarnesHutTPE) triangleOf(f int) Triangle {
	ids := bh.Mesh.VerticesOfFace(f)
	return Triangle{
		bh.Mesh.VertexPosition(ids[0]),
		bh.Mesh.VertexPosition(ids[1]),
		bh.Mesh.VertexPosition(ids[2]),
	}
}

// Value returns the total tangent-point energy, the double sum over
// ordered distinct face pairs of area(f)*area(f')*K(f,f').
func (bh *BarnesHutTPE) Value() float64 {
	var total float64
	root := bh.BVH.Root()
	nf := bh.Mesh.NumFaces()
	for f := 0; f < nf; f++ {
		total += bh.valueFromFace(f, root)
	}
	return total
}

func (bh *BarnesHutTPE) valueFromFace(f, nodeID int) float64 {
	if nodeID == spatial.NoChild {
		return 0
	}
	n := &bh.BVH.Nodes[nodeID]
	if n.NodeType == spatial.Empty {
		return 0
	}
	xf := bh.Mesh.FaceBarycenter(f)
	if n.NodeType == spatial.Leaf {
		fp := n.ElementIDs[0]
		if fp == f {
			return 0
		}
		nf := bh.Mesh.FaceNormal(f)
		return bh.Mesh.FaceArea(f) * bh.Mesh.FaceArea(fp) * bh.Kernel.Value(xf, bh.Mesh.FaceBarycenter(fp), nf)
	}
	if bh.BVH.Admissible(nodeID, xf, bh.Theta) {
		nf := bh.Mesh.FaceNormal(f)
		return bh.Mesh.FaceArea(f) * n.TotalMass * bh.Kernel.Value(xf, n.CenterOfMass, nf)
	}
	// lesser half first, matching spec.md §4.4's determinism requirement.
	return bh.valueFromFace(f, n.Children[0]) + bh.valueFromFace(f, n.Children[1])
}

// Differential returns the tangent-point energy's gradient with respect
// to every vertex position, indexed by vertex id.
func (bh *BarnesHutTPE) Differential() []r3.Vec {
	nv := bh.Mesh.NumVertices()
	nf := bh.Mesh.NumFaces()
	root := bh.BVH.Root()

	numWorkers := bh.workers()
	if numWorkers > nf {
		numWorkers = nf
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	partials := make([][]r3.Vec, numWorkers)
	var wg sync.WaitGroup
	chunk := (nf + numWorkers - 1) / numWorkers
	for w := 0; w < numWorkers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > nf {
			hi = nf
		}
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			local := make([]r3.Vec, nv)
			for f := lo; f < hi; f++ {
				bh.diffFromFace(f, root, local)
			}
			partials[w] = local
		}(w, lo, hi)
	}
	wg.Wait()

	grad := make([]r3.Vec, nv)
	for _, local := range partials {
		if local == nil {
			continue
		}
		for v := range grad {
			grad[v] = r3.Add(grad[v], local[v])
		}
	}
	return grad
}

func (bh *BarnesHutTPE) diffFromFace(f, nodeID int, acc []r3.Vec) {
	if nodeID == spatial.NoChild {
		return
	}
	n := &bh.BVH.Nodes[nodeID]
	if n.NodeType == spatial.Empty {
		return
	}
	tri := bh.triangleOf(f)
	xf := tri.Barycenter()

	if n.NodeType == spatial.Leaf {
		fp := n.ElementIDs[0]
		if fp == f {
			return
		}
		trifp := bh.triangleOf(fp)
		vids := bh.Mesh.VerticesOfFace(f)
		vidsfp := bh.Mesh.VerticesOfFace(fp)
		for slot, vid := range vids {
			slotfp := indexOfVertex(vidsfp, vid)
			acc[vid] = r3.Add(acc[vid], bh.Kernel.GradientPair(tri, trifp, slot, slotfp))
		}
		for slot, vid := range vidsfp {
			if indexOfVertex(vids, vid) >= 0 {
				continue // already folded into the v∈f∩f' case above
			}
			acc[vid] = r3.Add(acc[vid], bh.Kernel.GradientPair(tri, trifp, -1, slot))
		}
		return
	}

	if bh.BVH.Admissible(nodeID, xf, bh.Theta) {
		vids := bh.Mesh.VerticesOfFace(f)
		for slot, vid := range vids {
			acc[vid] = r3.Add(acc[vid], bh.Kernel.GradientFSide(tri, slot, n.TotalMass, n.CenterOfMass))
		}
		return
	}

	bh.diffFromFace(f, n.Children[0], acc)
	bh.diffFromFace(f, n.Children[1], acc)
}

func indexOfVertex(ids [3]int, vid int) int {
	for i, x := range ids {
		if x == vid {
			return i
		}
	}
	return -1
}

// DegenerateFaces returns the ids of faces whose area falls below eps,
// the spec.md §7 DegenerateFace condition. BarnesHutTPE does not skip
// them: each still enters every pair with its own small area; the
// caller (tpeflow.SurfaceFlow) uses this to log the condition once per
// iteration.
func DegenerateFaces(mesh MeshView, eps float64) []int {
	var ids []int
	for f := 0; f < mesh.NumFaces(); f++ {
		if mesh.FaceArea(f) < eps {
			ids = append(ids, f)
		}
	}
	return ids
}
