package bct

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/soypat/tpeflow/spatial"
	"gonum.org/v1/gonum/spatial/r3"
)

// ks evaluates the fractional-Laplacian kernel k_s(x,y) = 1/||x-y||^(2+2s).
func (t *Tree) ks(x, y r3.Vec) float64 {
	d2 := r3.Norm2(r3.Sub(x, y))
	if d2 == 0 {
		return 0
	}
	return 1 / math.Pow(d2, 1+t.S)
}

// Multiply computes y = A*v for the discretized fractional-Laplacian
// operator A (spec.md §4.5), implementing sobolev.LinearOperator.
func (t *Tree) Multiply(v []float64) []float64 {
	z := t.multiplyPartial(v)
	y := make([]float64, len(v))
	for i, vi := range v {
		y[i] = 2 * (t.Af1[i]*vi - z[i])
	}
	return y
}

// multiplyPartial computes, for every face i, z_i = area_i * Σ_{j≠i}
// area_j * k_s(x_i,x_j) * v_j via the percolated upward/cluster/downward
// pass for admissible pairs plus an exact double loop for inadmissible
// pairs. Multiply applies the diagonal correction that turns z into A*v;
// Build calls this directly on the all-ones vector to precompute Af1.
func (t *Tree) multiplyPartial(v []float64) []float64 {
	nNodes := len(t.BVH.Nodes)
	z := make([]float64, len(v))
	if nNodes == 0 {
		return z
	}

	wtDot := make([]float64, nNodes)
	for id := nNodes - 1; id >= 0; id-- {
		n := &t.BVH.Nodes[id]
		switch n.NodeType {
		case spatial.Leaf:
			f := n.ElementIDs[0]
			wtDot[id] = n.TotalMass * v[f]
		case spatial.Interior:
			wtDot[id] = wtDot[n.Children[0]] + wtDot[n.Children[1]]
		}
	}

	bAcc := make([]float64, nNodes)
	t.clusterContribution(wtDot, bAcc)

	b := make([]float64, nNodes)
	if root := t.BVH.Root(); root != spatial.NoChild {
		b[root] = bAcc[root]
		for id := 0; id < nNodes; id++ {
			n := &t.BVH.Nodes[id]
			if n.NodeType != spatial.Interior {
				continue
			}
			for _, c := range n.Children {
				if c == spatial.NoChild {
					continue
				}
				b[c] = b[id] + bAcc[c]
			}
		}
	}

	for id := 0; id < nNodes; id++ {
		n := &t.BVH.Nodes[id]
		if n.NodeType == spatial.Leaf {
			z[n.ElementIDs[0]] = n.TotalMass * b[id]
		}
	}

	t.inadmissibleContribution(v, z)
	return z
}

// clusterContribution runs step 2 of the fast multiply: for every
// admissible pair (I,J), I.B += k_s(Ic,Jc)*J.wtDot. Parallel over
// first-cluster buckets — safe because each goroutine only ever writes
// bAcc[I] for the I values in its own bucket slice.
func (t *Tree) clusterContribution(wtDot, bAcc []float64) {
	keys := make([]int, 0, len(t.AdmissibleByFirst))
	for k := range t.AdmissibleByFirst {
		keys = append(keys, k)
	}
	numWorkers := runtime.NumCPU()
	if numWorkers > len(keys) {
		numWorkers = len(keys)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	chunk := (len(keys) + numWorkers - 1) / numWorkers
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(keys) {
			hi = len(keys)
		}
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for _, i := range keys[lo:hi] {
				nodeI := &t.BVH.Nodes[i]
				var acc float64
				for _, p := range t.AdmissibleByFirst[i] {
					nodeJ := &t.BVH.Nodes[p.J]
					acc += t.ks(nodeI.CenterOfMass, nodeJ.CenterOfMass) * wtDot[p.J]
				}
				bAcc[i] = acc
			}
		}(lo, hi)
	}
	wg.Wait()
}

// inadmissibleContribution runs step 4: for every inadmissible pair
// (I,J), the exact double loop over leaf faces, accumulating into z.
// Each goroutine reduces into a private slice, summed into z at the end.
func (t *Tree) inadmissibleContribution(v, z []float64) {
	pairs := t.Inadmissible
	numWorkers := runtime.NumCPU()
	if numWorkers > len(pairs) {
		numWorkers = len(pairs)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	chunk := (len(pairs) + numWorkers - 1) / numWorkers
	partials := make([][]float64, numWorkers)
	var wg sync.WaitGroup
	var ops int64
	for w := 0; w < numWorkers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(pairs) {
			hi = len(pairs)
		}
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			local := make([]float64, len(v))
			var localOps int64
			for _, p := range pairs[lo:hi] {
				nodeI, nodeJ := &t.BVH.Nodes[p.I], &t.BVH.Nodes[p.J]
				for _, fi := range nodeI.ElementIDs {
					xi, areaI := t.faceBarycenter(fi)
					for _, fj := range nodeJ.ElementIDs {
						if fi == fj {
							continue
						}
						xj, areaJ := t.faceBarycenter(fj)
						local[fi] += areaI * t.ks(xi, xj) * areaJ * v[fj]
						localOps++
					}
				}
			}
			partials[w] = local
			atomic.AddInt64(&ops, localOps)
		}(w, lo, hi)
	}
	wg.Wait()
	for _, local := range partials {
		if local == nil {
			continue
		}
		for i := range z {
			z[i] += local[i]
		}
	}
	t.Counters.addNearFieldOps(ops)
}
