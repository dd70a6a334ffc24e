// Package spatial implements BVH6D, the 6-dimensional bounding volume
// hierarchy tangent-point energy evaluation is built on: each mesh face
// contributes a "body" carrying both its barycenter (ℝ³) and its unit
// normal (ℝ³), and the tree splits alternately across all six axes so
// that far-field admissibility accounts for surface orientation as well
// as position.
//
// The tree is grounded on the teacher's helpers/sdfexp BIH (bih.go): both
// build by recursively partitioning a body list along a chosen axis and
// store children as a flat arena rather than heap-allocated nodes, but
// BVH6D differs in every numeric particular the spec requires: six split
// axes instead of three, a min-width-squared split rule instead of a
// longest-axis median, and pairwise (not just point) admissibility.
package spatial

import (
	"math"
	"sort"

	"github.com/soypat/tpeflow/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Body6 is a single BVH6D leaf payload: a mesh face reduced to its mass
// (area), barycenter, unit normal, and originating face id.
type Body6 struct {
	Mass   float64
	Pos    r3.Vec
	Normal r3.Vec
	FaceID int
}

// NodeType distinguishes the three kinds of BVH6D node.
type NodeType uint8

const (
	Empty NodeType = iota
	Leaf
	Interior
)

func (t NodeType) String() string {
	switch t {
	case Empty:
		return "Empty"
	case Leaf:
		return "Leaf"
	case Interior:
		return "Interior"
	default:
		return "NodeType(?)"
	}
}

// NoChild marks an absent child slot in Node.Children.
const NoChild = -1

// Node is one node of a BVH6D, stored by value in BVH6D.Nodes and
// addressed by its NodeID (its index in that slice). Per the design note
// in spec.md §9, nodes reference each other by id rather than by pointer,
// and the whole tree lives in one contiguous arena.
type Node struct {
	NodeType         NodeType
	NodeID           int
	TotalMass        float64
	CenterOfMass     r3.Vec
	AverageNormal    r3.Vec // mass-weighted mean normal, renormalized to unit length
	MinCoords        r3.Vec // bounds of descendant barycenters only (not normals)
	MaxCoords        r3.Vec
	NumNodesInBranch int
	SplitAxis        int // 0..5; meaningless for Leaf/Empty
	SplitValue       float64
	ThresholdTheta   float64
	ElementIDs       []int // every leaf face id transitively contained
	Children         [2]int
}

// Box returns the node's position bounding box.
func (n *Node) Box() d3.Box { return d3.Box{Min: n.MinCoords, Max: n.MaxCoords} }

// BVH6D is a 6-dimensional bounding volume hierarchy over face bodies.
// Built once per SurfaceFlow iteration; owned exclusively by that
// iteration, and invalidated the moment mesh connectivity changes.
type BVH6D struct {
	Nodes []Node
	Theta float64
}

// Root returns the id of the root node, or NoChild if the tree is empty
// (built from zero bodies).
func (t *BVH6D) Root() int {
	if len(t.Nodes) == 0 {
		return NoChild
	}
	return 0
}

func coordOf(b Body6, axis int) float64 {
	switch axis {
	case 0:
		return b.Pos.X
	case 1:
		return b.Pos.Y
	case 2:
		return b.Pos.Z
	case 3:
		return b.Normal.X
	case 4:
		return b.Normal.Y
	case 5:
		return b.Normal.Z
	default:
		panic("tpeflow/spatial: split axis out of range [0,6)")
	}
}

// Build constructs a BVH6D over bodies. theta is the default
// admissibility threshold stored on every node (ThresholdTheta); queries
// may override it per call.
func Build(bodies []Body6, theta float64) *BVH6D {
	t := &BVH6D{Theta: theta}
	t.build(append([]Body6(nil), bodies...), 0, theta)
	return t
}

// build recursively appends nodes to t.Nodes in DFS pre-order and returns
// the id of the node just appended. Because Nodes is a single growing
// slice shared across the whole recursion, siblings and their descendants
// occupy a contiguous id range, matching spec.md §3's invariant.
func (t *BVH6D) build(bodies []Body6, axis int, theta float64) int {
	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{})

	switch len(bodies) {
	case 0:
		t.Nodes[id] = Node{
			NodeType:         Empty,
			NodeID:           id,
			NumNodesInBranch: 1,
			ThresholdTheta:   theta,
			Children:         [2]int{NoChild, NoChild},
		}
		return id
	case 1:
		b := bodies[0]
		t.Nodes[id] = Node{
			NodeType:         Leaf,
			NodeID:           id,
			TotalMass:        b.Mass,
			CenterOfMass:     b.Pos,
			AverageNormal:    b.Normal,
			MinCoords:        b.Pos,
			MaxCoords:        b.Pos,
			NumNodesInBranch: 1,
			ThresholdTheta:   theta,
			ElementIDs:       []int{b.FaceID},
			Children:         [2]int{NoChild, NoChild},
		}
		return id
	}

	left, right, splitValue := partition(bodies, axis)
	nextAxis := (axis + 1) % 6
	leftID := t.build(left, nextAxis, theta)
	rightID := t.build(right, nextAxis, theta)

	lc, rc := &t.Nodes[leftID], &t.Nodes[rightID]
	totalMass := lc.TotalMass + rc.TotalMass
	var center, normal r3.Vec
	if totalMass > 0 {
		center = r3.Add(
			r3.Scale(lc.TotalMass/totalMass, lc.CenterOfMass),
			r3.Scale(rc.TotalMass/totalMass, rc.CenterOfMass),
		)
		normal = r3.Add(
			r3.Scale(lc.TotalMass/totalMass, lc.AverageNormal),
			r3.Scale(rc.TotalMass/totalMass, rc.AverageNormal),
		)
	}
	if nrm := r3.Norm(normal); nrm > 1e-300 {
		normal = r3.Scale(1/nrm, normal)
	}

	elems := make([]int, 0, len(lc.ElementIDs)+len(rc.ElementIDs))
	elems = append(elems, lc.ElementIDs...)
	elems = append(elems, rc.ElementIDs...)

	t.Nodes[id] = Node{
		NodeType:         Interior,
		NodeID:           id,
		TotalMass:        totalMass,
		CenterOfMass:     center,
		AverageNormal:    normal,
		MinCoords:        d3.MinElem(boundsMin(lc), boundsMin(rc)),
		MaxCoords:        d3.MaxElem(boundsMax(lc), boundsMax(rc)),
		NumNodesInBranch: 1 + lc.NumNodesInBranch + rc.NumNodesInBranch,
		SplitAxis:        axis,
		SplitValue:       splitValue,
		ThresholdTheta:   theta,
		ElementIDs:       elems,
		Children:         [2]int{leftID, rightID},
	}
	return id
}

func boundsMin(n *Node) r3.Vec {
	if n.NodeType == Empty {
		return r3.Vec{X: math.MaxFloat64, Y: math.MaxFloat64, Z: math.MaxFloat64}
	}
	return n.MinCoords
}

func boundsMax(n *Node) r3.Vec {
	if n.NodeType == Empty {
		return r3.Vec{X: -math.MaxFloat64, Y: -math.MaxFloat64, Z: -math.MaxFloat64}
	}
	return n.MaxCoords
}

// partition splits bodies into (left, right) along axis, choosing the
// split index that minimizes the sum of squared widths of the two halves,
// per spec.md §4.2. bodies is sorted in place.
func partition(bodies []Body6, axis int) (left, right []Body6, splitValue float64) {
	sort.Slice(bodies, func(i, j int) bool {
		return coordOf(bodies[i], axis) < coordOf(bodies[j], axis)
	})
	n := len(bodies)
	bestCost := math.MaxFloat64
	bestI := 0
	c0, cn := coordOf(bodies[0], axis), coordOf(bodies[n-1], axis)
	for i := 0; i < n-1; i++ {
		w1 := coordOf(bodies[i], axis) - c0
		w2 := cn - coordOf(bodies[i+1], axis)
		cost := w1*w1 + w2*w2
		if cost < bestCost {
			bestCost = cost
			bestI = i
		}
	}
	splitValue = 0.5 * (coordOf(bodies[bestI], axis) + coordOf(bodies[bestI+1], axis))
	return bodies[:bestI+1], bodies[bestI+1:], splitValue
}

// Admissible reports whether node (identified by id) is admissible from
// query point p using the given separation parameter, per spec.md §4.2.
// Leaves are admissible from any p that is not exactly their center of
// mass (p == center of mass only happens when a face queries its own
// leaf, which callers must special-case, e.g. BarnesHutTPE skipping
// self-interaction per the kernel's f=f' convention).
func (t *BVH6D) Admissible(id int, p r3.Vec, theta float64) bool {
	n := &t.Nodes[id]
	d := r3.Norm(r3.Sub(n.CenterOfMass, p))
	if d == 0 {
		return false
	}
	diag := r3.Norm(r3.Sub(n.MaxCoords, n.MinCoords))
	return diag/d < theta
}

// AdmissiblePair reports whether nodes a and b are pairwise admissible
// under separation parameter theta, per spec.md §4.2's three-step rule
// used by BlockClusterTree.
func AdmissiblePair(a, b *Node, theta float64) bool {
	if a.NodeID == b.NodeID {
		return false
	}
	aBox, bBox := a.Box(), b.Box()
	if aBox.Contains(b.CenterOfMass) || bBox.Contains(a.CenterOfMass) {
		return false
	}
	d := r3.Norm(r3.Sub(a.CenterOfMass, b.CenterOfMass))
	if d == 0 {
		return false
	}
	ri := r3.Norm(r3.Sub(aBox.Max, aBox.Min)) / d
	rj := r3.Norm(r3.Sub(bBox.Max, bBox.Min)) / d
	return math.Max(ri, rj) < theta
}

// Refit recomputes mass, center of mass, average normal, and bounds
// bottom-up without re-partitioning, given updated bodies in the same
// face-id-to-leaf correspondence as the tree was built with. Valid only
// when connectivity (and thus the tree shape) hasn't changed; callers
// must rebuild from scratch after remeshing.
func (t *BVH6D) Refit(bodies []Body6) {
	byFace := make(map[int]Body6, len(bodies))
	for _, b := range bodies {
		byFace[b.FaceID] = b
	}
	// Descendant ids are always greater than their ancestor's id (pre-order
	// numbering), so a simple reverse scan processes every node after its
	// children.
	for id := len(t.Nodes) - 1; id >= 0; id-- {
		n := &t.Nodes[id]
		switch n.NodeType {
		case Empty:
			continue
		case Leaf:
			b := byFace[n.ElementIDs[0]]
			n.TotalMass = b.Mass
			n.CenterOfMass = b.Pos
			n.AverageNormal = b.Normal
			n.MinCoords, n.MaxCoords = b.Pos, b.Pos
		case Interior:
			lc, rc := &t.Nodes[n.Children[0]], &t.Nodes[n.Children[1]]
			totalMass := lc.TotalMass + rc.TotalMass
			var center, normal r3.Vec
			if totalMass > 0 {
				center = r3.Add(
					r3.Scale(lc.TotalMass/totalMass, lc.CenterOfMass),
					r3.Scale(rc.TotalMass/totalMass, rc.CenterOfMass),
				)
				normal = r3.Add(
					r3.Scale(lc.TotalMass/totalMass, lc.AverageNormal),
					r3.Scale(rc.TotalMass/totalMass, rc.AverageNormal),
				)
			}
			if nrm := r3.Norm(normal); nrm > 1e-300 {
				normal = r3.Scale(1/nrm, normal)
			}
			n.TotalMass = totalMass
			n.CenterOfMass = center
			n.AverageNormal = normal
			n.MinCoords = d3.MinElem(boundsMin(lc), boundsMin(rc))
			n.MaxCoords = d3.MaxElem(boundsMax(lc), boundsMax(rc))
		}
	}
}
