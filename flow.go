package tpeflow

import (
	"errors"
	"math"

	"github.com/soypat/tpeflow/bct"
	"github.com/soypat/tpeflow/constraint"
	"github.com/soypat/tpeflow/remesh"
	"github.com/soypat/tpeflow/sobolev"
	"github.com/soypat/tpeflow/spatial"
	"github.com/soypat/tpeflow/tpe"
	"gonum.org/v1/gonum/spatial/r3"
)

// SurfaceFlow is the C8 one-iteration driver (spec.md §4.8): differential
// → Sobolev projection → Armijo line search → constraint backproject →
// commit, optionally followed by a Remesher call. A BVH6D/BlockClusterTree
// pair is built fresh every Step call from the mesh's current face bodies
// (spec.md §3's "built once per iteration" lifecycle), so nothing here
// needs to be invalidated by hand when a Remesher changes connectivity.
type SurfaceFlow struct {
	Mesh VertexSetter
	// Options tunes the kernel exponents, BVH/BCT parameters, and solver
	// caps. The zero value is replaced field-by-field with DefaultOptions
	// (Options{} itself is not a usable Options: see options().
	Options Options
	// Constraints is the set of linear equality constraints the flow
	// projects against and restores after every accepted step. Nil (or
	// an empty *constraint.Set) means unconstrained.
	Constraints *constraint.Set
	// Extra, when non-nil, is an additional potential (an obstacle or
	// attractor energy, say) summed with the tangent-point energy via
	// SumEnergy. It is never itself assumed to depend on the BVH this
	// package rebuilds each iteration.
	Extra SurfaceEnergy
	// Remesher is called once per accepted step, after the backproject.
	// Nil means never remesh.
	Remesher remesh.Remesher
}

// remeshableMesh is the capability VertexSetter.(type assertion) needs to
// satisfy remesh.Mesh: VertexSetter alone (SurfaceFlow.Mesh's static type)
// doesn't expose the whole-buffer Positions/Faces/Rebuild a Remesher
// needs, since most MeshView consumers never touch connectivity directly.
// *mesh.Mesh implements it; Step type-asserts rather than widening
// VertexSetter itself, since every other MeshView consumer in this module
// only ever needs the narrower interface.
type remeshableMesh interface {
	VertexSetter
	Positions() []r3.Vec
	Faces() [][3]int
	Rebuild(verts []r3.Vec, faces [][3]int)
}

func (f *SurfaceFlow) options() Options {
	o := f.Options
	d := DefaultOptions()
	if o.Alpha == 0 {
		o.Alpha = d.Alpha
	}
	if o.Beta == 0 {
		o.Beta = d.Beta
	}
	if o.Theta == 0 {
		o.Theta = d.Theta
	}
	if o.SmallPairThreshold == 0 {
		o.SmallPairThreshold = d.SmallPairThreshold
	}
	if o.CGTolerance == 0 {
		o.CGTolerance = d.CGTolerance
	}
	if o.CGMaxIter == 0 {
		o.CGMaxIter = d.CGMaxIter
	}
	if o.ArmijoSigma == 0 {
		o.ArmijoSigma = d.ArmijoSigma
	}
	if o.LineSearchMinStep == 0 {
		o.LineSearchMinStep = d.LineSearchMinStep
	}
	if o.DegenerateFaceEps == 0 {
		o.DegenerateFaceEps = d.DegenerateFaceEps
	}
	return o
}

// buildBVH reduces mesh's current faces to spatial.Body6 bodies and
// builds a fresh BVH6D over them (spec.md §4.2).
func buildBVH(mesh MeshView, theta float64) *spatial.BVH6D {
	nf := mesh.NumFaces()
	bodies := make([]spatial.Body6, nf)
	for f := 0; f < nf; f++ {
		bodies[f] = spatial.Body6{
			Mass:   mesh.FaceArea(f),
			Pos:    mesh.FaceBarycenter(f),
			Normal: mesh.FaceNormal(f),
			FaceID: f,
		}
	}
	return spatial.Build(bodies, theta)
}

// barnesHut assembles the BarnesHutTPE (plus Extra, if set) evaluator for
// mesh against an already-built bvh.
func (f *SurfaceFlow) barnesHut(bvh *spatial.BVH6D, opts Options) SurfaceEnergy {
	bh := &tpe.BarnesHutTPE{
		Mesh:    f.Mesh,
		BVH:     bvh,
		Kernel:  tpe.Kernel{Alpha: opts.Alpha, Beta: opts.Beta},
		Theta:   opts.Theta,
		Workers: opts.Workers,
	}
	if f.Extra == nil {
		return bh
	}
	return SumEnergy{bh, f.Extra}
}

func translateSobolevErr(err error) error {
	var serr *sobolev.Error
	if errors.As(err, &serr) {
		switch serr.Kind {
		case sobolev.CgNotConverged:
			return &FlowError{Kind: CgNotConverged, Err: serr.Err}
		case sobolev.SingularSchur:
			return &FlowError{Kind: SingularSchur, Err: serr.Err}
		}
	}
	return err
}

func finiteVec(v r3.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

func normVec(v []r3.Vec) float64 {
	var s float64
	for _, vi := range v {
		s += r3.Norm2(vi)
	}
	return math.Sqrt(s)
}

func dotVec(a, b []r3.Vec) float64 {
	var s float64
	for i := range a {
		s += r3.Dot(a[i], b[i])
	}
	return s
}

// applyStep commits base[v] - delta*d[v] into mesh, for every vertex v.
func applyStep(mesh VertexSetter, base, d []r3.Vec, delta float64) {
	for v := range base {
		mesh.SetVertexPosition(v, r3.Sub(base[v], r3.Scale(delta, d[v])))
	}
}

// snapshotPositions reads every vertex position through the MeshView
// contract all meshes share, rather than the wider Positions() a
// remeshableMesh offers, since a snapshot is taken unconditionally every
// Step and most VertexSetter implementations never need the batch form.
func snapshotPositions(mesh MeshView) []r3.Vec {
	snap := make([]r3.Vec, mesh.NumVertices())
	for v := range snap {
		snap[v] = mesh.VertexPosition(v)
	}
	return snap
}

func restore(mesh VertexSetter, snapshot []r3.Vec) {
	for v, p := range snapshot {
		mesh.SetVertexPosition(v, p)
	}
}

// Step runs one iteration of spec.md §4.8's flow loop and returns its
// statistics. On a *FlowError it has already restored the pre-step
// snapshot (except for DegenerateFace, which is advisory only and never
// aborts the step).
func (f *SurfaceFlow) Step() (IterationStats, error) {
	opts := f.options()

	degenerate := tpe.DegenerateFaces(f.Mesh, opts.DegenerateFaceEps)
	if len(degenerate) > 0 && opts.Logger != nil {
		opts.Logger.Printf("tpeflow: %d degenerate face(s) (area < %g this iteration)", len(degenerate), opts.DegenerateFaceEps)
	}

	bvh0 := buildBVH(f.Mesh, opts.Theta)
	energy0 := f.barnesHut(bvh0, opts)
	E0 := energy0.Value()
	G := energy0.Differential()
	for _, g := range G {
		if !finiteVec(g) {
			return IterationStats{}, errMsg(NonFiniteDifferential, "energy differential has a non-finite component")
		}
	}

	bct0 := bct.Build(bvh0, opts.Theta, opts.S(), opts.SmallPairThreshold)
	projector := &sobolev.HsProjector{
		Mesh:      f.Mesh,
		BCT:       bct0,
		Tolerance: opts.CGTolerance,
		MaxIter:   opts.CGMaxIter,
		Logger:    opts.Logger,
	}

	D, cgIters, err := projector.ProjectConstrained(G, f.Constraints)
	if err != nil {
		var serr *sobolev.Error
		if errors.As(err, &serr) && serr.Kind == sobolev.CgNotConverged {
			// spec.md §7: fall back to the unprojected gradient for this step.
			D = G
		} else {
			return IterationStats{}, translateSobolevErr(err)
		}
	}

	stats := IterationStats{
		Energy:            E0,
		GradNorm:          normVec(G),
		CGIterations:      cgIters,
		AdmissiblePairs:   len(bct0.Admissible),
		InadmissiblePairs: len(bct0.Inadmissible),
		DegenerateFaces:   len(degenerate),
	}

	dNorm := normVec(D)
	if dNorm == 0 {
		stats.Energy = E0
		return stats, nil
	}

	snapshot := snapshotPositions(f.Mesh)
	gDotD := dotVec(G, D)
	delta := 1 / dNorm
	sigma := opts.ArmijoSigma

	var trialBVH *spatial.BVH6D
	var trialEnergy float64
	accepted := false
	for delta >= opts.LineSearchMinStep {
		applyStep(f.Mesh, snapshot, D, delta)
		trialBVH = buildBVH(f.Mesh, opts.Theta)
		trialEnergy = f.barnesHut(trialBVH, opts).Value()
		if E0-trialEnergy >= sigma*delta*gDotD/dNorm {
			accepted = true
			break
		}
		delta *= 0.5
	}
	if !accepted {
		restore(f.Mesh, snapshot)
		stats.StepSize = 0
		return stats, errMsg(LineSearchFailed, "no accepted step size >= %g", opts.LineSearchMinStep)
	}
	stats.StepSize = delta
	stats.Energy = trialEnergy

	if f.Constraints != nil && f.Constraints.Rows() > 0 {
		bctTrial := bct.Build(trialBVH, opts.Theta, opts.S(), opts.SmallPairThreshold)
		bp := &sobolev.HsProjector{
			Mesh:      f.Mesh,
			BCT:       bctTrial,
			Tolerance: opts.CGTolerance,
			MaxIter:   opts.CGMaxIter,
			Logger:    opts.Logger,
		}
		if err := bp.Backproject(f.Mesh, f.Constraints); err != nil {
			restore(f.Mesh, snapshot)
			stats.StepSize = 0
			translated := translateSobolevErr(err)
			if IsKind(translated, SingularSchur) {
				return stats, translated
			}
			return stats, errMsg(ConstraintInfeasible, "backproject failed: %v", err)
		}
	}

	if f.Remesher != nil {
		rm, ok := f.Mesh.(remeshableMesh)
		if !ok {
			if opts.Logger != nil {
				opts.Logger.Printf("tpeflow: Remesher set but Mesh doesn't support Positions/Faces/Rebuild; skipping")
			}
		} else {
			changed, err := f.Remesher.Remesh(rm)
			if err != nil {
				if opts.Logger != nil {
					opts.Logger.Printf("tpeflow: remesher error, keeping prior connectivity: %v", err)
				}
			} else {
				stats.Remeshed = changed
			}
		}
	}

	return stats, nil
}
