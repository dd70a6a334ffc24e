package tpeflow

import "log"

// Options collects every tunable named in spec.md §6/§4: kernel
// exponents, BVH separation, CG tolerance, and line-search/BCT
// constants. Matches the teacher's convention of plain constructor
// options (e.g. NewOctreeRenderer(s, meshCells)) rather than a
// file-based configuration struct — nothing in soypat/sdf reads a
// config file, and this module follows suit (SPEC_FULL.md §4.9).
type Options struct {
	// Alpha, Beta are the tangent-point kernel exponents. Default 3, 6.
	Alpha, Beta float64
	// Theta is the BVH6D/BCT separation parameter. Default 0.25.
	Theta float64
	// SmallPairThreshold is the BCT "small enough" cutoff |I|+|J|.
	// Default 8; spec.md §9 flags this as a pure-performance knob.
	SmallPairThreshold int
	// CGTolerance is the relative residual CG terminates at. Default 1e-4.
	CGTolerance float64
	// CGMaxIter caps CG iterations. Default 200.
	CGMaxIter int
	// ArmijoSigma is the Armijo backtracking sufficient-decrease
	// constant. Default 0.01.
	ArmijoSigma float64
	// LineSearchMinStep is the step size below which the line search
	// gives up and reports LineSearchFailed. Default 1e-10.
	LineSearchMinStep float64
	// DegenerateFaceEps is the area threshold below which a face is
	// reported as degenerate. Default 1e-12.
	DegenerateFaceEps float64
	// Workers caps goroutines used by the BarnesHutTPE differential. Zero
	// means runtime.NumCPU(). The BCT multiply does not read it and always
	// uses runtime.NumCPU() workers.
	Workers int
	// Logger receives the "log once per iteration" DegenerateFace notice
	// and CgNotConverged/SingularSchur fallback notices. Nil means silent.
	Logger *log.Logger
}

// DefaultOptions returns the spec's default tunables: alpha=3, beta=6,
// theta=0.25 (spec.md §6's "typical scene"), with conservative solver
// caps.
func DefaultOptions() Options {
	return Options{
		Alpha:              3,
		Beta:               6,
		Theta:              0.25,
		SmallPairThreshold: 8,
		CGTolerance:        1e-4,
		CGMaxIter:          200,
		ArmijoSigma:        0.01,
		LineSearchMinStep:  1e-10,
		DegenerateFaceEps:  1e-12,
	}
}

// S returns the fractional-Laplacian order matching Alpha/Beta via the
// exponent-coupling rule s=(Beta-2)/Alpha (spec.md §4.6's "get_s"
// contract).
func (o Options) S() float64 {
	return (o.Beta - 2) / o.Alpha
}

// IterationStats is returned by every SurfaceFlow.Step call. It
// supplements the distilled spec's dropped per-iteration statistics
// (SPEC_FULL.md §4.11): the original kept these as process-global
// timers/counters (spec.md §9's "global timers" design note); here they
// are a plain per-call return value instead of global/static state.
type IterationStats struct {
	Energy            float64
	GradNorm          float64
	StepSize          float64
	CGIterations      int
	AdmissiblePairs   int
	InadmissiblePairs int
	DegenerateFaces   int
	Remeshed          bool
}
