package tpeflow

import (
	"errors"
	"fmt"
)

// FlowErrorKind enumerates the error kinds spec.md §7 requires the core
// to surface, as a Go int-based enum — grounded on the teacher's
// form3.ErrMsg convention of a small closed set of named, recoverable
// conditions rather than a leveled/structured error hierarchy.
type FlowErrorKind int

const (
	// DegenerateFace: a face's area fell below the configured epsilon.
	// SurfaceFlow logs the count once per iteration; BarnesHutTPE does not
	// skip such faces, and no function returns an error of this kind.
	DegenerateFace FlowErrorKind = iota
	// NonFiniteDifferential: BarnesHutTPE produced a NaN/Inf gradient
	// component. Recovery: fail the iteration; restore snapshot.
	NonFiniteDifferential
	// CgNotConverged: HsProjector's CG solve hit its iteration cap.
	// Recovery: return the best iterate; SurfaceFlow falls back to the
	// unprojected gradient for this step.
	CgNotConverged
	// LineSearchFailed: Armijo backtracking ran out of step sizes.
	// Recovery: restore snapshot; halt flow and report to caller.
	LineSearchFailed
	// ConstraintInfeasible: the constrained projection or backprojection
	// could not be solved. Recovery: abort step; restore snapshot.
	ConstraintInfeasible
	// SingularSchur: the Schur complement S was singular to working
	// precision. Recovery: drop the redundant constraint row (smallest
	// pivot) and retry once.
	SingularSchur
)

func (k FlowErrorKind) String() string {
	switch k {
	case DegenerateFace:
		return "DegenerateFace"
	case NonFiniteDifferential:
		return "NonFiniteDifferential"
	case CgNotConverged:
		return "CgNotConverged"
	case LineSearchFailed:
		return "LineSearchFailed"
	case ConstraintInfeasible:
		return "ConstraintInfeasible"
	case SingularSchur:
		return "SingularSchur"
	default:
		return "FlowErrorKind(?)"
	}
}

// FlowError is the error type every recoverable condition named in
// spec.md §7 is reported as. Every other condition (mismatched buffer
// sizes, a nil MeshView, an out-of-range vertex id) is a programmer
// error and panics instead, matching sdf3.go's convention of panicking
// on a nil SDF2 argument rather than returning an error for it.
type FlowError struct {
	Kind FlowErrorKind
	Err  error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tpeflow: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("tpeflow: %s", e.Kind)
}

func (e *FlowError) Unwrap() error { return e.Err }

// errMsg constructs a *FlowError wrapping a formatted cause, mirroring
// the teacher's form3.ErrMsg helper.
func errMsg(kind FlowErrorKind, format string, args ...interface{}) *FlowError {
	return &FlowError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether err is a *FlowError of the given kind, walking
// the Unwrap chain.
func IsKind(err error, kind FlowErrorKind) bool {
	var fe *FlowError
	return errors.As(err, &fe) && fe.Kind == kind
}
