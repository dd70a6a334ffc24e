package sobolev

import "math"

// LinearOperator is the abstraction HsProjector's conjugate-gradient
// solver is written against — spec.md §9's design note replacing
// "hand-written linear algebra with a dense matrix library" with "a
// single vector/matrix abstraction plus a CG solver parameterized over a
// LinearOperator". *bct.Tree implements it directly (face-space); so
// does *VertexOperator (vertex-space, built by sandwiching a *bct.Tree
// between the P1-to-P0 projections in operator.go).
type LinearOperator interface {
	// Multiply returns A*v. Implementations must not retain v or the
	// returned slice beyond the call; CG reuses buffers across iterations.
	Multiply(v []float64) []float64
	// Dim returns the size n of the square operator.
	Dim() int
}

// Preconditioner approximates A^-1 for a LinearOperator A, applied once
// per CG iteration.
type Preconditioner interface {
	Apply(r []float64) []float64
}

// Jacobi is a diagonal preconditioner: Apply(r)[i] = r[i]/Diag[i].
// Entries of Diag that are zero or tiny pass through unscaled, so a
// Jacobi zero value (nil Diag) is a harmless identity preconditioner.
type Jacobi struct {
	Diag []float64
}

func (j Jacobi) Apply(r []float64) []float64 {
	if j.Diag == nil {
		return append([]float64(nil), r...)
	}
	out := make([]float64, len(r))
	for i, ri := range r {
		d := j.Diag[i]
		if d < 1e-300 {
			out[i] = ri
			continue
		}
		out[i] = ri / d
	}
	return out
}

// CGResult carries the outcome of a CG solve: Converged is false when the
// iteration cap was hit before reaching tol, in which case X is still the
// best iterate found (spec.md §7's CgNotConverged recovery: "return best
// iterate").
type CGResult struct {
	X         []float64
	Iters     int
	Converged bool
	// ResidualNorm is the final relative residual ||b-Ax||/||b||.
	ResidualNorm float64
}

// CG solves A*x = b by conjugate gradients, preconditioned by m (pass
// nil for unpreconditioned CG). Terminates when the relative residual
// falls below tol or after maxIter iterations. b is not mutated.
func CG(a LinearOperator, b []float64, m Preconditioner, tol float64, maxIter int) CGResult {
	n := a.Dim()
	if len(b) != n {
		panic("tpeflow/sobolev: CG: b has wrong length for operator dimension")
	}
	if m == nil {
		m = Jacobi{}
	}
	bNorm := norm(b)
	if bNorm < 1e-300 {
		return CGResult{X: make([]float64, n), Iters: 0, Converged: true}
	}

	x := make([]float64, n)
	r := append([]float64(nil), b...) // r = b - A*x, x0 = 0
	z := m.Apply(r)
	p := append([]float64(nil), z...)
	rz := dot(r, z)

	for iter := 1; iter <= maxIter; iter++ {
		ap := a.Multiply(p)
		pAp := dot(p, ap)
		if math.Abs(pAp) < 1e-300 {
			break // p is in the null space of A; can't make further progress
		}
		alpha := rz / pAp
		for i := range x {
			x[i] += alpha * p[i]
			r[i] -= alpha * ap[i]
		}
		rn := norm(r)
		if rn/bNorm < tol {
			return CGResult{X: x, Iters: iter, Converged: true, ResidualNorm: rn / bNorm}
		}
		z = m.Apply(r)
		rzNew := dot(r, z)
		beta := rzNew / rz
		for i := range p {
			p[i] = z[i] + beta*p[i]
		}
		rz = rzNew
	}
	return CGResult{X: x, Iters: maxIter, Converged: false, ResidualNorm: norm(r) / bNorm}
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}
