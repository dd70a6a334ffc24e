// Package sobolev implements HsProjector (spec.md §4.6): the Sobolev
// pre-conditioner that turns an ordinary tangent-point-energy gradient
// into a descent direction in a smoother function space, optionally
// projected against a constraint.Set via a Schur-complement solve.
package sobolev

import (
	"fmt"
	"log"

	"github.com/soypat/tpeflow/bct"
	"github.com/soypat/tpeflow/constraint"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// HsProjector assembles and solves the Sobolev pre-conditioner described
// by spec.md §4.6. Built fresh each SurfaceFlow iteration over that
// iteration's BCT.
type HsProjector struct {
	Mesh      MeshView
	BCT       *bct.Tree
	Tolerance float64 // default 1e-4, per spec.md §4.6
	MaxIter   int     // default 200
	Logger    *log.Logger
}

func (p *HsProjector) tol() float64 {
	if p.Tolerance > 0 {
		return p.Tolerance
	}
	return 1e-4
}

func (p *HsProjector) maxIter() int {
	if p.MaxIter > 0 {
		return p.MaxIter
	}
	return 200
}

func (p *HsProjector) operator() *VertexOperator {
	return NewVertexOperator(p.BCT, p.Mesh)
}

func splitColumns(v []r3.Vec) (x, y, z []float64) {
	x, y, z = make([]float64, len(v)), make([]float64, len(v)), make([]float64, len(v))
	for i, vi := range v {
		x[i], y[i], z[i] = vi.X, vi.Y, vi.Z
	}
	return
}

func joinColumns(x, y, z []float64) []r3.Vec {
	out := make([]r3.Vec, len(x))
	for i := range out {
		out[i] = r3.Vec{X: x[i], Y: y[i], Z: z[i]}
	}
	return out
}

// solveColumns runs CG independently over each of g's three coordinate
// columns against op, matching spec.md §4.6's "each column's Sobolev
// gradient ... as the solution of M_H G̃ = G".
func (p *HsProjector) solveColumns(op *VertexOperator, precond Preconditioner, g []r3.Vec) ([]r3.Vec, int, bool) {
	gx, gy, gz := splitColumns(g)
	rx := CG(op, gx, precond, p.tol(), p.maxIter())
	ry := CG(op, gy, precond, p.tol(), p.maxIter())
	rz := CG(op, gz, precond, p.tol(), p.maxIter())
	return joinColumns(rx.X, ry.X, rz.X), rx.Iters + ry.Iters + rz.Iters, rx.Converged && ry.Converged && rz.Converged
}

// Project computes the unconstrained Sobolev gradient: solve M_A*G̃=G
// per coordinate column via CG against the BCT-backed VertexOperator,
// Jacobi-preconditioned with its Diagonal (spec.md §4.6). On
// CG failing to converge within MaxIter, it still returns the best
// iterate alongside a *Error{Kind: CgNotConverged},
// per spec.md §7's recovery ("return best iterate; SurfaceFlow falls
// back to the unprojected gradient for this step").
func (p *HsProjector) Project(g []r3.Vec) ([]r3.Vec, int, error) {
	op := p.operator()
	precond := Jacobi{Diag: op.Diagonal()}
	out, iters, converged := p.solveColumns(op, precond, g)
	if !converged {
		if p.Logger != nil {
			p.Logger.Printf("tpeflow/sobolev: CG did not converge to tolerance %g within %d iterations", p.tol(), p.maxIter())
		}
		return out, iters, &Error{Kind: CgNotConverged}
	}
	return out, iters, nil
}

// schurSystem solves M_A*Y_k = C_k^T for every constraint row k (each an
// independent three-column CG solve, safely parallelizable per spec.md
// §5's "each column of Y computed independently in parallel" — done
// sequentially here since constraint counts are always small (a handful
// of rows), unlike the CG/BCT inner loops that actually warrant fork-join)
// and assembles S = C*Y.
func (p *HsProjector) schurSystem(cs *constraint.Set) (Y [][]r3.Vec, S *mat.SymDense, iters int, err error) {
	op := p.operator()
	precond := Jacobi{Diag: op.Diagonal()}
	rows := cs.Rows()
	Y = make([][]r3.Vec, rows)
	for k := 0; k < rows; k++ {
		lambda := make([]float64, rows)
		lambda[k] = 1
		ck := cs.JacobianTransposeTimes(p.Mesh, lambda)
		yk, it, converged := p.solveColumns(op, precond, ck)
		iters += it
		if !converged {
			return nil, nil, iters, &Error{Kind: CgNotConverged,
				Err: fmt.Errorf("constraint row %d's Y column did not converge", k)}
		}
		Y[k] = yk
	}
	S = mat.NewSymDense(rows, nil)
	for l := 0; l < rows; l++ {
		col := cs.JacobianTimes(p.Mesh, Y[l])
		for k := 0; k <= l; k++ {
			S.SetSym(k, l, col[k])
		}
	}
	return Y, S, iters, nil
}

// ProjectConstrained implements spec.md §4.6's constrained projection:
// solve M_A*ẑ=G, form the Schur complement S=C*M_A⁻¹*Cᵀ, solve
// λ=S⁻¹(C·ẑ), and return x=ẑ−Y·λ. Returns a *Error{Kind:
// SingularSchur} if S is singular even after the one-retry drop
// of the smallest-pivot row (spec.md §7).
func (p *HsProjector) ProjectConstrained(g []r3.Vec, cs *constraint.Set) ([]r3.Vec, int, error) {
	if cs == nil || cs.Rows() == 0 {
		return p.Project(g)
	}
	op := p.operator()
	precond := Jacobi{Diag: op.Diagonal()}
	zhat, iters, converged := p.solveColumns(op, precond, g)
	if !converged {
		if p.Logger != nil {
			p.Logger.Printf("tpeflow/sobolev: CG did not converge projecting the unconstrained differential")
		}
		return zhat, iters, &Error{Kind: CgNotConverged}
	}

	Y, S, schurIters, err := p.schurSystem(cs)
	iters += schurIters
	if err != nil {
		return nil, iters, err
	}

	czhat := cs.JacobianTimes(p.Mesh, zhat)
	lambda, err := p.solveSchurRobust(S, czhat)
	if err != nil {
		return nil, iters, err
	}

	out := append([]r3.Vec(nil), zhat...)
	for k, lk := range lambda {
		if lk == 0 {
			continue
		}
		for v := range out {
			out[v] = r3.Sub(out[v], r3.Scale(lk, Y[k][v]))
		}
	}
	return out, iters, nil
}

// Backproject implements spec.md §4.6 point 4: given the mesh's current
// constraint violation, solve S*λ=v and apply positions -= Y*λ after a
// line-searched step. This is one linearized correction: constraints that
// are linear in the positions (pins) are restored to solver precision;
// for nonlinear ones (area, volume) the remaining violation is second
// order in the violation Backproject started from.
func (p *HsProjector) Backproject(mesh VertexSetter, cs *constraint.Set) error {
	if cs == nil || cs.Rows() == 0 {
		return nil
	}
	Y, S, _, err := p.schurSystem(cs)
	if err != nil {
		return err
	}
	violation := cs.Value(mesh)
	lambda, err := p.solveSchurRobust(S, violation)
	if err != nil {
		return err
	}
	for v := 0; v < mesh.NumVertices(); v++ {
		pos := mesh.VertexPosition(v)
		for k, lk := range lambda {
			if lk == 0 {
				continue
			}
			pos = r3.Sub(pos, r3.Scale(lk, Y[k][v]))
		}
		mesh.SetVertexPosition(v, pos)
	}
	return nil
}

// solveSchurRobust solves S*x=b by dense Cholesky (rank(S) equals the
// constraint count, which is always small, per spec.md §4.6). If S is
// singular, it drops the row with the smallest diagonal entry — a proxy
// for "the smallest-pivot row" spec.md §7 names, since a standard
// (unpivoted) Cholesky factorization doesn't expose pivots directly —
// and retries once, per the SingularSchur recovery table.
func (p *HsProjector) solveSchurRobust(S *mat.SymDense, b []float64) ([]float64, error) {
	x, err := solveSchur(S, b)
	if err == nil {
		return x, nil
	}
	n := len(b)
	if n <= 1 {
		return nil, &Error{Kind: SingularSchur, Err: err}
	}
	drop := smallestDiagIndex(S)
	S2, b2 := dropRowCol(S, b, drop)
	x2, err2 := solveSchur(S2, b2)
	if err2 != nil {
		return nil, &Error{Kind: SingularSchur, Err: err2}
	}
	if p.Logger != nil {
		p.Logger.Printf("tpeflow/sobolev: Schur complement singular; dropped constraint row %d and retried", drop)
	}
	return reinsertDropped(x2, drop, n), nil
}

func solveSchur(S *mat.SymDense, b []float64) ([]float64, error) {
	n := len(b)
	var chol mat.Cholesky
	if !chol.Factorize(S) {
		return nil, fmt.Errorf("tpeflow/sobolev: Schur complement is not positive definite")
	}
	bv := mat.NewVecDense(n, append([]float64(nil), b...))
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, bv); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = x.AtVec(i)
	}
	return out, nil
}

func smallestDiagIndex(S *mat.SymDense) int {
	n, _ := S.Dims()
	best, bestVal := 0, S.At(0, 0)
	for i := 1; i < n; i++ {
		if v := S.At(i, i); v < bestVal {
			bestVal, best = v, i
		}
	}
	return best
}

// dropRowCol returns S and b with row/column drop removed.
func dropRowCol(S *mat.SymDense, b []float64, drop int) (*mat.SymDense, []float64) {
	n, _ := S.Dims()
	keep := make([]int, 0, n-1)
	for i := 0; i < n; i++ {
		if i != drop {
			keep = append(keep, i)
		}
	}
	m := len(keep)
	S2 := mat.NewSymDense(m, nil)
	b2 := make([]float64, m)
	for a := 0; a < m; a++ {
		b2[a] = b[keep[a]]
		for c := a; c < m; c++ {
			S2.SetSym(a, c, S.At(keep[a], keep[c]))
		}
	}
	return S2, b2
}

// reinsertDropped expands x (length n-1) back to length n, leaving the
// dropped row at value zero (the redundant constraint's multiplier
// simply isn't applied by the callers above, which both skip lk==0).
func reinsertDropped(x []float64, drop, n int) []float64 {
	out := make([]float64, n)
	j := 0
	for i := 0; i < n; i++ {
		if i == drop {
			continue
		}
		out[i] = x[j]
		j++
	}
	return out
}
