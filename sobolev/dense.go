package sobolev

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// FaceGeometry is the per-face data the dense assemblies below need:
// area, barycenter, and the mean hat-function gradient supplied by
// GradientBasis.MeanGradient.
type FaceGeometry struct {
	Area float64
	Pos  r3.Vec
	Grad r3.Vec
}

func ks(x, y r3.Vec, s float64) float64 {
	d2 := r3.Norm2(r3.Sub(x, y))
	if d2 < 1e-300 {
		return 0
	}
	return 1 / math.Pow(d2, 1+s)
}

// DenseFractionalOnly assembles M_F (spec.md §4.6's "fractional-only
// operator") as a dense F-by-F weighted graph Laplacian: off-diagonal
// entry (i,j) is -2*area_i*area_j*k_s(x_i,x_j), and the diagonal is the
// negative row sum, making the matrix exactly the operator *bct.Tree
// approximates hierarchically (the bct package's BCT-vs-dense test checks
// that operator against its own all-pairs loop, not against this function).
// O(F^2) time and memory — a verification path, never called from
// HsProjector's iterative solve.
func DenseFractionalOnly(faces []FaceGeometry, s float64) *mat.SymDense {
	n := len(faces)
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		var rowSum float64
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			w := 2 * faces[i].Area * faces[j].Area * ks(faces[i].Pos, faces[j].Pos, s)
			if j > i {
				m.SetSym(i, j, -w)
			}
			rowSum += w
		}
		m.SetSym(i, i, rowSum)
	}
	return m
}

// DenseHighOrder assembles M_H (spec.md §4.6's "high-order operator"):
// the same fractional-Laplacian weighting as M_F, additionally scaled by
// the squared mismatch between the two faces' mean hat-function
// gradients, so it penalizes positional roughness more strongly than
// M_F's purely-metric weighting. Retained, alongside DenseFractionalOnly,
// for small-problem verification (spec.md §4.6: "the dense assembly is
// retained for small problems and verification").
func DenseHighOrder(faces []FaceGeometry, s float64) *mat.SymDense {
	n := len(faces)
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		var rowSum float64
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			gradDiff2 := r3.Norm2(r3.Sub(faces[i].Grad, faces[j].Grad))
			w := 2 * faces[i].Area * faces[j].Area * gradDiff2 * ks(faces[i].Pos, faces[j].Pos, s)
			if j > i {
				m.SetSym(i, j, -w)
			}
			rowSum += w
		}
		m.SetSym(i, i, rowSum)
	}
	return m
}

// DenseOperator implements LinearOperator over a dense SymDense matrix,
// so CG can be run against DenseFractionalOnly/DenseHighOrder directly.
// No code or test in the module uses it.
type DenseOperator struct {
	M *mat.SymDense
}

func (d DenseOperator) Dim() int { n, _ := d.M.Dims(); return n }

func (d DenseOperator) Multiply(v []float64) []float64 {
	n := d.Dim()
	x := mat.NewVecDense(n, append([]float64(nil), v...))
	var y mat.VecDense
	y.MulVec(d.M, x)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = y.AtVec(i)
	}
	return out
}
