// Package tpe implements the tangent-point energy kernel (TPEKernel) and
// the Barnes-Hut evaluator (BarnesHutTPE) that uses a spatial.BVH6D to
// approximate the far field.
package tpe

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Kernel evaluates the tangent-point kernel
//
//	K(f,f') = ||Proj_n(x-x')||^Alpha / ||x-x'||^Beta
//
// where n is the unit normal at f and Proj_n projects onto the plane
// orthogonal to n. K is not symmetric in (f,f'): it only uses the normal
// of the first argument. Typical exponents are Alpha=3, Beta=6.
type Kernel struct {
	Alpha, Beta float64
}

// S returns the fractional-Laplacian order matching this kernel's
// differential order, per the exponent-coupling rule s=(Beta-2)/Alpha.
func (k Kernel) S() float64 {
	return (k.Beta - 2) / k.Alpha
}

// Value returns K(f,f') given barycenters xf, xfp and the unit normal nf
// at f. Returns 0 when x==x' (the f==f' convention is the caller's
// responsibility, since Value has no notion of face identity).
func (k Kernel) Value(xf, xfp, nf r3.Vec) float64 {
	diff := r3.Sub(xf, xfp)
	d := r3.Norm(diff)
	if d == 0 {
		return 0
	}
	pn := r2.Norm(projectToTangentPlane(diff, nf))
	return math.Pow(pn, k.Alpha) / math.Pow(d, k.Beta)
}

// tangentBasis returns an orthonormal basis (e1,e2) of the plane
// orthogonal to unit normal n, used to express the in-plane component of
// a vector as an r2.Vec of coefficients rather than a second r3.Vec.
func tangentBasis(n r3.Vec) (e1, e2 r3.Vec) {
	ref := r3.Vec{X: 1}
	if math.Abs(n.X) > 0.9 {
		ref = r3.Vec{Y: 1}
	}
	e1 = r3.Unit(r3.Sub(ref, r3.Scale(r3.Dot(ref, n), n)))
	e2 = r3.Cross(n, e1)
	return e1, e2
}

// projectToTangentPlane expresses the component of v orthogonal to unit
// normal n as a pair of coefficients in an orthonormal basis of that
// plane; ||result|| equals ||Proj_n(v)|| exactly, as in
// spec.md §4.3's K(f,f') = ||Proj_n(x-x')||^Alpha/||x-x'||^Beta, without
// materializing the 3-D projected vector itself.
func projectToTangentPlane(v, n r3.Vec) r2.Vec {
	e1, e2 := tangentBasis(n)
	return r2.Vec{X: r3.Dot(v, e1), Y: r3.Dot(v, e2)}
}

// kernelDerivatives returns K(f,f') along with dK/d(diff) and dK/dn,
// where diff = xf-xfp. Returns ok=false when the pair is degenerate
// (coincident barycenters, or diff exactly aligned with nf).
func (k Kernel) kernelDerivatives(xf, xfp, nf r3.Vec) (kval float64, dKddiff, dKdn r3.Vec, ok bool) {
	diff := r3.Sub(xf, xfp)
	d := r3.Norm(diff)
	if d == 0 {
		return 0, r3.Vec{}, r3.Vec{}, false
	}
	dn := r3.Dot(diff, nf)
	proj := r3.Sub(diff, r3.Scale(dn, nf))
	pn := r3.Norm(proj)
	if pn == 0 {
		return 0, r3.Vec{}, r3.Vec{}, false
	}
	kval = math.Pow(pn, k.Alpha) / math.Pow(d, k.Beta)

	term1 := r3.Scale(k.Alpha*math.Pow(pn, k.Alpha-2)/math.Pow(d, k.Beta), proj)
	term2 := r3.Scale(-k.Beta*math.Pow(pn, k.Alpha)/math.Pow(d, k.Beta+2), diff)
	dKddiff = r3.Add(term1, term2)

	dKdn = r3.Scale(-k.Alpha*dn*math.Pow(pn, k.Alpha-2)/math.Pow(d, k.Beta), diff)
	return kval, dKddiff, dKdn, true
}

// GradientFSide returns d/dx_v [area(f)*areaFp*K(f,f')] where v is the
// vertex at slotF of f (0, 1, or 2) and the "f-prime side" is held fixed
// as a point mass areaFp located at xfp — this covers both the exact
// v∈f-only case (pass fp.Area(), fp.Barycenter()) and the Barnes-Hut
// admissible-cluster case (pass node.TotalMass, node.CenterOfMass).
func (k Kernel) GradientFSide(f Triangle, slotF int, areaFp float64, xfp r3.Vec) r3.Vec {
	areaF := f.Area()
	if areaF == 0 || areaFp == 0 {
		return r3.Vec{}
	}
	xf, nf := f.Barycenter(), f.Normal()
	kval, dKddiff, dKdn, ok := k.kernelDerivatives(xf, xfp, nf)
	if !ok {
		return r3.Vec{}
	}

	dNu := f.dNormalUnnorm(slotF)
	areaNorm := 2 * areaF
	dAreaF := r3.Scale(0.5, mulMatTransposeVec(dNu, nf))

	h := r3.Scale(1/areaNorm, r3.Sub(dKdn, r3.Scale(r3.Dot(nf, dKdn), nf)))
	dKdnChain := mulMatTransposeVec(dNu, h)
	dKdxChain := r3.Scale(1.0/3.0, dKddiff)

	grad := r3.Scale(areaFp*kval, dAreaF)
	grad = r3.Add(grad, r3.Scale(areaF*areaFp, r3.Add(dKdnChain, dKdxChain)))
	return grad
}

// GradientFpSide returns d/dx_v [areaF*area(f')*K(f,f')] where v is the
// vertex at slotFp of f' and the f side is held fixed as area areaF,
// barycenter xf and unit normal nf (K's normal argument never depends on
// f' vertices, so there is no normal term here — matching the v∈f'-only
// case of GradientPair).
func (k Kernel) GradientFpSide(fp Triangle, slotFp int, areaF float64, xf, nf r3.Vec) r3.Vec {
	areaFp := fp.Area()
	if areaF == 0 || areaFp == 0 {
		return r3.Vec{}
	}
	xfp := fp.Barycenter()
	kval, dKddiff, _, ok := k.kernelDerivatives(xf, xfp, nf)
	if !ok {
		return r3.Vec{}
	}

	dNuP := fp.dNormalUnnorm(slotFp)
	dAreaFp := r3.Scale(0.5, mulMatTransposeVec(dNuP, fp.Normal()))
	dKdxpChain := r3.Scale(-1.0/3.0, dKddiff)

	grad := r3.Scale(areaF*kval, dAreaFp)
	grad = r3.Add(grad, r3.Scale(areaF*areaFp, dKdxpChain))
	return grad
}

// GradientPair returns d/dx_v [area(f)*area(f')*K(f,f')] for a vertex v
// given as its local slot in f (slotF, or -1 if v is not a vertex of f)
// and its local slot in f' (slotFp, or -1 likewise). Handles all three
// cases named in spec: v∈f only, v∈f' only, and v∈f∩f' as the sum of
// both sides.
func (k Kernel) GradientPair(f, fp Triangle, slotF, slotFp int) r3.Vec {
	var g r3.Vec
	if slotF >= 0 {
		g = r3.Add(g, k.GradientFSide(f, slotF, fp.Area(), fp.Barycenter()))
	}
	if slotFp >= 0 {
		g = r3.Add(g, k.GradientFpSide(fp, slotFp, f.Area(), f.Barycenter(), f.Normal()))
	}
	return g
}

// NumericalGradientPair computes the same quantity as GradientPair by
// central differences, perturbing the shared vertex by eps along each
// axis. Reserved for test-suite validation of GradientPair (spec.md §8's
// kernel-gradient-vs-numerical property); not used by BarnesHutTPE.
func (k Kernel) NumericalGradientPair(f, fp Triangle, slotF, slotFp int, eps float64) r3.Vec {
	eval := func(pos r3.Vec) float64 {
		f2, fp2 := f, fp
		if slotF >= 0 {
			f2[slotF] = pos
		}
		if slotFp >= 0 {
			fp2[slotFp] = pos
		}
		return f2.Area() * fp2.Area() * k.Value(f2.Barycenter(), fp2.Barycenter(), f2.Normal())
	}
	var base r3.Vec
	switch {
	case slotF >= 0:
		base = f[slotF]
	case slotFp >= 0:
		base = fp[slotFp]
	default:
		return r3.Vec{}
	}

	var grad r3.Vec
	for axis := 0; axis < 3; axis++ {
		plus, minus := base, base
		switch axis {
		case 0:
			plus.X += eps
			minus.X -= eps
		case 1:
			plus.Y += eps
			minus.Y -= eps
		case 2:
			plus.Z += eps
			minus.Z -= eps
		}
		d := (eval(plus) - eval(minus)) / (2 * eps)
		switch axis {
		case 0:
			grad.X = d
		case 1:
			grad.Y = d
		case 2:
			grad.Z = d
		}
	}
	return grad
}
