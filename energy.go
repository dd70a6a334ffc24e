package tpeflow

import "gonum.org/v1/gonum/spatial/r3"

// SurfaceEnergy is the minimal contract spec.md §6 requires of a scene
// potential: a value and a per-vertex differential. *tpe.BarnesHutTPE
// satisfies it structurally; so can an externally supplied obstacle or
// attractor potential (spec.md §1 places concrete obstacle
// implementations out of scope, but SurfaceFlow only ever needs this
// interface to compose one in).
type SurfaceEnergy interface {
	Value() float64
	Differential() []r3.Vec
}

// SumEnergy combines any number of SurfaceEnergy values into one by
// summing their values and differentials. Used by SurfaceFlow to add an
// external obstacle/attractor potential alongside the tangent-point
// energy without depending on any concrete obstacle implementation.
type SumEnergy []SurfaceEnergy

func (s SumEnergy) Value() float64 {
	var total float64
	for _, e := range s {
		total += e.Value()
	}
	return total
}

func (s SumEnergy) Differential() []r3.Vec {
	var out []r3.Vec
	for _, e := range s {
		d := e.Differential()
		if out == nil {
			out = append([]r3.Vec(nil), d...)
			continue
		}
		for v, dv := range d {
			out[v] = r3.Add(out[v], dv)
		}
	}
	return out
}
