// Command tpeflow-bench is a smoke-test/benchmark CLI: it builds one of a
// few fixture meshes, runs SurfaceFlow for a fixed number of iterations,
// and prints the per-iteration statistics to stdout. It is ambient
// tooling, not the interactive viewer spec.md §1 places out of scope.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	tpeflow "github.com/soypat/tpeflow"
	"github.com/soypat/tpeflow/constraint"
	"github.com/soypat/tpeflow/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

func main() {
	var (
		scene      = flag.String("scene", "tetrahedron", "fixture mesh: tetrahedron, icosphere, twospheres")
		iters      = flag.Int("iters", 10, "number of SurfaceFlow.Step iterations")
		theta      = flag.Float64("theta", 0.25, "BVH6D/BCT separation parameter")
		alpha      = flag.Float64("alpha", 3, "tangent-point kernel exponent alpha")
		beta       = flag.Float64("beta", 6, "tangent-point kernel exponent beta")
		subdiv     = flag.Int("subdiv", 1, "icosphere subdivision level")
		areaLocked = flag.Bool("area-constraint", false, "hold total area fixed at its initial value")
		out        = flag.String("out", "", "optional path to write the final mesh as binary STL")
	)
	flag.Parse()
	log.SetFlags(0)

	m, err := buildScene(*scene, *subdiv)
	if err != nil {
		log.Fatal(err)
	}

	flow := &tpeflow.SurfaceFlow{
		Mesh: m,
		Options: tpeflow.Options{
			Alpha: *alpha,
			Beta:  *beta,
			Theta: *theta,
		},
	}
	if *areaLocked {
		flow.Constraints = &constraint.Set{Constraints: []constraint.Constraint{
			constraint.Area{Target: m.TotalArea()},
		}}
	}

	enc := json.NewEncoder(os.Stdout)
	for i := 0; i < *iters; i++ {
		stats, err := flow.Step()
		if err != nil {
			log.Fatalf("iteration %d: %v", i, err)
		}
		enc.Encode(struct {
			Iter int `json:"iter"`
			tpeflow.IterationStats
		}{i, stats})
	}

	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		if err := mesh.WriteSTL(f, m); err != nil {
			log.Fatal(err)
		}
	}
}

func buildScene(name string, subdiv int) (*mesh.Mesh, error) {
	switch name {
	case "tetrahedron":
		return mesh.Tetrahedron(), nil
	case "icosphere":
		return mesh.Icosphere(subdiv, 1.0, r3.Vec{}), nil
	case "twospheres":
		return mesh.TwoSpheres(subdiv, 1.0, 1.5), nil
	default:
		return nil, fmt.Errorf("tpeflow-bench: unknown scene %q", name)
	}
}
