package mesh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// WriteSTL writes m as a binary STL file. Adapted from the teacher's
// render/stl.go WriteSTL, simplified to write directly from a Mesh's face
// list instead of streaming through a Renderer abstraction (this module
// has no marching-cubes renderer; the only "render" this package performs
// is exporting the current flow state for inspection).
func WriteSTL(w io.Writer, m *Mesh) error {
	if m.NumFaces() == 0 {
		return errors.New("tpeflow/mesh: WriteSTL: empty mesh")
	}
	header := stlHeader{Count: uint32(m.NumFaces())}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return err
	}
	var buf [50]byte
	for f := 0; f < m.NumFaces(); f++ {
		tri := m.faces[f]
		n := m.FaceNormal(f)
		put3F32(buf[0:], n)
		put3F32(buf[12:], m.verts[tri[0]])
		put3F32(buf[24:], m.verts[tri[1]])
		put3F32(buf[36:], m.verts[tri[2]])
		binary.LittleEndian.PutUint16(buf[48:], 0)
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

// ReadSTL reads a binary STL file into a Mesh, welding vertices that are
// within tol of each other. Adapted from the teacher's render/stl.go
// readBinarySTL; the package's tests exercise it through a WriteSTL
// round trip.
func ReadSTL(r io.Reader, tol float64) (*Mesh, error) {
	var header stlHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("tpeflow/mesh: ReadSTL: header: %w", err)
	}
	if header.Count == 0 {
		return nil, errors.New("tpeflow/mesh: ReadSTL: header indicates 0 triangles")
	}
	cache := make(map[[3]int64]int)
	var verts []r3.Vec
	faces := make([][3]int, 0, header.Count)
	var buf [50]byte
	for i := 0; i < int(header.Count); i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("tpeflow/mesh: ReadSTL: triangle %d: %w", i, err)
		}
		// skip the stored normal (buf[0:12]); recomputed from vertices.
		var tri [3]int
		for j := 0; j < 3; j++ {
			v := get3F32(buf[12+12*j:])
			if badVec(v) {
				return nil, fmt.Errorf("tpeflow/mesh: ReadSTL: triangle %d: inf/NaN vertex", i)
			}
			tri[j] = weld(v, tol, cache, &verts)
		}
		faces = append(faces, tri)
	}
	return New(verts, faces), nil
}

func weld(v r3.Vec, tol float64, cache map[[3]int64]int, verts *[]r3.Vec) int {
	key := [3]int64{
		int64(math.Round(v.X / tol)),
		int64(math.Round(v.Y / tol)),
		int64(math.Round(v.Z / tol)),
	}
	if idx, ok := cache[key]; ok {
		return idx
	}
	idx := len(*verts)
	*verts = append(*verts, v)
	cache[key] = idx
	return idx
}

type stlHeader struct {
	_     [80]uint8
	Count uint32
}

func put3F32(b []byte, v r3.Vec) {
	_ = b[11]
	binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v.X)))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(float32(v.Y)))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(float32(v.Z)))
}

func get3F32(b []byte) r3.Vec {
	_ = b[11]
	return r3.Vec{
		X: float64(math.Float32frombits(binary.LittleEndian.Uint32(b))),
		Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4:]))),
		Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[8:]))),
	}
}

func badVec(v r3.Vec) bool {
	return math.IsNaN(v.X) || math.IsInf(v.X, 0) ||
		math.IsNaN(v.Y) || math.IsInf(v.Y, 0) ||
		math.IsNaN(v.Z) || math.IsInf(v.Z, 0)
}
