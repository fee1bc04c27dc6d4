package projection

import "math"

// VertexStride is the number of float32 values per vertex.
const VertexStride = 5

const (
	sphereStacks = 32
	sphereSlices = 64
)

// Mesh is indexed triangle geometry.
type Mesh struct {
	// Vertices holds X, Y, Z, U, V per vertex. U, V are image
	// coordinates with V=0 on the top row.
	Vertices []float32
	Indices  []uint32
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / VertexStride
}

// SphereMesh returns a unit UV sphere centered on the viewer.
func SphereMesh(stacks, slices int) *Mesh {
	if stacks < 2 {
		stacks = 2
	}
	if slices < 3 {
		slices = 3
	}
	m := &Mesh{
		Vertices: make([]float32, 0, (stacks+1)*(slices+1)*VertexStride),
		Indices:  make([]uint32, 0, stacks*slices*6),
	}
	for i := 0; i <= stacks; i++ {
		lat := -math.Pi/2 + math.Pi*float64(i)/float64(stacks)
		for j := 0; j <= slices; j++ {
			lon := -math.Pi + 2*math.Pi*float64(j)/float64(slices)
			x := math.Cos(lat) * math.Sin(lon)
			y := math.Sin(lat)
			z := -math.Cos(lat) * math.Cos(lon)
			u := float64(j) / float64(slices)
			v := 1 - float64(i)/float64(stacks)
			m.Vertices = append(m.Vertices, float32(x), float32(y), float32(z), float32(u), float32(v))
		}
	}
	row := uint32(slices + 1)
	for i := 0; i < stacks; i++ {
		for j := 0; j < slices; j++ {
			a := uint32(i)*row + uint32(j)
			b := a + row
			m.Indices = append(m.Indices, a, b, a+1, a+1, b, b+1)
		}
	}
	return m
}

// QuadMesh returns the [-1,1] square in the z=-1 plane. The vertex shader
// scales it to the image's angular extent.
func QuadMesh() *Mesh {
	return &Mesh{
		Vertices: []float32{
			//  X, Y, Z, U, V
			-1.0, -1.0, -1.0, 0.0, 1.0, // ll
			1.0, -1.0, -1.0, 1.0, 1.0, // lr
			1.0, 1.0, -1.0, 1.0, 0.0, // ur
			-1.0, 1.0, -1.0, 0.0, 0.0, // ul
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

// TileQuadMesh returns the unit square used for every multires tile. The
// vertex shader maps (X, Y) through the tile's face rectangle onto its
// cube face.
func TileQuadMesh() *Mesh {
	return &Mesh{
		Vertices: []float32{
			//  X, Y, Z, U, V
			0.0, 1.0, 0.0, 0.0, 1.0, // ll
			1.0, 1.0, 0.0, 1.0, 1.0, // lr
			1.0, 0.0, 0.0, 1.0, 0.0, // ur
			0.0, 0.0, 0.0, 0.0, 0.0, // ul
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}
