package asset

import (
	"encoding/binary"
	"math"

	mat32 "goki.dev/mat32/v2"

	"github.com/ecsrender/engine/internal/component"
	"github.com/ecsrender/engine/internal/render/effect"
)

// Built-in mesh names.
const (
	MeshCube       = "cube"
	MeshSphere     = "sphere"
	MeshFullscreen = "fullscreen"
)

// Vertex is the VertexSimple layout: position, uv, normal.
type Vertex struct {
	Pos    mat32.Vec3
	UV     mat32.Vec2
	Normal mat32.Vec3
}

// Mesh is CPU geometry plus the component that references its uploaded
// buffers.
type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
	// Generated meshes without vertices are drawn with this many
	// vertices and the empty vertex format.
	GeneratedVertices uint32
	Component         component.Mesh
}

// VertexBytes packs the vertices in VertexSimple order.
func (m *Mesh) VertexBytes() []byte {
	out := make([]byte, 0, len(m.Vertices)*int(effect.VertexStride[effect.VertexSimple]))
	put := func(f float32) { out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f)) }
	for _, v := range m.Vertices {
		put(v.Pos.X)
		put(v.Pos.Y)
		put(v.Pos.Z)
		put(v.UV.X)
		put(v.UV.Y)
		put(v.Normal.X)
		put(v.Normal.Y)
		put(v.Normal.Z)
	}
	return out
}

func (m *Mesh) IndexBytes() []byte {
	out := make([]byte, 0, len(m.Indices)*4)
	for _, i := range m.Indices {
		out = binary.LittleEndian.AppendUint32(out, i)
	}
	return out
}

// Cube returns a unit cube centred on the origin with one quad per face so
// each face has its own normals.
func Cube() *Mesh {
	faces := [6]struct{ n, u, v mat32.Vec3 }{
		{mat32.Vec3{X: 1}, mat32.Vec3{Z: -1}, mat32.Vec3{Y: 1}},
		{mat32.Vec3{X: -1}, mat32.Vec3{Z: 1}, mat32.Vec3{Y: 1}},
		{mat32.Vec3{Y: 1}, mat32.Vec3{X: 1}, mat32.Vec3{Z: -1}},
		{mat32.Vec3{Y: -1}, mat32.Vec3{X: 1}, mat32.Vec3{Z: 1}},
		{mat32.Vec3{Z: 1}, mat32.Vec3{X: 1}, mat32.Vec3{Y: 1}},
		{mat32.Vec3{Z: -1}, mat32.Vec3{X: -1}, mat32.Vec3{Y: 1}},
	}
	corners := [4]mat32.Vec2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	m := &Mesh{Name: MeshCube}
	for _, f := range faces {
		base := uint32(len(m.Vertices))
		for _, c := range corners {
			p := f.n.MulScalar(0.5).
				Add(f.u.MulScalar(c.X - 0.5)).
				Add(f.v.MulScalar(c.Y - 0.5))
			m.Vertices = append(m.Vertices, Vertex{Pos: p, UV: c, Normal: f.n})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}

// Sphere returns a UV sphere of radius 1 with rings latitude bands and
// segments longitude bands.
func Sphere(rings, segments int) *Mesh {
	rings, segments = max(rings, 2), max(segments, 3)
	m := &Mesh{Name: MeshSphere}
	for r := 0; r <= rings; r++ {
		theta := float32(r) / float32(rings) * mat32.Pi
		sinT, cosT := mat32.Sin(theta), mat32.Cos(theta)
		for s := 0; s <= segments; s++ {
			phi := float32(s) / float32(segments) * 2 * mat32.Pi
			n := mat32.Vec3{X: sinT * mat32.Cos(phi), Y: cosT, Z: sinT * mat32.Sin(phi)}
			m.Vertices = append(m.Vertices, Vertex{
				Pos:    n,
				UV:     mat32.Vec2{X: float32(s) / float32(segments), Y: float32(r) / float32(rings)},
				Normal: n,
			})
		}
	}
	row := uint32(segments + 1)
	for r := uint32(0); r < uint32(rings); r++ {
		for s := uint32(0); s < uint32(segments); s++ {
			a := r*row + s
			b := a + row
			m.Indices = append(m.Indices, a, b, a+1, a+1, b, b+1)
		}
	}
	return m
}

// Fullscreen is the vertex-less triangle the fullscreen passes draw.
func Fullscreen() *Mesh {
	return &Mesh{Name: MeshFullscreen, GeneratedVertices: 3}
}
