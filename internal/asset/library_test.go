package asset

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	mat32 "goki.dev/mat32/v2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecsrender/engine/internal/data"
	"github.com/ecsrender/engine/internal/render/effect"
	"github.com/ecsrender/engine/internal/render/gpu/headless"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestCubeFacesPointOutwards(t *testing.T) {
	m := Cube()
	require.Len(t, m.Vertices, 24)
	require.Len(t, m.Indices, 36)
	for _, v := range m.Vertices {
		assert.InDelta(t, 0.5, v.Pos.Dot(v.Normal), 1e-6)
		for _, c := range []float32{v.Pos.X, v.Pos.Y, v.Pos.Z} {
			assert.InDelta(t, 0.5, math.Abs(float64(c)), 1e-6)
		}
	}
}

func TestSphereIsUnit(t *testing.T) {
	m := Sphere(4, 8)
	assert.Len(t, m.Vertices, 5*9)
	assert.Len(t, m.Indices, 4*8*6)
	for _, v := range m.Vertices {
		assert.InDelta(t, 1, v.Pos.Length(), 1e-5)
	}
	for _, i := range m.Indices {
		assert.Less(t, int(i), len(m.Vertices))
	}
}

func TestVertexBytesLayout(t *testing.T) {
	m := &Mesh{Vertices: []Vertex{{Pos: mat32.Vec3{X: 1, Y: 2, Z: 3}, UV: mat32.Vec2{X: 4, Y: 5}, Normal: mat32.Vec3{Z: 1}}}}
	b := m.VertexBytes()
	require.Len(t, b, int(effect.VertexStride[effect.VertexSimple]))
	assert.Equal(t, float32(4), math.Float32frombits(binary.LittleEndian.Uint32(b[12:])))
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(b[28:])))
}

func TestLoadUploadsAndResolvesMaterials(t *testing.T) {
	dev := headless.New(headless.Config{Width: 64, Height: 64}, nil)
	textures, err := data.LoadTextureTable(writeFile(t, "textures.yaml", `
- name: checker
  width: 4
  height: 4
  color: [255, 255, 255, 255]
  alt: [0, 0, 0, 255]
  checker: 2
`))
	require.NoError(t, err)
	materials, err := data.LoadMaterialTable(writeFile(t, "materials.yaml", `
- name: tiles
  albedo: checker
  roughness: 0.4
- name: broken
  albedo: missing
`))
	require.NoError(t, err)

	lib, err := Load(context.Background(), dev, textures, materials, nil)
	require.NoError(t, err)

	cube, ok := lib.MeshByName(MeshCube)
	require.True(t, ok)
	assert.Equal(t, effect.VertexSimple, cube.Component.Format)
	assert.Equal(t, uint32(36), cube.Component.IndexCount)
	assert.Equal(t, cube.VertexBytes(), dev.BufferContents(cube.Component.VertexBuffer))

	fs, ok := lib.MeshByName(MeshFullscreen)
	require.True(t, ok)
	assert.Equal(t, effect.VertexEmpty, fs.Component.Format)
	assert.Equal(t, uint32(3), fs.Component.VertexCount)
	assert.False(t, fs.Component.Indexed())

	checker, ok := lib.TextureByName("checker")
	require.True(t, ok)
	tiles, err := lib.Material("tiles")
	require.NoError(t, err)
	assert.Equal(t, checker, tiles.Albedo)
	assert.Equal(t, float32(0.4), tiles.Roughness)

	def, _ := lib.TextureByName(DefaultAlbedo)
	broken, err := lib.Material("broken")
	require.NoError(t, err)
	assert.Equal(t, def, broken.Albedo)

	_, err = lib.Material("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, DefaultMaterial, lib.DefaultMaterial().Name)

	lib.Close()
	assert.Zero(t, dev.Live(headless.KindBuffer))
	assert.Zero(t, dev.Live(headless.KindTexture))
}

func TestLoadFailsCleanly(t *testing.T) {
	dev := headless.New(headless.Config{Width: 64, Height: 64}, nil)
	dev.FailNext(headless.KindBuffer, errors.New("out of memory"))
	_, err := Load(context.Background(), dev, nil, nil, nil)
	require.Error(t, err)
	assert.Zero(t, dev.Live(headless.KindBuffer))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Load(ctx, dev, nil, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
