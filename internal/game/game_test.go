package game

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	mat32 "goki.dev/mat32/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecsrender/engine/internal/asset"
	"github.com/ecsrender/engine/internal/component"
	"github.com/ecsrender/engine/internal/config"
	"github.com/ecsrender/engine/internal/core/ecs"
	"github.com/ecsrender/engine/internal/persist"
	"github.com/ecsrender/engine/internal/render/effect"
	"github.com/ecsrender/engine/internal/render/target"
	"github.com/ecsrender/engine/internal/shader"
	"github.com/ecsrender/engine/internal/system"
)

const testLevel = `
camera{pos = {-35, 0, 0}, dir = {1, 0, 0}}
directional_light{dir = {-1, -1, 0}, intensity = 2}
point_light{pos = {-20, 20, 0}, intensity = 3, attenuation = 0.005}
for i = 1, 5 do
  mesh("cube", {pos = {ball_rand(10)}, rot = {random_quat()}, material = "brick"})
end
mesh("sphere", {pos = {0, 0, 0}, rendered = false})
`

const testTrack = `
steps:
  - {repeat: 3, keys: [forward]}
  - {repeat: 2, mouse_dx: 10}
  - {resize: {width: 640, height: 480}}
`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// testConfig lays out data, shaders and a level under a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Window.Width, cfg.Window.Height = 320, 240
	cfg.Window.InputTrack = "input_track.yaml"
	cfg.Data.Dir = filepath.Join(root, "data")
	cfg.Render.ShaderDir = filepath.Join(root, "shaders")
	cfg.Render.ShadowMapSize = 256
	cfg.Scripting.LevelDir = filepath.Join(root, "levels")
	cfg.Scripting.Level = "test"
	cfg.Scripting.Seed = 1

	writeFile(t, filepath.Join(cfg.Data.Dir, TextureTableFile),
		"- {name: brick, width: 8, height: 8, color: [180, 70, 50, 255], alt: [90, 35, 25, 255], checker: 2}\n")
	writeFile(t, filepath.Join(cfg.Data.Dir, MaterialTableFile),
		"- {name: brick, albedo: brick, metalness: [0, 0, 0], roughness: 0.8}\n")
	writeFile(t, filepath.Join(cfg.Data.Dir, "input_track.yaml"), testTrack)
	writeFile(t, scriptingPath(cfg), testLevel)
	for id := range effect.ShaderCount {
		name := effect.ShaderName(id)
		writeFile(t, shader.Path(cfg.Render.ShaderDir, name, shader.Vertex), "vert:"+name)
		writeFile(t, shader.Path(cfg.Render.ShaderDir, name, shader.Fragment), "frag:"+name)
	}
	return cfg
}

func scriptingPath(cfg *config.Config) string {
	return filepath.Join(cfg.Scripting.LevelDir, cfg.Scripting.Level+".lua")
}

func TestRunReplaysInputTrack(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	g, err := New(ctx, cfg, Options{}, nil)
	require.NoError(t, err)

	assert.Len(t, g.Spawned(), 9)
	assert.False(t, g.Persistent())
	assert.Equal(t, int64(1), g.Seed())

	require.NoError(t, g.Run(ctx))
	assert.Equal(t, uint64(7), g.Runner().Ticks(), "six track frames and the tick that sees the window close")
	assert.Zero(t, g.Renderer().Failures())
	assert.Equal(t, uint64(7), g.Renderer().Stats().Frame)

	for _, ct := range ecs.Query[component.CameraTransform](g.World()) {
		assert.InDelta(t, -34.7, ct.Position.X, 1e-4, "three steps forward")
		assert.NotEqual(t, mat32.Vec3{X: 1}, ct.Direction, "the mouse turned the camera")
	}
	for _, cam := range ecs.Query[component.Camera](g.World()) {
		assert.InDelta(t, 640.0/480.0, cam.Aspect, 1e-6)
	}
	targets := g.Renderer().Driver().Targets()
	assert.Equal(t, uint32(640), targets.Width(target.FP16))
	assert.NotEmpty(t, g.Renderer().Frame().Overlay, "the GUI feeds the overlay")

	require.NoError(t, g.Close(ctx), "every device object is released")
}

func TestRunLevelIsDeterministicForASeed(t *testing.T) {
	positions := func() []mat32.Vec3 {
		g, err := New(context.Background(), testConfig(t), Options{}, nil)
		require.NoError(t, err)
		defer func() { assert.NoError(t, g.Close(context.Background())) }()
		var out []mat32.Vec3
		ecs.Each2(g.World(), func(_ ecs.EntityID, _ *component.Mesh, tr *component.Transform) {
			out = append(out, tr.Position)
		})
		return out
	}
	a, b := positions(), positions()
	require.Len(t, a, 6)
	assert.Equal(t, a, b)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Window.InputTrack = ""
	cfg.Window.MaxFrames = 0
	g, err := New(context.Background(), cfg, Options{}, nil)
	require.NoError(t, err)
	defer func() { assert.NoError(t, g.Close(context.Background())) }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, g.Run(ctx))
	assert.Zero(t, g.Runner().Ticks())
}

func TestNewFailsCleanly(t *testing.T) {
	cases := map[string]func(*testing.T, *config.Config){
		"missing level":       func(_ *testing.T, c *config.Config) { c.Scripting.Level = "nowhere" },
		"missing shaders":     func(_ *testing.T, c *config.Config) { c.Render.ShaderDir = filepath.Join(c.Data.Dir, "none") },
		"missing input track": func(_ *testing.T, c *config.Config) { c.Window.InputTrack = "missing.yaml" },
		"bad level": func(t *testing.T, c *config.Config) {
			writeFile(t, scriptingPath(c), `mesh("teapot")`)
		},
		"bad target table": func(t *testing.T, c *config.Config) {
			writeFile(t, filepath.Join(c.Data.Dir, TargetTableFile), "- {name: back_buffer, size: 64}\n")
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			mutate(t, cfg)
			g, err := New(context.Background(), cfg, Options{}, nil)
			require.Error(t, err)
			assert.Nil(t, g)
			assert.NotContains(t, err.Error(), "leaked")
		})
	}
}

func TestRestoreNeedsDatabase(t *testing.T) {
	g, err := New(context.Background(), testConfig(t), Options{Restore: 3}, nil)
	require.Error(t, err)
	assert.Nil(t, g)
	assert.Contains(t, err.Error(), "no database")
}

type fakeAssets struct{}

func (fakeAssets) MeshByName(name string) (*asset.Mesh, bool) {
	if name != asset.MeshCube {
		return nil, false
	}
	return &asset.Mesh{Name: name, Component: component.Mesh{Name: name, VertexCount: 24, IndexCount: 36}}, true
}

func (fakeAssets) Material(name string) (component.Material, error) {
	if name != "brick" {
		return component.Material{}, fmt.Errorf("material %q: %w", name, asset.ErrNotFound)
	}
	return component.Material{Name: name, Roughness: 0.8}, nil
}

func (fakeAssets) DefaultMaterial() component.Material {
	return component.Material{Name: asset.DefaultMaterial, Roughness: 0.5}
}

func testScene() *persist.SceneRow {
	return &persist.SceneRow{
		Name:      "demo",
		Level:     "simple",
		CameraPos: [3]float32{-35, 1, 2},
		CameraDir: [3]float32{0, 0, 1},
		Entities: []persist.EntityRow{
			{Entity: 4, Kind: persist.KindMesh, Mesh: asset.MeshCube, Material: "brick",
				Position: [3]float32{1, 2, 3}, Rotation: [4]float32{0, 0, 0, 1}, Rendered: true},
			{Entity: 5, Kind: persist.KindMesh, Mesh: asset.MeshCube,
				Position: [3]float32{-1, 0, 0}, Rotation: [4]float32{0, 1, 0, 0}},
			{Entity: 6, Kind: persist.KindPointLight,
				Position: [3]float32{-20, 20, 0}, Rotation: [4]float32{0, 0, 0, 1}, Color: [3]float32{1, 1, 1}, Intensity: 3},
			{Entity: 7, Kind: persist.KindDirectionalLight,
				Rotation: [4]float32{0, -1, 0, 0}, Color: [3]float32{1, 0.9, 0.8}, Intensity: 2},
		},
	}
}

func TestRestoreSpawnsScene(t *testing.T) {
	w := ecs.NewWorld()
	ids, err := Restore(w, fakeAssets{}, testScene())
	require.NoError(t, err)
	require.Len(t, ids, 5)

	cam := ids[0]
	assert.True(t, ecs.HasComponent[component.InputControlled](w, cam))
	ct := ecs.GetComponent[component.CameraTransform](w, cam)
	require.NotNil(t, ct)
	assert.Equal(t, mat32.Vec3{X: -35, Y: 1, Z: 2}, ct.Position)

	brick := ecs.GetComponent[component.Material](w, ids[1])
	require.NotNil(t, brick)
	assert.Equal(t, "brick", brick.Name)
	assert.True(t, ecs.HasComponent[component.Rendered](w, ids[1]))

	plain := ecs.GetComponent[component.Material](w, ids[2])
	require.NotNil(t, plain)
	assert.Equal(t, asset.DefaultMaterial, plain.Name)
	assert.False(t, ecs.HasComponent[component.Rendered](w, ids[2]))

	pl := ecs.GetComponent[component.PointLight](w, ids[3])
	require.NotNil(t, pl)
	assert.Equal(t, float32(3), pl.Intensity)

	dl := ecs.GetComponent[component.DirectionalLight](w, ids[4])
	require.NotNil(t, dl)
	assert.Equal(t, mat32.Vec3{Y: -1}, dl.Direction)
	assert.False(t, ecs.HasComponent[component.Transform](w, ids[4]))
}

func TestRestoreRoundTripsCapture(t *testing.T) {
	w := ecs.NewWorld()
	_, err := Restore(w, fakeAssets{}, testScene())
	require.NoError(t, err)

	got := system.Capture(w, "demo", "simple", 0)
	want := testScene()
	want.Entities[1].Material = asset.DefaultMaterial
	for i := range got.Entities {
		got.Entities[i].Entity = 0
	}
	for i := range want.Entities {
		want.Entities[i].Entity = 0
	}
	assert.Equal(t, want.CameraPos, got.CameraPos)
	assert.Equal(t, want.CameraDir, got.CameraDir)
	assert.ElementsMatch(t, want.Entities, got.Entities)
}

func TestRestoreRejectsUnknownAssetsAtomically(t *testing.T) {
	for name, e := range map[string]persist.EntityRow{
		"mesh":     {Kind: persist.KindMesh, Mesh: "teapot"},
		"material": {Kind: persist.KindMesh, Mesh: asset.MeshCube, Material: "gold"},
		"kind":     {Kind: "spline"},
		"light":    {Kind: persist.KindDirectionalLight},
	} {
		t.Run(name, func(t *testing.T) {
			w := ecs.NewWorld()
			row := testScene()
			row.Entities = append(row.Entities, e)
			_, err := Restore(w, fakeAssets{}, row)
			require.Error(t, err)
			assert.Zero(t, w.EntityCount(), "nothing is spawned on error")
		})
	}
	_, err := Restore(ecs.NewWorld(), fakeAssets{}, &persist.SceneRow{
		Entities: []persist.EntityRow{{Kind: persist.KindMesh, Mesh: "teapot"}},
	})
	assert.ErrorIs(t, err, asset.ErrNotFound)
}
