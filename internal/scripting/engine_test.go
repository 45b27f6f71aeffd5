package scripting

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	mat32 "goki.dev/mat32/v2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ecsrender/engine/internal/asset"
	"github.com/ecsrender/engine/internal/component"
	"github.com/ecsrender/engine/internal/core/ecs"
	"github.com/ecsrender/engine/internal/core/event"
)

type fakeAssets struct{}

func (fakeAssets) MeshByName(name string) (*asset.Mesh, bool) {
	switch name {
	case asset.MeshCube:
		return &asset.Mesh{Name: name, Component: component.Mesh{Name: name, IndexCount: 36}}, true
	case asset.MeshSphere:
		return &asset.Mesh{Name: name, Component: component.Mesh{Name: name, IndexCount: 42}}, true
	}
	return nil, false
}

func (fakeAssets) Material(name string) (component.Material, error) {
	if name == "gold" {
		return component.Material{Name: name, Roughness: 0.3}, nil
	}
	return component.Material{}, asset.ErrNotFound
}

func (fakeAssets) DefaultMaterial() component.Material {
	return component.Material{Name: asset.DefaultMaterial, Roughness: 0.5}
}

type cameraListener struct{ ecs.SystemBase }

func newEngine(t *testing.T) (*Engine, *ecs.World, *cameraListener) {
	t.Helper()
	w := ecs.NewWorld()
	l := ecs.RegisterSystem(w, &cameraListener{})
	ecs.SubscribeEvent[event.UpdateCameraMatrix](w, l)
	e := NewEngine(w, fakeAssets{}, rand.New(rand.NewSource(1)), zap.NewNop())
	t.Cleanup(e.Close)
	return e, w, l
}

func TestMeshSpawnsRenderedEntity(t *testing.T) {
	e, w, _ := newEngine(t)
	require.NoError(t, e.RunString(`
		a = mesh("cube", {pos = {1, 2, 3}, rot = {0, 0, 0, 2}, material = "gold"})
		b = mesh("sphere", {rendered = false, roughness = 0.8, metalness = {1, 1, 0}})
	`))
	require.Len(t, e.Spawned(), 2)
	a, b := e.Spawned()[0], e.Spawned()[1]

	assert.Equal(t, mat32.Vec3{X: 1, Y: 2, Z: 3}, ecs.GetComponent[component.Transform](w, a).Position)
	assert.Equal(t, mat32.Quat{W: 1}, ecs.GetComponent[component.Rotate](w, a).Quat)
	assert.Equal(t, "gold", ecs.GetComponent[component.Material](w, a).Name)
	assert.Equal(t, "cube", ecs.GetComponent[component.Mesh](w, a).Name)
	assert.True(t, ecs.HasComponent[component.Rendered](w, a))

	assert.False(t, ecs.HasComponent[component.Rendered](w, b))
	assert.False(t, ecs.HasComponent[component.Rotate](w, b))
	mat := ecs.GetComponent[component.Material](w, b)
	assert.Equal(t, asset.DefaultMaterial, mat.Name)
	assert.InDelta(t, 0.8, mat.Roughness, 1e-6)
	assert.Equal(t, mat32.Vec3{X: 1, Y: 1}, mat.Metalness)
}

func TestCameraRequestsMatrixUpdate(t *testing.T) {
	e, w, l := newEngine(t)
	require.NoError(t, e.RunString(`camera{pos = {-35, 0, 0}, dir = {2, 0, 0}, fov = 90}`))
	id := e.Spawned()[0]

	ct := ecs.GetComponent[component.CameraTransform](w, id)
	assert.Equal(t, mat32.Vec3{X: 1}, ct.Direction)
	assert.Equal(t, float32(90), ecs.GetComponent[component.Camera](w, id).FOV)
	assert.True(t, ecs.HasComponent[component.InputControlled](w, id))
	assert.Equal(t, []event.UpdateCameraMatrix{{Entity: id}}, ecs.Events[event.UpdateCameraMatrix](l))
}

func TestLights(t *testing.T) {
	e, w, _ := newEngine(t)
	require.NoError(t, e.RunString(`
		point_light{pos = {-20, 20, 0}, intensity = 3, attenuation = 0.005}
		directional_light{dir = {0, -2, 0}, pos = {0, 50, 0}}
	`))
	pl := ecs.GetComponent[component.PointLight](w, e.Spawned()[0])
	require.NotNil(t, pl)
	assert.Equal(t, float32(3), pl.Intensity)
	assert.Equal(t, mat32.Vec3{X: 0.2, Y: 0.2, Z: 0.2}, pl.Ambient)

	dl := ecs.GetComponent[component.DirectionalLight](w, e.Spawned()[1])
	require.NotNil(t, dl)
	assert.Equal(t, mat32.Vec3{Y: -1}, dl.Direction)
	assert.Equal(t, mat32.Vec3{Y: 50}, ecs.GetComponent[component.Transform](w, e.Spawned()[1]).Position)
}

func TestScriptErrors(t *testing.T) {
	for name, src := range map[string]string{
		"unknown mesh":     `mesh("teapot")`,
		"unknown material": `mesh("cube", {material = "nope"})`,
		"bad vector":       `mesh("cube", {pos = {1, 2}})`,
		"zero direction":   `directional_light{dir = {0, 0, 0}}`,
		"syntax":           `mesh(`,
	} {
		t.Run(name, func(t *testing.T) {
			e, _, _ := newEngine(t)
			assert.Error(t, e.RunString(src))
			assert.Empty(t, e.Spawned())
		})
	}
}

func TestRandomHelpers(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for range 100 {
		assert.LessOrEqual(t, BallRand(rng, 30).Length(), float32(30.0001))
		q := RandomQuat(rng)
		assert.InDelta(t, 1, q.X*q.X+q.Y*q.Y+q.Z*q.Z+q.W*q.W, 1e-5)
	}
}

func TestRunLevelFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tiny.lua"), []byte(`
		assert(API_VERSION == 1)
		for i = 1, 5 do
			local x, y, z = ball_rand(10)
			mesh("cube", {pos = {x, y, z}, rot = {random_quat()}})
		end
	`), 0o644))
	e, w, _ := newEngine(t)
	require.NoError(t, e.RunLevel(dir, "tiny"))
	assert.Len(t, e.Spawned(), 5)
	n := 0
	ecs.Each(w, func(ecs.EntityID, *component.Rendered) { n++ })
	assert.Equal(t, 5, n)

	assert.Error(t, e.RunLevel(dir, "missing"))
}
