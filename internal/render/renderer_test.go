package render

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	mat32 "goki.dev/mat32/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecsrender/engine/internal/component"
	"github.com/ecsrender/engine/internal/core/ecs"
	"github.com/ecsrender/engine/internal/core/event"
	coresys "github.com/ecsrender/engine/internal/core/system"
	"github.com/ecsrender/engine/internal/geom"
	"github.com/ecsrender/engine/internal/render/effect"
	"github.com/ecsrender/engine/internal/render/gpu"
	"github.com/ecsrender/engine/internal/render/gpu/headless"
	"github.com/ecsrender/engine/internal/render/pass"
	"github.com/ecsrender/engine/internal/render/pipeline"
	"github.com/ecsrender/engine/internal/render/target"
	"github.com/ecsrender/engine/internal/system"
)

type fakeReloader struct {
	calls [][]string
	err   error
}

func (f *fakeReloader) Reload(names []string) error {
	f.calls = append(f.calls, names)
	return f.err
}

type rendererFixture struct {
	world    *ecs.World
	dev      *headless.Device
	mgr      *target.Manager
	renderer *Renderer
	runner   *coresys.Runner
	mesh     component.Mesh
}

func newRendererFixture(t *testing.T) *rendererFixture {
	t.Helper()
	w := ecs.NewWorld()
	dev := headless.New(headless.Config{Width: 320, Height: 240}, nil)
	mgr, err := target.New(dev, target.DefaultSpecs(256), nil)
	require.NoError(t, err)
	drv, err := pipeline.NewDriver(dev, mgr, pipeline.Config{ConstBufferEntries: 64}, nil)
	require.NoError(t, err)

	ssao, err := pass.NewSSAOPass(w, dev, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	ui, err := pass.NewUIPass(w, dev, 4, 2)
	require.NoError(t, err)
	passes := []pass.Pass{
		pass.NewShadowPass(w),
		pass.NewGBufferPass(w, component.Material{}),
		pass.NewShadePass(w),
		ssao,
		pass.NewSSAOBlendPass(w),
		pass.NewResolvePass(w),
		ui,
	}
	r := New(w, drv, passes, Settings{
		SSAO:      pass.SSAOSettings{Enabled: true, Radius: 0.5, Bias: 0.025},
		DepthBias: [2]float32{1.25, 1.75},
	}, nil)

	vb, err := dev.CreateBuffer(gpu.BufferDescriptor{Label: "tri", Size: 96})
	require.NoError(t, err)

	t.Cleanup(func() {
		dev.DestroyBuffer(vb)
		assert.NoError(t, r.Close(context.Background()))
		mgr.Close()
		assert.NoError(t, dev.Close())
	})

	runner := coresys.NewRunner(w)
	runner.Register(system.NewVisibilitySystem(w))
	runner.Register(r)
	return &rendererFixture{
		world:    w,
		dev:      dev,
		mgr:      mgr,
		renderer: r,
		runner:   runner,
		mesh:     component.Mesh{Name: "tri", VertexBuffer: vb, VertexCount: 3, Format: effect.VertexSimple},
	}
}

func (f *rendererFixture) spawnMesh() ecs.EntityID {
	id := f.world.CreateEntity()
	ecs.AddComponent(f.world, id, f.mesh)
	ecs.AddComponent(f.world, id, component.Transform{Position: mat32.Vec3{Y: 1}})
	ecs.AddComponent(f.world, id, component.Rendered{})
	return id
}

// fullscreenDraws is one triangle each for shading, occlusion, blur and resolve.
const fullscreenDraws uint64 = 4

func TestRenderedEntityIsDrawnUntilUntagged(t *testing.T) {
	f := newRendererFixture(t)
	id := f.spawnMesh()

	f.runner.Tick(0)
	require.Zero(t, f.renderer.Failures())
	st := f.renderer.Stats()
	assert.Equal(t, uint64(1), st.Frame)
	assert.Equal(t, fullscreenDraws+2, st.Draws, "shadow and G-buffer draw the mesh")
	assert.True(t, ecs.HasComponent[component.Visible](f.world, id))

	ecs.RemoveComponent[component.Rendered](f.world, id)
	f.runner.Tick(0)
	require.Zero(t, f.renderer.Failures())
	assert.Equal(t, fullscreenDraws, f.renderer.Stats().Draws)
	assert.False(t, ecs.HasComponent[component.Visible](f.world, id))
}

func TestRenderFramePassCountAndOverlay(t *testing.T) {
	f := newRendererFixture(t)
	f.spawnMesh()

	require.NoError(t, f.renderer.RenderFrame(context.Background()))
	assert.Equal(t, uint64(6), f.renderer.Stats().RenderPasses, "UI pass is skipped without overlay")

	f.renderer.SetOverlay([]string{"frame 1", "draws 6"})
	require.NoError(t, f.renderer.RenderFrame(context.Background()))
	st := f.renderer.Stats()
	assert.Equal(t, uint64(7), st.RenderPasses)
	assert.Equal(t, fullscreenDraws+1, st.Draws, "only the shadow pass draws a mesh that is not Visible")
	assert.True(t, f.mgr.AllAvailable())
}

func TestGatherCopiesCameraAndLights(t *testing.T) {
	f := newRendererFixture(t)
	cam := f.world.CreateEntity()
	c := component.DefaultCamera()
	c.ViewProj = geom.Identity()
	ecs.AddComponent(f.world, cam, c)
	ecs.AddComponent(f.world, cam, component.CameraTransform{Position: mat32.Vec3{X: -35}, Direction: mat32.Vec3{X: 1}})

	dl := f.world.CreateEntity()
	ecs.AddComponent(f.world, dl, component.DirectionalLight{
		Direction: mat32.Vec3{Y: -1},
		Color:     mat32.Vec3{X: 1, Y: 0.5, Z: 0.25},
		Intensity: 2,
	})
	pl := f.world.CreateEntity()
	ecs.AddComponent(f.world, pl, component.PointLight{
		Color:       mat32.Vec3{X: 1, Y: 1, Z: 1},
		Ambient:     mat32.Vec3{X: 0.3, Y: 0.3, Z: 0.3},
		Intensity:   3,
		Attenuation: 0.005,
	})
	ecs.AddComponent(f.world, pl, component.Transform{Position: mat32.Vec3{X: -20, Y: 20}})

	require.NoError(t, f.renderer.RenderFrame(context.Background()))
	fr := f.renderer.Frame()
	assert.Equal(t, [3]float32{-35, 0, 0}, fr.Common.ViewPos)
	assert.Equal(t, geom.Identity(), fr.Common.ViewProj)
	assert.Equal(t, [4]float32{0, -1, 0, 0}, fr.Lights.DirLightDirection)
	assert.Equal(t, [4]float32{2, 1, 0.5, 1}, fr.Lights.DirLightColor)
	assert.Equal(t, [4]float32{-20, 20, 0, 1}, fr.Lights.PointLightPosition)
	assert.Equal(t, [4]float32{3, 3, 3, 0.005}, fr.Lights.PointLightColor)
	assert.Equal(t, [4]float32{0.3, 0.3, 0.3, 1}, fr.Lights.Ambient)
	assert.Equal(t, uint32(0), fr.Debug.SSAOOff)
}

func TestResizeEventResizesTargets(t *testing.T) {
	f := newRendererFixture(t)
	ecs.SendEvent(f.world, event.Resize{Width: 640, Height: 480})
	f.runner.Tick(0)

	require.Zero(t, f.renderer.Failures())
	assert.Equal(t, uint32(640), f.mgr.Width(target.FP16))
	assert.Equal(t, uint32(480), f.mgr.Height(target.GBufferAlbedo))
	assert.Equal(t, uint32(256), f.mgr.Width(target.ShadowMap))
}

func TestShaderReloadDropsPipelines(t *testing.T) {
	f := newRendererFixture(t)
	reloader := &fakeReloader{}
	f.renderer.SetShaderReloader(reloader)

	f.runner.Tick(0)
	misses := f.renderer.Stats().Pipelines.Misses

	f.runner.Tick(0)
	assert.Equal(t, misses, f.renderer.Stats().Pipelines.Misses, "warm cache")

	ecs.SendEvent(f.world, event.ShaderReload{Shaders: []string{"ssao"}})
	f.runner.Tick(0)
	require.Equal(t, [][]string{{"ssao"}}, reloader.calls)
	assert.Equal(t, 2*misses, f.renderer.Stats().Pipelines.Misses, "every pipeline is rebuilt")
}

func TestFailedShaderReloadKeepsPipelines(t *testing.T) {
	f := newRendererFixture(t)
	reloader := &fakeReloader{err: errors.New("bad spirv")}
	f.renderer.SetShaderReloader(reloader)

	f.runner.Tick(0)
	misses := f.renderer.Stats().Pipelines.Misses

	ecs.SendEvent(f.world, event.ShaderReload{Shaders: []string{"ui"}})
	f.runner.Tick(0)
	assert.Len(t, reloader.calls, 1)
	assert.Equal(t, misses, f.renderer.Stats().Pipelines.Misses)
}

func TestFailedFrameIsCountedAndRecovers(t *testing.T) {
	f := newRendererFixture(t)
	f.spawnMesh()
	f.dev.FailNext(headless.KindPipeline, errors.New("out of memory"))

	f.runner.Tick(0)
	assert.Equal(t, uint64(1), f.renderer.Failures())
	assert.True(t, f.mgr.AllAvailable())
	assert.False(t, f.renderer.Driver().InFrame())

	f.runner.Tick(0)
	assert.Equal(t, uint64(1), f.renderer.Failures())
	assert.Equal(t, uint64(2), f.renderer.Stats().Frame)
}
