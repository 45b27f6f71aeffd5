package system

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	mat32 "goki.dev/mat32/v2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ecsrender/engine/internal/component"
	"github.com/ecsrender/engine/internal/core/ecs"
	"github.com/ecsrender/engine/internal/core/event"
	"github.com/ecsrender/engine/internal/data"
	"github.com/ecsrender/engine/internal/input"
	"github.com/ecsrender/engine/internal/persist"
	"github.com/ecsrender/engine/internal/render/pipeline"
)

func TestVisibilityFollowsRendered(t *testing.T) {
	w := ecs.NewWorld()
	s := NewVisibilitySystem(w)
	a := w.CreateEntity()
	b := w.CreateEntity()
	ecs.AddComponent(w, a, component.Rendered{})
	ecs.AddComponent(w, b, component.Transform{})

	s.Update(tick)
	assert.True(t, ecs.HasComponent[component.Visible](w, a))
	assert.False(t, ecs.HasComponent[component.Visible](w, b))

	ecs.RemoveComponent[component.Rendered](w, a)
	ecs.AddComponent(w, b, component.Rendered{})
	s.Update(tick)
	assert.False(t, ecs.HasComponent[component.Visible](w, a))
	assert.True(t, ecs.HasComponent[component.Visible](w, b))
}

func TestCleanupFlushesDestroyQueue(t *testing.T) {
	w := ecs.NewWorld()
	s := NewCleanupSystem(w)
	id := w.CreateEntity()
	w.MarkForDestruction(id)
	require.True(t, w.Alive(id))

	s.Update(tick)
	assert.False(t, w.Alive(id))
	assert.Equal(t, 1, s.Destroyed())
}

type probe struct{ ecs.SystemBase }

func TestInputSystemSendsSampledState(t *testing.T) {
	w := ecs.NewWorld()
	p := ecs.RegisterSystem(w, &probe{})
	ecs.SubscribeEvent[event.KeyState](w, p)
	ecs.SubscribeEvent[event.MouseState](w, p)
	ecs.SubscribeEvent[event.Resize](w, p)
	ecs.SubscribeEvent[event.ShaderReload](w, p)

	track, err := data.ParseInputTrack([]byte(`
steps:
  - keys: [right]
    mouse_dx: 3
    resize: {width: 100, height: 50}
  - keys: []
`))
	require.NoError(t, err)
	bus := event.NewBus()
	s := NewInputSystem(w, input.NewHeadless(320, 240, track, 0), bus, zap.NewNop())

	event.Post(bus, event.ShaderReload{Shaders: []string{"ssao"}})
	s.Update(tick)
	keys := ecs.Events[event.KeyState](p)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].Pressed[event.KeyRight])
	assert.Equal(t, []event.MouseState{{DX: 3}}, ecs.Events[event.MouseState](p))
	assert.Equal(t, []event.Resize{{Width: 100, Height: 50}}, ecs.Events[event.Resize](p))
	assert.Equal(t, []event.ShaderReload{{Shaders: []string{"ssao"}}}, ecs.Events[event.ShaderReload](p))
	w.DrainEvents()

	s.Update(tick)
	assert.Len(t, ecs.Events[event.KeyState](p), 1)
	assert.False(t, ecs.HasEvents[event.MouseState](p), "a zero shift is not sent")
	assert.False(t, s.Closed())
	w.DrainEvents()

	s.Update(tick)
	assert.True(t, s.Closed())
	assert.False(t, ecs.HasEvents[event.KeyState](p))
}

type fakeView struct {
	stats   pipeline.Stats
	overlay []string
}

func (v *fakeView) Stats() pipeline.Stats      { return v.stats }
func (v *fakeView) SetOverlay(lines []string) { v.overlay = lines }

func TestGUIFormatsStats(t *testing.T) {
	w := ecs.NewWorld()
	for range 3 {
		w.CreateEntity()
	}
	v := &fakeView{stats: pipeline.Stats{
		Frame:     12345,
		FrameTime: 2500 * time.Microsecond,
		Draws:     301,
		Pipelines: pipeline.CacheStats{Name: "pipelines", Size: 7, Hits: 3, Misses: 1},
	}}
	s := NewGUISystem(w, v, DebugSettings{DrawMode: 0, SSAOEnabled: true, SSAORadius: 0.5, SSAOBias: 0.025})

	// 61 ticks of 1/60 s close the first one-second window.
	for range 61 {
		s.Update(time.Second / 60)
	}
	require.NotEmpty(t, v.overlay)
	assert.True(t, strings.HasPrefix(v.overlay[0], "frame 12,345  60.0 fps  2.50 ms"), v.overlay[0])
	assert.Contains(t, v.overlay[1], "entities 3")
	assert.Contains(t, v.overlay[1], "draws 301")
	assert.Contains(t, strings.Join(v.overlay, "\n"), "hit 75.0%")
	assert.Equal(t, "draw mode shaded  ssao radius 0.500 bias 0.025", v.overlay[len(v.overlay)-1])

	s.SetEnabled(false)
	assert.Nil(t, v.overlay)
	s.Update(tick)
	assert.Nil(t, v.overlay)
}

type fakeScenes struct {
	saved []*persist.SceneRow
	err   error
}

func (f *fakeScenes) Save(_ context.Context, s *persist.SceneRow) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.saved = append(f.saved, s)
	return int64(len(f.saved)), nil
}

type fakeStats struct{ rows []persist.FrameStatRow }

func (f *fakeStats) Record(_ context.Context, rows []persist.FrameStatRow) error {
	f.rows = append(f.rows, rows...)
	return nil
}

type fixedSource struct{ frame uint64 }

func (s *fixedSource) Stats() pipeline.Stats { return pipeline.Stats{Frame: s.frame, Draws: 2} }

func sceneWorld(t *testing.T) *ecs.World {
	t.Helper()
	w := ecs.NewWorld()
	cam := w.CreateEntity()
	ecs.AddComponent(w, cam, component.CameraTransform{Position: mat32.Vec3{X: -35}, Direction: mat32.Vec3{X: 1}})

	cube := w.CreateEntity()
	ecs.AddComponent(w, cube, component.Transform{Position: mat32.Vec3{X: 1, Y: 2, Z: 3}})
	ecs.AddComponent(w, cube, component.Mesh{Name: "cube"})
	ecs.AddComponent(w, cube, component.Material{Name: "brick"})
	ecs.AddComponent(w, cube, component.Rendered{})
	q := mat32.NewQuatAxisAngle(mat32.Vec3{Y: 1}, 1)
	ecs.AddComponent(w, cube, component.Rotate{Quat: q})

	light := w.CreateEntity()
	ecs.AddComponent(w, light, component.Transform{Position: mat32.Vec3{X: -20, Y: 20}})
	ecs.AddComponent(w, light, component.PointLight{Color: mat32.Vec3{X: 1, Y: 1, Z: 1}, Intensity: 3})
	return w
}

func TestCaptureRecordsSceneContents(t *testing.T) {
	w := sceneWorld(t)
	row := Capture(w, "demo", "pbr", 42)

	assert.Equal(t, "demo", row.Name)
	assert.Equal(t, uint64(42), row.Frame)
	assert.Equal(t, [3]float32{-35, 0, 0}, row.CameraPos)
	require.Len(t, row.Entities, 2)

	cube := row.Entities[0]
	assert.Equal(t, persist.KindMesh, cube.Kind)
	assert.Equal(t, "cube", cube.Mesh)
	assert.Equal(t, "brick", cube.Material)
	assert.Equal(t, [3]float32{1, 2, 3}, cube.Position)
	assert.True(t, cube.Rendered)
	assert.NotEqual(t, [4]float32{0, 0, 0, 1}, cube.Rotation)

	light := row.Entities[1]
	assert.Equal(t, persist.KindPointLight, light.Kind)
	assert.Equal(t, float32(3), light.Intensity)
}

func TestSnapshotSavesEveryInterval(t *testing.T) {
	w := sceneWorld(t)
	scenes := &fakeScenes{}
	stats := &fakeStats{}
	src := &fixedSource{frame: 9}
	s := NewSnapshotSystem(w, scenes, stats, src, "demo", "pbr", "run-1", 3, zap.NewNop())

	s.Update(tick)
	s.Update(tick)
	assert.Empty(t, scenes.saved)
	assert.Empty(t, stats.rows)

	s.Update(tick)
	require.Len(t, scenes.saved, 1)
	assert.Equal(t, uint64(9), scenes.saved[0].Frame)
	require.Len(t, stats.rows, 3)
	assert.Equal(t, "run-1", stats.rows[0].RunID)
	assert.Equal(t, 3, stats.rows[0].Entities)

	s.Update(tick)
	s.SaveNow()
	assert.Len(t, scenes.saved, 2)
	assert.Len(t, stats.rows, 4)
}

func TestSnapshotFailureIsLoggedNotFatal(t *testing.T) {
	w := sceneWorld(t)
	scenes := &fakeScenes{err: errors.New("connection refused")}
	s := NewSnapshotSystem(w, scenes, nil, nil, "demo", "pbr", "run-1", 1, zap.NewNop())
	assert.NotPanics(t, func() { s.Update(tick) })
	assert.Empty(t, scenes.saved)
}
