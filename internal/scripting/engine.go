// Package scripting runs level scripts. A level is a Lua file that builds
// the scene through a small API of spawn functions.
package scripting

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	mat32 "goki.dev/mat32/v2"
	"go.uber.org/zap"

	"github.com/ecsrender/engine/internal/asset"
	"github.com/ecsrender/engine/internal/component"
	"github.com/ecsrender/engine/internal/core/ecs"
	"github.com/ecsrender/engine/internal/core/event"
)

// APIVersion is exposed to scripts as API_VERSION.
const APIVersion = 1

// Assets is the part of the asset library levels reach.
type Assets interface {
	MeshByName(name string) (*asset.Mesh, bool)
	Material(name string) (component.Material, error)
	DefaultMaterial() component.Material
}

// Engine wraps a single gopher-lua VM bound to a world.
// Single-goroutine access only (game loop).
type Engine struct {
	vm      *lua.LState
	log     *zap.Logger
	world   *ecs.World
	assets  Assets
	rng     *rand.Rand
	spawned []ecs.EntityID
}

// NewEngine creates a VM with the level API installed. Script randomness
// comes from rng so a seeded level is reproducible.
func NewEngine(w *ecs.World, assets Assets, rng *rand.Rand, log *zap.Logger) *Engine {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(APIVersion))

	e := &Engine{vm: vm, log: log, world: w, assets: assets, rng: rng}
	for name, fn := range map[string]lua.LGFunction{
		"mesh":              e.luaMesh,
		"camera":            e.luaCamera,
		"point_light":       e.luaPointLight,
		"directional_light": e.luaDirectionalLight,
		"rand":              e.luaRand,
		"ball_rand":         e.luaBallRand,
		"random_quat":       e.luaRandomQuat,
		"log":               e.luaLog,
	} {
		vm.SetGlobal(name, vm.NewFunction(fn))
	}
	return e
}

// LevelPath returns the script file of a level.
func LevelPath(dir, level string) string {
	return filepath.Join(dir, level+".lua")
}

// RunLevel executes the named level script in dir.
func (e *Engine) RunLevel(dir, level string) error {
	path := LevelPath(dir, level)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("level %s: %w", level, err)
	}
	before := len(e.spawned)
	if err := e.vm.DoFile(path); err != nil {
		return fmt.Errorf("run level %s: %w", path, err)
	}
	e.log.Info("level loaded", zap.String("level", level), zap.Int("entities", len(e.spawned)-before))
	return nil
}

// RunString executes a chunk of level code.
func (e *Engine) RunString(src string) error {
	if err := e.vm.DoString(src); err != nil {
		return fmt.Errorf("run level chunk: %w", err)
	}
	return nil
}

// Spawned returns every entity created by scripts so far, in creation order.
func (e *Engine) Spawned() []ecs.EntityID { return e.spawned }

func (e *Engine) Close() { e.vm.Close() }

func (e *Engine) create() ecs.EntityID {
	id := e.world.CreateEntity()
	e.spawned = append(e.spawned, id)
	return id
}

// mesh(name, {pos=, rot=, material=, metalness=, roughness=, rendered=}) -> id
func (e *Engine) luaMesh(L *lua.LState) int {
	name := L.CheckString(1)
	opts := L.OptTable(2, L.NewTable())

	m, ok := e.assets.MeshByName(name)
	if !ok {
		L.ArgError(1, fmt.Sprintf("unknown mesh %q", name))
		return 0
	}
	mat := e.assets.DefaultMaterial()
	if mn := opts.RawGetString("material"); mn != lua.LNil {
		var err error
		if mat, err = e.assets.Material(lua.LVAsString(mn)); err != nil {
			L.ArgError(2, err.Error())
			return 0
		}
	}
	if v := opts.RawGetString("metalness"); v != lua.LNil {
		mat.Metalness = vec3(L, v)
	}
	if v := opts.RawGetString("roughness"); v != lua.LNil {
		mat.Roughness = float32(lua.LVAsNumber(v))
	}

	pos := vec3(L, opts.RawGetString("pos"))
	var rot *component.Rotate
	if v := opts.RawGetString("rot"); v != lua.LNil {
		rot = &component.Rotate{Quat: quat(L, v)}
	}

	id := e.create()
	ecs.AddComponent(e.world, id, m.Component)
	ecs.AddComponent(e.world, id, mat)
	ecs.AddComponent(e.world, id, component.Transform{Position: pos})
	if rot != nil {
		ecs.AddComponent(e.world, id, *rot)
	}
	if opts.RawGetString("rendered") != lua.LFalse {
		ecs.AddComponent(e.world, id, component.Rendered{})
	}
	L.Push(lua.LNumber(id))
	return 1
}

// camera({pos=, dir=, fov=, aspect=, near=, far=, controlled=}) -> id
func (e *Engine) luaCamera(L *lua.LState) int {
	opts := L.OptTable(1, L.NewTable())
	cam := component.DefaultCamera()
	cam.FOV = number(opts, "fov", cam.FOV)
	cam.Aspect = number(opts, "aspect", cam.Aspect)
	cam.Near = number(opts, "near", cam.Near)
	cam.Far = number(opts, "far", cam.Far)

	dir := mat32.Vec3{X: 1}
	if v := opts.RawGetString("dir"); v != lua.LNil {
		dir = vec3(L, v)
	}
	if dir.Length() == 0 {
		L.ArgError(1, "camera direction is zero")
		return 0
	}

	pos := vec3(L, opts.RawGetString("pos"))

	id := e.create()
	ecs.AddComponent(e.world, id, cam)
	ecs.AddComponent(e.world, id, component.CameraTransform{Position: pos, Direction: dir.Normal()})
	if opts.RawGetString("controlled") != lua.LFalse {
		ecs.AddComponent(e.world, id, component.InputControlled{})
	}
	ecs.SendEvent(e.world, event.UpdateCameraMatrix{Entity: id})
	L.Push(lua.LNumber(id))
	return 1
}

// point_light({pos=, color=, ambient=, intensity=, attenuation=}) -> id
func (e *Engine) luaPointLight(L *lua.LState) int {
	opts := L.CheckTable(1)
	pl := component.PointLight{
		Color:       mat32.Vec3{X: 1, Y: 1, Z: 1},
		Ambient:     mat32.Vec3{X: 0.2, Y: 0.2, Z: 0.2},
		Intensity:   number(opts, "intensity", 1),
		Attenuation: number(opts, "attenuation", 0),
	}
	if v := opts.RawGetString("color"); v != lua.LNil {
		pl.Color = vec3(L, v)
	}
	if v := opts.RawGetString("ambient"); v != lua.LNil {
		pl.Ambient = vec3(L, v)
	}
	pos := vec3(L, opts.RawGetString("pos"))

	id := e.create()
	ecs.AddComponent(e.world, id, pl)
	ecs.AddComponent(e.world, id, component.Transform{Position: pos})
	L.Push(lua.LNumber(id))
	return 1
}

// directional_light({dir=, color=, intensity=, pos=}) -> id
func (e *Engine) luaDirectionalLight(L *lua.LState) int {
	opts := L.CheckTable(1)
	dl := component.DirectionalLight{
		Direction: vec3(L, opts.RawGetString("dir")),
		Color:     mat32.Vec3{X: 1, Y: 1, Z: 1},
		Intensity: number(opts, "intensity", 1),
	}
	if dl.Direction.Length() == 0 {
		L.ArgError(1, "light direction is zero")
		return 0
	}
	dl.Direction = dl.Direction.Normal()
	if v := opts.RawGetString("color"); v != lua.LNil {
		dl.Color = vec3(L, v)
	}
	var t *component.Transform
	if v := opts.RawGetString("pos"); v != lua.LNil {
		t = &component.Transform{Position: vec3(L, v)}
	}

	id := e.create()
	ecs.AddComponent(e.world, id, dl)
	if t != nil {
		ecs.AddComponent(e.world, id, *t)
	}
	L.Push(lua.LNumber(id))
	return 1
}

func (e *Engine) luaRand(L *lua.LState) int {
	L.Push(lua.LNumber(e.rng.Float64()))
	return 1
}

// ball_rand(r) -> x, y, z uniformly inside a ball of radius r.
func (e *Engine) luaBallRand(L *lua.LState) int {
	p := BallRand(e.rng, float32(L.CheckNumber(1)))
	L.Push(lua.LNumber(p.X))
	L.Push(lua.LNumber(p.Y))
	L.Push(lua.LNumber(p.Z))
	return 3
}

// random_quat() -> x, y, z, w of a uniformly random rotation.
func (e *Engine) luaRandomQuat(L *lua.LState) int {
	q := RandomQuat(e.rng)
	L.Push(lua.LNumber(q.X))
	L.Push(lua.LNumber(q.Y))
	L.Push(lua.LNumber(q.Z))
	L.Push(lua.LNumber(q.W))
	return 4
}

func (e *Engine) luaLog(L *lua.LState) int {
	e.log.Info("level", zap.String("msg", L.CheckString(1)))
	return 0
}

// BallRand returns a point uniformly distributed inside a ball.
func BallRand(rng *rand.Rand, radius float32) mat32.Vec3 {
	for {
		p := mat32.Vec3{
			X: rng.Float32()*2 - 1,
			Y: rng.Float32()*2 - 1,
			Z: rng.Float32()*2 - 1,
		}
		if p.LengthSq() <= 1 {
			return p.MulScalar(radius)
		}
	}
}

// RandomQuat returns a uniformly distributed unit quaternion.
func RandomQuat(rng *rand.Rand) mat32.Quat {
	u1, u2, u3 := rng.Float64(), rng.Float64()*2*math.Pi, rng.Float64()*2*math.Pi
	a, b := math.Sqrt(1-u1), math.Sqrt(u1)
	return mat32.Quat{
		X: float32(a * math.Sin(u2)),
		Y: float32(a * math.Cos(u2)),
		Z: float32(b * math.Sin(u3)),
		W: float32(b * math.Cos(u3)),
	}
}

func number(t *lua.LTable, key string, def float32) float32 {
	if v := t.RawGetString(key); v != lua.LNil {
		return float32(lua.LVAsNumber(v))
	}
	return def
}

// vec3 reads {x, y, z}. nil yields the zero vector.
func vec3(L *lua.LState, v lua.LValue) mat32.Vec3 {
	if v == lua.LNil {
		return mat32.Vec3{}
	}
	t, ok := v.(*lua.LTable)
	if !ok || t.Len() != 3 {
		L.RaiseError("expected {x, y, z}, got %s", v.String())
		return mat32.Vec3{}
	}
	return mat32.Vec3{
		X: float32(lua.LVAsNumber(t.RawGetInt(1))),
		Y: float32(lua.LVAsNumber(t.RawGetInt(2))),
		Z: float32(lua.LVAsNumber(t.RawGetInt(3))),
	}
}

// quat reads {x, y, z, w} and normalizes it.
func quat(L *lua.LState, v lua.LValue) mat32.Quat {
	t, ok := v.(*lua.LTable)
	if !ok || t.Len() != 4 {
		L.RaiseError("expected {x, y, z, w}, got %s", v.String())
		return mat32.Quat{W: 1}
	}
	q := mat32.Quat{
		X: float32(lua.LVAsNumber(t.RawGetInt(1))),
		Y: float32(lua.LVAsNumber(t.RawGetInt(2))),
		Z: float32(lua.LVAsNumber(t.RawGetInt(3))),
		W: float32(lua.LVAsNumber(t.RawGetInt(4))),
	}
	q.Normalize()
	return q
}
