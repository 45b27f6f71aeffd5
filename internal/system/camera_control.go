package system

import (
	"time"

	mat32 "goki.dev/mat32/v2"

	"github.com/ecsrender/engine/internal/component"
	"github.com/ecsrender/engine/internal/core/ecs"
	"github.com/ecsrender/engine/internal/core/event"
	coresys "github.com/ecsrender/engine/internal/core/system"
	"github.com/ecsrender/engine/internal/geom"
)

const (
	moveStep = 0.1
	// Mouse sensitivity in degrees per pixel, horizontal then vertical.
	turnXZ   = 0.5
	turnY    = 0.2
	degToRad = 3.14 / 180
)

// CameraControlSystem moves input-controlled cameras from the key and mouse
// state sampled this tick. Phase 1 (Control).
type CameraControlSystem struct {
	ecs.SystemBase
	world *ecs.World
}

func NewCameraControlSystem(w *ecs.World) *CameraControlSystem {
	s := ecs.RegisterSystem(w, &CameraControlSystem{world: w})
	ecs.SubscribeComponent[component.Camera](w, s)
	ecs.SubscribeComponent[component.CameraTransform](w, s)
	ecs.SubscribeComponent[component.InputControlled](w, s)
	ecs.SubscribeEvent[event.KeyState](w, s)
	ecs.SubscribeEvent[event.MouseState](w, s)
	return s
}

func (s *CameraControlSystem) Phase() coresys.Phase { return coresys.PhaseControl }

func (s *CameraControlSystem) Update(_ time.Duration) {
	keys := ecs.Events[event.KeyState](s)
	mouse := ecs.Events[event.MouseState](s)
	if len(keys) == 0 && len(mouse) == 0 {
		return
	}
	for _, id := range s.Entities() {
		ct := ecs.GetComponent[component.CameraTransform](s.world, id)
		moved := false
		for _, k := range keys {
			if Move(ct, k) {
				moved = true
			}
		}
		for _, m := range mouse {
			if Turn(ct, m) {
				moved = true
			}
		}
		if moved {
			ecs.SendEvent(s.world, event.UpdateCameraMatrix{Entity: id})
		}
	}
}

// Move steps ct along its look direction and the sideways axis for every
// pressed key. It reports whether any key was pressed.
func Move(ct *component.CameraTransform, k event.KeyState) bool {
	if !k.Any() {
		return false
	}
	forward := ct.Direction
	side := geom.Up.Cross(forward)
	if k.Pressed[event.KeyForward] {
		ct.Position = ct.Position.Add(forward.MulScalar(moveStep))
	}
	if k.Pressed[event.KeyBackward] {
		ct.Position = ct.Position.Sub(forward.MulScalar(moveStep))
	}
	if k.Pressed[event.KeyLeft] {
		ct.Position = ct.Position.Sub(side.MulScalar(moveStep))
	}
	if k.Pressed[event.KeyRight] {
		ct.Position = ct.Position.Add(side.MulScalar(moveStep))
	}
	return true
}

// Turn yaws ct around the up axis and pitches it around the resulting
// sideways axis. A zero shift leaves ct untouched.
func Turn(ct *component.CameraTransform, m event.MouseState) bool {
	if m.DX == 0 && m.DY == 0 {
		return false
	}
	angleXZ := turnXZ * m.DX * degToRad
	angleY := turnY * m.DY * degToRad
	dir := geom.Rotate(ct.Direction, angleXZ, geom.Up)
	normal := geom.Up.Cross(dir)
	if normal != (mat32.Vec3{}) {
		dir = geom.Rotate(dir, angleY, normal)
	}
	ct.Direction = dir.Normal()
	return true
}
