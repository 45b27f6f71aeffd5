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

// CameraMatrixSystem rebuilds a camera's view and projection matrices when
// asked through UpdateCameraMatrix, and every camera's on Resize.
// Phase 2 (Camera).
type CameraMatrixSystem struct {
	ecs.SystemBase
	world *ecs.World
}

func NewCameraMatrixSystem(w *ecs.World) *CameraMatrixSystem {
	s := ecs.RegisterSystem(w, &CameraMatrixSystem{world: w})
	ecs.SubscribeComponent[component.Camera](w, s)
	ecs.SubscribeComponent[component.CameraTransform](w, s)
	ecs.SubscribeEvent[event.UpdateCameraMatrix](w, s)
	ecs.SubscribeEvent[event.Resize](w, s)
	return s
}

func (s *CameraMatrixSystem) Phase() coresys.Phase { return coresys.PhaseCamera }

func (s *CameraMatrixSystem) Update(_ time.Duration) {
	for _, ev := range ecs.Events[event.Resize](s) {
		if ev.Width == 0 || ev.Height == 0 {
			continue
		}
		aspect := float32(ev.Width) / float32(ev.Height)
		for _, id := range s.Entities() {
			ecs.GetComponent[component.Camera](s.world, id).Aspect = aspect
			s.rebuild(id)
		}
	}
	for _, ev := range ecs.Events[event.UpdateCameraMatrix](s) {
		// The entity may have lost its camera since the event was sent.
		if !s.HasEntity(ev.Entity) {
			continue
		}
		s.rebuild(ev.Entity)
	}
}

func (s *CameraMatrixSystem) rebuild(id ecs.EntityID) {
	cam := ecs.GetComponent[component.Camera](s.world, id)
	ct := ecs.GetComponent[component.CameraTransform](s.world, id)
	UpdateCamera(cam, ct)
}

// UpdateCamera derives cam's matrices from the camera transform.
func UpdateCamera(cam *component.Camera, ct *component.CameraTransform) {
	cam.View = geom.LookAt(ct.Position, ct.Position.Add(ct.Direction), geom.Up)
	cam.Proj = geom.Perspective(mat32.DegToRad(cam.FOV), cam.Aspect, cam.Near, cam.Far)
	cam.ViewProj = geom.ViewProj(cam.Proj, cam.View)
}
