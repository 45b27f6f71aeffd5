package system

import (
	"time"

	mat32 "goki.dev/mat32/v2"

	"github.com/ecsrender/engine/internal/component"
	"github.com/ecsrender/engine/internal/core/ecs"
	coresys "github.com/ecsrender/engine/internal/core/system"
	"github.com/ecsrender/engine/internal/geom"
)

const (
	pointLightFOV  = 45
	pointLightNear = 0.1
	lightFar       = 100
	// Half extent of the directional light's orthographic volume.
	dirLightExtent = 100
	// Distance a directional light without a Transform is placed from the
	// origin, against its direction.
	dirLightDistance = 50
)

// dirLightTarget is where directional lights look. Slightly off the origin
// so a light straight above the scene does not align with the up axis.
var dirLightTarget = mat32.Vec3{X: 0.1, Y: 0, Z: 0.1}

// LightCameraSystem keeps the shadow-casting view-projection of every light
// current. Phase 2 (Camera).
type LightCameraSystem struct {
	world *ecs.World
}

func NewLightCameraSystem(w *ecs.World) *LightCameraSystem {
	return &LightCameraSystem{world: w}
}

func (s *LightCameraSystem) Phase() coresys.Phase { return coresys.PhaseCamera }

func (s *LightCameraSystem) Update(_ time.Duration) {
	ecs.Each2(s.world, func(_ ecs.EntityID, pl *component.PointLight, t *component.Transform) {
		pl.ViewProj = PointLightViewProj(t.Position)
	})
	ecs.Each(s.world, func(id ecs.EntityID, dl *component.DirectionalLight) {
		pos := dl.Direction.Normal().MulScalar(-dirLightDistance)
		if t := ecs.GetComponent[component.Transform](s.world, id); t != nil {
			pos = t.Position
		}
		dl.ViewProj = DirectionalLightViewProj(pos)
	})
}

// PointLightViewProj looks from pos at the origin through a 45° frustum.
func PointLightViewProj(pos mat32.Vec3) mat32.Mat4 {
	view := geom.LookAt(pos, mat32.Vec3{}, geom.Up)
	proj := geom.Perspective(mat32.DegToRad(pointLightFOV), 1, pointLightNear, lightFar)
	return geom.ViewProj(proj, view)
}

// DirectionalLightViewProj looks from pos through an orthographic box.
func DirectionalLightViewProj(pos mat32.Vec3) mat32.Mat4 {
	view := geom.LookAt(pos, dirLightTarget, geom.Up)
	proj := geom.Ortho(-dirLightExtent, dirLightExtent, -dirLightExtent, dirLightExtent, pointLightNear, lightFar)
	return geom.ViewProj(proj, view)
}
