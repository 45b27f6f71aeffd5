package game

import (
	"errors"
	"fmt"

	mat32 "goki.dev/mat32/v2"

	"github.com/ecsrender/engine/internal/asset"
	"github.com/ecsrender/engine/internal/component"
	"github.com/ecsrender/engine/internal/core/ecs"
	"github.com/ecsrender/engine/internal/core/event"
	"github.com/ecsrender/engine/internal/persist"
	"github.com/ecsrender/engine/internal/scripting"
)

// restoredAmbient is the point light ambient term; snapshots do not store it.
var restoredAmbient = mat32.Vec3{X: 0.2, Y: 0.2, Z: 0.2}

// Restore spawns a saved scene into w: an input-controlled camera at the
// saved pose, then every mesh and light. Every row is resolved against
// assets before the first entity is created, so an error leaves w as it was.
func Restore(w *ecs.World, assets scripting.Assets, row *persist.SceneRow) ([]ecs.EntityID, error) {
	spawns := make([]func(ecs.EntityID), 0, len(row.Entities))
	for _, e := range row.Entities {
		fn, err := restoreEntity(w, assets, e)
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", e.Entity, err)
		}
		spawns = append(spawns, fn)
	}

	ids := make([]ecs.EntityID, 0, len(spawns)+1)
	dir := mat32.Vec3{X: row.CameraDir[0], Y: row.CameraDir[1], Z: row.CameraDir[2]}
	if dir.Length() == 0 {
		dir = mat32.Vec3{X: 1}
	}
	cam := w.CreateEntity()
	ecs.AddComponent(w, cam, component.DefaultCamera())
	ecs.AddComponent(w, cam, component.CameraTransform{Position: vec(row.CameraPos), Direction: dir.Normal()})
	ecs.AddComponent(w, cam, component.InputControlled{})
	ecs.SendEvent(w, event.UpdateCameraMatrix{Entity: cam})
	ids = append(ids, cam)

	for _, spawn := range spawns {
		id := w.CreateEntity()
		spawn(id)
		ids = append(ids, id)
	}
	return ids, nil
}

func restoreEntity(w *ecs.World, assets scripting.Assets, e persist.EntityRow) (func(ecs.EntityID), error) {
	switch e.Kind {
	case persist.KindMesh:
		m, ok := assets.MeshByName(e.Mesh)
		if !ok {
			return nil, fmt.Errorf("mesh %q: %w", e.Mesh, asset.ErrNotFound)
		}
		mat := assets.DefaultMaterial()
		if e.Material != "" {
			var err error
			if mat, err = assets.Material(e.Material); err != nil {
				return nil, err
			}
		}
		return func(id ecs.EntityID) {
			ecs.AddComponent(w, id, m.Component)
			ecs.AddComponent(w, id, mat)
			ecs.AddComponent(w, id, component.Transform{Position: vec(e.Position)})
			ecs.AddComponent(w, id, component.Rotate{Quat: mat32.Quat{X: e.Rotation[0], Y: e.Rotation[1], Z: e.Rotation[2], W: e.Rotation[3]}})
			if e.Rendered {
				ecs.AddComponent(w, id, component.Rendered{})
			}
		}, nil

	case persist.KindPointLight:
		return func(id ecs.EntityID) {
			ecs.AddComponent(w, id, component.PointLight{
				Color:     vec(e.Color),
				Ambient:   restoredAmbient,
				Intensity: e.Intensity,
			})
			ecs.AddComponent(w, id, component.Transform{Position: vec(e.Position)})
		}, nil

	case persist.KindDirectionalLight:
		dir := mat32.Vec3{X: e.Rotation[0], Y: e.Rotation[1], Z: e.Rotation[2]}
		if dir.Length() == 0 {
			return nil, errors.New("directional light has no direction")
		}
		return func(id ecs.EntityID) {
			ecs.AddComponent(w, id, component.DirectionalLight{
				Direction: dir.Normal(),
				Color:     vec(e.Color),
				Intensity: e.Intensity,
			})
			if e.Position != ([3]float32{}) {
				ecs.AddComponent(w, id, component.Transform{Position: vec(e.Position)})
			}
		}, nil
	}
	return nil, fmt.Errorf("unknown kind %q", e.Kind)
}

func vec(v [3]float32) mat32.Vec3 { return mat32.Vec3{X: v[0], Y: v[1], Z: v[2]} }
