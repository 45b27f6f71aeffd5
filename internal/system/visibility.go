package system

import (
	"time"

	"github.com/ecsrender/engine/internal/component"
	"github.com/ecsrender/engine/internal/core/ecs"
	coresys "github.com/ecsrender/engine/internal/core/system"
)

// VisibilitySystem decides which Rendered entities the G-buffer pass draws.
// There is no culling yet: every Rendered entity is marked Visible, and
// entities that lost Rendered lose Visible too. Phase 3 (Update).
type VisibilitySystem struct {
	ecs.SystemBase
	world *ecs.World
	stale []ecs.EntityID
}

func NewVisibilitySystem(w *ecs.World) *VisibilitySystem {
	s := ecs.RegisterSystem(w, &VisibilitySystem{world: w})
	ecs.SubscribeComponent[component.Rendered](w, s)
	return s
}

func (s *VisibilitySystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *VisibilitySystem) Update(_ time.Duration) {
	s.stale = s.stale[:0]
	for id := range ecs.Query[component.Visible](s.world) {
		if !s.HasEntity(id) {
			s.stale = append(s.stale, id)
		}
	}
	for _, id := range s.stale {
		ecs.RemoveComponent[component.Visible](s.world, id)
	}
	for _, id := range s.Entities() {
		if !ecs.HasComponent[component.Visible](s.world, id) {
			ecs.AddComponent(s.world, id, component.Visible{})
		}
	}
}
