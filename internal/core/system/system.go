package system

import "time"

// Phase defines execution ordering within a single frame tick.
type Phase int

const (
	PhaseInput       Phase = iota // 0: window events into the world
	PhaseControl                  // 1: camera control
	PhaseCamera                   // 2: camera and light matrices
	PhaseUpdate                   // 3: GUI update, visibility
	PhaseRender                   // 4: render passes and present
	PhasePersist                  // 5: scene snapshots
	PhaseCleanup                  // 6: destroy queued entities
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseControl:
		return "control"
	case PhaseCamera:
		return "camera"
	case PhaseUpdate:
		return "update"
	case PhaseRender:
		return "render"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is the interface every scheduled system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}

// Drainer empties per-system event inboxes. ecs.World implements it.
type Drainer interface {
	DrainEvents() int
}
