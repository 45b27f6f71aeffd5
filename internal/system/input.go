package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/ecsrender/engine/internal/core/ecs"
	"github.com/ecsrender/engine/internal/core/event"
	coresys "github.com/ecsrender/engine/internal/core/system"
	"github.com/ecsrender/engine/internal/input"
)

// InputSystem pumps the window and turns what it sampled into world
// events. Events posted to the bus from other goroutines are delivered
// here too, so they reach the world on the loop goroutine. Phase 0 (Input).
type InputSystem struct {
	world  *ecs.World
	window input.Window
	bus    *event.Bus
	log    *zap.Logger
	closed bool
}

// NewInputSystem wires window and, when bus is non-nil, forwards bus
// ShaderReload and Resize events into w.
func NewInputSystem(w *ecs.World, window input.Window, bus *event.Bus, log *zap.Logger) *InputSystem {
	s := &InputSystem{world: w, window: window, bus: bus, log: log}
	if bus != nil {
		event.Subscribe(bus, func(ev event.ShaderReload) { ecs.SendEvent(w, ev) })
		event.Subscribe(bus, func(ev event.Resize) { ecs.SendEvent(w, ev) })
	}
	return s
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	if s.bus != nil {
		s.bus.DispatchAll()
	}
	if s.closed {
		return
	}
	if !s.window.Update() {
		s.closed = true
		s.log.Info("window closed")
		return
	}
	ecs.SendEvent(s.world, s.window.Keys())
	if m := s.window.Mouse(); m.DX != 0 || m.DY != 0 {
		ecs.SendEvent(s.world, m)
	}
	if w, h, ok := s.window.Resized(); ok {
		ecs.SendEvent(s.world, event.Resize{Width: w, Height: h})
	}
}

// Closed reports whether the window asked the loop to stop.
func (s *InputSystem) Closed() bool { return s.closed }
