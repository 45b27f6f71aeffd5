package system

import (
	"sort"
	"time"
)

// Runner executes systems in phase order each tick. Systems sharing a phase
// run in registration order. After the last system it drains every event
// inbox, so no event outlives the tick it was sent in.
type Runner struct {
	systems []System
	sorted  bool
	drainer Drainer
	ticks   uint64
}

func NewRunner(drainer Drainer) *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
		drainer: drainer,
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		s.Update(dt)
	}
	if r.drainer != nil {
		r.drainer.DrainEvents()
	}
	r.ticks++
}

// TickPhase runs only the systems of one phase and does not drain.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

// Ticks returns the number of completed Tick calls.
func (r *Runner) Ticks() uint64 { return r.ticks }

func (r *Runner) Len() int { return len(r.systems) }

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
