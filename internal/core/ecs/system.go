package ecs

import (
	"fmt"
	"reflect"
)

// MaxSystems bounds the system table.
const MaxSystems = 128

// System is implemented by embedding *SystemBase (or SystemBase) in a struct.
type System interface {
	Base() *SystemBase
}

// SystemBase carries what the world tracks per system: the required
// component signature, the entities currently matching it, the event
// subscription set and the event inbox.
type SystemBase struct {
	name      string
	world     *World
	signature Signature
	events    Signature
	entities  entitySet
	inbox     *Inbox

	reportedDrops int
}

func (b *SystemBase) Base() *SystemBase { return b }

func (b *SystemBase) Name() string { return b.name }

func (b *SystemBase) Signature() Signature { return b.signature }

// EventSignature has bit i set when the system listens to EventType i.
func (b *SystemBase) EventSignature() Signature { return b.events }

// Entities returns the matching entities in the order they joined.
// The slice is owned by the system and changes with membership.
func (b *SystemBase) Entities() []EntityID { return b.entities.dense }

func (b *SystemBase) HasEntity(id EntityID) bool { return b.entities.has(id) }

func (b *SystemBase) EntityCount() int { return len(b.entities.dense) }

func (b *SystemBase) Inbox() *Inbox { return b.inbox }

// Drain empties the inbox. The runner calls it once per tick through World.DrainEvents.
func (b *SystemBase) Drain() int {
	if b.inbox == nil {
		return 0
	}
	return b.inbox.Drain()
}

func (b *SystemBase) attached() bool { return b.world != nil }

// entitySet is a packed set with insertion-ordered iteration.
type entitySet struct {
	dense  []EntityID
	sparse [MaxEntities]int32 // index+1, 0 when absent
}

func (s *entitySet) has(id EntityID) bool { return s.sparse[id] != 0 }

func (s *entitySet) add(id EntityID) {
	if s.sparse[id] != 0 {
		return
	}
	s.dense = append(s.dense, id)
	s.sparse[id] = int32(len(s.dense))
}

func (s *entitySet) remove(id EntityID) {
	pos := s.sparse[id]
	if pos == 0 {
		return
	}
	idx := pos - 1
	last := int32(len(s.dense) - 1)
	if idx != last {
		moved := s.dense[last]
		s.dense[idx] = moved
		s.sparse[moved] = idx + 1
	}
	s.dense = s.dense[:last]
	s.sparse[id] = 0
}

// SystemManager keeps the system table and the event subscriber lists and
// recomputes membership when signatures change.
type SystemManager struct {
	byType      map[reflect.Type]System
	order       []*SystemBase
	subscribers [MaxEvents][]*SystemBase
}

func NewSystemManager() *SystemManager {
	return &SystemManager{
		byType: make(map[reflect.Type]System, 16),
		order:  make([]*SystemBase, 0, 16),
	}
}

func (m *SystemManager) register(s System) {
	rt := reflect.TypeOf(s)
	if _, dup := m.byType[rt]; dup {
		panic(fmt.Sprintf("ecs: system %s registered twice", rt))
	}
	if len(m.order) >= MaxSystems {
		panic(fmt.Sprintf("ecs: cannot register %s: system limit %d reached", rt, MaxSystems))
	}
	m.byType[rt] = s
	m.order = append(m.order, s.Base())
}

func (m *SystemManager) lookup(rt reflect.Type) System {
	s, ok := m.byType[rt]
	if !ok {
		panic(fmt.Sprintf("ecs: system %s is not registered", rt))
	}
	return s
}

// EntitySignatureChanged re-evaluates id against every system.
func (m *SystemManager) EntitySignatureChanged(id EntityID, sig Signature) {
	for _, b := range m.order {
		m.evaluate(b, id, sig)
	}
}

func (m *SystemManager) evaluate(b *SystemBase, id EntityID, sig Signature) {
	if !b.signature.IsEmpty() && sig.Contains(b.signature) {
		b.entities.add(id)
	} else {
		b.entities.remove(id)
	}
}

// EntityDestroyed drops id from every system.
func (m *SystemManager) EntityDestroyed(id EntityID) {
	for _, b := range m.order {
		b.entities.remove(id)
	}
}

func (m *SystemManager) subscribe(b *SystemBase, t EventType) {
	if b.events.Has(ComponentType(t)) {
		return
	}
	b.events.Set(ComponentType(t))
	m.subscribers[t] = append(m.subscribers[t], b)
}

// Subscribers returns the systems listening to t in subscription order.
func (m *SystemManager) Subscribers(t EventType) []*SystemBase { return m.subscribers[t] }

// Systems returns every registered system in registration order.
func (m *SystemManager) Systems() []*SystemBase { return m.order }
