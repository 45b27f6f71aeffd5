package ecs

import (
	"fmt"
	"iter"
	"reflect"

	"go.uber.org/zap"
)

// World is the coordinator every system talks to. It composes the entity
// table, the component arrays and the system table, and keeps a deferred
// destruction queue flushed by CleanupSystem each tick.
type World struct {
	entities     *EntityManager
	components   *ComponentManager
	systems      *SystemManager
	events       *eventRegistry
	destroyQueue []EntityID
	inboxCap     int
	log          *zap.Logger
}

// Option configures a World.
type Option func(*World)

// WithInboxCapacity bounds every system inbox created by the world.
func WithInboxCapacity(n int) Option {
	return func(w *World) { w.inboxCap = n }
}

func WithLogger(log *zap.Logger) Option {
	return func(w *World) { w.log = log }
}

func NewWorld(opts ...Option) *World {
	w := &World{
		entities:     NewEntityManager(),
		components:   NewComponentManager(),
		systems:      NewSystemManager(),
		events:       newEventRegistry(),
		destroyQueue: make([]EntityID, 0, 64),
		inboxCap:     DefaultInboxCapacity,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *World) Entities() *EntityManager      { return w.entities }
func (w *World) Components() *ComponentManager { return w.components }
func (w *World) Systems() *SystemManager       { return w.systems }

func (w *World) CreateEntity() EntityID {
	return w.entities.Create()
}

func (w *World) Alive(id EntityID) bool {
	return w.entities.Alive(id)
}

func (w *World) EntityCount() int { return w.entities.Len() }

func (w *World) Signature(id EntityID) Signature {
	return w.entities.Signature(id)
}

// DestroyEntity removes id from every system, drops its components, then
// resets the signature and recycles the id. The order matters: no system may
// still see an entity whose components are gone.
func (w *World) DestroyEntity(id EntityID) {
	w.mustBeAlive(id)
	w.systems.EntityDestroyed(id)
	w.components.EntityDestroyed(id, w.entities.Signature(id))
	w.entities.Destroy(id)
}

// MarkForDestruction queues an entity for end-of-tick cleanup.
func (w *World) MarkForDestruction(id EntityID) {
	w.destroyQueue = append(w.destroyQueue, id)
}

// FlushDestroyQueue destroys all queued entities that are still alive and
// returns how many were destroyed. Called by CleanupSystem at tick end.
func (w *World) FlushDestroyQueue() int {
	n := 0
	for _, id := range w.destroyQueue {
		if !w.entities.Alive(id) {
			continue
		}
		w.DestroyEntity(id)
		n++
	}
	w.destroyQueue = w.destroyQueue[:0]
	return n
}

// DrainEvents empties every system inbox. The runner calls it once per tick.
func (w *World) DrainEvents() int {
	n := 0
	for _, b := range w.systems.Systems() {
		if d := b.inbox.Dropped(); d > b.reportedDrops {
			w.log.Warn("system inbox overflowed",
				zap.String("system", b.name),
				zap.Int("dropped", d-b.reportedDrops))
			b.reportedDrops = d
		}
		n += b.Drain()
	}
	return n
}

func (w *World) mustBeAlive(id EntityID) {
	checkEntity(id)
	if !w.entities.Alive(id) {
		panic(fmt.Sprintf("ecs: entity %d is not alive", id))
	}
}

// RegisterComponent assigns T its id up front. Later uses of T get the same id.
func RegisterComponent[T any](w *World) ComponentType {
	return ComponentTypeOf[T](w.components)
}

// AddComponent sets T's bit on id, stores v and re-evaluates every system
// against the new signature. Attaching an existing component overwrites it.
func AddComponent[T any](w *World, id EntityID, v T) {
	w.mustBeAlive(id)
	arr := Components[T](w.components)
	w.entities.SetBit(id, arr.Type())
	arr.Insert(id, v)
	w.systems.EntitySignatureChanged(id, w.entities.Signature(id))
}

// RemoveComponent clears T's bit on id, drops the value and re-evaluates
// membership. The entity must own a T.
func RemoveComponent[T any](w *World, id EntityID) {
	w.mustBeAlive(id)
	arr := Components[T](w.components)
	w.entities.ClearBit(id, arr.Type())
	arr.Remove(id)
	w.systems.EntitySignatureChanged(id, w.entities.Signature(id))
}

// GetComponent returns id's T, or nil.
func GetComponent[T any](w *World, id EntityID) *T {
	return Components[T](w.components).Get(id)
}

func HasComponent[T any](w *World, id EntityID) bool {
	return Components[T](w.components).Has(id)
}

// Query yields every live T with its entity, in storage order.
func Query[T any](w *World) iter.Seq2[EntityID, *T] {
	return Components[T](w.components).All()
}

// RegisterSystem adds s to the world. Each concrete system type may be
// registered once.
func RegisterSystem[S System](w *World, s S) S {
	b := s.Base()
	if b.attached() {
		panic(fmt.Sprintf("ecs: system %s already belongs to a world", b.name))
	}
	w.systems.register(s)
	b.name = reflect.TypeOf(s).String()
	b.world = w
	b.inbox = NewInbox(w.inboxCap)
	return s
}

// GetSystem returns the registered instance of S. Asking for a system that
// was never registered is a programming error.
func GetSystem[S System](w *World) S {
	return w.systems.lookup(reflect.TypeFor[S]()).(S)
}

// SubscribeComponent adds C to the system's required signature and
// re-evaluates every living entity against it.
func SubscribeComponent[C any](w *World, s System) {
	b := mustAttached(s)
	t := ComponentTypeOf[C](w.components)
	if b.signature.Has(t) {
		return
	}
	b.signature.Set(t)
	w.entities.Each(func(id EntityID, sig Signature) {
		w.systems.evaluate(b, id, sig)
	})
}

// SubscribeEvent makes the system receive events of type E.
func SubscribeEvent[E any](w *World, s System) {
	b := mustAttached(s)
	w.systems.subscribe(b, EventTypeOf[E](w))
}

// EventTypeOf returns E's id in w, registering it on first use.
func EventTypeOf[E any](w *World) EventType {
	return w.events.typeOf(reflect.TypeFor[E]())
}

// SendEvent pushes e into the inbox of every system subscribed to E and
// returns how many accepted it. All subscribers share the same value.
func SendEvent[E any](w *World, e E) int {
	t := EventTypeOf[E](w)
	delivered := 0
	for _, b := range w.systems.Subscribers(t) {
		if b.inbox.Push(t, e) {
			delivered++
		}
	}
	return delivered
}

// Events returns the system's pending events of type E in send order.
func Events[E any](s System) []E {
	b := mustAttached(s)
	t := EventTypeOf[E](b.world)
	var out []E
	b.inbox.Each(t, func(p any) {
		out = append(out, p.(E))
	})
	return out
}

func HasEvents[E any](s System) bool {
	b := mustAttached(s)
	return b.inbox.Has(EventTypeOf[E](b.world))
}

// ClearEvents drops the system's pending events of type E only.
func ClearEvents[E any](s System) {
	b := mustAttached(s)
	b.inbox.Clear(EventTypeOf[E](b.world))
}

func mustAttached(s System) *SystemBase {
	b := s.Base()
	if !b.attached() {
		panic(fmt.Sprintf("ecs: system %T is not registered with a world", s))
	}
	return b
}
