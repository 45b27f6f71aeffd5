package ecs

import (
	"fmt"
	"iter"
	"reflect"
)

// Container is the type-erased view of a ComponentArray, so the manager can
// drop an entity's data from every array without knowing the concrete type.
type Container interface {
	Type() ComponentType
	Name() string
	Len() int
	EntityDestroyed(id EntityID)
}

// ComponentArray keeps components of one type packed at the front of a dense
// slice, with entity<->slot tables on the side. Removal swaps the last live
// slot into the hole, so the live range never has gaps.
//
// Pointers returned by Get and All stay valid until the next Remove on the
// same array: capacity is reserved for MaxEntities up front.
type ComponentArray[T any] struct {
	typ           ComponentType
	name          string
	data          []T
	indexToEntity []EntityID
	entityToIndex [MaxEntities]int32
}

func NewComponentArray[T any](typ ComponentType) *ComponentArray[T] {
	a := &ComponentArray[T]{
		typ:           typ,
		name:          reflect.TypeFor[T]().String(),
		data:          make([]T, 0, MaxEntities),
		indexToEntity: make([]EntityID, 0, MaxEntities),
	}
	for i := range a.entityToIndex {
		a.entityToIndex[i] = -1
	}
	return a
}

func (a *ComponentArray[T]) Type() ComponentType { return a.typ }
func (a *ComponentArray[T]) Name() string        { return a.name }
func (a *ComponentArray[T]) Len() int            { return len(a.data) }

// Insert stores v for id, overwriting an existing value in place.
func (a *ComponentArray[T]) Insert(id EntityID, v T) {
	checkEntity(id)
	if idx := a.entityToIndex[id]; idx >= 0 {
		a.data[idx] = v
		return
	}
	a.entityToIndex[id] = int32(len(a.data))
	a.data = append(a.data, v)
	a.indexToEntity = append(a.indexToEntity, id)
}

// Remove drops id's value. The entity must own one.
func (a *ComponentArray[T]) Remove(id EntityID) {
	checkEntity(id)
	idx := a.entityToIndex[id]
	if idx < 0 {
		panic(fmt.Sprintf("ecs: remove %s from entity %d: no such component", a.name, id))
	}
	last := int32(len(a.data) - 1)
	if idx != last {
		moved := a.indexToEntity[last]
		a.data[idx] = a.data[last]
		a.indexToEntity[idx] = moved
		a.entityToIndex[moved] = idx
	}
	var zero T
	a.data[last] = zero
	a.data = a.data[:last]
	a.indexToEntity = a.indexToEntity[:last]
	a.entityToIndex[id] = -1
}

// Get returns id's value or nil.
func (a *ComponentArray[T]) Get(id EntityID) *T {
	checkEntity(id)
	idx := a.entityToIndex[id]
	if idx < 0 {
		return nil
	}
	return &a.data[idx]
}

func (a *ComponentArray[T]) Has(id EntityID) bool {
	checkEntity(id)
	return a.entityToIndex[id] >= 0
}

// All yields the live range in slot order. Removing while iterating is not allowed.
func (a *ComponentArray[T]) All() iter.Seq2[EntityID, *T] {
	return func(yield func(EntityID, *T) bool) {
		n := len(a.data)
		for i := 0; i < n; i++ {
			if !yield(a.indexToEntity[i], &a.data[i]) {
				return
			}
		}
	}
}

// EntityDestroyed removes id's value if present.
func (a *ComponentArray[T]) EntityDestroyed(id EntityID) {
	if a.Has(id) {
		a.Remove(id)
	}
}
