package ecs

import (
	"fmt"
	"reflect"
)

// ComponentManager owns one ComponentArray per component type. Types get
// their id from an explicit per-world table, on first use or through
// RegisterComponent, in increasing order.
type ComponentManager struct {
	types      map[reflect.Type]ComponentType
	containers []Container // indexed by ComponentType
}

func NewComponentManager() *ComponentManager {
	return &ComponentManager{
		types:      make(map[reflect.Type]ComponentType, 16),
		containers: make([]Container, 0, 16),
	}
}

// ComponentTypeOf returns T's id, registering T if this is its first use.
func ComponentTypeOf[T any](m *ComponentManager) ComponentType {
	return Components[T](m).Type()
}

// Components returns the array backing T, creating it on first use.
func Components[T any](m *ComponentManager) *ComponentArray[T] {
	rt := reflect.TypeFor[T]()
	if t, ok := m.types[rt]; ok {
		return m.containers[t].(*ComponentArray[T])
	}
	if len(m.containers) >= MaxComponents {
		panic(fmt.Sprintf("ecs: cannot register %s: component limit %d reached", rt, MaxComponents))
	}
	t := ComponentType(len(m.containers))
	arr := NewComponentArray[T](t)
	m.types[rt] = t
	m.containers = append(m.containers, arr)
	return arr
}

// Container returns the type-erased array registered under t, or nil.
func (m *ComponentManager) Container(t ComponentType) Container {
	if int(t) >= len(m.containers) {
		return nil
	}
	return m.containers[t]
}

// Len returns the number of registered component types.
func (m *ComponentManager) Len() int { return len(m.containers) }

// EntityDestroyed drops id's data from every array whose bit is set in sig.
// It must run before the entity's signature is cleared.
func (m *ComponentManager) EntityDestroyed(id EntityID, sig Signature) {
	for _, c := range m.containers {
		if sig.Has(c.Type()) {
			c.EntityDestroyed(id)
		}
	}
}
