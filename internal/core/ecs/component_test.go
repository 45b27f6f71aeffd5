package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type position struct{ X, Y, Z float32 }

type tag struct{}

func TestComponentArrayInsertOverwrites(t *testing.T) {
	a := NewComponentArray[position](0)
	a.Insert(7, position{1, 2, 3})
	a.Insert(7, position{4, 5, 6})

	require.Equal(t, 1, a.Len())
	assert.Equal(t, position{4, 5, 6}, *a.Get(7))
	assert.Nil(t, a.Get(8))
}

func TestComponentArraySwapRemoveKeepsRangeDense(t *testing.T) {
	a := NewComponentArray[position](0)
	for i := EntityID(10); i < 15; i++ {
		a.Insert(i, position{X: float32(i)})
	}

	// 11 is not the last slot: 14 must move into its place.
	a.Remove(11)
	require.Equal(t, 4, a.Len())
	assert.Equal(t, int32(1), a.entityToIndex[14])
	assert.Equal(t, EntityID(14), a.indexToEntity[1])
	assert.Equal(t, float32(14), a.Get(14).X)
	assert.Nil(t, a.Get(11))

	seen := map[EntityID]bool{}
	for id, p := range a.All() {
		seen[id] = true
		assert.Equal(t, float32(id), p.X)
	}
	assert.Len(t, seen, 4)
	assert.False(t, seen[11])

	for i, id := range a.indexToEntity {
		assert.Equal(t, int32(i), a.entityToIndex[id])
	}
}

func TestComponentArrayRemoveLast(t *testing.T) {
	a := NewComponentArray[position](0)
	a.Insert(1, position{X: 1})
	a.Insert(2, position{X: 2})
	a.Remove(2)
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, float32(1), a.Get(1).X)
}

func TestComponentArrayRemoveMissingPanics(t *testing.T) {
	a := NewComponentArray[position](0)
	require.Panics(t, func() { a.Remove(3) })
	require.NotPanics(t, func() { a.EntityDestroyed(3) })
}

func TestComponentArrayAllStopsEarly(t *testing.T) {
	a := NewComponentArray[tag](0)
	for i := EntityID(0); i < 10; i++ {
		a.Insert(i, tag{})
	}
	n := 0
	for range a.All() {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestComponentManagerAssignsIDsInOrder(t *testing.T) {
	m := NewComponentManager()
	assert.Equal(t, ComponentType(0), ComponentTypeOf[position](m))
	assert.Equal(t, ComponentType(1), ComponentTypeOf[tag](m))
	assert.Equal(t, ComponentType(0), ComponentTypeOf[position](m))
	assert.Equal(t, 2, m.Len())
	assert.Nil(t, m.Container(5))
}

func TestComponentManagerEntityDestroyedUsesSignature(t *testing.T) {
	m := NewComponentManager()
	pos := Components[position](m)
	tags := Components[tag](m)
	pos.Insert(4, position{})
	tags.Insert(4, tag{})

	// Only the tag bit is set, so the position must survive.
	m.EntityDestroyed(4, SignatureOf(tags.Type()))
	assert.True(t, pos.Has(4))
	assert.False(t, tags.Has(4))
}

func BenchmarkComponentArrayInsertRemove(b *testing.B) {
	a := NewComponentArray[position](0)
	for i := 0; i < b.N; i++ {
		id := EntityID(i % MaxEntities)
		a.Insert(id, position{X: 1})
		if i%2 == 1 {
			a.Remove(id)
		}
	}
}
