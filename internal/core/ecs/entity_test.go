package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityManagerCreateIsFIFO(t *testing.T) {
	m := NewEntityManager()
	a := m.Create()
	b := m.Create()
	assert.Equal(t, EntityID(0), a)
	assert.Equal(t, EntityID(1), b)

	m.Destroy(a)
	// a goes to the back of the queue, behind every never-used id.
	c := m.Create()
	assert.Equal(t, EntityID(2), c)
	assert.Equal(t, 2, m.Len())
}

func TestEntityManagerIDsUniqueUnderChurn(t *testing.T) {
	m := NewEntityManager()
	alive := map[EntityID]bool{}
	for round := 0; round < 50; round++ {
		for i := 0; i < 40; i++ {
			id := m.Create()
			require.False(t, alive[id], "id %d handed out twice", id)
			alive[id] = true
		}
		n := 0
		for id := range alive {
			if n%3 == 0 {
				m.Destroy(id)
				delete(alive, id)
			}
			n++
		}
	}
	assert.Equal(t, len(alive), m.Len())
}

func TestEntityManagerExhaustionPanics(t *testing.T) {
	m := NewEntityManager()
	for i := 0; i < MaxEntities; i++ {
		m.Create()
	}
	require.Panics(t, func() { m.Create() })
}

func TestEntityManagerDestroyClearsSignature(t *testing.T) {
	m := NewEntityManager()
	id := m.Create()
	m.SetBit(id, 3)
	m.SetBit(id, 100)
	require.True(t, m.Signature(id).Has(100))

	m.Destroy(id)
	assert.True(t, m.Signature(id).IsEmpty())
	assert.False(t, m.Alive(id))
}

func TestEntityManagerRangeAndDoubleDestroyPanic(t *testing.T) {
	m := NewEntityManager()
	require.Panics(t, func() { m.Signature(MaxEntities) })
	require.Panics(t, func() { m.SetBit(InvalidEntity, 0) })

	id := m.Create()
	m.Destroy(id)
	require.Panics(t, func() { m.Destroy(id) })
}

func TestSignatureContains(t *testing.T) {
	ent := SignatureOf(1, 5, 64, 127)
	assert.True(t, ent.Contains(SignatureOf(5, 127)))
	assert.True(t, ent.Contains(Signature{}))
	assert.False(t, ent.Contains(SignatureOf(5, 6)))
	assert.Equal(t, 4, ent.Count())

	ent.Clear(64)
	assert.False(t, ent.Has(64))
	assert.Equal(t, SignatureOf(5), ent.And(SignatureOf(5, 70)))
	require.Panics(t, func() { ent.Set(MaxComponents) })
}
