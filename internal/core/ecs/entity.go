package ecs

import "fmt"

// MaxEntities bounds the entity id space. The table is pre-sized and never grows.
const MaxEntities = 2048

// EntityID is an index into the fixed entity table. It owns no data of its own.
type EntityID uint32

// InvalidEntity is never handed out by Create.
const InvalidEntity EntityID = MaxEntities

func (id EntityID) Valid() bool { return id < MaxEntities }

// EntityManager allocates entity ids from a FIFO free list pre-seeded with
// every id and keeps the component signature of each slot.
type EntityManager struct {
	freeList   [MaxEntities]EntityID // ring buffer
	head       int
	free       int
	alive      [MaxEntities]bool
	signatures [MaxEntities]Signature
}

func NewEntityManager() *EntityManager {
	m := &EntityManager{free: MaxEntities}
	for i := range m.freeList {
		m.freeList[i] = EntityID(i)
	}
	return m
}

// Create pops the oldest free id. Running out of ids is a programming error.
func (m *EntityManager) Create() EntityID {
	if m.free == 0 {
		panic(fmt.Sprintf("ecs: entity limit %d reached", MaxEntities))
	}
	id := m.freeList[m.head]
	m.head = (m.head + 1) % MaxEntities
	m.free--
	m.alive[id] = true
	return id
}

// Destroy clears the signature and recycles the id. The caller must already
// have removed the entity's components and system memberships.
func (m *EntityManager) Destroy(id EntityID) {
	checkEntity(id)
	if !m.alive[id] {
		panic(fmt.Sprintf("ecs: destroy of dead entity %d", id))
	}
	m.signatures[id].Reset()
	m.alive[id] = false
	m.freeList[(m.head+m.free)%MaxEntities] = id
	m.free++
}

func (m *EntityManager) Alive(id EntityID) bool {
	return id.Valid() && m.alive[id]
}

// Len returns the number of living entities.
func (m *EntityManager) Len() int { return MaxEntities - m.free }

func (m *EntityManager) SetBit(id EntityID, t ComponentType) {
	checkEntity(id)
	m.signatures[id].Set(t)
}

func (m *EntityManager) ClearBit(id EntityID, t ComponentType) {
	checkEntity(id)
	m.signatures[id].Clear(t)
}

func (m *EntityManager) Signature(id EntityID) Signature {
	checkEntity(id)
	return m.signatures[id]
}

// Each calls fn for every living entity in id order.
func (m *EntityManager) Each(fn func(EntityID, Signature)) {
	for i := range m.alive {
		if m.alive[i] {
			fn(EntityID(i), m.signatures[i])
		}
	}
}

func checkEntity(id EntityID) {
	if !id.Valid() {
		panic(fmt.Sprintf("ecs: entity id %d out of range [0, %d)", id, MaxEntities))
	}
}
