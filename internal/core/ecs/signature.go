package ecs

import (
	"fmt"
	"math/bits"
)

// MaxComponents is the width of a Signature.
const MaxComponents = 128

// ComponentType is the bit position a component type occupies in a Signature.
type ComponentType uint8

// Signature is a fixed 128-bit set, one bit per registered component type.
// Event subscriptions reuse the same layout indexed by EventType.
type Signature [2]uint64

func (s Signature) Has(t ComponentType) bool {
	return s[t>>6]&(1<<(t&63)) != 0
}

func (s *Signature) Set(t ComponentType) {
	checkComponentType(t)
	s[t>>6] |= 1 << (t & 63)
}

func (s *Signature) Clear(t ComponentType) {
	checkComponentType(t)
	s[t>>6] &^= 1 << (t & 63)
}

func (s *Signature) Reset() { *s = Signature{} }

// Contains reports whether every bit of sub is also set in s.
func (s Signature) Contains(sub Signature) bool {
	return s[0]&sub[0] == sub[0] && s[1]&sub[1] == sub[1]
}

func (s Signature) And(o Signature) Signature {
	return Signature{s[0] & o[0], s[1] & o[1]}
}

func (s Signature) IsEmpty() bool { return s[0] == 0 && s[1] == 0 }

func (s Signature) Count() int {
	return bits.OnesCount64(s[0]) + bits.OnesCount64(s[1])
}

func (s Signature) String() string {
	return fmt.Sprintf("%016x%016x", s[1], s[0])
}

// SignatureOf builds a signature from a list of component types.
func SignatureOf(types ...ComponentType) Signature {
	var s Signature
	for _, t := range types {
		s.Set(t)
	}
	return s
}

func checkComponentType(t ComponentType) {
	if int(t) >= MaxComponents {
		panic(fmt.Sprintf("ecs: component type %d out of range [0, %d)", t, MaxComponents))
	}
}
