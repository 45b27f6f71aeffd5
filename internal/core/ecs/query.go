package ecs

// Each calls fn for every entity owning T.
func Each[T any](w *World, fn func(EntityID, *T)) {
	for id, v := range Components[T](w.components).All() {
		fn(id, v)
	}
}

// Each2 calls fn for every entity owning both A and B. It walks the smaller
// array and probes the other one.
func Each2[A, B any](w *World, fn func(EntityID, *A, *B)) {
	sa := Components[A](w.components)
	sb := Components[B](w.components)
	if sa.Len() <= sb.Len() {
		for id, a := range sa.All() {
			if b := sb.Get(id); b != nil {
				fn(id, a, b)
			}
		}
		return
	}
	for id, b := range sb.All() {
		if a := sa.Get(id); a != nil {
			fn(id, a, b)
		}
	}
}

// Each3 calls fn for every entity owning A, B and C, walking A's array.
func Each3[A, B, C any](w *World, fn func(EntityID, *A, *B, *C)) {
	sa := Components[A](w.components)
	sb := Components[B](w.components)
	sc := Components[C](w.components)
	for id, a := range sa.All() {
		b := sb.Get(id)
		if b == nil {
			continue
		}
		if c := sc.Get(id); c != nil {
			fn(id, a, b, c)
		}
	}
}
