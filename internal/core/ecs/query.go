package ecs

// Each2 iterates over entities that have both component A and B.
// It iterates over the smaller store and checks the larger one.
func Each2[A, B any](r *Registry, fn func(EntityID, *A, *B)) {
	sa, sb := StoreOf[A](r), StoreOf[B](r)
	if sa.Len() <= sb.Len() {
		for id, a := range sa.data {
			if b, ok := sb.data[id]; ok {
				fn(id, a, b)
			}
		}
		return
	}
	for id, b := range sb.data {
		if a, ok := sa.data[id]; ok {
			fn(id, a, b)
		}
	}
}

// Each3 iterates over entities that have components A, B and C.
func Each3[A, B, C any](r *Registry, fn func(EntityID, *A, *B, *C)) {
	sa, sb, sc := StoreOf[A](r), StoreOf[B](r), StoreOf[C](r)
	for _, id := range r.Query(TypeOf[A](), TypeOf[B](), TypeOf[C]()) {
		fn(id, sa.data[id], sb.data[id], sc.data[id])
	}
}
