package ecs

// DirtyTag marks an entity whose state changed and needs reprocessing by
// later systems in this frame or by any system in the next frame. The
// consumer removes it.
type DirtyTag struct{}

// MarkDirty is a shorthand for Tag[DirtyTag].
func MarkDirty(r *Registry, id EntityID) error {
	return Tag[DirtyTag](r, id)
}

func IsDirty(r *Registry, id EntityID) bool {
	return Has[DirtyTag](r, id)
}

func ClearDirty(r *Registry, id EntityID) {
	Remove[DirtyTag](r, id)
}
